// Package contenttype compiles content type and locale definitions from CUE.
//
// A schema directory holds two top-level structs:
//
//	contentType: post: {
//		name:         "Post"
//		displayField: "title"
//		fields: {
//			title: {name: "Title", type: "Symbol", localized: true, required: true}
//			body:  {name: "Body", type: "Text", apiName: "content"}
//		}
//	}
//
//	locales: {
//		"en-US": {internalCode: "loc-en", name: "English (United States)", default: true}
//		"de-DE": {internalCode: "loc-de", fallback: "en-US", optional: true}
//	}
//
// Field and locale order follows declaration order. The compiled Schema
// also validates entities before they are published.
package contenttype
