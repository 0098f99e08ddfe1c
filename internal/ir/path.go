package ir

import "strings"

// Path is a structural location in a document, e.g.
// ["fields", internalFieldID, internalLocaleCode].
type Path []string

// PathFields is the first segment of every field-data path.
const PathFields = "fields"

// FieldPath returns the document path of one field value in one locale.
func FieldPath(fieldID, localeCode string) Path {
	return Path{PathFields, fieldID, localeCode}
}

// IsField reports whether the path is rooted at the field data.
func (p Path) IsField() bool {
	return len(p) > 0 && p[0] == PathFields
}

// HasPrefix reports whether p starts with prefix.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

func (p Path) String() string {
	return strings.Join(p, ".")
}
