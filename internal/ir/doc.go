// Package ir provides the shared domain types for entitybridge.
//
// This package contains type definitions and canonical encoding only. All
// other internal packages import ir; ir imports nothing internal. This keeps
// the entity model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - EntitySys is the sole input to lifecycle state computation
//   - Optional version markers are *int64, never zero-valued sentinels
//   - Internal identifiers (field ids, locale codes) never appear in public
//     payloads; translation happens in package idmap
//   - All JSON tags use the camelCase names of the management API
package ir
