// Package ir provides the scalar value variants and the error taxonomy shared
// by every relmap package.
//
// All other internal packages import ir; ir imports nothing internal. This
// keeps it the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float values - integers are exact int64/uint64
//   - Time values are normalized to UTC on construction
//   - Canonical JSON (RFC 8785, NFC strings) is the only serialization used
//     for content hashing
package ir
