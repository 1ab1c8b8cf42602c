// Package ir provides the structured value type used for every opaque
// payload the store persists: claims, evidence, scores, risk flags,
// explainability, settings snapshots and telemetry.
//
// The store never inspects these values. It only encodes them with
// MarshalCanonical and decodes them with UnmarshalValue.
//
// Key design constraints:
//   - Value is sealed: Null, String, Int, Float, Bool, Array, Object
//   - Int and Float stay distinct across a storage round trip
//   - Canonical JSON: UTF-16 sorted keys, compact, no HTML escaping
//   - ir imports nothing internal
package ir
