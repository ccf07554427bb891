// Package codec serializes op control payloads and results.
//
// The dispatch protocol does not fix a wire format. JSON is the default
// because script engines produce it natively; CBOR is available for hosts
// that want compact, deterministic payloads. Both reject unknown fields so
// that a script sending arguments the host does not understand gets a
// TypeMismatch rather than silently ignored input.
package codec
