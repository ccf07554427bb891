// Package engine runs WebAssembly plugins on wazero.
//
// Plugins are core WebAssembly modules. Component Model binaries are
// rejected. Each loaded plugin is instantiated once and its numeric exports
// are described with WIT types:
//
//	WASM Type   WIT Type
//	────────────────────
//	i32         s32
//	i64         s64
//	f32         f32
//	f64         f64
//
// Exports that use reference types are not callable and are left out of
// Exports.
//
// Arguments and results travel as raw uint64 values, the same encoding
// wazero uses: floats are passed by their IEEE 754 bits.
//
// Calls into one plugin are serialized; separate plugins run in parallel.
package engine
