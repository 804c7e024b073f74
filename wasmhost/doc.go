// Package wasmhost exposes a runtime.Bridge to WebAssembly guests as the
// host module "classbridge".
//
// Strings are passed as (pointer, length) pairs into the guest's exported
// memory. Object ids are i64. Every function that can fail returns an i32
// Status. Argument and result lists for call are CBOR-encoded variant
// arrays, the same encoding variant.Variant uses for snapshots.
//
//	(import "classbridge" "new"        (func (param i32 i32) (result i64)))
//	(import "classbridge" "set_int"    (func (param i64 i32 i32 i64) (result i32)))
//	(import "classbridge" "call_f64"   (func (param i64 i32 i32 f64) (result i32)))
package wasmhost
