// Package variant defines the values that cross the host boundary.
//
// Every exposed field has exactly one Tag from a closed enumeration. A
// Variant carries one tagged value; conversions between Go values and
// Variants are explicit:
//
//	v, err := variant.ToHost(reflect.ValueOf(int64(100)))   // total
//	rv, err := variant.FromHost(v, reflect.TypeOf(uint8(0))) // partial
//
// FromHost fails with a marshal error on tag mismatch or range overflow and
// never produces a partially converted value. Integers widen to floats, and
// integral floats narrow to integers when they fit.
//
// Tags render as WIT types for interface dumps, and ParseTag accepts both tag
// names and WIT primitive spellings.
package variant
