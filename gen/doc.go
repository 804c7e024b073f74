// Package gen generates class registrations from annotated Go source.
//
// A struct is picked up when its doc comment carries a directive:
//
//	//bridge:class base=Node3D
//	type Monster struct {
//		class.Object
//		Name      string
//		Hitpoints int64 `bridge:"hp"`
//	}
//
// The directive accepts base= and name= (the class name, default the Go
// type name). Methods named after a well-known virtual are bound
// automatically; other methods are bound with //bridge:override <virtual>.
// A function documented with //bridge:constructor that returns (*T, error)
// becomes T's constructor.
//
// The output is a single Go file whose init function declares every class
// through registry.Declare, so the classes load with the rest of the
// process-wide declarations.
package gen
