// Package class turns Go struct types into host class descriptors.
//
// A class is a Go struct that embeds Object to extend a host class:
//
//	type Monster struct {
//		class.Object
//		Name      string
//		Hitpoints int64
//	}
//
//	func (m *Monster) Process(ctx context.Context, delta float64) { ... }
//
// Derive reads the declaration through reflection; Build is the explicit
// builder used by generated code. Both produce a *Class: an immutable
// Descriptor plus the factory, field bindings and override table the
// runtime needs.
//
// Composites only come into being through Class.New, which binds the host's
// base handle into the Object slot exactly once. A Monster{} literal has no
// base and every delegation through it fails.
package class
