// Package classbridge lets Go types define classes that a dynamically typed
// host engine can instantiate, introspect and call back into as if they were
// native engine classes.
//
// The library is organized into several packages with distinct responsibilities:
//
//	classbridge/         Root package with the Host boundary interface
//	├── variant/         Host values, type tags and field marshalling
//	├── class/           Class descriptors, derivation, base handle slot
//	├── registry/        Process-wide registration table with load barrier
//	├── runtime/         Bridge: construction, dispatch, field access, reload
//	├── host/            In-memory reference engine for tests and tooling
//	├── wasmhost/        The host boundary exported as a wazero host module
//	├── gen/             Descriptor code generation from Go packages
//	└── errors/          Structured error types
//
// # Quick Start
//
// Declare a class during package initialization:
//
//	type Monster struct {
//	    class.Object
//	    Name      string `bridge:"name"`
//	    Hitpoints int64  `bridge:"hitpoints"`
//	}
//
//	func (m *Monster) Process(ctx context.Context, delta float64) { ... }
//
//	func init() {
//	    registry.DeclareType[Monster]("Monster", class.Extends("Node3D"))
//	}
//
// Then, from the host side:
//
//	b := runtime.New(engine, runtime.DefaultOptions())
//	if err := b.OnLoad(ctx); err != nil {
//	    log.Print(err) // failed classes are listed once and skipped
//	}
//	inst, err := b.New(ctx, "Monster")
//	b.SetField(ctx, inst.ID(), "hitpoints", variant.FromInt(100))
//	res := b.InvokeVirtual(ctx, inst.ID(), "_process", []variant.Variant{variant.FromFloat(0.016)})
//	b.Destroy(ctx, inst.ID())
//
// # Thread Safety
//
// Registration completes before the first lookup. After OnLoad the
// registration table is immutable and lookups are lock free. Dispatch, field
// access and teardown on one instance are serialized by that instance's
// exclusive guard; different instances proceed in parallel.
package classbridge
