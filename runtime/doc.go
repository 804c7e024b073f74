// Package runtime implements the bridge between registered classes and a
// host runtime.
//
// # Lifecycle
//
//	engine := host.New()
//	b := runtime.New(engine, runtime.DefaultOptions())
//	if err := b.OnLoad(ctx); err != nil {
//	    log.Print(err) // every class that failed, reported once
//	}
//	defer b.OnUnload(ctx)
//
// OnLoad registers the process-wide declarations plus anything passed to
// Bridge.Register and seals the table. After that the host drives
// everything:
//
//	inst, err := b.New(ctx, "Monster")             // allocate + instantiate
//	err = b.SetField(ctx, inst.ID(), "hitpoints", variant.FromInt(100))
//	res := b.InvokeVirtual(ctx, inst.ID(), "_process", variant.FromFloat(0.016))
//	err = b.Destroy(ctx, inst.ID())
//
// # Construction
//
// An instance moves through BaseReady, then Constructed or
// ConstructionFailed, then DestroyRequested and Destroyed. A failed
// construction releases the base object. Destroy removes the instance from
// lookups before its teardown hook runs, so nothing can reach it afterwards.
//
// # Dispatch
//
// InvokeVirtual always returns a Result. Override errors and recovered
// panics become NoOp results; they are logged and never reach the host as
// errors. Calls on one instance are serialized by its guard.
//
// Instantiate, New, Destroy and Reload are rejected with kind reentrant when
// called from inside an override, constructor or teardown hook.
//
// # Reload
//
// Reload snapshots every instance to CBOR, reloads all classes and rebuilds
// the instances on their original base objects.
package runtime
