package runtime

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/classbridge"
	"github.com/wippyai/classbridge/class"
	"github.com/wippyai/classbridge/errors"
)

// Instantiate builds a composite of className on a base object the host has
// already allocated. On failure the base object is released through the
// host and the error has kind construction_failed, or describes why
// construction never started.
//
// Instantiate may not be called from inside an override, constructor or
// teardown hook; such calls fail with kind reentrant.
func (b *Bridge) Instantiate(ctx context.Context, className string, base classbridge.ObjectID) (*Instance, error) {
	if class.Dispatching(ctx) {
		return nil, errors.Reentrant(errors.PhaseConstruct, "instantiate")
	}
	if !b.table.Sealed() {
		return nil, errors.NotInitialized(errors.PhaseConstruct, "registration table")
	}
	entry, ok := b.table.Lookup(className)
	if !ok {
		return nil, errors.NotFound(errors.PhaseConstruct, "class", className)
	}

	native, ok := b.host.ClassOf(base)
	if !ok {
		return nil, errors.New(errors.PhaseConstruct, errors.KindNotFound).
			Class(className).
			Detail("base object %d does not exist", base).
			Build()
	}
	if !classbridge.IsSubclass(b.host, native, entry.Native) {
		return nil, errors.New(errors.PhaseConstruct, errors.KindIncompatibleBase).
			Class(className).
			HostType(native).
			Detail("%s extends %s, base object is a %s", className, entry.Native, native).
			Build()
	}

	inst := &Instance{entry: entry, base: class.NewBase(b.host, base, native)}
	inst.setState(BaseReady)

	b.mu.Lock()
	if _, bound := b.live[base]; bound {
		b.mu.Unlock()
		return nil, errors.New(errors.PhaseConstruct, errors.KindAlreadyBound).
			Class(className).
			Detail("base object %d already backs an instance", base).
			Build()
	}
	b.live[base] = inst
	b.mu.Unlock()

	value, err := b.construct(ctx, inst)
	if err != nil {
		b.mu.Lock()
		delete(b.live, base)
		b.mu.Unlock()

		inst.setState(ConstructionFailed)
		inst.base.Detach()
		if !errors.IsKind(err, errors.KindConstructionFailed) {
			err = errors.ConstructionFailed(className, err)
		}
		if rerr := b.host.Release(ctx, base); rerr != nil {
			Logger().Warn("release after failed construction", zap.Uint64("id", uint64(base)), zap.Error(rerr))
		}

		Logger().Debug("construction failed", zap.String("class", className), zap.Uint64("id", uint64(base)), zap.Error(err))
		b.notify(Event{Type: EventConstructionFailed, ID: base, Class: className, Err: err})
		return nil, err
	}

	inst.value = value
	inst.setState(Constructed)

	Logger().Debug("instance constructed", zap.String("class", className), zap.Uint64("id", uint64(base)))
	b.notify(Event{Type: EventConstructed, ID: base, Class: className})
	return inst, nil
}

// construct runs the class factory under the instance guard, so anything
// the constructor does through its base handle is already exclusive and a
// nested lifecycle call is recognized as reentrant.
func (b *Bridge) construct(ctx context.Context, inst *Instance) (value any, err error) {
	c := inst.entry.Class
	err = inst.base.Exclusive(ctx, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				if !b.opts.RecoverPanics {
					panic(r)
				}
				err = errors.ConstructionFailed(c.Name(), fmt.Errorf("panic: %v", r))
			}
		}()
		value, err = c.New(ctx, inst.base)
		return err
	})
	return value, err
}

// New allocates a base object of the class's nearest native ancestor and
// instantiates the class on it.
func (b *Bridge) New(ctx context.Context, className string) (*Instance, error) {
	if class.Dispatching(ctx) {
		return nil, errors.Reentrant(errors.PhaseConstruct, "new")
	}
	entry, ok := b.table.Lookup(className)
	if !ok {
		if !b.table.Sealed() {
			return nil, errors.NotInitialized(errors.PhaseConstruct, "registration table")
		}
		return nil, errors.NotFound(errors.PhaseConstruct, "class", className)
	}

	id, err := b.host.Allocate(ctx, entry.Native)
	if err != nil {
		return nil, errors.New(errors.PhaseConstruct, errors.KindConstructionFailed).
			Class(className).
			Cause(err).
			Detail("host could not allocate %s", entry.Native).
			Build()
	}
	return b.Instantiate(ctx, className, id)
}

// Destroy tears an instance down. The instance disappears from lookups
// immediately; teardown then waits for any running override to finish,
// runs the class's teardown hook, and releases the base object.
func (b *Bridge) Destroy(ctx context.Context, id classbridge.ObjectID) error {
	if class.Dispatching(ctx) {
		return errors.Reentrant(errors.PhaseTeardown, "destroy")
	}

	b.mu.Lock()
	inst, ok := b.live[id]
	if !ok || inst.State() != Constructed {
		b.mu.Unlock()
		return instanceNotFound(errors.PhaseTeardown, id)
	}
	inst.setState(DestroyRequested)
	delete(b.live, id)
	b.mu.Unlock()

	c := inst.entry.Class
	b.retire(ctx, inst)

	if rerr := b.host.Release(ctx, id); rerr != nil {
		Logger().Warn("release after teardown", zap.Uint64("id", uint64(id)), zap.Error(rerr))
	}

	Logger().Debug("instance destroyed", zap.String("class", c.Name()), zap.Uint64("id", uint64(id)))
	b.notify(Event{Type: EventDestroyed, ID: id, Class: c.Name()})
	return nil
}

// retire runs teardown under the instance guard and invalidates the base
// handle. The host object itself is left alone.
func (b *Bridge) retire(ctx context.Context, inst *Instance) {
	err := inst.base.Exclusive(ctx, func(ctx context.Context) error {
		b.teardown(ctx, inst)
		return nil
	})
	inst.base.Detach()
	inst.setState(Destroyed)
	if err != nil {
		Logger().Warn("teardown guard", zap.String("class", inst.Class()), zap.Error(err))
	}
}

// teardown runs the nearest teardown hook along the class chain. A panic in
// the hook is logged; teardown always completes.
func (b *Bridge) teardown(ctx context.Context, inst *Instance) {
	for _, c := range inst.entry.Chain {
		if !c.HasTeardown() {
			continue
		}
		self, ok := class.Upcast(inst.value, c.Type())
		if !ok {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					if !b.opts.RecoverPanics {
						panic(r)
					}
					Logger().Error("teardown hook panicked",
						zap.String("class", c.Name()),
						zap.Any("panic", r))
				}
			}()
			c.Drop(ctx, self)
		}()
		return
	}
}
