package class

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/wippyai/classbridge"
	"github.com/wippyai/classbridge/errors"
	"github.com/wippyai/classbridge/variant"
)

// Base is the handle to the host-owned part of an instance. It is created by
// the runtime when the host hands over a base object and is bound into exactly
// one composite.
type Base struct {
	host     classbridge.Host
	class    string
	id       classbridge.ObjectID
	mu       sync.Mutex
	claimed  atomic.Bool
	detached atomic.Bool
}

// NewBase wraps a host object. The runtime calls this once per base object.
func NewBase(host classbridge.Host, id classbridge.ObjectID, class string) *Base {
	return &Base{host: host, id: id, class: class}
}

// ID returns the host object id. It never changes for the life of the instance.
func (b *Base) ID() classbridge.ObjectID {
	if b == nil {
		return 0
	}
	return b.id
}

// Class returns the native host class of the base object.
func (b *Base) Class() string {
	if b == nil {
		return ""
	}
	return b.class
}

// Valid reports whether the handle still refers to a live host object.
func (b *Base) Valid() bool {
	return b != nil && b.host != nil && b.id != 0 && !b.detached.Load()
}

// Detach invalidates the handle after teardown.
func (b *Base) Detach() {
	if b != nil {
		b.detached.Store(true)
	}
}

func (b *Base) claim() bool {
	return b.claimed.CompareAndSwap(false, true)
}

func (b *Base) check() error {
	if b == nil || b.host == nil {
		return errors.NotInitialized(errors.PhaseHost, "base handle")
	}
	if b.id == 0 || b.detached.Load() {
		return errors.NotFound(errors.PhaseHost, "object", strconv.FormatUint(uint64(b.id), 10))
	}
	return nil
}

// Get reads an inherited host property.
func (b *Base) Get(ctx context.Context, property string) (variant.Variant, error) {
	if err := b.check(); err != nil {
		return variant.Variant{}, err
	}
	return b.host.Get(ctx, b.id, property)
}

// Set writes an inherited host property under the instance's exclusive guard.
func (b *Base) Set(ctx context.Context, property string, v variant.Variant) error {
	return b.Exclusive(ctx, func(ctx context.Context) error {
		return b.host.Set(ctx, b.id, property, v)
	})
}

// Call runs the host's own implementation of a method on the base object.
// Overrides use it to reach inherited behavior.
func (b *Base) Call(ctx context.Context, method string, args ...variant.Variant) (variant.Variant, error) {
	var out variant.Variant
	err := b.Exclusive(ctx, func(ctx context.Context) error {
		var err error
		out, err = b.host.CallDefault(ctx, b.id, method, args)
		return err
	})
	return out, err
}

// Exclusive runs fn while holding the instance's guard. When ctx already
// holds it (a nested call from inside a dispatch on the same instance), fn
// runs directly.
func (b *Base) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.check(); err != nil {
		return err
	}
	if Holding(ctx, b) {
		return fn(ctx)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	parent, _ := ctx.Value(heldKey{}).(*held)
	h := &held{base: b, next: parent}
	defer h.released.Store(true)
	return fn(context.WithValue(ctx, heldKey{}, h))
}

type heldKey struct{}

// held records one Exclusive section. A context that outlives its section
// carries a released record and no longer counts as holding the guard.
type held struct {
	base     *Base
	next     *held
	released atomic.Bool
}

// Holding reports whether ctx was derived inside Exclusive for b and that
// section is still running.
func Holding(ctx context.Context, b *Base) bool {
	h, _ := ctx.Value(heldKey{}).(*held)
	for ; h != nil; h = h.next {
		if h.base == b && !h.released.Load() {
			return true
		}
	}
	return false
}

// Dispatching reports whether ctx is inside a running exclusive section of
// any instance.
func Dispatching(ctx context.Context) bool {
	h, _ := ctx.Value(heldKey{}).(*held)
	for ; h != nil; h = h.next {
		if !h.released.Load() {
			return true
		}
	}
	return false
}

// Object is the base slot a composite embeds to extend a host class:
//
//	type Monster struct {
//		class.Object
//		Name string
//	}
//
// The slot is filled by the runtime during construction. A value built
// directly by user code has no base and every delegation through it fails
// with not_initialized.
type Object struct {
	base *Base
}

// Base returns the bound handle, or nil outside the construction protocol.
func (o *Object) Base() *Base {
	if o == nil {
		return nil
	}
	return o.base
}
