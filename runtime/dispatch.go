package runtime

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/classbridge"
	"github.com/wippyai/classbridge/class"
	"github.com/wippyai/classbridge/errors"
	"github.com/wippyai/classbridge/variant"
)

// Status is the outcome of a virtual call as reported to the host.
type Status uint8

const (
	// OK means an override ran and returned Value.
	OK Status = iota
	// Default means no class in the chain overrides the method and the
	// host's own implementation ran.
	Default
	// NoOp means the override aborted; the host treats the call as a no-op.
	NoOp
	// NotFound means there is no live instance with that id.
	NotFound
	// Failed means the host's default implementation reported an error.
	Failed
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case Default:
		return "default"
	case NoOp:
		return "no_op"
	case NotFound:
		return "not_found"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Result is the total result of InvokeVirtual. Err is set for NoOp,
// NotFound and Failed.
type Result struct {
	Err    error
	Value  variant.Variant
	Status Status
}

// InvokeVirtual calls method on the instance backed by id. The override is
// resolved on every call by walking the instance's class chain from the
// most derived class; the first class that declares the method runs it
// with the receiver up-cast to that class's Go type. With no override the
// host default runs.
//
// Calls on one instance are serialized. A call made from inside an
// override on the same instance runs immediately on the caller's guard.
// Overrides of two instances that call into each other from different
// goroutines can deadlock; the host must not do that.
// InvokeVirtual never panics unless RecoverPanics is off.
func (b *Bridge) InvokeVirtual(ctx context.Context, id classbridge.ObjectID, method string, args ...variant.Variant) Result {
	inst, err := b.lookupInstance(errors.PhaseDispatch, id)
	if err != nil {
		return Result{Status: NotFound, Err: err}
	}

	var res Result
	err = inst.base.Exclusive(ctx, func(ctx context.Context) error {
		if inst.State() != Constructed {
			res = Result{Status: NotFound, Err: instanceNotFound(errors.PhaseDispatch, id)}
			return nil
		}
		res = b.dispatch(ctx, inst, method, args)
		return nil
	})
	if err != nil {
		return Result{Status: NotFound, Err: err}
	}
	return res
}

func (b *Bridge) dispatch(ctx context.Context, inst *Instance, method string, args []variant.Variant) Result {
	for _, c := range inst.entry.Chain {
		m, ok := c.Method(method)
		if !ok {
			continue
		}
		self, ok := class.Upcast(inst.value, c.Type())
		if !ok {
			continue
		}
		return b.call(ctx, c, method, m, self, args)
	}

	v, err := b.host.CallDefault(ctx, inst.ID(), method, args)
	if err != nil {
		return Result{Status: Failed, Err: err}
	}
	return Result{Status: Default, Value: v}
}

func (b *Bridge) call(ctx context.Context, c *class.Class, method string, m class.Method, self any, args []variant.Variant) (res Result) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if !b.opts.RecoverPanics {
			panic(r)
		}
		res = b.abort(c, method, fmt.Errorf("panic: %v", r))
	}()

	v, err := m(ctx, self, args)
	if err != nil {
		return b.abort(c, method, err)
	}
	return Result{Status: OK, Value: v}
}

func (b *Bridge) abort(c *class.Class, method string, cause error) Result {
	err := errors.DispatchAbort(c.Name(), method, cause)
	Logger().Warn("override aborted",
		zap.String("class", c.Name()),
		zap.String("method", method),
		zap.Error(cause))
	return Result{Status: NoOp, Err: err}
}
