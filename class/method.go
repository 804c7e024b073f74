package class

import (
	"context"
	"reflect"
	"strconv"

	"github.com/wippyai/classbridge/errors"
	"github.com/wippyai/classbridge/variant"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
	variantType = reflect.TypeFor[variant.Variant]()
)

func marshalable(t reflect.Type) bool {
	if t == variantType {
		return true
	}
	_, ok := variant.TagOf(t)
	return ok
}

// bindMethod adapts a Go method on recv (a pointer type) to a Method. The
// method may take a leading context.Context, any number of marshalable
// parameters, and may return one marshalable value and/or a trailing error.
func bindMethod(class string, recv reflect.Type, name string) (Method, error) {
	m, ok := recv.MethodByName(name)
	if !ok {
		return nil, errors.New(errors.PhaseDescribe, errors.KindNotFound).
			Class(class).
			Path(name).
			GoType(recv.String()).
			Detail("method %s not found", name).
			Build()
	}

	mt := m.Type
	unsupported := func(detail string, args ...any) error {
		return errors.New(errors.PhaseDescribe, errors.KindUnsupported).
			Class(class).
			Path(name).
			GoType(mt.String()).
			Detail(detail, args...).
			Build()
	}

	if mt.IsVariadic() {
		return nil, unsupported("variadic overrides are not supported")
	}

	first := 1
	wantsCtx := mt.NumIn() > 1 && mt.In(1) == contextType
	if wantsCtx {
		first = 2
	}

	params := make([]reflect.Type, 0, mt.NumIn()-first)
	for i := first; i < mt.NumIn(); i++ {
		p := mt.In(i)
		if !marshalable(p) {
			return nil, unsupported("parameter %d of type %s has no host representation", i-first, p)
		}
		params = append(params, p)
	}

	nout := mt.NumOut()
	fallible := nout > 0 && mt.Out(nout-1) == errorType
	if fallible {
		nout--
	}
	if nout > 1 {
		return nil, unsupported("overrides return at most one value")
	}
	returns := nout == 1
	if returns && !marshalable(mt.Out(0)) {
		return nil, unsupported("result type %s has no host representation", mt.Out(0))
	}

	fn := m.Func
	return func(ctx context.Context, self any, args []variant.Variant) (variant.Variant, error) {
		rv := reflect.ValueOf(self)
		if rv.Type() != recv {
			return variant.Variant{}, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
				Class(class).
				Path(name).
				GoType(rv.Type().String()).
				Detail("receiver is not a %s", recv).
				Build()
		}
		if len(args) != len(params) {
			return variant.Variant{}, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
				Class(class).
				Path(name).
				Detail("takes %d argument(s), got %d", len(params), len(args)).
				Build()
		}

		in := make([]reflect.Value, 0, len(params)+2)
		in = append(in, rv)
		if wantsCtx {
			in = append(in, reflect.ValueOf(&ctx).Elem())
		}
		for i, p := range params {
			v, err := variant.FromHost(args[i], p)
			if err != nil {
				if e, ok := err.(*errors.Error); ok {
					e.Class = class
					e.Path = append([]string{name, "arg" + strconv.Itoa(i)}, e.Path...)
				}
				return variant.Variant{}, err
			}
			in = append(in, v)
		}

		out := fn.Call(in)
		if fallible {
			if e := out[len(out)-1]; !e.IsNil() {
				return variant.Variant{}, e.Interface().(error)
			}
		}
		if returns {
			return variant.ToHost(out[0])
		}
		return variant.Variant{}, nil
	}, nil
}
