package class

import (
	"context"
	"reflect"
	"slices"
	"strings"

	"github.com/wippyai/classbridge/errors"
)

// Option configures Derive.
type Option func(*options)

type options struct {
	construct any
	overrides map[string]string
	base      string
}

// Extends sets the parent class. The default is the host root class.
func Extends(base string) Option {
	return func(o *options) { o.base = base }
}

// Constructor makes the class UserDefined. T must match the derived type.
func Constructor[T any](fn func(ctx context.Context, base *Base) (*T, error)) Option {
	return func(o *options) { o.construct = fn }
}

// Override binds virtual to a Go method that is not in the well-known table,
// or rebinds a well-known virtual to a differently named method.
func Override(virtual, goMethod string) Option {
	return func(o *options) {
		if o.overrides == nil {
			o.overrides = make(map[string]string)
		}
		o.overrides[virtual] = goMethod
	}
}

// Derive builds a Class from T's declaration. Exported fields are exposed
// under their snake_case name unless a `bridge` tag says otherwise:
//
//	Name   string `bridge:"display_name"`
//	Target ObjectID `bridge:"target,optional"`
//	cache  int      // unexported, never exposed
//	Debug  bool     `bridge:"-"`
//
// Embedded structs are not flattened: an embedded parent class keeps its own
// fields and is reached through the class chain. Methods named in the
// well-known virtual table (Ready, Process, ...) become overrides.
func Derive[T any](name string, opts ...Option) (*Class, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	b := Build[T](name)
	if o.base != "" {
		b.Extends(o.base)
	}
	if o.construct != nil {
		fn, ok := o.construct.(func(context.Context, *Base) (*T, error))
		if !ok {
			b.errs.Add(errors.New(errors.PhaseDescribe, errors.KindTypeMismatch).
				Class(name).
				GoType(reflect.TypeOf(o.construct).String()).
				Detail("constructor does not return *%s", reflect.TypeFor[T]()).
				Build())
		} else {
			b.Construct(fn)
		}
	}

	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Struct {
		return b.Class()
	}

	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if sf.Anonymous || !sf.IsExported() {
			continue
		}
		fname, optional, skip := parseTag(sf)
		if skip {
			continue
		}
		b.add(fname, sf, optional)
	}

	ptr := reflect.PointerTo(typ)
	for i := 0; i < ptr.NumMethod(); i++ {
		m := ptr.Method(i)
		virtual, ok := wellKnown[m.Name]
		if !ok {
			continue
		}
		if _, explicit := o.overrides[virtual]; explicit {
			continue
		}
		b.Method(virtual, m.Name)
	}

	virtuals := make([]string, 0, len(o.overrides))
	for v := range o.overrides {
		virtuals = append(virtuals, v)
	}
	slices.Sort(virtuals)
	for _, v := range virtuals {
		b.Method(v, o.overrides[v])
	}

	return b.Class()
}

// MustDerive is Derive for package-level declarations that cannot fail.
func MustDerive[T any](name string, opts ...Option) *Class {
	c, err := Derive[T](name, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func parseTag(sf reflect.StructField) (name string, optional, skip bool) {
	tag, ok := sf.Tag.Lookup("bridge")
	if !ok {
		return SnakeCase(sf.Name), false, false
	}
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = SnakeCase(sf.Name)
	}
	for _, p := range parts[1:] {
		if p == "optional" {
			optional = true
		}
	}
	return name, optional, false
}
