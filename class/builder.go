package class

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/wippyai/classbridge"
	"github.com/wippyai/classbridge/errors"
	"github.com/wippyai/classbridge/variant"
)

var objectType = reflect.TypeFor[Object]()

// Builder assembles a Class for Go type T without reading struct tags. It is
// the API generated registration code targets; Derive is built on it.
type Builder[T any] struct {
	typ       reflect.Type
	methods   map[string]Method
	construct func(ctx context.Context, base *Base) (*T, error)
	teardown  func(ctx context.Context, self *T)
	name      string
	base      string
	fields    []binding
	errs      errors.RegistrationErrors
}

// Build starts a class named name backed by T.
func Build[T any](name string) *Builder[T] {
	return &Builder[T]{
		name:    name,
		base:    classbridge.RootClass,
		typ:     reflect.TypeFor[T](),
		methods: make(map[string]Method),
	}
}

// Extends sets the parent class, a host class or another registered class.
func (b *Builder[T]) Extends(base string) *Builder[T] {
	b.base = base
	return b
}

// Field exposes the Go field goField under name.
func (b *Builder[T]) Field(name, goField string) *Builder[T] {
	return b.field(name, goField, false)
}

// OptionalField exposes an Object field that may stay null.
func (b *Builder[T]) OptionalField(name, goField string) *Builder[T] {
	return b.field(name, goField, true)
}

func (b *Builder[T]) field(name, goField string, optional bool) *Builder[T] {
	if b.typ.Kind() != reflect.Struct {
		return b
	}
	sf, ok := b.typ.FieldByName(goField)
	if !ok || !sf.IsExported() {
		b.errs.Add(errors.New(errors.PhaseDescribe, errors.KindNotFound).
			Class(b.name).
			Path(name).
			GoType(b.typ.String()).
			Detail("no exported field %s", goField).
			Build())
		return b
	}
	b.add(name, sf, optional)
	return b
}

func (b *Builder[T]) add(name string, sf reflect.StructField, optional bool) {
	switch {
	case name == "":
		b.errs.Add(errors.New(errors.PhaseDescribe, errors.KindInvalidInput).
			Class(b.name).
			GoType(sf.Type.String()).
			Detail("field %s has an empty name", sf.Name).
			Build())
		return
	case Reserved(name):
		b.errs.Add(errors.ReservedName(b.name, name))
		return
	}
	for _, f := range b.fields {
		if f.Name == name {
			b.errs.Add(errors.New(errors.PhaseDescribe, errors.KindDuplicateField).
				Class(b.name).
				Path(name).
				Detail("field %q declared twice", name).
				Build())
			return
		}
	}

	tag, ok := variant.TagOf(sf.Type)
	if !ok && sf.Type == variantType {
		tag, ok = variant.Nil, true
	}
	if !ok {
		b.errs.Add(errors.New(errors.PhaseDescribe, errors.KindUnsupported).
			Class(b.name).
			Path(name).
			GoType(sf.Type.String()).
			Detail("field type has no host representation").
			Build())
		return
	}

	b.fields = append(b.fields, binding{
		Field: Field{Name: name, Tag: tag, Optional: optional && tag == variant.Object},
		typ:   sf.Type,
		index: sf.Index,
	})
}

// Override installs fn as the class's implementation of virtual.
func (b *Builder[T]) Override(virtual string, fn func(ctx context.Context, self *T, args []variant.Variant) (variant.Variant, error)) *Builder[T] {
	if fn == nil {
		b.errs.Add(errors.InvalidInput(errors.PhaseDescribe, "nil override for "+virtual))
		return b
	}
	class := b.name
	return b.override(virtual, func(ctx context.Context, self any, args []variant.Variant) (variant.Variant, error) {
		t, ok := self.(*T)
		if !ok {
			return variant.Variant{}, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
				Class(class).
				Path(virtual).
				GoType(fmt.Sprintf("%T", self)).
				Build()
		}
		return fn(ctx, t, args)
	})
}

// Method binds the Go method goMethod on *T to virtual.
func (b *Builder[T]) Method(virtual, goMethod string) *Builder[T] {
	m, err := bindMethod(b.name, reflect.PointerTo(b.typ), goMethod)
	if err != nil {
		b.errs.Add(err)
		return b
	}
	return b.override(virtual, m)
}

func (b *Builder[T]) override(virtual string, m Method) *Builder[T] {
	if virtual == "" {
		b.errs.Add(errors.InvalidInput(errors.PhaseDescribe, "empty virtual method name"))
		return b
	}
	if _, dup := b.methods[virtual]; dup {
		b.errs.Add(errors.New(errors.PhaseDescribe, errors.KindInvalidInput).
			Class(b.name).
			Path(virtual).
			Detail("virtual %s overridden twice", virtual).
			Build())
		return b
	}
	b.methods[virtual] = m
	return b
}

// Construct installs a user-defined constructor. Without one the class uses
// Generated construction.
func (b *Builder[T]) Construct(fn func(ctx context.Context, base *Base) (*T, error)) *Builder[T] {
	b.construct = fn
	return b
}

// Teardown installs a hook run before the base object is released. Types
// implementing Dropper get one automatically.
func (b *Builder[T]) Teardown(fn func(ctx context.Context, self *T)) *Builder[T] {
	b.teardown = fn
	return b
}

// Class validates everything collected so far and returns the class, or all
// problems found as a *errors.RegistrationErrors.
func (b *Builder[T]) Class() (*Class, error) {
	errs := errors.RegistrationErrors{Errors: slices.Clone(b.errs.Errors)}
	if b.name == "" {
		errs.Add(errors.InvalidInput(errors.PhaseDescribe, "class name is empty"))
	}
	if b.base == "" {
		errs.Add(errors.UnknownBase(b.name, ""))
	}
	if b.base == b.name && b.name != "" {
		errs.Add(errors.Cycle(b.name, []string{b.name, b.name}))
	}
	if b.typ.Kind() != reflect.Struct {
		errs.Add(errors.New(errors.PhaseDescribe, errors.KindUnsupported).
			Class(b.name).
			GoType(b.typ.String()).
			Detail("classes must be backed by a struct type").
			Build())
		return nil, errs.Err()
	}

	slots := objectSlots(b.typ)
	if len(slots) > 1 {
		errs.Add(errors.New(errors.PhaseDescribe, errors.KindInvalidInput).
			Class(b.name).
			GoType(b.typ.String()).
			Detail("%d Object slots embedded, want at most one", len(slots)).
			Build())
	}

	kind := Generated
	if b.construct != nil {
		kind = UserDefined
	}
	if kind == Generated {
		for _, f := range b.fields {
			if f.Tag == variant.Object && !f.Optional {
				errs.Add(errors.NoDefault(b.name, f.Name, f.typ.String()))
			}
		}
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}

	c := &Class{
		typ:     b.typ,
		methods: make(map[string]Method, len(b.methods)),
		byName:  make(map[string]int, len(b.fields)),
		fields:  slices.Clone(b.fields),
		desc: Descriptor{
			Name:        b.name,
			Base:        b.base,
			GoType:      b.typ.String(),
			Constructor: kind,
		},
	}
	if len(slots) == 1 {
		c.slot = slots[0]
	}

	for i, f := range c.fields {
		c.byName[f.Name] = i
		c.desc.Fields = append(c.desc.Fields, f.Field)
	}
	for v, m := range b.methods {
		c.methods[v] = m
		c.desc.Virtuals = append(c.desc.Virtuals, v)
	}
	slices.Sort(c.desc.Virtuals)

	if fn := b.construct; fn != nil {
		c.construct = func(ctx context.Context, base *Base) (reflect.Value, error) {
			t, err := fn(ctx, base)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(t), nil
		}
	}

	switch {
	case b.teardown != nil:
		fn := b.teardown
		c.teardown = func(ctx context.Context, self any) { fn(ctx, self.(*T)) }
	case reflect.PointerTo(b.typ).Implements(reflect.TypeFor[Dropper]()):
		c.teardown = func(ctx context.Context, self any) { self.(Dropper).Drop(ctx) }
	}
	c.desc.Teardown = c.teardown != nil

	return c, nil
}

// objectSlots returns the index path of every Object embedded by value,
// directly or through other embedded structs.
func objectSlots(t reflect.Type) [][]int {
	var out [][]int
	var walk func(t reflect.Type, prefix []int)
	walk = func(t reflect.Type, prefix []int) {
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.Anonymous || !sf.IsExported() || sf.Type.Kind() != reflect.Struct {
				continue
			}
			path := append(slices.Clone(prefix), i)
			if sf.Type == objectType {
				out = append(out, path)
				continue
			}
			walk(sf.Type, path)
		}
	}
	walk(t, nil)
	return out
}
