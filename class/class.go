package class

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wippyai/classbridge/errors"
	"github.com/wippyai/classbridge/variant"
)

// Method is an override as the dispatch bridge sees it. self is the
// composite pointer of the class that declared the override.
type Method func(ctx context.Context, self any, args []variant.Variant) (variant.Variant, error)

// Dropper is implemented by composites that need a teardown hook. Drop runs
// with exclusive access before the base object is released.
type Dropper interface {
	Drop(ctx context.Context)
}

type binding struct {
	Field
	typ   reflect.Type
	index []int
}

// Class is a descriptor bound to the Go type that implements it.
type Class struct {
	typ       reflect.Type
	methods   map[string]Method
	byName    map[string]int
	construct func(ctx context.Context, base *Base) (reflect.Value, error)
	teardown  func(ctx context.Context, self any)
	slot      []int
	fields    []binding
	desc      Descriptor
}

func (c *Class) Name() string { return c.desc.Name }

// Extends returns the parent class name.
func (c *Class) Extends() string { return c.desc.Base }

// Descriptor returns a copy of the class descriptor.
func (c *Class) Descriptor() Descriptor { return c.desc.Clone() }

// Type returns the composite struct type.
func (c *Class) Type() reflect.Type { return c.typ }

// HasSlot reports whether the composite embeds an Object slot.
func (c *Class) HasSlot() bool { return c.slot != nil }

// Method returns the override this class declares for virtual.
func (c *Class) Method(virtual string) (Method, bool) {
	m, ok := c.methods[virtual]
	return m, ok
}

// Field returns the declared field.
func (c *Class) Field(name string) (Field, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Field{}, false
	}
	return c.fields[i].Field, true
}

// New builds the composite around base. The base is claimed before any user
// code runs, so a handle can be bound into at most one composite.
func (c *Class) New(ctx context.Context, base *Base) (any, error) {
	if base == nil {
		return nil, errors.NotInitialized(errors.PhaseConstruct, "base handle")
	}
	if !base.claim() {
		return nil, alreadyBound(c.desc.Name, base)
	}

	var ptr reflect.Value
	if c.construct == nil {
		ptr = reflect.New(c.typ)
	} else {
		var err error
		ptr, err = c.construct(ctx, base)
		if err != nil {
			return nil, errors.ConstructionFailed(c.desc.Name, err)
		}
		if !ptr.IsValid() || ptr.IsNil() {
			return nil, errors.ConstructionFailed(c.desc.Name, fmt.Errorf("constructor returned nil"))
		}
	}

	if c.slot != nil {
		obj := ptr.Elem().FieldByIndex(c.slot).Addr().Interface().(*Object)
		switch obj.base {
		case nil:
			obj.base = base
		case base:
		default:
			return nil, alreadyBound(c.desc.Name, obj.base)
		}
	}
	return ptr.Interface(), nil
}

func alreadyBound(class string, b *Base) *errors.Error {
	return errors.New(errors.PhaseConstruct, errors.KindAlreadyBound).
		Class(class).
		Detail("object %d is already bound to a composite", b.ID()).
		Build()
}

// Get reads a declared field of self, which must be a pointer to this
// class's Go type. ok is false when the class declares no such field.
func (c *Class) Get(self any, name string) (v variant.Variant, ok bool, err error) {
	i, ok := c.byName[name]
	if !ok {
		return variant.Variant{}, false, nil
	}
	rv, err := c.receiver(self)
	if err != nil {
		return variant.Variant{}, true, err
	}
	v, err = variant.ToHost(rv.Elem().FieldByIndex(c.fields[i].index))
	return v, true, c.annotate(err, name)
}

// Set converts v and writes it into a declared field of self. On error the
// field keeps its previous value.
func (c *Class) Set(self any, name string, v variant.Variant) (ok bool, err error) {
	i, ok := c.byName[name]
	if !ok {
		return false, nil
	}
	rv, err := c.receiver(self)
	if err != nil {
		return true, err
	}
	b := c.fields[i]
	if b.Tag == variant.Object && !b.Optional && v.IsNil() {
		return true, errors.New(errors.PhaseMarshal, errors.KindNoDefault).
			Class(c.desc.Name).
			Path(name).
			Detail("field requires a non-null object").
			Build()
	}
	nv, err := variant.FromHost(v, b.typ)
	if err != nil {
		return true, c.annotate(err, name)
	}
	rv.Elem().FieldByIndex(b.index).Set(nv)
	return true, nil
}

func (c *Class) receiver(self any) (reflect.Value, error) {
	rv := reflect.ValueOf(self)
	if rv.Kind() != reflect.Pointer || rv.Type().Elem() != c.typ || rv.IsNil() {
		return reflect.Value{}, errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
			Class(c.desc.Name).
			GoType(fmt.Sprintf("%T", self)).
			Detail("receiver is not a *%s", c.typ).
			Build()
	}
	return rv, nil
}

func (c *Class) annotate(err error, field string) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*errors.Error); ok {
		e.Class = c.desc.Name
		e.Path = append([]string{field}, e.Path...)
		return e
	}
	return err
}

// HasTeardown reports whether the class declares a teardown hook.
func (c *Class) HasTeardown() bool { return c.teardown != nil }

// Drop runs the teardown hook, if any.
func (c *Class) Drop(ctx context.Context, self any) {
	if c.teardown != nil {
		c.teardown(ctx, self)
	}
}

// Upcast finds the value of type to embedded in self, walking anonymous
// struct fields breadth first. It returns self when it already has that type.
func Upcast(self any, to reflect.Type) (any, bool) {
	v := reflect.ValueOf(self)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, false
	}
	if v.Elem().Type() == to {
		return self, true
	}
	if v.Elem().Kind() != reflect.Struct {
		return nil, false
	}

	queue := []reflect.Value{v.Elem()}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		t := cur.Type()
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.Anonymous || !sf.IsExported() {
				continue
			}
			f := cur.Field(i)
			switch {
			case sf.Type == to:
				return f.Addr().Interface(), true
			case sf.Type.Kind() == reflect.Pointer && sf.Type.Elem() == to:
				if !f.IsNil() {
					return f.Interface(), true
				}
			case sf.Type.Kind() == reflect.Struct:
				queue = append(queue, f)
			}
		}
	}
	return nil, false
}
