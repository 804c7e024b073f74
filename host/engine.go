package host

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/wippyai/classbridge"
	"github.com/wippyai/classbridge/errors"
	"github.com/wippyai/classbridge/variant"
)

// DefaultFunc is the engine's own implementation of a method.
type DefaultFunc func(ctx context.Context, obj *Object, args []variant.Variant) (variant.Variant, error)

// ClassInfo describes one native engine class.
type ClassInfo struct {
	// Properties holds each declared property with its default value. The
	// default's tag is the property type; a Nil default accepts anything.
	Properties map[string]variant.Variant
	Methods    map[string]DefaultFunc
	Name       string
	Parent     string
	RefCounted bool
}

// Object is the view of an engine object handed to default methods. It is
// only valid for the duration of the call.
type Object struct {
	entry *entry
	ID    classbridge.ObjectID
}

func (o *Object) Class() string { return o.entry.class.Name }

// Prop reads a property without type checks.
func (o *Object) Prop(name string) variant.Variant { return o.entry.props[name] }

// SetProp writes a property without type checks.
func (o *Object) SetProp(name string, v variant.Variant) { o.entry.props[name] = v }

// Engine is an in-memory host runtime: a native class tree, an object table
// with reference counts, typed properties and default method behavior. It
// implements classbridge.Host.
type Engine struct {
	classes   map[string]*ClassInfo
	objects   *objectTable
	observers map[int]Observer
	nextObs   int
	mu        sync.Mutex
	obsMu     sync.RWMutex
}

var _ classbridge.Host = (*Engine)(nil)

// New returns an engine preloaded with the standard class tree.
func New() *Engine {
	e := NewEmpty()
	for _, info := range StandardClasses() {
		if err := e.Define(info); err != nil {
			panic(err)
		}
	}
	return e
}

// NewEmpty returns an engine with no classes, not even the root.
func NewEmpty() *Engine {
	return &Engine{
		classes:   make(map[string]*ClassInfo),
		objects:   newObjectTable(),
		observers: make(map[int]Observer),
	}
}

// Define adds a native class. The parent must already be defined, except
// for the root class which has none.
func (e *Engine) Define(info ClassInfo) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if info.Name == "" {
		return errors.InvalidInput(errors.PhaseHost, "class name is empty")
	}
	if _, exists := e.classes[info.Name]; exists {
		return errors.New(errors.PhaseHost, errors.KindDuplicateClass).
			Class(info.Name).
			Detail("native class already defined").
			Build()
	}
	if info.Parent != "" {
		if _, ok := e.classes[info.Parent]; !ok {
			return errors.UnknownBase(info.Name, info.Parent)
		}
	}

	c := info
	c.Properties = maps.Clone(info.Properties)
	c.Methods = maps.Clone(info.Methods)
	e.classes[info.Name] = &c
	return nil
}

// Classes lists native class names in sorted order.
func (e *Engine) Classes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.classes))
}

func (e *Engine) HasClass(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.classes[name]
	return ok
}

func (e *Engine) Parent(name string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.classes[name]
	if !ok || c.Parent == "" {
		return "", false
	}
	return c.Parent, true
}

// Allocate creates an object of a native class with every inherited property
// set to its default and a reference count of one.
func (e *Engine) Allocate(ctx context.Context, class string) (classbridge.ObjectID, error) {
	e.mu.Lock()
	info, ok := e.classes[class]
	if !ok {
		e.mu.Unlock()
		return 0, errors.NotFound(errors.PhaseHost, "class", class)
	}
	props := make(map[string]variant.Variant)
	for c := info; c != nil; c = e.classes[c.Parent] {
		for k, v := range c.Properties {
			if _, shadowed := props[k]; !shadowed {
				props[k] = v
			}
		}
	}
	id := e.objects.create(info, props)
	e.mu.Unlock()

	e.notify(Event{Type: EventAllocated, ID: id, Class: class, Refs: 1})
	return id, nil
}

func (e *Engine) ClassOf(id classbridge.ObjectID) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.objects.get(id)
	if !ok {
		return "", false
	}
	return obj.class.Name, true
}

// Retain adds a reference to a reference-counted object.
func (e *Engine) Retain(id classbridge.ObjectID) error {
	e.mu.Lock()
	obj, ok := e.objects.get(id)
	if !ok {
		e.mu.Unlock()
		return notFound(id)
	}
	if !e.refCounted(obj.class) {
		e.mu.Unlock()
		return errors.New(errors.PhaseHost, errors.KindUnsupported).
			Class(obj.class.Name).
			Detail("class is not reference counted").
			Build()
	}
	obj.refs++
	ev := Event{Type: EventRetained, ID: id, Class: obj.class.Name, Refs: obj.refs}
	e.mu.Unlock()

	e.notify(ev)
	return nil
}

// Release drops one reference from a reference-counted object, freeing it at
// zero. Other objects are freed immediately.
func (e *Engine) Release(ctx context.Context, id classbridge.ObjectID) error {
	e.mu.Lock()
	obj, ok := e.objects.get(id)
	if !ok {
		e.mu.Unlock()
		return notFound(id)
	}
	class := obj.class.Name
	obj.refs--
	refs := obj.refs
	freed := !e.refCounted(obj.class) || refs <= 0
	if freed {
		e.objects.free(id)
		refs = 0
	}
	e.mu.Unlock()

	e.notify(Event{Type: EventReleased, ID: id, Class: class, Refs: refs})
	if freed {
		e.notify(Event{Type: EventFreed, ID: id, Class: class})
	}
	return nil
}

// Live returns the number of allocated objects.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.objects.live
}

// Refs returns the reference count of a live object.
func (e *Engine) Refs(id classbridge.ObjectID) (int32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.objects.get(id)
	if !ok {
		return 0, false
	}
	return obj.refs, true
}

// CallDefault runs the nearest native implementation of method, searching
// from the object's class toward the root.
func (e *Engine) CallDefault(ctx context.Context, id classbridge.ObjectID, method string, args []variant.Variant) (variant.Variant, error) {
	e.mu.Lock()
	obj, ok := e.objects.get(id)
	if !ok {
		e.mu.Unlock()
		return variant.Variant{}, notFound(id)
	}
	var fn DefaultFunc
	for c := obj.class; c != nil && fn == nil; c = e.classes[c.Parent] {
		fn = c.Methods[method]
	}
	class := obj.class.Name
	if fn == nil {
		e.mu.Unlock()
		return variant.Variant{}, errors.New(errors.PhaseHost, errors.KindNotFound).
			Class(class).
			Path(method).
			Detail("no native method %s", method).
			Build()
	}

	// Defaults run under the engine lock and must not call back into it.
	out, err := fn(ctx, &Object{entry: obj, ID: id}, args)
	e.mu.Unlock()

	e.notify(Event{Type: EventDefaultCalled, ID: id, Class: class, Method: method})
	return out, err
}

func (e *Engine) Get(ctx context.Context, id classbridge.ObjectID, property string) (variant.Variant, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	obj, ok := e.objects.get(id)
	if !ok {
		return variant.Variant{}, notFound(id)
	}
	v, ok := obj.props[property]
	if !ok {
		return variant.Variant{}, unknownProperty(obj.class.Name, property)
	}
	return v, nil
}

// Set writes a property. The value must carry the tag of the property's
// default; Int widens to Float.
func (e *Engine) Set(ctx context.Context, id classbridge.ObjectID, property string, v variant.Variant) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	obj, ok := e.objects.get(id)
	if !ok {
		return notFound(id)
	}
	cur, ok := obj.props[property]
	if !ok {
		return unknownProperty(obj.class.Name, property)
	}

	want := e.propertyTag(obj.class, property)
	switch {
	case want == variant.Nil || v.Tag() == want:
	case want == variant.Float && v.Tag() == variant.Int:
		n, _ := v.AsInt()
		v = variant.FromFloat(float64(n))
	case want == variant.Object && v.IsNil():
		v = variant.FromObject(0)
	default:
		return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Class(obj.class.Name).
			Path(property).
			HostType(want.String()).
			Value(v.String()).
			Detail("cannot assign %s to %s property (current %v)", v.Tag(), want, cur).
			Build()
	}
	obj.props[property] = v
	return nil
}

func (e *Engine) propertyTag(c *ClassInfo, property string) variant.Tag {
	for ; c != nil; c = e.classes[c.Parent] {
		if def, ok := c.Properties[property]; ok {
			return def.Tag()
		}
	}
	return variant.Nil
}

func (e *Engine) refCounted(c *ClassInfo) bool {
	for ; c != nil; c = e.classes[c.Parent] {
		if c.RefCounted {
			return true
		}
	}
	return false
}

// Subscribe registers an observer and returns a function that removes it.
func (e *Engine) Subscribe(o Observer) (cancel func()) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	id := e.nextObs
	e.nextObs++
	e.observers[id] = o
	return func() {
		e.obsMu.Lock()
		defer e.obsMu.Unlock()
		delete(e.observers, id)
	}
}

func (e *Engine) notify(ev Event) {
	e.obsMu.RLock()
	defer e.obsMu.RUnlock()
	for _, o := range e.observers {
		o.OnEngineEvent(ev)
	}
}

// Dump renders every live object for diagnostics.
func (e *Engine) Dump() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	e.objects.each(func(id classbridge.ObjectID, obj *entry) bool {
		out = append(out, fmt.Sprintf("#%d %s refs=%d", id, obj.class.Name, obj.refs))
		return true
	})
	return out
}

func notFound(id classbridge.ObjectID) *errors.Error {
	return errors.NotFound(errors.PhaseHost, "object", strconv.FormatUint(uint64(id), 10))
}

func unknownProperty(class, property string) *errors.Error {
	return errors.New(errors.PhaseHost, errors.KindNotFound).
		Class(class).
		Path(property).
		Detail("no property %s", property).
		Build()
}
