package registry

import (
	"context"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/classbridge"
	"github.com/wippyai/classbridge/class"
	"github.com/wippyai/classbridge/errors"
)

// Entry is a sealed class with its resolved inheritance.
type Entry struct {
	Class *class.Class
	// Native is the nearest host class in the chain; the base object of
	// every instance is allocated as this class.
	Native string
	// Chain lists the class and its registered ancestors, nearest first.
	Chain []*class.Class
}

type snapshot struct {
	byName map[string]*Entry
	order  []string
}

// Table maps class names to classes. It has two phases: registration
// writes into a locked staging area, then Seal validates everything and
// publishes an immutable snapshot that lookups read without locking.
type Table struct {
	staged map[string]*class.Class
	snap   atomic.Pointer[snapshot]
	order  []string
	mu     sync.Mutex
}

// New creates an empty, unsealed table.
func New() *Table {
	return &Table{staged: make(map[string]*class.Class)}
}

// Register stages a class. Registering an equal descriptor again is a no-op;
// a different descriptor under the same name is a duplicate_class error.
func (t *Table) Register(c *class.Class) error {
	if c == nil {
		return errors.InvalidInput(errors.PhaseRegister, "nil class")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snap.Load() != nil {
		return errors.New(errors.PhaseRegister, errors.KindSealed).
			Class(c.Name()).
			Detail("table is sealed; register during load").
			Build()
	}

	if prev, ok := t.staged[c.Name()]; ok {
		if prev.Descriptor().Equal(c.Descriptor()) {
			return nil
		}
		return errors.DuplicateClass(c.Name())
	}

	t.staged[c.Name()] = c
	t.order = append(t.order, c.Name())
	return nil
}

// RegisterAll registers every class and reports all failures together.
func (t *Table) RegisterAll(classes []*class.Class) error {
	var errs errors.RegistrationErrors
	for _, c := range classes {
		errs.Add(t.Register(c))
	}
	return errs.Err()
}

// Seal resolves every staged class against the host and publishes the
// result. Classes that fail validation, and every class extending them, are
// left out; the rest are sealed regardless. The returned error lists each
// dropped class.
func (t *Table) Seal(ctx context.Context, host classbridge.Host) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snap.Load() != nil {
		return errors.New(errors.PhaseRegister, errors.KindSealed).
			Detail("table already sealed").
			Build()
	}
	if host == nil {
		return errors.NotInitialized(errors.PhaseRegister, "host")
	}

	r := resolver{
		host:    host,
		staged:  t.staged,
		entries: make(map[string]*Entry, len(t.staged)),
		failed:  make(map[string]bool),
	}
	for _, name := range t.order {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "seal interrupted")
		}
		r.resolve(name, nil)
	}

	snap := &snapshot{byName: r.entries}
	for _, name := range t.order {
		if _, ok := r.entries[name]; ok {
			snap.order = append(snap.order, name)
		}
	}
	t.snap.Store(snap)

	log := Logger()
	for _, name := range snap.order {
		e := snap.byName[name]
		log.Debug("class sealed",
			zap.String("class", name),
			zap.String("base", e.Class.Extends()),
			zap.String("native", e.Native),
			zap.Int("depth", len(e.Chain)))
	}
	for _, e := range r.errs.Errors {
		log.Warn("class dropped", zap.String("class", e.Class), zap.Error(e))
	}

	return r.errs.Err()
}

type resolver struct {
	host    classbridge.Host
	staged  map[string]*class.Class
	entries map[string]*Entry
	failed  map[string]bool
	errs    errors.RegistrationErrors
}

// resolve returns the entry for name, or nil when it or an ancestor fails.
// path holds the registered classes currently being resolved.
func (r *resolver) resolve(name string, path []string) *Entry {
	if e, ok := r.entries[name]; ok {
		return e
	}
	if r.failed[name] {
		return nil
	}

	c := r.staged[name]
	if slices.Contains(path, name) {
		cycle := append(slices.Clone(path[slices.Index(path, name):]), name)
		r.fail(name, errors.Cycle(name, cycle))
		return nil
	}

	if r.host.HasClass(name) {
		r.fail(name, errors.New(errors.PhaseRegister, errors.KindDuplicateClass).
			Class(name).
			Detail("name is already a host class").
			Build())
		return nil
	}

	base := c.Extends()
	if _, registered := r.staged[base]; registered {
		parent := r.resolve(base, append(path, name))
		if parent == nil {
			if !r.failed[name] {
				r.fail(name, errors.New(errors.PhaseRegister, errors.KindUnknownBase).
					Class(name).
					Value(base).
					Detail("base %q failed registration", base).
					Build())
			}
			return nil
		}
		if _, ok := class.Upcast(reflect.New(c.Type()).Interface(), parent.Class.Type()); !ok {
			r.fail(name, errors.New(errors.PhaseRegister, errors.KindIncompatibleBase).
				Class(name).
				GoType(c.Type().String()).
				Detail("%s must embed %s to extend %s", c.Type(), parent.Class.Type(), base).
				Build())
			return nil
		}
		e := &Entry{
			Class:  c,
			Native: parent.Native,
			Chain:  append([]*class.Class{c}, parent.Chain...),
		}
		r.entries[name] = e
		return e
	}

	if !r.host.HasClass(base) {
		r.fail(name, errors.UnknownBase(name, base))
		return nil
	}
	e := &Entry{Class: c, Native: base, Chain: []*class.Class{c}}
	r.entries[name] = e
	return e
}

func (r *resolver) fail(name string, err *errors.Error) {
	r.failed[name] = true
	r.errs.Add(err)
}

// Lookup returns the sealed entry for name. Before Seal nothing is visible.
func (t *Table) Lookup(name string) (*Entry, bool) {
	s := t.snap.Load()
	if s == nil {
		return nil, false
	}
	e, ok := s.byName[name]
	return e, ok
}

// Descriptors returns copies of every sealed descriptor in registration order.
func (t *Table) Descriptors() []class.Descriptor {
	s := t.snap.Load()
	if s == nil {
		return nil
	}
	out := make([]class.Descriptor, len(s.order))
	for i, name := range s.order {
		out[i] = s.byName[name].Class.Descriptor()
	}
	return out
}

// Names returns sealed class names in registration order.
func (t *Table) Names() []string {
	s := t.snap.Load()
	if s == nil {
		return nil
	}
	return slices.Clone(s.order)
}

// Len returns the number of sealed classes.
func (t *Table) Len() int {
	s := t.snap.Load()
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Sealed reports whether lookups are being served.
func (t *Table) Sealed() bool {
	return t.snap.Load() != nil
}

// UnregisterAll empties the table and returns it to the registration phase.
func (t *Table) UnregisterAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Store(nil)
	t.staged = make(map[string]*class.Class)
	t.order = nil
}
