package runtime

import (
	"context"
	stderrors "errors"
	"slices"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/classbridge"
	"github.com/wippyai/classbridge/class"
	"github.com/wippyai/classbridge/errors"
	"github.com/wippyai/classbridge/registry"
)

// Bridge connects registered classes to a host runtime. It owns the
// registration table and the live-instance map and implements every
// host-initiated operation: enumerate, instantiate, invoke_virtual,
// get_field, set_field and destroy.
type Bridge struct {
	host      classbridge.Host
	table     *registry.Table
	live      map[classbridge.ObjectID]*Instance
	observers map[int]Observer
	extra     []*class.Class
	opts      Options
	nextObs   int
	mu        sync.RWMutex
	obsMu     sync.RWMutex
}

// New creates a bridge for host. Call OnLoad before using it.
func New(host classbridge.Host, opts Options) *Bridge {
	return &Bridge{
		host:      host,
		opts:      opts,
		table:     registry.New(),
		live:      make(map[classbridge.ObjectID]*Instance),
		observers: make(map[int]Observer),
	}
}

// Host returns the host runtime.
func (b *Bridge) Host() classbridge.Host { return b.host }

// Table returns the registration table.
func (b *Bridge) Table() *registry.Table { return b.table }

// Options returns the bridge options.
func (b *Bridge) Options() Options { return b.opts }

// Register adds a class to be registered at the next OnLoad, next to the
// process-wide declarations.
func (b *Bridge) Register(c *class.Class) error {
	if c == nil {
		return errors.InvalidInput(errors.PhaseRegister, "nil class")
	}
	if b.table.Sealed() {
		return errors.New(errors.PhaseRegister, errors.KindSealed).
			Class(c.Name()).
			Detail("bridge already loaded").
			Build()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.extra = append(b.extra, c)
	return nil
}

// OnLoad runs every registration and seals the table. Registration errors
// are collected and returned together; classes that failed are not
// instantiable, everything else is.
func (b *Bridge) OnLoad(ctx context.Context) error {
	if b.table.Sealed() {
		return errors.New(errors.PhaseLoad, errors.KindSealed).Detail("already loaded").Build()
	}

	var errs errors.RegistrationErrors
	var classes []*class.Class
	if b.opts.Declarations {
		declared, err := registry.Declarations()
		errs.Add(err)
		classes = declared
	}

	b.mu.RLock()
	classes = append(classes, b.extra...)
	b.mu.RUnlock()

	errs.Add(b.table.RegisterAll(classes))
	errs.Add(b.table.Seal(ctx, b.host))

	log := Logger()
	log.Info("classes loaded",
		zap.Int("registered", b.table.Len()),
		zap.Int("errors", errs.Len()))
	if errs.Len() > 0 {
		log.Warn("registration errors", zap.Strings("classes", errs.Classes()), zap.Error(&errs))
	}
	return errs.Err()
}

// OnUnload destroys every live instance and empties the table.
func (b *Bridge) OnUnload(ctx context.Context) error {
	var errs []error
	for _, id := range b.LiveIDs() {
		if err := b.Destroy(ctx, id); err != nil && !errors.IsKind(err, errors.KindNotFound) {
			errs = append(errs, err)
		}
	}
	b.table.UnregisterAll()
	Logger().Info("classes unloaded")
	if len(errs) > 0 {
		return errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, stderrors.Join(errs...), "unload")
	}
	return nil
}

// Enumerate returns the registered class descriptors in registration order.
func (b *Bridge) Enumerate() []class.Descriptor {
	return b.table.Descriptors()
}

// Lookup returns the sealed entry for a class.
func (b *Bridge) Lookup(name string) (*registry.Entry, bool) {
	return b.table.Lookup(name)
}

// Instance returns the live instance on a base object.
func (b *Bridge) Instance(id classbridge.ObjectID) (*Instance, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	inst, ok := b.live[id]
	if !ok || inst.State() != Constructed {
		return nil, false
	}
	return inst, true
}

// LiveIDs returns the ids of constructed instances in ascending order.
func (b *Bridge) LiveIDs() []classbridge.ObjectID {
	b.mu.RLock()
	ids := make([]classbridge.ObjectID, 0, len(b.live))
	for id, inst := range b.live {
		if inst.State() == Constructed {
			ids = append(ids, id)
		}
	}
	b.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

func (b *Bridge) lookupInstance(phase errors.Phase, id classbridge.ObjectID) (*Instance, error) {
	inst, ok := b.Instance(id)
	if !ok {
		return nil, instanceNotFound(phase, id)
	}
	return inst, nil
}

func instanceNotFound(phase errors.Phase, id classbridge.ObjectID) *errors.Error {
	return errors.NotFound(phase, "instance", strconv.FormatUint(uint64(id), 10))
}
