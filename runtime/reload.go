package runtime

import (
	"context"
	"fmt"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/wippyai/classbridge"
	"github.com/wippyai/classbridge/class"
	"github.com/wippyai/classbridge/errors"
	"github.com/wippyai/classbridge/variant"
)

var snapshotEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("runtime: failed to create CBOR enc mode: %v", err))
	}
	snapshotEncMode = em
}

// Snapshot is the persisted state of one instance: its class and the
// host-visible value of every declared field.
type Snapshot struct {
	Fields map[string]variant.Variant `cbor:"3,keyasint,omitempty"`
	Class  string                     `cbor:"1,keyasint"`
	ID     uint64                     `cbor:"2,keyasint"`
}

// MarshalSnapshot encodes a snapshot in canonical CBOR.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return snapshotEncMode.Marshal(s)
}

// UnmarshalSnapshot decodes a snapshot.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(errors.PhaseMarshal, errors.KindInvalidInput, err, "unmarshal snapshot")
	}
	return &s, nil
}

func (b *Bridge) snapshot(ctx context.Context, id classbridge.ObjectID) (*Snapshot, error) {
	inst, err := b.lookupInstance(errors.PhaseMarshal, id)
	if err != nil {
		return nil, err
	}
	s := &Snapshot{Class: inst.Class(), ID: uint64(id), Fields: make(map[string]variant.Variant)}
	err = inst.base.Exclusive(ctx, func(ctx context.Context) error {
		return b.collectFields(inst, s.Fields)
	})
	return s, err
}

// Snapshot encodes the fields of an instance.
func (b *Bridge) Snapshot(ctx context.Context, id classbridge.ObjectID) ([]byte, error) {
	s, err := b.snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return MarshalSnapshot(s)
}

// Restore writes the fields of a snapshot into the instance backed by id.
// The snapshot must be of the same class. Fields the class no longer
// declares, or whose value no longer converts, are skipped and reported.
func (b *Bridge) Restore(ctx context.Context, id classbridge.ObjectID, data []byte) error {
	s, err := UnmarshalSnapshot(data)
	if err != nil {
		return err
	}
	inst, err := b.lookupInstance(errors.PhaseMarshal, id)
	if err != nil {
		return err
	}
	if s.Class != inst.Class() {
		return errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
			Class(inst.Class()).
			HostType(s.Class).
			Detail("snapshot is of class %s", s.Class).
			Build()
	}
	return b.restore(ctx, id, s)
}

func (b *Bridge) restore(ctx context.Context, id classbridge.ObjectID, s *Snapshot) error {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	slices.Sort(names)

	var errs errors.RegistrationErrors
	inst, err := b.lookupInstance(errors.PhaseMarshal, id)
	if err != nil {
		return err
	}
	for _, name := range names {
		if !declares(inst, name) {
			errs.Add(errors.New(errors.PhaseMarshal, errors.KindNotFound).
				Class(s.Class).
				Path(name).
				Detail("field no longer declared").
				Build())
			continue
		}
		errs.Add(b.SetField(ctx, id, name, s.Fields[name]))
	}
	return errs.Err()
}

func declares(inst *Instance, name string) bool {
	for _, c := range inst.entry.Chain {
		if _, ok := c.Field(name); ok {
			return true
		}
	}
	return false
}

// Reload re-runs registration without losing live objects. Every instance
// is snapshotted and retired (its teardown hook runs, its base object
// stays), the table is emptied and loaded again, and each instance is
// rebuilt on its original base object with its fields restored. Instances
// whose class did not survive the reload have their base object released.
func (b *Bridge) Reload(ctx context.Context) error {
	if !b.opts.Reload {
		return errors.Unsupported(errors.PhaseLoad, "reload is disabled")
	}
	if class.Dispatching(ctx) {
		return errors.Reentrant(errors.PhaseLoad, "reload")
	}

	log := Logger()
	var snaps []*Snapshot
	for _, id := range b.LiveIDs() {
		s, err := b.snapshot(ctx, id)
		if err != nil {
			log.Warn("snapshot failed; fields reset", zap.Uint64("id", uint64(id)), zap.Error(err))
			if inst, ok := b.Instance(id); ok {
				s = &Snapshot{Class: inst.Class(), ID: uint64(id)}
			} else {
				continue
			}
		}
		snaps = append(snaps, s)
	}

	for _, s := range snaps {
		id := classbridge.ObjectID(s.ID)
		b.mu.Lock()
		inst, ok := b.live[id]
		if ok {
			inst.setState(DestroyRequested)
			delete(b.live, id)
		}
		b.mu.Unlock()
		if ok {
			b.retire(ctx, inst)
		}
	}

	b.table.UnregisterAll()
	var errs errors.RegistrationErrors
	errs.Add(b.OnLoad(ctx))

	rebuilt := 0
	for _, s := range snaps {
		id := classbridge.ObjectID(s.ID)
		if _, ok := b.table.Lookup(s.Class); !ok {
			log.Warn("class gone after reload; releasing base", zap.String("class", s.Class), zap.Uint64("id", s.ID))
			if err := b.host.Release(ctx, id); err != nil {
				errs.Add(err)
			}
			b.notify(Event{Type: EventDestroyed, ID: id, Class: s.Class})
			continue
		}
		if _, err := b.Instantiate(ctx, s.Class, id); err != nil {
			errs.Add(err)
			continue
		}
		errs.Add(b.restore(ctx, id, s))
		rebuilt++
	}

	log.Info("reload complete", zap.Int("instances", len(snaps)), zap.Int("rebuilt", rebuilt), zap.Int("errors", errs.Len()))
	return errs.Err()
}
