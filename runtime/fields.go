package runtime

import (
	"context"

	"github.com/wippyai/classbridge"
	"github.com/wippyai/classbridge/class"
	"github.com/wippyai/classbridge/errors"
	"github.com/wippyai/classbridge/variant"
)

// GetField reads a property of the instance backed by id. Fields declared by
// the class chain are read from the composite; any other name is looked up
// among the base object's host properties.
func (b *Bridge) GetField(ctx context.Context, id classbridge.ObjectID, name string) (variant.Variant, error) {
	inst, err := b.lookupInstance(errors.PhaseMarshal, id)
	if err != nil {
		return variant.Variant{}, err
	}

	var out variant.Variant
	err = inst.base.Exclusive(ctx, func(ctx context.Context) error {
		if inst.State() != Constructed {
			return instanceNotFound(errors.PhaseMarshal, id)
		}
		for _, c := range inst.entry.Chain {
			self, ok := class.Upcast(inst.value, c.Type())
			if !ok {
				continue
			}
			v, declared, err := c.Get(self, name)
			if declared {
				out = v
				return err
			}
		}
		v, err := inst.base.Get(ctx, name)
		out = v
		return err
	})
	return out, err
}

// SetField writes a property of the instance backed by id. A value that
// cannot be converted to the field's Go type is rejected with a marshal
// error and the field keeps its previous value.
func (b *Bridge) SetField(ctx context.Context, id classbridge.ObjectID, name string, v variant.Variant) error {
	inst, err := b.lookupInstance(errors.PhaseMarshal, id)
	if err != nil {
		return err
	}

	return inst.base.Exclusive(ctx, func(ctx context.Context) error {
		if inst.State() != Constructed {
			return instanceNotFound(errors.PhaseMarshal, id)
		}
		for _, c := range inst.entry.Chain {
			self, ok := class.Upcast(inst.value, c.Type())
			if !ok {
				continue
			}
			declared, err := c.Set(self, name, v)
			if declared {
				return err
			}
		}
		return inst.base.Set(ctx, name, v)
	})
}

// Fields returns every declared field of the instance, including those of
// registered ancestors. A field declared at several levels reports the most
// derived one.
func (b *Bridge) Fields(ctx context.Context, id classbridge.ObjectID) (map[string]variant.Variant, error) {
	inst, err := b.lookupInstance(errors.PhaseMarshal, id)
	if err != nil {
		return nil, err
	}

	out := make(map[string]variant.Variant)
	err = inst.base.Exclusive(ctx, func(ctx context.Context) error {
		return b.collectFields(inst, out)
	})
	return out, err
}

func (b *Bridge) collectFields(inst *Instance, out map[string]variant.Variant) error {
	for _, c := range inst.entry.Chain {
		self, ok := class.Upcast(inst.value, c.Type())
		if !ok {
			continue
		}
		for _, f := range c.Descriptor().Fields {
			if _, seen := out[f.Name]; seen {
				continue
			}
			v, _, err := c.Get(self, f.Name)
			if err != nil {
				return err
			}
			out[f.Name] = v
		}
	}
	return nil
}
