package class

import (
	"slices"

	"github.com/wippyai/classbridge/variant"
)

// ConstructorKind selects how a class builds its composite from a base handle.
type ConstructorKind uint8

const (
	// Generated builds the composite field-wise from zero values.
	Generated ConstructorKind = iota
	// UserDefined calls a user factory with the base handle.
	UserDefined
)

func (k ConstructorKind) String() string {
	switch k {
	case Generated:
		return "generated"
	case UserDefined:
		return "user_defined"
	}
	return "unknown"
}

// Field is one exposed property of a class.
type Field struct {
	Name string
	// Tag is Nil for variant.Variant fields, which accept any value.
	Tag variant.Tag
	// Optional marks an Object field that may stay null, which gives it a
	// default for Generated construction.
	Optional bool
}

// Descriptor is the host-facing shape of a registered class.
type Descriptor struct {
	Name        string
	Base        string
	GoType      string
	Fields      []Field
	Virtuals    []string
	Constructor ConstructorKind
	Teardown    bool
}

// Field returns the named field.
func (d Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Overrides reports whether the class itself declares the virtual.
func (d Descriptor) Overrides(virtual string) bool {
	_, ok := slices.BinarySearch(d.Virtuals, virtual)
	return ok
}

// Equal reports whether two descriptors describe the same class. Registering
// an equal descriptor twice is a no-op.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.Name == o.Name &&
		d.Base == o.Base &&
		d.GoType == o.GoType &&
		d.Constructor == o.Constructor &&
		d.Teardown == o.Teardown &&
		slices.Equal(d.Fields, o.Fields) &&
		slices.Equal(d.Virtuals, o.Virtuals)
}

// Clone returns a deep copy.
func (d Descriptor) Clone() Descriptor {
	d.Fields = slices.Clone(d.Fields)
	d.Virtuals = slices.Clone(d.Virtuals)
	return d
}
