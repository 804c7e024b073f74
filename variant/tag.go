package variant

import (
	"fmt"
	"strings"

	"go.bytecodealliance.org/wit"
)

// Tag is the closed set of value types that may cross the host boundary.
type Tag uint8

const (
	Nil Tag = iota
	Bool
	Int
	Float
	String
	Vector2
	Vector3
	Color
	Array
	Dictionary
	Object
)

var tagNames = [...]string{
	Nil:        "nil",
	Bool:       "bool",
	Int:        "int",
	Float:      "float",
	String:     "string",
	Vector2:    "vector2",
	Vector3:    "vector3",
	Color:      "color",
	Array:      "array",
	Dictionary: "dictionary",
	Object:     "object",
}

var tagWIT = [...]string{
	Nil:        "_",
	Bool:       "bool",
	Int:        "s64",
	Float:      "f64",
	String:     "string",
	Vector2:    "tuple<f32, f32>",
	Vector3:    "tuple<f32, f32, f32>",
	Color:      "tuple<f32, f32, f32, f32>",
	Array:      "list<variant>",
	Dictionary: "list<tuple<string, variant>>",
	Object:     "borrow<object>",
}

// Tags lists every tag in declaration order.
func Tags() []Tag {
	out := make([]Tag, len(tagNames))
	for i := range tagNames {
		out[i] = Tag(i)
	}
	return out
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// Valid reports whether t is one of the declared tags.
func (t Tag) Valid() bool {
	return int(t) < len(tagNames)
}

// HasDefault reports whether a field of this tag can be default-constructed.
// Object references have no meaningful zero on the host side.
func (t Tag) HasDefault() bool {
	return t.Valid() && t != Object
}

// WIT returns the WIT spelling used when rendering class interfaces.
func (t Tag) WIT() string {
	if int(t) < len(tagWIT) {
		return tagWIT[t]
	}
	return "_"
}

// WITType returns the WIT type for scalar tags, nil otherwise.
func (t Tag) WITType() wit.Type {
	switch t {
	case Bool:
		return wit.Bool{}
	case Int:
		return wit.S64{}
	case Float:
		return wit.F64{}
	case String:
		return wit.String{}
	}
	return nil
}

// ParseTag parses a tag name ("int", "vector3") or a WIT primitive type
// ("s32", "f32", "string"). WIT integer widths all map to Int.
func ParseTag(s string) (Tag, error) {
	s = strings.TrimSpace(s)
	for i, name := range tagNames {
		if strings.EqualFold(s, name) {
			return Tag(i), nil
		}
	}

	t, err := wit.ParseType(s)
	if err != nil {
		return Nil, fmt.Errorf("variant: unknown type %q: %w", s, err)
	}
	return TagOfWIT(t)
}

// TagOfWIT maps a WIT primitive type to its tag.
func TagOfWIT(t wit.Type) (Tag, error) {
	switch t.(type) {
	case wit.Bool:
		return Bool, nil
	case wit.S8, wit.S16, wit.S32, wit.S64, wit.U8, wit.U16, wit.U32:
		return Int, nil
	case wit.F32, wit.F64:
		return Float, nil
	case wit.String, wit.Char:
		return String, nil
	}
	return Nil, fmt.Errorf("variant: WIT type %T has no host tag", t)
}
