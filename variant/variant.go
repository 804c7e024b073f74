package variant

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ObjectID is the host-side identity of an engine object. Zero is the null object.
type ObjectID uint64

// Vec2 is the Go representation of a Vector2 value.
type Vec2 struct{ X, Y float32 }

// Vec3 is the Go representation of a Vector3 value.
type Vec3 struct{ X, Y, Z float32 }

// RGBA is the Go representation of a Color value.
type RGBA struct{ R, G, B, A float32 }

// Variant is an immutable host value. The zero Variant is Nil.
type Variant struct {
	dict  map[string]Variant
	s     string
	items []Variant
	f     float64
	n     int64
	v     [4]float32
	tag   Tag
}

func FromBool(b bool) Variant {
	if b {
		return Variant{tag: Bool, n: 1}
	}
	return Variant{tag: Bool}
}

func FromInt(n int64) Variant { return Variant{tag: Int, n: n} }

func FromFloat(f float64) Variant { return Variant{tag: Float, f: f} }

func FromString(s string) Variant { return Variant{tag: String, s: s} }

func FromVec2(v Vec2) Variant { return Variant{tag: Vector2, v: [4]float32{v.X, v.Y}} }

func FromVec3(v Vec3) Variant { return Variant{tag: Vector3, v: [4]float32{v.X, v.Y, v.Z}} }

func FromColor(c RGBA) Variant { return Variant{tag: Color, v: [4]float32{c.R, c.G, c.B, c.A}} }

func FromObject(id ObjectID) Variant { return Variant{tag: Object, n: int64(id)} }

// FromArray copies items into a new Array value.
func FromArray(items ...Variant) Variant {
	cp := make([]Variant, len(items))
	copy(cp, items)
	return Variant{tag: Array, items: cp}
}

// FromDictionary copies m into a new Dictionary value.
func FromDictionary(m map[string]Variant) Variant {
	cp := make(map[string]Variant, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Variant{tag: Dictionary, dict: cp}
}

func (v Variant) Tag() Tag { return v.tag }

func (v Variant) IsNil() bool { return v.tag == Nil }

func (v Variant) AsBool() (bool, bool) { return v.n != 0, v.tag == Bool }

func (v Variant) AsInt() (int64, bool) { return v.n, v.tag == Int }

func (v Variant) AsFloat() (float64, bool) { return v.f, v.tag == Float }

func (v Variant) AsString() (string, bool) { return v.s, v.tag == String }

func (v Variant) AsVec2() (Vec2, bool) {
	return Vec2{v.v[0], v.v[1]}, v.tag == Vector2
}

func (v Variant) AsVec3() (Vec3, bool) {
	return Vec3{v.v[0], v.v[1], v.v[2]}, v.tag == Vector3
}

func (v Variant) AsColor() (RGBA, bool) {
	return RGBA{v.v[0], v.v[1], v.v[2], v.v[3]}, v.tag == Color
}

func (v Variant) AsObject() (ObjectID, bool) { return ObjectID(v.n), v.tag == Object }

// AsArray returns a copy of the array elements.
func (v Variant) AsArray() ([]Variant, bool) {
	if v.tag != Array {
		return nil, false
	}
	cp := make([]Variant, len(v.items))
	copy(cp, v.items)
	return cp, true
}

// AsDictionary returns a copy of the dictionary entries.
func (v Variant) AsDictionary() (map[string]Variant, bool) {
	if v.tag != Dictionary {
		return nil, false
	}
	cp := make(map[string]Variant, len(v.dict))
	for k, e := range v.dict {
		cp[k] = e
	}
	return cp, true
}

// Len returns the element count of an Array or Dictionary, 0 otherwise.
func (v Variant) Len() int {
	switch v.tag {
	case Array:
		return len(v.items)
	case Dictionary:
		return len(v.dict)
	}
	return 0
}

// Equal reports deep equality. Floats compare by bit pattern so NaN equals itself.
func (v Variant) Equal(o Variant) bool {
	if v.tag != o.tag {
		return false
	}
	switch v.tag {
	case Nil:
		return true
	case Bool, Int, Object:
		return v.n == o.n
	case Float:
		return math.Float64bits(v.f) == math.Float64bits(o.f)
	case String:
		return v.s == o.s
	case Vector2, Vector3, Color:
		for i := range v.v {
			if math.Float32bits(v.v[i]) != math.Float32bits(o.v[i]) {
				return false
			}
		}
		return true
	case Array:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case Dictionary:
		if len(v.dict) != len(o.dict) {
			return false
		}
		for k, e := range v.dict {
			oe, ok := o.dict[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Variant) String() string {
	switch v.tag {
	case Nil:
		return "null"
	case Bool:
		return strconv.FormatBool(v.n != 0)
	case Int:
		return strconv.FormatInt(v.n, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case String:
		return strconv.Quote(v.s)
	case Vector2:
		return fmt.Sprintf("(%g, %g)", v.v[0], v.v[1])
	case Vector3:
		return fmt.Sprintf("(%g, %g, %g)", v.v[0], v.v[1], v.v[2])
	case Color:
		return fmt.Sprintf("(%g, %g, %g, %g)", v.v[0], v.v[1], v.v[2], v.v[3])
	case Object:
		if v.n == 0 {
			return "<null object>"
		}
		return fmt.Sprintf("<object#%d>", v.n)
	case Array:
		parts := make([]string, len(v.items))
		for i, e := range v.items {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Dictionary:
		keys := make([]string, 0, len(v.dict))
		for k := range v.dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ": " + v.dict[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "<invalid>"
}
