package variant

import (
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/wippyai/classbridge/errors"
)

var (
	variantType  = reflect.TypeOf(Variant{})
	vec2Type     = reflect.TypeOf(Vec2{})
	vec3Type     = reflect.TypeOf(Vec3{})
	rgbaType     = reflect.TypeOf(RGBA{})
	objectIDType = reflect.TypeOf(ObjectID(0))
)

// TagOf returns the host tag for a Go type. Only types with a total
// Go-to-host conversion are accepted: uint, uint64 and uintptr are rejected
// because their upper range has no host representation.
func TagOf(t reflect.Type) (Tag, bool) {
	switch t {
	case vec2Type:
		return Vector2, true
	case vec3Type:
		return Vector3, true
	case rgbaType:
		return Color, true
	case objectIDType:
		return Object, true
	}

	switch t.Kind() {
	case reflect.Bool:
		return Bool, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return Int, true
	case reflect.Float32, reflect.Float64:
		return Float, true
	case reflect.String:
		return String, true
	case reflect.Slice:
		if t.Elem() == variantType {
			return Array, true
		}
		if _, ok := TagOf(t.Elem()); ok {
			return Array, true
		}
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return Nil, false
		}
		if t.Elem() == variantType {
			return Dictionary, true
		}
		if _, ok := TagOf(t.Elem()); ok {
			return Dictionary, true
		}
	}
	return Nil, false
}

// ToHost converts a Go value to its host representation. It fails only for
// types TagOf rejects. Nil slices and maps become Nil.
func ToHost(rv reflect.Value) (Variant, error) {
	return toHost(rv, nil)
}

func toHost(rv reflect.Value, path []string) (Variant, error) {
	if !rv.IsValid() {
		return Variant{}, nil
	}

	switch rv.Type() {
	case variantType:
		return rv.Interface().(Variant), nil
	case vec2Type:
		return FromVec2(rv.Interface().(Vec2)), nil
	case vec3Type:
		return FromVec3(rv.Interface().(Vec3)), nil
	case rgbaType:
		return FromColor(rv.Interface().(RGBA)), nil
	case objectIDType:
		return FromObject(ObjectID(rv.Uint())), nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		return FromBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return FromInt(rv.Int()), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return FromInt(int64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return FromFloat(rv.Float()), nil
	case reflect.String:
		return FromString(rv.String()), nil
	case reflect.Slice:
		if _, ok := TagOf(rv.Type()); !ok {
			break
		}
		if rv.IsNil() {
			return Variant{}, nil
		}
		items := make([]Variant, rv.Len())
		for i := range items {
			item, err := toHost(rv.Index(i), appendPath(path, strconv.Itoa(i)))
			if err != nil {
				return Variant{}, err
			}
			items[i] = item
		}
		return Variant{tag: Array, items: items}, nil
	case reflect.Map:
		if _, ok := TagOf(rv.Type()); !ok {
			break
		}
		if rv.IsNil() {
			return Variant{}, nil
		}
		dict := make(map[string]Variant, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			item, err := toHost(iter.Value(), appendPath(path, key))
			if err != nil {
				return Variant{}, err
			}
			dict[key] = item
		}
		return Variant{tag: Dictionary, dict: dict}, nil
	}

	return Variant{}, errors.New(errors.PhaseMarshal, errors.KindUnsupported).
		Path(path...).
		GoType(rv.Type().String()).
		Detail("no host representation").
		Build()
}

// FromHost converts a host value into a new Go value of type t. The
// conversion is partial: tag mismatches and out-of-range numbers fail with a
// marshal error and nothing is written anywhere.
func FromHost(v Variant, t reflect.Type) (reflect.Value, error) {
	return fromHost(v, t, nil)
}

func fromHost(v Variant, t reflect.Type, path []string) (reflect.Value, error) {
	out := reflect.New(t).Elem()

	switch t {
	case variantType:
		out.Set(reflect.ValueOf(v))
		return out, nil
	case vec2Type, vec3Type, rgbaType:
		want, _ := TagOf(t)
		if v.tag != want {
			return out, mismatch(path, t, v)
		}
		switch want {
		case Vector2:
			vv, _ := v.AsVec2()
			out.Set(reflect.ValueOf(vv))
		case Vector3:
			vv, _ := v.AsVec3()
			out.Set(reflect.ValueOf(vv))
		default:
			vv, _ := v.AsColor()
			out.Set(reflect.ValueOf(vv))
		}
		return out, nil
	case objectIDType:
		switch v.tag {
		case Nil:
			return out, nil
		case Object:
			out.SetUint(uint64(v.n))
			return out, nil
		}
		return out, mismatch(path, t, v)
	}

	switch t.Kind() {
	case reflect.Bool:
		if v.tag != Bool {
			return out, mismatch(path, t, v)
		}
		out.SetBool(v.n != 0)
		return out, nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := integral(v, t, path)
		if err != nil {
			return out, err
		}
		if out.OverflowInt(n) {
			return out, errors.Overflow(path, n, t.String())
		}
		out.SetInt(n)
		return out, nil

	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		n, err := integral(v, t, path)
		if err != nil {
			return out, err
		}
		if n < 0 || out.OverflowUint(uint64(n)) {
			return out, errors.Overflow(path, n, t.String())
		}
		out.SetUint(uint64(n))
		return out, nil

	case reflect.Float32, reflect.Float64:
		var f float64
		switch v.tag {
		case Float:
			f = v.f
		case Int:
			f = float64(v.n)
		default:
			return out, mismatch(path, t, v)
		}
		if !math.IsInf(f, 0) && !math.IsNaN(f) && out.OverflowFloat(f) {
			return out, errors.Overflow(path, f, t.String())
		}
		out.SetFloat(f)
		return out, nil

	case reflect.String:
		if v.tag != String {
			return out, mismatch(path, t, v)
		}
		out.SetString(v.s)
		return out, nil

	case reflect.Slice:
		if _, ok := TagOf(t); !ok {
			break
		}
		if v.tag == Nil {
			return out, nil
		}
		if v.tag != Array {
			return out, mismatch(path, t, v)
		}
		slice := reflect.MakeSlice(t, len(v.items), len(v.items))
		for i, item := range v.items {
			ev, err := fromHost(item, t.Elem(), appendPath(path, strconv.Itoa(i)))
			if err != nil {
				return out, err
			}
			slice.Index(i).Set(ev)
		}
		return slice, nil

	case reflect.Map:
		if _, ok := TagOf(t); !ok {
			break
		}
		if v.tag == Nil {
			return out, nil
		}
		if v.tag != Dictionary {
			return out, mismatch(path, t, v)
		}
		m := reflect.MakeMapWithSize(t, len(v.dict))
		for k, item := range v.dict {
			ev, err := fromHost(item, t.Elem(), appendPath(path, k))
			if err != nil {
				return out, err
			}
			m.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), ev)
		}
		return m, nil
	}

	return out, errors.New(errors.PhaseMarshal, errors.KindUnsupported).
		Path(path...).
		GoType(t.String()).
		Detail("no host representation").
		Build()
}

// integral extracts an int64 from an Int or an integral Float.
func integral(v Variant, t reflect.Type, path []string) (int64, error) {
	switch v.tag {
	case Int:
		return v.n, nil
	case Float:
		if v.f != math.Trunc(v.f) || math.IsInf(v.f, 0) {
			return 0, errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
				Path(path...).
				GoType(t.String()).
				HostType(Float.String()).
				Value(v.f).
				Detail("%v is not integral", v.f).
				Build()
		}
		if v.f < math.MinInt64 || v.f >= math.MaxInt64 {
			return 0, errors.Overflow(path, v.f, t.String())
		}
		return int64(v.f), nil
	}
	return 0, mismatch(path, t, v)
}

func mismatch(path []string, t reflect.Type, v Variant) *errors.Error {
	return errors.TypeMismatch(path, t.String(), v.tag.String())
}

func appendPath(path []string, seg string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, seg)
}

// Of converts a Go value to a Variant.
func Of[T any](v T) (Variant, error) {
	return ToHost(reflect.ValueOf(&v).Elem())
}

// To converts a Variant to a Go value of type T.
func To[T any](v Variant) (T, error) {
	var zero T
	rv, err := FromHost(v, reflect.TypeOf(&zero).Elem())
	if err != nil {
		return zero, err
	}
	return rv.Interface().(T), nil
}

// Parse reads a textual scalar value for the given tag, as typed into a
// console or a config file. Vectors and colors are comma separated.
func Parse(tag Tag, text string) (Variant, error) {
	text = strings.TrimSpace(text)
	switch tag {
	case Nil:
		return Variant{}, nil
	case Bool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Variant{}, errors.Wrap(errors.PhaseMarshal, errors.KindTypeMismatch, err, "parse bool")
		}
		return FromBool(b), nil
	case Int:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Variant{}, errors.Wrap(errors.PhaseMarshal, errors.KindTypeMismatch, err, "parse int")
		}
		return FromInt(n), nil
	case Float:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Variant{}, errors.Wrap(errors.PhaseMarshal, errors.KindTypeMismatch, err, "parse float")
		}
		return FromFloat(f), nil
	case String:
		return FromString(text), nil
	case Vector2, Vector3, Color:
		want := map[Tag]int{Vector2: 2, Vector3: 3, Color: 4}[tag]
		parts := strings.Split(strings.Trim(text, "()"), ",")
		if len(parts) != want {
			return Variant{}, errors.InvalidInput(errors.PhaseMarshal, "expected "+strconv.Itoa(want)+" components for "+tag.String())
		}
		var c [4]float32
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
			if err != nil {
				return Variant{}, errors.Wrap(errors.PhaseMarshal, errors.KindTypeMismatch, err, "parse "+tag.String())
			}
			c[i] = float32(f)
		}
		return Variant{tag: tag, v: c}, nil
	case Object:
		n, err := strconv.ParseUint(strings.TrimPrefix(text, "#"), 10, 64)
		if err != nil {
			return Variant{}, errors.Wrap(errors.PhaseMarshal, errors.KindTypeMismatch, err, "parse object id")
		}
		return FromObject(ObjectID(n)), nil
	}
	return Variant{}, errors.Unsupported(errors.PhaseMarshal, "parse "+tag.String())
}
