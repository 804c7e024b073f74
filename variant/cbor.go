package variant

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses canonical encoding so equal values always produce equal
// bytes, which lets snapshots be compared and hashed.
var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("variant: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

type wire struct {
	Dict  map[string]Variant `cbor:"7,keyasint,omitempty"`
	S     string             `cbor:"4,keyasint,omitempty"`
	Items []Variant          `cbor:"6,keyasint,omitempty"`
	V     []float32          `cbor:"5,keyasint,omitempty"`
	F     float64            `cbor:"3,keyasint,omitempty"`
	N     int64              `cbor:"2,keyasint,omitempty"`
	Tag   Tag                `cbor:"1,keyasint"`
}

var vecLen = map[Tag]int{Vector2: 2, Vector3: 3, Color: 4}

// MarshalCBOR encodes the value with its tag.
func (v Variant) MarshalCBOR() ([]byte, error) {
	w := wire{Tag: v.tag}
	switch v.tag {
	case Bool, Int, Object:
		w.N = v.n
	case Float:
		w.F = v.f
	case String:
		w.S = v.s
	case Vector2, Vector3, Color:
		w.V = v.v[:vecLen[v.tag]]
	case Array:
		w.Items = v.items
	case Dictionary:
		w.Dict = v.dict
	}
	return encMode.Marshal(w)
}

// UnmarshalCBOR decodes a value written by MarshalCBOR.
func (v *Variant) UnmarshalCBOR(data []byte) error {
	var w wire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("variant: unmarshal: %w", err)
	}
	if !w.Tag.Valid() {
		return fmt.Errorf("variant: unmarshal: unknown tag %d", uint8(w.Tag))
	}

	out := Variant{tag: w.Tag}
	switch w.Tag {
	case Bool:
		if w.N != 0 {
			out.n = 1
		}
	case Int, Object:
		out.n = w.N
	case Float:
		out.f = w.F
	case String:
		out.s = w.S
	case Vector2, Vector3, Color:
		if len(w.V) != vecLen[w.Tag] {
			return fmt.Errorf("variant: unmarshal: %s needs %d components, got %d", w.Tag, vecLen[w.Tag], len(w.V))
		}
		copy(out.v[:], w.V)
	case Array:
		out.items = w.Items
		if out.items == nil {
			out.items = []Variant{}
		}
	case Dictionary:
		out.dict = w.Dict
		if out.dict == nil {
			out.dict = map[string]Variant{}
		}
	}
	*v = out
	return nil
}
