package host

import (
	"github.com/wippyai/classbridge"
	"github.com/wippyai/classbridge/variant"
)

// objectTable stores live engine objects in a slot array with a free list.
// IDs carry the slot's generation in the high 32 bits so a released ID never
// aliases the next object placed in the same slot.
type objectTable struct {
	entries  []entry
	freeList []uint32
	live     int
}

type entry struct {
	props map[string]variant.Variant
	class *ClassInfo
	refs  int32
	gen   uint32
	valid bool
}

func newObjectTable() *objectTable {
	return &objectTable{
		entries:  make([]entry, 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

func makeID(slot, gen uint32) classbridge.ObjectID {
	return classbridge.ObjectID(uint64(gen)<<32 | uint64(slot+1))
}

func splitID(id classbridge.ObjectID) (slot, gen uint32) {
	return uint32(id) - 1, uint32(uint64(id) >> 32)
}

func (t *objectTable) create(class *ClassInfo, props map[string]variant.Variant) classbridge.ObjectID {
	t.live++

	if len(t.freeList) > 0 {
		slot := t.freeList[len(t.freeList)-1]
		t.freeList = t.freeList[:len(t.freeList)-1]
		e := &t.entries[slot]
		e.gen++
		e.class = class
		e.props = props
		e.refs = 1
		e.valid = true
		return makeID(slot, e.gen)
	}

	t.entries = append(t.entries, entry{class: class, props: props, refs: 1, valid: true})
	return makeID(uint32(len(t.entries)-1), 0)
}

func (t *objectTable) get(id classbridge.ObjectID) (*entry, bool) {
	if id == 0 {
		return nil, false
	}
	slot, gen := splitID(id)
	if int(slot) >= len(t.entries) {
		return nil, false
	}
	e := &t.entries[slot]
	if !e.valid || e.gen != gen {
		return nil, false
	}
	return e, true
}

func (t *objectTable) free(id classbridge.ObjectID) {
	e, ok := t.get(id)
	if !ok {
		return
	}
	slot, _ := splitID(id)
	e.valid = false
	e.props = nil
	e.class = nil
	e.refs = 0
	t.freeList = append(t.freeList, slot)
	t.live--
}

func (t *objectTable) each(fn func(id classbridge.ObjectID, e *entry) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if !e.valid {
			continue
		}
		if !fn(makeID(uint32(i), e.gen), e) {
			return
		}
	}
}
