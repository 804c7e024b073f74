package runtime

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/classbridge/class"
	"github.com/wippyai/classbridge/errors"
	"github.com/wippyai/classbridge/variant"
)

func TestSnapshotRestore(t *testing.T) {
	b, _ := newBridge(t, monsterClass(t))
	ctx := context.Background()
	inst, _ := b.New(ctx, "Monster")
	id := inst.ID()

	_ = b.SetField(ctx, id, "name", variant.FromString("ogre"))
	_ = b.SetField(ctx, id, "hitpoints", variant.FromInt(42))

	data, err := b.Snapshot(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	s, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatal(err)
	}
	if s.Class != "Monster" || s.ID != uint64(id) {
		t.Errorf("snapshot header = %s/%d", s.Class, s.ID)
	}

	_ = b.SetField(ctx, id, "hitpoints", variant.FromInt(1))
	if err := b.Restore(ctx, id, data); err != nil {
		t.Fatal(err)
	}
	fields, _ := b.Fields(ctx, id)
	want := map[string]variant.Variant{
		"name":      variant.FromString("ogre"),
		"hitpoints": variant.FromInt(42),
		"level":     variant.FromInt(0),
	}
	if diff := cmp.Diff(want, fields, cmp.Comparer(variant.Variant.Equal)); diff != "" {
		t.Errorf("restored fields (-want +got):\n%s", diff)
	}

	again, _ := b.Snapshot(ctx, id)
	if string(again) != string(data) {
		t.Error("snapshot encoding should be deterministic")
	}
}

func TestRestore_Errors(t *testing.T) {
	spawner := class.MustDerive[Spawner]("Spawner", class.Extends("Node"))
	b, _ := newBridge(t, monsterClass(t), spawner)
	ctx := context.Background()
	m, _ := b.New(ctx, "Monster")
	s, _ := b.New(ctx, "Spawner")

	data, _ := b.Snapshot(ctx, m.ID())
	if err := b.Restore(ctx, s.ID(), data); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("restore across classes: got %v", err)
	}
	if err := b.Restore(ctx, m.ID(), []byte{0xff, 0x00}); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("garbage snapshot: got %v", err)
	}

	stale, _ := MarshalSnapshot(&Snapshot{
		Class: "Monster",
		ID:    uint64(m.ID()),
		Fields: map[string]variant.Variant{
			"hitpoints": variant.FromInt(7),
			"mana":      variant.FromInt(3),
		},
	})
	err := b.Restore(ctx, m.ID(), stale)
	if !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("undeclared field: got %v", err)
	}
	if hp, _ := b.GetField(ctx, m.ID(), "hitpoints"); !hp.Equal(variant.FromInt(7)) {
		t.Errorf("declared fields should still restore, hitpoints = %v", hp)
	}
}

func TestReload_PreservesInstances(t *testing.T) {
	b, engine := newBridge(t, monsterClass(t))
	ctx := context.Background()
	before, _ := b.New(ctx, "Monster")
	id := before.ID()
	_ = b.SetField(ctx, id, "hitpoints", variant.FromInt(42))

	if err := b.Reload(ctx); err != nil {
		t.Fatal(err)
	}

	after, ok := b.Instance(id)
	if !ok {
		t.Fatal("instance lost across reload")
	}
	if after == before {
		t.Error("reload should rebuild the composite")
	}
	if before.State() != Destroyed {
		t.Errorf("old instance state = %v", before.State())
	}
	if hp, _ := b.GetField(ctx, id, "hitpoints"); !hp.Equal(variant.FromInt(42)) {
		t.Errorf("hitpoints = %v, want 42", hp)
	}
	if engine.Live() != 1 {
		t.Errorf("base object should be reused, engine has %d", engine.Live())
	}
	if res := b.InvokeVirtual(ctx, id, "_process", variant.FromFloat(0.1)); res.Status != OK {
		t.Errorf("dispatch after reload: %v %v", res.Status, res.Err)
	}
}

func TestReload_ClassRemoved(t *testing.T) {
	b, engine := newBridge(t, monsterClass(t))
	ctx := context.Background()
	inst, _ := b.New(ctx, "Monster")

	var destroyed int
	cancel := b.Subscribe(ObserverFunc(func(e Event) {
		if e.Type == EventDestroyed && e.ID == inst.ID() {
			destroyed++
		}
	}))
	defer cancel()

	b.extra = nil
	if err := b.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Instance(inst.ID()); ok {
		t.Error("instance of a removed class should be gone")
	}
	if engine.Live() != 0 || destroyed != 1 {
		t.Errorf("live=%d destroyed events=%d", engine.Live(), destroyed)
	}
}

func TestReload_Disabled(t *testing.T) {
	b, _ := newBridge(t, monsterClass(t))
	b.opts.Reload = false
	if err := b.Reload(context.Background()); !errors.IsKind(err, errors.KindUnsupported) {
		t.Errorf("got %v, want unsupported", err)
	}
}
