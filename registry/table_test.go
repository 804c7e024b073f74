package registry

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/classbridge/class"
	"github.com/wippyai/classbridge/errors"
	"github.com/wippyai/classbridge/host"
)

type Monster struct {
	class.Object
	Name      string
	Hitpoints int64
}

type Boss struct {
	Monster
	Rage float64
}

type Impostor struct {
	class.Object
	Hitpoints int64
}

type Orphan struct{ class.Object }

type Minion struct{ Orphan }

type Ping struct{ class.Object }

type Pong struct{ class.Object }

func mustClass(t *testing.T, c *class.Class, err error) *class.Class {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestTable_RegisterIdempotent(t *testing.T) {
	tbl := New()
	a := mustClass(t, class.Derive[Monster]("Monster", class.Extends("Node3D")))
	b := mustClass(t, class.Derive[Monster]("Monster", class.Extends("Node3D")))
	c := mustClass(t, class.Derive[Monster]("Monster", class.Extends("Node2D")))

	if err := tbl.Register(a); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Register(b); err != nil {
		t.Errorf("identical re-register: %v", err)
	}
	if err := tbl.Register(c); !errors.IsKind(err, errors.KindDuplicateClass) {
		t.Errorf("got %v, want duplicate_class", err)
	}
	if err := tbl.Seal(context.Background(), host.New()); err != nil {
		t.Fatal(err)
	}

	e, ok := tbl.Lookup("Monster")
	if !ok || e.Class != a {
		t.Error("first registration should win")
	}
	if tbl.Len() != 1 {
		t.Errorf("Len = %d, want 1", tbl.Len())
	}
}

func TestTable_Seal(t *testing.T) {
	tbl := New()
	classes := []*class.Class{
		mustClass(t, class.Derive[Boss]("Boss", class.Extends("Monster"))),
		mustClass(t, class.Derive[Monster]("Monster", class.Extends("Node3D"))),
		mustClass(t, class.Derive[Impostor]("Impostor", class.Extends("Monster"))),
		mustClass(t, class.Derive[Orphan]("Orphan", class.Extends("Missing"))),
		mustClass(t, class.Derive[Minion]("Minion", class.Extends("Orphan"))),
		mustClass(t, class.Derive[Ping]("Ping", class.Extends("Pong"))),
		mustClass(t, class.Derive[Pong]("Pong", class.Extends("Ping"))),
		mustClass(t, class.Derive[Ping]("Node", class.Extends("Object"))),
	}
	if err := tbl.RegisterAll(classes); err != nil {
		t.Fatal(err)
	}

	err := tbl.Seal(context.Background(), host.New())
	if err == nil {
		t.Fatal("expected seal errors")
	}
	for _, kind := range []errors.Kind{errors.KindUnknownBase, errors.KindCycle, errors.KindIncompatibleBase, errors.KindDuplicateClass} {
		if !errors.IsKind(err, kind) {
			t.Errorf("seal error missing %s: %v", kind, err)
		}
	}

	if diff := cmp.Diff([]string{"Boss", "Monster"}, tbl.Names()); diff != "" {
		t.Errorf("sealed classes (-want +got):\n%s", diff)
	}

	boss, ok := tbl.Lookup("Boss")
	if !ok {
		t.Fatal("Boss should be sealed")
	}
	if boss.Native != "Node3D" {
		t.Errorf("Boss native = %q, want Node3D", boss.Native)
	}
	if len(boss.Chain) != 2 || boss.Chain[1].Name() != "Monster" {
		t.Errorf("Boss chain = %v", boss.Chain)
	}

	for _, name := range []string{"Orphan", "Minion", "Ping", "Pong", "Impostor"} {
		if _, ok := tbl.Lookup(name); ok {
			t.Errorf("%s should have been dropped", name)
		}
	}
}

func TestTable_Sealed(t *testing.T) {
	tbl := New()
	if _, ok := tbl.Lookup("Monster"); ok {
		t.Fatal("nothing is visible before seal")
	}
	if err := tbl.Seal(context.Background(), host.New()); err != nil {
		t.Fatal(err)
	}
	if !tbl.Sealed() {
		t.Fatal("table should be sealed")
	}

	c := mustClass(t, class.Derive[Monster]("Monster", class.Extends("Node3D")))
	if err := tbl.Register(c); !errors.IsKind(err, errors.KindSealed) {
		t.Errorf("register after seal: got %v, want sealed", err)
	}
	if err := tbl.Seal(context.Background(), host.New()); !errors.IsKind(err, errors.KindSealed) {
		t.Errorf("second seal: got %v, want sealed", err)
	}

	tbl.UnregisterAll()
	if tbl.Sealed() || tbl.Len() != 0 {
		t.Error("UnregisterAll should return to the registration phase")
	}
	if err := tbl.Register(c); err != nil {
		t.Errorf("register after unregister_all: %v", err)
	}
}

func TestTable_ConcurrentLookups(t *testing.T) {
	tbl := New()
	if err := tbl.RegisterAll([]*class.Class{
		mustClass(t, class.Derive[Monster]("Monster", class.Extends("Node3D"))),
		mustClass(t, class.Derive[Boss]("Boss", class.Extends("Monster"))),
	}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Seal(context.Background(), host.New()); err != nil {
		t.Fatal(err)
	}

	want := tbl.Descriptors()
	results := make([][]class.Descriptor, 32)

	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			var got []class.Descriptor
			for _, name := range []string{"Monster", "Boss"} {
				e, ok := tbl.Lookup(name)
				if !ok {
					return errors.NotFound(errors.PhaseRegister, "class", name)
				}
				got = append(got, e.Class.Descriptor())
			}
			results[i] = got
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for i, got := range results {
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("reader %d saw different descriptors (-want +got):\n%s", i, diff)
		}
	}
}

func TestDeclarations(t *testing.T) {
	ResetDeclarations()
	defer ResetDeclarations()

	DeclareType[Monster]("Monster", class.Extends("Node3D"))
	DeclareType[Impostor]("Impostor", class.Extends("Node3D"), class.Override("_hit", "Hit"))
	Declare(class.Build[Boss]("Boss").Extends("Monster").Field("rage", "Rage").Class())

	classes, err := Declarations()
	if !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("declaration error not kept: %v", err)
	}
	if len(classes) != 2 || classes[0].Name() != "Monster" || classes[1].Name() != "Boss" {
		t.Errorf("declared classes = %v", classes)
	}
}
