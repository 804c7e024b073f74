package runtime

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/classbridge"
	"github.com/wippyai/classbridge/class"
	"github.com/wippyai/classbridge/errors"
	"github.com/wippyai/classbridge/host"
	"github.com/wippyai/classbridge/variant"
)

type Monster struct {
	class.Object
	Name      string
	Hitpoints int64
	Level     uint8
	ticks     int
}

func (m *Monster) Process(ctx context.Context, delta float64) {
	m.ticks++
}

func (m *Monster) Ready(ctx context.Context) error {
	_, err := m.Base().Call(ctx, "translate", variant.FromVec3(variant.Vec3{Y: 1}))
	return err
}

type Boss struct {
	Monster
	Rage float64
}

type Spawner struct {
	class.Object
	dropped *atomic.Int32
}

func (s *Spawner) Drop(context.Context) {
	if s.dropped != nil {
		s.dropped.Add(1)
	}
}

func newBridge(t *testing.T, classes ...*class.Class) (*Bridge, *host.Engine) {
	t.Helper()
	engine := host.New()
	opts := DefaultOptions()
	opts.Declarations = false
	b := New(engine, opts)
	for _, c := range classes {
		if err := b.Register(c); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.OnLoad(context.Background()); err != nil {
		t.Fatal(err)
	}
	return b, engine
}

func monsterClass(t *testing.T, opts ...class.Option) *class.Class {
	t.Helper()
	c, err := class.Derive[Monster]("Monster", append([]class.Option{class.Extends("Node3D")}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestScenario_GeneratedMonster(t *testing.T) {
	b, engine := newBridge(t, monsterClass(t))
	ctx := context.Background()

	base, err := engine.Allocate(ctx, "Node3D")
	if err != nil {
		t.Fatal(err)
	}
	inst, err := b.Instantiate(ctx, "Monster", base)
	if err != nil {
		t.Fatal(err)
	}
	if inst.ID() != base || inst.State() != Constructed {
		t.Fatalf("instance = %v/%v", inst.ID(), inst.State())
	}

	name, err := b.GetField(ctx, base, "name")
	if err != nil || !name.Equal(variant.FromString("")) {
		t.Errorf("name = %v, %v; want empty string", name, err)
	}
	hp, err := b.GetField(ctx, base, "hitpoints")
	if err != nil || !hp.Equal(variant.FromInt(0)) {
		t.Errorf("hitpoints = %v, %v; want 0", hp, err)
	}

	if err := b.SetField(ctx, base, "hitpoints", variant.FromInt(100)); err != nil {
		t.Fatal(err)
	}
	hp, err = b.GetField(ctx, base, "hitpoints")
	if err != nil || !hp.Equal(variant.FromInt(100)) {
		t.Errorf("hitpoints = %v, %v; want 100", hp, err)
	}
	if got := inst.Value().(*Monster).Hitpoints; got != 100 {
		t.Errorf("Go field = %d, want 100", got)
	}
}

func TestScenario_UserDefinedConstructor(t *testing.T) {
	c := monsterClass(t, class.Constructor(func(_ context.Context, base *class.Base) (*Monster, error) {
		return &Monster{Hitpoints: 100}, nil
	}))
	b, _ := newBridge(t, c)
	ctx := context.Background()

	inst, err := b.New(ctx, "Monster")
	if err != nil {
		t.Fatal(err)
	}
	hp, err := b.GetField(ctx, inst.ID(), "hitpoints")
	if err != nil || !hp.Equal(variant.FromInt(100)) {
		t.Errorf("hitpoints = %v, %v; want 100", hp, err)
	}
	if inst.Value().(*Monster).Base() != inst.Base() {
		t.Error("constructor result should be bound to the base handle")
	}
}

func TestDestroy_ThenNotFound(t *testing.T) {
	b, engine := newBridge(t, monsterClass(t))
	ctx := context.Background()

	var events []EventType
	cancel := b.Subscribe(ObserverFunc(func(e Event) { events = append(events, e.Type) }))
	defer cancel()

	inst, err := b.New(ctx, "Monster")
	if err != nil {
		t.Fatal(err)
	}
	id := inst.ID()
	held := inst.Value().(*Monster)

	if err := b.Destroy(ctx, id); err != nil {
		t.Fatal(err)
	}

	if _, err := b.GetField(ctx, id, "hitpoints"); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("get_field after destroy: got %v, want not_found", err)
	}
	if res := b.InvokeVirtual(ctx, id, "_process", variant.FromFloat(1)); res.Status != NotFound {
		t.Errorf("invoke_virtual after destroy: status %v", res.Status)
	}
	if err := b.Destroy(ctx, id); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("double destroy: got %v", err)
	}
	if engine.Live() != 0 {
		t.Errorf("engine still has %d objects", engine.Live())
	}
	if _, err := held.Base().Get(ctx, "visible"); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("stale base handle: got %v, want not_found", err)
	}
	if inst.State() != Destroyed {
		t.Errorf("state = %v", inst.State())
	}

	if diff := cmp.Diff([]EventType{EventConstructed, EventDestroyed}, events); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestConstructionFailed(t *testing.T) {
	boom := stderrors.New("no spawn point")
	tests := []struct {
		name string
		ctor func(context.Context, *class.Base) (*Monster, error)
	}{
		{"error", func(context.Context, *class.Base) (*Monster, error) { return nil, boom }},
		{"nil", func(context.Context, *class.Base) (*Monster, error) { return nil, nil }},
		{"panic", func(context.Context, *class.Base) (*Monster, error) { panic("constructor exploded") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, engine := newBridge(t, monsterClass(t, class.Constructor(tt.ctor)))
			ctx := context.Background()

			var failed int
			cancel := b.Subscribe(ObserverFunc(func(e Event) {
				if e.Type == EventConstructionFailed {
					failed++
				}
			}))
			defer cancel()

			inst, err := b.New(ctx, "Monster")
			if inst != nil || !errors.IsKind(err, errors.KindConstructionFailed) {
				t.Fatalf("got %v, %v; want construction_failed", inst, err)
			}
			if engine.Live() != 0 {
				t.Errorf("base object leaked: %d live", engine.Live())
			}
			if len(b.LiveIDs()) != 0 {
				t.Errorf("failed instance is visible: %v", b.LiveIDs())
			}
			if failed != 1 {
				t.Errorf("construction_failed events = %d", failed)
			}
		})
	}
}

func TestInstantiate_Checks(t *testing.T) {
	b, engine := newBridge(t, monsterClass(t))
	ctx := context.Background()

	node2d, _ := engine.Allocate(ctx, "Node2D")
	if _, err := b.Instantiate(ctx, "Monster", node2d); !errors.IsKind(err, errors.KindIncompatibleBase) {
		t.Errorf("Node2D base: got %v, want incompatible_base", err)
	}

	body, _ := engine.Allocate(ctx, "CharacterBody3D")
	if _, err := b.Instantiate(ctx, "Monster", body); err != nil {
		t.Errorf("subclass of Node3D should be accepted: %v", err)
	}
	if _, err := b.Instantiate(ctx, "Monster", body); !errors.IsKind(err, errors.KindAlreadyBound) {
		t.Errorf("second instantiate: got %v, want already_bound", err)
	}

	if _, err := b.Instantiate(ctx, "Ghost", body); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("unknown class: got %v", err)
	}
	if _, err := b.Instantiate(ctx, "Monster", 9999); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("unknown base: got %v", err)
	}

	unloaded := New(engine, DefaultOptions())
	if _, err := unloaded.New(ctx, "Monster"); !errors.IsKind(err, errors.KindNotInitialized) {
		t.Errorf("before OnLoad: got %v, want not_initialized", err)
	}
}

func TestFields_MarshalErrorLeavesField(t *testing.T) {
	b, _ := newBridge(t, monsterClass(t))
	ctx := context.Background()
	inst, _ := b.New(ctx, "Monster")
	id := inst.ID()

	_ = b.SetField(ctx, id, "hitpoints", variant.FromInt(100))
	_ = b.SetField(ctx, id, "level", variant.FromInt(7))

	if err := b.SetField(ctx, id, "hitpoints", variant.FromString("lots")); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("got %v, want type_mismatch", err)
	}
	if err := b.SetField(ctx, id, "level", variant.FromInt(300)); !errors.IsKind(err, errors.KindOverflow) {
		t.Errorf("got %v, want overflow", err)
	}

	fields, err := b.Fields(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]variant.Variant{
		"name":      variant.FromString(""),
		"hitpoints": variant.FromInt(100),
		"level":     variant.FromInt(7),
	}
	if diff := cmp.Diff(want, fields, cmp.Comparer(variant.Variant.Equal)); diff != "" {
		t.Errorf("fields after failed sets (-want +got):\n%s", diff)
	}
}

func TestFields_HostProperties(t *testing.T) {
	b, _ := newBridge(t, monsterClass(t))
	ctx := context.Background()
	inst, _ := b.New(ctx, "Monster")

	v, err := b.GetField(ctx, inst.ID(), "visible")
	if err != nil || !v.Equal(variant.FromBool(true)) {
		t.Errorf("inherited visible = %v, %v", v, err)
	}
	if err := b.SetField(ctx, inst.ID(), "name", variant.FromString("ogre")); err != nil {
		t.Fatal(err)
	}
	// the class field shadows the host's Node.name property
	if v, _ := inst.Base().Get(ctx, "name"); !v.Equal(variant.FromString("")) {
		t.Errorf("host name = %v, want untouched", v)
	}
	if err := b.SetField(ctx, inst.ID(), "visible", variant.FromInt(1)); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("host property type check: got %v", err)
	}
	if _, err := b.GetField(ctx, inst.ID(), "mana"); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("unknown property: got %v", err)
	}
}

func TestInvokeVirtual(t *testing.T) {
	c, err := class.Build[Monster]("Monster").
		Extends("Node3D").
		Field("hitpoints", "Hitpoints").
		Method("_process", "Process").
		Method("_ready", "Ready").
		Override("hit", func(_ context.Context, m *Monster, args []variant.Variant) (variant.Variant, error) {
			return variant.Variant{}, stderrors.New("immune")
		}).
		Override("explode", func(context.Context, *Monster, []variant.Variant) (variant.Variant, error) {
			panic("kaboom")
		}).
		Class()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := newBridge(t, c)
	ctx := context.Background()
	inst, _ := b.New(ctx, "Monster")
	id := inst.ID()

	tests := []struct {
		method string
		args   []variant.Variant
		status Status
		kind   errors.Kind
	}{
		{"_process", []variant.Variant{variant.FromFloat(0.016)}, OK, ""},
		{"_ready", nil, OK, ""},
		{"_physics_process", []variant.Variant{variant.FromFloat(0.016)}, Default, ""},
		{"hit", nil, NoOp, errors.KindDispatchAbort},
		{"explode", nil, NoOp, errors.KindDispatchAbort},
		{"_process", []variant.Variant{variant.FromString("soon")}, NoOp, errors.KindDispatchAbort},
		{"fly", nil, Failed, errors.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			res := b.InvokeVirtual(ctx, id, tt.method, tt.args...)
			if res.Status != tt.status {
				t.Fatalf("status = %v, want %v (err %v)", res.Status, tt.status, res.Err)
			}
			if tt.kind != "" && !errors.IsKind(res.Err, tt.kind) {
				t.Errorf("err = %v, want kind %s", res.Err, tt.kind)
			}
		})
	}

	m := inst.Value().(*Monster)
	if m.ticks != 1 {
		t.Errorf("ticks = %d, want 1", m.ticks)
	}
	pos, _ := inst.Base().Get(ctx, "position")
	if !pos.Equal(variant.FromVec3(variant.Vec3{Y: 1})) {
		t.Errorf("_ready should translate through the base, position = %v", pos)
	}
	if res := b.InvokeVirtual(ctx, id, "_to_string"); res.Status != Default {
		t.Errorf("_to_string should reach the host default, got %v", res.Status)
	}
}

func TestInvokeVirtual_RecoverPanicsOff(t *testing.T) {
	c, _ := class.Build[Monster]("Monster").
		Extends("Node3D").
		Override("explode", func(context.Context, *Monster, []variant.Variant) (variant.Variant, error) {
			panic("kaboom")
		}).
		Class()

	engine := host.New()
	opts := Options{RecoverPanics: false}
	b := New(engine, opts)
	_ = b.Register(c)
	if err := b.OnLoad(context.Background()); err != nil {
		t.Fatal(err)
	}
	inst, _ := b.New(context.Background(), "Monster")

	defer func() {
		if r := recover(); r != "kaboom" {
			t.Errorf("recovered %v, want the override's panic", r)
		}
	}()
	b.InvokeVirtual(context.Background(), inst.ID(), "explode")
	t.Error("panic should propagate")
}

func TestInvokeVirtual_LateBinding(t *testing.T) {
	var bossReady int
	boss, err := class.Build[Boss]("Boss").
		Extends("Monster").
		Field("rage", "Rage").
		Override("_ready", func(_ context.Context, b *Boss, _ []variant.Variant) (variant.Variant, error) {
			bossReady++
			return variant.Variant{}, nil
		}).
		Class()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := newBridge(t, monsterClass(t), boss)
	ctx := context.Background()

	inst, err := b.New(ctx, "Boss")
	if err != nil {
		t.Fatal(err)
	}
	if inst.Native() != "Node3D" {
		t.Errorf("Boss base = %s, want Node3D", inst.Native())
	}

	if res := b.InvokeVirtual(ctx, inst.ID(), "_process", variant.FromFloat(0.1)); res.Status != OK {
		t.Fatalf("_process: %v %v", res.Status, res.Err)
	}
	if got := inst.Value().(*Boss).ticks; got != 1 {
		t.Errorf("Monster's _process should run on the embedded Monster, ticks = %d", got)
	}

	if res := b.InvokeVirtual(ctx, inst.ID(), "_ready"); res.Status != OK || bossReady != 1 {
		t.Errorf("Boss's own _ready should win: %v, calls=%d", res.Status, bossReady)
	}

	if err := b.SetField(ctx, inst.ID(), "hitpoints", variant.FromInt(500)); err != nil {
		t.Fatalf("inherited field: %v", err)
	}
	if err := b.SetField(ctx, inst.ID(), "rage", variant.FromFloat(0.5)); err != nil {
		t.Fatalf("own field: %v", err)
	}
	fields, _ := b.Fields(ctx, inst.ID())
	if len(fields) != 4 || !fields["hitpoints"].Equal(variant.FromInt(500)) {
		t.Errorf("fields = %v", fields)
	}
}

func TestReentrancy(t *testing.T) {
	var nestedErr, destroyErr error
	var nested Result
	c, _ := class.Build[Monster]("Monster").
		Extends("Node3D").
		Field("hitpoints", "Hitpoints").
		Method("_process", "Process").
		Class()

	var b *Bridge
	spawner, _ := class.Build[Spawner]("Spawner").
		Extends("Node").
		Override("_ready", func(ctx context.Context, s *Spawner, _ []variant.Variant) (variant.Variant, error) {
			_, nestedErr = b.New(ctx, "Monster")
			destroyErr = b.Destroy(ctx, s.Base().ID())
			nested = b.InvokeVirtual(ctx, s.Base().ID(), "_to_string")
			return variant.Variant{}, nil
		}).
		Class()

	b, _ = newBridge(t, c, spawner)
	ctx := context.Background()
	inst, err := b.New(ctx, "Spawner")
	if err != nil {
		t.Fatal(err)
	}

	if res := b.InvokeVirtual(ctx, inst.ID(), "_ready"); res.Status != OK {
		t.Fatalf("_ready: %v %v", res.Status, res.Err)
	}
	if !errors.IsKind(nestedErr, errors.KindReentrant) {
		t.Errorf("nested New: got %v, want reentrant", nestedErr)
	}
	if !errors.IsKind(destroyErr, errors.KindReentrant) {
		t.Errorf("nested Destroy: got %v, want reentrant", destroyErr)
	}
	if nested.Status != Default {
		t.Errorf("nested dispatch on the same instance: %v %v", nested.Status, nested.Err)
	}
	if _, ok := b.Instance(inst.ID()); !ok {
		t.Error("instance must survive the rejected destroy")
	}
}

func TestInvokeVirtual_Serialized(t *testing.T) {
	var counter int
	c, _ := class.Build[Monster]("Monster").
		Extends("Node3D").
		Override("_process", func(context.Context, *Monster, []variant.Variant) (variant.Variant, error) {
			v := counter
			counter = v + 1
			return variant.Variant{}, nil
		}).
		Class()
	b, _ := newBridge(t, c)
	ctx := context.Background()
	inst, _ := b.New(ctx, "Monster")

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			if res := b.InvokeVirtual(ctx, inst.ID(), "_process"); res.Status != OK {
				return res.Err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestInvokeVirtual_StaleContext(t *testing.T) {
	var captured context.Context
	var active, peak atomic.Int32
	c, _ := class.Build[Monster]("Monster").
		Extends("Node3D").
		Override("_ready", func(ctx context.Context, _ *Monster, _ []variant.Variant) (variant.Variant, error) {
			captured = ctx
			return variant.Variant{}, nil
		}).
		Override("work", func(context.Context, *Monster, []variant.Variant) (variant.Variant, error) {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			return variant.Variant{}, nil
		}).
		Class()
	b, _ := newBridge(t, c)
	ctx := context.Background()
	inst, err := b.New(ctx, "Monster")
	if err != nil {
		t.Fatal(err)
	}
	if res := b.InvokeVirtual(ctx, inst.ID(), "_ready"); res.Status != OK {
		t.Fatalf("_ready: %v %v", res.Status, res.Err)
	}
	if class.Dispatching(captured) {
		t.Fatal("context from a finished dispatch still reports dispatching")
	}

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error { return b.InvokeVirtual(ctx, inst.ID(), "work").Err })
		g.Go(func() error { return b.InvokeVirtual(captured, inst.ID(), "work").Err })
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := peak.Load(); got != 1 {
		t.Errorf("max concurrent overrides on one instance = %d, want 1", got)
	}

	if _, err := b.New(captured, "Monster"); err != nil {
		t.Errorf("New with a context from a finished dispatch: %v", err)
	}
}

func TestTeardown(t *testing.T) {
	var dropped atomic.Int32
	c, _ := class.Derive[Spawner]("Spawner",
		class.Extends("Node"),
		class.Constructor(func(context.Context, *class.Base) (*Spawner, error) {
			return &Spawner{dropped: &dropped}, nil
		}))
	b, engine := newBridge(t, c)
	ctx := context.Background()

	first, _ := b.New(ctx, "Spawner")
	second, _ := b.New(ctx, "Spawner")
	if err := b.Destroy(ctx, first.ID()); err != nil {
		t.Fatal(err)
	}
	if dropped.Load() != 1 {
		t.Errorf("Drop calls = %d, want 1", dropped.Load())
	}

	if err := b.OnUnload(ctx); err != nil {
		t.Fatal(err)
	}
	if dropped.Load() != 2 {
		t.Errorf("OnUnload should tear down %v", second.ID())
	}
	if engine.Live() != 0 || len(b.Enumerate()) != 0 {
		t.Errorf("after unload: %d objects, %d classes", engine.Live(), len(b.Enumerate()))
	}
}

func TestTeardown_PanicStillReleases(t *testing.T) {
	c, _ := class.Build[Monster]("Monster").
		Extends("Node3D").
		Teardown(func(context.Context, *Monster) { panic("bad drop") }).
		Class()
	b, engine := newBridge(t, c)
	ctx := context.Background()
	inst, _ := b.New(ctx, "Monster")

	if err := b.Destroy(ctx, inst.ID()); err != nil {
		t.Fatal(err)
	}
	if engine.Live() != 0 {
		t.Error("base object must be released after a panicking teardown")
	}
}

func TestOnLoad_ReportsErrorsOnce(t *testing.T) {
	type orphan struct{ class.Object }

	engine := host.New()
	opts := DefaultOptions()
	opts.Declarations = false
	b := New(engine, opts)
	_ = b.Register(monsterClass(t))
	_ = b.Register(monsterClass(t, class.Extends("Node2D")))
	_ = b.Register(class.MustDerive[orphan]("Orphan", class.Extends("Nowhere")))

	err := b.OnLoad(context.Background())
	var agg *errors.RegistrationErrors
	if !stderrors.As(err, &agg) {
		t.Fatalf("expected aggregated errors, got %v", err)
	}
	if agg.Len() != 2 {
		t.Errorf("Len = %d, want 2: %v", agg.Len(), err)
	}
	if !errors.IsKind(err, errors.KindDuplicateClass) || !errors.IsKind(err, errors.KindUnknownBase) {
		t.Errorf("missing kinds: %v", err)
	}

	names := make([]string, 0)
	for _, d := range b.Enumerate() {
		names = append(names, d.Name)
	}
	if diff := cmp.Diff([]string{"Monster"}, names); diff != "" {
		t.Errorf("enumerate (-want +got):\n%s", diff)
	}
	if _, err := b.New(context.Background(), "Monster"); err != nil {
		t.Errorf("valid class should still be instantiable: %v", err)
	}
	if err := b.OnLoad(context.Background()); !errors.IsKind(err, errors.KindSealed) {
		t.Errorf("second OnLoad: got %v", err)
	}
	if err := b.Register(monsterClass(t)); !errors.IsKind(err, errors.KindSealed) {
		t.Errorf("register after load: got %v", err)
	}
}

func TestIDsAreStable(t *testing.T) {
	b, _ := newBridge(t, monsterClass(t))
	ctx := context.Background()
	inst, _ := b.New(ctx, "Monster")
	want := inst.ID()

	for i := 0; i < 3; i++ {
		b.InvokeVirtual(ctx, want, "_process", variant.FromFloat(0.1))
		_ = b.SetField(ctx, want, "hitpoints", variant.FromInt(int64(i)))
	}
	if inst.ID() != want || inst.Base().ID() != want {
		t.Error("base identity changed")
	}
	if got, ok := b.Instance(want); !ok || got != inst {
		t.Error("lookup by id should return the same instance")
	}
	var _ classbridge.ObjectID = want
}
