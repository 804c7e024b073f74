package wasmhost

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/classbridge"
	"github.com/wippyai/classbridge/class"
	"github.com/wippyai/classbridge/errors"
	"github.com/wippyai/classbridge/host"
	"github.com/wippyai/classbridge/runtime"
	"github.com/wippyai/classbridge/variant"
)

type Slime struct {
	class.Object
	HP    int64 `bridge:"hp"`
	Speed float64
	Jumps int
}

func (s *Slime) Process(ctx context.Context, delta float64) {
	s.Jumps++
}

func (s *Slime) Damage(n int64) int64 {
	s.HP -= n
	return s.HP
}

// guestWasm imports classbridge.class_count, re-exports it as "count" and
// exports one page of memory.
var guestWasm = func() []byte {
	b := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	// type: () -> i32
	b = append(b, 0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f)
	// import "classbridge" "class_count"
	b = append(b, 0x02, 0x1b, 0x01, 0x0b)
	b = append(b, "classbridge"...)
	b = append(b, 0x0b)
	b = append(b, "class_count"...)
	b = append(b, 0x00, 0x00)
	// one function of type 0
	b = append(b, 0x03, 0x02, 0x01, 0x00)
	// memory, min 1 page
	b = append(b, 0x05, 0x03, 0x01, 0x00, 0x01)
	// export "count" func 1, "memory" memory 0
	b = append(b, 0x07, 0x12, 0x02, 0x05)
	b = append(b, "count"...)
	b = append(b, 0x00, 0x01, 0x06)
	b = append(b, "memory"...)
	b = append(b, 0x02, 0x00)
	// code: call 0
	b = append(b, 0x0a, 0x06, 0x01, 0x04, 0x00, 0x10, 0x00, 0x0b)
	return b
}()

type fixture struct {
	bridge *runtime.Bridge
	engine *host.Engine
	exp    *Exporter
	guest  api.Module
	ctx    context.Context
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	engine := host.New()
	opts := runtime.DefaultOptions()
	opts.Declarations = false
	b := runtime.New(engine, opts)
	slime := class.MustDerive[Slime]("Slime", class.Extends("Node"), class.Override("damage", "Damage"))
	if err := b.Register(slime); err != nil {
		t.Fatal(err)
	}
	if err := b.OnLoad(ctx); err != nil {
		t.Fatal(err)
	}

	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { rt.Close(ctx) })

	if _, err := Instantiate(ctx, rt, b); err != nil {
		t.Fatal(err)
	}
	guest, err := rt.Instantiate(ctx, guestWasm)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{bridge: b, engine: engine, exp: NewExporter(b), guest: guest, ctx: ctx}
}

func (f *fixture) str(t *testing.T, ptr uint32, s string) []uint64 {
	t.Helper()
	if !f.guest.Memory().Write(ptr, []byte(s)) {
		t.Fatalf("write %q at %d", s, ptr)
	}
	return []uint64{uint64(ptr), uint64(len(s))}
}

func (f *fixture) spawn(t *testing.T) uint64 {
	t.Helper()
	stack := f.str(t, 0, "Slime")
	f.exp.newObject(f.ctx, f.guest, stack)
	if stack[0] == 0 {
		t.Fatal("new returned 0")
	}
	return stack[0]
}

func TestGuestImports(t *testing.T) {
	f := setup(t)
	res, err := f.guest.ExportedFunction("count").Call(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := api.DecodeI32(res[0]); got != 1 {
		t.Errorf("class_count through the guest = %d, want 1", got)
	}
}

func TestClassName(t *testing.T) {
	f := setup(t)

	stack := []uint64{0, 512, 16}
	f.exp.className(f.ctx, f.guest, stack)
	if n := api.DecodeI32(stack[0]); n != 5 {
		t.Fatalf("length = %d", n)
	}
	name, _ := f.guest.Memory().Read(512, 5)
	if string(name) != "Slime" {
		t.Errorf("name = %q", name)
	}

	stack = []uint64{0, 600, 2}
	f.exp.className(f.ctx, f.guest, stack)
	if n := api.DecodeI32(stack[0]); n != 5 {
		t.Errorf("short buffer should still report the length, got %d", n)
	}
	if b, _ := f.guest.Memory().Read(600, 2); string(b) != "\x00\x00" {
		t.Errorf("short buffer was written: %q", b)
	}

	stack = []uint64{api.EncodeI32(3), 512, 16}
	f.exp.className(f.ctx, f.guest, stack)
	if n := api.DecodeI32(stack[0]); n != -1 {
		t.Errorf("out of range = %d, want -1", n)
	}
}

func TestFields(t *testing.T) {
	f := setup(t)
	id := f.spawn(t)

	name := f.str(t, 16, "hp")
	stack := []uint64{id, name[0], name[1], api.EncodeI64(30)}
	f.exp.setInt(f.ctx, f.guest, stack)
	if Status(stack[0]) != StatusOK {
		t.Fatalf("set_int: %v", Status(stack[0]))
	}

	stack = []uint64{id, name[0], name[1], 64}
	f.exp.getInt(f.ctx, f.guest, stack)
	if Status(stack[0]) != StatusOK {
		t.Fatalf("get_int: %v", Status(stack[0]))
	}
	if n, _ := f.guest.Memory().ReadUint64Le(64); n != 30 {
		t.Errorf("hp = %d, want 30", n)
	}

	speed := f.str(t, 32, "speed")
	stack = []uint64{id, speed[0], speed[1], api.EncodeF64(1.5)}
	f.exp.setFloat(f.ctx, f.guest, stack)
	if Status(stack[0]) != StatusOK {
		t.Fatalf("set_float: %v", Status(stack[0]))
	}
	stack = []uint64{id, speed[0], speed[1], 72}
	f.exp.getFloat(f.ctx, f.guest, stack)
	if v, _ := f.guest.Memory().ReadFloat64Le(72); Status(stack[0]) != StatusOK || v != 1.5 {
		t.Errorf("get_float = %v %v", Status(stack[0]), v)
	}

	tests := []struct {
		name  string
		field string
		fn    func(context.Context, api.Module, []uint64)
		arg   uint64
		want  Status
	}{
		{"float read of int field", "hp", f.exp.getFloat, 80, StatusMarshal},
		{"unknown property", "mana", f.exp.setInt, 1, StatusNotFound},
		{"host property", "process_mode", f.exp.setInt, 2, StatusOK},
		{"host property wrong type", "name", f.exp.setInt, 2, StatusMarshal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := f.str(t, 128, tt.field)
			stack := []uint64{id, s[0], s[1], tt.arg}
			tt.fn(f.ctx, f.guest, stack)
			if got := Status(stack[0]); got != tt.want {
				t.Errorf("status = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCall(t *testing.T) {
	f := setup(t)
	id := f.spawn(t)
	ctx := context.Background()
	if err := f.bridge.SetField(ctx, classbridge.ObjectID(id), "hp", variant.FromInt(30)); err != nil {
		t.Fatal(err)
	}

	call := func(method string, args []byte, capacity uint32) Status {
		m := f.str(t, 96, method)
		if !f.guest.Memory().Write(128, args) {
			t.Fatal("write args")
		}
		stack := []uint64{id, m[0], m[1], 128, uint64(len(args)), 256, uint64(capacity)}
		f.exp.call(f.ctx, f.guest, stack)
		return Status(stack[0])
	}

	args, err := EncodeArgs(variant.FromInt(5))
	if err != nil {
		t.Fatal(err)
	}
	if s := call("damage", args, 64); s != StatusOK {
		t.Fatalf("damage: %v", s)
	}
	buf, _ := f.guest.Memory().Read(256, 64)
	v, err := DecodeResult(buf)
	if err != nil || !v.Equal(variant.FromInt(25)) {
		t.Errorf("result = %v, %v; want 25", v, err)
	}

	if s := call("damage", args, 4); s != StatusShort {
		t.Errorf("tiny buffer: %v", s)
	}
	bad, _ := EncodeArgs(variant.FromString("lots"))
	if s := call("damage", bad, 64); s != StatusAbort {
		t.Errorf("bad argument: %v", s)
	}
	if s := call("damage", []byte{0xff}, 64); s != StatusMarshal {
		t.Errorf("garbage arguments: %v", s)
	}
	none, _ := EncodeArgs()
	if s := call("fly", none, 64); s != StatusNotFound {
		t.Errorf("unknown method: %v", s)
	}
	if s := call("get_class", nil, 64); s != StatusOK {
		t.Errorf("host default: %v", s)
	}
	buf, _ = f.guest.Memory().Read(256, 64)
	if v, _ := DecodeResult(buf); !v.Equal(variant.FromString("Node")) {
		t.Errorf("get_class = %v", v)
	}

	m := f.str(t, 96, "_process")
	stack := []uint64{id, m[0], m[1], api.EncodeF64(0.016)}
	f.exp.callF64(f.ctx, f.guest, stack)
	if Status(stack[0]) != StatusOK {
		t.Fatalf("call_f64: %v", Status(stack[0]))
	}
	jumps, _ := f.bridge.GetField(ctx, classbridge.ObjectID(id), "jumps")
	if !jumps.Equal(variant.FromInt(1)) {
		t.Errorf("jumps = %v", jumps)
	}
}

func TestLifecycle(t *testing.T) {
	f := setup(t)
	id := f.spawn(t)

	stack := []uint64{id}
	f.exp.destroy(f.ctx, f.guest, stack)
	if Status(stack[0]) != StatusOK {
		t.Fatalf("destroy: %v", Status(stack[0]))
	}
	stack = []uint64{id}
	f.exp.destroy(f.ctx, f.guest, stack)
	if Status(stack[0]) != StatusNotFound {
		t.Errorf("second destroy: %v", Status(stack[0]))
	}

	stack = f.str(t, 0, "Ghost")
	f.exp.newObject(f.ctx, f.guest, stack)
	if stack[0] != 0 {
		t.Errorf("unknown class returned id %d", stack[0])
	}

	base, _ := f.engine.Allocate(f.ctx, "Timer")
	s := f.str(t, 0, "Slime")
	stack = []uint64{s[0], s[1], uint64(base)}
	f.exp.instantiate(f.ctx, f.guest, stack)
	if Status(stack[0]) != StatusOK {
		t.Errorf("instantiate on Timer: %v", Status(stack[0]))
	}

	res, _ := f.engine.Allocate(f.ctx, "Resource")
	stack = []uint64{s[0], s[1], uint64(res)}
	f.exp.instantiate(f.ctx, f.guest, stack)
	if Status(stack[0]) != StatusFailed {
		t.Errorf("instantiate on Resource: %v", Status(stack[0]))
	}

	stack = []uint64{0, 1 << 20}
	f.exp.newObject(f.ctx, f.guest, stack)
	if stack[0] != 0 {
		t.Error("out of bounds name should fail")
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want Status
	}{
		{nil, StatusOK},
		{errors.NotFound(errors.PhaseDispatch, "instance", "1"), StatusNotFound},
		{errors.Overflow([]string{"hp"}, 300, "uint8"), StatusMarshal},
		{errors.New(errors.PhaseMarshal, errors.KindNoDefault).Class("Slime").Path("target").Build(), StatusMarshal},
		{errors.DispatchAbort("Slime", "_ready", nil), StatusAbort},
		{errors.InvalidInput(errors.PhaseHost, "bad"), StatusInvalid},
		{errors.ConstructionFailed("Slime", nil), StatusFailed},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
