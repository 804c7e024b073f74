package wasmhost

import (
	"context"
	"encoding/binary"

	"github.com/fxamacker/cbor/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/classbridge"
	"github.com/wippyai/classbridge/errors"
	"github.com/wippyai/classbridge/runtime"
	"github.com/wippyai/classbridge/variant"
)

// ModuleName is the import module guests link against.
const ModuleName = "classbridge"

// Status is the i32 result code of a host function.
type Status uint32

const (
	StatusOK Status = iota
	StatusNotFound
	StatusMarshal
	StatusAbort
	StatusFailed
	StatusInvalid
	StatusShort
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusMarshal:
		return "marshal"
	case StatusAbort:
		return "abort"
	case StatusFailed:
		return "failed"
	case StatusInvalid:
		return "invalid"
	case StatusShort:
		return "short"
	}
	return "unknown"
}

// StatusOf maps a bridge error to a status code.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.IsKind(err, errors.KindNotFound):
		return StatusNotFound
	case errors.IsKind(err, errors.KindTypeMismatch), errors.IsKind(err, errors.KindOverflow),
		errors.IsKind(err, errors.KindNoDefault):
		return StatusMarshal
	case errors.IsKind(err, errors.KindDispatchAbort):
		return StatusAbort
	case errors.IsKind(err, errors.KindInvalidInput):
		return StatusInvalid
	}
	return StatusFailed
}

const (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
	f64 = api.ValueTypeF64
)

// Exporter adds the bridge functions to a host module builder.
type Exporter struct {
	bridge *runtime.Bridge
}

// NewExporter returns an exporter for b.
func NewExporter(b *runtime.Bridge) *Exporter {
	return &Exporter{bridge: b}
}

// ExportFunctions defines every bridge function on builder.
func (e *Exporter) ExportFunctions(builder wazero.HostModuleBuilder) {
	export := func(name string, fn api.GoModuleFunc, params, results []api.ValueType) {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(fn, params, results).
			WithName(name).
			Export(name)
	}

	export("class_count", e.classCount, nil, []api.ValueType{i32})
	export("class_name", e.className, []api.ValueType{i32, i32, i32}, []api.ValueType{i32})
	export("new", e.newObject, []api.ValueType{i32, i32}, []api.ValueType{i64})
	export("instantiate", e.instantiate, []api.ValueType{i32, i32, i64}, []api.ValueType{i32})
	export("destroy", e.destroy, []api.ValueType{i64}, []api.ValueType{i32})
	export("get_int", e.getInt, []api.ValueType{i64, i32, i32, i32}, []api.ValueType{i32})
	export("set_int", e.setInt, []api.ValueType{i64, i32, i32, i64}, []api.ValueType{i32})
	export("get_float", e.getFloat, []api.ValueType{i64, i32, i32, i32}, []api.ValueType{i32})
	export("set_float", e.setFloat, []api.ValueType{i64, i32, i32, f64}, []api.ValueType{i32})
	export("call", e.call, []api.ValueType{i64, i32, i32, i32, i32, i32, i32}, []api.ValueType{i32})
	export("call_f64", e.callF64, []api.ValueType{i64, i32, i32, f64}, []api.ValueType{i32})
}

// Instantiate defines and instantiates the classbridge host module in r.
func Instantiate(ctx context.Context, r wazero.Runtime, b *runtime.Bridge) (api.Module, error) {
	builder := r.NewHostModuleBuilder(ModuleName)
	NewExporter(b).ExportFunctions(builder)
	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "instantiate "+ModuleName)
	}
	Logger().Debug("host module instantiated", zap.String("module", ModuleName))
	return mod, nil
}

func readString(mod api.Module, ptr, length uint32) (string, bool) {
	mem := mod.Memory()
	if mem == nil {
		return "", false
	}
	buf, ok := mem.Read(ptr, length)
	if !ok {
		return "", false
	}
	return string(buf), true
}

func status(stack []uint64, s Status) {
	stack[0] = api.EncodeU32(uint32(s))
}

// class_count() -> i32
func (e *Exporter) classCount(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = api.EncodeI32(int32(len(e.bridge.Enumerate())))
}

// class_name(index, buf, cap) -> i32: the name's length, written to buf
// only if it fits; -1 for an index out of range.
func (e *Exporter) className(_ context.Context, mod api.Module, stack []uint64) {
	index := api.DecodeI32(stack[0])
	ptr, capacity := api.DecodeU32(stack[1]), api.DecodeU32(stack[2])

	descs := e.bridge.Enumerate()
	if index < 0 || int(index) >= len(descs) {
		stack[0] = api.EncodeI32(-1)
		return
	}
	name := descs[index].Name
	if uint32(len(name)) <= capacity && mod.Memory() != nil {
		mod.Memory().Write(ptr, []byte(name))
	}
	stack[0] = api.EncodeI32(int32(len(name)))
}

// new(name, len) -> i64: the new object's id, 0 on failure.
func (e *Exporter) newObject(ctx context.Context, mod api.Module, stack []uint64) {
	name, ok := readString(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
	if !ok {
		stack[0] = 0
		return
	}
	inst, err := e.bridge.New(ctx, name)
	if err != nil {
		Logger().Debug("guest new failed", zap.String("class", name), zap.Error(err))
		stack[0] = 0
		return
	}
	stack[0] = uint64(inst.ID())
}

// instantiate(name, len, base) -> status
func (e *Exporter) instantiate(ctx context.Context, mod api.Module, stack []uint64) {
	name, ok := readString(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
	if !ok {
		status(stack, StatusInvalid)
		return
	}
	_, err := e.bridge.Instantiate(ctx, name, classbridge.ObjectID(stack[2]))
	status(stack, StatusOf(err))
}

// destroy(id) -> status
func (e *Exporter) destroy(ctx context.Context, _ api.Module, stack []uint64) {
	status(stack, StatusOf(e.bridge.Destroy(ctx, classbridge.ObjectID(stack[0]))))
}

func (e *Exporter) get(ctx context.Context, mod api.Module, stack []uint64, tag variant.Tag) (variant.Variant, uint32, Status) {
	id := classbridge.ObjectID(stack[0])
	name, ok := readString(mod, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if !ok {
		return variant.Variant{}, 0, StatusInvalid
	}
	v, err := e.bridge.GetField(ctx, id, name)
	if err != nil {
		return v, 0, StatusOf(err)
	}
	if v.Tag() != tag {
		return v, 0, StatusMarshal
	}
	return v, api.DecodeU32(stack[3]), StatusOK
}

// get_int(id, name, len, out) -> status; writes an i64 at out.
func (e *Exporter) getInt(ctx context.Context, mod api.Module, stack []uint64) {
	v, out, s := e.get(ctx, mod, stack, variant.Int)
	if s == StatusOK {
		n, _ := v.AsInt()
		if !mod.Memory().WriteUint64Le(out, uint64(n)) {
			s = StatusInvalid
		}
	}
	status(stack, s)
}

// get_float(id, name, len, out) -> status; writes an f64 at out.
func (e *Exporter) getFloat(ctx context.Context, mod api.Module, stack []uint64) {
	v, out, s := e.get(ctx, mod, stack, variant.Float)
	if s == StatusOK {
		f, _ := v.AsFloat()
		if !mod.Memory().WriteFloat64Le(out, f) {
			s = StatusInvalid
		}
	}
	status(stack, s)
}

func (e *Exporter) set(ctx context.Context, mod api.Module, stack []uint64, v variant.Variant) {
	name, ok := readString(mod, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if !ok {
		status(stack, StatusInvalid)
		return
	}
	status(stack, StatusOf(e.bridge.SetField(ctx, classbridge.ObjectID(stack[0]), name, v)))
}

// set_int(id, name, len, value) -> status
func (e *Exporter) setInt(ctx context.Context, mod api.Module, stack []uint64) {
	e.set(ctx, mod, stack, variant.FromInt(int64(stack[3])))
}

// set_float(id, name, len, value) -> status
func (e *Exporter) setFloat(ctx context.Context, mod api.Module, stack []uint64) {
	e.set(ctx, mod, stack, variant.FromFloat(api.DecodeF64(stack[3])))
}

// call(id, method, len, args, args_len, out, out_cap) -> status
//
// args is a CBOR array of variants (empty for no arguments). The result is
// written at out as a u32 length followed by its CBOR encoding; when it
// does not fit, only the length is written and the status is short.
func (e *Exporter) call(ctx context.Context, mod api.Module, stack []uint64) {
	id := classbridge.ObjectID(stack[0])
	method, ok := readString(mod, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if !ok {
		status(stack, StatusInvalid)
		return
	}

	var args []variant.Variant
	if n := api.DecodeU32(stack[4]); n > 0 {
		raw, ok := mod.Memory().Read(api.DecodeU32(stack[3]), n)
		if !ok {
			status(stack, StatusInvalid)
			return
		}
		if err := cbor.Unmarshal(raw, &args); err != nil {
			Logger().Debug("guest call arguments", zap.String("method", method), zap.Error(err))
			status(stack, StatusMarshal)
			return
		}
	}

	res := e.bridge.InvokeVirtual(ctx, id, method, args...)
	s := resultStatus(res)
	if s != StatusOK {
		status(stack, s)
		return
	}

	data, err := res.Value.MarshalCBOR()
	if err != nil {
		status(stack, StatusMarshal)
		return
	}
	out, capacity := api.DecodeU32(stack[5]), api.DecodeU32(stack[6])
	status(stack, writeResult(mod.Memory(), out, capacity, data))
}

func writeResult(mem api.Memory, out, capacity uint32, data []byte) Status {
	if capacity < 4 || !mem.WriteUint32Le(out, uint32(len(data))) {
		return StatusInvalid
	}
	if uint32(len(data)) > capacity-4 {
		return StatusShort
	}
	if !mem.Write(out+4, data) {
		return StatusInvalid
	}
	return StatusOK
}

// call_f64(id, method, len, arg) -> status; the result is discarded.
func (e *Exporter) callF64(ctx context.Context, mod api.Module, stack []uint64) {
	method, ok := readString(mod, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if !ok {
		status(stack, StatusInvalid)
		return
	}
	res := e.bridge.InvokeVirtual(ctx, classbridge.ObjectID(stack[0]), method, variant.FromFloat(api.DecodeF64(stack[3])))
	status(stack, resultStatus(res))
}

func resultStatus(res runtime.Result) Status {
	switch res.Status {
	case runtime.OK, runtime.Default:
		return StatusOK
	case runtime.NoOp:
		return StatusAbort
	case runtime.NotFound:
		return StatusNotFound
	}
	if s := StatusOf(res.Err); s != StatusOK && s != StatusAbort {
		return s
	}
	return StatusFailed
}

// EncodeArgs encodes call arguments the way call expects them.
func EncodeArgs(args ...variant.Variant) ([]byte, error) {
	if args == nil {
		args = []variant.Variant{}
	}
	return cbor.Marshal(args)
}

// DecodeResult reads a call result written at the start of buf.
func DecodeResult(buf []byte) (variant.Variant, error) {
	var v variant.Variant
	if len(buf) < 4 {
		return v, errors.InvalidInput(errors.PhaseMarshal, "result shorter than its length prefix")
	}
	n := binary.LittleEndian.Uint32(buf)
	if uint32(len(buf)-4) < n {
		return v, errors.InvalidInput(errors.PhaseMarshal, "truncated result")
	}
	err := v.UnmarshalCBOR(buf[4 : 4+n])
	return v, err
}
