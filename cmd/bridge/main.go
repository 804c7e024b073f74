package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/classbridge/class"
	_ "github.com/wippyai/classbridge/examples/monsters"
	"github.com/wippyai/classbridge/host"
	"github.com/wippyai/classbridge/registry"
	"github.com/wippyai/classbridge/runtime"
	"github.com/wippyai/classbridge/variant"
	"github.com/wippyai/classbridge/wasmhost"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to a classbridge.toml")
		witPkg      = flag.String("wit", "", "Print the classes as a WIT package with this name and exit")
		frames      = flag.Int("frames", 0, "Spawn one instance per class and run this many _process frames")
		delta       = flag.Float64("delta", 1.0/60, "Frame time for -frames")
		wasmFile    = flag.String("wasm", "", "Run a core wasm guest linked against the classbridge host module")
		funcName    = flag.String("func", "_start", "Guest function to call with -wasm")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	bridge, cleanup, err := load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	switch {
	case *interactive:
		err = runInteractive(bridge)
	case *witPkg != "":
		fmt.Print(class.RenderWIT(*witPkg, bridge.Enumerate()))
	case *wasmFile != "":
		err = runGuest(bridge, *wasmFile, *funcName)
	case *frames > 0:
		err = runFrames(bridge, *frames, *delta)
	default:
		list(bridge)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func load(configFile string) (*runtime.Bridge, func(), error) {
	var cfg runtime.Config
	if configFile != "" {
		c, err := runtime.LoadConfig(configFile)
		if err != nil {
			return nil, nil, err
		}
		cfg = c
	}

	log, err := cfg.Logger()
	if err != nil {
		return nil, nil, err
	}
	runtime.SetLogger(log)
	registry.SetLogger(log.Named("registry"))
	wasmhost.SetLogger(log.Named("wasm"))

	ctx := context.Background()
	bridge := runtime.New(host.New(), cfg.Options())
	if err := bridge.OnLoad(ctx); err != nil {
		// Classes that registered cleanly are still usable.
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	cleanup := func() {
		if err := bridge.OnUnload(ctx); err != nil {
			log.Warn("unload", zap.Error(err))
		}
		_ = log.Sync()
	}
	return bridge, cleanup, nil
}

func list(bridge *runtime.Bridge) {
	descs := bridge.Enumerate()
	fmt.Printf("Classes: %d\n\n", len(descs))
	for _, d := range descs {
		entry, _ := bridge.Lookup(d.Name)
		fmt.Printf("%s extends %s (base object %s, %s constructor)\n", d.Name, d.Base, entry.Native, d.Constructor)
		for _, f := range d.Fields {
			opt := ""
			if f.Optional {
				opt = "?"
			}
			fmt.Printf("  %s%s: %s\n", f.Name, opt, f.Tag)
		}
		if len(d.Virtuals) > 0 {
			fmt.Printf("  overrides: %s\n", strings.Join(d.Virtuals, ", "))
		}
	}
}

func runFrames(bridge *runtime.Bridge, frames int, delta float64) error {
	ctx := context.Background()
	var insts []*runtime.Instance
	for _, d := range bridge.Enumerate() {
		inst, err := bridge.New(ctx, d.Name)
		if err != nil {
			return err
		}
		bridge.InvokeVirtual(ctx, inst.ID(), "_ready")
		insts = append(insts, inst)
	}

	counts := make(map[runtime.Status]int)
	for range frames {
		for _, inst := range insts {
			res := bridge.InvokeVirtual(ctx, inst.ID(), "_process", variant.FromFloat(delta))
			counts[res.Status]++
		}
	}

	for _, inst := range insts {
		fields, err := bridge.Fields(ctx, inst.ID())
		if err != nil {
			return err
		}
		fmt.Printf("%s#%d\n", inst.Class(), inst.ID())
		printFields(fields)
	}
	fmt.Printf("\n%d frames: %d ok, %d default, %d aborted\n", frames, counts[runtime.OK], counts[runtime.Default], counts[runtime.NoOp])
	return nil
}

func printFields(fields map[string]variant.Variant) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Printf("  %s = %v\n", name, fields[name])
	}
}

func runGuest(bridge *runtime.Bridge, wasmFile, funcName string) error {
	ctx := context.Background()
	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	if _, err := wasmhost.Instantiate(ctx, rt, bridge); err != nil {
		return err
	}
	mod, err := rt.InstantiateWithConfig(ctx, data, wazero.NewModuleConfig().WithStartFunctions())
	if err != nil {
		return fmt.Errorf("instantiate guest: %w", err)
	}
	defer mod.Close(ctx)

	fn := mod.ExportedFunction(funcName)
	if fn == nil {
		return fmt.Errorf("guest does not export %s", funcName)
	}
	results, err := fn.Call(ctx)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}
	fmt.Printf("%s() -> %v\n", funcName, results)

	for _, id := range bridge.LiveIDs() {
		inst, _ := bridge.Instance(id)
		fields, err := bridge.Fields(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s#%d\n", inst.Class(), id)
		printFields(fields)
	}
	return nil
}
