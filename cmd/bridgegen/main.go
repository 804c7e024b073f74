// Command bridgegen writes class registrations for the //bridge:class
// structs of a package. Use it from a go:generate line:
//
//	//go:generate go run github.com/wippyai/classbridge/cmd/bridgegen
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wippyai/classbridge/gen"
)

func main() {
	var (
		dir    = flag.String("dir", ".", "Package directory")
		out    = flag.String("out", "zz_bridge.go", "Output file, relative to -dir")
		dryRun = flag.Bool("n", false, "Print the generated file instead of writing it")
	)
	flag.Parse()

	patterns := flag.Args()
	if len(patterns) == 0 {
		patterns = []string{"."}
	}

	if err := run(*dir, *out, patterns, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "bridgegen: %v\n", err)
		os.Exit(1)
	}
}

func run(dir, out string, patterns []string, dryRun bool) error {
	model, err := gen.Load(dir, patterns...)
	if err != nil {
		return err
	}
	code, err := gen.Generate(model)
	if err != nil {
		return err
	}
	if dryRun {
		_, err := os.Stdout.Write(code)
		return err
	}

	path := filepath.Join(dir, out)
	if err := os.WriteFile(path, code, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("%s: %d class(es) -> %s\n", model.ImportPath, len(model.Classes), path)
	return nil
}
