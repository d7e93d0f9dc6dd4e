// gel compiles and runs gel source code: a file, a one-line --eval
// expression, a --dot flowgraph dump, or (with no file/eval given) an
// interactive REPL.
package main

import (
	"fmt"
	"os"

	"github.com/dr8co/gel/config"
	"github.com/dr8co/gel/kernel"
	"github.com/dr8co/gel/object"
	"github.com/dr8co/gel/repl"
	"github.com/dr8co/gel/runtime"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Resolve(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.Version {
		fmt.Printf("gel %s\n", version)
		return
	}

	rt := runtime.New(runtime.Options{
		ModuleDir:       cfg.ModuleDir,
		LogScriptInstrs: cfg.LogScriptInstrs,
		Reactive:        cfg.Reactive,
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
	})
	if err := rt.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "gel: initializing runtime:", err)
		os.Exit(1)
	}
	if cfg.LoadKernel {
		if err := kernel.Load(rt); err != nil {
			fmt.Fprintln(os.Stderr, "gel: loading kernel:", err)
			os.Exit(1)
		}
	}

	switch {
	case cfg.Dot && cfg.File != "":
		runDot(rt, cfg.File)
	case cfg.File != "":
		runFile(rt, cfg.File)
	case cfg.Eval != "":
		runEval(rt, cfg.Eval)
	default:
		repl.Start(rt, repl.Options{NoColor: os.Getenv("NO_COLOR") != ""})
	}
}

func runFile(rt *runtime.Runtime, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gel:", err)
		os.Exit(1)
	}
	result, err := rt.Eval(string(content))
	if err != nil {
		fmt.Fprintln(os.Stderr, "gel:", err)
		os.Exit(1)
	}
	if errObj, ok := result.(*object.Error); ok {
		fmt.Fprintln(os.Stderr, "gel:", errObj.Inspect())
		os.Exit(1)
	}
}

func runEval(rt *runtime.Runtime, source string) {
	result, err := rt.Eval(source)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gel:", err)
		os.Exit(1)
	}
	if errObj, ok := result.(*object.Error); ok {
		fmt.Fprintln(os.Stderr, "gel:", errObj.Inspect())
		os.Exit(1)
	}
	fmt.Println(result.Inspect())
}

func runDot(rt *runtime.Runtime, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gel:", err)
		os.Exit(1)
	}
	dot, err := rt.ExportDot(string(content))
	if err != nil {
		fmt.Fprintln(os.Stderr, "gel:", err)
		os.Exit(1)
	}
	fmt.Println(dot)
}
