// Package kernel holds gel's embedded standard-library script, loaded
// into a *runtime.Runtime once at startup.
//
// kernel depends on runtime (to call rt.Eval), so the dependency only
// ever runs this direction: runtime itself knows nothing of kernel,
// which is what lets a host embed gel without the kernel module at
// all (spec.md §6's --kernel=false path) by simply not calling Load.
package kernel

import (
	_ "embed"
	"fmt"

	"github.com/dr8co/gel/object"
	"github.com/dr8co/gel/runtime"
)

//go:embed kernel.cl
var Source string

// Load evaluates Source against rt, defining the standard-library
// procedures it provides as ordinary globals in rt's persistent
// compiler/interp state — indistinguishable, from a later Eval's point
// of view, from definitions a script wrote itself.
func Load(rt *runtime.Runtime) error {
	result, err := rt.Eval(Source)
	if err != nil {
		return fmt.Errorf("kernel: %w", err)
	}
	if errObj, ok := result.(*object.Error); ok {
		return fmt.Errorf("kernel: %s", errObj.Inspect())
	}
	return nil
}
