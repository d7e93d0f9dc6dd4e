package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveFlagsOverrideDefaults(t *testing.T) {
	cfg, err := Resolve([]string{"-eval", "(+ 1 2)", "-reactive"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Eval != "(+ 1 2)" {
		t.Errorf("Eval = %q, want %q", cfg.Eval, "(+ 1 2)")
	}
	if !cfg.Reactive {
		t.Error("Reactive = false, want true")
	}
	if !cfg.LoadKernel {
		t.Error("LoadKernel should default true")
	}
}

func TestResolveYAMLBeneathFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gel.yaml")
	yamlBody := "module_dir: /opt/gel/modules\nkernel: false\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Resolve([]string{"-config", path})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.ModuleDir != "/opt/gel/modules" {
		t.Errorf("ModuleDir = %q, want %q", cfg.ModuleDir, "/opt/gel/modules")
	}
	if cfg.LoadKernel {
		t.Error("LoadKernel should be overridden false by YAML")
	}

	cfg2, err := Resolve([]string{"-config", path, "-kernel"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !cfg2.LoadKernel {
		t.Error("explicit -kernel flag should override YAML's false")
	}
}

func TestResolveEnvOverridesDefaults(t *testing.T) {
	t.Setenv("GEL_MODULE_DIR", "/env/modules")
	cfg, err := Resolve(nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.ModuleDir != "/env/modules" {
		t.Errorf("ModuleDir = %q, want env value", cfg.ModuleDir)
	}
}

func TestMissingConfigFileIsNotAnError(t *testing.T) {
	cfg, err := Resolve([]string{"-config", "/nonexistent/gel.yaml"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !cfg.LoadKernel {
		t.Error("defaults should still apply when config file is absent")
	}
}
