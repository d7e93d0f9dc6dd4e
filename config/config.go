// Package config resolves a Runtime's Options from three layered
// sources, lowest precedence first: a YAML file, the process
// environment, and CLI flags — each layer only overrides what the one
// before it set.
//
// Grounded in shape on dr8co/kong/main.go's flag set (file/eval/debug
// flags, custom usage text) generalized to gel's --kernel/--module_dir/
// --log_script_instrs/--reactive surface from spec.md §6, plus
// viant-linager's plain-struct Config/DefaultConfig pattern for the
// on-disk layer.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved set of knobs cmd/gel hands to
// runtime.New.
type Config struct {
	ModuleDir       string `yaml:"module_dir"`
	LoadKernel      bool   `yaml:"kernel"`
	LogScriptInstrs bool   `yaml:"log_script_instrs"`
	Reactive        bool   `yaml:"reactive"`

	File    string `yaml:"-"`
	Eval    string `yaml:"-"`
	Dot     bool   `yaml:"-"`
	Version bool   `yaml:"-"`
}

// Default mirrors viant-linager's DefaultConfig: a plain struct
// literal rather than a builder, since every field already has an
// obvious zero-ish default.
func Default() *Config {
	return &Config{
		LoadKernel: true,
	}
}

// Load reads a YAML config file at path, if non-empty, then layers the
// GEL_MODULE_DIR/GEL_REACTIVE/GEL_KERNEL environment variables over it,
// returning the result. A missing path is not an error — the defaults
// (or flags layered on afterward) stand on their own.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				cfg.applyEnv()
				return cfg, nil
			}
			return nil, fmt.Errorf("config: reading %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %q: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if dir := os.Getenv("GEL_MODULE_DIR"); dir != "" {
		c.ModuleDir = dir
	}
	if v, ok := os.LookupEnv("GEL_REACTIVE"); ok {
		c.Reactive = v != "" && v != "0" && v != "false"
	}
	if v, ok := os.LookupEnv("GEL_KERNEL"); ok {
		c.LoadKernel = v != "" && v != "0" && v != "false"
	}
}

// Resolve builds the final Config for one process invocation: the
// YAML file named by a --config flag in args (if any), with the
// GEL_* environment variables and then args's own flags layered on
// top in that order, each only overriding what came before.
//
// --config is found by a hand scan of args (extractConfigPath) before
// any flag parsing, so the YAML and environment layers can be applied
// first and then threaded in as the defaults of a single flag parse.
func Resolve(args []string) (*Config, error) {
	path, err := extractConfigPath(args)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("gel", flag.ContinueOnError)
	fs.StringVar(&cfg.File, "file", cfg.File, "execute a gel script file")
	fs.StringVar(&cfg.File, "f", cfg.File, "execute a gel script file (shorthand)")
	fs.StringVar(&cfg.Eval, "eval", cfg.Eval, "evaluate a gel expression and print the result")
	fs.StringVar(&cfg.Eval, "e", cfg.Eval, "evaluate a gel expression (shorthand)")
	fs.StringVar(&cfg.ModuleDir, "module_dir", cfg.ModuleDir, "directory `import` resolves module files against")
	fs.BoolVar(&cfg.LoadKernel, "kernel", cfg.LoadKernel, "load the embedded kernel module at startup")
	fs.BoolVar(&cfg.LogScriptInstrs, "log_script_instrs", cfg.LogScriptInstrs, "disassemble a script before running it")
	fs.BoolVar(&cfg.Reactive, "reactive", cfg.Reactive, "enable the rx:* native family and `rx` surface form")
	fs.BoolVar(&cfg.Dot, "dot", cfg.Dot, "print a Graphviz dot rendering of --file's flowgraph instead of running it")
	fs.BoolVar(&cfg.Version, "version", cfg.Version, "print the version and exit")
	fs.BoolVar(&cfg.Version, "v", cfg.Version, "print the version and exit (shorthand)")
	fs.String("config", path, "path to a YAML config file layered beneath environment and CLI flags")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// extractConfigPath scans args by hand for -config/--config's value,
// since it must be known before the real flag.FlagSet (which defines
// every other flag too) can be built and parsed.
func extractConfigPath(args []string) (string, error) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-config" || a == "--config":
			if i+1 >= len(args) {
				return "", fmt.Errorf("config: %s requires a value", a)
			}
			return args[i+1], nil
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config="), nil
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config="), nil
		}
	}
	return "", nil
}
