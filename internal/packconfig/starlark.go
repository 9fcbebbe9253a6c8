package packconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.starlark.net/starlark"
)

// DefaultStarlarkTimeout bounds the execution of a config.sky file.
const DefaultStarlarkTimeout = 5 * time.Second

// ErrConfigureNotFound is returned when config.sky doesn't define configure().
var ErrConfigureNotFound = errors.New("config.sky must define a configure() function")

// ErrConfigureReturnType is returned when configure() doesn't return a dict.
var ErrConfigureReturnType = errors.New("configure() must return a dict")

// LoadStarlarkConfig loads a configuration from a Starlark file defining
// configure(). The file has no filesystem or network access and is
// canceled after timeout.
func LoadStarlarkConfig(path string, timeout time.Duration) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	thread := &starlark.Thread{Name: path}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel("execution timeout")
		case <-done:
		}
	}()
	defer close(done)

	globals, err := starlark.ExecFile(thread, path, data, configPredeclared())
	if err != nil {
		return nil, fmt.Errorf("executing config %s: %w", path, err)
	}

	configureFn, ok := globals["configure"]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrConfigureNotFound)
	}
	fn, ok := configureFn.(*starlark.Function)
	if !ok {
		return nil, fmt.Errorf("%s: configure must be a function, got %s", path, configureFn.Type())
	}

	result, err := starlark.Call(thread, fn, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: calling configure(): %w", path, err)
	}

	dict, ok := result.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("%s: %w, got %s", path, ErrConfigureReturnType, result.Type())
	}

	cfg, err := dictToConfig(dict)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func configPredeclared() starlark.StringDict {
	return starlark.StringDict{
		"getenv":    starlark.NewBuiltin("getenv", builtinGetenv),
		"host_os":   starlark.String(runtime.GOOS),
		"host_arch": starlark.String(runtime.GOARCH),
		"cpu_count": starlark.MakeInt(runtime.NumCPU()),
		"duration":  starlark.NewBuiltin("duration", builtinDuration),
	}
}

// builtinGetenv implements getenv(name, default="") -> string.
func builtinGetenv(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultVal starlark.String
	if err := starlark.UnpackArgs("getenv", args, kwargs, "name", &name, "default?", &defaultVal); err != nil {
		return nil, err
	}
	if val := os.Getenv(name); val != "" {
		return starlark.String(val), nil
	}
	return defaultVal, nil
}

// builtinDuration implements duration(s) -> string, validating s.
func builtinDuration(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackArgs("duration", args, kwargs, "s", &s); err != nil {
		return nil, err
	}
	if _, err := time.ParseDuration(s); err != nil {
		return nil, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return starlark.String(s), nil
}

func dictToConfig(d *starlark.Dict) (*Config, error) {
	cfg := DefaultConfig()

	for _, k := range d.Keys() {
		key, _ := starlark.AsString(k)
		v, _, _ := d.Get(k)
		section, ok := v.(*starlark.Dict)
		switch key {
		case "build":
			if !ok {
				return nil, fmt.Errorf("build must be a dict, got %s", v.Type())
			}
			if err := parseBuildConfig(section, &cfg.Build); err != nil {
				return nil, fmt.Errorf("parsing build config: %w", err)
			}
		case "trace":
			if !ok {
				return nil, fmt.Errorf("trace must be a dict, got %s", v.Type())
			}
			if err := parseTraceConfig(section, &cfg.Trace); err != nil {
				return nil, fmt.Errorf("parsing trace config: %w", err)
			}
		default:
			return nil, fmt.Errorf("unknown config section %s", k)
		}
	}

	return cfg, nil
}

func parseBuildConfig(d *starlark.Dict, cfg *BuildConfig) error {
	for _, k := range d.Keys() {
		key, _ := starlark.AsString(k)
		v, _, _ := d.Get(k)
		var err error
		switch key {
		case "themes":
			cfg.Themes, err = stringList(key, v)
		case "exclude":
			cfg.Exclude, err = stringList(key, v)
		case "bundle_name":
			cfg.BundleName, err = str(key, v)
		case "bundle_dir":
			cfg.BundleDir, err = str(key, v)
		case "minify":
			b, ok := v.(starlark.Bool)
			if !ok {
				return fmt.Errorf("minify must be a bool, got %s", v.Type())
			}
			enabled := bool(b)
			cfg.Minify = &enabled
		case "minify_workers":
			cfg.MinifyWorkers, err = integer(key, v)
		case "timeout":
			var s string
			if s, err = str(key, v); err == nil {
				err = cfg.Timeout.UnmarshalText([]byte(s))
			}
		default:
			return fmt.Errorf("unknown key %s", k)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func parseTraceConfig(d *starlark.Dict, cfg *TraceConfig) error {
	for _, k := range d.Keys() {
		key, _ := starlark.AsString(k)
		v, _, _ := d.Get(k)
		switch key {
		case "read_concurrency":
			n, err := integer(key, v)
			if err != nil {
				return err
			}
			cfg.ReadConcurrency = n
		default:
			return fmt.Errorf("unknown key %s", k)
		}
	}
	return nil
}

func str(key string, v starlark.Value) (string, error) {
	s, ok := starlark.AsString(v)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %s", key, v.Type())
	}
	return s, nil
}

func integer(key string, v starlark.Value) (int, error) {
	var n int
	if err := starlark.AsInt(v, &n); err != nil {
		return 0, fmt.Errorf("%s must be an int, got %s", key, v.Type())
	}
	return n, nil
}

func stringList(key string, v starlark.Value) ([]string, error) {
	list, ok := v.(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("%s must be a list, got %s", key, v.Type())
	}
	out := make([]string, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		s, ok := starlark.AsString(list.Index(i))
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string", key, i)
		}
		out = append(out, s)
	}
	return out, nil
}
