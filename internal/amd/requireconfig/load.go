package requireconfig

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/albertocavalcante/amdpack/internal/amd/amderr"
)

// FileName is the generated RequireJS config in a deployed locale directory.
const FileName = "requirejs-config.js"

// BundleConfigFileName is the config written next to it with bundles added.
const BundleConfigFileName = "requirejs-bundle-config.js"

// ErrNoEntryPoints is returned when a config declares no deps.
var ErrNoEntryPoints = errors.New("no entry points")

// LoadFromDir reads and evaluates dir/requirejs-config.js. It returns the
// raw source alongside the evaluated config. Failures are user errors.
func LoadFromDir(ctx context.Context, dir string, opts ...Option) ([]byte, *Config, error) {
	return load(ctx, filepath.Join(dir, FileName), dir, opts)
}

// LoadFile reads and evaluates a RequireJS config at any path.
func LoadFile(ctx context.Context, path string, opts ...Option) ([]byte, *Config, error) {
	return load(ctx, path, path, opts)
}

func load(ctx context.Context, path, shown string, opts []Option) ([]byte, *Config, error) {
	raw, err := os.ReadFile(path)
	if err == nil && len(strings.TrimSpace(string(raw))) == 0 {
		err = fmt.Errorf("%s is empty", path)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fs.ErrNotExist
		}
		return nil, nil, amderr.Wrap(err, "Failed reading RequireJS config at path %q", shown)
	}

	cfg, err := Evaluate(ctx, raw, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, err
		}
		return nil, nil, amderr.Wrap(err, "Failed evaluating RequireJS config at path %q", shown)
	}
	return raw, cfg, nil
}

// EntryPoints returns cfg.Deps, or a user error when there are none.
func EntryPoints(cfg *Config, dir string) ([]string, error) {
	if cfg == nil || len(cfg.Deps) == 0 {
		return nil, amderr.Wrap(ErrNoEntryPoints,
			`Could not find any entry points ("deps") in the RequireJS config at %q`, filepath.Join(dir, FileName))
	}
	return cfg.Deps, nil
}
