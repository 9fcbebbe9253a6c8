// Package bundle concatenates traced AMD modules into a single file the
// loader can consume without fetching them individually.
package bundle

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/amdpack/internal/amd/moduleid"
	"github.com/albertocavalcante/amdpack/internal/amd/requireconfig"
	"github.com/albertocavalcante/amdpack/internal/amd/resolver"
)

// Bundle is an assembled bundle and its source map.
type Bundle struct {
	Name     string
	Filename string
	Code     []byte
	// Map is a version 3 source map of Code.
	Map     []byte
	Modules []Module
}

// Module records how one module entered the bundle.
type Module struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
}

// PathFunc returns the file path of a resolved module id, relative to the
// base directory.
type PathFunc func(moduleID string) string

// Assembler builds bundles for one base directory.
type Assembler struct {
	baseDir      string
	cfg          *requireconfig.Config
	paths        PathFunc
	readFile     func(name string) ([]byte, error)
	logger       zerolog.Logger
	concurrency  int
	sourcePrefix string
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithReadFile replaces the file reader.
func WithReadFile(fn func(name string) ([]byte, error)) Option {
	return func(a *Assembler) { a.readFile = fn }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// WithPaths replaces the module path lookup.
func WithPaths(fn PathFunc) Option {
	return func(a *Assembler) { a.paths = fn }
}

// WithConcurrency bounds the number of files read at once.
func WithConcurrency(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithSourcePrefix is prepended to every source path of the source map,
// e.g. "../" when the bundle is written one directory below the base.
func WithSourcePrefix(prefix string) Option {
	return func(a *Assembler) { a.sourcePrefix = prefix }
}

// NewAssembler creates an Assembler reading modules under baseDir.
func NewAssembler(baseDir string, cfg *requireconfig.Config, opts ...Option) *Assembler {
	if cfg == nil {
		cfg = requireconfig.New()
	}
	a := &Assembler{
		baseDir:     baseDir,
		cfg:         cfg,
		readFile:    os.ReadFile,
		logger:      zerolog.Nop(),
		concurrency: 32,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.paths == nil {
		a.paths = resolver.New(cfg, resolver.WithLogger(a.logger)).Path
	}
	return a
}

// Assemble reads deps in order and concatenates their transformed source
// into name.js. Any unreadable module fails the bundle.
func (a *Assembler) Assemble(ctx context.Context, name string, deps []string) (*Bundle, error) {
	b := &Bundle{
		Name:     name,
		Filename: name + ".js",
		Modules:  make([]Module, len(deps)),
	}

	sources := make([]string, len(deps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, id := range deps {
		modulePath := a.paths(id)
		b.Modules[i] = Module{ID: id, Path: modulePath}
		g.Go(func() error {
			if modulePath == "" {
				return fmt.Errorf("module %q has no file", id)
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			src, err := a.readFile(filepath.Join(a.baseDir, filepath.FromSlash(modulePath)))
			if err != nil {
				return fmt.Errorf("reading module %q: %w", id, err)
			}
			sources[i] = trimFinalNewline(string(src))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("bundle %s: %w", name, err)
	}

	var code strings.Builder
	sm := &sourceMap{file: b.Filename}
	for i, id := range deps {
		if i > 0 {
			code.WriteByte('\n')
		}
		text := moduleid.Parse(id).Kind() == moduleid.PluginText
		p, kind, err := transform(ctx, id, text, sources[i], a.cfg)
		if err != nil {
			return nil, fmt.Errorf("bundle %s: transforming module %q: %w", name, id, err)
		}
		b.Modules[i].Kind = kind
		a.logger.Trace().Str("module", id).Str("kind", string(kind)).Msg("bundled module")

		src := sm.addSource(a.sourcePrefix + path.Clean(b.Modules[i].Path))
		sm.unmapped(p.srcStart)
		sm.mapped(src, 0, p.srcLines)
		sm.unmapped(lineCount(p.code) - p.srcStart - p.srcLines)

		code.WriteString(p.code)
		if needsSeparator(p.code) {
			code.WriteString("\n;")
			sm.unmapped(1)
		}
	}
	code.WriteByte('\n')
	sm.unmapped(1)

	data, err := sm.MarshalJSON()
	if err != nil {
		return nil, err
	}
	b.Code = []byte(code.String())
	b.Map = data
	return b, nil
}

// Size returns the length of the bundle code in bytes.
func (b *Bundle) Size() int {
	return len(b.Code)
}

func trimFinalNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

// needsSeparator reports whether code may run into the next module, e.g.
// a script ending in an expression without a semicolon.
func needsSeparator(code string) bool {
	trimmed := strings.TrimRight(code, " \t\r\n")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case ';', '}':
		return false
	}
	return true
}
