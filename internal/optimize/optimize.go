// Package optimize builds the bundle of each deployed theme and writes it,
// with a bundle-aware RequireJS config, into every locale of the theme.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/amdpack/internal/amd/amderr"
	"github.com/albertocavalcante/amdpack/internal/amd/bundle"
	"github.com/albertocavalcante/amdpack/internal/amd/graph"
	"github.com/albertocavalcante/amdpack/internal/amd/requireconfig"
	"github.com/albertocavalcante/amdpack/internal/amd/trace"
	"github.com/albertocavalcante/amdpack/internal/minify"
	"github.com/albertocavalcante/amdpack/internal/store"
)

// Defaults.
const (
	DefaultBundleName = "core-bundle"
	DefaultBundleDir  = "amdpack"
)

// ErrNoLocales is returned for a theme with nothing deployed.
var ErrNoLocales = errors.New("no deployed locales")

// Optimizer builds themes of one store.
type Optimizer struct {
	root            string
	bundleName      string
	bundleDir       string
	exclude         []string
	pool            *minify.Pool
	readConcurrency int
	themeTimeout    time.Duration
	logger          zerolog.Logger
	readFile        func(name string) ([]byte, error)
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithBundleName sets the bundle module name.
func WithBundleName(name string) Option {
	return func(o *Optimizer) {
		if name != "" {
			o.bundleName = name
		}
	}
}

// WithBundleDir sets the directory, relative to each locale, the bundle is
// written to.
func WithBundleDir(dir string) Option {
	return func(o *Optimizer) {
		if dir != "" {
			o.bundleDir = filepath.ToSlash(filepath.Clean(dir))
		}
	}
}

// WithExclude keeps ids out of every bundle.
func WithExclude(ids ...string) Option {
	return func(o *Optimizer) { o.exclude = append(o.exclude, ids...) }
}

// WithMinifier minifies output through pool. Without one, bundles are
// written as assembled.
func WithMinifier(pool *minify.Pool) Option {
	return func(o *Optimizer) { o.pool = pool }
}

// WithReadConcurrency bounds concurrent file reads per theme.
func WithReadConcurrency(n int) Option {
	return func(o *Optimizer) { o.readConcurrency = n }
}

// WithThemeTimeout bounds the build of each theme.
func WithThemeTimeout(d time.Duration) Option {
	return func(o *Optimizer) { o.themeTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Optimizer) { o.logger = l }
}

// WithReadFile replaces the file reader used for module sources.
func WithReadFile(fn func(name string) ([]byte, error)) Option {
	return func(o *Optimizer) { o.readFile = fn }
}

// New creates an Optimizer for the store at root.
func New(root string, opts ...Option) *Optimizer {
	o := &Optimizer{
		root:       root,
		bundleName: DefaultBundleName,
		bundleDir:  DefaultBundleDir,
		logger:     zerolog.Nop(),
		readFile:   os.ReadFile,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// BundleID is the module id the generated config maps the bundle to.
func (o *Optimizer) BundleID() string {
	return path.Join(o.bundleDir, o.bundleName)
}

// Run builds themes concurrently. A theme that fails is reported with its
// reason and does not stop the others; Run itself only fails when ctx is
// done.
func (o *Optimizer) Run(ctx context.Context, themes []store.Theme) (*Report, error) {
	report := &Report{Root: o.root, Themes: make([]ThemeReport, len(themes))}

	g, gctx := errgroup.WithContext(ctx)
	for i, theme := range themes {
		g.Go(func() error {
			start := time.Now()
			tr, err := o.Theme(gctx, theme)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				o.logger.Error().Str("theme", theme.ID()).Err(err).Msg("theme failed")
				tr = &ThemeReport{ThemeID: theme.ID(), Reason: reason(err)}
			} else {
				o.logger.Info().Str("theme", theme.ID()).Dur("elapsed", time.Since(start)).Msg("theme optimized")
			}
			report.Themes[i] = *tr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// reason renders err for the report: a user error's message, or the full
// chain.
func reason(err error) string {
	if u, ok := amderr.As(err); ok {
		return u.Msg
	}
	return err.Error()
}

// output is one generated file, written into every locale.
type output struct {
	rel  string
	data []byte
}

// Theme builds and writes the bundle of one theme.
func (o *Optimizer) Theme(ctx context.Context, theme store.Theme) (*ThemeReport, error) {
	if o.themeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.themeTimeout)
		defer cancel()
	}
	log := o.logger.With().Str("theme", theme.ID()).Logger()

	staticDir := filepath.Join(o.root, theme.StaticDir())
	locales, err := store.Locales(o.root, theme)
	if err != nil {
		return nil, err
	}
	if len(locales) == 0 {
		return nil, amderr.Wrap(ErrNoLocales, "No deployed locales found for theme %q in %q", theme.ID(), staticDir)
	}

	tr := &ThemeReport{ThemeID: theme.ID(), BaseLocale: locales[0], Locales: locales}
	baseDir := filepath.Join(staticDir, tr.BaseLocale)

	raw, cfg, err := requireconfig.LoadFromDir(ctx, baseDir, requireconfig.WithLogger(log))
	if err != nil {
		return nil, err
	}
	entries, err := requireconfig.EntryPoints(cfg, baseDir)
	if err != nil {
		return nil, amderr.Wrap(err, `Could not find any entry points ("deps") config in %q for theme %q`, requireconfig.FileName, theme.ID())
	}
	tr.EntryPoints = entries

	traced, err := trace.Trace(ctx, entries, cfg, baseDir,
		trace.WithLogger(log),
		trace.WithConcurrency(o.readConcurrency),
		trace.WithReadFile(o.readFile),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing %s: %w", theme.ID(), err)
	}
	tr.Graph = traced.Graph
	tr.Warnings = traced.Warnings
	tr.Incomplete = traced.Incomplete
	for _, w := range traced.Warnings {
		log.Warn().Str("module", w.ResolvedID).Str("issuer", w.Issuer).Msg("unreadable dependency left out of the bundle")
	}

	deps := graph.ComputeBundleDeps(traced.Graph, nonEmpty(traced.ResolvedEntryIDs), graph.WithExcluded(o.excluded(traced)...))
	tr.BundleDeps = deps

	asm := bundle.NewAssembler(baseDir, cfg,
		bundle.WithLogger(log),
		bundle.WithConcurrency(o.readConcurrency),
		bundle.WithReadFile(o.readFile),
		bundle.WithSourcePrefix(strings.Repeat("../", strings.Count(o.bundleDir, "/")+1)),
	)
	b, err := asm.Assemble(ctx, o.bundleName, deps)
	if err != nil {
		return nil, err
	}
	tr.Sources = append(tr.Sources, filepath.Join(baseDir, requireconfig.FileName))
	for _, m := range b.Modules {
		tr.Sources = append(tr.Sources, filepath.Join(baseDir, filepath.FromSlash(m.Path)))
	}
	bundleConfig := requireconfig.GenerateBundleConfig(raw, o.bundleDir, o.bundleName, deps)

	tr.OriginalConfig = string(raw)
	tr.GeneratedConfig = string(bundleConfig)
	tr.CoreBundleBytesBeforeMin = len(b.Code)
	tr.RequireConfigBytesBeforeMin = len(bundleConfig)

	outputs, err := o.render(ctx, tr, b, bundleConfig)
	if err != nil {
		return nil, err
	}

	err = withLock(ctx, staticDir, func() error {
		for _, locale := range locales {
			for _, out := range outputs {
				rel := filepath.Join(theme.StaticDir(), locale, filepath.FromSlash(out.rel))
				if err := writeFile(filepath.Join(o.root, rel), out.data); err != nil {
					log.Error().Err(err).Str("file", rel).Msg("write failed")
					tr.FailedWrites = append(tr.FailedWrites, filepath.ToSlash(rel))
					continue
				}
				tr.Files = append(tr.Files, filepath.ToSlash(rel))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tr.Success = true
	return tr, nil
}

// excluded lists the ids left out of the bundle: configured exclusions and
// modules whose file could not be read.
func (o *Optimizer) excluded(traced *trace.Result) []string {
	ids := slices.Clone(o.exclude)
	for _, w := range traced.Warnings {
		ids = append(ids, w.ResolvedID)
	}
	return ids
}

// render produces the files of a theme, minified when a pool is set.
func (o *Optimizer) render(ctx context.Context, tr *ThemeReport, b *bundle.Bundle, bundleConfig []byte) ([]output, error) {
	bundleRel := path.Join(o.bundleDir, b.Filename)
	configRel := requireconfig.BundleConfigFileName

	if o.pool == nil {
		tr.CoreBundleBytesAfterMin = len(b.Code)
		tr.RequireConfigBytesAfterMin = len(bundleConfig)
		return []output{
			{rel: bundleRel, data: withMapComment(b.Code, b.Filename+".map")},
			{rel: bundleRel + ".map", data: b.Map},
			{rel: configRel, data: bundleConfig},
		}, nil
	}

	var minBundle, minConfig *minify.Output
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		minBundle, err = o.pool.Minify(gctx, minify.Input{Name: b.Filename, Code: b.Code, Map: b.Map})
		return err
	})
	g.Go(func() error {
		var err error
		minConfig, err = o.pool.Minify(gctx, minify.Input{Name: configRel, Code: bundleConfig})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tr.CoreBundleBytesAfterMin = len(minBundle.Code)
	tr.RequireConfigBytesAfterMin = len(minConfig.Code)
	return []output{
		{rel: bundleRel, data: withMapComment(minBundle.Code, b.Filename+".map")},
		{rel: bundleRel + ".map", data: minBundle.Map},
		{rel: configRel, data: withMapComment(minConfig.Code, configRel+".map")},
		{rel: configRel + ".map", data: minConfig.Map},
	}, nil
}

func withMapComment(code []byte, mapName string) []byte {
	out := make([]byte, 0, len(code)+len(mapName)+24)
	out = append(out, code...)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	out = append(out, "//# sourceMappingURL="...)
	out = append(out, mapName...)
	return append(out, '\n')
}

func nonEmpty(ids []string) []string {
	return slices.DeleteFunc(slices.Clone(ids), func(id string) bool { return id == "" })
}
