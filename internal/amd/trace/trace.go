// Package trace walks AMD dependencies from a set of entry points and
// builds the module graph of a theme.
package trace

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/albertocavalcante/amdpack/internal/amd/deps"
	"github.com/albertocavalcante/amdpack/internal/amd/graph"
	"github.com/albertocavalcante/amdpack/internal/amd/requireconfig"
	"github.com/albertocavalcante/amdpack/internal/amd/resolver"
	"github.com/albertocavalcante/amdpack/internal/jsparse"
)

// Issuers recorded for modules that no other module requested.
const (
	IssuerEntryPoint = "<entry point>"
	IssuerMixin      = "<mixin>"
)

// UnreadableDependency is the Warning.Type of a module whose file could
// not be read.
const UnreadableDependency = "UnreadableDependencyWarning"

// DefaultConcurrency bounds the number of files read at once.
const DefaultConcurrency = 32

// Warning is a recoverable problem found while tracing. The storefront
// still works without the module; the loader fetches it over the network.
type Warning struct {
	Type       string `json:"type"`
	ResolvedID string `json:"resolvedID"`
	Path       string `json:"path"`
	Issuer     string `json:"issuer"`
	Reason     string `json:"reason,omitempty"`
}

// Result is the outcome of a trace.
type Result struct {
	Graph            *graph.Graph `json:"graph"`
	Warnings         []Warning    `json:"warnings"`
	ResolvedEntryIDs []string     `json:"resolvedEntryIDs"`
	// Incomplete lists modules whose dependencies could only be partly
	// determined.
	Incomplete []string `json:"incomplete,omitempty"`
}

// ReadFileFunc reads a file by path.
type ReadFileFunc func(name string) ([]byte, error)

// Tracer builds dependency graphs. The zero value is not usable; call New.
type Tracer struct {
	readFile    ReadFileFunc
	logger      zerolog.Logger
	concurrency int64
	resolver    resolver.ModuleResolver
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithReadFile replaces the file reader.
func WithReadFile(fn ReadFileFunc) Option {
	return func(t *Tracer) { t.readFile = fn }
}

// WithFS reads files from fsys. Paths given to the tracer must then be
// valid fs.FS paths.
func WithFS(fsys fs.FS) Option {
	return WithReadFile(func(name string) ([]byte, error) {
		return fs.ReadFile(fsys, filepath.ToSlash(name))
	})
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracer) { t.logger = l }
}

// WithConcurrency bounds the number of concurrent reads.
func WithConcurrency(n int) Option {
	return func(t *Tracer) {
		if n > 0 {
			t.concurrency = int64(n)
		}
	}
}

// WithResolver uses r instead of a resolver built from the config.
func WithResolver(r resolver.ModuleResolver) Option {
	return func(t *Tracer) { t.resolver = r }
}

// New creates a Tracer.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		readFile:    os.ReadFile,
		logger:      zerolog.Nop(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Trace is shorthand for New(opts...).Trace.
func Trace(ctx context.Context, entries []string, cfg *requireconfig.Config, baseDir string, opts ...Option) (*Result, error) {
	return New(opts...).Trace(ctx, entries, cfg, baseDir)
}

type readResult struct {
	src []byte
	err error
}

type pending struct {
	path   string
	issuer string
	done   chan readResult
}

// run holds the state of one Trace call.
type run struct {
	t       *Tracer
	ctx     context.Context
	cfg     *requireconfig.Config
	res     resolver.ModuleResolver
	baseDir string
	sem     *semaphore.Weighted

	result *Result
	queue  []string
	reads  map[string]*pending
}

// Trace builds the graph of every module reachable from entries, resolved
// against cfg under baseDir.
//
// Modules are analyzed one at a time in breadth-first order while their
// files are read ahead in the background. Unreadable modules become
// warnings, including unreadable entry points, which stay in the graph with
// no dependencies.
func (t *Tracer) Trace(ctx context.Context, entries []string, cfg *requireconfig.Config, baseDir string) (*Result, error) {
	if cfg == nil {
		cfg = requireconfig.New()
	}
	r := &run{
		t:       t,
		ctx:     ctx,
		cfg:     cfg,
		res:     t.resolver,
		baseDir: baseDir,
		sem:     semaphore.NewWeighted(t.concurrency),
		result: &Result{
			Graph:            graph.New(),
			Warnings:         []Warning{},
			ResolvedEntryIDs: make([]string, 0, len(entries)),
		},
		reads: make(map[string]*pending),
	}
	if r.res == nil {
		r.res = resolver.New(cfg, resolver.WithLogger(t.logger))
	}

	for _, entry := range entries {
		resolved := r.res.Resolve(entry, "")
		r.result.ResolvedEntryIDs = append(r.result.ResolvedEntryIDs, resolved.ModuleID)
		r.enqueue(resolved.ModuleID, resolved.ModulePath, IssuerEntryPoint)
		if resolved.PluginID != "" {
			r.enqueue(resolved.PluginID, resolved.PluginPath, resolved.ModuleID)
		}
	}

	for len(r.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := r.queue[0]
		r.queue = r.queue[1:]
		if err := r.visit(id); err != nil {
			return nil, err
		}
	}

	t.logger.Debug().
		Int("modules", r.result.Graph.Len()).
		Int("warnings", len(r.result.Warnings)).
		Msg("trace complete")
	return r.result, nil
}

// enqueue adds id to the graph once. JavaScript files are scheduled for
// analysis and their read starts right away; other resources cannot have
// dependencies.
func (r *run) enqueue(id, modulePath, issuer string) {
	if id == "" || !r.result.Graph.Add(id) {
		return
	}

	path := filepath.Join(r.baseDir, filepath.FromSlash(modulePath))
	if filepath.Ext(path) != ".js" {
		return
	}

	p := &pending{path: path, issuer: issuer, done: make(chan readResult, 1)}
	r.reads[id] = p
	r.queue = append(r.queue, id)
	go func() {
		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			p.done <- readResult{err: err}
			return
		}
		defer r.sem.Release(1)
		src, err := r.t.readFile(path)
		p.done <- readResult{src: src, err: err}
	}()
}

func (r *run) visit(id string) error {
	log := r.t.logger
	log.Trace().Str("module", id).Msg("preparing to analyze module for dependencies")

	p := r.reads[id]
	delete(r.reads, id)

	var read readResult
	select {
	case read = <-p.done:
	case <-r.ctx.Done():
		return r.ctx.Err()
	}
	if read.err != nil {
		if r.ctx.Err() != nil {
			return r.ctx.Err()
		}
		r.result.Warnings = append(r.result.Warnings, Warning{
			Type:       UnreadableDependency,
			ResolvedID: id,
			Path:       p.path,
			Issuer:     p.issuer,
			Reason:     read.err.Error(),
		})
		log.Trace().Str("module", id).Str("issuer", p.issuer).Msg("warning for missing dependency")
		return nil
	}

	found, err := r.parse(id, read.src)
	if err != nil {
		return err
	}
	if found.IncompleteAnalysis {
		r.result.Incomplete = append(r.result.Incomplete, id)
	}
	if len(found.Deps) > 0 {
		log.Trace().Str("module", id).Strs("deps", found.Deps).Msg("discovered dependencies")
	}

	g := r.result.Graph
	for _, mixin := range r.cfg.MixinsFor(id) {
		resolved := r.res.Resolve(mixin, "")
		if resolved.ModuleID == "" {
			continue
		}
		g.AddEdge(id, resolved.ModuleID)
		r.enqueue(resolved.ModuleID, resolved.ModulePath, IssuerMixin)
	}

	for _, dep := range found.Deps {
		if graph.IsBuiltIn(dep) {
			// Provided by the loader: recorded, never read.
			g.AddEdge(id, dep)
			continue
		}
		resolved := r.res.Resolve(dep, id)
		if resolved.ModuleID != "" {
			g.AddEdge(id, resolved.ModuleID)
			r.enqueue(resolved.ModuleID, resolved.ModulePath, id)
		}
		if resolved.PluginID != "" {
			g.AddEdge(id, resolved.PluginID)
			r.enqueue(resolved.PluginID, resolved.PluginPath, resolved.ModuleID)
		}
	}
	return nil
}

// parse extracts deps strictly, retrying in tolerant mode on syntax errors.
func (r *run) parse(id string, src []byte) (deps.Result, error) {
	found, err := deps.Parse(r.ctx, src, false)
	var syntaxErr *jsparse.SyntaxError
	if errors.As(err, &syntaxErr) {
		r.t.logger.Debug().Str("module", id).Err(err).Msg("syntax error, retrying with a tolerant parse")
		found, err = deps.Parse(r.ctx, src, true)
	}
	if err != nil {
		if r.ctx.Err() != nil {
			return deps.Result{}, r.ctx.Err()
		}
		r.t.logger.Warn().Str("module", id).Err(err).Msg("could not analyze module")
		return deps.Result{Deps: []string{}, IncompleteAnalysis: true}, nil
	}
	return found, nil
}
