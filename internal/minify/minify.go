// Package minify minifies generated bundles with esbuild.
//
// Identifiers are never renamed: the AMD loader finds the dependencies of
// a factory like function(require) { require('x') } by scanning its
// source text, which only works while the parameter is still called
// require.
package minify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Pool.Minify after Close.
var ErrClosed = errors.New("minify: pool closed")

// Input is one file to minify.
type Input struct {
	// Name is used as the source file name when there is no input map.
	Name string
	Code []byte
	// Map is an optional source map of Code to chain into the output map.
	Map []byte
}

// Output is a minified file.
type Output struct {
	Code []byte
	Map  []byte
}

// Minify minifies in and produces an external source map. A malformed
// input map is dropped with a warning.
func Minify(in Input, logger zerolog.Logger) (*Output, error) {
	code := string(in.Code)
	if len(in.Map) > 0 {
		if err := validateMap(in.Map); err != nil {
			logger.Warn().Err(err).Str("file", in.Name).Msg("ignoring invalid input source map")
		} else {
			code = strings.TrimRight(code, "\n") + "\n//# sourceMappingURL=data:application/json;base64," +
				base64.StdEncoding.EncodeToString(in.Map) + "\n"
		}
	}

	result := api.Transform(code, api.TransformOptions{
		Loader:            api.LoaderJS,
		Sourcefile:        in.Name,
		Sourcemap:         api.SourceMapExternal,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: false,
		LogLevel:          api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, len(result.Errors))
		for i, m := range result.Errors {
			msgs[i] = formatMessage(m)
		}
		return nil, fmt.Errorf("minifying %s: %s", in.Name, strings.Join(msgs, "; "))
	}
	for _, m := range result.Warnings {
		logger.Debug().Str("file", in.Name).Msg(formatMessage(m))
	}
	return &Output{Code: result.Code, Map: result.Map}, nil
}

func formatMessage(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	return fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text)
}

// validateMap checks the parts of a source map esbuild relies on.
func validateMap(data []byte) error {
	var m struct {
		Version  int      `json:"version"`
		Sources  []string `json:"sources"`
		Mappings *string  `json:"mappings"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parsing source map: %w", err)
	}
	if m.Version != 3 {
		return fmt.Errorf("unsupported source map version %d", m.Version)
	}
	if m.Mappings == nil {
		return errors.New(`source map has no "mappings"`)
	}
	return nil
}

// Pool bounds the number of concurrent minifications across a run.
type Pool struct {
	sem    *semaphore.Weighted
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a Pool running at most workers minifications at once.
func NewPool(workers int, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers)), logger: logger}
}

// Minify waits for a free worker and minifies in.
func (p *Pool) Minify(ctx context.Context, in Input) (*Output, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()
	defer p.wg.Done()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return Minify(in, p.logger)
}

// Close rejects new work and waits for running minifications.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
