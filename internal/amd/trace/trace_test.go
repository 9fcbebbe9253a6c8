package trace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/albertocavalcante/amdpack/internal/amd/graph"
	"github.com/albertocavalcante/amdpack/internal/amd/requireconfig"
)

func file(src string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(src)}
}

// edges flattens a graph into a map for comparison.
func edges(g *graph.Graph) map[string][]string {
	out := make(map[string][]string, g.Len())
	for _, id := range g.IDs() {
		out[id] = g.Deps(id)
	}
	return out
}

func traceFS(t *testing.T, fsys fstest.MapFS, cfg *requireconfig.Config, entries ...string) *Result {
	t.Helper()
	res, err := Trace(context.Background(), entries, cfg, ".", WithFS(fsys))
	if err != nil {
		t.Fatalf("Trace() error = %v", err)
	}
	return res
}

func TestTrace(t *testing.T) {
	tests := []struct {
		name string
		fs   fstest.MapFS
		want map[string][]string
	}{
		{
			name: "no config no cycles",
			fs: fstest.MapFS{
				"main.js": file(`define(['foo'], function (foo) {});`),
				"foo.js":  file(`define(['bar'], function (bar) {});`),
				"bar.js":  file(`define(function () {});`),
			},
			want: map[string][]string{"main": {"foo"}, "foo": {"bar"}, "bar": {}},
		},
		{
			name: "relative import",
			fs: fstest.MapFS{
				"main.js":    file(`require(['dir/foo']);`),
				"dir/foo.js": file(`define(['./bar'], function () {});`),
				"dir/bar.js": file(`define({});`),
			},
			want: map[string][]string{"main": {"dir/foo"}, "dir/foo": {"dir/bar"}, "dir/bar": {}},
		},
		{
			name: "cycle",
			fs: fstest.MapFS{
				"main.js": file(`define(['foo'], function () {});`),
				"foo.js":  file(`define(['bar'], function () {});`),
				"bar.js":  file(`define(['foo'], function () {});`),
			},
			want: map[string][]string{"main": {"foo"}, "foo": {"bar"}, "bar": {"foo"}},
		},
		{
			name: "text dependency on html file",
			fs: fstest.MapFS{
				"main.js":       file(`define(['text!template.html'], function (tpl) {});`),
				"template.html": file(`<div></div>`),
				"text.js":       file(`define(function () {});`),
			},
			want: map[string][]string{"main": {"text!template.html", "text"}, "text!template.html": {}, "text": {}},
		},
		{
			name: "built-ins",
			fs: fstest.MapFS{
				"main.js": file(`define(['exports', 'require', 'module'], function () {});`),
			},
			want: map[string][]string{"main": {"exports", "require", "module"}},
		},
		{
			name: "plugin without resource",
			fs: fstest.MapFS{
				"main.js":     file(`require(['domReady!'], function () {});`),
				"domReady.js": file(`define(function () {});`),
			},
			want: map[string][]string{"main": {"domReady"}, "domReady": {}},
		},
		{
			name: "recovers from syntax errors",
			fs: fstest.MapFS{
				"main.js": file(`define(['foo'], function () { var x = ; });`),
				"foo.js":  file(`define(function () {});`),
			},
			want: map[string][]string{"main": {"foo"}, "foo": {}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := traceFS(t, tt.fs, nil, "main")
			if diff := cmp.Diff(tt.want, edges(res.Graph)); diff != "" {
				t.Errorf("graph mismatch (-want +got):\n%s", diff)
			}
			if len(res.Warnings) != 0 {
				t.Errorf("Warnings = %v, want none", res.Warnings)
			}
			if diff := cmp.Diff([]string{"main"}, res.ResolvedEntryIDs); diff != "" {
				t.Errorf("ResolvedEntryIDs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTraceMissingDependency(t *testing.T) {
	res := traceFS(t, fstest.MapFS{
		"main.js": file(`define(['foo'], function () {});`),
	}, nil, "main")

	want := map[string][]string{"main": {"foo"}, "foo": {}}
	if diff := cmp.Diff(want, edges(res.Graph)); diff != "" {
		t.Errorf("graph mismatch (-want +got):\n%s", diff)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want 1", res.Warnings)
	}
	w := res.Warnings[0]
	if w.Type != UnreadableDependency || w.ResolvedID != "foo" || w.Issuer != "main" || w.Path != "foo.js" {
		t.Errorf("Warning = %+v", w)
	}
}

func TestTraceMissingEntryPoint(t *testing.T) {
	res, err := Trace(context.Background(), []string{"main"}, nil, filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("Trace() error = %v", err)
	}
	if diff := cmp.Diff(map[string][]string{"main": {}}, edges(res.Graph)); diff != "" {
		t.Errorf("graph mismatch (-want +got):\n%s", diff)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Issuer != IssuerEntryPoint {
		t.Errorf("Warnings = %+v, want one from the entry point", res.Warnings)
	}
}

func TestTraceMixins(t *testing.T) {
	cfg := requireconfig.New()
	cfg.Mixins["foo"] = &requireconfig.MixinSet{}
	cfg.Mixins["foo"].Set("foo-mixin", true)
	cfg.Mixins["foo"].Set("disabled-mixin", false)

	res := traceFS(t, fstest.MapFS{
		"main.js":      file(`define(['foo'], function () {});`),
		"foo.js":       file(`define(['module'], function () {});`),
		"foo-mixin.js": file(`define(['require'], function () {});`),
	}, cfg, "main")

	want := map[string][]string{
		"main":      {"foo"},
		"foo":       {"foo-mixin", "module"},
		"foo-mixin": {"require"},
	}
	if diff := cmp.Diff(want, edges(res.Graph)); diff != "" {
		t.Errorf("graph mismatch (-want +got):\n%s", diff)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", res.Warnings)
	}
}

func TestTraceUsesConfig(t *testing.T) {
	cfg, err := requireconfig.Evaluate(context.Background(), []byte(`
require.config({
    map: { '*': { ko: 'knockoutjs/knockout' } },
    paths: { 'jquery/ui': 'jquery/jquery-ui' }
});`))
	if err != nil {
		t.Fatal(err)
	}

	res := traceFS(t, fstest.MapFS{
		"main.js":                file(`define(['ko', 'jquery/ui'], function () {});`),
		"knockoutjs/knockout.js": file(`define(function () {});`),
		"jquery/jquery-ui.js":    file(`define(function () {});`),
	}, cfg, "main")

	want := map[string][]string{
		"main":                {"knockoutjs/knockout", "jquery/ui"},
		"knockoutjs/knockout": {},
		"jquery/ui":           {},
	}
	if diff := cmp.Diff(want, edges(res.Graph)); diff != "" {
		t.Errorf("graph mismatch (-want +got):\n%s", diff)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", res.Warnings)
	}
}

func TestTraceKeyOrderIsBreadthFirst(t *testing.T) {
	res := traceFS(t, fstest.MapFS{
		"main.js": file(`define(['a', 'b'], function () {});`),
		"a.js":    file(`define(['c'], function () {});`),
		"b.js":    file(`define(['d'], function () {});`),
		"c.js":    file(`define(function () {});`),
		"d.js":    file(`define(function () {});`),
	}, nil, "main")

	if diff := cmp.Diff([]string{"main", "a", "b", "c", "d"}, res.Graph.IDs()); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
}

func TestTraceIncompleteAnalysis(t *testing.T) {
	res := traceFS(t, fstest.MapFS{
		"main.js": file(`define(['foo', dynamicDep], function () {});`),
		"foo.js":  file(`define(function () {});`),
	}, nil, "main")

	if diff := cmp.Diff([]string{"main"}, res.Incomplete); diff != "" {
		t.Errorf("Incomplete mismatch (-want +got):\n%s", diff)
	}
}

func TestTraceDeterministicAcrossConcurrency(t *testing.T) {
	fsys := fstest.MapFS{}
	var mainDeps string
	for i := 0; i < 40; i++ {
		if i > 0 {
			mainDeps += ", "
		}
		mainDeps += fmt.Sprintf("'m%d'", i)
		fsys[fmt.Sprintf("m%d.js", i)] = file(fmt.Sprintf(`define(['m%d'], function () {});`, (i+7)%40))
	}
	fsys["main.js"] = file(`define([` + mainDeps + `], function () {});`)

	var first string
	for i, n := range []int{1, 4, 64} {
		res, err := Trace(context.Background(), []string{"main"}, nil, ".", WithFS(fsys), WithConcurrency(n))
		if err != nil {
			t.Fatalf("Trace(concurrency=%d) error = %v", n, err)
		}
		data, err := res.Graph.MarshalJSON()
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = string(data)
			continue
		}
		if diff := cmp.Diff(first, string(data)); diff != "" {
			t.Errorf("graph differs at concurrency %d (-first +got):\n%s", n, diff)
		}
	}
}

func TestTraceBoundsConcurrentReads(t *testing.T) {
	var inFlight, peak atomic.Int32
	fsys := fstest.MapFS{"main.js": file(`define(['a', 'b', 'c', 'd', 'e'], function () {});`)}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		fsys[id+".js"] = file(`define(function () {});`)
	}
	read := func(name string) ([]byte, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		return fsys.ReadFile(name)
	}

	_, err := Trace(context.Background(), []string{"main"}, nil, ".", WithReadFile(read), WithConcurrency(2))
	if err != nil {
		t.Fatalf("Trace() error = %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrent reads = %d, want <= 2", got)
	}
}

func TestTraceCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Trace(ctx, []string{"main"}, nil, ".", WithFS(fstest.MapFS{
		"main.js": file(`define(function () {});`),
	}))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Trace() error = %v, want context.Canceled", err)
	}
}

func TestTraceReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.js"), []byte(`define(['exports'], function () {});`), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := Trace(context.Background(), []string{"main"}, nil, dir)
	if err != nil {
		t.Fatalf("Trace() error = %v", err)
	}
	if diff := cmp.Diff(map[string][]string{"main": {"exports"}}, edges(res.Graph)); diff != "" {
		t.Errorf("graph mismatch (-want +got):\n%s", diff)
	}
}
