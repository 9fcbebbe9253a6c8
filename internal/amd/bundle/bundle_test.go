package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/albertocavalcante/amdpack/internal/amd/requireconfig"
)

// files returns a reader over an in-memory tree rooted at "root".
func files(m map[string]string) func(string) ([]byte, error) {
	return func(name string) ([]byte, error) {
		rel, err := filepath.Rel("root", name)
		if err != nil {
			return nil, err
		}
		src, ok := m[filepath.ToSlash(rel)]
		if !ok {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
		return []byte(src), nil
	}
}

func assemble(t *testing.T, cfg *requireconfig.Config, m map[string]string, deps ...string) *Bundle {
	t.Helper()
	b, err := NewAssembler("root", cfg, WithReadFile(files(m))).Assemble(context.Background(), "core-bundle", deps)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	return b
}

func TestAssemble(t *testing.T) {
	shimmed := requireconfig.New()
	shimmed.Shim["main"] = requireconfig.Shim{Deps: []string{"jquery"}}

	tests := []struct {
		name     string
		cfg      *requireconfig.Config
		files    map[string]string
		deps     []string
		want     string
		wantKind Kind
	}{
		{
			name:     "html file loaded with text plugin",
			files:    map[string]string{"template.html": "<div>Hello World</div>\n"},
			deps:     []string{"text!template.html"},
			want:     "define('text!template.html', function() {\n    return '<div>Hello World</div>';\n});\n",
			wantKind: KindText,
		},
		{
			name:     "json file loaded with text plugin",
			files:    map[string]string{"js-translation.json": `{"hello": "world" }`},
			deps:     []string{"text!js-translation.json"},
			want:     "define('text!js-translation.json', function() {\n    return '{\"hello\": \"world\" }';\n});\n",
			wantKind: KindText,
		},
		{
			name:     "named module keeps its name",
			files:    map[string]string{"main.js": "define('main', function() {\n    console.log('hello world');\n});\n"},
			deps:     []string{"main"},
			want:     "define('main', function() {\n    console.log('hello world');\n});\n",
			wantKind: KindNamed,
		},
		{
			name:     "anonymous module gets a name",
			files:    map[string]string{"main.js": "define(function() {\n    console.log('hello world');\n});"},
			deps:     []string{"main"},
			want:     "define('main', function() {\n    console.log('hello world');\n});\n",
			wantKind: KindAnonymous,
		},
		{
			name:     "space before invocation",
			files:    map[string]string{"main.js": `define  (['foo'], function(foo) {});`},
			deps:     []string{"main"},
			want:     "define  ('main', ['foo'], function(foo) {});\n",
			wantKind: KindAnonymous,
		},
		{
			name: "umd wrapper",
			files: map[string]string{"lib.js": "(function (factory) {\n" +
				"    if (typeof define === 'function' && define.amd) { define(['jquery'], factory); }\n" +
				"}(function ($) {}));"},
			deps: []string{"lib"},
			want: "(function (factory) {\n" +
				"    if (typeof define === 'function' && define.amd) { define('lib', ['jquery'], factory); }\n" +
				"}(function ($) {}));\n",
			wantKind: KindAnonymous,
		},
		{
			name:  "non-AMD module with shim",
			cfg:   shimmed,
			files: map[string]string{"main.js": "$(function() {\n});"},
			deps:  []string{"main"},
			want: "define('main', [\"jquery\"], function() {\n" +
				"(function() {\n" +
				"$(function() {\n" +
				"});\n" +
				"})();\n" +
				"});\n",
			wantKind: KindShimmed,
		},
		{
			name:  "non-AMD module without shim",
			files: map[string]string{"main.js": "// define(function () {})\nconsole.log(\"Hello World\");"},
			deps:  []string{"main"},
			want: "define('main', function() {\n" +
				"    // stub for non-AMD module (no shim config was found for this module)\n" +
				"});\n" +
				"// Original code for non-AMD module main\n" +
				"// define(function () {})\n" +
				"console.log(\"Hello World\");\n",
			wantKind: KindNonAMD,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := assemble(t, tt.cfg, tt.files, tt.deps...)
			if diff := cmp.Diff(tt.want, string(b.Code)); diff != "" {
				t.Errorf("Code mismatch (-want +got):\n%s", diff)
			}
			if got := b.Modules[0].Kind; got != tt.wantKind {
				t.Errorf("Kind = %q, want %q", got, tt.wantKind)
			}
		})
	}
}

func TestAssembleShimExports(t *testing.T) {
	cfg := requireconfig.New()
	cfg.Shim["moment"] = requireconfig.Shim{Exports: "moment"}
	b := assemble(t, cfg, map[string]string{"moment.js": "window.moment = {};"}, "moment")

	want := "define('moment', [], function() {\n" +
		"(function() {\n" +
		"window.moment = {};\n" +
		"})();\n" +
		"return window['moment'];\n" +
		"});\n"
	if diff := cmp.Diff(want, string(b.Code)); diff != "" {
		t.Errorf("Code mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleKeepsOrderAndSeparates(t *testing.T) {
	b := assemble(t, nil, map[string]string{
		"a.js": "window.a = 1",
		"b.js": "define(function () {});",
	}, "a", "b")

	if b.Filename != "core-bundle.js" {
		t.Errorf("Filename = %q", b.Filename)
	}
	code := string(b.Code)
	if !strings.Contains(code, "window.a = 1\n;\ndefine('b', function () {});") {
		t.Errorf("modules not separated in order:\n%s", code)
	}
	if diff := cmp.Diff([]Module{
		{ID: "a", Path: "a.js", Kind: KindNonAMD},
		{ID: "b", Path: "b.js", Kind: KindAnonymous},
	}, b.Modules); diff != "" {
		t.Errorf("Modules mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleUnreadableModule(t *testing.T) {
	_, err := NewAssembler("root", nil, WithReadFile(files(map[string]string{
		"main.js": "define(function () {});",
	}))).Assemble(context.Background(), "core-bundle", []string{"main", "missing"})
	if err == nil {
		t.Fatal("Assemble() succeeded, want error")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Assemble() error = %v, want fs.ErrNotExist", err)
	}
	if !strings.Contains(err.Error(), `"missing"`) {
		t.Errorf("Assemble() error = %q, want it to name the module", err)
	}
}

func TestAssembleSourceMap(t *testing.T) {
	b, err := NewAssembler("root", nil,
		WithReadFile(files(map[string]string{
			"a.js":   "define(function () {});",
			"t.html": "<p>hi</p>",
		})),
		WithSourcePrefix("../"),
	).Assemble(context.Background(), "core-bundle", []string{"a", "text!t.html"})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	var sm struct {
		Version  int      `json:"version"`
		File     string   `json:"file"`
		Sources  []string `json:"sources"`
		Mappings string   `json:"mappings"`
	}
	if err := json.Unmarshal(b.Map, &sm); err != nil {
		t.Fatalf("invalid source map: %v", err)
	}
	if sm.Version != 3 || sm.File != "core-bundle.js" {
		t.Errorf("version = %d, file = %q", sm.Version, sm.File)
	}
	if diff := cmp.Diff([]string{"../a.js", "../t.html"}, sm.Sources); diff != "" {
		t.Errorf("Sources mismatch (-want +got):\n%s", diff)
	}
	if sm.Mappings != "AAAA;;ACAA;;" {
		t.Errorf("Mappings = %q, want %q", sm.Mappings, "AAAA;;ACAA;;")
	}
	if got, want := strings.Count(sm.Mappings, ";")+1, strings.Count(string(b.Code), "\n")+1; got != want {
		t.Errorf("source map covers %d lines, code has %d", got, want)
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `<span>Hello World ''"</span>`, want: `<span>Hello World \'\'"</span>`},
		{in: "a\nb\tc\r", want: `a\nb\tc\r`},
		{in: `back\slash`, want: `back\\slash`},
		{in: "\v\b\f", want: `\x0B\b\f`},
		{in: "\x00a", want: `\0a`},
		{in: "\x001", want: `\x001`},
		{in: "é", want: `\xE9`},
		{in: "€", want: `\u20AC`},
		{in: "💩", want: `\uD83D\uDCA9`},
		{in: "\xff", want: `\xFF`},
	}
	for _, tt := range tests {
		if got := quote(tt.in); got != tt.want {
			t.Errorf("quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestWriteVLQ(t *testing.T) {
	tests := map[int]string{0: "A", 1: "C", -1: "D", 15: "e", 16: "gB", -16: "hB", 1000: "w+B"}
	for v, want := range tests {
		var b strings.Builder
		writeVLQ(&b, v)
		if got := b.String(); got != want {
			t.Errorf("writeVLQ(%d) = %q, want %q", v, got, want)
		}
	}
}
