package amdpack

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/amdpack/internal/amd/graph"
	"github.com/albertocavalcante/amdpack/internal/amd/requireconfig"
	"github.com/albertocavalcante/amdpack/internal/amd/trace"
	"github.com/albertocavalcante/amdpack/internal/cli"
	"github.com/albertocavalcante/amdpack/internal/store"
)

func newGraphCmd(e *env) *cobra.Command {
	var (
		theme  string
		locale string
		output string
		cycles bool
		bundle bool
	)
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph of a theme",
		Long: `Graph traces the entry points of a deployed theme and prints the module
graph without writing anything.

Output formats:
  json   adjacency lists, in discovery order (default)
  dot    GraphViz, entry points in bold
  list   one module id per line, entry points first
  count  module and edge totals`,
		Example: `  amdpack graph --theme Magento/luma --output dot | dot -Tsvg > luma.svg
  amdpack graph --theme Magento/luma --cycles`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := graph.ParseFormat(output)
			if err != nil {
				return err
			}
			root, err := store.FindRoot(e.rootDir)
			if err != nil {
				return err
			}
			_, dir, err := themeDir(root, theme, locale)
			if err != nil {
				return err
			}
			res, err := e.traceDir(cmd.Context(), dir, nil)
			if err != nil {
				return err
			}
			entries := nonEmptyIDs(res.ResolvedEntryIDs)

			switch {
			case cycles:
				for _, c := range res.Graph.DetectCycles() {
					cli.Writeln(e.stdout, strings.Join(c, " -> "))
				}
				return nil
			case bundle:
				excluded := make([]string, 0, len(res.Warnings))
				for _, w := range res.Warnings {
					excluded = append(excluded, w.ResolvedID)
				}
				for _, id := range graph.ComputeBundleDeps(res.Graph, entries, graph.WithExcluded(excluded...)) {
					cli.Writeln(e.stdout, id)
				}
				return nil
			}
			return graph.NewFormatter(format).Write(e.stdout, res.Graph, entries)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&theme, "theme", "t", "", "theme as Vendor/name")
	flags.StringVar(&locale, "locale", "", "locale to trace (default: the first deployed)")
	flags.StringVarP(&output, "output", "o", "json", "output format: json, dot, list, count")
	flags.BoolVar(&cycles, "cycles", false, "print dependency cycles instead")
	flags.BoolVar(&bundle, "bundle", false, "print the modules the bundle would contain, in order")
	_ = cmd.MarkFlagRequired("theme")
	return cmd
}

func newTraceCmd(e *env) *cobra.Command {
	var (
		baseDir string
		entries []string
		cfgPath string
	)
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Trace AMD dependencies from entry points in any directory",
		Long: `Trace walks the dependencies of the given entry points under --base-dir and
prints the graph, the unreadable dependencies and the resolved entry ids as
JSON. It does not need a Magento installation.

The RequireJS config is read from --require-config, or from
requirejs-config.js in the base directory when it exists. Without --entry
the config's deps are traced.`,
		Example: `  amdpack trace --base-dir pub/static/frontend/Magento/luma/en_US
  amdpack trace --base-dir web --entry app/main --entry app/admin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(baseDir)
			if err != nil {
				return err
			}
			res, err := e.traceDirWith(cmd.Context(), dir, cfgPath, entries)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(e.stdout)
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(res)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&baseDir, "base-dir", ".", "directory module paths resolve against")
	flags.StringArrayVarP(&entries, "entry", "e", nil, "entry point module id (repeatable)")
	flags.StringVar(&cfgPath, "require-config", "", "RequireJS config file (default: <base-dir>/"+requireconfig.FileName+")")
	return cmd
}

// traceDir traces a deployed locale directory with its own config.
func (e *env) traceDir(ctx context.Context, dir string, entries []string) (*trace.Result, error) {
	return e.traceDirWith(ctx, dir, "", entries)
}

func (e *env) traceDirWith(ctx context.Context, dir, cfgPath string, entries []string) (*trace.Result, error) {
	cfg := requireconfig.New()
	switch {
	case cfgPath != "":
		_, c, err := requireconfig.LoadFile(ctx, cfgPath, requireconfig.WithLogger(e.log.Logger))
		if err != nil {
			return nil, err
		}
		cfg = c
	case len(entries) == 0 || fileExists(filepath.Join(dir, requireconfig.FileName)):
		_, c, err := requireconfig.LoadFromDir(ctx, dir, requireconfig.WithLogger(e.log.Logger))
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	if len(entries) == 0 {
		var err error
		if entries, err = requireconfig.EntryPoints(cfg, dir); err != nil {
			return nil, err
		}
	}
	return trace.Trace(ctx, entries, cfg, dir, trace.WithLogger(e.log.Logger))
}

func nonEmptyIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
