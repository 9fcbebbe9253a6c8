package amdpack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/albertocavalcante/amdpack/internal/amd/requireconfig"
	"github.com/albertocavalcante/amdpack/internal/cli"
	"github.com/albertocavalcante/amdpack/internal/minify"
	"github.com/albertocavalcante/amdpack/internal/optimize"
	"github.com/albertocavalcante/amdpack/internal/packconfig"
	"github.com/albertocavalcante/amdpack/internal/store"
	"github.com/albertocavalcante/amdpack/internal/watch"
)

type buildFlags struct {
	themes          []string
	exclude         []string
	bundleName      string
	bundleDir       string
	noMinify        bool
	minifyWorkers   int
	readConcurrency int
	timeout         time.Duration

	watch  bool
	diff   bool
	json   bool
	strict bool
}

// config returns the flag values as a config overlay.
func (f *buildFlags) config() *packconfig.Config {
	c := &packconfig.Config{
		Build: packconfig.BuildConfig{
			Themes:        f.themes,
			BundleName:    f.bundleName,
			BundleDir:     f.bundleDir,
			Exclude:       f.exclude,
			MinifyWorkers: f.minifyWorkers,
			Timeout:       packconfig.Duration{Duration: f.timeout},
		},
		Trace: packconfig.TraceConfig{ReadConcurrency: f.readConcurrency},
	}
	if f.noMinify {
		off := false
		c.Build.Minify = &off
	}
	return c
}

func newBuildCmd(e *env) *cobra.Command {
	f := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Bundle the deployed themes of the store",
		Long: `Build traces the RequireJS entry points of each selected theme and writes,
into every deployed locale of the theme:

  <bundle_dir>/<bundle_name>.js      the bundle
  <bundle_dir>/<bundle_name>.js.map  its source map
  requirejs-bundle-config.js         the RequireJS config declaring the bundle

Without --theme every eligible theme is built. Magento/blank is never
eligible.`,
		Example: `  amdpack build
  amdpack build --theme Magento/luma --theme Acme/shop
  amdpack build --json | amdpack ci`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), e, f)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&f.themes, "theme", "t", nil, "theme to build as Vendor/name (repeatable)")
	flags.StringArrayVar(&f.exclude, "exclude", nil, "module id to leave out of the bundle (repeatable)")
	flags.StringVar(&f.bundleName, "bundle-name", "", "bundle file name without .js (default "+packconfig.DefaultBundleName+")")
	flags.StringVar(&f.bundleDir, "bundle-dir", "", "directory under each locale for the bundle (default "+packconfig.DefaultBundleDir+")")
	flags.BoolVar(&f.noMinify, "no-minify", false, "write the bundle as assembled")
	flags.IntVar(&f.minifyWorkers, "minify-workers", 0, "concurrent minifications (default: number of CPUs)")
	flags.IntVar(&f.readConcurrency, "read-concurrency", 0, "concurrent file reads per theme")
	flags.DurationVar(&f.timeout, "timeout", 0, "time limit for each theme")
	flags.BoolVarP(&f.watch, "watch", "w", false, "rebuild a theme when one of its sources changes")
	flags.BoolVar(&f.diff, "diff", false, "print the changes made to each theme's RequireJS config")
	flags.BoolVar(&f.json, "json", false, "print the build report as JSON")
	flags.BoolVar(&f.strict, "strict", false, "exit with code 2 when a dependency could not be read")
	return cmd
}

func runBuild(ctx context.Context, e *env, f *buildFlags) error {
	root, err := store.FindRoot(e.rootDir)
	if err != nil {
		return err
	}
	cfg, err := e.loadConfig(root)
	if err != nil {
		return err
	}
	cfg.Merge(f.config())
	if err := cfg.Validate(); err != nil {
		return err
	}

	deployed, err := store.DeployedThemes(root)
	if err != nil {
		return err
	}
	themes, err := store.SelectThemes(deployed, cfg.Build.Themes)
	if err != nil {
		return err
	}
	if len(themes) == 0 {
		cli.Writeln(e.stderr, "No eligible themes are deployed. Run bin/magento setup:static-content:deploy first.")
		return nil
	}

	opts := []optimize.Option{
		optimize.WithBundleName(cfg.Build.BundleName),
		optimize.WithBundleDir(cfg.Build.BundleDir),
		optimize.WithExclude(cfg.Build.Exclude...),
		optimize.WithReadConcurrency(cfg.Trace.ReadConcurrency),
		optimize.WithThemeTimeout(cfg.Build.Timeout.Duration),
		optimize.WithLogger(e.log.Logger),
	}
	if cfg.Build.MinifyEnabled() {
		workers := cfg.Build.MinifyWorkers
		if workers == 0 {
			workers = runtime.NumCPU()
		}
		pool := minify.NewPool(workers, e.log.Logger)
		defer pool.Close()
		opts = append(opts, optimize.WithMinifier(pool))
	}
	o := optimize.New(root, opts...)

	report, err := o.Run(ctx, themes)
	if err != nil {
		return err
	}
	if err := e.printReport(report, f); err != nil {
		return err
	}

	if f.watch {
		return watchBuild(ctx, e, f, o, themes, report)
	}
	return buildExit(report, f.strict)
}

func buildExit(report *optimize.Report, strict bool) error {
	switch {
	case len(report.Failed()) > 0:
		return &cli.ExitCodeError{Code: cli.ExitError}
	case strict && report.WarningCount() > 0:
		return &cli.ExitCodeError{Code: cli.ExitWarning}
	}
	return nil
}

func (e *env) printReport(report *optimize.Report, f *buildFlags) error {
	if f.json {
		enc := json.NewEncoder(e.stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(report)
	}

	for _, t := range report.Themes {
		if !t.Success {
			cli.Writef(e.stdout, "%s %s: %s\n", e.style.Red("FAIL"), t.ThemeID, t.Reason)
			continue
		}
		cli.Writef(e.stdout, "%s %s: %d modules, bundle %s, config %s, %d locale(s)\n",
			e.style.Green("ok"), t.ThemeID, len(t.BundleDeps),
			sizes(t.CoreBundleBytesBeforeMin, t.CoreBundleBytesAfterMin),
			sizes(t.RequireConfigBytesBeforeMin, t.RequireConfigBytesAfterMin),
			len(t.Locales))
		for _, w := range t.Warnings {
			cli.Writef(e.stdout, "  %s %s required by %s could not be read and was left out\n",
				e.style.Yellow("warning:"), w.ResolvedID, w.Issuer)
		}
		for _, file := range t.FailedWrites {
			cli.Writef(e.stdout, "  %s could not write %s\n", e.style.Yellow("warning:"), file)
		}
		if f.diff {
			if err := e.printDiff(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// sizes renders a before/after byte count pair.
func sizes(before, after int) string {
	if before == after {
		return cli.FormatBytes(before)
	}
	return cli.FormatBytes(before) + " -> " + cli.FormatBytes(after)
}

func (e *env) printDiff(t optimize.ThemeReport) error {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(t.OriginalConfig),
		B:        difflib.SplitLines(t.GeneratedConfig),
		FromFile: t.ThemeID + "/" + t.BaseLocale + "/" + requireconfig.FileName,
		ToFile:   t.ThemeID + "/" + t.BaseLocale + "/" + requireconfig.BundleConfigFileName,
		Context:  3,
	})
	if err != nil {
		return fmt.Errorf("diffing config of %s: %w", t.ThemeID, err)
	}
	cli.Write(e.stdout, text)
	if !strings.HasSuffix(text, "\n") {
		cli.Writeln(e.stdout, "")
	}
	return nil
}

// watchBuild rebuilds themes whose sources change until ctx is done.
func watchBuild(ctx context.Context, e *env, f *buildFlags, o *optimize.Optimizer, themes []store.Theme, report *optimize.Report) error {
	w, err := watch.New()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Close()

	byKey := make(map[string]store.Theme, len(themes))
	for i, theme := range themes {
		byKey[theme.String()] = theme
		if err := w.Track(theme.String(), report.Themes[i].Sources); err != nil {
			return err
		}
	}
	cli.Writef(e.stderr, "Watching %d file(s). Press Ctrl+C to stop.\n", len(w.WatchedFiles()))

	rebuild := func(ctx context.Context, keys []string) {
		batch := make([]store.Theme, 0, len(keys))
		for _, key := range keys {
			batch = append(batch, byKey[key])
		}
		r, err := o.Run(ctx, batch)
		if err != nil {
			return
		}
		for i, theme := range batch {
			if r.Themes[i].Success {
				if err := w.Track(theme.String(), r.Themes[i].Sources); err != nil {
					e.log.Error().Err(err).Str("theme", theme.ID()).Msg("watch failed")
				}
			}
		}
		if err := e.printReport(r, f); err != nil {
			e.log.Error().Err(err).Msg("printing report")
		}
	}
	onError := func(err error) {
		e.log.Error().Err(err).Msg("watch error")
	}

	err = watch.Loop(ctx, w, watch.DefaultDebounce, rebuild, onError)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
