package ci

import (
	"io"
	"strings"

	"github.com/albertocavalcante/amdpack/internal/cli"
	"github.com/albertocavalcante/amdpack/internal/optimize"
)

// GenericHandler writes a plain text summary. Used as fallback for CI
// systems without a dedicated format.
type GenericHandler struct {
	Config Config
	Name   string
}

// Handle prints a summary of report.
func (h *GenericHandler) Handle(report *optimize.Report, stdout, _ io.Writer) error {
	if h.Config.Quiet {
		return nil
	}

	failed := report.Failed()
	cli.Writef(stdout, "amdpack bundles (%s)\n", h.Name)
	cli.Writeln(stdout, strings.Repeat("=", 40))
	cli.Writef(stdout, "Built:    %d\n", len(report.Themes)-len(failed))
	cli.Writef(stdout, "Failed:   %d\n", len(failed))
	cli.Writef(stdout, "Warnings: %d\n", report.WarningCount())
	cli.Writeln(stdout)

	for _, t := range report.Themes {
		if !t.Success {
			continue
		}
		cli.Writef(stdout, "  %s: %d modules, %s (%s minified)\n",
			t.ThemeID, modules(t), cli.FormatBytes(t.CoreBundleBytesBeforeMin), cli.FormatBytes(t.CoreBundleBytesAfterMin))
		for _, w := range t.Warnings {
			cli.Writef(stdout, "    warning: %s required by %s could not be read\n", w.ResolvedID, w.Issuer)
		}
	}

	if len(failed) > 0 {
		cli.Writeln(stdout)
		cli.Writeln(stdout, "Failed Themes:")
		cli.Writeln(stdout, strings.Repeat("-", 40))
		for _, t := range failed {
			cli.Writef(stdout, "  %s\n    %s\n", t.ThemeID, t.Reason)
		}
	}

	return nil
}
