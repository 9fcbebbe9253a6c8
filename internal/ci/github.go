package ci

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/albertocavalcante/amdpack/internal/cli"
	"github.com/albertocavalcante/amdpack/internal/optimize"
)

// GitHubHandler writes a build report in GitHub Actions format.
type GitHubHandler struct {
	Config Config
}

// Handle writes annotations, the job summary and step outputs.
func (h *GitHubHandler) Handle(report *optimize.Report, stdout, stderr io.Writer) error {
	if h.Config.Annotations {
		h.writeAnnotations(report, stdout)
	}

	if h.Config.Summary {
		if err := h.writeSummary(report); err != nil {
			cli.Writef(stderr, "amdpack ci: warning: writing summary: %v\n", err)
		}
	}

	if err := h.writeOutputs(report); err != nil {
		cli.Writef(stderr, "amdpack ci: warning: writing outputs: %v\n", err)
	}

	return nil
}

// writeAnnotations outputs workflow commands: an error per failed theme and
// a warning per unreadable dependency.
func (h *GitHubHandler) writeAnnotations(report *optimize.Report, w io.Writer) {
	for _, theme := range report.Themes {
		if !theme.Success {
			cli.Writef(w, "::error title=amdpack::Optimizing %s failed: %s\n",
				theme.ThemeID, escapeAnnotation(theme.Reason))
			continue
		}
		for _, warning := range theme.Warnings {
			cli.Writef(w, "::warning file=%s,title=Unreadable dependency::%s required by %s was left out of the %s bundle\n",
				escapeProperty(relPath(report.Root, warning.Path)), warning.ResolvedID, warning.Issuer, theme.ThemeID)
		}
	}
}

// relPath makes p relative to root for cleaner annotations.
func relPath(root, p string) string {
	if root == "" {
		return p
	}
	if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return p
}

// writeSummary appends a Markdown summary to $GITHUB_STEP_SUMMARY.
func (h *GitHubHandler) writeSummary(report *optimize.Report) error {
	summaryPath := os.Getenv("GITHUB_STEP_SUMMARY")
	if summaryPath == "" {
		return nil
	}

	f, err := os.OpenFile(summaryPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintln(f, "## 📦 amdpack bundles")
	fmt.Fprintln(f)
	fmt.Fprintln(f, "| Theme | Status | Modules | Bundle | Minified | Warnings |")
	fmt.Fprintln(f, "|-------|--------|---------|--------|----------|----------|")
	for _, t := range report.Themes {
		if !t.Success {
			fmt.Fprintf(f, "| %s | ❌ Failed | | | | |\n", t.ThemeID)
			continue
		}
		fmt.Fprintf(f, "| %s | ✅ Built | %d | %s | %s | %d |\n",
			t.ThemeID, modules(t), cli.FormatBytes(t.CoreBundleBytesBeforeMin), cli.FormatBytes(t.CoreBundleBytesAfterMin), len(t.Warnings))
	}
	fmt.Fprintln(f)

	if failed := report.Failed(); len(failed) > 0 {
		fmt.Fprintln(f, "<details>")
		fmt.Fprintln(f, "<summary>❌ Failed themes</summary>")
		fmt.Fprintln(f)
		fmt.Fprintln(f, "```")
		for _, t := range failed {
			fmt.Fprintf(f, "%s\n  %s\n", t.ThemeID, strings.ReplaceAll(t.Reason, "\n", "\n  "))
		}
		fmt.Fprintln(f, "```")
		fmt.Fprintln(f, "</details>")
	}

	return nil
}

// writeOutputs writes step outputs to $GITHUB_OUTPUT.
func (h *GitHubHandler) writeOutputs(report *optimize.Report) error {
	outputPath := os.Getenv("GITHUB_OUTPUT")
	if outputPath == "" {
		return nil
	}

	f, err := os.OpenFile(outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	failed := len(report.Failed())
	fmt.Fprintf(f, "built=%d\n", len(report.Themes)-failed)
	fmt.Fprintf(f, "failed=%d\n", failed)
	fmt.Fprintf(f, "warnings=%d\n", report.WarningCount())

	return nil
}

// escapeAnnotation escapes a workflow command message.
func escapeAnnotation(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}

// escapeProperty escapes a workflow command property value.
func escapeProperty(s string) string {
	s = escapeAnnotation(s)
	s = strings.ReplaceAll(s, ":", "%3A")
	s = strings.ReplaceAll(s, ",", "%2C")
	return s
}
