package optimize

import (
	"github.com/albertocavalcante/amdpack/internal/amd/graph"
	"github.com/albertocavalcante/amdpack/internal/amd/trace"
)

// Report is the outcome of a build.
type Report struct {
	Root   string        `json:"root"`
	Themes []ThemeReport `json:"themes"`
}

// ThemeReport describes the build of one theme. A failed theme has
// Success false and Reason set.
type ThemeReport struct {
	ThemeID string `json:"themeID"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`

	BaseLocale  string          `json:"baseLocale,omitempty"`
	Locales     []string        `json:"locales,omitempty"`
	EntryPoints []string        `json:"entryPoints,omitempty"`
	Graph       *graph.Graph    `json:"graph,omitempty"`
	Warnings    []trace.Warning `json:"warnings,omitempty"`
	Incomplete  []string        `json:"incomplete,omitempty"`
	BundleDeps  []string        `json:"bundleDeps,omitempty"`

	CoreBundleBytesBeforeMin    int `json:"coreBundleBytesBeforeMin,omitempty"`
	CoreBundleBytesAfterMin     int `json:"coreBundleBytesAfterMin,omitempty"`
	RequireConfigBytesBeforeMin int `json:"requireConfigBytesBeforeMin,omitempty"`
	RequireConfigBytesAfterMin  int `json:"requireConfigBytesAfterMin,omitempty"`

	// Sources lists the files the bundle was built from, including the
	// RequireJS config.
	Sources []string `json:"sources,omitempty"`

	// GeneratedConfig is the bundle config before minification.
	GeneratedConfig string `json:"-"`
	// OriginalConfig is the RequireJS config it was generated from.
	OriginalConfig string `json:"-"`

	// Files lists what was written, relative to the store root.
	Files        []string `json:"files,omitempty"`
	FailedWrites []string `json:"failedWrites,omitempty"`
}

// Failed returns the themes that could not be built.
func (r *Report) Failed() []ThemeReport {
	var out []ThemeReport
	for _, t := range r.Themes {
		if !t.Success {
			out = append(out, t)
		}
	}
	return out
}

// WarningCount is the number of warnings across all themes.
func (r *Report) WarningCount() int {
	n := 0
	for _, t := range r.Themes {
		n += len(t.Warnings)
	}
	return n
}
