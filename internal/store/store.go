// Package store reads the layout of a Magento 2 installation: its root,
// the themes deployed to pub/static and their locales.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/albertocavalcante/amdpack/internal/amd/amderr"
)

// Area is the Magento application area a theme belongs to.
type Area string

// Areas with static content.
const (
	AreaFrontend  Area = "frontend"
	AreaAdminhtml Area = "adminhtml"
)

// blankTheme is the base theme every storefront theme inherits from. It is
// never deployed on its own, so bundling it is almost always a mistake.
const blankTheme = "Magento/blank"

// ErrNotFound is returned when no installation contains the start dir.
var ErrNotFound = errors.New("magento root not found")

// ErrThemeNotFound is returned for a theme id that is not deployed.
var ErrThemeNotFound = errors.New("theme not found")

// Theme is a deployed theme.
type Theme struct {
	Area   Area   `json:"area"`
	Vendor string `json:"vendor"`
	Name   string `json:"name"`
}

// ID returns the "Vendor/name" theme id.
func (t Theme) ID() string {
	return t.Vendor + "/" + t.Name
}

func (t Theme) String() string {
	return string(t.Area) + "/" + t.ID()
}

// StaticDir returns the theme's static directory relative to the root.
func (t Theme) StaticDir() string {
	return filepath.Join("pub", "static", string(t.Area), t.Vendor, t.Name)
}

// rootEntries must all exist in an installation root.
var rootEntries = []string{"app", "vendor", "pub"}

// FindRoot walks up from dir to the first directory containing app, vendor
// and pub.
func FindRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	for d := abs; ; {
		if isRoot(d) {
			return d, nil
		}
		parent := filepath.Dir(d)
		if parent == d {
			return "", amderr.Wrap(ErrNotFound, "Could not find a Magento 2 installation in %q or any parent directory", abs)
		}
		d = parent
	}
}

func isRoot(dir string) bool {
	for _, name := range rootEntries {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

var reThemeName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// DeployedThemes lists the themes under pub/static, frontend themes
// first, each area sorted by id.
func DeployedThemes(root string) ([]Theme, error) {
	var themes []Theme
	for _, area := range []Area{AreaFrontend, AreaAdminhtml} {
		areaDir := filepath.Join(root, "pub", "static", string(area))
		vendors, err := dirs(areaDir)
		if err != nil {
			return nil, err
		}
		for _, vendor := range vendors {
			names, err := dirs(filepath.Join(areaDir, vendor))
			if err != nil {
				return nil, err
			}
			for _, name := range names {
				if reThemeName.MatchString(name) {
					themes = append(themes, Theme{Area: area, Vendor: vendor, Name: name})
				}
			}
		}
	}
	return themes, nil
}

var reLocale = regexp.MustCompile(`(?i)^[a-z]{2}(?:_[a-z]{2})?$`)

// Locales returns the deployed locales of theme in directory order.
// Entries that are not locale codes are ignored.
func Locales(root string, theme Theme) ([]string, error) {
	entries, err := dirs(filepath.Join(root, theme.StaticDir()))
	if err != nil {
		return nil, err
	}
	locales := []string{}
	for _, e := range entries {
		if reLocale.MatchString(e) {
			locales = append(locales, e)
		}
	}
	return locales, nil
}

// Eligible reports whether theme can be bundled: a frontend theme other
// than Magento/blank.
func Eligible(theme Theme) bool {
	return theme.Area == AreaFrontend && theme.ID() != blankTheme
}

// EligibleThemes filters deployed down to the themes that can be bundled.
func EligibleThemes(deployed []Theme) []Theme {
	var out []Theme
	for _, t := range deployed {
		if Eligible(t) {
			out = append(out, t)
		}
	}
	return out
}

// SelectThemes returns the eligible themes named by ids, or all eligible
// themes when ids is empty. Unknown or ineligible ids are a user error
// listing every offending id in the order given.
func SelectThemes(deployed []Theme, ids []string) ([]Theme, error) {
	eligible := EligibleThemes(deployed)
	if len(ids) == 0 {
		return eligible, nil
	}

	var selected []Theme
	var invalid []string
	for _, id := range ids {
		i := slices.IndexFunc(eligible, func(t Theme) bool { return t.ID() == id })
		if i < 0 {
			invalid = append(invalid, id)
			continue
		}
		selected = append(selected, eligible[i])
	}
	if len(invalid) > 0 {
		return nil, amderr.Wrap(ErrThemeNotFound,
			"You specified %d theme(s) to optimize, but %d of them is not optimizable (%s).\n\n"+
				"For a theme to be optimizable, it must:\n"+
				"  - Be for the \"frontend\" area\n"+
				"  - Be deployed already with bin/magento setup:static-content:deploy\n"+
				"  - Not have the ID \"Magento/blank\"",
			len(ids), len(invalid), strings.Join(invalid, ", "))
	}
	return selected, nil
}

// dirs returns the names of the subdirectories of dir, sorted. A missing
// dir has none.
func dirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
