package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/albertocavalcante/amdpack/internal/amd/amderr"
)

// newStore creates an installation root with the given directories.
func newStore(t *testing.T, dirs ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, d := range append([]string{"app", "vendor", "pub/static"}, dirs...) {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

var (
	luma  = Theme{Area: AreaFrontend, Vendor: "Magento", Name: "luma"}
	blank = Theme{Area: AreaFrontend, Vendor: "Magento", Name: "blank"}
	admin = Theme{Area: AreaAdminhtml, Vendor: "Magento", Name: "backend"}
)

func TestFindRoot(t *testing.T) {
	root := newStore(t, "app/code/Vendor/Module")

	got, err := FindRoot(filepath.Join(root, "app", "code", "Vendor", "Module"))
	if err != nil {
		t.Fatalf("FindRoot() error = %v", err)
	}
	if got != root {
		t.Errorf("FindRoot() = %q, want %q", got, root)
	}
}

func TestFindRootNotFound(t *testing.T) {
	_, err := FindRoot(t.TempDir())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindRoot() error = %v, want ErrNotFound", err)
	}
	if _, ok := amderr.As(err); !ok {
		t.Errorf("FindRoot() error is not a user error: %v", err)
	}
}

func TestDeployedThemes(t *testing.T) {
	root := newStore(t,
		"pub/static/frontend/Magento/luma/en_US",
		"pub/static/frontend/Magento/blank/en_US",
		"pub/static/frontend/Magento/.hidden",
		"pub/static/adminhtml/Magento/backend/en_US",
	)
	if err := os.WriteFile(filepath.Join(root, "pub/static/frontend/Magento/file.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := DeployedThemes(root)
	if err != nil {
		t.Fatalf("DeployedThemes() error = %v", err)
	}
	if diff := cmp.Diff([]Theme{blank, luma, admin}, got); diff != "" {
		t.Errorf("DeployedThemes() mismatch (-want +got):\n%s", diff)
	}
}

func TestLocales(t *testing.T) {
	root := newStore(t,
		"pub/static/frontend/Magento/luma/en_US",
		"pub/static/frontend/Magento/luma/fr_FR",
		"pub/static/frontend/Magento/luma/de",
		"pub/static/frontend/Magento/luma/amdpack",
		"pub/static/frontend/Magento/luma/en_US_extra",
	)

	got, err := Locales(root, luma)
	if err != nil {
		t.Fatalf("Locales() error = %v", err)
	}
	if diff := cmp.Diff([]string{"de", "en_US", "fr_FR"}, got); diff != "" {
		t.Errorf("Locales() mismatch (-want +got):\n%s", diff)
	}
}

func TestTheme(t *testing.T) {
	if got := luma.ID(); got != "Magento/luma" {
		t.Errorf("ID() = %q", got)
	}
	if got := luma.String(); got != "frontend/Magento/luma" {
		t.Errorf("String() = %q", got)
	}
	if got, want := luma.StaticDir(), filepath.Join("pub", "static", "frontend", "Magento", "luma"); got != want {
		t.Errorf("StaticDir() = %q, want %q", got, want)
	}
}

func TestEligibleThemes(t *testing.T) {
	tests := []struct {
		name     string
		deployed []Theme
		want     []Theme
	}{
		{name: "none deployed", deployed: nil, want: nil},
		{name: "only luma", deployed: []Theme{luma}, want: []Theme{luma}},
		{name: "blank and admin excluded", deployed: []Theme{blank, luma, admin}, want: []Theme{luma}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, EligibleThemes(tt.deployed)); diff != "" {
				t.Errorf("EligibleThemes() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSelectThemes(t *testing.T) {
	deployed := []Theme{blank, luma, admin}

	got, err := SelectThemes(deployed, nil)
	if err != nil {
		t.Fatalf("SelectThemes(nil) error = %v", err)
	}
	if diff := cmp.Diff([]Theme{luma}, got); diff != "" {
		t.Errorf("SelectThemes(nil) mismatch (-want +got):\n%s", diff)
	}

	got, err = SelectThemes(deployed, []string{"Magento/luma"})
	if err != nil {
		t.Fatalf("SelectThemes(luma) error = %v", err)
	}
	if diff := cmp.Diff([]Theme{luma}, got); diff != "" {
		t.Errorf("SelectThemes(luma) mismatch (-want +got):\n%s", diff)
	}

	_, err = SelectThemes(deployed, []string{"Magento/luma", "Magento/blank", "Acme/missing"})
	if !errors.Is(err, ErrThemeNotFound) {
		t.Fatalf("SelectThemes() error = %v, want ErrThemeNotFound", err)
	}
	if !strings.Contains(err.Error(), "2 of them is not optimizable (Magento/blank, Acme/missing)") {
		t.Errorf("SelectThemes() error = %q", err)
	}
}
