package amdpack

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/albertocavalcante/amdpack/internal/amd/amderr"
	"github.com/albertocavalcante/amdpack/internal/amd/requireconfig"
	"github.com/albertocavalcante/amdpack/internal/cli"
	"github.com/albertocavalcante/amdpack/internal/packconfig"
	"github.com/albertocavalcante/amdpack/internal/store"
)

// loadConfig loads the --config file, or discovers one from root.
func (e *env) loadConfig(root string) (*packconfig.Config, error) {
	if e.configPath != "" {
		cfg, err := packconfig.LoadConfig(e.configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}
	cfg, path, err := packconfig.DiscoverConfig(root)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if path != "" {
		e.log.Debug().Str("path", path).Msg("loaded config")
	}
	return cfg, nil
}

var errThemeNotDeployed = errors.New("theme not deployed")

// themeDir returns the directory of one deployed locale of a theme. An
// empty locale selects the first one.
func themeDir(root, id, locale string) (store.Theme, string, error) {
	deployed, err := store.DeployedThemes(root)
	if err != nil {
		return store.Theme{}, "", err
	}
	i := slices.IndexFunc(deployed, func(t store.Theme) bool { return t.ID() == id || t.String() == id })
	if i < 0 {
		return store.Theme{}, "", amderr.Wrap(errThemeNotDeployed, "Theme %q is not deployed in %q", id, root)
	}
	theme := deployed[i]

	locales, err := store.Locales(root, theme)
	if err != nil {
		return theme, "", err
	}
	switch {
	case len(locales) == 0:
		return theme, "", amderr.Errorf("No deployed locales found for theme %q", theme.ID())
	case locale == "":
		locale = locales[0]
	case !slices.Contains(locales, locale):
		return theme, "", amderr.Errorf("Locale %q of theme %q is not deployed (deployed: %v)", locale, theme.ID(), locales)
	}
	return theme, filepath.Join(root, theme.StaticDir(), locale), nil
}

func newConfigCmd(e *env) *cobra.Command {
	var (
		theme     string
		locale    string
		effective bool
	)
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the RequireJS config of a theme, or the amdpack config",
		Long: `Config evaluates the requirejs-config.js of a deployed theme and prints the
merged result as JSON.

With --effective it prints the amdpack configuration in effect instead, as
TOML, after config file discovery.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := store.FindRoot(e.rootDir)
			if err != nil {
				return err
			}
			if effective {
				cfg, err := e.loadConfig(root)
				if err != nil {
					return err
				}
				return toml.NewEncoder(e.stdout).Encode(cfg)
			}
			if theme == "" {
				return amderr.Errorf("Specify a theme with --theme, or use --effective")
			}

			_, dir, err := themeDir(root, theme, locale)
			if err != nil {
				return err
			}
			_, cfg, err := requireconfig.LoadFromDir(cmd.Context(), dir, requireconfig.WithLogger(e.log.Logger))
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			cli.WriteBytes(e.stdout, append(out, '\n'))
			return nil
		},
	}
	cmd.Flags().StringVarP(&theme, "theme", "t", "", "theme as Vendor/name")
	cmd.Flags().StringVar(&locale, "locale", "", "locale to read (default: the first deployed)")
	cmd.Flags().BoolVar(&effective, "effective", false, "print the amdpack configuration instead")
	return cmd
}
