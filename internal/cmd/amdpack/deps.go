package amdpack

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/amdpack/internal/amd/amderr"
	"github.com/albertocavalcante/amdpack/internal/amd/deps"
	"github.com/albertocavalcante/amdpack/internal/amd/template"
)

func newDepsCmd(e *env) *cobra.Command {
	var (
		asTemplate bool
		tolerant   bool
	)
	cmd := &cobra.Command{
		Use:   "deps FILE",
		Short: "Print the dependencies declared by one file",
		Long: `Deps prints the AMD dependencies of a JavaScript module, or the modules a
template (.html, .phtml) initializes through data-mage-init, x-magento-init
and knockout mageInit bindings, as JSON.

incompleteAnalysis is true when some dependency could not be determined
statically, e.g. require(variable).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			src, err := os.ReadFile(name)
			if err != nil {
				return amderr.Wrap(err, "Could not read %q", name)
			}

			var res deps.Result
			switch ext := filepath.Ext(name); {
			case asTemplate || ext == ".html" || ext == ".phtml":
				res = template.Parse(cmd.Context(), src)
			default:
				res, err = deps.Parse(cmd.Context(), src, tolerant)
				if err != nil {
					return amderr.Wrap(err, "Could not parse %q (retry with --tolerant)", name)
				}
			}
			if res.Deps == nil {
				res.Deps = []string{}
			}

			enc := json.NewEncoder(e.stdout)
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(res)
		},
	}
	cmd.Flags().BoolVar(&asTemplate, "template", false, "parse FILE as a template regardless of its extension")
	cmd.Flags().BoolVar(&tolerant, "tolerant", false, "recover from syntax errors instead of failing")
	return cmd
}
