package amdpack

import (
	"github.com/spf13/cobra"

	"github.com/albertocavalcante/amdpack/internal/ci"
	"github.com/albertocavalcante/amdpack/internal/cli"
)

func newCICmd(e *env) *cobra.Command {
	cfg := ci.Config{}
	var system string
	cmd := &cobra.Command{
		Use:   "ci",
		Short: "Report a JSON build report to the CI system",
		Long: `CI reads the output of "amdpack build --json" from stdin and writes it in the
format of the CI system: annotations, a job summary and step outputs on
GitHub Actions, plain text elsewhere.

The system is detected from the environment unless --system is given.`,
		Example: `  amdpack build --json | amdpack ci --strict`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.System = ci.System(system)
			if code := ci.Run(cfg, e.stdin, e.stdout, e.stderr); code != cli.ExitOK {
				return &cli.ExitCodeError{Code: code}
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&system, "system", "", "CI system: github, gitlab, circleci, azure, jenkins, generic (default: detect)")
	flags.BoolVar(&cfg.Annotations, "annotations", true, "write annotations for failures and warnings")
	flags.BoolVar(&cfg.Summary, "summary", true, "write a job summary")
	flags.BoolVar(&cfg.Quiet, "quiet", false, "only write failures")
	flags.BoolVar(&cfg.Strict, "strict", false, "exit with code 2 when a dependency could not be read")
	return cmd
}
