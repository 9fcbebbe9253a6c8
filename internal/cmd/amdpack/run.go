// Package amdpack implements the amdpack command.
package amdpack

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/amdpack/internal/cli"
	"github.com/albertocavalcante/amdpack/internal/logging"
	"github.com/albertocavalcante/amdpack/internal/version"
)

// Run executes amdpack with the given arguments and returns the exit code.
// Interrupts cancel the running command.
func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunWithIO(ctx, args, os.Stdin, os.Stdout, os.Stderr)
}

// RunWithIO allows custom IO for embedding/testing.
func RunWithIO(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	e := &env{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		style:  cli.Style{Enabled: cli.ColorEnabled(stdout)},
	}
	defer e.close()

	root := newRootCmd(e)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		cli.PrintError(stderr, "amdpack", err, cli.Style{Enabled: cli.ColorEnabled(stderr)})
	}
	return cli.ExitCode(err)
}

// env is the state shared by the commands of one invocation.
type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	style  cli.Style

	logLevel   string
	traceLog   bool
	configPath string
	rootDir    string

	log *logging.Logger
}

func (e *env) close() {
	if e.log != nil {
		_ = e.log.Close()
	}
}

// setup builds the logger once flags are parsed.
func (e *env) setup() error {
	opts := logging.Options{
		Level:   e.logLevel,
		Console: e.stderr,
		Color:   cli.ColorEnabled(e.stderr),
	}
	if e.traceLog {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		opts.TraceDir = wd
	}
	l, err := logging.New(opts)
	if err != nil {
		return err
	}
	e.log = l
	if l.TracePath != "" {
		cli.Writef(e.stderr, "Writing trace log to %s\n", l.TracePath)
	}
	return nil
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "amdpack",
		Short: "Bundle the AMD modules of Magento 2 storefront themes",
		Long: `amdpack statically traces the RequireJS dependencies of deployed Magento 2
themes and writes one bundle per theme, plus a RequireJS config that tells
the loader which modules the bundle provides.

Run it from the store root after bin/magento setup:static-content:deploy.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup()
		},
	}
	root.SetVersionTemplate("amdpack {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&e.logLevel, "log-level", "", "console log level: trace, debug, info, warn, error (default warn, or $"+logging.EnvLevel+")")
	flags.BoolVar(&e.traceLog, "trace", false, "write a JSON trace log to amdpack-trace-<time>.log in the working directory")
	flags.StringVar(&e.configPath, "config", "", "amdpack config file (default: discover amdpack.toml or config.sky)")
	flags.StringVarP(&e.rootDir, "root", "C", ".", "directory inside the Magento store")

	root.AddCommand(
		newBuildCmd(e),
		newGraphCmd(e),
		newTraceCmd(e),
		newConfigCmd(e),
		newDepsCmd(e),
		newCICmd(e),
		newVersionCmd(e),
	)
	return root
}

func newVersionCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.Writef(e.stdout, "amdpack %s\n", version.String())
			return nil
		},
	}
}
