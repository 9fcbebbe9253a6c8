// Package ci reports build results to CI systems.
//
// It reads the JSON report of "amdpack build --json", auto-detects the CI
// environment and writes annotations and summaries in its format.
package ci

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/albertocavalcante/amdpack/internal/cli"
	"github.com/albertocavalcante/amdpack/internal/optimize"
)

// System represents a supported CI system.
type System string

const (
	SystemGitHub  System = "github"
	SystemGitLab  System = "gitlab"
	SystemCircle  System = "circleci"
	SystemAzure   System = "azure"
	SystemJenkins System = "jenkins"
	SystemGeneric System = "generic"
)

// Handler writes a build report for a specific CI system.
type Handler interface {
	Handle(report *optimize.Report, stdout, stderr io.Writer) error
}

// Config holds configuration for the CI reporter.
type Config struct {
	System      System
	Annotations bool
	Summary     bool
	Quiet       bool
	// Strict makes unreadable dependencies fail the job.
	Strict bool
}

// Run reads a report from stdin and writes it for cfg.System, detecting
// the system when unset. It returns the process exit code.
func Run(cfg Config, stdin io.Reader, stdout, stderr io.Writer) int {
	if cfg.System == "" {
		cfg.System = DetectSystem()
	}

	report, err := ReadReport(stdin)
	if err != nil {
		cli.Writef(stderr, "amdpack ci: reading input: %v\n", err)
		return cli.ExitError
	}

	if err := handlerFor(cfg).Handle(report, stdout, stderr); err != nil {
		cli.Writef(stderr, "amdpack ci: %v\n", err)
		return cli.ExitError
	}

	switch {
	case len(report.Failed()) > 0:
		return cli.ExitError
	case cfg.Strict && report.WarningCount() > 0:
		return cli.ExitWarning
	}
	return cli.ExitOK
}

// DetectSystem detects the CI system from environment variables.
func DetectSystem() System {
	switch {
	case os.Getenv("GITHUB_ACTIONS") == "true":
		return SystemGitHub
	case os.Getenv("GITLAB_CI") == "true":
		return SystemGitLab
	case os.Getenv("CIRCLECI") == "true":
		return SystemCircle
	case os.Getenv("TF_BUILD") == "True":
		return SystemAzure
	case os.Getenv("JENKINS_URL") != "":
		return SystemJenkins
	default:
		return SystemGeneric
	}
}

// ReadReport decodes a JSON build report.
func ReadReport(r io.Reader) (*optimize.Report, error) {
	var report optimize.Report
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return &report, nil
}

func handlerFor(cfg Config) Handler {
	switch cfg.System {
	case SystemGitHub:
		return &GitHubHandler{Config: cfg}
	case SystemGitLab:
		return &GenericHandler{Config: cfg, Name: "GitLab CI"}
	case SystemCircle:
		return &GenericHandler{Config: cfg, Name: "CircleCI"}
	case SystemAzure:
		return &GenericHandler{Config: cfg, Name: "Azure DevOps"}
	case SystemJenkins:
		return &GenericHandler{Config: cfg, Name: "Jenkins"}
	default:
		return &GenericHandler{Config: cfg, Name: "Generic"}
	}
}

// modules is the number of modules in a theme's bundle.
func modules(t optimize.ThemeReport) int {
	return len(t.BundleDeps)
}
