package ci

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/albertocavalcante/amdpack/internal/cli"
)

const reportJSON = `{
  "root": "/store",
  "themes": [
    {
      "themeID": "Magento/luma",
      "success": true,
      "baseLocale": "en_US",
      "graph": {"main": ["jquery"], "jquery": []},
      "warnings": [
        {
          "type": "UnreadableDependencyWarning",
          "resolvedID": "missing",
          "path": "/store/pub/static/frontend/Magento/luma/en_US/missing.js",
          "issuer": "main"
        }
      ],
      "bundleDeps": ["main", "jquery"],
      "coreBundleBytesBeforeMin": 2048,
      "coreBundleBytesAfterMin": 512
    },
    {
      "themeID": "Acme/broken",
      "success": false,
      "reason": "Could not find any entry points"
    }
  ]
}`

func clearCIEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GITHUB_ACTIONS", "GITLAB_CI", "CIRCLECI", "TF_BUILD", "JENKINS_URL", "GITHUB_STEP_SUMMARY", "GITHUB_OUTPUT"} {
		t.Setenv(k, "")
	}
}

func TestDetectSystem(t *testing.T) {
	tests := []struct {
		env  map[string]string
		want System
	}{
		{env: nil, want: SystemGeneric},
		{env: map[string]string{"GITHUB_ACTIONS": "true"}, want: SystemGitHub},
		{env: map[string]string{"GITLAB_CI": "true"}, want: SystemGitLab},
		{env: map[string]string{"CIRCLECI": "true"}, want: SystemCircle},
		{env: map[string]string{"TF_BUILD": "True"}, want: SystemAzure},
		{env: map[string]string{"JENKINS_URL": "http://ci"}, want: SystemJenkins},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			clearCIEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if got := DetectSystem(); got != tt.want {
				t.Errorf("DetectSystem() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunGitHub(t *testing.T) {
	clearCIEnv(t)
	dir := t.TempDir()
	summary := filepath.Join(dir, "summary.md")
	output := filepath.Join(dir, "output")
	t.Setenv("GITHUB_STEP_SUMMARY", summary)
	t.Setenv("GITHUB_OUTPUT", output)

	var stdout, stderr bytes.Buffer
	code := Run(Config{System: SystemGitHub, Annotations: true, Summary: true}, strings.NewReader(reportJSON), &stdout, &stderr)
	if code != cli.ExitError {
		t.Errorf("Run() = %d, want %d (a theme failed)", code, cli.ExitError)
	}

	wantAnnotations := "::warning file=pub/static/frontend/Magento/luma/en_US/missing.js,title=Unreadable dependency::missing required by main was left out of the Magento/luma bundle\n" +
		"::error title=amdpack::Optimizing Acme/broken failed: Could not find any entry points\n"
	if diff := cmp.Diff(wantAnnotations, stdout.String()); diff != "" {
		t.Errorf("annotations mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(summary)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"| Magento/luma | ✅ Built | 2 | 2.0 KiB | 512 B | 1 |", "| Acme/broken | ❌ Failed |", "Could not find any entry points"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("summary missing %q:\n%s", want, data)
		}
	}

	data, err = os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("built=1\nfailed=1\nwarnings=1\n", string(data)); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
}

func TestRunGeneric(t *testing.T) {
	clearCIEnv(t)
	var stdout, stderr bytes.Buffer
	Run(Config{}, strings.NewReader(reportJSON), &stdout, &stderr)

	out := stdout.String()
	for _, want := range []string{
		"amdpack bundles (Generic)",
		"Built:    1",
		"Failed:   1",
		"Magento/luma: 2 modules, 2.0 KiB (512 B minified)",
		"warning: missing required by main could not be read",
		"Acme/broken\n    Could not find any entry points",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunExitCodes(t *testing.T) {
	clearCIEnv(t)
	ok := `{"themes": [{"themeID": "Magento/luma", "success": true}]}`
	warned := `{"themes": [{"themeID": "Magento/luma", "success": true, "warnings": [{"resolvedID": "x"}]}]}`

	tests := []struct {
		name   string
		input  string
		strict bool
		want   int
	}{
		{name: "ok", input: ok, want: cli.ExitOK},
		{name: "warnings", input: warned, want: cli.ExitOK},
		{name: "strict warnings", input: warned, strict: true, want: cli.ExitWarning},
		{name: "failed theme", input: reportJSON, want: cli.ExitError},
		{name: "invalid json", input: `{`, want: cli.ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if got := Run(Config{Quiet: true, Strict: tt.strict}, strings.NewReader(tt.input), &stdout, &stderr); got != tt.want {
				t.Errorf("Run() = %d, want %d (stderr: %s)", got, tt.want, stderr.String())
			}
		})
	}
}

func TestEscape(t *testing.T) {
	if got := escapeAnnotation("50%\nnext"); got != "50%25%0Anext" {
		t.Errorf("escapeAnnotation() = %q", got)
	}
	if got := escapeProperty("C:\\a,b"); got != "C%3A\\a%2Cb" {
		t.Errorf("escapeProperty() = %q", got)
	}
}
