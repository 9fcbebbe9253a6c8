// Package cmdtest provides a testscript-based test harness for the amdpack
// command.
//
// Test files use the txtar format to lay out a store and state the expected
// outputs.
//
// Example test file (testdata/amdpack/build.txtar):
//
//	exec amdpack build --no-minify
//	stdout 'ok Acme/shop'
//	exists pub/static/frontend/Acme/shop/en_US/amdpack/core-bundle.js
//
//	-- app/.keep --
//	-- vendor/.keep --
//	-- pub/static/frontend/Acme/shop/en_US/requirejs-config.js --
//	require.config({ deps: ['main'] });
package cmdtest

import (
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/albertocavalcante/amdpack/internal/cli"
	"github.com/albertocavalcante/amdpack/internal/cmd/amdpack"
	"github.com/albertocavalcante/amdpack/internal/logging"
)

// Run executes the testscript tests in the given directory.
func Run(t *testing.T, dir string) {
	testscript.Run(t, testscript.Params{
		Dir: dir,
		Setup: func(env *testscript.Env) error {
			env.Setenv(cli.EnvNoColor, "1")
			env.Setenv(logging.EnvLevel, "error")
			return nil
		},
	})
}

// Main is the TestMain function that should be called from test files.
// It sets up amdpack as a testscript command.
func Main(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"amdpack": wrapRun(amdpack.Run),
	}))
}

// wrapRun wraps a Run(args []string) int function to func() int for testscript.
// The args are taken from os.Args[1:].
func wrapRun(run func(args []string) int) func() int {
	return func() int {
		return run(os.Args[1:])
	}
}
