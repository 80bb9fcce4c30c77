// Package testing flips the billing binaries into test mode. Test packages
// that may reach cmd entrypoints import it for its side effect.
package testing

import (
	"os"
	stdtesting "testing"
)

// testModeEnv mirrors app.TestModeEnv; importing app here would cycle with
// the app tests that import this package.
const testModeEnv = "BILLING_TEST_MODE"

func init() {
	if os.Getenv(testModeEnv) == "" {
		_ = os.Setenv(testModeEnv, "1")
	}
}

// TestMain runs m with test mode forced on.
func TestMain(m *stdtesting.M) {
	_ = os.Setenv(testModeEnv, "1")
	os.Exit(m.Run())
}
