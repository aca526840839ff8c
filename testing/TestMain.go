// Package testing switches the process into test mode on import, so binaries
// and wiring code skip network side effects under go test.
package testing

import (
	"os"
	stdtesting "testing"
)

func init() {
	if os.Getenv("ODYSSEY_TEST_MODE") == "" {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
	}
}

// TestMain lets packages that define no TestMain of their own reuse this one.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
