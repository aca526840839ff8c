package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv disables runtime side effects such as binding ports or
// connecting to backing services when set to a truthy value.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
})

// InTestMode reports whether binaries should exit before starting.
func InTestMode() bool {
	return testMode()
}
