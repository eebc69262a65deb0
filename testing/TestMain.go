// Package testing puts test binaries in test mode. Import it for its side
// effect from any test that could reach a main package.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

const testModeEnv = "SCHOOLDESK_TEST_MODE"

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv(testModeEnv, "1")
		if os.Getenv("SESSION_SECRET") == "" {
			_ = os.Setenv("SESSION_SECRET", "test-session-secret-with-32-bytes!")
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain sets test mode before running m.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
