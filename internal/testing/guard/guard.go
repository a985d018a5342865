// Package guard switches binaries into test mode when imported by a test, so
// commands never reach for Postgres, Redis or a listener.
package guard

import (
	"os"
	"sync"
)

const testModeEnv = "LEDGERSIM_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(testModeEnv) == "" {
			_ = os.Setenv(testModeEnv, "1")
		}
	})
}
