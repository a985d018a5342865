package app

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

const testModeEnv = "LEDGERSIM_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether binaries should skip connecting to Postgres,
// Redis and the network listener.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	detectTestMode()
}

// SkipInTestMode logs and reports whether the named side effect is skipped.
func SkipInTestMode(logger *slog.Logger, what string) bool {
	if !InTestMode() {
		return false
	}
	if logger != nil {
		logger.Info("test mode: skipping "+what, slog.String("env", testModeEnv))
	}
	return true
}
