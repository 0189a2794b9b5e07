package app

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

const testModeEnv = "FISCALPOS_TEST_MODE"

// testMode caches FISCALPOS_TEST_MODE; binaries consult it before dialing
// Postgres, Redis or Gotenberg.
var testMode struct {
	sync.Mutex
	loaded bool
	on     bool
}

// InTestMode reports whether the binaries should skip runtime side effects.
func InTestMode() bool {
	testMode.Lock()
	defer testMode.Unlock()
	if !testMode.loaded {
		testMode.on = parseFlag(os.Getenv(testModeEnv))
		testMode.loaded = true
	}
	return testMode.on
}

// RefreshTestMode forces the next InTestMode call to re-read the environment.
func RefreshTestMode() {
	testMode.Lock()
	testMode.loaded = false
	testMode.Unlock()
}

func parseFlag(v string) bool {
	on, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && on
}
