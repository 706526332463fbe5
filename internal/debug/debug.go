// Package debug provides opt-in diagnostic logging to stderr, enabled by
// setting SKILLMEAT_DEBUG to any value other than "", "0", or "false".
// Production output never goes through here; only troubleshooting detail.
package debug

import (
	"fmt"
	"os"
	"sync"
)

var (
	once    sync.Once
	enabled bool
)

// Enabled reports whether debug logging is on for this process.
func Enabled() bool {
	once.Do(func() {
		v := os.Getenv("SKILLMEAT_DEBUG")
		enabled = v != "" && v != "0" && v != "false"
	})
	return enabled
}

// Logf writes one diagnostic line to stderr when debugging is enabled.
func Logf(format string, args ...any) {
	if !Enabled() {
		return
	}
	fmt.Fprintf(os.Stderr, "skillmeat: "+format+"\n", args...)
}
