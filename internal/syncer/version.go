package syncer

import (
	"strings"

	"golang.org/x/mod/semver"
)

// SplitPin separates an upstream reference into its source locator and
// version pin. References without an "@" have no pin.
func SplitPin(upstream string) (source, pin string) {
	if i := strings.LastIndex(upstream, "@"); i >= 0 {
		return upstream[:i], upstream[i+1:]
	}
	return upstream, ""
}

// PinOutdated reports whether a pinned version lags the latest known one.
// Non-semver pins (branch names, commit SHAs) are never considered outdated
// by version comparison alone.
func PinOutdated(pin, latest string) bool {
	p, l := canonicalVersion(pin), canonicalVersion(latest)
	if p == "" || l == "" {
		return false
	}
	return semver.Compare(p, l) < 0
}

func canonicalVersion(v string) string {
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}
