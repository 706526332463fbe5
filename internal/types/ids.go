package types

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// ID prefixes. Artifacts use bare UUIDv4; every other entity carries a typed
// prefix so logs and ledgers stay readable.
const (
	PrefixCollection = "col"
	PrefixProject    = "prj"
	PrefixGroup      = "grp"
	PrefixComposite  = "cmp"
	PrefixSet        = "set"
	PrefixMemory     = "mem"
	PrefixSnapshot   = "snap"
	PrefixModule     = "ctx"
)

const idRandBytes = 6

// NewID returns "<prefix>-<12 hex chars>" from crypto/rand.
func NewID(prefix string) string {
	b := make([]byte, idRandBytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the platform entropy source is broken
		panic(fmt.Sprintf("id generation: %v", err))
	}
	return prefix + "-" + hex.EncodeToString(b)
}

// HasPrefix reports whether id carries the given entity prefix.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"-")
}
