package fsio

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
)

// Canonicalize normalizes line endings to LF. Trailing newlines are
// preserved as-is; only CRLF pairs are rewritten, so binary content without
// CR bytes passes through untouched.
func Canonicalize(data []byte) []byte {
	if !bytes.Contains(data, []byte{'\r', '\n'}) {
		return data
	}
	return bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
}

// ComputeContentHash returns the hex SHA-256 of the canonicalized bytes.
// Files differing only in CRLF vs LF line endings hash equal.
func ComputeContentHash(data []byte) string {
	sum := sha256.Sum256(Canonicalize(data))
	return hex.EncodeToString(sum[:])
}

// ReadFileWithHash reads path and returns its bytes and canonical hash.
func ReadFileWithHash(path string) ([]byte, string, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return data, ComputeContentHash(data), nil
}

// DetectChanges reports whether the file at path diverges from expectedHash.
// A missing or unreadable file reports false: absence is not drift, and an
// unreadable file must not trigger a destructive repair.
func DetectChanges(expectedHash, path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return ComputeContentHash(data) != expectedHash
}
