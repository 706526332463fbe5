package sqlite

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// isUniqueConstraintError checks if error is a UNIQUE constraint violation.
// This is the only place driver error text is inspected; every caller
// translates the result into a typed ConflictError immediately.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "UNIQUE constraint failed") ||
		strings.Contains(errMsg, "constraint failed: UNIQUE")
}

// isCheckConstraintError checks if error is a CHECK constraint violation.
func isCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}

// encodeStringSlice marshals a string slice for a JSON TEXT column.
func encodeStringSlice(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	data, err := json.Marshal(ss)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeStringSlice(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// encodeStringMap marshals a string map for a JSON TEXT column.
func encodeStringMap(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func decodeStringMap(s string) map[string]string {
	if s == "" || s == "{}" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// Cursor encoding for keyset pagination. A cursor is the (created_at, id)
// pair of the last row of the previous page, so listings stay stable under
// concurrent inserts.

type cursorKey struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

func encodeCursor(createdAt time.Time, id string) string {
	data, err := json.Marshal(cursorKey{CreatedAt: createdAt, ID: id})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(cursor string) (cursorKey, bool) {
	if cursor == "" {
		return cursorKey{}, false
	}
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return cursorKey{}, false
	}
	var key cursorKey
	if err := json.Unmarshal(data, &key); err != nil {
		return cursorKey{}, false
	}
	return key, true
}
