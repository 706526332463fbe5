package fsio

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/skillmeat/skillmeat/internal/types"
)

// JournalFileName is written at a project root while a multi-directory apply
// is in flight. Its presence marks an incomplete application.
const JournalFileName = ".skillmeat-journal.json"

// JournalEntry records one pending staging → target rename.
type JournalEntry struct {
	Target  string `json:"target"`
	Staging string `json:"staging"`
	Done    bool   `json:"done"`
}

// Journal makes a sequence of per-directory renames detectable and
// resumable. The journal is written before the first rename and updated
// after each one; a crash between renames leaves a journal whose undone
// entries identify exactly what remains.
type Journal struct {
	Op        string         `json:"op"`
	StartedAt time.Time      `json:"started_at"`
	Entries   []JournalEntry `json:"entries"`

	path string
}

// NewJournal creates a journal for an apply under root.
func NewJournal(root, op string) *Journal {
	return &Journal{
		Op:        op,
		StartedAt: time.Now().UTC(),
		path:      filepath.Join(root, JournalFileName),
	}
}

// Add registers a pending rename. Call before Begin.
func (j *Journal) Add(target, staging string) {
	j.Entries = append(j.Entries, JournalEntry{Target: target, Staging: staging})
}

// Begin persists the journal. After Begin returns, every registered rename is
// recoverable.
func (j *Journal) Begin() error {
	return j.flush()
}

// MarkDone records that entry i has been renamed into place.
func (j *Journal) MarkDone(i int) error {
	j.Entries[i].Done = true
	return j.flush()
}

// Finish removes the journal after all entries completed.
func (j *Journal) Finish() error {
	if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return &types.FilesystemError{Op: "remove journal", Path: j.path, Err: err}
	}
	return nil
}

// Pending returns the indexes of entries not yet applied.
func (j *Journal) Pending() []int {
	var idx []int
	for i, e := range j.Entries {
		if !e.Done {
			idx = append(idx, i)
		}
	}
	return idx
}

func (j *Journal) flush() error {
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return &types.FilesystemError{Op: "encode journal", Path: j.path, Err: err}
	}
	return WriteFileAtomic(j.path, data, 0600)
}

// LoadJournal reads an existing journal under root. The second return is
// false when no journal exists (the normal case).
func LoadJournal(root string) (*Journal, bool, error) {
	path := filepath.Join(root, JournalFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &types.FilesystemError{Op: "read journal", Path: path, Err: err}
	}
	var j Journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, false, &types.FilesystemError{Op: "decode journal", Path: path, Err: err}
	}
	j.path = path
	return &j, true, nil
}
