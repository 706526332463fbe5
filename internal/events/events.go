// Package events carries mutation notifications between components.
//
// Every successful mutation publishes one Event on the process-local Bus.
// Subscribers run synchronously in subscription order; delivery is
// at-least-once, so handlers must be idempotent. An OpsLog subscriber can
// mirror the stream to a rotated JSONL file for audit.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Kind classifies what happened to an entity.
type Kind string

const (
	KindCreated    Kind = "created"
	KindUpdated    Kind = "updated"
	KindDeleted    Kind = "deleted"
	KindDeployed   Kind = "deployed"
	KindUndeployed Kind = "undeployed"
	KindSynced     Kind = "synced"
	KindSnapshot   Kind = "snapshot"
	KindRolledBack Kind = "rolled_back"
	KindPruned     Kind = "pruned"
	KindDrifted    Kind = "drifted"
	KindExtracted  Kind = "extracted"
	KindPacked     Kind = "packed"
)

// Entity names used in events. Kept as plain strings so subscribers can
// match without importing domain packages.
const (
	EntityArtifact   = "artifact"
	EntityCollection = "collection"
	EntityProject    = "project"
	EntitySet        = "set"
	EntityGroup      = "group"
	EntityDeployment = "deployment"
	EntitySnapshot   = "snapshot"
	EntityMemory     = "memory"
	EntityModule     = "context_module"
)

// Event records one successful mutation.
type Event struct {
	Entity string            `json:"entity"`
	ID     string            `json:"id"`
	Kind   Kind              `json:"kind"`
	At     time.Time         `json:"at"`
	Detail map[string]string `json:"detail,omitempty"`
}

// Handler receives published events. Handlers must not block.
type Handler func(Event)

// Bus is an in-process fan-out of events.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]Handler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]Handler)}
}

// Subscribe registers a handler and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = h
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers ev to every subscriber. A zero At is stamped with the
// current time. Publish on a nil bus is a no-op so callers can leave the
// bus unwired in tests.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

// OpsLog appends events as JSON lines to a size-rotated log file.
type OpsLog struct {
	mu  sync.Mutex
	out *lumberjack.Logger
}

// OpsLogOptions tune rotation. Zero values fall back to defaults.
type OpsLogOptions struct {
	MaxSizeMB  int // rotate after this many megabytes (default 5)
	MaxBackups int // rotated files to keep (default 3)
	MaxAgeDays int // days to keep rotated files (default 30)
}

// OpenOpsLog creates a rotated operations log at path. The file and its
// parent directory are created lazily on first write.
func OpenOpsLog(path string, opts OpsLogOptions) *OpsLog {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 5
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 3
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = 30
	}
	return &OpsLog{out: &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}}
}

// Write appends one event as a JSON line.
func (l *OpsLog) Write(ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// Handler returns a bus handler that mirrors events into the log,
// dropping write errors: the log is an audit aid, not a ledger.
func (l *OpsLog) Handler() Handler {
	return func(ev Event) {
		_ = l.Write(ev)
	}
}

// Close flushes and closes the underlying log file.
func (l *OpsLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
