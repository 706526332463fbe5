// Package orchestrator exposes the capability operations of the system.
//
// Each operation is a unit of work: it resolves the aggregates involved,
// takes their locks, drives the engines in write-through order, and emits
// events for every successful mutation. The orchestrator owns no state of
// its own; everything flows through the store, the snapshot store, and the
// engines handed to New.
package orchestrator

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/skillmeat/skillmeat/internal/composite"
	"github.com/skillmeat/skillmeat/internal/contextpack"
	"github.com/skillmeat/skillmeat/internal/deploy"
	"github.com/skillmeat/skillmeat/internal/events"
	"github.com/skillmeat/skillmeat/internal/fsio"
	"github.com/skillmeat/skillmeat/internal/locks"
	"github.com/skillmeat/skillmeat/internal/memory"
	"github.com/skillmeat/skillmeat/internal/snapshot"
	"github.com/skillmeat/skillmeat/internal/storage"
	"github.com/skillmeat/skillmeat/internal/syncer"
	"github.com/skillmeat/skillmeat/internal/types"
)

// retryAttempts bounds automatic retries on concurrent-modification errors.
const retryAttempts = 3

// Deps wires an orchestrator. Store, Snapshots, and Locks are required;
// nil engines are built from them, a nil Bus becomes a fresh one.
type Deps struct {
	Store      storage.Storage
	Snapshots  *snapshot.Store
	Locks      *locks.Director
	Bus        *events.Bus
	Composites *composite.Engine
	Deployer   *deploy.Engine
	Syncer     *syncer.Engine
	Extractor  *memory.Extractor
	Packer     *contextpack.Packer

	// Identity is recorded on snapshots and provenance ("local" when empty).
	Identity string
}

// Orchestrator coordinates capability operations across the store, the
// filesystem, and the engines.
type Orchestrator struct {
	store storage.Storage
	snaps *snapshot.Store
	locks *locks.Director
	bus   *events.Bus
	comp  *composite.Engine
	depl  *deploy.Engine
	sync  *syncer.Engine
	mem   *memory.Extractor
	pack  *contextpack.Packer
	by    string
}

// New builds an orchestrator from deps.
func New(d Deps) (*Orchestrator, error) {
	if d.Store == nil {
		return nil, &types.ValidationError{Field: "store", Reason: "store is required"}
	}
	if d.Snapshots == nil {
		return nil, &types.ValidationError{Field: "snapshots", Reason: "snapshot store is required"}
	}
	if d.Locks == nil {
		return nil, &types.ValidationError{Field: "locks", Reason: "lock director is required"}
	}
	o := &Orchestrator{
		store: d.Store,
		snaps: d.Snapshots,
		locks: d.Locks,
		bus:   d.Bus,
		comp:  d.Composites,
		depl:  d.Deployer,
		sync:  d.Syncer,
		mem:   d.Extractor,
		pack:  d.Packer,
		by:    d.Identity,
	}
	if o.bus == nil {
		o.bus = events.NewBus()
	}
	if o.comp == nil {
		o.comp = composite.NewEngine(d.Store)
	}
	if o.depl == nil {
		o.depl = deploy.NewEngine(d.Store, d.Snapshots, o.comp)
	}
	if o.sync == nil {
		o.sync = syncer.NewEngine(d.Store, d.Snapshots)
	}
	if o.mem == nil {
		o.mem = memory.NewExtractor(d.Store, memory.Options{})
	}
	if o.pack == nil {
		o.pack = contextpack.New(d.Store, nil)
	}
	if o.by == "" {
		o.by = types.LocalOwner
	}
	return o, nil
}

// Bus returns the event bus mutations publish on.
func (o *Orchestrator) Bus() *events.Bus { return o.bus }

// Store exposes the underlying store for read-only listings the CLI needs.
func (o *Orchestrator) Store() storage.Storage { return o.store }

// Snapshots exposes the snapshot blob store.
func (o *Orchestrator) Snapshots() *snapshot.Store { return o.snaps }

func (o *Orchestrator) emit(entity, id string, kind events.Kind, detail map[string]string) {
	o.bus.Publish(events.Event{Entity: entity, ID: id, Kind: kind, Detail: detail})
}

// withRetry re-runs fn with a fresh plan when a concurrent modification
// invalidated the previous one. Other errors surface immediately.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = fn()
		if err == nil || !types.Retryable(err) {
			return err
		}
	}
	return err
}

// collection resolves a collection by name, falling back to the active one.
func (o *Orchestrator) collection(ctx context.Context, name string) (*types.Collection, error) {
	if name != "" {
		return o.store.GetCollectionByName(ctx, name)
	}
	return o.store.GetActiveCollection(ctx)
}

// ensureProject finds or registers the project rooted at path.
func (o *Orchestrator) ensureProject(ctx context.Context, path string) (*types.Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &types.FilesystemError{Op: "abs", Path: path, Err: err}
	}
	p, err := o.store.GetProjectByPath(ctx, abs)
	if err == nil {
		return p, nil
	}
	if !types.IsNotFound(err) {
		return nil, err
	}
	p = &types.Project{Name: filepath.Base(abs), Path: abs}
	if err := o.store.CreateProject(ctx, p); err != nil {
		if types.IsConflict(err) {
			// Raced with another invocation registering the same path.
			return o.store.GetProjectByPath(ctx, abs)
		}
		return nil, err
	}
	o.emit(events.EntityProject, p.ID, events.KindCreated, map[string]string{"path": abs})
	return p, nil
}

// splitScope breaks a snapshot scope string into its kind and id.
func splitScope(scope string) (kind, id string) {
	kind, id, ok := strings.Cut(scope, ":")
	if !ok {
		return "", scope
	}
	return kind, id
}

// scopeTarget resolves the directory a snapshot scope covers and the lock
// key guarding it.
func (o *Orchestrator) scopeTarget(ctx context.Context, scope string) (dir, lockKey string, err error) {
	kind, id := splitScope(scope)
	switch kind {
	case "collection":
		col, err := o.store.GetCollection(ctx, id)
		if err != nil {
			return "", "", err
		}
		return col.Root, locks.Collection(col.ID), nil
	case "project":
		p, err := o.store.GetProject(ctx, id)
		if err != nil {
			return "", "", err
		}
		return filepath.Join(p.Path, fsio.ClaudeDir), locks.Project(p.ID), nil
	default:
		return "", "", &types.ValidationError{Field: "scope", Reason: "unsupported snapshot scope " + scope}
	}
}
