// Package composite builds and resolves artifact bundles: skills with
// embedded children, manifest-driven plugins, and user-defined deployment
// sets. Sets may nest other sets; the engine keeps the membership graph
// acyclic at write time and flattens it deterministically at read time.
package composite

import (
	"context"

	"github.com/skillmeat/skillmeat/internal/storage"
	"github.com/skillmeat/skillmeat/internal/types"
)

// MaxDepth bounds set nesting during resolution. The write-time cycle check
// keeps the graph acyclic, so the limit only trips on pathological chains.
const MaxDepth = 20

// Engine implements composite import and resolution over a storage backend.
type Engine struct {
	store storage.Storage
}

// NewEngine creates a composite engine for the given storage.
func NewEngine(store storage.Storage) *Engine {
	return &Engine{store: store}
}

// Resolve flattens a deployment set into an ordered artifact list. Groups
// and nested sets are expanded depth-first in membership order; artifacts
// are deduplicated by uuid, keeping the first occurrence. The traversal is
// read-only, so identical inputs produce identical output.
func (e *Engine) Resolve(ctx context.Context, setID string) ([]*types.Artifact, error) {
	if _, err := e.store.GetSet(ctx, setID); err != nil {
		return nil, err
	}
	w := &walker{engine: e, seen: make(map[string]bool), onPath: make(map[string]bool)}
	if err := w.expandSet(ctx, setID, 1); err != nil {
		return nil, err
	}
	return w.out, nil
}

// ResolveComposite returns the children of a composite artifact (a skill
// with embedded children, or a manifest plugin) in membership order.
func (e *Engine) ResolveComposite(ctx context.Context, compositeID string) ([]*types.Artifact, error) {
	members, err := e.store.ListCompositeMembers(ctx, compositeID)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Artifact, 0, len(members))
	for _, m := range members {
		a, err := e.store.GetArtifact(ctx, m.ChildUUID)
		if types.IsNotFound(err) {
			return nil, &types.UnknownEntityError{Entity: "artifact", ID: m.ChildUUID}
		}
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// AddSetMember validates and inserts one set membership. Nested-set edges
// are rejected when the candidate child already reaches the parent, so the
// membership graph stays a DAG. Nothing is written on rejection.
func (e *Engine) AddSetMember(ctx context.Context, m *types.SetMember) error {
	if m.Kind == types.MemberSet {
		if m.MemberSetID == m.SetID {
			return &types.CyclicCompositeError{SetID: m.SetID, MemberID: m.MemberSetID}
		}
		reachable, err := e.descendantSets(ctx, m.MemberSetID)
		if err != nil {
			return err
		}
		if reachable[m.SetID] {
			return &types.CyclicCompositeError{SetID: m.SetID, MemberID: m.MemberSetID}
		}
	}
	return e.store.AddSetMember(ctx, m)
}

// descendantSets returns every set id reachable from root through nested-set
// memberships, root included.
func (e *Engine) descendantSets(ctx context.Context, rootID string) (map[string]bool, error) {
	seen := map[string]bool{rootID: true}
	stack := []string{rootID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		members, err := e.store.ListSetMembers(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if m.Kind != types.MemberSet || seen[m.MemberSetID] {
				continue
			}
			seen[m.MemberSetID] = true
			stack = append(stack, m.MemberSetID)
		}
	}
	return seen, nil
}

// walker carries traversal state for one Resolve call.
type walker struct {
	engine *Engine
	seen   map[string]bool // artifact uuids already emitted
	onPath map[string]bool // set ids on the current expansion path
	out    []*types.Artifact
}

func (w *walker) expandSet(ctx context.Context, setID string, depth int) error {
	if depth > MaxDepth {
		return &types.DepthExceededError{Limit: MaxDepth}
	}
	w.onPath[setID] = true
	defer delete(w.onPath, setID)

	members, err := w.engine.store.ListSetMembers(ctx, setID)
	if err != nil {
		return err
	}
	for _, m := range members {
		switch m.Kind {
		case types.MemberArtifact:
			if err := w.appendArtifact(ctx, m.ArtifactUUID); err != nil {
				return err
			}
		case types.MemberGroup:
			if _, err := w.engine.store.GetGroup(ctx, m.GroupID); err != nil {
				if types.IsNotFound(err) {
					return &types.UnknownEntityError{Entity: "group", ID: m.GroupID}
				}
				return err
			}
			gm, err := w.engine.store.ListGroupMembers(ctx, m.GroupID)
			if err != nil {
				return err
			}
			for _, g := range gm {
				if err := w.appendArtifact(ctx, g.ArtifactUUID); err != nil {
					return err
				}
			}
		case types.MemberSet:
			if w.onPath[m.MemberSetID] {
				return &types.CyclicCompositeError{SetID: setID, MemberID: m.MemberSetID}
			}
			if _, err := w.engine.store.GetSet(ctx, m.MemberSetID); err != nil {
				if types.IsNotFound(err) {
					return &types.UnknownEntityError{Entity: "set", ID: m.MemberSetID}
				}
				return err
			}
			if err := w.expandSet(ctx, m.MemberSetID, depth+1); err != nil {
				return err
			}
		default:
			return &types.ValidationError{Field: "kind", Reason: "unknown member kind " + string(m.Kind)}
		}
	}
	return nil
}

func (w *walker) appendArtifact(ctx context.Context, uuid string) error {
	if w.seen[uuid] {
		return nil
	}
	a, err := w.engine.store.GetArtifact(ctx, uuid)
	if types.IsNotFound(err) {
		return &types.UnknownEntityError{Entity: "artifact", ID: uuid}
	}
	if err != nil {
		return err
	}
	w.seen[uuid] = true
	w.out = append(w.out, a)
	return nil
}
