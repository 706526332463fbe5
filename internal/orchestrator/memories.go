package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/skillmeat/skillmeat/internal/contextpack"
	"github.com/skillmeat/skillmeat/internal/events"
	"github.com/skillmeat/skillmeat/internal/memory"
	"github.com/skillmeat/skillmeat/internal/storage"
	"github.com/skillmeat/skillmeat/internal/types"
)

// ExtractMemory runs the extraction pipeline over a transcript. With apply
// set, surviving candidates are stored against the project at projectPath;
// otherwise the result is a preview.
func (o *Orchestrator) ExtractMemory(ctx context.Context, projectPath string, input []byte, apply bool) (*memory.Result, error) {
	if !apply {
		return o.mem.Extract(ctx, input)
	}
	project, err := o.ensureProject(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	res, err := o.mem.Apply(ctx, project.ID, input)
	if err != nil {
		return nil, err
	}
	o.emit(events.EntityMemory, project.ID, events.KindExtracted, map[string]string{
		"stored":     fmt.Sprintf("%d", res.Stored),
		"duplicates": fmt.Sprintf("%d", res.Duplicates),
	})
	return res, nil
}

// ListMemory pages a project's memory items.
func (o *Orchestrator) ListMemory(ctx context.Context, projectPath string, filter types.MemoryFilter, page types.Page) (*types.MemoryPage, error) {
	project, err := o.projectByPath(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	filter.ProjectID = project.ID
	return o.store.ListMemoryItems(ctx, filter, page)
}

// PromoteMemory advances an item one step up the ladder:
// candidate → active → stable.
func (o *Orchestrator) PromoteMemory(ctx context.Context, id string) (*types.MemoryItem, error) {
	item, err := o.store.GetMemoryItem(ctx, id)
	if err != nil {
		return nil, err
	}
	var next types.MemoryStatus
	switch item.Status {
	case types.MemoryCandidate:
		next = types.MemoryActive
	case types.MemoryActive:
		next = types.MemoryStable
	default:
		return nil, &types.ValidationError{Field: "status", Reason: string(item.Status) + " items cannot be promoted"}
	}
	if err := o.store.UpdateMemoryStatus(ctx, id, next); err != nil {
		return nil, err
	}
	o.emit(events.EntityMemory, id, events.KindUpdated, map[string]string{"status": string(next)})
	return o.store.GetMemoryItem(ctx, id)
}

// DeprecateMemory retires an item from packing.
func (o *Orchestrator) DeprecateMemory(ctx context.Context, id string) error {
	if err := o.store.UpdateMemoryStatus(ctx, id, types.MemoryDeprecated); err != nil {
		return err
	}
	o.emit(events.EntityMemory, id, events.KindUpdated, map[string]string{"status": string(types.MemoryDeprecated)})
	return nil
}

// MergeMemory folds the source items into target: sources deprecate and the
// target absorbs their anchors. Content is not rewritten; the target is the
// exemplar.
func (o *Orchestrator) MergeMemory(ctx context.Context, targetID string, sourceIDs []string) (*types.MemoryItem, error) {
	target, err := o.store.GetMemoryItem(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.Status == types.MemoryDeprecated {
		return nil, &types.ValidationError{Field: "target", Reason: "cannot merge into a deprecated item"}
	}

	anchors := append([]string(nil), target.Anchors...)
	have := make(map[string]bool, len(anchors))
	for _, a := range anchors {
		have[a] = true
	}

	err = o.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		for _, id := range sourceIDs {
			if id == targetID {
				return &types.ValidationError{Field: "sources", Reason: "target listed as its own source"}
			}
			src, err := o.store.GetMemoryItem(ctx, id)
			if err != nil {
				return err
			}
			if src.ProjectID != target.ProjectID {
				return &types.ValidationError{Field: "sources", Reason: "items from different projects cannot merge"}
			}
			for _, a := range src.Anchors {
				if !have[a] {
					have[a] = true
					anchors = append(anchors, a)
				}
			}
			if src.Status != types.MemoryDeprecated {
				if err := tx.UpdateMemoryStatus(ctx, id, types.MemoryDeprecated); err != nil {
					return err
				}
			}
		}
		if len(anchors) != len(target.Anchors) {
			return tx.UpdateMemoryAnchors(ctx, targetID, anchors)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.emit(events.EntityMemory, targetID, events.KindUpdated, map[string]string{
		"merged": strings.Join(sourceIDs, ","),
	})
	return o.store.GetMemoryItem(ctx, targetID)
}

// PackRequest selects memory items for injection.
type PackRequest struct {
	ProjectPath string
	// ModuleName packs one named context module. Stage packs every module
	// active in a workflow stage. When both are empty, Selectors applies.
	ModuleName string
	Stage      string
	Selectors  contextpack.Selectors
	Budget     int
}

// PackContext assembles a budget-constrained context pack.
func (o *Orchestrator) PackContext(ctx context.Context, req PackRequest) (*contextpack.Pack, error) {
	project, err := o.projectByPath(ctx, req.ProjectPath)
	if err != nil {
		return nil, err
	}

	var pack *contextpack.Pack
	switch {
	case req.ModuleName != "":
		mod, err := o.moduleByName(ctx, project.ID, req.ModuleName)
		if err != nil {
			return nil, err
		}
		pack, err = o.pack.PackModule(ctx, project.ID, mod.ID, req.Budget)
		if err != nil {
			return nil, err
		}
	case req.Stage != "":
		pack, err = o.pack.PackStage(ctx, project.ID, req.Stage, req.Budget)
		if err != nil {
			return nil, err
		}
	default:
		pack, err = o.pack.Pack(ctx, project.ID, req.Selectors, req.Budget)
		if err != nil {
			return nil, err
		}
	}

	o.emit(events.EntityModule, pack.ModuleID, events.KindPacked, map[string]string{
		"project": project.ID,
		"items":   fmt.Sprintf("%d", len(pack.Items)),
		"tokens":  fmt.Sprintf("%d", pack.TotalTokens),
	})
	return pack, nil
}

// CreateContextModule registers a named selector bundle for a project.
func (o *Orchestrator) CreateContextModule(ctx context.Context, projectPath string, mod *types.ContextModule) (*types.ContextModule, error) {
	project, err := o.ensureProject(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	mod.ProjectID = project.ID
	if err := o.store.CreateContextModule(ctx, mod); err != nil {
		return nil, err
	}
	o.emit(events.EntityModule, mod.ID, events.KindCreated, map[string]string{"name": mod.Name})
	return mod, nil
}

func (o *Orchestrator) moduleByName(ctx context.Context, projectID, name string) (*types.ContextModule, error) {
	mods, err := o.store.ListContextModules(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, m := range mods {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, &types.NotFoundError{Entity: "context module", ID: name}
}
