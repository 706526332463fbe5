// Package contextpack assembles budget-constrained context packs from
// stored memory items.
//
// Selection is deterministic: candidates are ranked by confidence
// (descending), then recency (descending), then module priority, then ID,
// and included greedily while the running token total stays within budget.
// The same inputs always produce the same pack.
package contextpack

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/skillmeat/skillmeat/internal/storage"
	"github.com/skillmeat/skillmeat/internal/types"
)

// Estimator converts memory content to a token cost.
type Estimator interface {
	Estimate(content string) int
}

// ByteEstimator approximates tokens as ceil(bytes/4), the rough average
// for English prose and code.
type ByteEstimator struct{}

// Estimate implements Estimator.
func (ByteEstimator) Estimate(content string) int {
	return (len(content) + 3) / 4
}

// Selectors filter memory items for packing. Zero values select everything:
// no type restriction, no confidence floor, no anchor restriction.
type Selectors struct {
	Types         []types.MemoryType
	MinConfidence float64
	Anchors       []string
	Priority      int
}

// Item is one packed memory entry.
type Item struct {
	ID         string           `json:"id"`
	Type       types.MemoryType `json:"type"`
	Content    string           `json:"content"`
	Confidence float64          `json:"confidence"`
	Tokens     int              `json:"tokens"`
}

// Pack is a budgeted selection of memory items, a prefix of the ranked
// candidate list.
type Pack struct {
	ProjectID   string `json:"project_id"`
	ModuleID    string `json:"module_id,omitempty"`
	Budget      int    `json:"budget"`
	TotalTokens int    `json:"total_tokens"`
	Items       []Item `json:"items"`
	Skipped     int    `json:"skipped"` // ranked candidates that did not fit
}

// Packer selects and renders context packs.
type Packer struct {
	store storage.Storage
	est   Estimator
}

// New returns a packer backed by store. A nil estimator falls back to
// ByteEstimator.
func New(store storage.Storage, est Estimator) *Packer {
	if est == nil {
		est = ByteEstimator{}
	}
	return &Packer{store: store, est: est}
}

// candidate pairs an item with the priority of the module that selected it.
type candidate struct {
	item     *types.MemoryItem
	priority int
}

// Pack selects items for projectID matching sel, within budget tokens.
func (p *Packer) Pack(ctx context.Context, projectID string, sel Selectors, budget int) (*Pack, error) {
	if budget <= 0 {
		return nil, &types.ValidationError{Field: "budget", Reason: "must be positive"}
	}
	items, err := p.gather(ctx, projectID, sel, nil)
	if err != nil {
		return nil, err
	}
	return p.assemble(projectID, "", budget, items), nil
}

// PackModule selects items for the given context module, honoring its
// selectors and explicit member list.
func (p *Packer) PackModule(ctx context.Context, projectID, moduleID string, budget int) (*Pack, error) {
	if budget <= 0 {
		return nil, &types.ValidationError{Field: "budget", Reason: "must be positive"}
	}
	mod, err := p.store.GetContextModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	items, err := p.gatherModule(ctx, projectID, mod)
	if err != nil {
		return nil, err
	}
	pack := p.assemble(projectID, mod.ID, budget, items)
	return pack, nil
}

// PackStage merges the selections of every module of the project active in
// the given workflow stage. Modules with no declared stages are always
// active. Module priority breaks ranking ties, higher first.
func (p *Packer) PackStage(ctx context.Context, projectID, stage string, budget int) (*Pack, error) {
	if budget <= 0 {
		return nil, &types.ValidationError{Field: "budget", Reason: "must be positive"}
	}
	mods, err := p.store.ListContextModules(ctx, projectID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var merged []candidate
	for _, mod := range mods {
		if !moduleActiveIn(mod, stage) {
			continue
		}
		items, err := p.gatherModule(ctx, projectID, mod)
		if err != nil {
			return nil, err
		}
		for _, c := range items {
			if seen[c.item.ID] {
				continue
			}
			seen[c.item.ID] = true
			merged = append(merged, c)
		}
	}
	return p.assemble(projectID, "", budget, merged), nil
}

func moduleActiveIn(mod *types.ContextModule, stage string) bool {
	if len(mod.Stages) == 0 {
		return true
	}
	for _, s := range mod.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// gatherModule collects the selector matches plus the explicit members of
// mod. Explicit members bypass selector filters: listing an item by ID is
// a stronger statement than any filter.
func (p *Packer) gatherModule(ctx context.Context, projectID string, mod *types.ContextModule) ([]candidate, error) {
	sel := Selectors{
		Types:         mod.MemoryTypes,
		MinConfidence: mod.MinConfidence,
		Anchors:       mod.Anchors,
		Priority:      mod.Priority,
	}
	items, err := p.gather(ctx, projectID, sel, mod.MemberIDs)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// gather lists packable items (status active or stable) matching sel, then
// appends explicit members not already present.
func (p *Packer) gather(ctx context.Context, projectID string, sel Selectors, memberIDs []string) ([]candidate, error) {
	filter := types.MemoryFilter{ProjectID: projectID}
	if sel.MinConfidence > 0 {
		min := sel.MinConfidence
		filter.MinConfidence = &min
	}
	page, err := p.store.ListMemoryItems(ctx, filter, types.Page{})
	if err != nil {
		return nil, err
	}

	var out []candidate
	seen := make(map[string]bool)
	for _, it := range page.Items {
		if it.Status != types.MemoryActive && it.Status != types.MemoryStable {
			continue
		}
		if !matchesType(it.Type, sel.Types) {
			continue
		}
		if !matchesAnchors(it.Anchors, sel.Anchors) {
			continue
		}
		out = append(out, candidate{item: it, priority: sel.Priority})
		seen[it.ID] = true
	}

	for _, id := range memberIDs {
		if seen[id] {
			continue
		}
		it, err := p.store.GetMemoryItem(ctx, id)
		if err != nil {
			if types.IsNotFound(err) {
				continue // stale member reference
			}
			return nil, err
		}
		if it.ProjectID != projectID || it.Status == types.MemoryDeprecated {
			continue
		}
		out = append(out, candidate{item: it, priority: sel.Priority})
		seen[id] = true
	}
	return out, nil
}

func matchesType(t types.MemoryType, want []types.MemoryType) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if t == w {
			return true
		}
	}
	return false
}

// matchesAnchors reports whether an item's anchors satisfy the selector
// anchors. Unanchored items match everything; an empty selector matches
// everything. An anchored item matches when any of its anchors equals a
// selector anchor, matches it as a path pattern, or sits under it as a
// directory prefix.
func matchesAnchors(anchors, want []string) bool {
	if len(want) == 0 || len(anchors) == 0 {
		return true
	}
	for _, a := range anchors {
		for _, w := range want {
			if a == w {
				return true
			}
			if ok, err := path.Match(w, a); err == nil && ok {
				return true
			}
			if strings.HasPrefix(a, strings.TrimSuffix(w, "/")+"/") {
				return true
			}
		}
	}
	return false
}

// assemble ranks candidates and keeps the longest prefix within budget.
// Ranking: confidence desc, UpdatedAt desc, priority desc, ID asc.
func (p *Packer) assemble(projectID, moduleID string, budget int, cands []candidate) *Pack {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.item.Confidence != b.item.Confidence {
			return a.item.Confidence > b.item.Confidence
		}
		if !a.item.UpdatedAt.Equal(b.item.UpdatedAt) {
			return a.item.UpdatedAt.After(b.item.UpdatedAt)
		}
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		return a.item.ID < b.item.ID
	})

	pack := &Pack{ProjectID: projectID, ModuleID: moduleID, Budget: budget}
	for _, c := range cands {
		cost := p.est.Estimate(c.item.Content)
		if pack.TotalTokens+cost > budget {
			// Greedy prefix: the first item that does not fit ends the pack,
			// so the result stays a prefix of the ranked list.
			pack.Skipped = len(cands) - len(pack.Items)
			break
		}
		pack.Items = append(pack.Items, Item{
			ID:         c.item.ID,
			Type:       c.item.Type,
			Content:    c.item.Content,
			Confidence: c.item.Confidence,
			Tokens:     cost,
		})
		pack.TotalTokens += cost
	}
	return pack
}

// Render formats the pack as markdown suitable for injection into an agent
// context. Output is deterministic for a given pack.
func (pk *Pack) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<!-- context pack: %d/%d tokens, %d items -->\n", pk.TotalTokens, pk.Budget, len(pk.Items))
	current := types.MemoryType("")
	for _, it := range pk.Items {
		if it.Type != current {
			current = it.Type
			fmt.Fprintf(&b, "\n## %s\n", heading(current))
		}
		fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(it.Content))
	}
	return b.String()
}

func heading(t types.MemoryType) string {
	switch t {
	case types.MemoryDecision:
		return "Decisions"
	case types.MemoryConstraint:
		return "Constraints"
	case types.MemoryGotcha:
		return "Gotchas"
	case types.MemoryStyleRule:
		return "Style rules"
	case types.MemoryLearning:
		return "Learnings"
	}
	return string(t)
}
