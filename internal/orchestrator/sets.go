package orchestrator

import (
	"context"

	"github.com/skillmeat/skillmeat/internal/events"
	"github.com/skillmeat/skillmeat/internal/locks"
	"github.com/skillmeat/skillmeat/internal/types"
)

// CreateSet registers an empty deployment set owned by the configured
// identity (or the given owner when non-empty).
func (o *Orchestrator) CreateSet(ctx context.Context, ownerID, name, description string) (*types.DeploymentSet, error) {
	if ownerID == "" {
		ownerID = o.by
	}
	set := &types.DeploymentSet{OwnerID: ownerID, Name: name, Description: description}
	if err := o.store.CreateSet(ctx, set); err != nil {
		return nil, err
	}
	o.emit(events.EntitySet, set.ID, events.KindCreated, map[string]string{"name": name})
	return set, nil
}

// AddSetMember appends a member to a set. Nested-set members are rejected
// when linking them would close a cycle.
func (o *Orchestrator) AddSetMember(ctx context.Context, m *types.SetMember) error {
	rel, err := o.locks.Acquire(ctx, locks.Set(m.SetID))
	if err != nil {
		return err
	}
	defer rel()
	if err := o.comp.AddSetMember(ctx, m); err != nil {
		return err
	}
	o.emit(events.EntitySet, m.SetID, events.KindUpdated, map[string]string{
		"member": memberLabel(m),
		"change": "added",
	})
	return nil
}

// RemoveSetMember detaches a member. The underlying artifact, group, or set
// is untouched.
func (o *Orchestrator) RemoveSetMember(ctx context.Context, m *types.SetMember) error {
	rel, err := o.locks.Acquire(ctx, locks.Set(m.SetID))
	if err != nil {
		return err
	}
	defer rel()
	if err := o.store.RemoveSetMember(ctx, m); err != nil {
		return err
	}
	o.emit(events.EntitySet, m.SetID, events.KindUpdated, map[string]string{
		"member": memberLabel(m),
		"change": "removed",
	})
	return nil
}

// DeleteSet removes the set and its membership rows, including references
// from other sets that nested it. Member artifacts, groups, and nested sets
// themselves survive.
func (o *Orchestrator) DeleteSet(ctx context.Context, id string) error {
	rel, err := o.locks.Acquire(ctx, locks.Set(id))
	if err != nil {
		return err
	}
	defer rel()
	if err := o.store.DeleteSet(ctx, id); err != nil {
		return err
	}
	o.emit(events.EntitySet, id, events.KindDeleted, nil)
	return nil
}

// ResolveSet flattens a set to its deduplicated artifact list in traversal
// order.
func (o *Orchestrator) ResolveSet(ctx context.Context, setID string) ([]*types.Artifact, error) {
	return o.comp.Resolve(ctx, setID)
}

// ListSets returns the sets owned by ownerID, defaulting to the configured
// identity.
func (o *Orchestrator) ListSets(ctx context.Context, ownerID string) ([]*types.DeploymentSet, error) {
	if ownerID == "" {
		ownerID = o.by
	}
	return o.store.ListSets(ctx, ownerID)
}

// CreateGroup registers a named artifact grouping inside a collection.
func (o *Orchestrator) CreateGroup(ctx context.Context, collectionName, name, description string) (*types.Group, error) {
	col, err := o.collection(ctx, collectionName)
	if err != nil {
		return nil, err
	}
	g := &types.Group{CollectionID: col.ID, Name: name, Description: description}
	if err := o.store.CreateGroup(ctx, g); err != nil {
		return nil, err
	}
	o.emit(events.EntityGroup, g.ID, events.KindCreated, map[string]string{"name": name})
	return g, nil
}

// AddGroupMember links an artifact into a group at the given position.
func (o *Orchestrator) AddGroupMember(ctx context.Context, m *types.GroupMembership) error {
	if err := o.store.AddGroupMember(ctx, m); err != nil {
		return err
	}
	o.emit(events.EntityGroup, m.GroupID, events.KindUpdated, map[string]string{
		"artifact": m.ArtifactUUID,
		"change":   "added",
	})
	return nil
}

// RemoveGroupMember unlinks an artifact from a group.
func (o *Orchestrator) RemoveGroupMember(ctx context.Context, groupID, artifactUUID string) error {
	if err := o.store.RemoveGroupMember(ctx, groupID, artifactUUID); err != nil {
		return err
	}
	o.emit(events.EntityGroup, groupID, events.KindUpdated, map[string]string{
		"artifact": artifactUUID,
		"change":   "removed",
	})
	return nil
}

// DeleteGroup removes a group and its membership rows. Member artifacts and
// any set references to the group are cleaned up by the store.
func (o *Orchestrator) DeleteGroup(ctx context.Context, id string) error {
	if err := o.store.DeleteGroup(ctx, id); err != nil {
		return err
	}
	o.emit(events.EntityGroup, id, events.KindDeleted, nil)
	return nil
}

// ListGroupArtifacts returns a group's members in position order.
func (o *Orchestrator) ListGroupArtifacts(ctx context.Context, groupID string) ([]*types.Artifact, error) {
	members, err := o.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	arts := make([]*types.Artifact, 0, len(members))
	for _, m := range members {
		a, err := o.store.GetArtifact(ctx, m.ArtifactUUID)
		if err != nil {
			if types.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		arts = append(arts, a)
	}
	return arts, nil
}

func memberLabel(m *types.SetMember) string {
	switch m.Kind {
	case types.MemberArtifact:
		return "artifact:" + m.ArtifactUUID
	case types.MemberGroup:
		return "group:" + m.GroupID
	case types.MemberSet:
		return "set:" + m.MemberSetID
	}
	return string(m.Kind)
}
