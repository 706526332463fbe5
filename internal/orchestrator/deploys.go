package orchestrator

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/skillmeat/skillmeat/internal/deploy"
	"github.com/skillmeat/skillmeat/internal/events"
	"github.com/skillmeat/skillmeat/internal/locks"
	"github.com/skillmeat/skillmeat/internal/types"
)

// DeployRequest targets one artifact, composite, or set at a project.
// Exactly one of ArtifactUUID, CompositeID, SetID must be set.
type DeployRequest struct {
	ArtifactUUID string
	CompositeID  string
	SetID        string
	ProjectPath  string
	ProfileID    string
	DryRun       bool
	Overwrite    bool
}

// DeployOutcome carries the plan and, for real runs, the apply result.
type DeployOutcome struct {
	Project *types.Project
	Plan    *deploy.Plan
	Result  *deploy.Result // nil on dry runs
}

// Deploy plans and applies a deployment. Dry runs stop after planning and
// never touch the project.
func (o *Orchestrator) Deploy(ctx context.Context, req DeployRequest) (*DeployOutcome, error) {
	if err := oneTarget(req); err != nil {
		return nil, err
	}
	project, err := o.ensureProject(ctx, req.ProjectPath)
	if err != nil {
		return nil, err
	}

	units, err := o.deployUnits(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.DryRun {
		plan, err := o.depl.PlanArtifacts(ctx, units, project.ID, profileOrDefault(req.ProfileID), deploy.Options{Overwrite: req.Overwrite})
		if err != nil {
			return nil, err
		}
		return &DeployOutcome{Project: project, Plan: plan}, nil
	}

	var res *deploy.Result
	err = withRetry(ctx, func() error {
		release, lerr := o.locks.Acquire(ctx, locks.Project(project.ID))
		if lerr != nil {
			return lerr
		}
		defer release()
		plan, perr := o.depl.PlanArtifacts(ctx, units, project.ID, profileOrDefault(req.ProfileID), deploy.Options{Overwrite: req.Overwrite})
		if perr != nil {
			return perr
		}
		res, perr = o.depl.Apply(ctx, plan, deploy.Options{Overwrite: req.Overwrite, By: o.by})
		return perr
	})
	if err != nil {
		return nil, err
	}

	for _, t := range res.Applied {
		o.emit(events.EntityDeployment, t.Artifact.UUID, events.KindDeployed, map[string]string{
			"project": project.ID,
			"path":    t.RelPath,
		})
	}
	return &DeployOutcome{Project: project, Plan: res.Plan, Result: res}, nil
}

func oneTarget(req DeployRequest) error {
	n := 0
	for _, id := range []string{req.ArtifactUUID, req.CompositeID, req.SetID} {
		if id != "" {
			n++
		}
	}
	if n != 1 {
		return &types.ValidationError{Field: "target", Reason: "exactly one of artifact, composite, or set must be given"}
	}
	return nil
}

func profileOrDefault(id string) string {
	if id == "" {
		return deploy.DefaultProfile
	}
	return id
}

// deployUnits resolves the request target into the flat artifact list a
// deploy would apply, in application order.
func (o *Orchestrator) deployUnits(ctx context.Context, req DeployRequest) ([]*types.Artifact, error) {
	switch {
	case req.ArtifactUUID != "":
		a, err := o.store.GetArtifact(ctx, req.ArtifactUUID)
		if err != nil {
			return nil, err
		}
		return o.depl.ExpandUnits(ctx, []*types.Artifact{a})

	case req.CompositeID != "":
		comp, err := o.store.GetComposite(ctx, req.CompositeID)
		if err != nil {
			return nil, err
		}
		var units []*types.Artifact
		if uuid := comp.Metadata["artifact_uuid"]; uuid != "" {
			parent, err := o.store.GetArtifact(ctx, uuid)
			if err != nil {
				return nil, err
			}
			units = append(units, parent)
		}
		children, err := o.comp.ResolveComposite(ctx, req.CompositeID)
		if err != nil {
			return nil, err
		}
		return append(units, children...), nil

	default:
		arts, err := o.comp.Resolve(ctx, req.SetID)
		if err != nil {
			return nil, err
		}
		return o.depl.ExpandUnits(ctx, arts)
	}
}

// Undeploy removes a deployed artifact from a project.
func (o *Orchestrator) Undeploy(ctx context.Context, artifactUUID, projectPath, profileID string) error {
	project, err := o.projectByPath(ctx, projectPath)
	if err != nil {
		return err
	}
	release, err := o.locks.Acquire(ctx, locks.Project(project.ID))
	if err != nil {
		return err
	}
	defer release()

	if err := o.depl.Undeploy(ctx, artifactUUID, project.ID, profileOrDefault(profileID)); err != nil {
		return err
	}
	o.emit(events.EntityDeployment, artifactUUID, events.KindUndeployed, map[string]string{"project": project.ID})
	return nil
}

// projectByPath looks a project up without registering it.
func (o *Orchestrator) projectByPath(ctx context.Context, path string) (*types.Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &types.FilesystemError{Op: "abs", Path: path, Err: err}
	}
	return o.store.GetProjectByPath(ctx, abs)
}

// Status returns a project's deployments with drift computed from disk,
// sorted by deployed path for stable output.
func (o *Orchestrator) Status(ctx context.Context, projectPath string) ([]*types.Deployment, error) {
	project, err := o.projectByPath(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	deps, err := o.depl.Status(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].DeployedPath < deps[j].DeployedPath })
	return deps, nil
}

// DoctorFinding is one disagreement between the ledger and the store.
type DoctorFinding struct {
	ArtifactUUID string `json:"artifact_uuid"`
	Name         string `json:"name,omitempty"`
	Issue        string `json:"issue"` // missing_from_ledger | missing_from_store | hash_mismatch | path_mismatch
}

// DoctorReport compares a project ledger against deployment rows.
type DoctorReport struct {
	Project  *types.Project  `json:"project"`
	Findings []DoctorFinding `json:"findings"`
	Fixed    bool            `json:"fixed"`
}

// Doctor reconciles a project's ledger with the store. The store wins: with
// fix set, the ledger is rewritten from deployment rows.
func (o *Orchestrator) Doctor(ctx context.Context, projectPath string, fix bool) (*DoctorReport, error) {
	project, err := o.projectByPath(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	ledger, err := deploy.ReadLedger(project.Path)
	if err != nil {
		return nil, err
	}
	rows, err := o.store.ListDeploymentsByProject(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	report := &DoctorReport{Project: project}
	byUUID := make(map[string]deploy.LedgerEntry, len(ledger.Deployments))
	for _, e := range ledger.Deployments {
		byUUID[e.UUID] = e
	}
	seen := make(map[string]bool, len(rows))
	for _, d := range rows {
		seen[d.ArtifactUUID] = true
		entry, ok := byUUID[d.ArtifactUUID]
		if !ok {
			report.Findings = append(report.Findings, DoctorFinding{ArtifactUUID: d.ArtifactUUID, Issue: "missing_from_ledger"})
			continue
		}
		if entry.SourceContentHash != d.SourceContentHash {
			report.Findings = append(report.Findings, DoctorFinding{ArtifactUUID: d.ArtifactUUID, Name: entry.Name, Issue: "hash_mismatch"})
		}
		rel, rerr := filepath.Rel(project.Path, d.DeployedPath)
		if rerr == nil && filepath.ToSlash(rel) != entry.DeployedPath {
			report.Findings = append(report.Findings, DoctorFinding{ArtifactUUID: d.ArtifactUUID, Name: entry.Name, Issue: "path_mismatch"})
		}
	}
	for _, e := range ledger.Deployments {
		if !seen[e.UUID] {
			report.Findings = append(report.Findings, DoctorFinding{ArtifactUUID: e.UUID, Name: e.Name, Issue: "missing_from_store"})
		}
	}

	if fix && len(report.Findings) > 0 {
		release, err := o.locks.Acquire(ctx, locks.Project(project.ID))
		if err != nil {
			return nil, err
		}
		defer release()
		if err := o.depl.RewriteLedger(ctx, project); err != nil {
			return nil, err
		}
		report.Fixed = true
		o.emit(events.EntityProject, project.ID, events.KindUpdated, map[string]string{"doctor": "ledger_rewritten"})
	}

	sort.Slice(report.Findings, func(i, j int) bool {
		if report.Findings[i].ArtifactUUID != report.Findings[j].ArtifactUUID {
			return report.Findings[i].ArtifactUUID < report.Findings[j].ArtifactUUID
		}
		return report.Findings[i].Issue < report.Findings[j].Issue
	})
	return report, nil
}
