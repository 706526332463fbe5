package ui

import (
	"fmt"

	"github.com/skillmeat/skillmeat/internal/deploy"
	"github.com/skillmeat/skillmeat/internal/syncer"
)

// RenderPlan tabulates a deploy plan's targets and their pending actions.
func RenderPlan(plan *deploy.Plan, width int) string {
	if len(plan.Targets) == 0 {
		return TableHintStyle.Render("Nothing to deploy.")
	}

	rows := make([][]string, 0, len(plan.Targets))
	for _, t := range plan.Targets {
		action := RenderPass("deploy")
		switch {
		case t.UpToDate:
			action = RenderMuted("up-to-date")
		case t.Foreign:
			action = RenderWarn("overwrite")
		}
		rows = append(rows, []string{
			t.Artifact.Name,
			RenderType(t.Artifact.Type),
			t.RelPath,
			action,
		})
	}

	header := fmt.Sprintf("Deploy to %s (profile %s)", plan.Project.Name, plan.Profile.ID)
	out := newTable(width, "ARTIFACT", "TYPE", "PATH", "ACTION").
		Rows(rows...).
		String()
	return RenderBold(header) + "\n" + out
}

// RenderDeployResult summarizes what a completed deploy touched.
func RenderDeployResult(res *deploy.Result) string {
	line := fmt.Sprintf("%s Deployed %d artifact(s)", RenderPass(IconPass), len(res.Applied))
	if len(res.Skipped) > 0 {
		line += RenderMuted(fmt.Sprintf(", %d already up-to-date", len(res.Skipped)))
	}
	if res.PreSnapshot != nil {
		line += RenderMuted(fmt.Sprintf(" (snapshot %s)", ShortID(res.PreSnapshot.ID)))
	}
	return line
}

// RenderSyncPreview summarizes per-deployment sync state and conflict counts.
func RenderSyncPreview(previews []*syncer.Preview, width int) string {
	if len(previews) == 0 {
		return TableHintStyle.Render("Nothing to sync.")
	}

	rows := make([][]string, 0, len(previews))
	for _, p := range previews {
		conflicts := "-"
		if p.Hard+p.Soft > 0 {
			conflicts = RenderWarn(fmt.Sprintf("%d hard / %d soft", p.Hard, p.Soft))
		}
		rows = append(rows, []string{
			p.Artifact.Name,
			RenderType(p.Artifact.Type),
			RenderStatus(string(p.State)),
			fmt.Sprintf("%d path(s)", len(p.Paths)),
			conflicts,
		})
	}
	return newTable(width, "ARTIFACT", "TYPE", "STATE", "DIFFS", "CONFLICTS").
		Rows(rows...).
		String()
}
