package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/config"
	"github.com/skillmeat/skillmeat/internal/orchestrator"
	"github.com/skillmeat/skillmeat/internal/syncer"
	"github.com/skillmeat/skillmeat/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "deploy",
	Short:   "Reconcile drift between a deployment and the collection",
	Long: `Compare a deployed artifact with the collection and reconcile the two.

  preview  classify per-path drift without changing anything
  pull     bring the incoming side into the project
  push     publish project edits back into the collection

Strategies (pull): merge auto-combines non-overlapping edits and refuses
hard conflicts; theirs takes the incoming side; ours keeps the project;
manual asks per conflicted path.

Examples:
  skillmeat sync preview code-review
  skillmeat sync pull code-review --strategy theirs
  skillmeat sync pull code-review --strategy manual
  skillmeat sync push code-review --project ~/src/app`,
}

var syncPreviewCmd = &cobra.Command{
	Use:   "preview <artifact>",
	Short: "Classify a deployment's drift per path",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		project, _ := cmd.Flags().GetString("project")
		profile, _ := cmd.Flags().GetString("profile")

		a := mustApp(rootCtx)
		defer a.Close()

		art := resolveArtifact(rootCtx, a, args[0])
		pv, err := a.orch.SyncPreview(rootCtx, orchestrator.SyncRequest{
			ArtifactUUID: art.UUID,
			ProjectPath:  projectPath(project),
			ProfileID:    profile,
		})
		if err != nil {
			FatalErr(err)
		}

		if jsonOutput {
			outputJSON(syncPreviewJSON(pv))
			return
		}
		fmt.Println(ui.RenderSyncPreview([]*syncer.Preview{pv}, ui.GetWidth()))
		printPreviewPaths(pv)
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull <artifact>",
	Short: "Bring the incoming side into the project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		project, _ := cmd.Flags().GetString("project")
		profile, _ := cmd.Flags().GetString("profile")
		strategyFlag, _ := cmd.Flags().GetString("strategy")

		strategy, err := parseStrategy(strategyFlag)
		if err != nil {
			FatalErr(err)
		}

		a := mustApp(rootCtx)
		defer a.Close()

		art := resolveArtifact(rootCtx, a, args[0])
		req := orchestrator.SyncRequest{
			ArtifactUUID: art.UUID,
			ProjectPath:  projectPath(project),
			ProfileID:    profile,
			Strategy:     strategy,
		}

		if strategy == syncer.StrategyManual {
			req.Manual = pickManualResolutions(a, req)
		}

		res, err := a.orch.SyncPull(rootCtx, req)
		if err != nil {
			FatalErr(err)
		}
		printSyncResult("Pulled", art.Name, res)
	},
}

var syncPushCmd = &cobra.Command{
	Use:   "push <artifact>",
	Short: "Publish project edits back into the collection",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		project, _ := cmd.Flags().GetString("project")
		profile, _ := cmd.Flags().GetString("profile")

		a := mustApp(rootCtx)
		defer a.Close()

		art := resolveArtifact(rootCtx, a, args[0])
		res, err := a.orch.SyncPush(rootCtx, orchestrator.SyncRequest{
			ArtifactUUID: art.UUID,
			ProjectPath:  projectPath(project),
			ProfileID:    profile,
		})
		if err != nil {
			FatalErr(err)
		}
		printSyncResult("Pushed", art.Name, res)
	},
}

func parseStrategy(s string) (syncer.Strategy, error) {
	if s == "" {
		s = config.GetString("sync.strategy")
	}
	switch syncer.Strategy(s) {
	case syncer.StrategyMerge, syncer.StrategyTheirs, syncer.StrategyOurs, syncer.StrategyManual:
		return syncer.Strategy(s), nil
	}
	return "", fmt.Errorf("unknown strategy %q (valid: merge, theirs, ours, manual)", s)
}

// pickManualResolutions previews the sync and asks, per conflicted path,
// which side wins. Non-interactive runs can't answer and fail early.
func pickManualResolutions(a *app, req orchestrator.SyncRequest) map[string][]byte {
	if !ui.IsTerminal() {
		FatalErrorRespectJSON("--strategy manual needs an interactive terminal; use theirs, ours, or merge")
	}

	pv, err := a.orch.SyncPreview(rootCtx, req)
	if err != nil {
		FatalErr(err)
	}

	manual := make(map[string][]byte)
	for _, d := range pv.Paths {
		if d.Class == syncer.ConflictNone {
			continue
		}
		choice := "collection"
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title(fmt.Sprintf("Conflict in %s (%s)", d.Path, d.Class)).
					Description("Which side should the project keep?").
					Options(
						huh.NewOption("incoming (collection)", "collection"),
						huh.NewOption("mine (project)", "project"),
					).
					Value(&choice),
			),
		)
		if err := form.Run(); err != nil {
			FatalError("%v", err)
		}
		if choice == "project" {
			manual[d.Path] = d.Project
		} else {
			manual[d.Path] = d.Collection
		}
	}
	return manual
}

func printPreviewPaths(pv *syncer.Preview) {
	for _, d := range pv.Paths {
		marker := ui.RenderMuted(string(d.Class))
		if d.Class == syncer.ConflictHard {
			marker = ui.RenderFail(string(d.Class))
		} else if d.Class == syncer.ConflictSoft {
			marker = ui.RenderWarn(string(d.Class))
		}
		fmt.Printf("  %s  %s\n", marker, d.Path)
	}
}

// syncPreviewJSON flattens a preview for --json: per-path classes without
// the content blobs.
func syncPreviewJSON(pv *syncer.Preview) map[string]interface{} {
	paths := make([]map[string]string, 0, len(pv.Paths))
	for _, d := range pv.Paths {
		paths = append(paths, map[string]string{"path": d.Path, "class": string(d.Class)})
	}
	return map[string]interface{}{
		"artifact": pv.Artifact.UUID,
		"name":     pv.Artifact.Name,
		"state":    pv.State,
		"hard":     pv.Hard,
		"soft":     pv.Soft,
		"paths":    paths,
	}
}

func printSyncResult(verb, name string, res *syncer.Result) {
	if jsonOutput {
		outputJSON(map[string]interface{}{
			"applied": res.Applied,
			"state":   res.Preview.State,
		})
		return
	}
	if len(res.Applied) == 0 {
		fmt.Printf("%s %s: already in sync\n", ui.IconPass, name)
		return
	}
	fmt.Printf("%s %s %s: %d path(s) applied\n", ui.IconPass, verb, ui.RenderBold(name), len(res.Applied))
	for _, p := range res.Applied {
		fmt.Printf("    %s\n", p)
	}
	if res.PostProject != nil {
		fmt.Printf("  project snapshot %s\n", ui.RenderID(ui.ShortID(res.PostProject.ID)))
	}
	if res.PostCollection != nil {
		fmt.Printf("  collection snapshot %s\n", ui.RenderID(ui.ShortID(res.PostCollection.ID)))
	}
}

func init() {
	for _, c := range []*cobra.Command{syncPreviewCmd, syncPullCmd, syncPushCmd} {
		c.Flags().StringP("project", "p", "", "Project directory (default: current directory)")
		c.Flags().String("profile", "", "Deployment profile")
	}
	syncPullCmd.Flags().String("strategy", "", "Conflict strategy: merge, theirs, ours, manual (default from config)")

	syncCmd.AddCommand(syncPreviewCmd)
	syncCmd.AddCommand(syncPullCmd)
	syncCmd.AddCommand(syncPushCmd)
	rootCmd.AddCommand(syncCmd)
}
