package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/deploy"
	"github.com/skillmeat/skillmeat/internal/fsio"
	"github.com/skillmeat/skillmeat/internal/types"
	"github.com/skillmeat/skillmeat/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "deploy",
	Short:   "Show deployment state for a project",
	Long: `Show what is deployed in a project and whether each deployment still
matches the content that was deployed: ok, modified, or missing.

When the database can't be opened, status degrades to reading the project's
ledger (.skillmeat-deployed.toml), so deployment state survives the database.

Examples:
  skillmeat status
  skillmeat status --project ~/src/app --json`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		project, _ := cmd.Flags().GetString("project")
		root := projectPath(project)

		a, err := openApp(rootCtx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: database unavailable (%v); reading the project ledger\n", err)
			statusFromLedger(root)
			return
		}
		defer a.Close()

		deployments, err := a.orch.Status(rootCtx, root)
		if err != nil {
			if types.IsNotFound(err) {
				if jsonOutput {
					outputJSON(map[string]interface{}{"project": root, "deployments": []string{}})
					return
				}
				fmt.Println("Nothing deployed here.")
				return
			}
			FatalErr(err)
		}

		rows := make([]ui.DeploymentRow, 0, len(deployments))
		for _, d := range deployments {
			art, _ := a.store.GetArtifact(rootCtx, d.ArtifactUUID)
			rows = append(rows, ui.DeploymentRow{
				Deployment: d,
				Artifact:   art,
				State:      deploymentState(d.SourceContentHash, d.DeployedPath, d.IsModified),
			})
		}
		printStatus(root, rows)
	},
}

// statusFromLedger is the offline path: states come from the ledger's
// recorded hashes against the files on disk.
func statusFromLedger(root string) {
	ledger, err := deploy.ReadLedger(root)
	if err != nil {
		FatalErr(err)
	}
	if len(ledger.Deployments) == 0 {
		if jsonOutput {
			outputJSON(map[string]interface{}{"project": root, "deployments": []string{}, "source": "ledger"})
			return
		}
		fmt.Println("Nothing deployed here.")
		return
	}

	rows := make([]ui.DeploymentRow, 0, len(ledger.Deployments))
	for _, e := range ledger.Deployments {
		abs := filepath.Join(root, filepath.FromSlash(e.DeployedPath))
		rows = append(rows, ui.DeploymentRow{
			Deployment: &types.Deployment{
				ArtifactUUID:      e.UUID,
				ProfileID:         e.ProfileID,
				SourceContentHash: e.SourceContentHash,
				DeployedPath:      abs,
				DeployedAt:        e.DeployedAt,
			},
			Artifact: &types.Artifact{UUID: e.UUID, Name: e.Name, Type: types.ArtifactType(e.Type)},
			State:    deploymentState(e.SourceContentHash, abs, false),
		})
	}
	printStatus(root, rows)
}

func deploymentState(sourceHash, path string, modified bool) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "missing"
	}
	if modified || fsio.DetectTreeChanges(sourceHash, path) {
		return "modified"
	}
	return "ok"
}

func printStatus(root string, rows []ui.DeploymentRow) {
	if jsonOutput {
		out := make([]map[string]interface{}, 0, len(rows))
		for _, r := range rows {
			entry := map[string]interface{}{
				"deployment": r.Deployment,
				"state":      r.State,
			}
			if r.Artifact != nil {
				entry["name"] = r.Artifact.Name
				entry["type"] = r.Artifact.Type
			}
			out = append(out, entry)
		}
		outputJSON(map[string]interface{}{"project": root, "deployments": out})
		return
	}
	fmt.Println(ui.RenderDeploymentTable(rows, ui.GetWidth()))
}

func init() {
	statusCmd.Flags().StringP("project", "p", "", "Project directory (default: current directory)")
	rootCmd.AddCommand(statusCmd)
}
