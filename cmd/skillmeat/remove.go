package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/ui"
)

var removeCmd = &cobra.Command{
	Use:     "remove <artifact>",
	GroupID: "artifacts",
	Short:   "Remove an artifact from the collection",
	Long: `Remove an artifact: its canonical files, deployment rows, and group and
set memberships. Deployed copies in projects are left on disk.

Removing a skill that coordinates embedded children keeps the children as
standalone artifacts.

Examples:
  skillmeat remove code-review
  skillmeat remove skill:pdf-tools --force`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		a := mustApp(rootCtx)
		defer a.Close()

		art := resolveArtifact(rootCtx, a, args[0])

		if !force {
			deployments, err := a.store.ListDeploymentsByArtifact(rootCtx, art.UUID)
			if err == nil && len(deployments) > 0 {
				fmt.Printf("%s is deployed in %d project(s); deployed copies stay on disk.\n", art.Name, len(deployments))
			}
			if !ui.PromptYesNo(fmt.Sprintf("Remove %s %q from the collection?", art.Type, art.Name), false) {
				fmt.Println("Aborted.")
				return
			}
		}

		if err := a.orch.DeleteArtifact(rootCtx, art.UUID); err != nil {
			FatalErr(err)
		}

		if jsonOutput {
			outputJSON(map[string]string{"removed": art.UUID, "name": art.Name})
			return
		}
		fmt.Printf("%s Removed %s %s\n", ui.IconPass, art.Type, ui.RenderBold(art.Name))
	},
}

func init() {
	removeCmd.Flags().BoolP("force", "f", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(removeCmd)
}
