package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/config"
	"github.com/skillmeat/skillmeat/internal/orchestrator"
	"github.com/skillmeat/skillmeat/internal/ui"
)

var deployCmd = &cobra.Command{
	Use:     "deploy [artifact]",
	GroupID: "deploy",
	Short:   "Deploy an artifact or set into a project",
	Long: `Copy artifact files into a project's .claude/ directory and record the
deployment. The write path is atomic per file: stage, verify checksum, rename.
A pre-deploy snapshot of the project's .claude/ tree is always taken, so any
deploy can be rolled back.

Existing files that the deployment table can't account for are treated as
foreign and refused unless --overwrite is set.

Examples:
  skillmeat deploy code-review                     # into the CWD project
  skillmeat deploy code-review --project ~/src/app
  skillmeat deploy --set onboarding --dry-run
  skillmeat deploy code-review --overwrite`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		project, _ := cmd.Flags().GetString("project")
		profile, _ := cmd.Flags().GetString("profile")
		setRef, _ := cmd.Flags().GetString("set")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		overwrite, _ := cmd.Flags().GetBool("overwrite")

		if !cmd.Flags().Changed("overwrite") {
			overwrite = config.GetBool("deploy.overwrite")
		}
		if profile == "" {
			profile = config.GetString("deploy.profile")
		}

		a := mustApp(rootCtx)
		defer a.Close()

		req := orchestrator.DeployRequest{
			ProjectPath: projectPath(project),
			ProfileID:   profile,
			DryRun:      dryRun,
			Overwrite:   overwrite,
		}
		switch {
		case setRef != "":
			if len(args) > 0 {
				FatalErrorRespectJSON("pass an artifact or --set, not both")
			}
			req.SetID = resolveSet(rootCtx, a, setRef).ID
		case len(args) == 1:
			req.ArtifactUUID = resolveArtifact(rootCtx, a, args[0]).UUID
		default:
			FatalErrorRespectJSON("name an artifact or pass --set")
		}

		outcome, err := a.orch.Deploy(rootCtx, req)
		if err != nil {
			FatalErr(err)
		}

		if jsonOutput {
			outputJSON(outcome)
			return
		}
		if dryRun {
			fmt.Println(ui.RenderPlan(outcome.Plan, ui.GetWidth()))
			return
		}
		fmt.Println(ui.RenderDeployResult(outcome.Result))
	},
}

var undeployCmd = &cobra.Command{
	Use:     "undeploy <artifact>",
	GroupID: "deploy",
	Short:   "Remove a deployed artifact from a project",
	Long: `Delete an artifact's deployed files from a project and drop the
deployment record from both the database and the project ledger.

Examples:
  skillmeat undeploy code-review
  skillmeat undeploy code-review --project ~/src/app`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		project, _ := cmd.Flags().GetString("project")
		profile, _ := cmd.Flags().GetString("profile")
		if profile == "" {
			profile = config.GetString("deploy.profile")
		}

		a := mustApp(rootCtx)
		defer a.Close()

		art := resolveArtifact(rootCtx, a, args[0])
		if err := a.orch.Undeploy(rootCtx, art.UUID, projectPath(project), profile); err != nil {
			FatalErr(err)
		}

		if jsonOutput {
			outputJSON(map[string]string{"undeployed": art.UUID, "name": art.Name})
			return
		}
		fmt.Printf("%s Undeployed %s\n", ui.IconPass, ui.RenderBold(art.Name))
	},
}

func init() {
	deployCmd.Flags().StringP("project", "p", "", "Project directory (default: current directory)")
	deployCmd.Flags().String("profile", "", "Deployment profile (default from config: deploy.profile)")
	deployCmd.Flags().String("set", "", "Deploy a set instead of a single artifact")
	deployCmd.Flags().Bool("dry-run", false, "Print the plan without touching the project")
	deployCmd.Flags().Bool("overwrite", false, "Overwrite foreign files at target paths")
	rootCmd.AddCommand(deployCmd)

	undeployCmd.Flags().StringP("project", "p", "", "Project directory (default: current directory)")
	undeployCmd.Flags().String("profile", "", "Deployment profile")
	rootCmd.AddCommand(undeployCmd)
}
