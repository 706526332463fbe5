package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/ui"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: "maint",
	Short:   "Reconcile a project ledger with the database",
	Long: `Compare the project's .skillmeat-deployed.toml ledger against deployment
rows in the database and report disagreements: entries present on one side
only, hash mismatches, and path mismatches.

With --fix the ledger is rewritten from the database, which is the
authoritative side.

Examples:
  skillmeat doctor
  skillmeat doctor --project ~/code/api --fix`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		project, _ := cmd.Flags().GetString("project")
		fix, _ := cmd.Flags().GetBool("fix")

		a := mustApp(rootCtx)
		defer a.Close()

		report, err := a.orch.Doctor(rootCtx, projectPath(project), fix)
		if err != nil {
			FatalErr(err)
		}

		if jsonOutput {
			outputJSON(report)
			return
		}

		if len(report.Findings) == 0 {
			fmt.Printf("%s ledger and database agree for %s\n", ui.IconPass, report.Project.Path)
			return
		}

		fmt.Printf("%s %d finding(s) in %s:\n", ui.RenderWarn(ui.IconWarn), len(report.Findings), report.Project.Path)
		for _, f := range report.Findings {
			name := f.Name
			if name == "" {
				name = ui.ShortID(f.ArtifactUUID)
			}
			fmt.Printf("  %s %s: %s\n", ui.RenderWarn(ui.IconWarn), ui.RenderBold(name), describeIssue(f.Issue))
		}
		if report.Fixed {
			fmt.Printf("%s Ledger rewritten from the database\n", ui.IconPass)
		} else {
			fmt.Println(ui.RenderMuted("re-run with --fix to rewrite the ledger from the database"))
		}
	},
}

func describeIssue(issue string) string {
	switch issue {
	case "missing_from_ledger":
		return "deployed per the database, absent from the ledger"
	case "missing_from_store":
		return "listed in the ledger, unknown to the database"
	case "hash_mismatch":
		return "ledger and database record different content hashes"
	case "path_mismatch":
		return "ledger and database record different deploy paths"
	default:
		return issue
	}
}

func init() {
	doctorCmd.Flags().StringP("project", "p", "", "Project directory (default: current directory)")
	doctorCmd.Flags().Bool("fix", false, "Rewrite the ledger from the database")
	rootCmd.AddCommand(doctorCmd)
}
