package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/orchestrator"
	"github.com/skillmeat/skillmeat/internal/types"
	"github.com/skillmeat/skillmeat/internal/ui"
)

var addCmd = &cobra.Command{
	Use:     "add <path>",
	GroupID: "artifacts",
	Short:   "Import an artifact into the collection",
	Long: `Import a file or directory into the collection's canonical storage.

Single markdown files need --type. Directories are scanned: SKILL.md marks a
skill (embedded commands/ and agents/ import as a composite), plugin.json
marks a manifest composite. Re-importing identical content is a no-op.

Examples:
  skillmeat add ./review.md --type command
  skillmeat add ./pdf-tools                # skill directory, type inferred
  skillmeat add ./toolkit --composite      # force composite handling
  skillmeat add ./review.md --type command --tags code,quality`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		typeFlag, _ := cmd.Flags().GetString("type")
		tags, _ := cmd.Flags().GetStringSlice("tags")
		originFlag, _ := cmd.Flags().GetString("origin")
		upstream, _ := cmd.Flags().GetString("upstream")
		versionSpec, _ := cmd.Flags().GetString("version")
		composite, _ := cmd.Flags().GetBool("composite")

		typ, err := parseArtifactType(typeFlag)
		if err != nil {
			FatalErr(err)
		}
		origin := types.OriginLocal
		if originFlag != "" {
			switch types.Origin(originFlag) {
			case types.OriginLocal, types.OriginGitHub, types.OriginMarketplace:
				origin = types.Origin(originFlag)
			default:
				FatalErrorRespectJSON("unknown origin %q (valid: local, github, marketplace)", originFlag)
			}
		}

		a := mustApp(rootCtx)
		defer a.Close()

		req := orchestrator.ImportRequest{
			Path:        args[0],
			Type:        typ,
			Collection:  collectionName,
			Origin:      origin,
			Upstream:    upstream,
			VersionSpec: versionSpec,
			Tags:        tags,
		}

		var outcome *orchestrator.ImportOutcome
		if composite {
			outcome, err = a.orch.ImportComposite(rootCtx, req)
		} else {
			outcome, err = a.orch.ImportArtifact(rootCtx, req)
		}
		if err != nil {
			FatalErr(err)
		}

		if jsonOutput {
			outputJSON(outcome)
			return
		}
		printImportOutcome(outcome)
	},
}

func printImportOutcome(outcome *orchestrator.ImportOutcome) {
	switch {
	case outcome.Artifact != nil:
		fmt.Printf("%s Imported %s %s (%s)\n",
			ui.IconPass, outcome.Artifact.Type,
			ui.RenderBold(outcome.Artifact.Name), ui.ShortID(outcome.Artifact.UUID))
	case outcome.Composite != nil:
		fmt.Printf("%s Imported composite %s (%s)\n",
			ui.IconPass, ui.RenderBold(outcome.Composite.Name), ui.ShortID(outcome.Composite.ID))
	}
	if outcome.Reimport {
		fmt.Println(ui.RenderMuted("  content unchanged; existing entry kept"))
	}
	for _, child := range outcome.Children {
		note := ""
		if child.Reused {
			note = ui.RenderMuted(" (reused)")
		}
		fmt.Printf("  + %s %s%s\n", ui.RenderType(child.Artifact.Type), child.Artifact.Name, note)
	}
	if outcome.Snapshot != nil {
		fmt.Printf("  snapshot %s\n", ui.RenderID(ui.ShortID(outcome.Snapshot.ID)))
	}
}

func init() {
	addCmd.Flags().StringP("type", "t", "", "Artifact type (skill, command, agent, hook, mcp-server, context, rule, spec)")
	addCmd.Flags().StringSlice("tags", nil, "Tags to record on the artifact")
	addCmd.Flags().String("origin", "", "Provenance origin (local, github, marketplace)")
	addCmd.Flags().String("upstream", "", "Upstream source reference (e.g. github.com/org/repo)")
	addCmd.Flags().String("version", "", "Version spec pinned for the artifact")
	addCmd.Flags().Bool("composite", false, "Treat the path as a composite bundle")
	rootCmd.AddCommand(addCmd)
}
