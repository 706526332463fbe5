package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/orchestrator"
	"github.com/skillmeat/skillmeat/internal/ui"
)

var updateCmd = &cobra.Command{
	Use:     "update <artifact>",
	GroupID: "artifacts",
	Short:   "Rename, retag, or refresh an artifact",
	Long: `Update an artifact's mutable fields. Renames move the canonical files;
--refresh-from re-imports content from a path while keeping identity, so
deployments of the old content start reporting drift.

Examples:
  skillmeat update code-review --name code-review-v2
  skillmeat update code-review --tags code,quality,strict
  skillmeat update code-review --refresh-from ./review.md
  skillmeat update code-review --set-meta team=platform`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(rootCtx)
		defer a.Close()

		art := resolveArtifact(rootCtx, a, args[0])

		var req orchestrator.UpdateRequest
		changed := false
		if cmd.Flags().Changed("name") {
			name, _ := cmd.Flags().GetString("name")
			req.Name = &name
			changed = true
		}
		if cmd.Flags().Changed("version") {
			version, _ := cmd.Flags().GetString("version")
			req.VersionSpec = &version
			changed = true
		}
		if cmd.Flags().Changed("tags") {
			tags, _ := cmd.Flags().GetStringSlice("tags")
			req.Tags = &tags
			changed = true
		}
		if cmd.Flags().Changed("set-meta") {
			pairs, _ := cmd.Flags().GetStringSlice("set-meta")
			meta := make(map[string]string, len(pairs)+len(art.Metadata))
			for k, v := range art.Metadata {
				meta[k] = v
			}
			for _, p := range pairs {
				k, v, ok := strings.Cut(p, "=")
				if !ok {
					FatalErrorRespectJSON("--set-meta wants key=value, got %q", p)
				}
				meta[k] = v
			}
			req.Metadata = &meta
			changed = true
		}
		if cmd.Flags().Changed("refresh-from") {
			req.RefreshFrom, _ = cmd.Flags().GetString("refresh-from")
			changed = true
		}
		if !changed {
			FatalErrorRespectJSON("nothing to update; pass --name, --version, --tags, --set-meta, or --refresh-from")
		}

		updated, err := a.orch.UpdateArtifact(rootCtx, art.UUID, req)
		if err != nil {
			FatalErr(err)
		}

		if jsonOutput {
			outputJSON(updated)
			return
		}
		fmt.Printf("%s Updated %s %s\n", ui.IconPass, updated.Type, ui.RenderBold(updated.Name))
		if req.RefreshFrom != "" {
			fmt.Printf("  content %s\n", ui.ShortID(updated.ContentHash))
		}
	},
}

func init() {
	updateCmd.Flags().String("name", "", "New artifact name")
	updateCmd.Flags().String("version", "", "New version spec")
	updateCmd.Flags().StringSlice("tags", nil, "Replace the tag list")
	updateCmd.Flags().StringSlice("set-meta", nil, "Set metadata entries (key=value)")
	updateCmd.Flags().String("refresh-from", "", "Re-import content from this path, keeping identity")
	rootCmd.AddCommand(updateCmd)
}
