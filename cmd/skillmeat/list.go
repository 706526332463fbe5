package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/types"
	"github.com/skillmeat/skillmeat/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "artifacts",
	Short:   "List artifacts in the collection",
	Long: `List the collection's artifacts, optionally filtered.

Examples:
  skillmeat list
  skillmeat list --type skill
  skillmeat list --tag code --contains review
  skillmeat list --json`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		typeFlag, _ := cmd.Flags().GetString("type")
		tag, _ := cmd.Flags().GetString("tag")
		originFlag, _ := cmd.Flags().GetString("origin")
		contains, _ := cmd.Flags().GetString("contains")
		limit, _ := cmd.Flags().GetInt("limit")
		cursor, _ := cmd.Flags().GetString("cursor")

		a := mustApp(rootCtx)
		defer a.Close()

		col := mustCollection(rootCtx, a)
		filter := types.ArtifactFilter{
			CollectionID: col.ID,
			Tag:          tag,
			NameContains: contains,
		}
		if typeFlag != "" {
			t, err := parseArtifactType(typeFlag)
			if err != nil {
				FatalErr(err)
			}
			filter.Type = &t
		}
		if originFlag != "" {
			o := types.Origin(originFlag)
			filter.Origin = &o
		}

		page, err := a.store.ListArtifacts(rootCtx, filter, types.Page{Cursor: cursor, Limit: limit})
		if err != nil {
			FatalErr(err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"collection":  col.Name,
				"artifacts":   page.Artifacts,
				"next_cursor": page.NextCursor,
			})
			return
		}

		fmt.Println(ui.RenderArtifactTable(page.Artifacts, ui.GetWidth()))
		if page.NextCursor != "" {
			fmt.Println(ui.RenderMuted(fmt.Sprintf("more available: --cursor %s", page.NextCursor)))
		}
	},
}

func init() {
	listCmd.Flags().StringP("type", "t", "", "Filter by artifact type")
	listCmd.Flags().String("tag", "", "Filter by tag")
	listCmd.Flags().String("origin", "", "Filter by origin (local, github, marketplace)")
	listCmd.Flags().String("contains", "", "Filter by name substring")
	listCmd.Flags().Int("limit", 0, "Page size (0 = everything)")
	listCmd.Flags().String("cursor", "", "Resume from a previous page's cursor")
	rootCmd.AddCommand(listCmd)
}
