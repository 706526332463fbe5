package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/types"
	"github.com/skillmeat/skillmeat/internal/ui"
)

var memoryCmd = &cobra.Command{
	Use:     "memory",
	GroupID: "memory",
	Short:   "Extract and manage per-project memory items",
	Long: `Memory items are durable learnings scoped to a project: decisions,
constraints, gotchas, style rules. Extraction mines them out of session
transcripts; items then climb a confidence ladder (candidate, active,
stable) or get deprecated.

Examples:
  skillmeat memory extract session.jsonl --apply
  cat transcript.txt | skillmeat memory extract - --apply
  skillmeat memory list --status candidate
  skillmeat memory promote 01HW3K...
  skillmeat memory merge 01HW3K... 01HW3M... 01HW3N...`,
}

var memoryExtractCmd = &cobra.Command{
	Use:   "extract <file|->",
	Short: "Mine memory candidates from a transcript",
	Long: `Extract memory candidates from a session transcript (JSONL or plain
text). Without --apply this is a preview; with it, novel candidates are
stored with candidate status.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		project, _ := cmd.Flags().GetString("project")
		apply, _ := cmd.Flags().GetBool("apply")

		var input []byte
		var err error
		if args[0] == "-" {
			input, err = io.ReadAll(os.Stdin)
		} else {
			input, err = os.ReadFile(args[0])
		}
		if err != nil {
			FatalError("reading transcript: %v", err)
		}

		a := mustApp(rootCtx)
		defer a.Close()

		res, err := a.orch.ExtractMemory(rootCtx, projectPath(project), input, apply)
		if err != nil {
			FatalErr(err)
		}

		if jsonOutput {
			outputJSON(res)
			return
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
		}
		if len(res.Candidates) == 0 {
			fmt.Println("No memory candidates found.")
			return
		}
		for _, c := range res.Candidates {
			fmt.Printf("  %-11s %.2f  %s\n", c.Type, c.Confidence, ui.Truncate(c.Content, 80))
		}
		if apply {
			fmt.Printf("%s Stored %d item(s)", ui.IconPass, res.Stored)
			if res.Duplicates > 0 {
				fmt.Printf(", %d duplicate(s) skipped", res.Duplicates)
			}
			fmt.Println()
		} else {
			fmt.Printf("%d candidate(s); re-run with --apply to store them\n", len(res.Candidates))
		}
	},
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a project's memory items",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		project, _ := cmd.Flags().GetString("project")
		statusFlag, _ := cmd.Flags().GetString("status")
		typeFlag, _ := cmd.Flags().GetString("type")
		minConf, _ := cmd.Flags().GetFloat64("min-confidence")
		since, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")
		cursor, _ := cmd.Flags().GetString("cursor")

		filter := types.MemoryFilter{}
		if statusFlag != "" {
			s := types.MemoryStatus(statusFlag)
			filter.Status = &s
		}
		if typeFlag != "" {
			t := types.MemoryType(typeFlag)
			filter.Type = &t
		}
		if cmd.Flags().Changed("min-confidence") {
			filter.MinConfidence = &minConf
		}
		if since != "" {
			t, err := parseTimeFlag(since)
			if err != nil {
				FatalErrorRespectJSON("parsing --since: %v", err)
			}
			filter.Since = &t
		}

		a := mustApp(rootCtx)
		defer a.Close()

		page, err := a.orch.ListMemory(rootCtx, projectPath(project), filter, types.Page{Cursor: cursor, Limit: limit})
		if err != nil {
			FatalErr(err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"items":       page.Items,
				"next_cursor": page.NextCursor,
			})
			return
		}
		fmt.Println(ui.RenderMemoryTable(page.Items, ui.GetWidth()))
		if page.NextCursor != "" {
			fmt.Println(ui.RenderMuted(fmt.Sprintf("more available: --cursor %s", page.NextCursor)))
		}
	},
}

var memoryPromoteCmd = &cobra.Command{
	Use:   "promote <id>",
	Short: "Move an item up the confidence ladder",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(rootCtx)
		defer a.Close()

		item, err := a.orch.PromoteMemory(rootCtx, args[0])
		if err != nil {
			FatalErr(err)
		}
		if jsonOutput {
			outputJSON(item)
			return
		}
		fmt.Printf("%s Promoted %s to %s\n", ui.IconPass, ui.ShortID(item.ID), ui.RenderStatus(string(item.Status)))
	},
}

var memoryDeprecateCmd = &cobra.Command{
	Use:   "deprecate <id>",
	Short: "Retire an item (kept for audit, excluded from packs)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(rootCtx)
		defer a.Close()

		if err := a.orch.DeprecateMemory(rootCtx, args[0]); err != nil {
			FatalErr(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"deprecated": args[0]})
			return
		}
		fmt.Printf("%s Deprecated %s\n", ui.IconPass, ui.ShortID(args[0]))
	},
}

var memoryMergeCmd = &cobra.Command{
	Use:   "merge <target> <source>...",
	Short: "Merge duplicate items into one",
	Long: `Merge source items into the target: the target keeps the highest
confidence and the union of anchors, and the sources are deprecated.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(rootCtx)
		defer a.Close()

		merged, err := a.orch.MergeMemory(rootCtx, args[0], args[1:])
		if err != nil {
			FatalErr(err)
		}
		if jsonOutput {
			outputJSON(merged)
			return
		}
		fmt.Printf("%s Merged %d item(s) into %s (confidence %.2f)\n",
			ui.IconPass, len(args)-1, ui.ShortID(merged.ID), merged.Confidence)
	},
}

func init() {
	memoryExtractCmd.Flags().StringP("project", "p", "", "Project directory (default: current directory)")
	memoryExtractCmd.Flags().Bool("apply", false, "Store novel candidates instead of previewing")

	memoryListCmd.Flags().StringP("project", "p", "", "Project directory (default: current directory)")
	memoryListCmd.Flags().String("status", "", "Filter by status (candidate, active, stable, deprecated)")
	memoryListCmd.Flags().String("type", "", "Filter by type (decision, constraint, gotcha, style_rule, learning)")
	memoryListCmd.Flags().Float64("min-confidence", 0, "Filter by minimum confidence")
	memoryListCmd.Flags().String("since", "", "Filter to items updated since (duration, date, or phrase)")
	memoryListCmd.Flags().Int("limit", 0, "Page size (0 = everything)")
	memoryListCmd.Flags().String("cursor", "", "Resume from a previous page's cursor")

	memoryCmd.AddCommand(memoryExtractCmd)
	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memoryPromoteCmd)
	memoryCmd.AddCommand(memoryDeprecateCmd)
	memoryCmd.AddCommand(memoryMergeCmd)
	rootCmd.AddCommand(memoryCmd)
}
