package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/config"
	"github.com/skillmeat/skillmeat/internal/snapshot"
	"github.com/skillmeat/skillmeat/internal/ui"
)

var gcCmd = &cobra.Command{
	Use:     "gc",
	GroupID: "maint",
	Short:   "Prune old snapshots and unreferenced blobs",
	Long: `Apply the snapshot retention policy (keep the newest N per scope, drop
older than the age cutoff) and delete content blobs no remaining snapshot
references.

--older-than accepts durations ("72h", "30d") and natural phrases
("2 weeks ago").

Examples:
  skillmeat gc
  skillmeat gc --keep 10 --older-than 30d
  skillmeat gc --blobs-only`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		keep, _ := cmd.Flags().GetInt("keep")
		olderThan, _ := cmd.Flags().GetString("older-than")
		blobsOnly, _ := cmd.Flags().GetBool("blobs-only")

		if !cmd.Flags().Changed("keep") {
			keep = config.GetInt("snapshot.retention.count")
		}
		maxAge := config.GetDuration("snapshot.retention.age")
		if olderThan != "" {
			cutoff, err := parseTimeFlag(olderThan)
			if err != nil {
				FatalErrorRespectJSON("parsing --older-than: %v", err)
			}
			maxAge = time.Since(cutoff)
			if maxAge < 0 {
				FatalErrorRespectJSON("--older-than %q is in the future", olderThan)
			}
		}

		a := mustApp(rootCtx)
		defer a.Close()

		var res *snapshot.PruneResult
		var err error
		if blobsOnly {
			res, err = a.orch.GC(rootCtx)
		} else {
			res, err = a.orch.PruneSnapshots(rootCtx, keep, maxAge)
		}
		if err != nil {
			FatalErr(err)
		}

		if jsonOutput {
			outputJSON(res)
			return
		}
		if res.SnapshotsDeleted == 0 && res.BlobsDeleted == 0 {
			fmt.Println("Nothing to prune.")
			return
		}
		fmt.Printf("%s Pruned %d snapshot(s), %d blob(s), %s freed\n",
			ui.IconPass, res.SnapshotsDeleted, res.BlobsDeleted, formatBytes(res.BytesFreed))
	},
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func init() {
	gcCmd.Flags().Int("keep", 0, "Snapshots to keep per scope (default from config)")
	gcCmd.Flags().String("older-than", "", "Also drop snapshots older than this")
	gcCmd.Flags().Bool("blobs-only", false, "Only collect unreferenced blobs; keep all snapshots")
	rootCmd.AddCommand(gcCmd)
}
