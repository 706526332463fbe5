package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/types"
	"github.com/skillmeat/skillmeat/internal/ui"
)

var snapshotCmd = &cobra.Command{
	Use:     "snapshot",
	GroupID: "maint",
	Short:   "Capture and list point-in-time snapshots",
	Long: `Snapshots capture the exact file tree of a scope (the collection or a
project's .claude/ directory) as content-addressed blobs. Mutating commands
take them automatically; 'snapshot create' takes one by hand.

Scopes:
  collection            the active collection (or --collection)
  collection:NAME       a collection by name
  project:PATH          a project's .claude/ tree

Examples:
  skillmeat snapshot create
  skillmeat snapshot create --scope project:.
  skillmeat snapshot list
  skillmeat snapshot list --scope collection --limit 10`,
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot a scope's current file tree",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		scopeFlag, _ := cmd.Flags().GetString("scope")

		a := mustApp(rootCtx)
		defer a.Close()

		scope := resolveScope(rootCtx, a, scopeFlag)
		snap, err := a.orch.CreateSnapshot(rootCtx, scope, types.SnapshotManual)
		if err != nil {
			FatalErr(err)
		}

		if jsonOutput {
			outputJSON(snap)
			return
		}
		fmt.Printf("%s Snapshot %s of %s (%d file(s))\n",
			ui.IconPass, ui.RenderID(ui.ShortID(snap.ID)), snap.Scope, len(snap.Tree))
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		scopeFlag, _ := cmd.Flags().GetString("scope")
		limit, _ := cmd.Flags().GetInt("limit")
		all, _ := cmd.Flags().GetBool("all")

		a := mustApp(rootCtx)
		defer a.Close()

		scope := ""
		if !all {
			scope = resolveScope(rootCtx, a, scopeFlag)
		}
		snaps, err := a.orch.ListSnapshots(rootCtx, scope, types.Page{Limit: limit})
		if err != nil {
			FatalErr(err)
		}

		if jsonOutput {
			outputJSON(snaps)
			return
		}
		if len(snaps) == 0 {
			fmt.Println("No snapshots.")
			return
		}
		fmt.Println(ui.RenderSnapshotTable(snaps, ui.GetWidth()))
	},
}

var rollbackCmd = &cobra.Command{
	Use:     "rollback <snapshot-id>",
	GroupID: "maint",
	Short:   "Restore a scope's files to a snapshot",
	Long: `Restore the files of a snapshot's scope to exactly the captured tree.
A compensating snapshot of the current state is taken first, so a rollback
can itself be rolled back.

Examples:
  skillmeat snapshot list
  skillmeat rollback 01HW3K...`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(rootCtx)
		defer a.Close()

		compensating, err := a.orch.Rollback(rootCtx, args[0])
		if err != nil {
			FatalErr(err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"rolled_back": args[0],
				"pre_state":   compensating,
			})
			return
		}
		fmt.Printf("%s Rolled back %s\n", ui.IconPass, compensating.Scope)
		fmt.Printf("  pre-rollback state kept as %s\n", ui.RenderID(ui.ShortID(compensating.ID)))
	},
}

// resolveScope turns the CLI scope syntax into a stored scope string.
// Empty input means the resolved collection.
func resolveScope(ctx context.Context, a *app, flag string) string {
	kind, rest, _ := strings.Cut(flag, ":")
	switch kind {
	case "", "collection":
		if rest == "" {
			col := mustCollection(ctx, a)
			return types.CollectionScope(col.ID)
		}
		col, err := a.store.GetCollectionByName(ctx, rest)
		if err != nil {
			FatalErr(err)
		}
		return types.CollectionScope(col.ID)
	case "project":
		p, err := a.store.GetProjectByPath(ctx, projectPath(rest))
		if err != nil {
			FatalErr(err)
		}
		return types.ProjectScope(p.ID)
	default:
		FatalErrorRespectJSON("unknown scope %q (use collection[:NAME] or project:PATH)", flag)
	}
	return ""
}

func init() {
	snapshotCreateCmd.Flags().String("scope", "", "Scope to capture (default: the active collection)")
	snapshotListCmd.Flags().String("scope", "", "Scope to list (default: the active collection)")
	snapshotListCmd.Flags().Int("limit", 0, "Maximum snapshots to return (0 = all)")
	snapshotListCmd.Flags().Bool("all", false, "List every scope")

	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(rollbackCmd)
}
