package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/types"
	"github.com/skillmeat/skillmeat/internal/ui"
)

var groupCmd = &cobra.Command{
	Use:     "group",
	GroupID: "artifacts",
	Short:   "Manage artifact groups inside the collection",
	Long: `Groups are named orderings of artifacts inside a collection, used to
deploy related artifacts together via sets.

Examples:
  skillmeat group create review-suite --description "Everything code review"
  skillmeat group add review-suite code-review
  skillmeat group list review-suite
  skillmeat group delete review-suite`,
}

var groupCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty group",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		description, _ := cmd.Flags().GetString("description")

		a := mustApp(rootCtx)
		defer a.Close()

		g, err := a.orch.CreateGroup(rootCtx, collectionName, args[0], description)
		if err != nil {
			FatalErr(err)
		}
		if jsonOutput {
			outputJSON(g)
			return
		}
		fmt.Printf("%s Created group %s (%s)\n", ui.IconPass, ui.RenderBold(g.Name), ui.ShortID(g.ID))
	},
}

var groupAddCmd = &cobra.Command{
	Use:   "add <group> <artifact>...",
	Short: "Add artifacts to a group",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		position, _ := cmd.Flags().GetFloat64("position")

		a := mustApp(rootCtx)
		defer a.Close()

		g := resolveGroup(rootCtx, a, args[0])
		for i, ref := range args[1:] {
			art := resolveArtifact(rootCtx, a, ref)
			m := &types.GroupMembership{
				GroupID:      g.ID,
				ArtifactUUID: art.UUID,
				Position:     position + float64(i),
			}
			if err := a.orch.AddGroupMember(rootCtx, m); err != nil {
				FatalErr(err)
			}
			if !jsonOutput {
				fmt.Printf("%s Added %s to %s\n", ui.IconPass, art.Name, g.Name)
			}
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"group": g.ID, "added": len(args[1:])})
		}
	},
}

var groupRemoveCmd = &cobra.Command{
	Use:   "remove <group> <artifact>",
	Short: "Remove an artifact from a group",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(rootCtx)
		defer a.Close()

		g := resolveGroup(rootCtx, a, args[0])
		art := resolveArtifact(rootCtx, a, args[1])

		if err := a.orch.RemoveGroupMember(rootCtx, g.ID, art.UUID); err != nil {
			FatalErr(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"group": g.ID, "removed": art.UUID})
			return
		}
		fmt.Printf("%s Removed %s from %s\n", ui.IconPass, art.Name, g.Name)
	},
}

var groupListCmd = &cobra.Command{
	Use:   "list [group]",
	Short: "List groups, or the artifacts inside one group",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(rootCtx)
		defer a.Close()

		if len(args) == 0 {
			col := mustCollection(rootCtx, a)
			groups, err := a.store.ListGroups(rootCtx, col.ID)
			if err != nil {
				FatalErr(err)
			}
			if jsonOutput {
				outputJSON(groups)
				return
			}
			if len(groups) == 0 {
				fmt.Println("No groups in the collection.")
				return
			}
			for _, g := range groups {
				desc := ""
				if g.Description != "" {
					desc = "  " + ui.RenderMuted(g.Description)
				}
				fmt.Printf("%s %s%s\n", ui.RenderID(ui.ShortID(g.ID)), ui.RenderBold(g.Name), desc)
			}
			return
		}

		g := resolveGroup(rootCtx, a, args[0])
		artifacts, err := a.orch.ListGroupArtifacts(rootCtx, g.ID)
		if err != nil {
			FatalErr(err)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"group": g, "artifacts": artifacts})
			return
		}
		fmt.Println(ui.RenderArtifactTable(artifacts, ui.GetWidth()))
	},
}

var groupDeleteCmd = &cobra.Command{
	Use:   "delete <group>",
	Short: "Delete a group (member artifacts survive)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(rootCtx)
		defer a.Close()

		g := resolveGroup(rootCtx, a, args[0])
		if err := a.orch.DeleteGroup(rootCtx, g.ID); err != nil {
			FatalErr(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"deleted": g.ID})
			return
		}
		fmt.Printf("%s Deleted group %s\n", ui.IconPass, ui.RenderBold(g.Name))
	},
}

func init() {
	groupCreateCmd.Flags().String("description", "", "Group description")
	groupAddCmd.Flags().Float64("position", 0, "Ordering position of the first added artifact")

	groupCmd.AddCommand(groupCreateCmd)
	groupCmd.AddCommand(groupAddCmd)
	groupCmd.AddCommand(groupRemoveCmd)
	groupCmd.AddCommand(groupListCmd)
	groupCmd.AddCommand(groupDeleteCmd)
	rootCmd.AddCommand(groupCmd)
}
