package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/types"
	"github.com/skillmeat/skillmeat/internal/ui"
)

var setCmd = &cobra.Command{
	Use:     "set",
	GroupID: "deploy",
	Short:   "Manage deployment sets",
	Long: `Deployment sets bundle artifacts, groups, and other sets into one
deployable unit. 'skillmeat deploy --set NAME' deploys the flattened,
deduplicated member list in order.

Examples:
  skillmeat set create onboarding --description "New-project baseline"
  skillmeat set add onboarding code-review
  skillmeat set add onboarding --group review-suite
  skillmeat set show onboarding
  skillmeat deploy --set onboarding --project .`,
}

var setCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty deployment set",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		description, _ := cmd.Flags().GetString("description")

		a := mustApp(rootCtx)
		defer a.Close()

		set, err := a.orch.CreateSet(rootCtx, "", args[0], description)
		if err != nil {
			FatalErr(err)
		}
		if jsonOutput {
			outputJSON(set)
			return
		}
		fmt.Printf("%s Created set %s (%s)\n", ui.IconPass, ui.RenderBold(set.Name), ui.ShortID(set.ID))
	},
}

var setAddCmd = &cobra.Command{
	Use:   "add <set> [artifact]",
	Short: "Add an artifact, group, or nested set as a member",
	Long: `Add a member to a set. The positional argument names an artifact; use
--group or --set for the other member kinds. Nested sets are rejected when
adding them would close a cycle.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		groupRef, _ := cmd.Flags().GetString("group")
		setRef, _ := cmd.Flags().GetString("set")
		position, _ := cmd.Flags().GetFloat64("position")

		a := mustApp(rootCtx)
		defer a.Close()

		set := resolveSet(rootCtx, a, args[0])
		m := &types.SetMember{SetID: set.ID, Position: position}
		var label string

		switch {
		case groupRef != "":
			g := resolveGroup(rootCtx, a, groupRef)
			m.Kind = types.MemberGroup
			m.GroupID = g.ID
			label = "group " + g.Name
		case setRef != "":
			nested := resolveSet(rootCtx, a, setRef)
			m.Kind = types.MemberSet
			m.MemberSetID = nested.ID
			label = "set " + nested.Name
		case len(args) == 2:
			art := resolveArtifact(rootCtx, a, args[1])
			m.Kind = types.MemberArtifact
			m.ArtifactUUID = art.UUID
			label = string(art.Type) + " " + art.Name
		default:
			FatalErrorRespectJSON("name an artifact, or pass --group/--set")
		}

		if err := a.orch.AddSetMember(rootCtx, m); err != nil {
			FatalErr(err)
		}
		if jsonOutput {
			outputJSON(m)
			return
		}
		fmt.Printf("%s Added %s to %s\n", ui.IconPass, label, set.Name)
	},
}

var setRemoveCmd = &cobra.Command{
	Use:   "remove <set> [artifact]",
	Short: "Remove a member from a set",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		groupRef, _ := cmd.Flags().GetString("group")
		setRef, _ := cmd.Flags().GetString("set")

		a := mustApp(rootCtx)
		defer a.Close()

		set := resolveSet(rootCtx, a, args[0])
		m := &types.SetMember{SetID: set.ID}

		switch {
		case groupRef != "":
			g := resolveGroup(rootCtx, a, groupRef)
			m.Kind = types.MemberGroup
			m.GroupID = g.ID
		case setRef != "":
			nested := resolveSet(rootCtx, a, setRef)
			m.Kind = types.MemberSet
			m.MemberSetID = nested.ID
		case len(args) == 2:
			art := resolveArtifact(rootCtx, a, args[1])
			m.Kind = types.MemberArtifact
			m.ArtifactUUID = art.UUID
		default:
			FatalErrorRespectJSON("name an artifact, or pass --group/--set")
		}

		if err := a.orch.RemoveSetMember(rootCtx, m); err != nil {
			FatalErr(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"set": set.ID, "removed": "member"})
			return
		}
		fmt.Printf("%s Removed member from %s\n", ui.IconPass, set.Name)
	},
}

var setListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deployment sets",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(rootCtx)
		defer a.Close()

		sets, err := a.orch.ListSets(rootCtx, "")
		if err != nil {
			FatalErr(err)
		}
		if jsonOutput {
			outputJSON(sets)
			return
		}
		if len(sets) == 0 {
			fmt.Println("No deployment sets.")
			return
		}
		for _, s := range sets {
			desc := ""
			if s.Description != "" {
				desc = "  " + ui.RenderMuted(s.Description)
			}
			fmt.Printf("%s %s%s\n", ui.RenderID(ui.ShortID(s.ID)), ui.RenderBold(s.Name), desc)
		}
	},
}

var setShowCmd = &cobra.Command{
	Use:   "show <set>",
	Short: "Show a set's members and its flattened artifact list",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(rootCtx)
		defer a.Close()

		set := resolveSet(rootCtx, a, args[0])
		members, err := a.store.ListSetMembers(rootCtx, set.ID)
		if err != nil {
			FatalErr(err)
		}
		resolved, err := a.orch.ResolveSet(rootCtx, set.ID)
		if err != nil {
			FatalErr(err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"set":      set,
				"members":  members,
				"resolved": resolved,
			})
			return
		}

		nodes := make([]ui.TreeNode, 0, len(members))
		for _, m := range members {
			nodes = append(nodes, ui.TreeNode{Label: setMemberLabel(rootCtx, a, m)})
		}
		fmt.Println(ui.RenderSetTree(set, nodes))
		fmt.Printf("\nresolves to %d artifact(s)\n", len(resolved))
	},
}

var setDeleteCmd = &cobra.Command{
	Use:   "delete <set>",
	Short: "Delete a set (members survive)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(rootCtx)
		defer a.Close()

		set := resolveSet(rootCtx, a, args[0])
		if err := a.orch.DeleteSet(rootCtx, set.ID); err != nil {
			FatalErr(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"deleted": set.ID})
			return
		}
		fmt.Printf("%s Deleted set %s\n", ui.IconPass, ui.RenderBold(set.Name))
	},
}

// setMemberLabel renders one direct member for the set tree, resolving IDs
// to names where the rows still exist.
func setMemberLabel(ctx context.Context, a *app, m *types.SetMember) string {
	switch m.Kind {
	case types.MemberArtifact:
		if art, err := a.store.GetArtifact(ctx, m.ArtifactUUID); err == nil {
			return fmt.Sprintf("%s %s", ui.RenderType(art.Type), art.Name)
		}
		return "artifact " + ui.ShortID(m.ArtifactUUID)
	case types.MemberGroup:
		if g, err := a.store.GetGroup(ctx, m.GroupID); err == nil {
			return "group " + g.Name
		}
		return "group " + ui.ShortID(m.GroupID)
	case types.MemberSet:
		if s, err := a.store.GetSet(ctx, m.MemberSetID); err == nil {
			return "set " + s.Name
		}
		return "set " + ui.ShortID(m.MemberSetID)
	}
	return string(m.Kind)
}

func init() {
	setCreateCmd.Flags().String("description", "", "Set description")
	setAddCmd.Flags().String("group", "", "Add a group member instead of an artifact")
	setAddCmd.Flags().String("set", "", "Add a nested set member instead of an artifact")
	setAddCmd.Flags().Float64("position", 0, "Ordering position of the member")
	setRemoveCmd.Flags().String("group", "", "Remove a group member")
	setRemoveCmd.Flags().String("set", "", "Remove a nested set member")

	setCmd.AddCommand(setCreateCmd)
	setCmd.AddCommand(setAddCmd)
	setCmd.AddCommand(setRemoveCmd)
	setCmd.AddCommand(setListCmd)
	setCmd.AddCommand(setShowCmd)
	setCmd.AddCommand(setDeleteCmd)
	rootCmd.AddCommand(setCmd)
}
