package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/config"
	"github.com/skillmeat/skillmeat/internal/orchestrator"
	"github.com/skillmeat/skillmeat/internal/types"
	"github.com/skillmeat/skillmeat/internal/ui"
)

var packCmd = &cobra.Command{
	Use:     "pack",
	GroupID: "memory",
	Short:   "Assemble a budget-constrained context pack",
	Long: `Select memory items for injection into an agent session. Items are
ranked (status, then confidence, then recency) and packed greedily until the
token budget is spent.

Selection comes from a named context module (--module), every module active
in a workflow stage (--stage), or ad-hoc selectors.

Examples:
  skillmeat pack --budget 4000
  skillmeat pack --module backend --out CONTEXT.md
  skillmeat pack --stage implement
  skillmeat pack --type constraint,gotcha --min-confidence 0.6`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		project, _ := cmd.Flags().GetString("project")
		module, _ := cmd.Flags().GetString("module")
		stage, _ := cmd.Flags().GetString("stage")
		budget, _ := cmd.Flags().GetInt("budget")
		typeFlags, _ := cmd.Flags().GetStringSlice("type")
		minConf, _ := cmd.Flags().GetFloat64("min-confidence")
		anchors, _ := cmd.Flags().GetStringSlice("anchor")
		out, _ := cmd.Flags().GetString("out")

		if module != "" && stage != "" {
			FatalErrorRespectJSON("pass --module or --stage, not both")
		}
		if !cmd.Flags().Changed("budget") {
			budget = config.GetInt("pack.default_budget")
		}

		req := orchestrator.PackRequest{
			ProjectPath: projectPath(project),
			ModuleName:  module,
			Stage:       stage,
			Budget:      budget,
		}
		for _, t := range typeFlags {
			req.Selectors.Types = append(req.Selectors.Types, types.MemoryType(t))
		}
		req.Selectors.MinConfidence = minConf
		req.Selectors.Anchors = anchors

		a := mustApp(rootCtx)
		defer a.Close()

		pack, err := a.orch.PackContext(rootCtx, req)
		if err != nil {
			FatalErr(err)
		}

		if jsonOutput {
			outputJSON(pack)
			return
		}

		rendered := pack.Render()
		if out != "" {
			if err := os.WriteFile(out, []byte(rendered), 0o644); err != nil {
				FatalError("writing %s: %v", out, err)
			}
			fmt.Printf("%s Packed %d item(s), %d/%d tokens → %s\n",
				ui.IconPass, len(pack.Items), pack.TotalTokens, pack.Budget, out)
			return
		}
		fmt.Print(rendered)
		fmt.Fprintf(os.Stderr, "\n%d item(s), %d/%d tokens", len(pack.Items), pack.TotalTokens, pack.Budget)
		if pack.Skipped > 0 {
			fmt.Fprintf(os.Stderr, ", %d skipped over budget", pack.Skipped)
		}
		fmt.Fprintln(os.Stderr)
	},
}

var packModuleCmd = &cobra.Command{
	Use:   "module <name>",
	Short: "Create a named context module",
	Long: `Context modules are saved selections: memory types, a confidence floor,
anchor prefixes, and the workflow stages they activate in.

Examples:
  skillmeat pack module backend --type constraint,decision --stage implement
  skillmeat pack --module backend`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		project, _ := cmd.Flags().GetString("project")
		typeFlags, _ := cmd.Flags().GetStringSlice("type")
		minConf, _ := cmd.Flags().GetFloat64("min-confidence")
		anchors, _ := cmd.Flags().GetStringSlice("anchor")
		stages, _ := cmd.Flags().GetStringSlice("stage")
		priority, _ := cmd.Flags().GetInt("priority")
		members, _ := cmd.Flags().GetStringSlice("member")

		mod := &types.ContextModule{
			Name:          args[0],
			MinConfidence: minConf,
			Anchors:       anchors,
			Stages:        stages,
			Priority:      priority,
			MemberIDs:     members,
		}
		for _, t := range typeFlags {
			mod.MemoryTypes = append(mod.MemoryTypes, types.MemoryType(t))
		}

		a := mustApp(rootCtx)
		defer a.Close()

		created, err := a.orch.CreateContextModule(rootCtx, projectPath(project), mod)
		if err != nil {
			FatalErr(err)
		}
		if jsonOutput {
			outputJSON(created)
			return
		}
		fmt.Printf("%s Created module %s (%s)\n", ui.IconPass, ui.RenderBold(created.Name), ui.ShortID(created.ID))
	},
}

func init() {
	packCmd.Flags().StringP("project", "p", "", "Project directory (default: current directory)")
	packCmd.Flags().String("module", "", "Pack one named context module")
	packCmd.Flags().String("stage", "", "Pack every module active in a workflow stage")
	packCmd.Flags().Int("budget", 0, "Token budget (default from config: pack.default_budget)")
	packCmd.Flags().StringSlice("type", nil, "Ad-hoc selector: memory types")
	packCmd.Flags().Float64("min-confidence", 0, "Ad-hoc selector: confidence floor")
	packCmd.Flags().StringSlice("anchor", nil, "Ad-hoc selector: anchor path prefixes")
	packCmd.Flags().String("out", "", "Write the rendered pack to a file")

	packModuleCmd.Flags().StringP("project", "p", "", "Project directory (default: current directory)")
	packModuleCmd.Flags().StringSlice("type", nil, "Memory types the module selects")
	packModuleCmd.Flags().Float64("min-confidence", 0, "Confidence floor")
	packModuleCmd.Flags().StringSlice("anchor", nil, "Anchor path prefixes")
	packModuleCmd.Flags().StringSlice("stage", nil, "Workflow stages the module activates in")
	packModuleCmd.Flags().Int("priority", 0, "Tiebreak priority among stage modules")
	packModuleCmd.Flags().StringSlice("member", nil, "Pin specific memory item IDs")

	packCmd.AddCommand(packModuleCmd)
	rootCmd.AddCommand(packCmd)
}
