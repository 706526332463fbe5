package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/config"
	"github.com/skillmeat/skillmeat/internal/types"
	"github.com/skillmeat/skillmeat/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Initialize the state directory and default collection",
	Long: `Initialize skillmeat: create the state directory, the database, and the
default collection, and write a starter config.yaml.

Interactive terminals get a short form for the collection name, its root
directory, and the identity recorded on snapshots. Non-interactive runs
(pipes, CI) take the defaults or the corresponding flags.

Examples:
  skillmeat init
  skillmeat init --name work --root ~/artifacts --quiet
  skillmeat init --no-input --json`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		name, _ := cmd.Flags().GetString("name")
		root, _ := cmd.Flags().GetString("root")
		quiet, _ := cmd.Flags().GetBool("quiet")
		noInput, _ := cmd.Flags().GetBool("no-input")
		force, _ := cmd.Flags().GetBool("force")

		if root == "" {
			root = config.CollectionRoot()
		}
		identity := config.GetIdentity(identityFlag)

		if ui.IsTerminal() && !noInput && !jsonOutput {
			if err := runInitForm(&name, &root, &identity); err != nil {
				FatalError("%v", err)
			}
		}
		name = strings.TrimSpace(name)
		if name == "" {
			FatalErrorRespectJSON("collection name must not be empty")
		}

		abs, err := filepath.Abs(root)
		if err != nil {
			FatalError("resolving collection root: %v", err)
		}
		root = abs
		config.Set("collection.root", root)
		if identity != "" {
			config.Set("identity", identity)
		}

		result := ui.InitResult{
			StateDir:       config.StateDir(),
			DBPath:         config.DatabasePath(),
			CollectionName: name,
			CollectionRoot: root,
			Identity:       identity,
		}

		for _, dir := range []string{config.StateDir(), root, config.LocksDir(), config.SnapshotsDir()} {
			if _, err := os.Stat(dir); err == nil {
				continue
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				FatalError("creating %s: %v", dir, err)
			}
			result.CreatedDirs = append(result.CreatedDirs, dir)
		}

		a := mustApp(rootCtx)
		defer a.Close()

		col, err := a.store.GetCollectionByName(rootCtx, name)
		switch {
		case err == nil:
			if !force {
				result.DoctorIssues = append(result.DoctorIssues,
					fmt.Sprintf("collection %q already exists; kept as-is (use --force to re-activate it)", name))
			}
			if err := a.store.SetActiveCollection(rootCtx, col.ID); err != nil {
				FatalErr(err)
			}
		case types.IsNotFound(err):
			col = &types.Collection{Name: name, Root: root, IsActive: true}
			if err := a.store.CreateCollection(rootCtx, col); err != nil {
				FatalErr(err)
			}
			if err := a.store.SetActiveCollection(rootCtx, col.ID); err != nil {
				FatalErr(err)
			}
		default:
			FatalErr(err)
		}

		if issue := writeStarterConfig(root, identity, force); issue != "" {
			result.DoctorIssues = append(result.DoctorIssues, issue)
		}

		result.QuickstartCommands = []string{
			"skillmeat add ./my-skill --type skill",
			"skillmeat list",
			"skillmeat deploy my-skill --project .",
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"state_dir":  result.StateDir,
				"db":         result.DBPath,
				"collection": col,
				"created":    result.CreatedDirs,
				"issues":     result.DoctorIssues,
			})
			return
		}
		if quiet {
			fmt.Printf("Initialized collection %q at %s\n", name, root)
			return
		}
		fmt.Println(ui.RenderInitReport(result, ui.GetWidth()))
	},
}

// runInitForm collects the three init inputs with a huh form.
func runInitForm(name, root, identity *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Collection name").
				Description("Artifacts are grouped under one named collection.").
				Placeholder("default").
				Value(name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("name must not be empty")
					}
					if strings.ContainsAny(s, `/\`) {
						return fmt.Errorf("name must not contain path separators")
					}
					return nil
				}),
			huh.NewInput().
				Title("Collection root").
				Description("Directory where canonical artifact files live.").
				Value(root),
			huh.NewInput().
				Title("Identity").
				Description("Recorded on snapshots and provenance entries.").
				Value(identity),
		),
	)
	return form.Run()
}

// writeStarterConfig drops a config.yaml in the state directory unless one
// already exists. Returns a doctor note instead of failing.
func writeStarterConfig(root, identity string, force bool) string {
	path := filepath.Join(config.StateDir(), "config.yaml")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Sprintf("config already exists at %s; left untouched", path)
	}

	var b strings.Builder
	b.WriteString("# skillmeat configuration\n")
	fmt.Fprintf(&b, "collection:\n  root: %s\n", root)
	if identity != "" {
		fmt.Fprintf(&b, "identity: %s\n", identity)
	}
	b.WriteString("sync:\n  strategy: merge\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Sprintf("could not write %s: %v", path, err)
	}
	return ""
}

func init() {
	initCmd.Flags().String("name", "default", "Collection name")
	initCmd.Flags().String("root", "", "Collection root directory (default <state-dir>/collection)")
	initCmd.Flags().Bool("quiet", false, "Suppress the init report")
	initCmd.Flags().Bool("no-input", false, "Never prompt; take defaults and flags")
	initCmd.Flags().Bool("force", false, "Re-activate an existing collection and overwrite config.yaml")
	rootCmd.AddCommand(initCmd)
}
