package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/config"
	"github.com/skillmeat/skillmeat/internal/ui"
)

// Global flag state shared by all commands.
var (
	jsonOutput     bool
	dbPath         string
	collectionName string
	identityFlag   string
)

// rootCtx is cancelled on SIGINT/SIGTERM so long-running commands
// (watch, extraction) shut down cleanly.
var rootCtx context.Context

var rootCmd = &cobra.Command{
	Use:   "skillmeat",
	Short: "Manage reusable agent artifacts across a collection and projects",
	Long: `skillmeat keeps skills, commands, agents, hooks, and MCP servers in a
versioned local collection and deploys them into project .claude/ directories.

The collection is the source of truth. Deployments are tracked in a SQLite
database and mirrored into a per-project ledger (.claude/skillmeat.toml), so
drift between the two sides can always be detected, previewed, and synced.

Start with:
  skillmeat init                    # create the state directory and collection
  skillmeat add ./my-skill          # import an artifact
  skillmeat deploy my-skill         # deploy it into the current project`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := config.Initialize(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
		}

		// Flags win over config; config fills in flags that were not given.
		if !cmd.Flags().Changed("json") {
			jsonOutput = config.GetBool("json")
		}
		if dbPath == "" {
			dbPath = config.GetString("db")
		} else {
			config.Set("db", dbPath)
		}
		if collectionName == "" {
			collectionName = config.GetString("collection")
		}

		ui.ConfigureColors()
	},
}

// Execute runs the CLI. Commands report their own errors and exit; anything
// that reaches here is a usage error cobra already printed.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	rootCtx = ctx

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "setup", Title: "Setup:"},
		&cobra.Group{ID: "artifacts", Title: "Collection:"},
		&cobra.Group{ID: "deploy", Title: "Deployment:"},
		&cobra.Group{ID: "memory", Title: "Memory & Context:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the database file (default <state-dir>/skillmeat.db)")
	rootCmd.PersistentFlags().StringVar(&collectionName, "collection", "", "Collection to operate on (default: the active collection)")
	rootCmd.PersistentFlags().StringVar(&identityFlag, "identity", "", "Attribution for mutations (default: config, git user.name, hostname)")
}
