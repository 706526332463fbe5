package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/config"
	"github.com/skillmeat/skillmeat/internal/events"
	"github.com/skillmeat/skillmeat/internal/types"
	"github.com/skillmeat/skillmeat/internal/ui"
	"github.com/skillmeat/skillmeat/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "deploy",
	Short:   "Watch a project for deployment drift",
	Long: `Monitor a project's .claude/ tree and report whenever a deployed
artifact's content diverges from the hash recorded at deploy time. Each
divergence is reported once; restoring the content re-arms it.

Runs until interrupted. With --json, each drift event is emitted as one
JSON line, suitable for piping.

Examples:
  skillmeat watch
  skillmeat watch --project ~/code/api
  skillmeat watch --poll --json`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		project, _ := cmd.Flags().GetString("project")
		poll, _ := cmd.Flags().GetBool("poll")

		root := projectPath(project)

		a := mustApp(rootCtx)
		defer a.Close()

		proj, err := a.store.GetProjectByPath(rootCtx, root)
		if err != nil {
			if types.IsNotFound(err) {
				FatalErrorRespectJSON("nothing deployed to %s yet. Run 'skillmeat deploy' first", root)
			}
			FatalErr(err)
		}

		unsub := a.orch.Bus().Subscribe(func(e events.Event) {
			if e.Kind != events.KindDrifted {
				return
			}
			if jsonOutput {
				line, merr := json.Marshal(e)
				if merr != nil {
					return
				}
				fmt.Println(string(line))
				return
			}
			change := e.Detail["change"]
			fmt.Printf("%s %s %s\n", ui.RenderWarn(ui.IconWarn), change, e.Detail["path"])
		})
		defer unsub()

		w, err := watch.New(proj, a.store, a.orch.Bus(), watch.Options{
			Debounce:     config.GetDuration("watch.debounce"),
			PollInterval: config.GetDuration("watch.poll_interval"),
			Poll:         poll,
		})
		if err != nil {
			FatalErr(err)
		}
		defer w.Close()

		if !jsonOutput {
			fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", root)
		}
		w.Start(rootCtx)
		<-rootCtx.Done()
	},
}

func init() {
	watchCmd.Flags().StringP("project", "p", "", "Project directory (default: current directory)")
	watchCmd.Flags().Bool("poll", false, "Poll on an interval instead of using filesystem events")
	rootCmd.AddCommand(watchCmd)
}
