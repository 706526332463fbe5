package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillmeat/skillmeat/internal/deploy"
	"github.com/skillmeat/skillmeat/internal/types"
	"github.com/skillmeat/skillmeat/internal/ui"
)

var showCmd = &cobra.Command{
	Use:     "show <artifact>",
	GroupID: "artifacts",
	Short:   "Show one artifact in detail",
	Long: `Show an artifact's record, where it is deployed, and (for skills with
embedded children) its composite structure.

The artifact may be referenced by name, type:name, or UUID.

Examples:
  skillmeat show code-review
  skillmeat show skill:pdf-tools
  skillmeat show code-review --render`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		render, _ := cmd.Flags().GetBool("render")
		showFiles, _ := cmd.Flags().GetBool("files")

		a := mustApp(rootCtx)
		defer a.Close()

		art := resolveArtifact(rootCtx, a, args[0])
		col := mustCollection(rootCtx, a)

		deployments, err := a.store.ListDeploymentsByArtifact(rootCtx, art.UUID)
		if err != nil {
			FatalErr(err)
		}

		var children []*types.Artifact
		comp, err := a.store.FindCompositeForArtifact(rootCtx, art.UUID)
		if err == nil {
			members, err := a.store.ListCompositeMembers(rootCtx, comp.ID)
			if err != nil {
				FatalErr(err)
			}
			for _, m := range members {
				child, err := a.store.GetArtifact(rootCtx, m.ChildUUID)
				if err != nil {
					continue
				}
				children = append(children, child)
			}
		} else if !types.IsNotFound(err) {
			FatalErr(err)
		}

		if jsonOutput {
			out := map[string]interface{}{
				"artifact":    art,
				"deployments": deployments,
			}
			if comp != nil && len(children) > 0 {
				out["composite"] = comp
				out["children"] = children
			}
			outputJSON(out)
			return
		}

		if render {
			md, err := primaryMarkdown(col, art)
			if err != nil {
				FatalErr(err)
			}
			fmt.Println(ui.RenderMarkdown(md))
			return
		}

		printArtifactDetail(art, deployments)
		if comp != nil && len(children) > 0 {
			fmt.Println()
			fmt.Println(ui.RenderCompositeTree(comp, children))
		}
		if showFiles {
			src, err := deploy.SourcePath(col, art)
			if err != nil {
				FatalErr(err)
			}
			fmt.Println()
			fmt.Println(ui.RenderBold("Files:"))
			printFileTree(src)
		}
	},
}

func printArtifactDetail(art *types.Artifact, deployments []*types.Deployment) {
	fmt.Printf("%s %s\n", ui.RenderType(art.Type), ui.RenderBold(art.Name))
	fmt.Printf("  uuid:      %s\n", ui.RenderID(art.UUID))
	fmt.Printf("  origin:    %s\n", art.Origin)
	if art.Upstream != "" {
		fmt.Printf("  upstream:  %s\n", art.Upstream)
	}
	if art.VersionSpec != "" {
		version := art.VersionSpec
		if art.ResolvedVersion != "" && art.ResolvedVersion != art.VersionSpec {
			version += " (resolved " + art.ResolvedVersion + ")"
		}
		fmt.Printf("  version:   %s\n", version)
	}
	if len(art.Tags) > 0 {
		fmt.Printf("  tags:      %s\n", strings.Join(art.Tags, ", "))
	}
	fmt.Printf("  content:   %s\n", ui.ShortID(art.ContentHash))
	fmt.Printf("  added:     %s\n", art.CreatedAt.Local().Format("2006-01-02 15:04"))

	if len(deployments) == 0 {
		fmt.Println(ui.RenderMuted("  not deployed anywhere"))
		return
	}
	fmt.Printf("  deployed:  %d project(s)\n", len(deployments))
	for _, d := range deployments {
		fmt.Printf("    %s %s\n", ui.RenderMuted(d.ProfileID), d.DeployedPath)
	}
}

// primaryMarkdown reads the artifact's main document: the file itself for
// file artifacts, SKILL.md for skill directories.
func primaryMarkdown(col *types.Collection, art *types.Artifact) (string, error) {
	src, err := deploy.SourcePath(col, art)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", &types.FilesystemError{Op: "stat", Path: src, Err: err}
	}
	if info.IsDir() {
		src = filepath.Join(src, "SKILL.md")
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", &types.FilesystemError{Op: "read", Path: src, Err: err}
	}
	return string(data), nil
}

func printFileTree(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			fmt.Printf("  %s/\n", rel)
		} else {
			fmt.Printf("  %s\n", rel)
		}
		return nil
	})
}

func init() {
	showCmd.Flags().Bool("render", false, "Render the artifact's markdown in the terminal")
	showCmd.Flags().Bool("files", false, "List the artifact's files in the collection")
	rootCmd.AddCommand(showCmd)
}
