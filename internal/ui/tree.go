package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/skillmeat/skillmeat/internal/types"
)

// TreeNode is one labeled node in a membership tree. Sets nest groups and
// other sets, so nodes recurse.
type TreeNode struct {
	Label    string
	Children []TreeNode
}

// RenderTree renders a root label and its nested members using lipgloss/tree.
func RenderTree(root string, nodes []TreeNode) string {
	t := tree.New().Root(root)
	t.EnumeratorStyle(lipgloss.NewStyle().Foreground(ColorAccent))
	t.RootStyle(lipgloss.NewStyle().Bold(true).Foreground(ColorAccent))

	for _, n := range nodes {
		t.Child(buildNode(n))
	}
	return t.String()
}

func buildNode(n TreeNode) *tree.Tree {
	child := tree.New().Root(n.Label)
	child.EnumeratorStyle(lipgloss.NewStyle().Foreground(ColorAccent))
	for _, c := range n.Children {
		child.Child(buildNode(c))
	}
	return child
}

// RenderCompositeTree shows a composite and its expanded children.
func RenderCompositeTree(c *types.CompositeArtifact, children []*types.Artifact) string {
	nodes := make([]TreeNode, 0, len(children))
	for _, a := range children {
		nodes = append(nodes, TreeNode{Label: fmt.Sprintf("%s %s", RenderType(a.Type), a.Name)})
	}
	root := fmt.Sprintf("%s (%s)", c.Name, c.CompositeType)
	return RenderTree(root, nodes)
}

// RenderSetTree shows a deployment set with pre-built member nodes. Callers
// expand groups and nested sets into TreeNodes before rendering.
func RenderSetTree(set *types.DeploymentSet, members []TreeNode) string {
	root := set.Name
	if set.Description != "" {
		root = fmt.Sprintf("%s %s", set.Name, RenderMuted("— "+set.Description))
	}
	return RenderTree(root, members)
}
