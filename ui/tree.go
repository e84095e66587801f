// Package ui renders suite hierarchies as box-drawing trees for terminal
// output.
package ui

import (
	"strings"

	"github.com/testdeck/testdeck/types"
)

// Tree hierarchy symbols using box drawing characters
const (
	TreeBranch     = "├── " // Branch connector
	TreeLastBranch = "└── " // Last branch connector
	TreeContinue   = "│   " // Vertical line while the parent has more siblings
	TreeIndent     = "    " // Parent was last, no vertical line needed
)

// RenderTree renders the suite forest returned by the hierarchy service,
// one suite per line, children indented under their parents.
func RenderTree(roots []*types.SuiteNode) string {
	var sb strings.Builder
	for i, root := range roots {
		renderNode(&sb, root, "", i == len(roots)-1, true)
	}
	return sb.String()
}

func renderNode(sb *strings.Builder, node *types.SuiteNode, prefix string, isLast, isRoot bool) {
	if isRoot {
		sb.WriteString(node.Suite.Name)
	} else {
		sb.WriteString(prefix)
		if isLast {
			sb.WriteString(TreeLastBranch)
		} else {
			sb.WriteString(TreeBranch)
		}
		sb.WriteString(node.Suite.Name)
	}
	if node.Suite.Status != "" && node.Suite.Status != types.SuiteStatusActive {
		sb.WriteString(" [" + string(node.Suite.Status) + "]")
	}
	sb.WriteString("\n")

	childPrefix := prefix
	if !isRoot {
		if isLast {
			childPrefix += TreeIndent
		} else {
			childPrefix += TreeContinue
		}
	}
	for i, child := range node.Children {
		renderNode(sb, child, childPrefix, i == len(node.Children)-1, false)
	}
}
