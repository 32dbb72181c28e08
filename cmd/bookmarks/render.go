package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
)

// renderForest prints one node per line, indented by depth. Closed folders
// are marked and their children still listed.
func renderForest(w io.Writer, f tree.Forest) {
	if len(f) == 0 {
		fmt.Fprintln(w, "(empty)")
		return
	}
	renderNodes(w, f, 0)
}

func renderNodes(w io.Writer, nodes []*tree.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		if n.IsFolder() {
			marker := "▾"
			if n.IsOpen != nil && !*n.IsOpen {
				marker = "▸"
			}
			fmt.Fprintf(w, "%s%s %s/  [%s]\n", indent, marker, n.Name, n.ID)
			renderNodes(w, n.Children, depth+1)
			continue
		}
		line := fmt.Sprintf("%s• %s  [%s]", indent, n.Name, n.ID)
		if n.URL != "" {
			line += "  " + n.URL
		}
		if len(n.Tags) > 0 {
			line += "  #" + strings.Join(n.Tags, " #")
		}
		fmt.Fprintln(w, line)
	}
}

func renderMatches(w io.Writer, matches []tree.Match) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "no matches")
		return
	}
	for _, m := range matches {
		parent := m.ParentID
		if parent == "" {
			parent = "root"
		}
		line := fmt.Sprintf("%s  [%s]  in %s", m.Node.Name, m.Node.ID, parent)
		if m.Node.URL != "" {
			line += "  " + m.Node.URL
		}
		fmt.Fprintln(w, line)
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
