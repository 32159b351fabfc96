// Package vis renders the node tree for external visualisation tools.
package vis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/bok/internal/models"
)

// Item is one entry of the D3 export.
type Item struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Items lists every node of forest in depth-first order.
func Items(forest []models.Node) []Item {
	out := []Item{}
	var walk func([]models.Node)
	walk = func(nodes []models.Node) {
		for _, n := range nodes {
			out = append(out, Item{ID: n.ID, Title: n.Title()})
			walk(n.Children)
		}
	}
	walk(forest)
	return out
}

// D3 renders Items as an indented JSON array.
func D3(forest []models.Node) ([]byte, error) {
	data, err := json.MarshalIndent(Items(forest), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("vis: encode d3: %w", err)
	}
	return data, nil
}

// Mermaid renders forest as a top-down flowchart. Solid edges lead from a
// parent to its children; dotted edges follow the after-chain between
// siblings.
func Mermaid(forest []models.Node) string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	var edges []string
	var walk func(parent string, nodes []models.Node)
	walk = func(parent string, nodes []models.Node) {
		for _, n := range nodes {
			fmt.Fprintf(&b, "  %s[\"%s\"]\n", mermaidID(n.ID), mermaidLabel(n.Title()))
			if parent != "" {
				edges = append(edges, fmt.Sprintf("  %s --> %s", mermaidID(parent), mermaidID(n.ID)))
			}
			if n.After() != "" {
				edges = append(edges, fmt.Sprintf("  %s -.-> %s", mermaidID(n.After()), mermaidID(n.ID)))
			}
			walk(n.ID, n.Children)
		}
	}
	walk("", forest)

	for _, e := range edges {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	return b.String()
}

// Mermaid node ids must not start with a digit.
func mermaidID(id string) string { return "n" + id }

var labelEscaper = strings.NewReplacer(`"`, "#quot;", "\n", " ", "\r", " ")

func mermaidLabel(title string) string { return labelEscaper.Replace(title) }

// Outline renders forest as indented "<id> <title>" lines, two spaces per
// level. When first names a top-level node it is listed before the others;
// found reports whether it was present.
func Outline(forest []models.Node, first string) (text string, found bool) {
	var b strings.Builder
	var walk func(indent string, nodes []models.Node)
	walk = func(indent string, nodes []models.Node) {
		for _, n := range nodes {
			fmt.Fprintf(&b, "%s%s %s\n", indent, n.ID, n.Title())
			walk(indent+"  ", n.Children)
		}
	}

	rest := forest
	if first != "" {
		for i, n := range forest {
			if n.ID == first {
				found = true
				walk("", forest[i:i+1])
				rest = append(append([]models.Node{}, forest[:i]...), forest[i+1:]...)
				break
			}
		}
	}
	walk("", rest)
	return b.String(), found
}
