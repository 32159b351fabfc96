// Package models defines the domain types for bok.
package models

// Meta is the metadata persisted next to a node's content.
type Meta struct {
	Title string `yaml:"title" json:"title"`
	// After names the sibling that precedes this node, if any.
	After string `yaml:"after,omitempty" json:"after,omitempty"`
}

// Node is a persisted text unit. Children come from directory nesting.
type Node struct {
	ID       string `json:"id"`
	Meta     Meta   `json:"meta"`
	Path     string `json:"path"` // relative to the tree root
	Children []Node `json:"children,omitempty"`
}

// Title returns the node's blurb.
func (n Node) Title() string { return n.Meta.Title }

// After returns the id of the preceding sibling, or "".
func (n Node) After() string { return n.Meta.After }

// NodeRef is the flat (id, title) pair used to enumerate known nodes.
type NodeRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
