// Package storage persists nodes as nested directories on the local file system.
package storage

import "github.com/starford/bok/internal/models"

// Provider is the node store surface used by the CLI, API, MCP and index layers.
type Provider interface {
	// Find returns the path (relative to the tree root) of the node whose id
	// equals or uniquely begins with idOrPrefix.
	Find(idOrPrefix string) (string, error)
	// Create persists a node and returns its id.
	Create(title, content, parentID, afterID string) (string, error)
	// Get returns a node with its ordered children.
	Get(id string) (models.Node, error)
	// ReadContent returns a node's stored body.
	ReadContent(id string) (string, error)
	// Remove deletes a node and its whole subtree, returning the removed path.
	Remove(id string) (string, error)
	// LoadTree returns the ordered forest below dir ("" for the tree root).
	LoadTree(dir string) ([]models.Node, error)
	// Flatten enumerates every node depth-first.
	Flatten() ([]models.NodeRef, error)
	// Reload rebuilds the id index from disk.
	Reload() error
	// Root returns the absolute tree root.
	Root() string
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)
