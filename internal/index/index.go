package index

// NodeIndex defines the interface for node indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type.
type NodeIndex interface {
	UpsertNode(n NodeRow, body string) error
	DeleteNode(id string) error
	GetNode(id string) (*NodeRow, error)
	Children(parentID string) ([]NodeRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllChecksums() (map[string]string, error)
	Count() (int, error)
	Close() error
}

// Verify *DB satisfies NodeIndex at compile time.
var _ NodeIndex = (*DB)(nil)
