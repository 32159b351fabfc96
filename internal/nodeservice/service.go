// Package nodeservice coordinates the node store, the search index, the
// import pipeline and change notifications.
package nodeservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/bok/internal/dissect"
	"github.com/starford/bok/internal/importer"
	"github.com/starford/bok/internal/index"
	"github.com/starford/bok/internal/models"
	"github.com/starford/bok/internal/storage"
)

// NodeDetail is the full representation of a node.
type NodeDetail struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	After    string           `json:"after,omitempty"`
	Path     string           `json:"path"`
	Content  string           `json:"content"`
	Children []models.NodeRef `json:"children"`
}

// Notifier receives node change events. kind is one of "created",
// "updated", "deleted".
type Notifier func(kind, id string)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithNotifier registers fn to receive change events.
func WithNotifier(fn Notifier) Option {
	return func(s *Service) { s.notify = fn }
}

// Service coordinates storage and index operations.
type Service struct {
	store    storage.Provider
	db       index.NodeIndex
	provider dissect.Provider
	logger   *slog.Logger
	notify   Notifier
}

// NewService creates a new node service.
func NewService(store storage.Provider, db index.NodeIndex, provider dissect.Provider, opts ...Option) *Service {
	s := &Service{store: store, db: db, provider: provider, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying node store.
func (s *Service) Store() storage.Provider { return s.store }

// GetNode returns a node with its content and direct children.
func (s *Service) GetNode(_ context.Context, id string) (*NodeDetail, error) {
	n, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	content, err := s.store.ReadContent(n.ID)
	if err != nil {
		return nil, err
	}
	children := make([]models.NodeRef, len(n.Children))
	for i, c := range n.Children {
		children[i] = models.NodeRef{ID: c.ID, Title: c.Title()}
	}
	return &NodeDetail{
		ID:       n.ID,
		Title:    n.Title(),
		After:    n.After(),
		Path:     n.Path,
		Content:  content,
		Children: children,
	}, nil
}

// CreateNode persists a node and indexes it.
func (s *Service) CreateNode(ctx context.Context, title, content, parentID, afterID string) (*NodeDetail, error) {
	id, err := s.store.Create(title, content, parentID, afterID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("nodeservice: node created", slog.String("id", id))
	s.emit("created", id)
	s.reindex()
	return s.GetNode(ctx, id)
}

// DeleteNode removes a node with its subtree from storage and index.
func (s *Service) DeleteNode(_ context.Context, id string) error {
	n, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if _, err := s.store.Remove(n.ID); err != nil {
		return err
	}
	for _, gone := range subtreeIDs(n) {
		if err := s.db.DeleteNode(gone); err != nil {
			return fmt.Errorf("nodeservice: unindex %s: %w", gone, err)
		}
		s.emit("deleted", gone)
	}
	s.logger.Info("nodeservice: node removed", slog.String("id", n.ID))
	return nil
}

// Tree returns the ordered forest below id, or the whole tree when id is
// empty. A non-empty id yields a single-element forest rooted at that node.
func (s *Service) Tree(_ context.Context, id string) ([]models.Node, error) {
	if id == "" {
		return s.store.LoadTree("")
	}
	n, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return []models.Node{n}, nil
}

// Flat returns every node in depth-first order.
func (s *Service) Flat(_ context.Context) ([]models.NodeRef, error) {
	return s.store.Flatten()
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []index.SearchResult{}, nil
	}
	return s.db.Search(query, limit)
}

// Import dissects document into nodes below parentID and reindexes.
func (s *Service) Import(ctx context.Context, source, document, parentID string) (*importer.Report, error) {
	report, err := s.importer().Import(ctx, source, document, parentID)
	if report != nil && len(report.Created) > 0 {
		s.reindex()
	}
	return report, err
}

// ImportFile reads path and imports it below parentID.
func (s *Service) ImportFile(ctx context.Context, path, parentID string) (*importer.Report, error) {
	report, err := s.importer().ImportFile(ctx, path, parentID)
	if report != nil && len(report.Created) > 0 {
		s.reindex()
	}
	return report, err
}

// Sync brings the index in line with the tree.
func (s *Service) Sync(_ context.Context) (*index.SyncResult, error) {
	return index.Sync(s.db, s.store, s.logger)
}

func (s *Service) importer() *importer.Importer {
	return importer.New(s.store, s.provider,
		importer.WithLogger(s.logger),
		importer.WithCreatedHook(func(id, _ string) { s.emit("created", id) }),
	)
}

// reindex syncs the index after a mutation. Failures only degrade search,
// so they are logged rather than returned.
func (s *Service) reindex() {
	if _, err := index.Sync(s.db, s.store, s.logger); err != nil {
		s.logger.Warn("nodeservice: reindex failed", slog.String("error", err.Error()))
	}
}

func (s *Service) emit(kind, id string) {
	if s.notify != nil {
		s.notify(kind, id)
	}
}

func subtreeIDs(n models.Node) []string {
	ids := []string{n.ID}
	for _, c := range n.Children {
		ids = append(ids, subtreeIDs(c)...)
	}
	return ids
}
