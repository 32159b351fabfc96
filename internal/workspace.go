package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/bok/internal/apperr"
	"github.com/starford/bok/internal/dissect"
	"github.com/starford/bok/internal/index"
	"github.com/starford/bok/internal/nodeservice"
	"github.com/starford/bok/internal/storage"
	"github.com/starford/bok/pkg/config"
)

// DefaultStartingTitle titles the node Init creates when none is given.
const DefaultStartingTitle = "Starting Node"

// Workspace bundles everything opened for one book directory.
type Workspace struct {
	Root    string
	Config  *Config
	Store   *storage.FS
	DB      *index.DB
	Service *nodeservice.Service
}

// LoadConfig reads bok.yaml from root on top of the defaults. A missing
// file is not an error.
func LoadConfig(root string, logger *slog.Logger) (*Config, error) {
	cfg := NewDefaultConfig()
	path := filepath.Join(root, ConfigFile)
	found, err := config.LoadIfExists(path, cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		logger.Warn("config: file not found, using defaults", slog.String("path", path))
	}
	return cfg, nil
}

// Open opens the node store, search index and dissection provider for root
// and wires them into a node service.
func Open(root string, cfg *Config, logger *slog.Logger, opts ...nodeservice.Option) (*Workspace, error) {
	store, err := storage.Open(root, logger)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	provider, err := dissect.New(cfg.LLM.Settings(), logger)
	if err != nil {
		return nil, fmt.Errorf("init provider: %w", err)
	}

	dbPath := cfg.Index.Path
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(store.Root(), dbPath)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := index.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	svc := nodeservice.NewService(store, db, provider,
		append([]nodeservice.Option{nodeservice.WithLogger(logger)}, opts...)...)

	return &Workspace{
		Root:    store.Root(),
		Config:  cfg,
		Store:   store,
		DB:      db,
		Service: svc,
	}, nil
}

// Close releases the index.
func (w *Workspace) Close() error {
	return w.DB.Close()
}

// Init turns root into a book: it creates the starting node and writes
// bok.yaml pointing at it. An existing bok.yaml is left alone and reported
// as apperr.ErrAlreadyExists.
func Init(root, title string, logger *slog.Logger) (string, error) {
	path := filepath.Join(root, ConfigFile)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("init: %s: %w", path, apperr.ErrAlreadyExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("init: stat %s: %w", path, err)
	}

	if title == "" {
		title = DefaultStartingTitle
	}
	store, err := storage.Open(root, logger)
	if err != nil {
		return "", fmt.Errorf("init storage: %w", err)
	}
	id, err := store.Create(title, title, "", "")
	if err != nil {
		return "", fmt.Errorf("init: create starting node: %w", err)
	}

	cfg := NewDefaultConfig()
	cfg.Book.StartingNode = id
	if err := config.Save(path, cfg); err != nil {
		return "", err
	}
	logger.Info("init: book created", slog.String("starting_node", id), slog.String("config", path))
	return id, nil
}
