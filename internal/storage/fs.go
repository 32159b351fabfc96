package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/renameio"
	"gopkg.in/yaml.v3"

	"github.com/starford/bok/internal/apperr"
	"github.com/starford/bok/internal/models"
	"github.com/starford/bok/internal/nodeid"
	"github.com/starford/bok/internal/ordering"
)

// File names inside every node directory.
const (
	ContentFile = "text.qmd"
	MetaFile    = "meta.yaml"
)

const (
	maxDirTitle      = 80
	maxNameBytes     = 255 // per path component on common file systems
	maxDisambiguates = 1000
)

// FS implements Provider backed by the local file system.
//
// Every node is a directory named "<id> <title>" holding ContentFile and
// MetaFile; children are nested directories. The id -> path map is rebuilt
// from disk by Open and Reload and kept current by Create and Remove.
type FS struct {
	root   string // absolute path to the tree root
	logger *slog.Logger

	mu    sync.RWMutex
	paths map[string]string // id -> path relative to root
}

// Open creates an FS rooted at the given directory and indexes the nodes
// below it. The directory must already exist.
func Open(root string, logger *slog.Logger) (*FS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	f := &FS{root: abs, logger: logger}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Root returns the absolute tree root.
func (f *FS) Root() string { return f.root }

// Reload rescans the tree and replaces the id index.
func (f *FS) Reload() error {
	paths := make(map[string]string)
	if err := f.scan("", paths); err != nil {
		return fmt.Errorf("storage: scan: %w", err)
	}
	f.mu.Lock()
	f.paths = paths
	f.mu.Unlock()
	return nil
}

func (f *FS) scan(rel string, into map[string]string) error {
	entries, err := os.ReadDir(filepath.Join(f.root, rel))
	if err != nil {
		return err
	}
	for _, e := range entries {
		id, ok := f.nodeDir(rel, e)
		if !ok {
			continue
		}
		p := filepath.Join(rel, e.Name())
		if prev, dup := into[id]; dup {
			f.logger.Warn("storage: duplicate node id",
				slog.String("id", id), slog.String("kept", prev), slog.String("ignored", p))
			continue
		}
		into[id] = p
		if err := f.scan(p, into); err != nil {
			return err
		}
	}
	return nil
}

// nodeDir reports whether e (inside rel) is a node directory and returns its id.
func (f *FS) nodeDir(rel string, e os.DirEntry) (string, bool) {
	if !e.IsDir() {
		return "", false
	}
	id, _, ok := strings.Cut(e.Name(), " ")
	if !ok || !nodeid.Valid(id) {
		return "", false
	}
	if _, err := os.Stat(filepath.Join(f.root, rel, e.Name(), MetaFile)); err != nil {
		return "", false
	}
	return id, true
}

// safePath resolves a relative path against the tree root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes tree root: %s", rel)
	}
	return abs, nil
}

// Find returns the path of the node whose id equals idOrPrefix, or else the
// single node whose id begins with it. Several prefix matches yield
// apperr.ErrAmbiguous.
func (f *FS) Find(idOrPrefix string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.findLocked(idOrPrefix)
}

func (f *FS) findLocked(idOrPrefix string) (string, error) {
	if idOrPrefix == "" {
		return "", fmt.Errorf("storage: empty id: %w", apperr.ErrNotFound)
	}
	if p, ok := f.paths[idOrPrefix]; ok {
		return p, nil
	}
	var matches []string
	for id := range f.paths {
		if strings.HasPrefix(id, idOrPrefix) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("storage: node %q: %w", idOrPrefix, apperr.ErrNotFound)
	case 1:
		return f.paths[matches[0]], nil
	default:
		sort.Strings(matches)
		return "", fmt.Errorf("storage: node %q matches %s: %w",
			idOrPrefix, strings.Join(matches, ", "), apperr.ErrAmbiguous)
	}
}

// Create persists a node below parentID (tree root when empty) and returns
// its id. A title whose id is already taken is suffixed with " (2)", " (3)",
// ... until the derived id is free; the stored title is the suffixed one.
func (f *FS) Create(title, content, parentID, afterID string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", errors.New("storage: title is required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	parentRel := ""
	if parentID != "" {
		p, err := f.findLocked(parentID)
		if errors.Is(err, apperr.ErrAmbiguous) {
			return "", fmt.Errorf("storage: parent: %w", err)
		}
		if err != nil {
			return "", fmt.Errorf("storage: parent %q: %w", parentID, apperr.ErrParentNotFound)
		}
		parentRel = p
	}

	candidate := title
	for n := 2; ; n++ {
		if n > maxDisambiguates {
			return "", fmt.Errorf("storage: no free id for %q: %w", title, apperr.ErrAlreadyExists)
		}
		id := nodeid.Of(candidate)
		if _, taken := f.paths[id]; taken {
			candidate = fmt.Sprintf("%s (%d)", title, n)
			continue
		}
		rel := filepath.Join(parentRel, dirName(id, candidate))
		err := os.Mkdir(filepath.Join(f.root, rel), 0o755)
		if errors.Is(err, os.ErrExist) {
			candidate = fmt.Sprintf("%s (%d)", title, n)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("storage: mkdir %s: %w: %w", rel, apperr.ErrIO, err)
		}
		if candidate != title {
			f.logger.Warn("storage: id collision, title disambiguated",
				slog.String("title", title), slog.String("stored_title", candidate), slog.String("id", id))
		}
		if err := f.writeNode(rel, candidate, content, afterID); err != nil {
			_ = os.RemoveAll(filepath.Join(f.root, rel))
			return "", err
		}
		f.paths[id] = rel
		return id, nil
	}
}

func (f *FS) writeNode(rel, title, content, afterID string) error {
	meta, err := yaml.Marshal(models.Meta{Title: title, After: afterID})
	if err != nil {
		return fmt.Errorf("storage: encode meta: %w", err)
	}
	dir := filepath.Join(f.root, rel)
	if err := atomicWrite(dir, ContentFile, []byte(content)); err != nil {
		return err
	}
	return atomicWrite(dir, MetaFile, meta)
}

// atomicWrite is swapped out by tests to simulate failing disks.
var atomicWrite = writeAtomic

// writeAtomic writes data to dir/name through a hidden temp file in dir
// that is fsynced and renamed into place.
func writeAtomic(dir, name string, data []byte) error {
	t, err := renameio.TempFile(dir, filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("storage: create temp: %w: %w", apperr.ErrIO, err)
	}
	defer t.Cleanup() //nolint:errcheck // no-op after a successful replace

	if err := t.Chmod(0o644); err != nil {
		return fmt.Errorf("storage: chmod temp: %w: %w", apperr.ErrIO, err)
	}
	if _, err := t.Write(data); err != nil {
		return fmt.Errorf("storage: write temp: %w: %w", apperr.ErrIO, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("storage: replace %s: %w: %w", name, apperr.ErrIO, err)
	}
	return nil
}

// dirName builds "<id> <title>" with the title made safe for a single path
// component: at most maxDirTitle runes and maxNameBytes bytes in total.
func dirName(id, title string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0, '\n', '\r', '\t':
			return ' '
		}
		return r
	}, title)
	if utf8.RuneCountInString(clean) > maxDirTitle {
		clean = string([]rune(clean)[:maxDirTitle])
	}
	if budget := maxNameBytes - len(id) - 1; len(clean) > budget {
		cut := budget
		for cut > 0 && !utf8.RuneStart(clean[cut]) {
			cut--
		}
		clean = clean[:cut]
	}
	clean = strings.TrimRight(clean, " .")
	if clean == "" {
		clean = "untitled"
	}
	return id + " " + clean
}

// ReadContent returns the stored body of a node.
func (f *FS) ReadContent(id string) (string, error) {
	rel, err := f.Find(id)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(f.root, rel, ContentFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("storage: content of %s: %w", id, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("storage: read %s: %w: %w", rel, apperr.ErrIO, err)
	}
	return string(data), nil
}

// Get returns the node with its ordered subtree.
func (f *FS) Get(id string) (models.Node, error) {
	rel, err := f.Find(id)
	if err != nil {
		return models.Node{}, err
	}
	meta, err := readMeta(filepath.Join(f.root, rel, MetaFile))
	if err != nil {
		return models.Node{}, err
	}
	children, err := f.LoadTree(rel)
	if err != nil {
		return models.Node{}, err
	}
	nodeID, _, _ := strings.Cut(filepath.Base(rel), " ")
	return models.Node{ID: nodeID, Meta: meta, Path: rel, Children: children}, nil
}

// Remove deletes the node directory and everything beneath it.
func (f *FS) Remove(id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rel, err := f.findLocked(id)
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(filepath.Join(f.root, rel)); err != nil {
		return "", fmt.Errorf("storage: remove %s: %w: %w", rel, apperr.ErrIO, err)
	}
	prefix := rel + string(os.PathSeparator)
	for k, p := range f.paths {
		if p == rel || strings.HasPrefix(p, prefix) {
			delete(f.paths, k)
		}
	}
	return rel, nil
}

// LoadTree loads every node below dir (relative to root), recursively, with
// each sibling group ordered by after-references. Nodes whose metadata cannot
// be read are logged and skipped.
func (f *FS) LoadTree(dir string) ([]models.Node, error) {
	return f.loadTree(dir, make(map[string]struct{}))
}

// loadTree skips a directory whose id was already seen or is mapped to
// another path, so enumeration agrees with Find.
func (f *FS) loadTree(dir string, seen map[string]struct{}) ([]models.Node, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w: %w", dir, apperr.ErrIO, err)
	}
	var nodes []models.Node
	for _, e := range entries {
		id, ok := f.nodeDir(dir, e)
		if !ok {
			continue
		}
		rel := filepath.Join(dir, e.Name())
		if f.shadowed(id, rel, seen) {
			f.logger.Warn("storage: duplicate node id", slog.String("id", id), slog.String("ignored", rel))
			continue
		}
		seen[id] = struct{}{}
		meta, err := readMeta(filepath.Join(f.root, rel, MetaFile))
		if err != nil {
			f.logger.Warn("storage: skip node", slog.String("path", rel), slog.String("error", err.Error()))
			continue
		}
		children, err := f.loadTree(rel, seen)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, models.Node{ID: id, Meta: meta, Path: rel, Children: children})
	}
	return ordering.SortByAfter(nodes), nil
}

func (f *FS) shadowed(id, rel string, seen map[string]struct{}) bool {
	if _, dup := seen[id]; dup {
		return true
	}
	f.mu.RLock()
	mapped, ok := f.paths[id]
	f.mu.RUnlock()
	return ok && mapped != rel
}

// Flatten lists every node depth-first: a node, then its descendants, then
// its next sibling.
func (f *FS) Flatten() ([]models.NodeRef, error) {
	forest, err := f.LoadTree("")
	if err != nil {
		return nil, err
	}
	var out []models.NodeRef
	var walk func([]models.Node)
	walk = func(nodes []models.Node) {
		for _, n := range nodes {
			out = append(out, models.NodeRef{ID: n.ID, Title: n.Title()})
			walk(n.Children)
		}
	}
	walk(forest)
	return out, nil
}

func readMeta(path string) (models.Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Meta{}, fmt.Errorf("storage: read meta: %w: %w", apperr.ErrIO, err)
	}
	var meta models.Meta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return models.Meta{}, fmt.Errorf("storage: parse meta %s: %w", path, err)
	}
	if meta.Title == "" {
		return models.Meta{}, fmt.Errorf("storage: meta %s: missing title", path)
	}
	return meta, nil
}
