package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/bok/internal/storage"
)

const settleDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven index change.
// kind is one of "updated", "deleted".
type EventCallback func(kind string, id string)

// Watch starts an fsnotify watcher on the tree root and keeps the store's id
// map and the index in step with changes made outside the process, until
// ctx is cancelled. It calls cb (if non-nil) for every node touched.
//
// Events are coalesced: a burst of writes (a node creation touches a
// directory and two files) results in a single reload and sync pass once
// the tree has been quiet for a short moment.
func Watch(ctx context.Context, db NodeIndex, store storage.Provider, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := store.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	schedule := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(settleDelay)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-settleCh:
			resync(db, store, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			// Hidden entries never carry node data; this covers in-flight
			// temp files and the index database directory.
			if hidden(ev.Name) {
				continue
			}

			// New node directories (and whatever was moved in with them)
			// must be watched too.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// resync reloads the store's id map and syncs the index against it.
func resync(db NodeIndex, store storage.Provider, logger *slog.Logger, cb EventCallback) {
	if err := store.Reload(); err != nil {
		logger.Warn("watcher: reload failed", slog.String("error", err.Error()))
		return
	}
	res, err := Sync(db, store, logger)
	if err != nil {
		logger.Warn("watcher: sync failed", slog.String("error", err.Error()))
		return
	}
	if cb == nil {
		return
	}
	for _, id := range res.Upserted {
		cb("updated", id)
	}
	for _, id := range res.Removed {
		cb("deleted", id)
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
