package index

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"

	"github.com/starford/bok/internal/models"
	"github.com/starford/bok/internal/storage"
)

// SyncResult lists the ids touched by a Sync.
type SyncResult struct {
	Upserted []string
	Removed  []string
}

// Sync walks the node tree and brings the index up to date:
//   - new/changed nodes are read and upserted
//   - nodes removed from disk are deleted from the index
func Sync(db NodeIndex, store storage.Provider, logger *slog.Logger) (*SyncResult, error) {
	forest, err := store.LoadTree("")
	if err != nil {
		return nil, err
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return nil, err
	}

	res := &SyncResult{}
	disk := make(map[string]struct{})

	var walk func(parentID string, nodes []models.Node)
	walk = func(parentID string, nodes []models.Node) {
		for pos, n := range nodes {
			disk[n.ID] = struct{}{}
			walk(n.ID, n.Children)

			body, err := store.ReadContent(n.ID)
			if err != nil {
				logger.Warn("sync: read failed", slog.String("id", n.ID), slog.String("error", err.Error()))
				continue
			}
			row := NodeRow{
				ID:       n.ID,
				ParentID: parentID,
				Path:     n.Path,
				Title:    n.Title(),
				After:    n.After(),
				Position: pos,
			}
			row.Checksum = rowChecksum(row, body)
			if checksums[n.ID] == row.Checksum {
				continue
			}
			if err := db.UpsertNode(row, body); err != nil {
				logger.Warn("sync: index failed", slog.String("id", n.ID), slog.String("error", err.Error()))
				continue
			}
			logger.Debug("sync: indexed", slog.String("id", n.ID))
			res.Upserted = append(res.Upserted, n.ID)
		}
	}
	walk("", forest)

	// Remove stale entries.
	for id := range checksums {
		if _, ok := disk[id]; ok {
			continue
		}
		if err := db.DeleteNode(id); err != nil {
			logger.Warn("sync: delete failed", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("id", id))
		res.Removed = append(res.Removed, id)
	}
	return res, nil
}

// rowChecksum covers everything Sync writes, so moves and reorders are
// picked up as well as content edits.
func rowChecksum(r NodeRow, body string) string {
	h := sha256.New()
	for _, s := range []string{r.ParentID, r.Path, r.Title, r.After, strconv.Itoa(r.Position), body} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
