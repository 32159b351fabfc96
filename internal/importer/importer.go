// Package importer turns a document into a chain of sibling nodes and checks
// that the nodes reproduce the document.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/starford/bok/internal/apperr"
	"github.com/starford/bok/internal/dissect"
	"github.com/starford/bok/internal/parser"
)

// NodeStore is the part of the node store the pipeline needs.
type NodeStore interface {
	Create(title, content, parentID, afterID string) (string, error)
	ReadContent(id string) (string, error)
}

// PartError records a part the provider could not deliver.
type PartError struct {
	Index int    `json:"index"` // 1-based position in the dissection sequence
	Err   error  `json:"-"`
	Msg   string `json:"error"`
}

// Report summarises one import.
type Report struct {
	Source  string      `json:"source"`
	Parts   int         `json:"parts"`
	Created []string    `json:"created"`
	Failed  []PartError `json:"failed,omitempty"`
	// Valid is true when the created nodes, joined by dissect.Separator,
	// equal the imported document byte for byte.
	Valid bool `json:"valid"`
	// MismatchAt is the first differing byte offset, or -1.
	MismatchAt int `json:"mismatch_at"`
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

// WithCreatedHook registers fn to be called after every node creation.
func WithCreatedHook(fn func(id, title string)) Option {
	return func(im *Importer) { im.onCreate = fn }
}

// Importer drives a dissect.Provider and persists its parts.
type Importer struct {
	store    NodeStore
	provider dissect.Provider
	logger   *slog.Logger
	onCreate func(id, title string)
}

// New creates an Importer.
func New(store NodeStore, provider dissect.Provider, opts ...Option) *Importer {
	im := &Importer{store: store, provider: provider, logger: slog.Default()}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ImportFile reads path and imports it. HTML files (.html, .htm) are
// converted to Markdown first; the converted text is what gets validated.
func (im *Importer) ImportFile(ctx context.Context, path, parentID string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("importer: %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("importer: read %s: %w: %w", path, apperr.ErrIO, err)
	}
	document := string(data)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		document, err = htmltomarkdown.ConvertString(document)
		if err != nil {
			return nil, fmt.Errorf("importer: convert %s to markdown: %w", path, err)
		}
	}
	return im.Import(ctx, path, document, parentID)
}

// Import dissects document and creates one node per part below parentID,
// each chained to its predecessor through its after-reference.
//
// A store failure aborts the import and is returned together with the
// partial report. A malformed part is recorded in Report.Failed and skipped.
// A failure of the dissection stream itself ends consumption; validation
// still runs and the failure is returned. Already created nodes are never
// rolled back, and a failed round trip is reported, not returned as error.
func (im *Importer) Import(ctx context.Context, source, document, parentID string) (*Report, error) {
	report := &Report{Source: source, Created: []string{}, MismatchAt: -1}
	logger := im.logger.With(slog.String("source", source), slog.String("provider", string(im.provider.Kind())))

	var streamErr error
	last := ""
	for part, err := range im.provider.Dissect(ctx, document) {
		if err != nil && fatalStreamError(ctx, err) {
			streamErr = err
			logger.Error("importer: dissection failed", slog.String("error", err.Error()))
			break
		}
		report.Parts++
		if err != nil {
			logger.Warn("importer: skip part", slog.Int("part", report.Parts), slog.String("error", err.Error()))
			report.Failed = append(report.Failed, PartError{Index: report.Parts, Err: err, Msg: err.Error()})
			continue
		}

		title := part.Label
		if strings.TrimSpace(title) == "" {
			title = parser.Blurb(part.Content, parser.DefaultBlurbLength)
		}
		id, err := im.store.Create(title, part.Content, parentID, last)
		if err != nil {
			logger.Error("importer: create node failed", slog.Int("part", report.Parts), slog.String("error", err.Error()))
			return report, fmt.Errorf("importer: part %d: %w", report.Parts, err)
		}
		logger.Info("importer: node created", slog.Int("part", report.Parts), slog.String("id", id), slog.String("title", title))
		if im.onCreate != nil {
			im.onCreate(id, title)
		}
		report.Created = append(report.Created, id)
		last = id
	}
	if err := im.validate(report, document); err != nil {
		return report, err
	}
	if report.Valid {
		logger.Info("importer: validation successful", slog.Int("nodes", len(report.Created)))
	} else {
		logger.Warn("importer: validation failed, reconstructed content does not match",
			slog.Int("nodes", len(report.Created)), slog.Int("mismatch_at", report.MismatchAt))
	}

	if streamErr != nil {
		return report, fmt.Errorf("importer: dissection aborted: %w", streamErr)
	}
	return report, nil
}

// validate re-reads every created node and compares the reconstruction with
// the original document.
func (im *Importer) validate(report *Report, document string) error {
	contents := make([]string, 0, len(report.Created))
	for _, id := range report.Created {
		content, err := im.store.ReadContent(id)
		if err != nil {
			return fmt.Errorf("importer: read back %s: %w", id, err)
		}
		contents = append(contents, content)
	}
	rebuilt := strings.Join(contents, dissect.Separator)
	report.Valid = rebuilt == document
	if !report.Valid {
		report.MismatchAt = firstDifference(rebuilt, document)
	}
	return nil
}

func fatalStreamError(ctx context.Context, err error) bool {
	return errors.Is(err, apperr.ErrNetwork) || !errors.Is(err, apperr.ErrProtocol) || ctx.Err() != nil
}

func firstDifference(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
