package api

import (
	"github.com/starford/bok/internal/importer"
	"github.com/starford/bok/internal/index"
	"github.com/starford/bok/internal/models"
	"github.com/starford/bok/internal/nodeservice"
)

// CreateNodeRequest is the request body for creating a node.
type CreateNodeRequest struct {
	Title   string `json:"title" example:"Chapter One" validate:"required"`
	Content string `json:"content" example:"# Chapter One\nIt was a dark night."`
	Parent  string `json:"parent,omitempty" example:"3632233996"`
	After   string `json:"after,omitempty" example:"1181238178"`
}

// ImportRequest is the request body for importing a document.
type ImportRequest struct {
	Source   string `json:"source,omitempty" example:"chapter1.md"`
	Document string `json:"document" example:"First part.\n\nSecond part." validate:"required"`
	Parent   string `json:"parent,omitempty" example:"3632233996"`
}

// ImportResponse wraps an import report. Error is set when the import
// stopped early; the report then describes what was done before.
type ImportResponse struct {
	Report *importer.Report `json:"report" validate:"required"`
	Error  string           `json:"error,omitempty"`
}

// NodeDetail is the full node response type (aliased from the domain layer).
type NodeDetail = nodeservice.NodeDetail

// TreeResponse wraps the ordered node forest.
type TreeResponse struct {
	Nodes []models.Node `json:"nodes" validate:"required"`
}

// FlatResponse wraps the depth-first node listing.
type FlatResponse struct {
	Nodes []models.NodeRef `json:"nodes" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult = index.SearchResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}
