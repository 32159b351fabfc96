package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bok/internal/importer"
	"github.com/starford/bok/internal/nodeservice"
	"github.com/starford/bok/internal/vis"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *nodeservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *nodeservice.Service) *Handler {
	return &Handler{svc: svc}
}

// Tree handles GET /api/nodes.
//
//	@Summary		Get the ordered node tree
//	@Tags			nodes
//	@Produce		json
//	@Param			root	query		string	false	"Only return the subtree rooted at this node id"
//	@Success		200		{object}	TreeResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	root := r.URL.Query().Get("root")
	forest, err := h.svc.Tree(r.Context(), root)
	if err != nil {
		writeError(w, "tree", err, slog.String("root", root))
		return
	}
	writeJSON(w, http.StatusOK, TreeResponse{Nodes: nonNilSlice(forest)})
}

// Flat handles GET /api/nodes/flat.
//
//	@Summary		List every node depth-first
//	@Tags			nodes
//	@Produce		json
//	@Success		200	{object}	FlatResponse
//	@Security		BearerAuth
//	@Router			/nodes/flat [get]
func (h *Handler) Flat(w http.ResponseWriter, r *http.Request) {
	refs, err := h.svc.Flat(r.Context())
	if err != nil {
		writeError(w, "flat", err)
		return
	}
	writeJSON(w, http.StatusOK, FlatResponse{Nodes: nonNilSlice(refs)})
}

// GetNode handles GET /api/nodes/{id}.
//
//	@Summary		Get a single node by id or unique id prefix
//	@Tags			nodes
//	@Produce		json
//	@Param			id	path		string	true	"Node id"
//	@Success		200	{object}	NodeDetail
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id} [get]
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	node, err := h.svc.GetNode(r.Context(), id)
	if err != nil {
		writeError(w, "get node", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// CreateNode handles POST /api/nodes.
//
//	@Summary		Create a new node
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNodeRequest	true	"Node to create"
//	@Success		201		{object}	NodeDetail
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes [post]
func (h *Handler) CreateNode(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title is required"))
		return
	}
	node, err := h.svc.CreateNode(r.Context(), req.Title, req.Content, req.Parent, req.After)
	if err != nil {
		writeError(w, "create node", err, slog.String("title", req.Title))
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

// DeleteNode handles DELETE /api/nodes/{id}.
//
//	@Summary		Delete a node and its subtree
//	@Tags			nodes
//	@Param			id	path	string	true	"Node id"
//	@Success		204	"Node deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id} [delete]
func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.DeleteNode(r.Context(), id); err != nil {
		writeError(w, "delete node", err, slog.String("id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Import handles POST /api/import.
//
//	@Summary		Dissect a document into a chain of sibling nodes
//	@Tags			import
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ImportRequest	true	"Document to import"
//	@Success		200		{object}	ImportResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	ImportResponse
//	@Failure		502		{object}	ImportResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Document == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("document is required"))
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}
	report, err := h.svc.Import(r.Context(), req.Source, req.Document, req.Parent)
	if report == nil {
		report = &importer.Report{Source: req.Source, Created: []string{}, MismatchAt: -1}
	}
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			slog.Error("import failed", slog.String("source", req.Source), slog.String("error", err.Error()))
		}
		writeJSON(w, status, ImportResponse{Report: report, Error: msg})
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Report: report})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across nodes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: nonNilSlice(results)})
}

// VisD3 handles GET /api/vis/d3.
//
//	@Summary		Export every node as a D3 node list
//	@Tags			vis
//	@Produce		json
//	@Success		200	{array}	vis.Item
//	@Security		BearerAuth
//	@Router			/vis/d3 [get]
func (h *Handler) VisD3(w http.ResponseWriter, r *http.Request) {
	forest, err := h.svc.Tree(r.Context(), "")
	if err != nil {
		writeError(w, "vis d3", err)
		return
	}
	writeJSON(w, http.StatusOK, vis.Items(forest))
}

// VisMermaid handles GET /api/vis/mermaid.
//
//	@Summary		Export the tree as a Mermaid flowchart
//	@Tags			vis
//	@Produce		plain
//	@Success		200	{string}	string
//	@Security		BearerAuth
//	@Router			/vis/mermaid [get]
func (h *Handler) VisMermaid(w http.ResponseWriter, r *http.Request) {
	forest, err := h.svc.Tree(r.Context(), "")
	if err != nil {
		writeError(w, "vis mermaid", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(vis.Mermaid(forest)))
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
