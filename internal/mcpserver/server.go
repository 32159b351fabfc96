// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes bok tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/bok/internal/nodeservice"
	"github.com/starford/bok/internal/vis"
)

const formatURI = "bok://node-format"

// Server wraps the MCP server with bok tools.
type Server struct {
	mcp *server.MCPServer
	svc *nodeservice.Service
}

// New creates a new MCP server with all bok tools registered.
func New(svc *nodeservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"bok",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_nodes",
		mcp.WithDescription("List the node tree as indented \"<id> <title>\" lines, siblings in reading order."),
		mcp.WithString("root", mcp.Description("Optional node id; only its subtree is listed")),
	), s.listNodes)

	s.mcp.AddTool(mcp.NewTool("read_node",
		mcp.WithDescription("Read a node's title, content and children."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Node id or unique id prefix")),
	), s.readNode)

	s.mcp.AddTool(mcp.NewTool("add_node",
		mcp.WithDescription("Create a node. Read the contract first via the get_node_contract "+
			"tool or the "+formatURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short blurb; the node id is derived from it")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content of the node")),
		mcp.WithString("parent", mcp.Description("Optional parent node id (tree root when empty)")),
		mcp.WithString("after", mcp.Description("Optional id of the preceding sibling")),
	), s.addNode)

	s.mcp.AddTool(mcp.NewTool("remove_node",
		mcp.WithDescription("Remove a node together with its whole subtree."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Node id or unique id prefix")),
	), s.removeNode)

	s.mcp.AddTool(mcp.NewTool("search_nodes",
		mcp.WithDescription("Full-text search through node titles and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNodes)

	s.mcp.AddTool(mcp.NewTool("import_document",
		mcp.WithDescription("Dissect a Markdown document into a chain of sibling nodes and verify "+
			"that the nodes reproduce it exactly. Returns the import report as JSON."),
		mcp.WithString("document", mcp.Required(), mcp.Description("Markdown document text")),
		mcp.WithString("parent", mcp.Description("Optional parent node id")),
		mcp.WithString("source", mcp.Description("Optional name recorded in the report")),
	), s.importDocument)

	s.mcp.AddTool(mcp.NewTool("get_node_contract",
		mcp.WithDescription("Returns the bok node layout and dissection contract. "+
			"Call this before creating nodes or importing documents."),
	), s.getNodeContract)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Node Format Contract",
			mcp.WithResourceDescription("On-disk node layout and dissection rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNodeFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	forest, err := s.svc.Tree(ctx, req.GetString("root", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, _ := vis.Outline(forest, "")
	if text == "" {
		return mcp.NewToolResultText("no nodes"), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) readNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	node, err := s.svc.GetNode(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(node, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) addNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	node, err := s.svc.CreateNode(ctx, title, content, req.GetString("parent", ""), req.GetString("after", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s %s", node.ID, node.Title)), nil
}

func (s *Server) removeNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.DeleteNode(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed: %s", id)), nil
}

func (s *Server) searchNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) importDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	document, err := req.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source := req.GetString("source", "mcp")
	report, err := s.svc.Import(ctx, source, document, req.GetString("parent", ""))
	if err != nil && report == nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("import stopped: %v\n%s", err, out)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getNodeContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NodeFormatContract), nil
}

func (s *Server) readNodeFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     NodeFormatContract,
		},
	}, nil
}
