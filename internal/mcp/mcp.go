// Package mcp implements the Model Context Protocol server for the
// ledger: a small, strictly read-only surface so an MCP-compatible agent
// can verify a chain's integrity, check prior precedent, and replay a
// cell's lineage back to genesis without ever being able to append,
// fork, or sign anything through this transport.
package mcp

import (
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/decisiongraph/ledger/internal/chain"
	"github.com/decisiongraph/ledger/internal/precedent"
)

// serverInstructions is sent to every MCP client during the initialize
// handshake, so a connected agent knows what each tool answers without
// per-project configuration.
const serverInstructions = `You have access to a decision ledger: a hash-chained, content-addressed
record of judgments made in a regulated workflow (AML/KYC, insurance
claims, or similar). Every tool here is read-only — nothing you call
can append a cell, fork a chain, or alter a signature.

TOOLS:
- ledger_verify: confirm the hash chain from genesis to a cell (or the
  current head) is intact, every cell_id recomputes correctly and every
  prev_cell_hash links to its predecessor.
- ledger_precedent_check: look up prior judgments matching a case's
  fingerprint or reason codes, plus aggregate statistics, before relying
  on a disposition as precedent.
- ledger_replay: return the full lineage of cells from genesis to a
  given cell_id, in chain order, for audit or reconstruction.

Use ledger_verify when you need confidence the record hasn't been
tampered with. Use ledger_precedent_check before treating any outcome as
a reusable precedent. Use ledger_replay when asked to reconstruct or
explain how a cell came to exist.`

// Server wraps the MCP server with the ledger's read-only query surface.
type Server struct {
	mcpServer *mcpserver.MCPServer
	chain     *chain.Chain
	registry  *precedent.Registry
	logger    *slog.Logger
}

// New creates and configures an MCP server bound to chain c, with
// precedent lookups served by reg. A nil logger falls back to
// slog.Default().
func New(c *chain.Chain, reg *precedent.Registry, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		chain:    c,
		registry: reg,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"decisiongraph-ledger",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
