package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/decisiongraph/ledger/internal/cell"
	"github.com/decisiongraph/ledger/internal/precedent"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("ledger_verify",
			mcplib.WithDescription(`Verify the hash chain from genesis to a cell.

WHEN TO USE: before trusting any cell's content, or after importing a
chain from an untrusted source. Recomputes every cell_id along the path
and checks that each cell's prev_cell_hash matches its predecessor.

If cell_id is omitted, verifies the whole chain up to its current head.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("cell_id",
				mcplib.Description("The cell to verify back to genesis. Defaults to the chain's current head."),
			),
		),
		s.handleVerify,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("ledger_precedent_check",
			mcplib.WithDescription(`Check the chain's JUDGMENT cells for prior precedent before relying on
an outcome as reusable.

WHEN TO USE: before treating any past disposition as binding precedent
for a new case. Pass fingerprint_hash for an exact Tier-0 match, or
exclusion_codes to find prior judgments sharing one or more reason
codes. Omit both to get aggregate statistics over the namespace only.

namespace_prefix scopes the search (e.g. "banking_aml.sanctions").
as_of is an RFC 3339 timestamp; precedents recorded or only valid after
it are excluded. Defaults to now.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("namespace_prefix",
				mcplib.Description("Namespace prefix to scope the search, e.g. \"banking_aml.sanctions\"."),
				mcplib.Required(),
			),
			mcplib.WithString("fingerprint_hash",
				mcplib.Description("Exact Tier-0 fingerprint_hash to match against prior judgments."),
			),
			mcplib.WithString("exclusion_codes",
				mcplib.Description("JSON array of reason codes, e.g. [\"RC-SCR-001\"]. Matches any judgment sharing at least one code."),
			),
			mcplib.WithString("as_of",
				mcplib.Description("RFC 3339 timestamp bounding the search. Defaults to now."),
			),
		),
		s.handlePrecedentCheck,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("ledger_replay",
			mcplib.WithDescription(`Replay a cell's full lineage from genesis, in chain order.

WHEN TO USE: to reconstruct or explain how a cell came to exist — every
ancestor cell is returned with its type, namespace, predicate, and
system_time, oldest first.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("cell_id",
				mcplib.Description("The cell whose lineage to replay."),
				mcplib.Required(),
			),
		),
		s.handleReplay,
	)
}

func (s *Server) resolveCellID(requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	head, ok := s.chain.Head()
	if !ok {
		return "", fmt.Errorf("chain is empty")
	}
	return head.CellID, nil
}

func (s *Server) handleVerify(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	cellID, err := s.resolveCellID(request.GetString("cell_id", ""))
	if err != nil {
		return errorResult(err.Error()), nil
	}

	lineage, err := s.chain.TraceToGenesis(cellID)
	if err != nil {
		return errorResult(fmt.Sprintf("trace failed: %v", err)), nil
	}

	var broken []string
	for _, cl := range lineage {
		ok, err := cell.VerifyIntegrity(cl)
		if err != nil || !ok {
			broken = append(broken, cl.CellID)
		}
	}

	result := map[string]any{
		"cell_id": cellID,
		"length":  len(lineage),
		"valid":   len(broken) == 0,
	}
	if len(broken) > 0 {
		result["broken_cell_ids"] = broken
	}
	return jsonResult(result), nil
}

func (s *Server) handlePrecedentCheck(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	nsPrefix := request.GetString("namespace_prefix", "")
	if nsPrefix == "" {
		return errorResult("namespace_prefix is required"), nil
	}

	asOf := time.Now().UTC()
	if raw := request.GetString("as_of", ""); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return errorResult(fmt.Sprintf("invalid as_of: %v", err)), nil
		}
		asOf = parsed
	}

	stats := s.registry.GetStatistics(nsPrefix, asOf)
	result := map[string]any{
		"namespace_prefix": nsPrefix,
		"as_of":            asOf.Format(time.RFC3339),
		"statistics": map[string]any{
			"total":                stats.Total,
			"by_outcome":           stats.ByOutcome,
			"by_disposition_basis": stats.ByDispositionBasis,
			"appeal_count":         stats.AppealCount,
			"overturn_count":       stats.OverturnCount,
		},
	}

	if fp := request.GetString("fingerprint_hash", ""); fp != "" {
		matches := s.registry.FindByFingerprint(fp, nsPrefix, asOf)
		result["fingerprint_matches"] = summarizeRecords(matches)
	}

	if raw := request.GetString("exclusion_codes", ""); raw != "" {
		var codes []string
		if err := json.Unmarshal([]byte(raw), &codes); err != nil {
			return errorResult(fmt.Sprintf("invalid exclusion_codes: %v", err)), nil
		}
		matches := s.registry.FindByExclusionCodes(codes, nsPrefix, asOf)
		result["exclusion_code_matches"] = summarizeRecords(matches)
	}

	return jsonResult(result), nil
}

func (s *Server) handleReplay(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	cellID := request.GetString("cell_id", "")
	if cellID == "" {
		return errorResult("cell_id is required"), nil
	}

	lineage, err := s.chain.TraceToGenesis(cellID)
	if err != nil {
		return errorResult(fmt.Sprintf("replay failed: %v", err)), nil
	}

	cells := make([]map[string]any, len(lineage))
	for i, cl := range lineage {
		cells[i] = map[string]any{
			"cell_id":      cl.CellID,
			"cell_type":    cl.Header.CellType,
			"namespace":    cl.Fact.Namespace,
			"subject":      cl.Fact.Subject,
			"predicate":    cl.Fact.Predicate,
			"system_time":  cl.Header.SystemTime.Format(time.RFC3339),
			"prev_cell_hash": cl.Header.PrevCellHash,
		}
	}

	return jsonResult(map[string]any{
		"cell_id": cellID,
		"length":  len(cells),
		"lineage": cells,
	}), nil
}

// summarizeRecords reduces precedent.Record slices to the fields an
// agent needs to judge relevance, without dumping the full payload.
func summarizeRecords(records []precedent.Record) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, rec := range records {
		out[i] = map[string]any{
			"cell_id":           rec.CellID,
			"namespace":         rec.Namespace,
			"system_time":       rec.SystemTime.Format(time.RFC3339),
			"outcome_code":      rec.Payload.OutcomeCode,
			"disposition_basis": rec.Payload.DispositionBasis,
			"reason_codes":      rec.Payload.ReasonCodes,
		}
	}
	return out
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}
