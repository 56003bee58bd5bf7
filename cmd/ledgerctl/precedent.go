package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/decisiongraph/ledger/internal/precedent"
)

// PrecedentCmd runs the same read-only precedent query the MCP tool
// exposes, from the command line: exact fingerprint match, exclusion-code
// overlap, and aggregate statistics over a namespace prefix.
type PrecedentCmd struct {
	NamespacePrefix string `required:"" help:"Namespace prefix to scope the search, e.g. banking_aml.sanctions."`
	Fingerprint     string `help:"Exact Tier-0 fingerprint_hash to match against prior judgments."`
	ExclusionCodes  string `help:"Comma-separated reason codes, e.g. RC-SCR-001,RC-SCR-002."`
	AsOf            string `help:"RFC 3339 timestamp bounding the search. Defaults to now."`
}

func (p *PrecedentCmd) Run(app *appContext) error {
	c, err := loadChain(app.ctx, app.cfg.StorageRoot, app.logger)
	if err != nil {
		return fmt.Errorf("load chain: %w", err)
	}
	reg := precedent.New(c, app.logger)

	asOf := time.Now().UTC()
	if p.AsOf != "" {
		asOf, err = time.Parse(time.RFC3339, p.AsOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of: %w", err)
		}
	}

	stats := reg.GetStatistics(p.NamespacePrefix, asOf)
	result := map[string]any{
		"namespace_prefix": p.NamespacePrefix,
		"as_of":            asOf.Format(time.RFC3339),
		"statistics": map[string]any{
			"total":                stats.Total,
			"by_outcome":           stats.ByOutcome,
			"by_disposition_basis": stats.ByDispositionBasis,
			"appeal_count":         stats.AppealCount,
			"overturn_count":       stats.OverturnCount,
		},
	}

	if p.Fingerprint != "" {
		result["fingerprint_matches"] = summarize(reg.FindByFingerprint(p.Fingerprint, p.NamespacePrefix, asOf))
	}
	if p.ExclusionCodes != "" {
		codes := strings.Split(p.ExclusionCodes, ",")
		for i := range codes {
			codes[i] = strings.TrimSpace(codes[i])
		}
		result["exclusion_code_matches"] = summarize(reg.FindByExclusionCodes(codes, p.NamespacePrefix, asOf))
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	return nil
}

func summarize(records []precedent.Record) []map[string]any {
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
