// Package precedent implements the stateless precedent registry: a
// read-only view over a chain's JUDGMENT cells. It holds no index and no
// cache of its own — every query re-walks the chain via
// chain.FindBitemporal, so the chain remains the sole source of truth a
// lookup can never diverge from.
package precedent

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/decisiongraph/ledger/internal/cell"
	"github.com/decisiongraph/ledger/internal/chain"
	"github.com/decisiongraph/ledger/internal/judgment"
)

// Record pairs a decoded judgment payload with the cell it was recorded
// in, for callers that need the cell_id or namespace alongside the
// payload itself.
type Record struct {
	CellID     string
	Namespace  string
	SystemTime time.Time
	Payload    judgment.Payload
}

// Registry is a stateless query surface over a chain's JUDGMENT cells.
type Registry struct {
	chain  *chain.Chain
	logger *slog.Logger
}

// New constructs a Registry bound to chain c. A nil logger falls back to
// slog.Default().
func New(c *chain.Chain, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{chain: c, logger: logger}
}

// snapshot walks the chain for JUDGMENT cells valid at asOf, decodes
// their payloads, and keeps only those whose namespace starts with
// nsPrefix. A cell whose Fact.Object fails to decode is logged and
// skipped rather than failing the whole query: one malformed historical
// record must not take precedent lookups down with it.
func (r *Registry) snapshot(nsPrefix string, asOf time.Time) []Record {
	cells := r.chain.FindBitemporal(cell.TypeJudgment, asOf)
	out := make([]Record, 0, len(cells))
	for _, cl := range cells {
		if nsPrefix != "" && !strings.HasPrefix(cl.Fact.Namespace, nsPrefix) {
			continue
		}
		var p judgment.Payload
		if err := json.Unmarshal([]byte(cl.Fact.Object), &p); err != nil {
			r.logger.Warn("precedent: skipping cell with undecodable judgment payload",
				"cell_id", cl.CellID, "namespace", cl.Fact.Namespace, "error", err)
			continue
		}
		out = append(out, Record{
			CellID:     cl.CellID,
			Namespace:  cl.Fact.Namespace,
			SystemTime: cl.Header.SystemTime,
			Payload:    p,
		})
	}
	return out
}

// FindByFingerprint returns every JUDGMENT record under nsPrefix, valid
// at asOf, whose fingerprint_hash exactly matches hash — the Tier-0 exact
// match lookup a case's own fingerprint is checked against before any
// similarity scoring runs.
func (r *Registry) FindByFingerprint(hash, nsPrefix string, asOf time.Time) []Record {
	var out []Record
	for _, rec := range r.snapshot(nsPrefix, asOf) {
		if rec.Payload.FingerprintHash == hash {
			out = append(out, rec)
		}
	}
	sortByCellID(out)
	return out
}

// FindByExclusionCodes returns every JUDGMENT record under nsPrefix,
// valid at asOf, whose reason_codes overlap codes by at least one entry.
func (r *Registry) FindByExclusionCodes(codes []string, nsPrefix string, asOf time.Time) []Record {
	want := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		want[c] = struct{}{}
	}
	var out []Record
	for _, rec := range r.snapshot(nsPrefix, asOf) {
		for _, rc := range rec.Payload.ReasonCodes {
			if _, ok := want[rc]; ok {
				out = append(out, rec)
				break
			}
		}
	}
	sortByCellID(out)
	return out
}

// Statistics is the aggregate count view get_statistics returns.
type Statistics struct {
	Total           int
	ByOutcome       map[string]int
	ByDispositionBasis map[string]int
	AppealCount     int
	OverturnCount   int
}

// reportingObligationCount-equivalents: appeal/overturn are tracked via
// reason codes, since the payload carries no dedicated appeal/overturn
// fields — a supplemented judgment cell records an appeal or overturn as
// a later JUDGMENT cell referencing the same precedent_id with a
// reason code of "APPEALED" or "OVERTURNED" (§E typology supplement).
const (
	ReasonCodeAppealed  = "APPEALED"
	ReasonCodeOverturned = "OVERTURNED"
)

// GetStatistics aggregates counts by outcome, disposition basis, appeal,
// and overturn across every JUDGMENT record under nsPrefix valid at asOf.
func (r *Registry) GetStatistics(nsPrefix string, asOf time.Time) Statistics {
	stats := Statistics{
		ByOutcome:          make(map[string]int),
		ByDispositionBasis: make(map[string]int),
	}
	for _, rec := range r.snapshot(nsPrefix, asOf) {
		stats.Total++
		stats.ByOutcome[rec.Payload.OutcomeCode]++
		stats.ByDispositionBasis[string(rec.Payload.DispositionBasis)]++
		for _, code := range rec.Payload.ReasonCodes {
			switch code {
			case ReasonCodeAppealed:
				stats.AppealCount++
			case ReasonCodeOverturned:
				stats.OverturnCount++
			}
		}
	}
	return stats
}

// All returns every JUDGMENT record under nsPrefix valid at asOf, in
// deterministic cell_id order — the full candidate pool for callers
// (such as the scorer) that need to consider the whole precedent set
// rather than a narrowed lookup.
func (r *Registry) All(nsPrefix string, asOf time.Time) []Record {
	out := r.snapshot(nsPrefix, asOf)
	sortByCellID(out)
	return out
}

func sortByCellID(records []Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].CellID < records[j].CellID })
}
