// Package shadow implements the forked, in-memory overlay a simulation
// runs against: OverlayContext (deterministic shadow-cell indexing) and
// ShadowChain (a fork bound to a base chain's graph_id and head that the
// base chain can never observe). Nothing a simulation produces is ever
// written back to the base chain or its WAL (§4.10 SHD-04).
package shadow

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/decisiongraph/ledger/internal/cell"
	"github.com/decisiongraph/ledger/internal/chain"
	"github.com/decisiongraph/ledger/internal/confidence"
	"github.com/decisiongraph/ledger/internal/domainmodel"
	"github.com/decisiongraph/ledger/internal/judgment"
	"github.com/decisiongraph/ledger/internal/ledgererr"
	"github.com/decisiongraph/ledger/internal/precedent"
	"github.com/decisiongraph/ledger/internal/scorer"
)

// BridgePredicate marks a shadow FACT cell as a bridge: a link between
// two precedents (or a precedent and a policy head) rather than an
// ordinary assertion. Bridges are still plain FACT cells on the wire;
// the predicate is what routes them into OverlayContext's bridge index.
const BridgePredicate = "bridges_to"

// FactKey is the deterministic lookup key overlay facts and base facts
// share: (namespace, subject, predicate).
type FactKey struct {
	Namespace string
	Subject   string
	Predicate string
}

func factKey(c cell.Cell) FactKey {
	return FactKey{Namespace: c.Fact.Namespace, Subject: c.Fact.Subject, Predicate: c.Fact.Predicate}
}

// OverlayContext is an in-memory index of shadow cells keyed by
// (namespace, subject, predicate), plus shadow rule/bridge/policy-head
// tables keyed by id. Lookups are deterministic; the base chain is never
// mutated through it.
type OverlayContext struct {
	facts       map[FactKey][]cell.Cell
	rules       map[string]cell.Cell
	bridges     map[string]cell.Cell
	policyHeads map[string]cell.Cell
}

// NewOverlayContext returns an empty overlay.
func NewOverlayContext() *OverlayContext {
	return &OverlayContext{
		facts:       make(map[FactKey][]cell.Cell),
		rules:       make(map[string]cell.Cell),
		bridges:     make(map[string]cell.Cell),
		policyHeads: make(map[string]cell.Cell),
	}
}

// FromShadowCells builds an OverlayContext by indexing every cell in
// cells according to its type and predicate.
func FromShadowCells(cells []cell.Cell) *OverlayContext {
	o := NewOverlayContext()
	for _, c := range cells {
		o.Add(c)
	}
	return o
}

// Add indexes one shadow cell. RULE cells index by rule_id, POLICY_REF
// cells index by fact subject, FACT cells with BridgePredicate also index
// into the bridge table; every cell is additionally indexed by its
// (namespace, subject, predicate) fact key, with list accumulation when
// multiple shadow cells share a key.
func (o *OverlayContext) Add(c cell.Cell) {
	switch c.Header.CellType {
	case cell.TypeRule:
		o.rules[c.LogicAnchor.RuleID] = c
	case cell.TypePolicyRef:
		o.policyHeads[c.Fact.Subject] = c
	}
	if c.Header.CellType == cell.TypeFact && c.Fact.Predicate == BridgePredicate {
		o.bridges[c.Fact.Subject] = c
	}
	k := factKey(c)
	o.facts[k] = append(o.facts[k], c)
}

// GetFacts returns the shadow facts at key, or nil when the overlay has
// none — callers fall through to the base chain on a nil result.
func (o *OverlayContext) GetFacts(key FactKey) []cell.Cell { return o.facts[key] }

// GetRule returns the shadow RULE cell overriding ruleID, if any.
func (o *OverlayContext) GetRule(ruleID string) (cell.Cell, bool) {
	c, ok := o.rules[ruleID]
	return c, ok
}

// GetBridge returns the shadow bridge keyed by subject, if any.
func (o *OverlayContext) GetBridge(subject string) (cell.Cell, bool) {
	c, ok := o.bridges[subject]
	return c, ok
}

// GetPolicyHead returns the shadow POLICY_REF cell keyed by subject, if any.
func (o *OverlayContext) GetPolicyHead(subject string) (cell.Cell, bool) {
	c, ok := o.policyHeads[subject]
	return c, ok
}

// Len reports how many shadow cells the overlay holds in total.
func (o *OverlayContext) Len() int {
	n := 0
	for _, cells := range o.facts {
		n += len(cells)
	}
	return n
}

// ShadowChain is a fork bound to a base chain's graph_id and head
// cell_id at fork time. It keeps its own in-memory cell list and
// OverlayContext; the base chain's Append is never called on its
// behalf, so a simulation can never contaminate base state (§4.10).
type ShadowChain struct {
	base       *chain.Chain
	baseHeadID string
	graphID    string
	overlay    *OverlayContext
	cells      []cell.Cell
	logger     *slog.Logger
}

// Fork returns an overlay bound to base's current graph_id and head
// cell_id. base must already contain at least a Genesis cell.
func Fork(base *chain.Chain, logger *slog.Logger) (*ShadowChain, error) {
	head, ok := base.Head()
	if !ok {
		return nil, ledgererr.New(ledgererr.CodeGenesisViolation, "cannot fork a shadow chain from an empty base chain")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShadowChain{
		base:       base,
		baseHeadID: head.CellID,
		graphID:    base.GraphID(),
		overlay:    NewOverlayContext(),
		logger:     logger,
	}, nil
}

// Overlay returns the shadow chain's OverlayContext.
func (s *ShadowChain) Overlay() *OverlayContext { return s.overlay }

// BaseHeadID returns the base chain's head cell_id at fork time — the
// point this shadow chain's facts are layered on top of.
func (s *ShadowChain) BaseHeadID() string { return s.baseHeadID }

// AppendShadow validates and appends a cell to this shadow chain's own
// in-memory list and overlay index. It never touches the base chain: a
// ShadowChain holds no reference capable of appending to base, so there
// is no code path by which a shadow cell can reach the base WAL.
func (s *ShadowChain) AppendShadow(c cell.Cell) error {
	if c.Header.GraphID != s.graphID {
		return ledgererr.New(ledgererr.CodeGraphIdMismatch, "shadow cell graph_id does not match the forked base graph_id").
			WithDetails(map[string]any{"cell_graph_id": c.Header.GraphID, "shadow_graph_id": s.graphID})
	}
	expectedPrev := s.baseHeadID
	if len(s.cells) > 0 {
		expectedPrev = s.cells[len(s.cells)-1].CellID
	}
	if c.Header.PrevCellHash != expectedPrev {
		return ledgererr.New(ledgererr.CodeChainBreak, "shadow cell does not continue the shadow chain").
			WithDetails(map[string]any{"expected": expectedPrev, "got": c.Header.PrevCellHash})
	}
	ok, err := cell.VerifyIntegrity(c)
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeIntegrityFail, "failed to verify shadow cell integrity", err)
	}
	if !ok {
		return ledgererr.New(ledgererr.CodeIntegrityFail, "shadow cell_id does not match recomputed hash")
	}
	s.cells = append(s.cells, c)
	s.overlay.Add(c)
	return nil
}

// Cells returns the shadow chain's own cells, in append order.
func (s *ShadowChain) Cells() []cell.Cell {
	out := make([]cell.Cell, len(s.cells))
	copy(out, s.cells)
	return out
}

// shadowJudgments returns this shadow chain's own JUDGMENT cells whose
// namespace matches nsPrefix and whose system_time is at or before
// asOf, decoded into precedent.Record, mirroring precedent.Registry's
// bitemporal filter so overlay and base candidates are built identically.
func (s *ShadowChain) shadowJudgments(nsPrefix string, asOf time.Time) []precedent.Record {
	var out []precedent.Record
	for _, c := range s.cells {
		if c.Header.CellType != cell.TypeJudgment {
			continue
		}
		if c.Header.SystemTime.After(asOf) {
			continue
		}
		if nsPrefix != "" && !strings.HasPrefix(c.Fact.Namespace, nsPrefix) {
			continue
		}
		var p judgment.Payload
		if err := json.Unmarshal([]byte(c.Fact.Object), &p); err != nil {
			s.logger.Warn("shadow: skipping cell with undecodable judgment payload", "cell_id", c.CellID, "error", err)
			continue
		}
		out = append(out, precedent.Record{CellID: c.CellID, Namespace: c.Fact.Namespace, SystemTime: c.Header.SystemTime, Payload: p})
	}
	return out
}

// RFAInput is the case-level input a simulation re-executes the
// precedent engine against.
type RFAInput struct {
	CaseFacts       map[string]any
	CaseDisposition string
	CaseBasis       string
	Domain          domainmodel.DomainRegistry
	NamespacePrefix string
	AsOfSystemTime  time.Time
	Workers         int
}

// ProofPacket is the simulation's precedent-engine output, tagged so it
// can never be mistaken for a base decision.
type ProofPacket struct {
	Origin             string
	CaseIDHash         string
	PrimaryTypology    string
	MatchedPrecedents  []scorer.ScoredCandidate
	Confidence         confidence.Result
	DecisiveSupporting int
	DecisiveTotal      int
}

// DeltaReport captures what the overlay changed relative to base-only
// precedent: facts that entered or left the candidate pool, and the
// before/after confidence levels.
type DeltaReport struct {
	AddedFacts        []string
	RemovedFacts      []string
	ConfidenceBefore  domainmodel.ConfidenceLevel
	ConfidenceAfter   domainmodel.ConfidenceLevel
	VerdictChanged    bool
}

// SimulationResult is simulate_rfa's output.
type SimulationResult struct {
	Proof             ProofPacket
	Delta             DeltaReport
	AnchorsIncomplete bool
}

// SimulateRFA pins base reality at input.AsOfSystemTime, applies this
// shadow chain's overlay on top of reg's base candidate pool, and
// re-executes the Layer 2/3 precedent pipeline on both the base-only and
// overlaid pools. It takes a pre/post snapshot of the base chain and
// logs (never panics or mutates) if they ever diverge — SHD-04 is
// additionally exercised directly in tests via chain.Snapshot.Equal.
func (s *ShadowChain) SimulateRFA(ctx context.Context, reg *precedent.Registry, input RFAInput) (SimulationResult, error) {
	before := s.base.TakeSnapshot()

	baseRecords := reg.All(input.NamespacePrefix, input.AsOfSystemTime)
	shadowRecords := s.shadowJudgments(input.NamespacePrefix, input.AsOfSystemTime)
	merged := mergeRecords(baseRecords, shadowRecords)

	typology := scorer.DetectPrimaryTypology(nil, input.CaseFacts)
	floor := input.Domain.SimilarityFloorForTypology(typology)

	beforeResult, err := runPipeline(ctx, input, baseRecords, floor)
	if err != nil {
		return SimulationResult{}, err
	}
	afterResult, err := runPipeline(ctx, input, merged, floor)
	if err != nil {
		return SimulationResult{}, err
	}

	caseIDHash, err := judgment.CaseIDHash(input.CaseFacts, input.Domain.Version)
	if err != nil {
		return SimulationResult{}, ledgererr.Wrap(ledgererr.CodeJudgmentValidation, "failed to compute case_id_hash for simulation", err)
	}

	added, removed := diffRecordIDs(baseRecords, merged)

	result := SimulationResult{
		Proof: ProofPacket{
			Origin:             "SHADOW",
			CaseIDHash:         caseIDHash,
			PrimaryTypology:    typology,
			MatchedPrecedents:  afterResult.scored,
			Confidence:         afterResult.confidence,
			DecisiveSupporting: afterResult.decisiveSupporting,
			DecisiveTotal:      afterResult.decisiveTotal,
		},
		Delta: DeltaReport{
			AddedFacts:       added,
			RemovedFacts:     removed,
			ConfidenceBefore: beforeResult.confidence.Level,
			ConfidenceAfter:  afterResult.confidence.Level,
			VerdictChanged:   beforeResult.confidence.Level != afterResult.confidence.Level,
		},
	}

	after := s.base.TakeSnapshot()
	if !before.Equal(after) {
		s.logger.Error("shadow simulation contaminated the base chain", "graph_id", s.graphID,
			"before_head", before.HeadCellID, "after_head", after.HeadCellID)
	}

	return result, nil
}

type pipelineResult struct {
	scored             []scorer.ScoredCandidate
	confidence         confidence.Result
	decisiveSupporting int
	decisiveTotal      int
}

func runPipeline(ctx context.Context, input RFAInput, records []precedent.Record, floor float64) (pipelineResult, error) {
	candidates := make([]scorer.Candidate, len(records))
	for i, rec := range records {
		candidates[i] = toCandidate(rec)
	}

	scored, err := scorer.ScoreBatch(ctx, input.Domain, input.CaseFacts, candidates, input.Workers)
	if err != nil {
		return pipelineResult{}, err
	}

	var passing []scorer.ScoredCandidate
	var sumScore float64
	for _, sc := range scored {
		if sc.Result.Score < floor {
			continue
		}
		passing = append(passing, sc)
		sumScore += sc.Result.Score
	}

	avgSimilarity := 0.0
	if len(passing) > 0 {
		avgSimilarity = sumScore / float64(len(passing))
	}

	recordsByID := make(map[string]precedent.Record, len(records))
	for _, r := range records {
		recordsByID[r.CellID] = r
	}

	decisiveSupporting, decisiveTotal := 0, 0
	for _, sc := range passing {
		rec := recordsByID[sc.Candidate.CellID]
		class := scorer.ClassifyMatchV3(input.CaseDisposition, rec.Payload.OutcomeCode, input.CaseBasis, string(rec.Payload.DispositionBasis), sc.Result.NonTransferable)
		switch class {
		case scorer.MatchSupporting:
			decisiveSupporting++
			decisiveTotal++
		case scorer.MatchContrary:
			decisiveTotal++
		}
	}

	conf := confidence.Compute(input.Domain, len(passing), avgSimilarity, decisiveSupporting, decisiveTotal, input.CaseFacts)

	return pipelineResult{scored: passing, confidence: conf, decisiveSupporting: decisiveSupporting, decisiveTotal: decisiveTotal}, nil
}

func toCandidate(rec precedent.Record) scorer.Candidate {
	facts := judgment.ToDict(rec.Payload.AnchorFacts)
	drivers := make([]string, 0, len(rec.Payload.AnchorFacts))
	for _, af := range rec.Payload.AnchorFacts {
		if af.FieldID != "" {
			drivers = append(drivers, af.FieldID)
		}
	}
	return scorer.Candidate{CellID: rec.CellID, Facts: facts, Drivers: drivers}
}

// mergeRecords layers shadow records on top of base records, keyed by
// cell_id — overlay precedence means a shadow record with the same
// cell_id as a base record replaces it.
func mergeRecords(base, shadowRecs []precedent.Record) []precedent.Record {
	byID := make(map[string]precedent.Record, len(base)+len(shadowRecs))
	order := make([]string, 0, len(base)+len(shadowRecs))
	for _, r := range base {
		if _, ok := byID[r.CellID]; !ok {
			order = append(order, r.CellID)
		}
		byID[r.CellID] = r
	}
	for _, r := range shadowRecs {
		if _, ok := byID[r.CellID]; !ok {
			order = append(order, r.CellID)
		}
		byID[r.CellID] = r
	}
	out := make([]precedent.Record, len(order))
	for i, id := range order {
		out[i] = byID[id]
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CellID < out[j].CellID })
	return out
}

func diffRecordIDs(base, merged []precedent.Record) (added, removed []string) {
	baseIDs := make(map[string]struct{}, len(base))
	for _, r := range base {
		baseIDs[r.CellID] = struct{}{}
	}
	mergedIDs := make(map[string]struct{}, len(merged))
	for _, r := range merged {
		mergedIDs[r.CellID] = struct{}{}
		if _, ok := baseIDs[r.CellID]; !ok {
			added = append(added, r.CellID)
		}
	}
	for _, r := range base {
		if _, ok := mergedIDs[r.CellID]; !ok {
			removed = append(removed, r.CellID)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

