package ledger

import "time"

// Cell is the public, curated view of a chain cell for callers embedding
// this module as a library. It mirrors internal/cell.Cell's shape without
// exposing the internal package, so extension code (a custom Scorer, a
// custom Anchor strategy) never needs to import internal/*.
type Cell struct {
	CellID       string
	GraphID      string
	CellType     string
	SystemTime   time.Time
	PrevCellHash string
	Namespace    string
	Subject      string
	Predicate    string
	Object       string
	RuleID       string
	SignerKeyID  string
}

// JudgmentSummary is the public view of a judgment cell's payload, the
// shape returned from precedent queries and simulation results.
type JudgmentSummary struct {
	CellID           string
	Namespace        string
	SystemTime       time.Time
	OutcomeCode      string
	DispositionBasis string
	ReasonCodes      []string
	FingerprintHash  string
}

// PrecedentStatistics aggregates prior judgments over a namespace prefix.
type PrecedentStatistics struct {
	Total              int
	ByOutcome          map[string]int
	ByDispositionBasis map[string]int
	AppealCount        int
	OverturnCount      int
}

// SimulationInput describes a hypothetical case to run against a forked,
// disposable overlay of the base chain (§E SHD-01..04: nothing here ever
// touches the base chain's Append path).
type SimulationInput struct {
	Domain          string
	NamespacePrefix string
	ShadowCells     []Cell
	CaseFacts       map[string]any
	CaseDisposition string
	CaseBasis       string
	AsOf            time.Time
	Workers         int
}

// SimulationOutcome is the public result of a simulated recommendation-
// for-action: the proof packet backing the recommendation and a delta
// report of how the shadow facts moved confidence relative to base
// reality.
type SimulationOutcome struct {
	PrimaryTypology    string
	Confidence         float64
	MatchedPrecedents  int
	DecisiveSupporting int
	DecisiveTotal      int
	AddedFacts         []string
	RemovedFacts       []string
	ConfidenceBefore   string
	ConfidenceAfter    string
	VerdictChanged     bool
	AnchorsIncomplete  bool
}

// AnchorSearchInput describes a counterfactual anchor search (§4.10
// CTF-01..04): given a set of shadow component ids and the verdict they
// currently produce, find the minimal subsets whose removal restores
// baseVerdict. Verdict is called once per candidate subset; it must be a
// pure function of its argument.
type AnchorSearchInput struct {
	Components        []string
	BaseVerdict       string
	Verdict           AnchorVerdict
	MaxAnchorAttempts int
	MaxRuntimeMS      int64
	MaxCellsTouched   int
}

// AnchorSearchResult is a counterfactual anchor search's output.
type AnchorSearchResult struct {
	Anchors           [][]string
	AnchorHashes      []string
	AttemptsUsed      int
	CellsTouched      int
	ElapsedMS         int64
	AnchorsIncomplete bool
}

// ChainStatus reports the current state of a loaded chain.
type ChainStatus struct {
	GraphID    string
	HashScheme string
	Length     int
	HeadCellID string
}

// EvidenceRef is the public form of a cell's supporting-reference list.
type EvidenceRef struct {
	RefCellID   string
	ArtifactURI string
	ContentHash string
}

// AppendFact describes a new fact, rule, decision, evidence, policy_ref,
// or judgment cell to commit to the chain. The caller supplies the
// content; Ledger.Append fills in the header fields (prev_cell_hash,
// system_time default, cell_id) and, when Sign is set, the proof
// signature from New's signer.
type AppendFact struct {
	CellType      string
	Namespace     string
	Subject       string
	Predicate     string
	Object        string
	Confidence    string
	SourceQuality string
	RuleID        string
	RuleLogicHash string
	Evidence      []EvidenceRef
	SystemTime    time.Time // zero means now, in UTC
	ValidFrom     *time.Time
	ValidTo       *time.Time
	Sign          bool
}
