// Package cell implements the ledger's atomic, immutable, content-addressed
// record type: the Cell. A cell's identity (CellID) is a pure function of
// its content, computed over the RFC 8785 canonical bytes of every field
// except the id itself.
package cell

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/decisiongraph/ledger/internal/canon"
	"github.com/decisiongraph/ledger/internal/ledgererr"
)

// NullHash is the well-known sentinel for a Genesis cell's PrevCellHash:
// 64 hex zeros, never a real SHA-256 digest (the all-zero preimage space
// has negligible probability of occurring naturally).
var NullHash = strings.Repeat("0", 64)

// Type enumerates the cell types a chain may contain.
type Type string

const (
	TypeGenesis   Type = "GENESIS"
	TypeFact      Type = "FACT"
	TypeRule      Type = "RULE"
	TypeDecision  Type = "DECISION"
	TypeEvidence  Type = "EVIDENCE"
	TypePolicyRef Type = "POLICY_REF"
	TypeJudgment  Type = "JUDGMENT"
)

// HashScheme selects which canonicalization path a chain's cells were
// produced under. A chain enforces a single scheme for all its cells
// (§4.3 rule 3); a reader must still be able to verify either.
type HashScheme string

const (
	HashSchemeLegacy    HashScheme = "HASH_SCHEME_LEGACY"
	HashSchemeCanonical HashScheme = "HASH_SCHEME_CANONICAL"
)

// SourceQuality grades the provenance of a Fact's object value.
type SourceQuality string

const (
	SourceQualityVerified  SourceQuality = "VERIFIED"
	SourceQualityAsserted  SourceQuality = "ASSERTED"
	SourceQualityInferred  SourceQuality = "INFERRED"
	SourceQualitySuspected SourceQuality = "SUSPECTED"
)

// Header carries the fields that locate a cell in a chain and bind it to
// its predecessor.
type Header struct {
	SchemaVersion  int        `json:"schema_version"`
	GraphID        string     `json:"graph_id"`
	CellType       Type       `json:"cell_type"`
	SystemTime     time.Time  `json:"system_time"`
	PrevCellHash   string     `json:"prev_cell_hash"`
	HashScheme     HashScheme `json:"hash_scheme"`
}

// Fact is the asserted content of a non-structural cell.
type Fact struct {
	Namespace     string        `json:"namespace"`
	Subject       string        `json:"subject"`
	Predicate     string        `json:"predicate"`
	Object        string        `json:"object"`
	Confidence    string        `json:"confidence"`
	SourceQuality SourceQuality `json:"source_quality"`
	ValidFrom     *time.Time    `json:"valid_from,omitempty"`
	ValidTo       *time.Time    `json:"valid_to,omitempty"`
}

// LogicAnchor binds a cell to the rule that produced it.
type LogicAnchor struct {
	RuleID         string `json:"rule_id"`
	RuleLogicHash  string `json:"rule_logic_hash"`
}

// Evidence references a supporting cell or an external artifact.
type Evidence struct {
	RefCellID    string `json:"ref_cell_id,omitempty"`
	ArtifactURI  string `json:"artifact_uri,omitempty"`
	ContentHash  string `json:"content_hash"`
}

// Proof carries an optional signature over the cell.
type Proof struct {
	SignerKeyID        string `json:"signer_key_id,omitempty"`
	Signature          string `json:"signature,omitempty"`
	SignatureRequired  bool   `json:"signature_required"`
}

// Cell is the ledger's atomic content-addressed record.
type Cell struct {
	Header      Header     `json:"header"`
	Fact        Fact       `json:"fact"`
	LogicAnchor LogicAnchor `json:"logic_anchor"`
	Evidence    []Evidence `json:"evidence,omitempty"`
	Proof       Proof      `json:"proof"`
	CellID      string     `json:"cell_id"`
}

// WitnessSet is a frozen bootstrap quorum definition that may be embedded
// in Genesis. It carries no promotion or quorum-signing workflow (§9 open
// question on promote/witness is deferred); it is a validated, hashable
// value only.
type WitnessSet struct {
	Threshold int      `json:"threshold"`
	MemberKeyIDs []string `json:"member_key_ids"`
	Namespace string   `json:"namespace"`
}

// Validate checks the frozen invariants of a WitnessSet: threshold must be
// reachable by the declared membership.
func (w WitnessSet) Validate() error {
	if w.Threshold < 1 {
		return ledgererr.New(ledgererr.CodeSchemaInvalid, "witness set threshold must be >= 1")
	}
	if w.Threshold > len(w.MemberKeyIDs) {
		return ledgererr.New(ledgererr.CodeSchemaInvalid, "witness set threshold exceeds member count")
	}
	if w.Namespace == "" {
		return ledgererr.New(ledgererr.CodeSchemaInvalid, "witness set namespace required")
	}
	return nil
}

func factToCanonical(f Fact) canon.Value {
	m := map[string]canon.Value{
		"namespace":      f.Namespace,
		"subject":        f.Subject,
		"predicate":      f.Predicate,
		"object":         f.Object,
		"confidence":     f.Confidence,
		"source_quality": string(f.SourceQuality),
	}
	if f.ValidFrom != nil {
		m["valid_from"] = f.ValidFrom.UTC().Format(time.RFC3339Nano)
	} else {
		m["valid_from"] = nil
	}
	if f.ValidTo != nil {
		m["valid_to"] = f.ValidTo.UTC().Format(time.RFC3339Nano)
	} else {
		m["valid_to"] = nil
	}
	return m
}

func headerToCanonical(h Header) canon.Value {
	return map[string]canon.Value{
		"schema_version": h.SchemaVersion,
		"graph_id":       h.GraphID,
		"cell_type":      string(h.CellType),
		"system_time":    h.SystemTime.UTC().Format(time.RFC3339Nano),
		"prev_cell_hash": h.PrevCellHash,
		"hash_scheme":    string(h.HashScheme),
	}
}

func logicAnchorToCanonical(a LogicAnchor) canon.Value {
	return map[string]canon.Value{
		"rule_id":         a.RuleID,
		"rule_logic_hash": a.RuleLogicHash,
	}
}

func evidenceToCanonical(ev []Evidence) canon.Value {
	out := make([]canon.Value, 0, len(ev))
	for _, e := range ev {
		m := map[string]canon.Value{
			"content_hash": e.ContentHash,
		}
		if e.RefCellID != "" {
			m["ref_cell_id"] = e.RefCellID
		}
		if e.ArtifactURI != "" {
			m["artifact_uri"] = e.ArtifactURI
		}
		out = append(out, m)
	}
	return out
}

func proofToCanonical(p Proof) canon.Value {
	m := map[string]canon.Value{
		"signature_required": p.SignatureRequired,
	}
	if p.SignerKeyID != "" {
		m["signer_key_id"] = p.SignerKeyID
	}
	if p.Signature != "" {
		m["signature"] = p.Signature
	}
	return m
}

// ToCanonicalDict renders c's canonical dict per §6: fact, header,
// logic_anchor, proof, evidence — cell_id is deliberately excluded.
func (c Cell) ToCanonicalDict() canon.Value {
	return map[string]canon.Value{
		"fact":         factToCanonical(c.Fact),
		"header":       headerToCanonical(c.Header),
		"logic_anchor": logicAnchorToCanonical(c.LogicAnchor),
		"proof":        proofToCanonical(c.Proof),
		"evidence":     evidenceToCanonical(c.Evidence),
	}
}

// ComputeCellID returns c's content-addressed id under c.Header.HashScheme.
// A chain enforces exactly one scheme across all its cells (§4.3 rule 3);
// this function lets either scheme's cells be independently recomputed,
// since an existing chain migrated to canonical encoding must still have
// its older, legacy-scheme cells re-verifiable on their own terms rather
// than against a hash law that postdates them.
func ComputeCellID(c Cell) (string, error) {
	switch c.Header.HashScheme {
	case HashSchemeLegacy:
		return computeCellIDLegacy(c), nil
	default:
		return canon.Hash(c.ToCanonicalDict())
	}
}

// computeCellIDLegacy reproduces the pre-JCS pipe-concatenated digest: a
// fixed field order, joined with "|", SHA-256 hex. Unlike the canonical
// path it has no object/array structure to sort, so field order is the
// whole of its determinism — it must never change.
func computeCellIDLegacy(c Cell) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(c.Header.SchemaVersion))
	b.WriteByte('|')
	b.WriteString(c.Header.GraphID)
	b.WriteByte('|')
	b.WriteString(string(c.Header.CellType))
	b.WriteByte('|')
	b.WriteString(c.Header.SystemTime.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(c.Header.PrevCellHash)
	b.WriteByte('|')
	b.WriteString(c.Fact.Namespace)
	b.WriteByte('|')
	b.WriteString(c.Fact.Subject)
	b.WriteByte('|')
	b.WriteString(c.Fact.Predicate)
	b.WriteByte('|')
	b.WriteString(c.Fact.Object)
	b.WriteByte('|')
	b.WriteString(c.Fact.Confidence)
	b.WriteByte('|')
	b.WriteString(string(c.Fact.SourceQuality))
	b.WriteByte('|')
	b.WriteString(c.LogicAnchor.RuleID)
	b.WriteByte('|')
	b.WriteString(c.LogicAnchor.RuleLogicHash)
	b.WriteByte('|')
	for _, e := range c.Evidence {
		b.WriteString(e.RefCellID)
		b.WriteByte(':')
		b.WriteString(e.ArtifactURI)
		b.WriteByte(':')
		b.WriteString(e.ContentHash)
		b.WriteByte(';')
	}
	b.WriteByte('|')
	b.WriteString(c.Proof.SignerKeyID)
	b.WriteByte('|')
	b.WriteString(c.Proof.Signature)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity reports whether ComputeCellID(c) == c.CellID under
// whichever scheme c declares.
func VerifyIntegrity(c Cell) (bool, error) {
	id, err := ComputeCellID(c)
	if err != nil {
		return false, err
	}
	return id == c.CellID, nil
}

// GenesisParams are the inputs to constructing a Genesis cell.
type GenesisParams struct {
	GraphID       string
	HashScheme    HashScheme
	RootNamespace string
	Creator       string
	SystemTime    time.Time
	Witnesses     *WitnessSet
}

// NewGenesis constructs the unique first cell of a chain. Its
// PrevCellHash is always NullHash; its Fact records the root namespace
// and creator as the chain's bootstrap assertion.
func NewGenesis(p GenesisParams) (Cell, error) {
	if p.GraphID == "" {
		return Cell{}, ledgererr.New(ledgererr.CodeGenesisViolation, "genesis requires a graph_id")
	}
	if p.RootNamespace == "" {
		return Cell{}, ledgererr.New(ledgererr.CodeGenesisViolation, "genesis requires a root_namespace")
	}
	if p.Witnesses != nil {
		if err := p.Witnesses.Validate(); err != nil {
			return Cell{}, err
		}
	}
	c := Cell{
		Header: Header{
			SchemaVersion: 1,
			GraphID:       p.GraphID,
			CellType:      TypeGenesis,
			SystemTime:    p.SystemTime,
			PrevCellHash:  NullHash,
			HashScheme:    p.HashScheme,
		},
		Fact: Fact{
			Namespace:     p.RootNamespace,
			Subject:       "graph:" + p.GraphID,
			Predicate:     "created_by",
			Object:        p.Creator,
			Confidence:    "1.0000",
			SourceQuality: SourceQualityVerified,
		},
		LogicAnchor: LogicAnchor{
			RuleID:        "genesis",
			RuleLogicHash: NullHash,
		},
		Proof: Proof{SignatureRequired: false},
	}
	id, err := ComputeCellID(c)
	if err != nil {
		return Cell{}, err
	}
	c.CellID = id
	return c, nil
}

// IsGenesis reports whether c is structurally a Genesis cell.
func IsGenesis(c Cell) bool {
	return c.Header.CellType == TypeGenesis && c.Header.PrevCellHash == NullHash
}
