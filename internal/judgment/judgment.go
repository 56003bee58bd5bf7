// Package judgment defines JudgmentPayload, the canonical payload carried
// inside JUDGMENT cells, and the helpers that derive its content-addressed
// identifiers (case_id_hash, fingerprint_hash) from a case's facts.
package judgment

import (
	"sort"
	"strconv"

	"github.com/decisiongraph/ledger/internal/canon"
)

// DispositionBasis classifies why a decision was required.
type DispositionBasis string

const (
	BasisMandatory     DispositionBasis = "MANDATORY"
	BasisDiscretionary DispositionBasis = "DISCRETIONARY"
	BasisUnknown       DispositionBasis = "UNKNOWN"
)

// AnchorFact is one field/value pair a judgment was anchored on — the
// Go analogue of the original anchor_facts_to_dict list elements.
type AnchorFact struct {
	FieldID string `json:"field_id"`
	Value   any    `json:"value"`
}

// ToDict flattens a slice of AnchorFact into the field->value map the
// gates/comparator/scorer packages expect.
func ToDict(facts []AnchorFact) map[string]any {
	out := make(map[string]any, len(facts))
	for _, af := range facts {
		if af.FieldID == "" {
			continue
		}
		out[af.FieldID] = af.Value
	}
	return out
}

// FromDict builds an AnchorFact slice from a field->value map, in
// deterministic field-name order (§5).
func FromDict(facts map[string]any) []AnchorFact {
	names := make([]string, 0, len(facts))
	for k := range facts {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]AnchorFact, 0, len(names))
	for _, n := range names {
		out = append(out, AnchorFact{FieldID: n, Value: facts[n]})
	}
	return out
}

// PolicyRegime describes which version of a domain's policy pack
// governed a judgment, and whether it fell after a known rule shift.
type PolicyRegime struct {
	Version        string   `json:"version"`
	ShiftsApplied  []string `json:"shifts_applied,omitempty"`
	IsPostShift    bool     `json:"is_post_shift"`
}

// Payload is the canonical content of a JUDGMENT cell's Fact.Object.
type Payload struct {
	PrecedentID          string           `json:"precedent_id,omitempty"`
	ScenarioCode         string           `json:"scenario_code"`
	OutcomeCode          string           `json:"outcome_code"`
	AnchorFacts          []AnchorFact     `json:"anchor_facts"`
	ReasonCodes          []string         `json:"reason_codes,omitempty"`
	CaseIDHash           string           `json:"case_id_hash"`
	JurisdictionCode     string           `json:"jurisdiction_code,omitempty"`
	FingerprintHash      string           `json:"fingerprint_hash"`
	FingerprintSchemaID  string           `json:"fingerprint_schema_id"`
	PolicyPackHash       string           `json:"policy_pack_hash"`
	PolicyPackID         string           `json:"policy_pack_id"`
	PolicyPackVersion    string           `json:"policy_pack_version"`
	DecisionLevel        string           `json:"decision_level"`
	DecidedAt            string           `json:"decided_at"` // RFC 3339
	DispositionBasis     DispositionBasis `json:"disposition_basis"`
	ReportingObligation  bool             `json:"reporting_obligation"`
	PolicyRegime         PolicyRegime     `json:"policy_regime"`
	Domain               string           `json:"domain"`
}

// ToCanonical returns the canon.Value map for this payload, suitable for
// embedding as Fact.Object and for hashing.
func (p Payload) ToCanonical() canon.Value {
	anchors := make([]canon.Value, len(p.AnchorFacts))
	for i, af := range p.AnchorFacts {
		anchors[i] = map[string]canon.Value{
			"field_id": af.FieldID,
			"value":    af.Value,
		}
	}
	reasonCodes := make([]canon.Value, len(p.ReasonCodes))
	for i, rc := range p.ReasonCodes {
		reasonCodes[i] = rc
	}
	shifts := make([]canon.Value, len(p.PolicyRegime.ShiftsApplied))
	for i, s := range p.PolicyRegime.ShiftsApplied {
		shifts[i] = s
	}

	return map[string]canon.Value{
		"precedent_id":          p.PrecedentID,
		"scenario_code":         p.ScenarioCode,
		"outcome_code":          p.OutcomeCode,
		"anchor_facts":          anchors,
		"reason_codes":          reasonCodes,
		"case_id_hash":          p.CaseIDHash,
		"jurisdiction_code":     p.JurisdictionCode,
		"fingerprint_hash":      p.FingerprintHash,
		"fingerprint_schema_id": p.FingerprintSchemaID,
		"policy_pack_hash":      p.PolicyPackHash,
		"policy_pack_id":        p.PolicyPackID,
		"policy_pack_version":   p.PolicyPackVersion,
		"decision_level":        p.DecisionLevel,
		"decided_at":            p.DecidedAt,
		"disposition_basis":     string(p.DispositionBasis),
		"reporting_obligation":  p.ReportingObligation,
		"policy_regime": map[string]canon.Value{
			"version":         p.PolicyRegime.Version,
			"shifts_applied":  shifts,
			"is_post_shift":   p.PolicyRegime.IsPostShift,
		},
		"domain": p.Domain,
	}
}

// CaseIDHash computes the content-addressed case identifier: the
// canonical hash of the case's fact set plus its schema id, so that two
// identical fact sets (under the same schema) always yield the same
// case_id_hash without a separate case registry. Fingerprint lookups
// match on FingerprintHash, not on this value.
func CaseIDHash(caseFacts map[string]any, schemaID string) (string, error) {
	return canon.Hash(map[string]canon.Value{
		"schema_id": schemaID,
		"facts":     toCanonValueMap(caseFacts),
	})
}

// FingerprintHash computes the content-addressed fingerprint used for
// Tier-0 exact precedent lookups: the canonical hash of only the fields
// the domain's comparability gates read, under a given schema id.
func FingerprintHash(caseFacts map[string]any, gateFields []string, schemaID string) (string, error) {
	sortedFields := append([]string(nil), gateFields...)
	sort.Strings(sortedFields)

	fingerprint := make(map[string]canon.Value, len(sortedFields))
	for _, f := range sortedFields {
		if v, ok := caseFacts[f]; ok {
			fingerprint[f] = toCanonValue(v)
		}
	}
	return canon.Hash(map[string]canon.Value{
		"schema_id":   schemaID,
		"fingerprint": fingerprint,
	})
}

// toCanonValue recursively converts an arbitrary case-fact value into a
// canon.Value. Case facts routinely carry float64 (monetary amounts,
// rates); canon rejects floats outright (FloatError) since naive float
// encoding is not reproducible across languages, so any float is first
// rendered through its shortest round-tripping decimal string — the same
// principle ConfidenceToString/ScoreToString apply to scoring output.
func toCanonValue(v any) canon.Value {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case map[string]any:
		return toCanonValueMap(x)
	case []any:
		out := make([]canon.Value, len(x))
		for i, item := range x {
			out[i] = toCanonValue(item)
		}
		return out
	default:
		return x
	}
}

func toCanonValueMap(facts map[string]any) map[string]canon.Value {
	out := make(map[string]canon.Value, len(facts))
	for k, v := range facts {
		out[k] = toCanonValue(v)
	}
	return out
}
