// Package domainmodel defines the precedent engine's domain-agnostic
// configuration surface: FieldDefinition, ComparabilityGate, and
// DomainRegistry. The engine in internal/gates, internal/comparator,
// internal/scorer, and internal/confidence reads a DomainRegistry and
// adapts; nothing in this package or those is banking- or insurance-
// specific. Concrete domains are registered in Registered.
package domainmodel

import (
	"fmt"
	"strings"

	"github.com/decisiongraph/ledger/internal/ledgererr"
)

// FieldType is the data type of a registry field.
type FieldType string

const (
	FieldTypeBoolean     FieldType = "BOOLEAN"
	FieldTypeCategorical FieldType = "CATEGORICAL"
	FieldTypeNumeric     FieldType = "NUMERIC"
	FieldTypeOrdinal     FieldType = "ORDINAL"
	FieldTypeSet         FieldType = "SET"
)

// ComparisonFn is the similarity function used for a field.
type ComparisonFn string

const (
	ComparisonExact             ComparisonFn = "EXACT"
	ComparisonEquivalenceClass  ComparisonFn = "EQUIVALENCE_CLASS"
	ComparisonDistanceDecay     ComparisonFn = "DISTANCE_DECAY"
	ComparisonStep              ComparisonFn = "STEP"
	ComparisonJaccard           ComparisonFn = "JACCARD"
)

// FieldTier determines a field's role in the three-layer model.
type FieldTier string

const (
	TierStructural FieldTier = "STRUCTURAL" // Layer 1 comparability gate filter
	TierBehavioral FieldTier = "BEHAVIORAL" // Layer 2 scoring, 2x when driver
	TierContextual FieldTier = "CONTEXTUAL" // Layer 2 scoring, 1x stabilizer
)

// ConfidenceLevel is an ordered governed-confidence level.
type ConfidenceLevel string

const (
	ConfidenceNone      ConfidenceLevel = "NONE"
	ConfidenceLow       ConfidenceLevel = "LOW"
	ConfidenceModerate  ConfidenceLevel = "MODERATE"
	ConfidenceHigh      ConfidenceLevel = "HIGH"
	ConfidenceVeryHigh  ConfidenceLevel = "VERY_HIGH"
)

var levelOrder = map[ConfidenceLevel]int{
	ConfidenceNone:     0,
	ConfidenceLow:      1,
	ConfidenceModerate: 2,
	ConfidenceHigh:     3,
	ConfidenceVeryHigh: 4,
}

// LevelToNumeric is the fixed numeric mapping (INV-010): the only values
// a v3 output may ever emit as a numeric confidence.
var LevelToNumeric = map[ConfidenceLevel]float64{
	ConfidenceNone:     0.0,
	ConfidenceLow:      0.25,
	ConfidenceModerate: 0.50,
	ConfidenceHigh:     0.75,
	ConfidenceVeryHigh: 0.95,
}

// Less reports whether a is strictly weaker than b.
func (a ConfidenceLevel) Less(b ConfidenceLevel) bool { return levelOrder[a] < levelOrder[b] }

// Min returns the weaker of a and b.
func Min(a, b ConfidenceLevel) ConfidenceLevel {
	if a.Less(b) {
		return a
	}
	return b
}

// MinLevel returns the weakest level among levels. Panics if levels is
// empty — callers always pass the four fixed dimensions.
func MinLevel(levels ...ConfidenceLevel) ConfidenceLevel {
	m := levels[0]
	for _, l := range levels[1:] {
		m = Min(m, l)
	}
	return m
}

// FieldDefinition is per-field comparison metadata read by Layer 2.
type FieldDefinition struct {
	Name               string
	Label              string
	Type               FieldType
	Comparison         ComparisonFn
	Weight             float64
	Tier               FieldTier
	Required           bool
	Critical           bool
	EquivalenceClasses map[string][]string
	OrderedValues      []string
	MaxDistance        int
}

// Validate enforces the same constructor contract as the original
// dataclass's __post_init__: weight bounds and comparison-specific data
// requirements.
func (f FieldDefinition) Validate() error {
	if f.Weight < 0.0 || f.Weight > 1.0 {
		return ledgererr.New(ledgererr.CodeSchemaInvalid, "field weight must be 0.0-1.0").
			WithDetails(map[string]any{"field": f.Name, "weight": f.Weight})
	}
	if f.Comparison == ComparisonEquivalenceClass && len(f.EquivalenceClasses) == 0 {
		return ledgererr.New(ledgererr.CodeSchemaInvalid, "EQUIVALENCE_CLASS comparison requires equivalence_classes").
			WithDetails(map[string]any{"field": f.Name})
	}
	if f.Comparison == ComparisonStep && len(f.OrderedValues) == 0 {
		return ledgererr.New(ledgererr.CodeSchemaInvalid, "STEP comparison requires ordered_values").
			WithDetails(map[string]any{"field": f.Name})
	}
	return nil
}

// ComparabilityGate is a named virtual field partitioning its value space
// into equivalence classes for Layer 1 filtering.
type ComparabilityGate struct {
	Field              string
	EquivalenceClasses map[string][]string
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Classify returns the equivalence class name containing value, or ""
// with ok=false if value is nil or unclassifiable.
func (g ComparabilityGate) Classify(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	v := normalize(toStr(value))
	for className, members := range g.EquivalenceClasses {
		for _, m := range members {
			if normalize(toStr(m)) == v {
				return className, true
			}
		}
	}
	return "", false
}

// BroadestClass returns the class with the most members, used as the
// missing-field fallback.
func (g ComparabilityGate) BroadestClass() string {
	best := ""
	bestSize := -1
	// Deterministic tie-break: first by largest size, then lexicographically
	// smallest class name, since map iteration order is not stable.
	names := make([]string, 0, len(g.EquivalenceClasses))
	for name := range g.EquivalenceClasses {
		names = append(names, name)
	}
	sortStrings(names)
	for _, name := range names {
		size := len(g.EquivalenceClasses[name])
		if size > bestSize {
			bestSize = size
			best = name
		}
	}
	return best
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func toStr(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(v)
	}
}

// DomainRegistry is the complete domain configuration read by the
// precedent engine. The engine is domain-agnostic; it reads this value
// and adapts — no domain name ever appears in gates/comparator/scorer/
// confidence logic.
type DomainRegistry struct {
	Domain                   string
	Version                  string
	Fields                   map[string]FieldDefinition
	ComparabilityGates       []ComparabilityGate
	SimilarityFloor          float64
	SimilarityFloorOverrides map[string]float64
	PoolMinimum              int
	CriticalFields           map[string]struct{}
	DispositionMapping       map[string]string
	ReportingMapping         map[string]string
	BasisMapping             map[string]string
}

// GateFields returns the field names used as comparability gates.
func (d DomainRegistry) GateFields() []string {
	out := make([]string, len(d.ComparabilityGates))
	for i, g := range d.ComparabilityGates {
		out[i] = g.Field
	}
	return out
}

func (d DomainRegistry) fieldsByTier(tier FieldTier) []FieldDefinition {
	names := make([]string, 0, len(d.Fields))
	for name := range d.Fields {
		names = append(names, name)
	}
	sortStrings(names)
	var out []FieldDefinition
	for _, name := range names {
		fd := d.Fields[name]
		if fd.Tier == tier {
			out = append(out, fd)
		}
	}
	return out
}

// StructuralFields returns STRUCTURAL-tier fields (Layer 1), in a
// deterministic (name-sorted) order.
func (d DomainRegistry) StructuralFields() []FieldDefinition { return d.fieldsByTier(TierStructural) }

// BehavioralFields returns BEHAVIORAL-tier fields, name-sorted.
func (d DomainRegistry) BehavioralFields() []FieldDefinition { return d.fieldsByTier(TierBehavioral) }

// ContextualFields returns CONTEXTUAL-tier fields, name-sorted.
func (d DomainRegistry) ContextualFields() []FieldDefinition { return d.fieldsByTier(TierContextual) }

// ScoringFields returns all Layer 2 fields (BEHAVIORAL + CONTEXTUAL),
// name-sorted for deterministic iteration (§5 determinism requirement).
func (d DomainRegistry) ScoringFields() []FieldDefinition {
	names := make([]string, 0, len(d.Fields))
	for name := range d.Fields {
		names = append(names, name)
	}
	sortStrings(names)
	var out []FieldDefinition
	for _, name := range names {
		fd := d.Fields[name]
		if fd.Tier == TierBehavioral || fd.Tier == TierContextual {
			out = append(out, fd)
		}
	}
	return out
}

// SimilarityFloorForTypology returns the floor override for typology, or
// the domain default if none is configured.
func (d DomainRegistry) SimilarityFloorForTypology(typology string) float64 {
	if f, ok := d.SimilarityFloorOverrides[typology]; ok {
		return f
	}
	return d.SimilarityFloor
}

// TotalWeight sums the weights of all scoring fields (for normalization
// reference; the scorer computes its own per-comparison total_weight).
func (d DomainRegistry) TotalWeight() float64 {
	var sum float64
	for _, fd := range d.ScoringFields() {
		sum += fd.Weight
	}
	return sum
}

// HasCriticalField reports whether name is one of the domain's critical
// fields.
func (d DomainRegistry) HasCriticalField(name string) bool {
	_, ok := d.CriticalFields[name]
	return ok
}
