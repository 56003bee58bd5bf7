// Package confidence implements Layer 3 of the precedent engine: governed
// confidence, a four-dimension model where the weakest dimension caps the
// entire score so that no single strength can mask a fundamental gap.
package confidence

import (
	"fmt"
	"sort"
	"strings"

	"github.com/decisiongraph/ledger/internal/domainmodel"
)

// Dimension is the result of evaluating one confidence dimension.
type Dimension struct {
	Name       string
	Value      float64
	Level      domainmodel.ConfidenceLevel
	Bottleneck bool
	Note       string
}

// Result is a complete governed confidence evaluation.
type Result struct {
	Level          domainmodel.ConfidenceLevel
	NumericValue   float64
	Dimensions     []Dimension
	HardRuleApplied string
	Bottleneck     string
}

func scorePoolAdequacy(poolSize int) Dimension {
	var level domainmodel.ConfidenceLevel
	var note string
	switch {
	case poolSize == 0:
		level, note = domainmodel.ConfidenceNone, "no comparable precedents above similarity threshold"
	case poolSize <= 4:
		level, note = domainmodel.ConfidenceLow, "precedent pool below minimum threshold"
	case poolSize <= 14:
		level = domainmodel.ConfidenceModerate
	case poolSize <= 49:
		level = domainmodel.ConfidenceHigh
	default:
		level = domainmodel.ConfidenceVeryHigh
	}
	return Dimension{Name: "pool_adequacy", Value: float64(poolSize), Level: level, Note: note}
}

func scoreSimilarityQuality(avgSimilarity float64) Dimension {
	var level domainmodel.ConfidenceLevel
	var note string
	switch {
	case avgSimilarity < 0.50:
		level, note = domainmodel.ConfidenceLow, "no strongly comparable cases found"
	case avgSimilarity < 0.70:
		level = domainmodel.ConfidenceModerate
	case avgSimilarity < 0.85:
		level = domainmodel.ConfidenceHigh
	default:
		level = domainmodel.ConfidenceVeryHigh
	}
	return Dimension{Name: "similarity_quality", Value: avgSimilarity, Level: level, Note: note}
}

func scoreOutcomeConsistency(decisiveSupporting, decisiveTotal int) Dimension {
	if decisiveTotal == 0 {
		return Dimension{
			Name:  "outcome_consistency",
			Value: 0.0,
			Level: domainmodel.ConfidenceModerate,
			Note: "no terminal precedents; all comparable cases are non-terminal " +
				"(EDD/UNKNOWN); confidence scoring requires resolved precedents",
		}
	}
	agreement := float64(decisiveSupporting) / float64(decisiveTotal)
	var level domainmodel.ConfidenceLevel
	switch {
	case agreement < 0.60:
		level = domainmodel.ConfidenceLow
	case agreement < 0.80:
		level = domainmodel.ConfidenceModerate
	case agreement < 0.95:
		level = domainmodel.ConfidenceHigh
	default:
		level = domainmodel.ConfidenceVeryHigh
	}
	return Dimension{Name: "outcome_consistency", Value: agreement, Level: level}
}

func scoreEvidenceCompleteness(domain domainmodel.DomainRegistry, caseFacts map[string]any) Dimension {
	var required []domainmodel.FieldDefinition
	for _, fd := range domain.Fields {
		if fd.Required {
			required = append(required, fd)
		}
	}
	if len(required) == 0 {
		return Dimension{Name: "evidence_completeness", Value: 1.0, Level: domainmodel.ConfidenceVeryHigh}
	}

	present := 0
	for _, fd := range required {
		if v, ok := caseFacts[fd.Name]; ok && v != nil {
			present++
		}
	}
	completeness := float64(present) / float64(len(required))

	missingCritical := missingCriticalFields(domain, caseFacts)
	if len(missingCritical) > 0 {
		return Dimension{
			Name:  "evidence_completeness",
			Value: completeness,
			Level: domainmodel.ConfidenceLow,
			Note:  fmt.Sprintf("critical fields missing: %s", strings.Join(missingCritical, ", ")),
		}
	}

	var level domainmodel.ConfidenceLevel
	var note string
	switch {
	case completeness < 0.80:
		level = domainmodel.ConfidenceLow
		note = fmt.Sprintf("%d required fields missing", len(required)-present)
	case completeness < 0.90:
		level = domainmodel.ConfidenceModerate
	case completeness < 0.95:
		level = domainmodel.ConfidenceHigh
	default:
		level = domainmodel.ConfidenceVeryHigh
	}
	return Dimension{Name: "evidence_completeness", Value: completeness, Level: level, Note: note}
}

func missingCriticalFields(domain domainmodel.DomainRegistry, caseFacts map[string]any) []string {
	var names []string
	for f := range domain.CriticalFields {
		if v, ok := caseFacts[f]; !ok || v == nil {
			names = append(names, f)
		}
	}
	sort.Strings(names)
	return names
}

// Compute evaluates governed confidence over the 4 dimensions and applies
// the 5 ordered hard rules before falling back to the standard min-of-
// dimensions formula (§4.8, spec 6.7).
//
//   - poolSize: count of precedents that passed gates + the similarity floor.
//   - avgSimilarity: mean Layer 2 score across that scored pool.
//   - decisiveSupporting / decisiveTotal: agreement among terminal (ALLOW/BLOCK)
//     precedents.
//   - caseFacts: the current case's fields, for evidence completeness.
func Compute(domain domainmodel.DomainRegistry, poolSize int, avgSimilarity float64, decisiveSupporting, decisiveTotal int, caseFacts map[string]any) Result {
	dimPool := scorePoolAdequacy(poolSize)
	dimSimilarity := scoreSimilarityQuality(avgSimilarity)
	dimConsistency := scoreOutcomeConsistency(decisiveSupporting, decisiveTotal)
	dimEvidence := scoreEvidenceCompleteness(domain, caseFacts)

	dimensions := []Dimension{dimPool, dimSimilarity, dimConsistency, dimEvidence}

	var hardRule string
	var finalLevel domainmodel.ConfidenceLevel

	switch {
	case poolSize == 0:
		hardRule = "0 precedents above floor"
		finalLevel = domainmodel.ConfidenceNone
	case avgSimilarity < 0.50:
		hardRule = "all precedents below 50% similarity"
		finalLevel = domainmodel.ConfidenceLow
	case dimEvidence.Level == domainmodel.ConfidenceLow && len(missingCriticalFields(domain, caseFacts)) > 0:
		hardRule = "critical fields missing"
		finalLevel = domainmodel.ConfidenceLow
	case decisiveTotal == 0:
		hardRule = "0 decisive precedents"
		finalLevel = domainmodel.Min(domainmodel.ConfidenceModerate, minDimensionLevel(dimensions))
	case poolSize < domain.PoolMinimum:
		hardRule = fmt.Sprintf("pool below minimum (%d)", domain.PoolMinimum)
		finalLevel = domainmodel.Min(domainmodel.ConfidenceLow, minDimensionLevel(dimensions))
	default:
		finalLevel = minDimensionLevel(dimensions)
	}

	bottleneckIdx := weakestDimensionIndex(dimensions)
	dimensions[bottleneckIdx].Bottleneck = true

	return Result{
		Level:           finalLevel,
		NumericValue:    domainmodel.LevelToNumeric[finalLevel],
		Dimensions:      dimensions,
		HardRuleApplied: hardRule,
		Bottleneck:      dimensions[bottleneckIdx].Name,
	}
}

func minDimensionLevel(dimensions []Dimension) domainmodel.ConfidenceLevel {
	levels := make([]domainmodel.ConfidenceLevel, len(dimensions))
	for i, d := range dimensions {
		levels[i] = d.Level
	}
	return domainmodel.MinLevel(levels...)
}

// weakestDimensionIndex returns the index of the first dimension (in
// declared pool/similarity/consistency/evidence order) holding the
// weakest level, matching Python's stable min() tie-break.
func weakestDimensionIndex(dimensions []Dimension) int {
	weakest := 0
	for i := 1; i < len(dimensions); i++ {
		if dimensions[i].Level.Less(dimensions[weakest].Level) {
			weakest = i
		}
	}
	return weakest
}
