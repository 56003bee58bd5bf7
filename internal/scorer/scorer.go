// Package scorer implements Layer 2 of the precedent engine: driver-aware
// similarity scoring between a case and a precedent, v3 match
// classification, and typology detection for similarity-floor overrides.
package scorer

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/decisiongraph/ledger/internal/comparator"
	"github.com/decisiongraph/ledger/internal/domainmodel"
	"github.com/decisiongraph/ledger/internal/judgment"
)

// Result is the outcome of Layer 2 field-by-field similarity scoring.
type Result struct {
	Score                  float64
	RawScore               float64
	TotalWeight            float64
	NonTransferable        bool
	NonTransferableReasons []string
	MatchedDrivers         []string
	MismatchedDrivers      []string
	MatchedContext         []string
	FieldScores            map[string]float64
	EvaluableFields        []string
	MissingFields          []string
}

// ScoreSimilarity scores a case against a precedent over the domain's
// scoring fields (BEHAVIORAL + CONTEXTUAL tiers), applying 2x weight to
// fields that were decision drivers for the precedent. A driver that is
// absent from the case, or that mismatches the precedent, makes the
// match non-transferable (§4.7, spec 5.4).
func ScoreSimilarity(domain domainmodel.DomainRegistry, caseFacts, precedentFacts map[string]any, precedentDrivers []string) (Result, error) {
	drivers := make(map[string]struct{}, len(precedentDrivers))
	for _, d := range precedentDrivers {
		drivers[d] = struct{}{}
	}

	res := Result{FieldScores: map[string]float64{}}

	for _, fd := range domain.ScoringFields() {
		caseVal, caseHas := caseFacts[fd.Name]
		precVal, precHas := precedentFacts[fd.Name]
		_, isDriver := drivers[fd.Name]

		caseMissing := !caseHas || caseVal == nil
		precMissing := !precHas || precVal == nil

		if caseMissing && precMissing {
			res.MissingFields = append(res.MissingFields, fd.Name)
			continue
		}
		if isDriver && caseMissing {
			res.NonTransferable = true
			res.NonTransferableReasons = append(res.NonTransferableReasons, fmt.Sprintf(
				"%s was a decision driver but is missing from the current case", label(fd)))
			res.MissingFields = append(res.MissingFields, fd.Name)
			continue
		}
		if precMissing || caseMissing {
			res.MissingFields = append(res.MissingFields, fd.Name)
			continue
		}

		matchScore, err := comparator.Compare(fd, caseVal, precVal)
		if err != nil {
			return Result{}, fmt.Errorf("scoring field %q: %w", fd.Name, err)
		}
		res.FieldScores[fd.Name] = matchScore
		res.EvaluableFields = append(res.EvaluableFields, fd.Name)

		multiplier := 1.0
		if isDriver {
			multiplier = 2.0
		}

		switch {
		case isDriver && matchScore == 0.0:
			res.NonTransferable = true
			res.NonTransferableReasons = append(res.NonTransferableReasons, fmt.Sprintf(
				"%s: precedent=%v, current=%v — driver contradiction", label(fd), precVal, caseVal))
			res.MismatchedDrivers = append(res.MismatchedDrivers, fd.Name)
		case isDriver && matchScore > 0.0:
			res.MatchedDrivers = append(res.MatchedDrivers, fd.Name)
		case matchScore > 0.0:
			res.MatchedContext = append(res.MatchedContext, fd.Name)
		}

		res.RawScore += fd.Weight * multiplier * matchScore
		res.TotalWeight += fd.Weight * multiplier
	}

	if res.TotalWeight > 0 {
		res.Score = res.RawScore / res.TotalWeight
	}
	return res, nil
}

func label(fd domainmodel.FieldDefinition) string {
	if fd.Label != "" {
		return fd.Label
	}
	return fd.Name
}

// MatchClass is the v3 match classification of a precedent relative to a
// case's current disposition.
type MatchClass string

const (
	MatchSupporting MatchClass = "supporting"
	MatchContrary   MatchClass = "contrary"
	MatchNeutral    MatchClass = "neutral"
)

const (
	dispositionUnknown = "UNKNOWN"
	dispositionEDD     = "EDD"
	dispositionAllow   = "ALLOW"
	dispositionBlock   = "BLOCK"
)

// ClassifyMatchV3 classifies a precedent's relationship to the current
// case's disposition under the v3 rules (INV-003, INV-004, INV-005,
// INV-008, INV-011). Exactly one of supporting/contrary/neutral is
// returned.
func ClassifyMatchV3(caseDisposition, precedentDisposition, caseBasis, precedentBasis string, nonTransferable bool) MatchClass {
	// INV-003: UNKNOWN is always neutral.
	if precedentDisposition == dispositionUnknown || caseDisposition == dispositionUnknown {
		return MatchNeutral
	}

	// INV-005: EDD is procedural, not terminal, and is always neutral
	// except EDD == EDD, which is a genuine same-disposition match.
	if precedentDisposition == dispositionEDD || caseDisposition == dispositionEDD {
		if precedentDisposition == dispositionEDD && caseDisposition == dispositionEDD {
			if nonTransferable {
				return MatchNeutral // INV-011
			}
			return MatchSupporting
		}
		return MatchNeutral
	}

	// INV-008: cross-basis precedents are structurally incomparable and
	// never support or contradict each other.
	if caseBasis != "" && caseBasis != dispositionUnknown &&
		precedentBasis != "" && precedentBasis != dispositionUnknown &&
		caseBasis != precedentBasis {
		return MatchNeutral
	}

	if precedentDisposition == caseDisposition {
		if nonTransferable {
			return MatchNeutral // INV-011: non-transferable cannot be supporting
		}
		return MatchSupporting
	}

	// INV-004: only ALLOW vs BLOCK is a genuine contradiction.
	if isAllowBlockPair(caseDisposition, precedentDisposition) {
		return MatchContrary
	}

	return MatchNeutral
}

func isAllowBlockPair(a, b string) bool {
	return (a == dispositionAllow && b == dispositionBlock) || (a == dispositionBlock && b == dispositionAllow)
}

// DetectPrimaryTypology inspects reason codes and case facts for the
// highest-priority typology signal (sanctions > structuring > adverse
// media), returning "" if none is detected. The returned key is suitable
// for DomainRegistry.SimilarityFloorForTypology.
func DetectPrimaryTypology(reasonCodes []string, caseFacts map[string]any) string {
	upper := make([]string, len(reasonCodes))
	for i, c := range reasonCodes {
		upper[i] = strings.ToUpper(c)
	}

	if containsAny(upper, "SANCTION", "RC-SCR") || isTruthy(caseFacts["screening.sanctions_match"]) {
		return "sanctions"
	}
	if containsAny(upper, "STRUCT") || isTruthy(caseFacts["flag.structuring"]) {
		return "structuring"
	}
	if containsAny(upper, "ADVERSE") || isTruthy(caseFacts["screening.adverse_media"]) {
		return "adverse_media"
	}
	return ""
}

func containsAny(codes []string, substrs ...string) bool {
	for _, c := range codes {
		for _, s := range substrs {
			if strings.Contains(c, s) {
				return true
			}
		}
	}
	return false
}

func isTruthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "true" || x == "True"
	default:
		return false
	}
}

// Candidate is one precedent to be scored against a case within
// ScoreBatch.
type Candidate struct {
	CellID  string
	Facts   map[string]any
	Drivers []string
}

// ScoredCandidate pairs a Candidate with its similarity Result.
type ScoredCandidate struct {
	Candidate Candidate
	Result    Result
}

// ScoreBatch scores caseFacts against many candidates concurrently,
// bounded by workers (workers <= 0 defaults to 4), mirroring the
// precedent engine's bulk comparison path over a pool of chain-sourced
// precedents. Results preserve the input candidate order.
func ScoreBatch(ctx context.Context, domain domainmodel.DomainRegistry, caseFacts map[string]any, candidates []Candidate, workers int) ([]ScoredCandidate, error) {
	if workers <= 0 {
		workers = 4
	}
	out := make([]ScoredCandidate, len(candidates))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
			}
			res, err := ScoreSimilarity(domain, caseFacts, c.Facts, c.Drivers)
			if err != nil {
				return fmt.Errorf("scoring candidate %s: %w", c.CellID, err)
			}
			out[i] = ScoredCandidate{Candidate: c, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
