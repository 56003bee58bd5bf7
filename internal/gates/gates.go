// Package gates implements Layer 1 of the precedent engine: comparability
// gate evaluation. A precedent enters the scored pool only if it passes
// every gate the domain registry defines; incomparable precedents are
// excluded entirely and never influence scoring or confidence.
package gates

import (
	"fmt"

	"github.com/decisiongraph/ledger/internal/domainmodel"
)

// Result is the outcome of evaluating one comparability gate.
type Result struct {
	Passed         bool
	GateField      string
	CaseClass      string
	PrecedentClass string
	FallbackUsed   bool
	Warning        string
}

// EvaluateGates checks caseFacts against precedentFacts across every gate
// in domain, in the registry's declared order. allPassed is true only if
// every gate passes (domain rule: all gates must pass for the precedent
// to be comparable).
func EvaluateGates(domain domainmodel.DomainRegistry, caseFacts, precedentFacts map[string]any) (allPassed bool, results []Result) {
	allPassed = true
	for _, gate := range domain.ComparabilityGates {
		r := evaluateGate(gate, caseFacts, precedentFacts)
		results = append(results, r)
		if !r.Passed {
			allPassed = false
		}
	}
	return allPassed, results
}

func evaluateGate(gate domainmodel.ComparabilityGate, caseFacts, precedentFacts map[string]any) Result {
	caseVal, caseHasKey := caseFacts[gate.Field]
	precVal, precHasKey := precedentFacts[gate.Field]

	caseClass, caseOK := gate.Classify(caseVal)
	precClass, precOK := gate.Classify(precVal)

	var warning string
	fallbackUsed := false

	// Missing field → broadest class fallback + warning.
	if (!caseHasKey || caseVal == nil) && !caseOK {
		broadest := gate.BroadestClass()
		caseClass = broadest
		caseOK = true
		fallbackUsed = true
		warning = appendWarning(warning, fmt.Sprintf(
			"gate field %q missing from case; using broadest class %q as fallback", gate.Field, broadest))
	}
	if (!precHasKey || precVal == nil) && !precOK {
		broadest := gate.BroadestClass()
		precClass = broadest
		precOK = true
		fallbackUsed = true
		warning = appendWarning(warning, fmt.Sprintf(
			"gate field %q missing from precedent; using broadest class %q as fallback", gate.Field, broadest))
	}

	// A present-but-unclassifiable value cannot prove incomparability:
	// the gate passes rather than rejecting on an unknown vocabulary term.
	if !caseOK || !precOK {
		return Result{
			Passed:         true,
			GateField:      gate.Field,
			CaseClass:      caseClass,
			PrecedentClass: precClass,
			FallbackUsed:   true,
			Warning: appendWarning(warning, fmt.Sprintf(
				"gate field %q has unclassifiable value (case=%v, prec=%v); passing gate",
				gate.Field, caseVal, precVal)),
		}
	}

	return Result{
		Passed:         caseClass == precClass,
		GateField:      gate.Field,
		CaseClass:      caseClass,
		PrecedentClass: precClass,
		FallbackUsed:   fallbackUsed,
		Warning:        warning,
	}
}

func appendWarning(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "; " + next
}
