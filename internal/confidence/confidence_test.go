package confidence

import (
	"testing"

	"github.com/decisiongraph/ledger/internal/domainmodel"
)

func testDomain() domainmodel.DomainRegistry {
	return domainmodel.DomainRegistry{
		Domain:      "banking_aml",
		PoolMinimum: 5,
		Fields: map[string]domainmodel.FieldDefinition{
			"channel": {Name: "channel", Required: true},
			"amount":  {Name: "amount", Required: true},
		},
		CriticalFields: map[string]struct{}{"channel": {}},
	}
}

func TestCompute_ZeroPoolSizeForcesNone(t *testing.T) {
	domain := testDomain()
	res := Compute(domain, 0, 0.0, 0, 0, map[string]any{"channel": "cash", "amount": 100.0})
	if res.Level != domainmodel.ConfidenceNone {
		t.Fatalf("expected NONE, got %v", res.Level)
	}
	if res.HardRuleApplied == "" {
		t.Fatal("expected a hard rule to be recorded")
	}
}

func TestCompute_LowSimilarityCapsAtLow(t *testing.T) {
	domain := testDomain()
	res := Compute(domain, 10, 0.30, 5, 10, map[string]any{"channel": "cash", "amount": 100.0})
	if res.Level != domainmodel.ConfidenceLow {
		t.Fatalf("expected LOW, got %v", res.Level)
	}
}

func TestCompute_MissingCriticalFieldCapsAtLow(t *testing.T) {
	domain := testDomain()
	// Pool and similarity strong, but channel (critical, required) is missing
	// and that alone should drag evidence_completeness to LOW and trigger the
	// hard rule.
	res := Compute(domain, 20, 0.90, 15, 20, map[string]any{"amount": 100.0})
	if res.Level != domainmodel.ConfidenceLow {
		t.Fatalf("expected LOW due to missing critical field, got %v", res.Level)
	}
	if res.HardRuleApplied != "critical fields missing" {
		t.Fatalf("expected critical-fields hard rule, got %q", res.HardRuleApplied)
	}
}

func TestCompute_ZeroDecisiveCapsAtModerate(t *testing.T) {
	domain := testDomain()
	res := Compute(domain, 20, 0.90, 0, 0, map[string]any{"channel": "cash", "amount": 100.0})
	if res.Level != domainmodel.ConfidenceModerate {
		t.Fatalf("expected MODERATE cap with 0 decisive precedents, got %v", res.Level)
	}
}

func TestCompute_PoolBelowMinimumCapsAtLow(t *testing.T) {
	domain := testDomain() // pool minimum is 5
	res := Compute(domain, 3, 0.90, 2, 3, map[string]any{"channel": "cash", "amount": 100.0})
	if res.Level != domainmodel.ConfidenceLow {
		t.Fatalf("expected LOW due to pool below minimum, got %v", res.Level)
	}
}

func TestCompute_StandardFormulaIsMinOfDimensions(t *testing.T) {
	domain := testDomain()
	// Strong pool, strong similarity, strong evidence, but weak outcome
	// consistency (agreement 50% < 0.60 => LOW) should cap the final level.
	res := Compute(domain, 30, 0.90, 5, 10, map[string]any{"channel": "cash", "amount": 100.0})
	if res.Level != domainmodel.ConfidenceLow {
		t.Fatalf("expected overall LOW capped by outcome_consistency, got %v", res.Level)
	}
	if res.Bottleneck != "outcome_consistency" {
		t.Fatalf("expected bottleneck outcome_consistency, got %q", res.Bottleneck)
	}
}

func TestCompute_AllStrongDimensionsYieldVeryHigh(t *testing.T) {
	domain := testDomain()
	res := Compute(domain, 60, 0.95, 19, 20, map[string]any{"channel": "cash", "amount": 100.0})
	if res.Level != domainmodel.ConfidenceVeryHigh {
		t.Fatalf("expected VERY_HIGH, got %v", res.Level)
	}
	if res.NumericValue != domainmodel.LevelToNumeric[domainmodel.ConfidenceVeryHigh] {
		t.Fatalf("numeric_value mismatch: got %v", res.NumericValue)
	}
}

func TestCompute_NoRequiredFieldsYieldsPerfectEvidence(t *testing.T) {
	domain := domainmodel.DomainRegistry{Domain: "empty", PoolMinimum: 1}
	res := Compute(domain, 10, 0.90, 8, 10, map[string]any{})
	var evidence Dimension
	for _, d := range res.Dimensions {
		if d.Name == "evidence_completeness" {
			evidence = d
		}
	}
	if evidence.Level != domainmodel.ConfidenceVeryHigh {
		t.Fatalf("expected evidence_completeness VERY_HIGH with no required fields, got %v", evidence.Level)
	}
}
