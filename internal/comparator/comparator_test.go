package comparator

import (
	"testing"

	"github.com/decisiongraph/ledger/internal/domainmodel"
)

func TestExact(t *testing.T) {
	cases := []struct {
		a, b any
		want float64
	}{
		{"cash", "cash", 1.0},
		{"Cash", "cash", 1.0}, // case-insensitive
		{"cash", "wire", 0.0},
		{true, true, 1.0},
		{true, false, 0.0},
		{nil, "cash", 0.0},
	}
	for _, c := range cases {
		got := Exact(c.a, c.b)
		if got != c.want {
			t.Errorf("Exact(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestEquivalenceClass(t *testing.T) {
	classes := map[string][]string{
		"high": {"wire", "crypto"},
		"low":  {"cash", "check"},
	}
	if got := EquivalenceClass("wire", "crypto", classes); got != 1.0 {
		t.Errorf("expected same-class values to score 1.0, got %v", got)
	}
	if got := EquivalenceClass("wire", "cash", classes); got != 0.0 {
		t.Errorf("expected different-class values to score 0.0, got %v", got)
	}
	// Value not in any declared class falls back to exact string compare.
	if got := EquivalenceClass("unknown", "unknown", classes); got != 1.0 {
		t.Errorf("expected unclassified identical values to fall back to exact match, got %v", got)
	}
	if got := EquivalenceClass("unknown", "other", classes); got != 0.0 {
		t.Errorf("expected unclassified distinct values to score 0.0, got %v", got)
	}
}

func TestDistanceDecay(t *testing.T) {
	if got := DistanceDecay(100.0, 100.0, 50); got != 1.0 {
		t.Errorf("expected identical values to score 1.0, got %v", got)
	}
	if got := DistanceDecay(100.0, 125.0, 50); got != 0.5 {
		t.Errorf("expected half-distance to score 0.5, got %v", got)
	}
	if got := DistanceDecay(100.0, 500.0, 50); got != 0.0 {
		t.Errorf("expected beyond-max-distance to floor at 0.0, got %v", got)
	}
	if got := DistanceDecay("100", "100", 50); got != 1.0 {
		t.Errorf("expected numeric strings to parse, got %v", got)
	}
}

func TestStep(t *testing.T) {
	ordered := []string{"low", "medium", "high", "critical"}
	if got := Step("low", "low", ordered); got != 1.0 {
		t.Errorf("expected identical step values to score 1.0, got %v", got)
	}
	if got := Step("low", "critical", ordered); got != 0.0 {
		t.Errorf("expected maximally distant step values to score 0.0, got %v", got)
	}
	if got := Step("low", "medium", ordered); got <= 0.0 || got >= 1.0 {
		t.Errorf("expected adjacent step values to score strictly between 0 and 1, got %v", got)
	}
}

func TestJaccard(t *testing.T) {
	if got := Jaccard([]string{"a", "b"}, []string{"a", "b"}); got != 1.0 {
		t.Errorf("expected identical sets to score 1.0, got %v", got)
	}
	if got := Jaccard([]string{"a", "b"}, []string{"c", "d"}); got != 0.0 {
		t.Errorf("expected disjoint sets to score 0.0, got %v", got)
	}
	if got := Jaccard([]string{"a", "b"}, []string{"b", "c"}); got != 1.0/3.0 {
		t.Errorf("expected 1/3 for one-of-three union overlap, got %v", got)
	}
	if got := Jaccard(nil, nil); got != 1.0 {
		t.Errorf("expected both-nil to score 1.0 as vacuously identical, got %v", got)
	}
}

func TestCompare_DispatchesByFieldComparison(t *testing.T) {
	fd := domainmodel.FieldDefinition{
		Name:       "channel",
		Comparison: domainmodel.ComparisonExact,
	}
	got, err := Compare(fd, "cash", "cash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1.0 {
		t.Fatalf("expected exact match to score 1.0, got %v", got)
	}

	fd.Comparison = "UNKNOWN_FN"
	if _, err := Compare(fd, "cash", "cash"); err == nil {
		t.Fatal("expected an error for an unrecognized comparison function")
	}
}

func TestCompare_NilValueScoresZeroWithoutError(t *testing.T) {
	fd := domainmodel.FieldDefinition{Name: "amount", Comparison: domainmodel.ComparisonDistanceDecay, MaxDistance: 10}
	got, err := Compare(fd, nil, 5.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0.0 {
		t.Fatalf("expected nil input to score 0.0, got %v", got)
	}
}
