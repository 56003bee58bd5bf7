package shadow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/decisiongraph/ledger/internal/cell"
	"github.com/decisiongraph/ledger/internal/chain"
	"github.com/decisiongraph/ledger/internal/domainmodel"
	"github.com/decisiongraph/ledger/internal/judgment"
	"github.com/decisiongraph/ledger/internal/precedent"
)

func testDomain() domainmodel.DomainRegistry {
	return domainmodel.DomainRegistry{
		Domain:  "banking_aml",
		Version: "v1",
		Fields: map[string]domainmodel.FieldDefinition{
			"channel": {Name: "channel", Type: domainmodel.FieldTypeCategorical, Comparison: domainmodel.ComparisonExact, Weight: 1.0, Tier: domainmodel.TierBehavioral},
		},
		SimilarityFloor: 0.0,
		PoolMinimum:     1,
	}
}

func newBaseChain(t *testing.T) *chain.Chain {
	t.Helper()
	c := chain.New(nil, nil)
	genesis, err := cell.NewGenesis(cell.GenesisParams{
		GraphID:       "graph-shadow-1",
		HashScheme:    cell.HashSchemeCanonical,
		RootNamespace: "banking_aml",
		Creator:       "test-suite",
		SystemTime:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error building genesis: %v", err)
	}
	if err := c.Append(genesis, chain.AppendOptions{}); err != nil {
		t.Fatalf("unexpected error appending genesis: %v", err)
	}
	return c
}

func judgmentCell(t *testing.T, graphID, prevCellHash, namespace string, systemTime time.Time, payload judgment.Payload) cell.Cell {
	t.Helper()
	objBytes, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("unexpected error marshaling payload: %v", err)
	}
	cl := cell.Cell{
		Header: cell.Header{
			SchemaVersion: 1, GraphID: graphID, CellType: cell.TypeJudgment,
			SystemTime: systemTime, PrevCellHash: prevCellHash, HashScheme: cell.HashSchemeCanonical,
		},
		Fact: cell.Fact{
			Namespace: namespace, Subject: "case:" + payload.CaseIDHash, Predicate: "judgment_recorded",
			Object: string(objBytes), Confidence: "1.0000", SourceQuality: cell.SourceQualityAsserted,
		},
		LogicAnchor: cell.LogicAnchor{RuleID: "precedent-engine-v3", RuleLogicHash: cell.NullHash},
	}
	id, err := cell.ComputeCellID(cl)
	if err != nil {
		t.Fatalf("unexpected error computing cell id: %v", err)
	}
	cl.CellID = id
	return cl
}

func TestFork_RequiresNonEmptyBase(t *testing.T) {
	empty := chain.New(nil, nil)
	if _, err := Fork(empty, nil); err == nil {
		t.Fatal("expected Fork to fail on an empty base chain")
	}
}

func TestOverlayContext_AddAndLookupByKey(t *testing.T) {
	o := NewOverlayContext()
	c := cell.Cell{
		Header: cell.Header{CellType: cell.TypeFact},
		Fact:   cell.Fact{Namespace: "banking_aml", Subject: "case:1", Predicate: "flag"},
	}
	o.Add(c)
	got := o.GetFacts(FactKey{Namespace: "banking_aml", Subject: "case:1", Predicate: "flag"})
	if len(got) != 1 {
		t.Fatalf("expected 1 fact at key, got %d", len(got))
	}
	if missing := o.GetFacts(FactKey{Namespace: "none", Subject: "x", Predicate: "y"}); missing != nil {
		t.Fatalf("expected nil for an unindexed key, got %v", missing)
	}
}

func TestSimulateRFA_ZeroContaminationAndDelta(t *testing.T) {
	base := newBaseChain(t)
	t0 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	baseJudgment := judgmentCell(t, base.GraphID(), mustHead(t, base), "banking_aml.sanctions", t0, judgment.Payload{
		OutcomeCode: "BLOCK", CaseIDHash: "case-base", FingerprintHash: "fp-base",
		DispositionBasis: judgment.BasisMandatory,
		AnchorFacts:       []judgment.AnchorFact{{FieldID: "channel", Value: "cash"}},
	})
	if err := base.Append(baseJudgment, chain.AppendOptions{}); err != nil {
		t.Fatalf("unexpected error appending base judgment: %v", err)
	}

	beforeFork := base.TakeSnapshot()

	shadowChain, err := Fork(base, nil)
	if err != nil {
		t.Fatalf("unexpected error forking: %v", err)
	}

	shadowJudgment := judgmentCell(t, base.GraphID(), shadowChain.BaseHeadID(), "banking_aml.sanctions", t0.Add(time.Minute), judgment.Payload{
		OutcomeCode: "BLOCK", CaseIDHash: "case-shadow", FingerprintHash: "fp-shadow",
		DispositionBasis: judgment.BasisMandatory,
		AnchorFacts:       []judgment.AnchorFact{{FieldID: "channel", Value: "cash"}},
	})
	if err := shadowChain.AppendShadow(shadowJudgment); err != nil {
		t.Fatalf("unexpected error appending shadow judgment: %v", err)
	}

	reg := precedent.New(base, nil)
	result, err := shadowChain.SimulateRFA(context.Background(), reg, RFAInput{
		CaseFacts:       map[string]any{"channel": "cash"},
		CaseDisposition: "BLOCK",
		CaseBasis:       "MANDATORY",
		Domain:          testDomain(),
		NamespacePrefix: "banking_aml",
		AsOfSystemTime:  t0.Add(time.Hour),
		Workers:         2,
	})
	if err != nil {
		t.Fatalf("unexpected error simulating: %v", err)
	}

	afterSimulation := base.TakeSnapshot()
	if !beforeFork.Equal(afterSimulation) {
		t.Fatalf("SHD-04 violated: base chain snapshot changed across simulation: before=%+v after=%+v", beforeFork, afterSimulation)
	}

	if len(result.Delta.AddedFacts) != 1 || result.Delta.AddedFacts[0] != shadowJudgment.CellID {
		t.Fatalf("expected shadow judgment cell_id in AddedFacts, got %v", result.Delta.AddedFacts)
	}
	if len(result.Delta.RemovedFacts) != 0 {
		t.Fatalf("expected no removed facts, got %v", result.Delta.RemovedFacts)
	}
	if result.Proof.Origin != "SHADOW" {
		t.Fatalf("expected ProofPacket origin SHADOW, got %q", result.Proof.Origin)
	}
	if len(result.Proof.MatchedPrecedents) != 2 {
		t.Fatalf("expected 2 matched precedents (base + shadow), got %d", len(result.Proof.MatchedPrecedents))
	}
	if result.Proof.DecisiveSupporting != 2 {
		t.Fatalf("expected 2 decisive supporting matches, got %d", result.Proof.DecisiveSupporting)
	}
}

func TestSimulateRFA_BaseOnlyHasNoAddedFacts(t *testing.T) {
	base := newBaseChain(t)
	t0 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	baseJudgment := judgmentCell(t, base.GraphID(), mustHead(t, base), "banking_aml.sanctions", t0, judgment.Payload{
		OutcomeCode: "CLEAR", CaseIDHash: "case-only", FingerprintHash: "fp-only",
		DispositionBasis: judgment.BasisDiscretionary,
		AnchorFacts:       []judgment.AnchorFact{{FieldID: "channel", Value: "wire"}},
	})
	if err := base.Append(baseJudgment, chain.AppendOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	shadowChain, err := Fork(base, nil)
	if err != nil {
		t.Fatalf("unexpected error forking: %v", err)
	}

	reg := precedent.New(base, nil)
	result, err := shadowChain.SimulateRFA(context.Background(), reg, RFAInput{
		CaseFacts:       map[string]any{"channel": "wire"},
		CaseDisposition: "CLEAR",
		CaseBasis:       "DISCRETIONARY",
		Domain:          testDomain(),
		NamespacePrefix: "banking_aml",
		AsOfSystemTime:  t0.Add(time.Hour),
		Workers:         1,
	})
	if err != nil {
		t.Fatalf("unexpected error simulating: %v", err)
	}
	if len(result.Delta.AddedFacts) != 0 || len(result.Delta.RemovedFacts) != 0 {
		t.Fatalf("expected an unmodified overlay to produce no delta, got %+v", result.Delta)
	}
	if result.Delta.VerdictChanged {
		t.Fatal("expected no verdict change without any shadow cells")
	}
}

func mustHead(t *testing.T, c *chain.Chain) string {
	t.Helper()
	head, ok := c.Head()
	if !ok {
		t.Fatal("expected a non-empty chain")
	}
	return head.CellID
}
