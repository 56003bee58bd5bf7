package chain

import (
	"testing"
	"time"

	"github.com/decisiongraph/ledger/internal/cell"
)

func newGenesis(t *testing.T, graphID string) cell.Cell {
	t.Helper()
	g, err := cell.NewGenesis(cell.GenesisParams{
		GraphID:       graphID,
		HashScheme:    cell.HashSchemeCanonical,
		RootNamespace: "banking_aml",
		Creator:       "system:demo",
		SystemTime:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error building genesis: %v", err)
	}
	return g
}

func childCell(t *testing.T, prev cell.Cell, systemTime time.Time) cell.Cell {
	t.Helper()
	c := cell.Cell{
		Header: cell.Header{
			SchemaVersion: 1,
			GraphID:       prev.Header.GraphID,
			CellType:      cell.TypeFact,
			SystemTime:    systemTime,
			PrevCellHash:  prev.CellID,
			HashScheme:    prev.Header.HashScheme,
		},
		Fact: cell.Fact{
			Namespace:     "banking_aml",
			Subject:       "case:1",
			Predicate:     "flagged",
			Object:        "true",
			Confidence:    "0.9000",
			SourceQuality: cell.SourceQualityAsserted,
		},
		LogicAnchor: cell.LogicAnchor{RuleID: "r1", RuleLogicHash: cell.NullHash},
		Proof:       cell.Proof{SignatureRequired: false},
	}
	id, err := cell.ComputeCellID(c)
	if err != nil {
		t.Fatalf("unexpected error computing cell id: %v", err)
	}
	c.CellID = id
	return c
}

func TestAppend_GenesisThenChild(t *testing.T) {
	c := New(nil, nil)
	g := newGenesis(t, "graph-1")
	if err := c.Append(g, AppendOptions{}); err != nil {
		t.Fatalf("unexpected error appending genesis: %v", err)
	}
	child := childCell(t, g, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	if err := c.Append(child, AppendOptions{}); err != nil {
		t.Fatalf("unexpected error appending child: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected chain length 2, got %d", c.Len())
	}
	head, ok := c.Head()
	if !ok || head.CellID != child.CellID {
		t.Fatal("expected head to be the appended child")
	}
}

// TestAppend_WrongPrevHash matches the end-to-end scenario in §8 #2.
func TestAppend_WrongPrevHash(t *testing.T) {
	c := New(nil, nil)
	g := newGenesis(t, "graph-1")
	if err := c.Append(g, AppendOptions{}); err != nil {
		t.Fatalf("unexpected error appending genesis: %v", err)
	}
	child := childCell(t, g, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	if err := c.Append(child, AppendOptions{}); err != nil {
		t.Fatalf("unexpected error appending child: %v", err)
	}

	bad := childCell(t, g, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC))
	bad.Header.PrevCellHash = g.CellID // wrong: should be child.CellID
	newID, err := cell.ComputeCellID(bad)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad.CellID = newID

	err = c.Append(bad, AppendOptions{})
	if err == nil {
		t.Fatal("expected ChainBreak error for wrong prev_cell_hash")
	}
	if c.Len() != 2 {
		t.Fatalf("expected chain length to remain 2 after rejected append, got %d", c.Len())
	}
}

func TestAppend_DuplicateGenesisRejected(t *testing.T) {
	c := New(nil, nil)
	g := newGenesis(t, "graph-1")
	if err := c.Append(g, AppendOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g2 := newGenesis(t, "graph-1")
	if err := c.Append(g2, AppendOptions{}); err == nil {
		t.Fatal("expected error appending second genesis")
	}
}

func TestAppend_ForeignGraphIDRejected(t *testing.T) {
	c := New(nil, nil)
	g := newGenesis(t, "graph-1")
	if err := c.Append(g, AppendOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	foreign := childCell(t, g, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	foreign.Header.GraphID = "graph-2"
	id, err := cell.ComputeCellID(foreign)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	foreign.CellID = id
	if err := c.Append(foreign, AppendOptions{}); err == nil {
		t.Fatal("expected GraphIdMismatch error")
	}
}

func TestAppend_TamperedCellFailsIntegrity(t *testing.T) {
	c := New(nil, nil)
	g := newGenesis(t, "graph-1")
	if err := c.Append(g, AppendOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	child := childCell(t, g, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	child.Fact.Object = "tampered" // cell_id no longer matches content
	if err := c.Append(child, AppendOptions{}); err == nil {
		t.Fatal("expected integrity failure")
	}
}

func TestToJSON_ImportRoundTrip(t *testing.T) {
	c := New(nil, nil)
	g := newGenesis(t, "graph-1")
	if err := c.Append(g, AppendOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	child := childCell(t, g, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	if err := c.Append(child, AppendOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := c.ToJSON()
	if err != nil {
		t.Fatalf("unexpected error serializing: %v", err)
	}
	imported, err := Import(data, nil, nil, AppendOptions{})
	if err != nil {
		t.Fatalf("unexpected error importing: %v", err)
	}
	if imported.Len() != c.Len() {
		t.Fatalf("expected imported length %d, got %d", c.Len(), imported.Len())
	}
	head, _ := c.Head()
	importedHead, _ := imported.Head()
	if head.CellID != importedHead.CellID {
		t.Fatal("expected imported chain head to match original")
	}
}

func TestTakeSnapshot_EqualityAndMutationDetection(t *testing.T) {
	c := New(nil, nil)
	g := newGenesis(t, "graph-1")
	if err := c.Append(g, AppendOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := c.TakeSnapshot()

	child := childCell(t, g, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	if err := c.Append(child, AppendOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := c.TakeSnapshot()

	if before.Equal(after) {
		t.Fatal("expected snapshots to differ after append")
	}
	if after.Length != 2 || before.Length != 1 {
		t.Fatalf("unexpected snapshot lengths: before=%d after=%d", before.Length, after.Length)
	}
}

func TestFindBitemporal_FiltersBySystemTimeAndValidity(t *testing.T) {
	c := New(nil, nil)
	g := newGenesis(t, "graph-1")
	if err := c.Append(g, AppendOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vf := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	vt := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	c1 := childCell(t, g, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	c1.Fact.ValidFrom = &vf
	c1.Fact.ValidTo = &vt
	id, err := cell.ComputeCellID(c1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c1.CellID = id
	if err := c.Append(c1, AppendOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	insideWindow := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	afterWindow := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	if got := c.FindBitemporal(cell.TypeFact, insideWindow); len(got) != 1 {
		t.Fatalf("expected 1 fact inside validity window, got %d", len(got))
	}
	if got := c.FindBitemporal(cell.TypeFact, afterWindow); len(got) != 0 {
		t.Fatalf("expected 0 facts after validity window, got %d", len(got))
	}
}
