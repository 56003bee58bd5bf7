// Package chain implements the ordered, append-only, Genesis-rooted
// sequence of cells and the commit gate that guards every append.
package chain

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/decisiongraph/ledger/internal/cell"
	"github.com/decisiongraph/ledger/internal/ledgererr"
)

// AppendOptions controls the optional, per-call behavior of Append.
type AppendOptions struct {
	// VerifySignatures, if true, enforces rule 7: a cell with
	// Proof.SignatureRequired must carry a signature that validates
	// against Verifier.
	VerifySignatures bool
	// StrictTemporal, if true, turns rule 6 (temporal monotonicity) from
	// a warning into a hard TemporalViolation failure.
	StrictTemporal bool
}

// Verifier validates a cell's Proof. Chain does not know how to verify
// signatures itself; internal/signing supplies an implementation.
type Verifier interface {
	Verify(c cell.Cell) (bool, error)
}

// Chain is an in-memory, ordered sequence of cells rooted at one Genesis.
// It is not safe for concurrent writers; Append serializes internally but
// callers appending from multiple goroutines must still coordinate at a
// higher level (§5: single-writer per chain).
type Chain struct {
	mu         sync.RWMutex
	graphID    string
	hashScheme cell.HashScheme
	witnesses  *cell.WitnessSet
	cells      []cell.Cell
	byID       map[string]int
	logger     *slog.Logger
	verifier   Verifier
}

// New constructs an empty chain shell. Call Append with a Genesis cell to
// bootstrap it, or Import to load a previously serialized chain.
func New(logger *slog.Logger, verifier Verifier) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		byID:     make(map[string]int),
		logger:   logger,
		verifier: verifier,
	}
}

// Len returns the number of cells currently in the chain.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cells)
}

// GraphID returns the chain's bound graph identifier, empty before Genesis.
func (c *Chain) GraphID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graphID
}

// Head returns the current head cell and true, or the zero value and false
// if the chain is empty.
func (c *Chain) Head() (cell.Cell, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.cells) == 0 {
		return cell.Cell{}, false
	}
	return c.cells[len(c.cells)-1], true
}

// ByID performs an O(1) lookup by cell_id.
func (c *Chain) ByID(id string) (cell.Cell, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.byID[id]
	if !ok {
		return cell.Cell{}, false
	}
	return c.cells[idx], true
}

// FindByType performs a linear scan for all cells of the given type, in
// chain order.
func (c *Chain) FindByType(t cell.Type) []cell.Cell {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []cell.Cell
	for _, cl := range c.cells {
		if cl.Header.CellType == t {
			out = append(out, cl)
		}
	}
	return out
}

// TraceToGenesis walks prev_cell_hash links from id back to Genesis,
// returning cells in root-first order.
func (c *Chain) TraceToGenesis(id string) ([]cell.Cell, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var reversed []cell.Cell
	cur := id
	for {
		idx, ok := c.byID[cur]
		if !ok {
			return nil, ledgererr.New(ledgererr.CodeIntegrityFail, "cell not found while tracing to genesis").
				WithDetails(map[string]any{"cell_id": cur})
		}
		cl := c.cells[idx]
		reversed = append(reversed, cl)
		if cell.IsGenesis(cl) {
			break
		}
		cur = cl.Header.PrevCellHash
	}
	out := make([]cell.Cell, len(reversed))
	for i, cl := range reversed {
		out[len(reversed)-1-i] = cl
	}
	return out, nil
}

// FindBitemporal returns cells of type t whose header system_time is at
// or before asOf and, when the cell's Fact carries validity bounds,
// whose valid_from <= asOf < valid_to. Cells without validity bounds are
// always included once the system_time bound passes.
func (c *Chain) FindBitemporal(t cell.Type, asOf time.Time) []cell.Cell {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []cell.Cell
	for _, cl := range c.cells {
		if cl.Header.CellType != t {
			continue
		}
		if cl.Header.SystemTime.After(asOf) {
			continue
		}
		if cl.Fact.ValidFrom != nil && cl.Fact.ValidFrom.After(asOf) {
			continue
		}
		if cl.Fact.ValidTo != nil && !cl.Fact.ValidTo.After(asOf) {
			continue
		}
		out = append(out, cl)
	}
	return out
}

// Snapshot captures (head cell_id, length, ordered cell_ids) for the
// zero-contamination check (SHD-04): a shadow simulation must leave this
// tuple bit-identical.
type Snapshot struct {
	HeadCellID string
	Length     int
	CellIDs    []string
}

// TakeSnapshot returns the chain's current Snapshot.
func (c *Chain) TakeSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, len(c.cells))
	for i, cl := range c.cells {
		ids[i] = cl.CellID
	}
	head := ""
	if len(c.cells) > 0 {
		head = c.cells[len(c.cells)-1].CellID
	}
	return Snapshot{HeadCellID: head, Length: len(c.cells), CellIDs: ids}
}

// Equal reports whether two snapshots are bit-identical.
func (s Snapshot) Equal(other Snapshot) bool {
	if s.HeadCellID != other.HeadCellID || s.Length != other.Length || len(s.CellIDs) != len(other.CellIDs) {
		return false
	}
	for i := range s.CellIDs {
		if s.CellIDs[i] != other.CellIDs[i] {
			return false
		}
	}
	return true
}

// Append runs the commit gate's eight ordered rules (§4.3) and, on
// success, advances the chain head. Chain does no WAL I/O: WAL
// durability (rule 8) is left to the caller, which writes the cell
// through internal/segwal.Writer.
func (c *Chain) Append(cl cell.Cell, opts AppendOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(cl, opts)
}

func (c *Chain) appendLocked(cl cell.Cell, opts AppendOptions) error {
	// Rule 1: genesis rule.
	isGenesis := cell.IsGenesis(cl)
	if len(c.cells) == 0 {
		if !isGenesis {
			return ledgererr.New(ledgererr.CodeGenesisViolation, "first cell appended to an empty chain must be genesis")
		}
	} else if isGenesis {
		return ledgererr.New(ledgererr.CodeGenesisViolation, "only one genesis cell is allowed per chain")
	}

	// Rule 2: graph-id match.
	if len(c.cells) == 0 {
		if cl.Header.GraphID == "" {
			return ledgererr.New(ledgererr.CodeGraphIdMismatch, "genesis cell must declare a graph_id")
		}
	} else if cl.Header.GraphID != c.graphID {
		return ledgererr.New(ledgererr.CodeGraphIdMismatch, "cell graph_id does not match chain graph_id").
			WithDetails(map[string]any{"cell_graph_id": cl.Header.GraphID, "chain_graph_id": c.graphID})
	}

	// Rule 3: hash-scheme match.
	if len(c.cells) > 0 && cl.Header.HashScheme != c.hashScheme {
		return ledgererr.New(ledgererr.CodeHashSchemeMismatch, "cell hash_scheme diverges from chain hash_scheme").
			WithDetails(map[string]any{"cell_scheme": cl.Header.HashScheme, "chain_scheme": c.hashScheme})
	}

	// Rule 4: chain continuity.
	if len(c.cells) > 0 {
		head := c.cells[len(c.cells)-1]
		if cl.Header.PrevCellHash != head.CellID {
			return ledgererr.New(ledgererr.CodeChainBreak, "prev_cell_hash does not match current head").
				WithDetails(map[string]any{"expected": head.CellID, "got": cl.Header.PrevCellHash})
		}
	}

	// Rule 5: integrity.
	ok, err := cell.VerifyIntegrity(cl)
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeIntegrityFail, "failed to recompute cell_id", err)
	}
	if !ok {
		return ledgererr.New(ledgererr.CodeIntegrityFail, "cell_id does not match recomputed hash")
	}

	// Rule 6: temporal monotonicity (soft unless strict).
	if len(c.cells) > 0 {
		head := c.cells[len(c.cells)-1]
		if cl.Header.SystemTime.Before(head.Header.SystemTime) {
			if opts.StrictTemporal {
				return ledgererr.New(ledgererr.CodeTemporalViolation, "system_time decreased relative to head").
					WithDetails(map[string]any{"head_time": head.Header.SystemTime, "cell_time": cl.Header.SystemTime})
			}
			c.logger.Warn("chain: system_time decreased relative to head",
				slog.Time("head_time", head.Header.SystemTime),
				slog.Time("cell_time", cl.Header.SystemTime))
		}
	}

	// Rule 7: signature verification (opt-in).
	if opts.VerifySignatures && cl.Proof.SignatureRequired {
		if c.verifier == nil {
			return ledgererr.New(ledgererr.CodeSignatureInvalid, "signature required but no verifier configured")
		}
		valid, err := c.verifier.Verify(cl)
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeSignatureInvalid, "signature verification failed", err)
		}
		if !valid {
			return ledgererr.New(ledgererr.CodeSignatureInvalid, "signature did not validate")
		}
	}

	// Rule 8 (WAL durability) is not checked here; callers write the
	// cell to the WAL themselves through segwal.Writer.

	if len(c.cells) == 0 {
		c.graphID = cl.Header.GraphID
		c.hashScheme = cl.Header.HashScheme
	}
	c.byID[cl.CellID] = len(c.cells)
	c.cells = append(c.cells, cl)
	return nil
}

// wireChain is the JSON wire shape for a chain, re-validated on import.
type wireChain struct {
	GraphID    string          `json:"graph_id"`
	HashScheme cell.HashScheme `json:"hash_scheme"`
	Witnesses  *cell.WitnessSet `json:"witnesses,omitempty"`
	Cells      []cell.Cell     `json:"cells"`
}

// ToJSON serializes the chain. Re-importing the result with Import
// re-runs every commit-gate rule and yields a byte-equivalent chain.
func (c *Chain) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w := wireChain{
		GraphID:    c.graphID,
		HashScheme: c.hashScheme,
		Witnesses:  c.witnesses,
		Cells:      c.cells,
	}
	return json.Marshal(w)
}

// Import rebuilds a Chain from JSON produced by ToJSON, re-running the
// commit gate on every cell in order.
func Import(data []byte, logger *slog.Logger, verifier Verifier, opts AppendOptions) (*Chain, error) {
	var w wireChain
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeSchemaInvalid, "failed to parse chain JSON", err)
	}
	c := New(logger, verifier)
	c.witnesses = w.Witnesses
	for _, cl := range w.Cells {
		if err := c.appendLocked(cl, opts); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SetWitnesses attaches a bootstrap WitnessSet to the chain. Must be
// called before or immediately after Genesis is appended; it is stored
// alongside the chain but does not participate in cell hashing.
func (c *Chain) SetWitnesses(w cell.WitnessSet) error {
	if err := w.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.witnesses = &w
	return nil
}

// Witnesses returns the chain's bootstrap WitnessSet, if any.
func (c *Chain) Witnesses() *cell.WitnessSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.witnesses
}
