package main

import (
	"encoding/json"
	"fmt"

	"github.com/decisiongraph/ledger/internal/cell"
	"github.com/decisiongraph/ledger/internal/ledgererr"
)

// VerifyCmd walks a chain from a cell back to genesis and recomputes
// every cell_id, reporting the first break it finds (or confirms none
// exist).
type VerifyCmd struct {
	CellID string `help:"Cell to verify back to genesis. Defaults to the chain's current head."`
}

func (v *VerifyCmd) Run(app *appContext) error {
	c, err := loadChain(app.ctx, app.cfg.StorageRoot, app.logger)
	if err != nil {
		return fmt.Errorf("load chain: %w", err)
	}

	cellID := v.CellID
	if cellID == "" {
		head, ok := c.Head()
		if !ok {
			return fmt.Errorf("verify: chain is empty")
		}
		cellID = head.CellID
	}

	lineage, err := c.TraceToGenesis(cellID)
	if err != nil {
		return fmt.Errorf("trace: %w", err)
	}

	var broken []string
	for _, cl := range lineage {
		ok, err := cell.VerifyIntegrity(cl)
		if err != nil || !ok {
			broken = append(broken, cl.CellID)
		}
	}

	result := map[string]any{
		"cell_id": cellID,
		"length":  len(lineage),
		"valid":   len(broken) == 0,
	}
	if len(broken) > 0 {
		result["broken_cell_ids"] = broken
	}
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	if len(broken) > 0 {
		return ledgererr.New(ledgererr.CodeIntegrityFail, fmt.Sprintf("%d cell(s) failed integrity check", len(broken))).
			WithDetails(map[string]any{"broken_cell_ids": broken})
	}
	return nil
}
