package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/decisiongraph/ledger/internal/cell"
	"github.com/decisiongraph/ledger/internal/chain"
	"github.com/decisiongraph/ledger/internal/signing"
)

// AppendCmd loads a cell from a JSON file and runs it through the full
// commit gate. prev_cell_hash, system_time, and hash_scheme are filled
// in from the current chain state when the file omits them, so a caller
// only has to author the cell's own fact/logic_anchor/evidence content.
type AppendCmd struct {
	File string `arg:"" required:"" help:"Path to the cell JSON file."`
	Sign bool   `help:"Sign the cell with the configured signing key before appending."`
}

func (a *AppendCmd) Run(app *appContext) error {
	cl, err := readCellFile(a.File)
	if err != nil {
		return err
	}

	c, err := loadChain(app.ctx, app.cfg.StorageRoot, app.logger)
	if err != nil {
		return fmt.Errorf("load chain: %w", err)
	}

	if head, ok := c.Head(); ok {
		if cl.Header.PrevCellHash == "" {
			cl.Header.PrevCellHash = head.CellID
		}
		if cl.Header.HashScheme == "" {
			cl.Header.HashScheme = head.Header.HashScheme
		}
	} else if cl.Header.HashScheme == "" {
		return fmt.Errorf("append: chain is empty, cell must declare hash_scheme")
	}
	if cl.Header.GraphID == "" {
		cl.Header.GraphID = c.GraphID()
	}
	if cl.Header.SystemTime.IsZero() {
		cl.Header.SystemTime = time.Now().UTC()
	}
	cl.Header.SchemaVersion = 1

	if a.Sign {
		signer, err := signing.NewSigner(app.cfg.SigningPrivateKeyPath, app.cfg.SigningPublicKeyPath, app.cfg.SigningKeyID)
		if err != nil {
			return fmt.Errorf("signer: %w", err)
		}
		cl.Proof.SignatureRequired = true
		id, err := cell.ComputeCellID(cl)
		if err != nil {
			return err
		}
		cl.CellID = id
		sig, kid, err := signer.Sign(cl.CellID)
		if err != nil {
			return err
		}
		cl.Proof.Signature = sig
		cl.Proof.SignerKeyID = kid
	}

	id, err := cell.ComputeCellID(cl)
	if err != nil {
		return err
	}
	cl.CellID = id

	if err := c.Append(cl, chain.AppendOptions{StrictTemporal: app.cfg.StrictTemporal}); err != nil {
		return err
	}
	if err := appendToWAL(app.ctx, app.cfg.StorageRoot, cl, app.cfg.WALSegmentCap); err != nil {
		return err
	}

	app.logger.Info("cell appended", "cell_id", cl.CellID, "cell_type", cl.Header.CellType)
	out, _ := json.MarshalIndent(cl, "", "  ")
	fmt.Println(string(out))
	return nil
}
