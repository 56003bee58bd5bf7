package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/decisiongraph/ledger/internal/cell"
	"github.com/decisiongraph/ledger/internal/chain"
	"github.com/decisiongraph/ledger/internal/segwal"
)

func sha256Sum(b []byte) [32]byte { return sha256.Sum256(b) }

// loadChain rebuilds an in-memory chain from storageRoot's WAL segments,
// in WAL sequence order. A missing storage root yields an empty chain rather
// than an error, so `genesis` can target a fresh directory.
func loadChain(ctx context.Context, storageRoot string, logger *slog.Logger) (*chain.Chain, error) {
	if _, err := os.Stat(storageRoot); os.IsNotExist(err) {
		return chain.New(logger, nil), nil
	}
	if _, err := segwal.RecoverAndRebuild(ctx, storageRoot); err != nil {
		return nil, fmt.Errorf("wal recovery: %w", err)
	}
	records, err := segwal.ReadAll(storageRoot)
	if err != nil {
		return nil, fmt.Errorf("wal read: %w", err)
	}

	c := chain.New(logger, nil)
	for _, rec := range records {
		var cl cell.Cell
		if err := json.Unmarshal(rec.Payload, &cl); err != nil {
			return nil, fmt.Errorf("decode wal record %d: %w", rec.Sequence, err)
		}
		if err := c.Append(cl, chain.AppendOptions{}); err != nil {
			return nil, fmt.Errorf("replay cell %s: %w", cl.CellID, err)
		}
	}
	return c, nil
}

// appendToWAL writes cl's JSON encoding to storageRoot's WAL, opening
// (and thereby recovering) the directory first. Used by both `genesis`
// and `append`, which share the same durability requirement: the chain
// head must not advance until this returns nil (§4.3 rule 8).
func appendToWAL(ctx context.Context, storageRoot string, cl cell.Cell, segmentCap int64) error {
	payload, err := json.Marshal(cl)
	if err != nil {
		return fmt.Errorf("encode cell: %w", err)
	}
	w, err := segwal.Open(ctx, storageRoot, string(cl.Header.HashScheme), cl.Header.GraphID, segmentCap)
	if err != nil {
		return fmt.Errorf("open wal: %w", err)
	}
	defer w.Close()

	sum := sha256Sum(payload)
	if _, err := w.Append(payload, sum); err != nil {
		return fmt.Errorf("wal append: %w", err)
	}
	return nil
}

func readCellFile(path string) (cell.Cell, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cell.Cell{}, fmt.Errorf("read %s: %w", path, err)
	}
	var cl cell.Cell
	if err := json.Unmarshal(data, &cl); err != nil {
		return cell.Cell{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return cl, nil
}
