package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/decisiongraph/ledger/internal/cell"
)

// GenesisCmd bootstraps a new chain: a fresh storage root (or one that
// does not yet contain a WAL) gets a single Genesis cell, the root of
// every subsequent append.
type GenesisCmd struct {
	GraphID       string `help:"Graph id for the new chain. Generated if omitted."`
	RootNamespace string `required:"" help:"Root namespace recorded on the Genesis cell, e.g. banking_aml."`
	Creator       string `required:"" help:"Identity credited as the chain's creator."`
	HashScheme    string `default:"HASH_SCHEME_CANONICAL" enum:"HASH_SCHEME_CANONICAL,HASH_SCHEME_LEGACY" help:"Hash scheme this chain commits under."`
}

func (g *GenesisCmd) Run(app *appContext) error {
	graphID := g.GraphID
	if graphID == "" {
		graphID = uuid.NewString()
	}

	params := cell.GenesisParams{
		GraphID:       graphID,
		HashScheme:    cell.HashScheme(g.HashScheme),
		RootNamespace: g.RootNamespace,
		Creator:       g.Creator,
		SystemTime:    time.Now().UTC(),
	}

	genesis, err := cell.NewGenesis(params)
	if err != nil {
		return err
	}

	if err := appendToWAL(app.ctx, app.cfg.StorageRoot, genesis, app.cfg.WALSegmentCap); err != nil {
		return err
	}

	app.logger.Info("genesis committed", "graph_id", graphID, "cell_id", genesis.CellID)
	out, _ := json.MarshalIndent(genesis, "", "  ")
	fmt.Println(string(out))
	return nil
}
