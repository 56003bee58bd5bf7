package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/decisiongraph/ledger/internal/cell"
	"github.com/decisiongraph/ledger/internal/domainmodel"
	"github.com/decisiongraph/ledger/internal/precedent"
	"github.com/decisiongraph/ledger/internal/shadow"
)

// SimulateCmd forks a shadow chain off the loaded base chain, indexes a
// file of shadow cells into its overlay, and re-executes the L2/L3
// precedent pipeline (simulate_rfa) against a case described in a facts
// file. Nothing here ever calls the base chain's Append (§4.10 SHD-04).
type SimulateCmd struct {
	Domain           string `required:"" help:"Domain registry id, e.g. banking_aml or insurance_claims."`
	NamespacePrefix  string `required:"" help:"Namespace prefix to scope the simulated precedent pool."`
	ShadowFactsFile  string `help:"Path to a JSON array of shadow cells to overlay. Omit to simulate against base precedent only."`
	CaseFactsFile    string `required:"" help:"Path to a JSON object of case facts."`
	CaseDisposition  string `required:"" help:"Disposition this case would receive, e.g. escalate."`
	CaseBasis        string `required:"" help:"Disposition basis for this case, e.g. DISCRETIONARY."`
	AsOf             string `help:"RFC 3339 timestamp pinning base reality. Defaults to now."`
	Workers          int    `default:"4" help:"Bounded concurrency for scoring."`
}

func (s *SimulateCmd) Run(app *appContext) error {
	domain, ok := domainmodel.Registered[s.Domain]
	if !ok {
		return fmt.Errorf("unknown domain %q", s.Domain)
	}

	c, err := loadChain(app.ctx, app.cfg.StorageRoot, app.logger)
	if err != nil {
		return fmt.Errorf("load chain: %w", err)
	}
	reg := precedent.New(c, app.logger)

	shadowChain, err := shadow.Fork(c, app.logger)
	if err != nil {
		return fmt.Errorf("fork: %w", err)
	}

	if s.ShadowFactsFile != "" {
		cells, err := readCellSlice(s.ShadowFactsFile)
		if err != nil {
			return err
		}
		for _, cl := range cells {
			if err := shadowChain.AppendShadow(cl); err != nil {
				return fmt.Errorf("append shadow cell %s: %w", cl.CellID, err)
			}
		}
	}

	caseFacts, err := readFactsMap(s.CaseFactsFile)
	if err != nil {
		return err
	}

	asOf := time.Now().UTC()
	if s.AsOf != "" {
		asOf, err = time.Parse(time.RFC3339, s.AsOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of: %w", err)
		}
	}

	input := shadow.RFAInput{
		CaseFacts:       caseFacts,
		CaseDisposition: s.CaseDisposition,
		CaseBasis:       s.CaseBasis,
		Domain:          domain,
		NamespacePrefix: s.NamespacePrefix,
		AsOfSystemTime:  asOf,
		Workers:         s.Workers,
	}

	result, err := shadowChain.SimulateRFA(app.ctx, reg, input)
	if err != nil {
		return fmt.Errorf("simulate_rfa: %w", err)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	return nil
}

func readCellSlice(path string) ([]cell.Cell, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var cells []cell.Cell
	if err := json.Unmarshal(data, &cells); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cells, nil
}

func readFactsMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var facts map[string]any
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return facts, nil
}
