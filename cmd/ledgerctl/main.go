// Command ledgerctl is the decision ledger's operator CLI: bootstrap a
// chain, append cells through the full commit gate, verify and replay
// a WAL directory, query precedent, and run shadow simulations. It is
// a thin skin over internal/chain, internal/segwal, internal/precedent
// and internal/shadow — no HTTP listener, no routing.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/decisiongraph/ledger/internal/config"
	"github.com/decisiongraph/ledger/internal/ledgererr"
)

// version is set at build time via -ldflags.
var version = "dev"

// cli is the root kong command set. Each subcommand's Run receives the
// shared app context via kong.Bind.
var cli struct {
	Genesis   GenesisCmd   `cmd:"" help:"Bootstrap a new chain and WAL directory with a Genesis cell."`
	Append    AppendCmd    `cmd:"" help:"Append a cell from a JSON file, running the full commit gate."`
	Verify    VerifyCmd    `cmd:"" help:"Walk a chain and verify every cell_id and hash link back to genesis."`
	Replay    ReplayCmd    `cmd:"" help:"Rebuild a chain from WAL segments and the manifest."`
	Precedent PrecedentCmd `cmd:"" help:"Run the L1->L2->L3 precedent query against a loaded domain."`
	Simulate  SimulateCmd  `cmd:"" help:"Fork a shadow chain, apply shadow facts, and run simulate_rfa."`
}

// appContext is the shared state every subcommand runs against.
type appContext struct {
	ctx    context.Context
	cfg    config.Config
	logger *slog.Logger
}

func main() {
	_ = godotenv.Load()

	level := parseLogLevel(os.Getenv("LEDGER_LOG_LEVEL"))
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(20)
	}

	app := &appContext{ctx: context.Background(), cfg: cfg, logger: logger}

	kctx := kong.Parse(&cli,
		kong.Name("ledgerctl"),
		kong.Description("Operator CLI for the deterministic decision ledger."),
		kong.Vars{"version": version},
		kong.UsageOnError(),
	)
	err = kctx.Run(app)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		exitForError(err)
	}
}

func parseLogLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// exitForError maps a returned error to the CLI's stable exit code (§7)
// and exits. main calls it in place of kong's FatalIfErrorf, so a
// *ledgererr.Error never collapses to kong's generic exit code 1.
func exitForError(err error) {
	if err == nil {
		return
	}
	var lerr *ledgererr.Error
	if asLedgerErr(err, &lerr) {
		os.Exit(ledgererr.Exit(lerr.Code))
	}
	os.Exit(20)
}

func asLedgerErr(err error, target **ledgererr.Error) bool {
	for err != nil {
		if le, ok := err.(*ledgererr.Error); ok {
			*target = le
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
