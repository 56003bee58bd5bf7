package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/decisiongraph/ledger/internal/cell"
	"github.com/decisiongraph/ledger/internal/chain"
	"github.com/decisiongraph/ledger/internal/config"
	"github.com/decisiongraph/ledger/internal/mcp"
	"github.com/decisiongraph/ledger/internal/precedent"
	"github.com/decisiongraph/ledger/internal/segwal"
	"github.com/decisiongraph/ledger/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := parseLogLevel(os.Getenv("LEDGER_LOG_LEVEL"))
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Info("ledger-mcp starting", "version", version, "storage_root", cfg.StorageRoot)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	c, err := loadChain(ctx, cfg.StorageRoot, logger)
	if err != nil {
		return fmt.Errorf("load chain: %w", err)
	}
	logger.Info("chain loaded", "length", c.Len())

	reg := precedent.New(c, logger)
	srv := mcp.New(c, reg, logger, version)

	logger.Info("ledger-mcp ready, serving tools over stdio")
	if err := mcpserver.ServeStdio(srv.MCPServer()); err != nil {
		return fmt.Errorf("mcp stdio serve: %w", err)
	}
	return nil
}

// loadChain rebuilds an in-memory chain from a WAL directory's segments,
// in WAL sequence order. An empty or missing storage root yields an empty
// chain rather than an error — a fresh deployment has nothing to replay
// yet.
func loadChain(ctx context.Context, storageRoot string, logger *slog.Logger) (*chain.Chain, error) {
	if _, err := os.Stat(storageRoot); os.IsNotExist(err) {
		logger.Warn("storage root does not exist, starting with an empty chain", "storage_root", storageRoot)
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
