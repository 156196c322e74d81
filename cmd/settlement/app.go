package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/bank-settlement/internal/batch"
	"github.com/example/bank-settlement/internal/breaker"
	"github.com/example/bank-settlement/internal/config"
	"github.com/example/bank-settlement/internal/crypto"
	"github.com/example/bank-settlement/internal/recon"
	"github.com/example/bank-settlement/internal/store"
	"github.com/example/bank-settlement/internal/transport"
	"github.com/example/bank-settlement/internal/upload"
	"github.com/example/bank-settlement/pkg/audit"
)

// app wires every component behind the CLI commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  store.Store
	trail  *audit.Trail

	manager *batch.Manager
	orch    *upload.Orchestrator
	engine  *recon.Engine

	close func()
}

func newApp(ctx context.Context) (*app, error) {
	// A local .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	sealer, err := crypto.NewSealerFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load master key: %w", err)
	}
	var storeOpts []store.Option
	if sealer != nil {
		storeOpts = append(storeOpts, store.WithSealer(sealer))
	}

	var (
		st      store.Store
		closeFn func()
	)
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL, storeOpts...)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		st, closeFn = pg, func() { pg.Close() }
	} else {
		sq, err := store.OpenSQLite(cfg.SQLitePath, storeOpts...)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		st, closeFn = sq, func() { sq.Close() }
	}

	tr := transport.New(
		&transport.SSHDialer{ConnectTimeout: 15 * time.Second},
		breaker.NewRegistry(),
		logger,
		transport.Options{Timeout: cfg.SFTPTimeout, PoolSize: cfg.SFTPPoolSize},
	)
	trail := audit.NewTrail()

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		trail:   trail,
		manager: batch.NewManager(st, trail, logger),
		orch:    upload.NewOrchestrator(st, tr, trail, logger),
		engine:  recon.NewEngine(st, tr, trail, logger),
		close:   closeFn,
	}, nil
}
