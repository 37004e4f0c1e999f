package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/alphabot-ai/flapper/internal/auth"
	"github.com/alphabot-ai/flapper/internal/config"
	httpapp "github.com/alphabot-ai/flapper/internal/http"
	"github.com/alphabot-ai/flapper/internal/logging"
	"github.com/alphabot-ai/flapper/internal/store"
	"github.com/alphabot-ai/flapper/internal/store/postgres"
	"github.com/alphabot-ai/flapper/internal/store/sqlite"
)

const shutdownTimeout = 5 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"server"},
		Usage:   "run the API server (configured through FLAPPER_* environment variables)",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServer(c.Context, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config) error {
	log := logging.New(os.Stderr, cfg.Env, cfg.LogLevel)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.DBDriver, err)
	}
	defer st.Close()

	authSvc := auth.NewService(st, cfg.Secret, cfg.TokenTTL)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapp.NewServer(st, authSvc, log, cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "flapper listening", "addr", cfg.Addr, "env", cfg.Env, "driver", cfg.DBDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.DBDSN)
	case config.DriverSQLite:
		return sqlite.Open(cfg.DBDSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}
