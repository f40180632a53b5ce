package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbsunset/dbsunset/internal/config"
	"github.com/dbsunset/dbsunset/internal/dashboard"
	"github.com/dbsunset/dbsunset/internal/observability"
	"github.com/dbsunset/dbsunset/internal/worklog"
)

const serveShutdownTimeout = 5 * time.Second

// ServeCommand holds configuration for the serve command.
type ServeCommand struct {
	addr        string
	configPath  string
	snapshotDir string
}

// NewServeCommand creates the serve subcommand: an HTTP server over saved
// workflow snapshots with health, metrics, snapshot and dashboard endpoints.
func NewServeCommand() *cobra.Command {
	sc := &ServeCommand{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve workflow logs and dashboards over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sc.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&sc.addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().StringVar(&sc.configPath, "config", "", "path to a .dbsunset config file")
	cmd.Flags().StringVar(&sc.snapshotDir, "snapshot-dir", "", "directory with workflow log snapshots")

	return cmd
}

// Run starts the server and blocks until interrupted.
func (sc *ServeCommand) Run(ctx context.Context) error {
	cfg, err := config.LoadConfig(sc.configPath)
	if err != nil {
		return err
	}

	addr := sc.addr
	if addr == "" {
		addr = cfg.Serve.Addr
	}

	snapshotDir := sc.snapshotDir
	if snapshotDir == "" {
		snapshotDir = cfg.Snapshot.Dir
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.Mode = observability.ModeServe

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
		defer cancel()

		_ = providers.Shutdown(shutdownCtx)
	}()

	slog.SetDefault(providers.Logger)

	_, err = observability.NewSchedulerMetrics(providers.Meter)
	if err != nil {
		slog.Warn("scheduler metrics unavailable", "error", err)
	}

	var store *worklog.Store
	if snapshotDir != "" {
		store = worklog.NewStore(snapshotDir, cfg.Snapshot.Compress)
	}

	server, err := dashboard.NewServer(worklog.NewRegistry(), store, providers.Tracer)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)

	go func() {
		slog.Info("dashboard server listening", "addr", addr, "snapshots", snapshotDir)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serve: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	}
}
