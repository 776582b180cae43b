package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"ragvault/internal/server"
	"ragvault/internal/usecase"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	Long: `Run the HTTP service with the ingestion worker and, when enabled, the
backup scheduler. SIGINT or SIGTERM stops the server, drains the worker and
saves the store.

Examples:
  ragvault serve
  ragvault serve --addr :9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	log := Logger()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	a, err := openApp(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.pipeline.Start(ctx)

	var scheduler *usecase.Scheduler
	if cfg.Backup.Enabled {
		scheduler = usecase.NewBackupScheduler(a.backups, cfg.Backup, log)
		go func() {
			if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("scheduler exited", "error", err)
			}
		}()
	}

	srv := server.New(cfg.Server, server.Deps{
		Store:         a.store,
		Gateway:       a.gateway,
		Pipeline:      a.pipeline,
		Search:        a.search,
		Backups:       a.backups,
		MaxUploadSize: cfg.Ingest.MaxFileSize,
		KeepDays:      cfg.Backup.KeepDays,
	}, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	log.Info("ragvault started", "vectors", a.store.Count(), "model", a.gateway.ModelName())

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Error("server failed", "error", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", "error", err)
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	a.pipeline.Close()

	if err := a.store.Save(); err != nil {
		return fmt.Errorf("failed to save store on shutdown: %w", err)
	}
	log.Info("store saved", "vectors", a.store.Count())
	return serveErr
}
