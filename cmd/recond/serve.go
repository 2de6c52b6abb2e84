package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardworks/recon/internal/config"
	"github.com/cardworks/recon/internal/ingestwatch"
	"github.com/cardworks/recon/internal/server"
	"github.com/cardworks/recon/internal/service"
	"github.com/cardworks/recon/internal/storage/sqlite"
	"github.com/cardworks/recon/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := telemetry.Init(ctx, "recond", Version); err != nil {
		log.Printf("telemetry disabled: %v", err)
	}
	defer telemetry.Shutdown(context.Background())

	store, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Seed(ctx); err != nil {
		return err
	}

	svc := service.New(store, cfg)
	srv := server.New(svc, cfg.Listen)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("listening on %s (db %s)", cfg.Listen, cfg.DBPath)
		return srv.Start(ctx)
	})
	if cfg.Watch.Enabled {
		w := ingestwatch.New(svc, cfg.Watch.Dir)
		g.Go(func() error {
			log.Printf("watching inbox %s", cfg.Watch.Dir)
			return w.Run(ctx)
		})
	}
	return g.Wait()
}
