package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apexmedia/cdn-sync-agent/internal/api"
	"github.com/apexmedia/cdn-sync-agent/internal/cdn"
	"github.com/apexmedia/cdn-sync-agent/internal/config"
	"github.com/apexmedia/cdn-sync-agent/internal/engine"
	"github.com/apexmedia/cdn-sync-agent/internal/metrics"
	"github.com/apexmedia/cdn-sync-agent/internal/notify"
	"github.com/apexmedia/cdn-sync-agent/internal/server"
	"github.com/apexmedia/cdn-sync-agent/internal/ws"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg, logger)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("port", cfg.Server.Port),
		zap.String("upstream", cfg.Upstream.BaseURL),
		zap.Int("workers", cfg.Engine.Workers),
		zap.Bool("wsEnabled", cfg.Server.WSEnabled),
		zap.Bool("notifyEnabled", cfg.Notify.Enabled),
	)

	transport := api.NewClient(
		cfg.Upstream.BaseURL,
		cfg.Upstream.AccessKey,
		cfg.Upstream.RatePerSecond,
		cfg.Upstream.Timeout(),
		cfg.Upstream.CompressMinBytes,
		logger,
	)

	recorder := metrics.NewRecorder()
	sinks := engine.MultiEvents{recorder}

	// WebSocket event stream (optional)
	var wsHandler http.HandlerFunc
	var hub *ws.Hub
	if cfg.Server.WSEnabled {
		hub = ws.NewHub(logger)
		go hub.Run(ctx)
		sinks = append(sinks, ws.NewBroadcaster(hub))
		wsHandler = hub.HandleWS
	}

	if cfg.Notify.Enabled {
		sinks = append(sinks, notify.NewClient(&cfg.Notify, logger))
	}

	eng := engine.New(transport, engine.Config{
		Workers:     cfg.Engine.Workers,
		PostTimeout: cfg.Engine.PostTimeout(),
		RetryDelay:  cfg.Engine.RetryDelay(),
	}, logger, engine.WithEvents(sinks))

	cdnClient := cdn.NewClient(
		cfg.CDN.StorageURL,
		cfg.CDN.VideoURL,
		cfg.CDN.LibraryID,
		cfg.CDN.AccessKey,
		cfg.CDN.MetadataTTL(),
		logger,
	)

	srv := server.NewServer(eng, cdnClient, cfg.Server.AuthToken, logger)
	router := server.NewRouter(srv, recorder.Handler(), wsHandler, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting agent", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down agent...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new operations, let the in-flight drain settle.
	if err := eng.Shutdown(shutdownCtx); err != nil {
		logger.Warn("engine shutdown incomplete, abandoning pending operations", zap.Error(err))
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("agent stopped")
	return nil
}
