package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/optionflow/gexd/internal/config"
	"github.com/optionflow/gexd/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve GEX computations over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer func() { _ = logger.Sync() }()
			ctx := cmd.Context()

			serverCfg, err := config.LoadServerConfig()
			if err != nil {
				logger.Error("failed to load server config", zap.Error(err))
				return err
			}

			logger.Info("configuration loaded",
				zap.String("port", serverCfg.Port),
				zap.Duration("requestTimeout", serverCfg.RequestTimeout),
				zap.String("transport", cfg.Deribit.Transport),
				zap.Bool("enrichEnabled", cfg.Enrich.Enabled),
			)

			source, books, closeSource, err := newSource(ctx)
			if err != nil {
				logger.Error("failed to create market data source", zap.Error(err))
				return err
			}
			defer closeSource()

			engine := newEngine(source, books)
			srv := server.NewServer(engine, serverCfg, logger)

			router, err := server.NewRouter(srv, logger)
			if err != nil {
				logger.Error("failed to create router", zap.Error(err))
				return err
			}

			httpServer := &http.Server{
				Addr:         ":" + serverCfg.Port,
				Handler:      router,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: serverCfg.RequestTimeout + 30*time.Second,
			}

			// Start server in goroutine
			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting server", zap.String("addr", httpServer.Addr))
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				logger.Error("server error", zap.Error(err))
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down server...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
				return err
			}

			logger.Info("server stopped")
			return nil
		},
	}

	return cmd
}
