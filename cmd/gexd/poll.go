package main

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/optionflow/gexd/internal/gex"
	"github.com/optionflow/gexd/internal/notify"
	"github.com/optionflow/gexd/internal/snapshot"
)

func pollCmd() *cobra.Command {
	var currency string

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Periodically compute and archive GEX for a currency",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer func() { _ = logger.Sync() }()
			ctx := cmd.Context()

			if currency == "" {
				currency = cfg.Currency
			}
			currency = strings.ToUpper(currency)

			source, books, closeSource, err := newSource(ctx)
			if err != nil {
				logger.Error("failed to create market data source", zap.Error(err))
				return err
			}
			defer closeSource()

			if cfg.Archive.Enabled {
				source = &archivingSource{
					inner:  source,
					store:  snapshot.NewStore(cfg.Archive.Directory, logger),
					logger: logger,
				}
			}

			engine := newEngine(source, books)

			notifyCfg := notify.LoadConfig()
			if err := notifyCfg.Validate(); err != nil {
				logger.Error("invalid notification config", zap.Error(err))
				return err
			}
			notifier := notify.NewClient(notifyCfg, logger)

			interval := time.Duration(cfg.Poll.IntervalSec) * time.Second
			logger.Info("poll daemon started",
				zap.String("currency", currency),
				zap.Duration("interval", interval),
			)

			// First run immediately, then on the ticker.
			runOnce(ctx, engine, notifier, currency)

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					logger.Info("poll daemon stopping")
					return nil
				case <-ticker.C:
					runOnce(ctx, engine, notifier, currency)
				}
			}
		},
	}

	cmd.Flags().StringVar(&currency, "currency", "", "underlying currency (defaults to config)")

	return cmd
}

func runOnce(ctx context.Context, engine *gex.Engine, notifier notify.Notifier, currency string) {
	start := time.Now()

	result, err := engine.Compute(ctx, currency)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error("computation failed",
			zap.String("currency", currency),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		if nerr := notifier.SendFailure(ctx, currency, duration, err); nerr != nil {
			logger.Warn("failure notification failed", zap.Error(nerr))
		}
		return
	}

	logger.Info("computation complete",
		zap.String("currency", currency),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", duration),
	)
	if nerr := notifier.SendSuccess(ctx, currency, result, duration); nerr != nil {
		logger.Warn("success notification failed", zap.Error(nerr))
	}
}
