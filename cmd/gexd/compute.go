package main

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/optionflow/gexd/internal/snapshot"
)

func computeCmd() *cobra.Command {
	var currency string

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Run one GEX computation and print the result as JSON",
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

			// Archive raw snapshots alongside the computation when enabled.
			if cfg.Archive.Enabled {
				source = &archivingSource{
					inner:  source,
					store:  snapshot.NewStore(cfg.Archive.Directory, logger),
					logger: logger,
				}
			}

			engine := newEngine(source, books)

			start := time.Now()
			result, err := engine.Compute(ctx, currency)
			if err != nil {
				logger.Error("computation failed",
					zap.String("currency", currency),
					zap.Error(err),
				)
				return err
			}

			logger.Info("done",
				zap.String("currency", currency),
				zap.Duration("duration", time.Since(start)),
			)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&currency, "currency", "", "underlying currency (defaults to config)")

	return cmd
}
