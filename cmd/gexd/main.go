package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/optionflow/gexd/internal/config"
	"github.com/optionflow/gexd/internal/deribit"
	"github.com/optionflow/gexd/internal/gex"
)

var (
	cfgFile string
	verbose bool
	logger  *zap.Logger
	cfg     *config.Config
)

func setupLogger(verbose bool, logCfg *config.LoggingConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if verbose {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.DisableStacktrace = true
	}

	// Set log level from config
	if logCfg != nil && logCfg.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logCfg.Level)); err == nil {
			zapConfig.Level = zap.NewAtomicLevelAt(level)
		}
	}

	// Add file output if enabled
	if logCfg != nil && logCfg.Enabled {
		if err := os.MkdirAll(logCfg.Directory, 0755); err != nil {
			return nil, fmt.Errorf("creating logs directory: %w", err)
		}
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		logFile := filepath.Join(logCfg.Directory, fmt.Sprintf("gexd_%s.log", timestamp))
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, logFile)
	}

	return zapConfig.Build()
}

// newSource builds the configured Deribit transport. The WebSocket session
// needs an explicit Close; the HTTP client does not.
func newSource(ctx context.Context) (gex.Source, gex.OrderBookSource, func(), error) {
	timeout := time.Duration(cfg.Deribit.TimeoutSec) * time.Second

	if cfg.Deribit.Transport == "ws" {
		ws, err := deribit.DialWS(ctx, cfg.Deribit.WSURL, timeout, cfg.Deribit.RetryCount, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return ws, ws, func() { _ = ws.Close() }, nil
	}

	client := deribit.NewClient(cfg.Deribit.BaseURL, cfg.Deribit.RatePerSecond, timeout, cfg.Deribit.RetryCount, logger)
	return client, client, func() {}, nil
}

func newEngine(source gex.Source, books gex.OrderBookSource) *gex.Engine {
	opts := []gex.Option{
		gex.WithRiskFreeRate(cfg.Engine.RiskFreeRate),
		gex.WithTopN(cfg.Engine.TopN),
	}
	if cfg.Enrich.Enabled {
		opts = append(opts, gex.WithEnricher(gex.NewEnricher(books, cfg.Enrich.BatchSize, logger)))
	}
	return gex.NewEngine(source, logger, opts...)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "gexd",
		Short: "Compute aggregate options gamma exposure (GEX) from Deribit market data",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip config loading for help commands
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				var err error
				logger, err = setupLogger(verbose, nil)
				return err
			}

			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}

			logger, err = setupLogger(verbose, &cfg.Logging)
			if err != nil {
				return err
			}

			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("GEXD_CONFIG"), "config file path (or set GEXD_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(computeCmd())
	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(serveCmd())

	// Setup signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
