package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/chain"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/config"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/dex"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/driver"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/oracle"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/storage"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "analytics",
		Short:        "DEX pool analytics pipeline",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Poll tracked pools and derive metrics continuously",
		RunE:  runAnalytics,
	}
	addCommonFlags(runCmd)
	runCmd.Flags().Duration("interval", time.Minute, "poll interval")
	runCmd.Flags().Uint64("lookback", 2000, "blocks to look back on first run")

	root.AddCommand(runCmd)

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Process an explicit historical block range once",
		RunE:  runBackfill,
	}
	addCommonFlags(backfillCmd)
	backfillCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	backfillCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")

	root.AddCommand(backfillCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN; empty selects JSONL output")
	cmd.Flags().String("out", "./data", "output directory for JSONL storage")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per eth_getLogs batch")
	cmd.Flags().Duration("wash-window", 24*time.Hour, "trailing window for wash-trade screening")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().Int("workers", 0, "pool cycle workers, 0 means one per pool")
	cmd.Flags().String("oracle-url", "", "price oracle base URL; empty disables USD pricing")
	cmd.Flags().Duration("oracle-ttl", 30*time.Second, "price cache TTL")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func runAnalytics(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadSetup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, _, cleanup, err := buildDriver(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("analytics start",
		zap.String("rpc", cfg.RPCURL),
		zap.Int("pools", len(cfg.Pools)),
		zap.Duration("interval", cfg.Interval),
		zap.Duration("wash_window", cfg.WashWindow),
		zap.Uint64("batch_size", cfg.BatchSize),
	)

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("analytics stop")
	return nil
}

func loadSetup(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func buildDriver(ctx context.Context, cfg config.Config, logger *zap.Logger) (*driver.Driver, *chain.Client, func(), error) {
	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect rpc: %w", err)
	}

	if err := resolvePoolMeta(ctx, chainClient, cfg.Pools, logger); err != nil {
		chainClient.Close()
		return nil, nil, nil, err
	}

	var store storage.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
	} else {
		store, err = storage.NewJSONLStore(cfg.OutDir)
	}
	if err != nil {
		chainClient.Close()
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	var prices oracle.PriceOracle
	if cfg.OracleURL != "" {
		prices = oracle.NewHTTPOracle(cfg.OracleURL, 10*time.Second, cfg.OracleTTL, logger)
	}

	d, err := driver.New(driver.Config{
		Pools:        cfg.Pools,
		Interval:     cfg.Interval,
		BatchSize:    cfg.BatchSize,
		Lookback:     cfg.Lookback,
		WashWindow:   cfg.WashWindow,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Workers:      cfg.Workers,
	}, chainClient, chainClient, prices, store, logger)
	if err != nil {
		store.Close()
		chainClient.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		store.Close()
		chainClient.Close()
	}
	return d, chainClient, cleanup, nil
}

// resolvePoolMeta fills in token symbols and decimals the config leaves
// blank, reading them from the token contracts.
func resolvePoolMeta(ctx context.Context, chainClient *chain.Client, pools []model.TrackedPool, logger *zap.Logger) error {
	cache := dex.NewTokenMetaCache()
	for i := range pools {
		pool := &pools[i]

		if pool.Token0Symbol == "" || pool.Decimals0 == 0 {
			meta, err := dex.FetchTokenMeta(ctx, chainClient, cache, common.HexToAddress(pool.Token0), logger)
			if err != nil {
				return fmt.Errorf("token0 metadata for pool %s: %w", pool.Address, err)
			}
			if pool.Token0Symbol == "" {
				pool.Token0Symbol = meta.Symbol
			}
			if pool.Decimals0 == 0 {
				pool.Decimals0 = meta.Decimals
			}
		}
		if pool.Token1Symbol == "" || pool.Decimals1 == 0 {
			meta, err := dex.FetchTokenMeta(ctx, chainClient, cache, common.HexToAddress(pool.Token1), logger)
			if err != nil {
				return fmt.Errorf("token1 metadata for pool %s: %w", pool.Address, err)
			}
			if pool.Token1Symbol == "" {
				pool.Token1Symbol = meta.Symbol
			}
			if pool.Decimals1 == 0 {
				pool.Decimals1 = meta.Decimals
			}
		}

		// V2 pools are their own LP token.
		if pool.LPToken == "" && pool.Protocol == model.ProtocolV2 {
			pool.LPToken = pool.Address
		}
		if pool.LPDecimals == 0 && pool.LPToken != "" {
			meta, err := dex.FetchTokenMeta(ctx, chainClient, cache, common.HexToAddress(pool.LPToken), logger)
			if err != nil {
				return fmt.Errorf("lp token metadata for pool %s: %w", pool.Address, err)
			}
			pool.LPDecimals = meta.Decimals
		}

		logger.Debug("pool metadata resolved",
			zap.String("pool", pool.Address),
			zap.String("token0", pool.Token0Symbol),
			zap.String("token1", pool.Token1Symbol),
			zap.Uint8("decimals0", pool.Decimals0),
			zap.Uint8("decimals1", pool.Decimals1),
		)
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
