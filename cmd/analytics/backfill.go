package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runBackfill(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadSetup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	fromBlock, _ := cmd.Flags().GetUint64("from")
	toBlock, _ := cmd.Flags().GetUint64("to")
	if fromBlock == 0 {
		return fmt.Errorf("from block is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, chainClient, cleanup, err := buildDriver(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if toBlock == 0 {
		toBlock, err = chainClient.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("latest block: %w", err)
		}
	}
	if toBlock < fromBlock {
		return fmt.Errorf("to block %d is before from block %d", toBlock, fromBlock)
	}

	logger.Info("backfill start",
		zap.Uint64("from", fromBlock),
		zap.Uint64("to", toBlock),
		zap.Int("pools", len(cfg.Pools)),
	)

	if err := d.Backfill(ctx, fromBlock, toBlock); err != nil {
		return err
	}
	logger.Info("backfill complete")
	return nil
}
