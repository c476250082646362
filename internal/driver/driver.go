package driver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/dex"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/metrics"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/oracle"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/storage"
)

// LogSource yields raw logs for one contract and topic0 in a block range.
// Backed by an RPC client in production; the pipeline does not care how.
type LogSource interface {
	FetchLogs(ctx context.Context, address string, fromBlock, toBlock uint64, topic0 string) ([]model.RawLog, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// ReserveSource reads authoritative pool reserves. Optional: without it the
// driver relies on reserves folded from event net flows.
type ReserveSource interface {
	PoolReserves(ctx context.Context, pool, token0, token1 string) (*big.Int, *big.Int, error)
}

// Config holds runtime settings for the driver.
type Config struct {
	Pools        []model.TrackedPool
	Interval     time.Duration
	BatchSize    uint64
	Lookback     uint64
	WashWindow   time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Workers      int
}

// Driver runs the poll cycle per tracked pool: fetch logs, decode, fold
// metrics, persist. Pools share no mutable state, so cycles run
// concurrently on a worker pool; the store's own upsert guarantees handle
// concurrent writers.
type Driver struct {
	cfg      Config
	source   LogSource
	reserves ReserveSource
	prices   oracle.PriceOracle
	store    storage.Store
	decoder  *dex.Decoder
	logger   *zap.Logger

	engines map[string]*metrics.Engine
	workers pond.Pool

	restoreOnce sync.Once
	restoreErr  error
}

// New builds a Driver. reserves may be nil.
func New(cfg Config, source LogSource, reserves ReserveSource, prices oracle.PriceOracle, store storage.Store, logger *zap.Logger) (*Driver, error) {
	if source == nil {
		return nil, fmt.Errorf("log source is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if len(cfg.Pools) == 0 {
		return nil, fmt.Errorf("at least one tracked pool is required")
	}
	if cfg.BatchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.WashWindow <= 0 {
		cfg.WashWindow = 24 * time.Hour
	}
	if cfg.Workers <= 0 {
		cfg.Workers = len(cfg.Pools)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	engines := make(map[string]*metrics.Engine, len(cfg.Pools))
	for _, pool := range cfg.Pools {
		if _, ok := engines[pool.Address]; ok {
			return nil, fmt.Errorf("duplicate pool address %s", pool.Address)
		}
		engines[pool.Address] = metrics.NewEngine(pool, cfg.WashWindow, logger.With(zap.String("pool", pool.Address)))
	}

	return &Driver{
		cfg:      cfg,
		source:   source,
		reserves: reserves,
		prices:   prices,
		store:    store,
		decoder:  dex.NewDecoder(),
		logger:   logger,
		engines:  engines,
		workers:  pond.NewPool(cfg.Workers),
	}, nil
}

// restore replays persisted events into each pool's engine exactly once.
// Engines hold positions, the holder book, and the wash window only in
// memory, while the checkpoint persists; without a replay, a restarted
// process would recompute derived metrics from a truncated history and
// upsert them over richer stored rows.
func (d *Driver) restore(ctx context.Context) error {
	d.restoreOnce.Do(func() { d.restoreErr = d.replayStoredEvents(ctx) })
	return d.restoreErr
}

func (d *Driver) replayStoredEvents(ctx context.Context) error {
	for _, pool := range d.cfg.Pools {
		records, err := d.store.LoadEvents(ctx, pool.Address)
		if err != nil {
			return fmt.Errorf("load events for %s: %w", pool.Address, err)
		}
		if len(records) == 0 {
			continue
		}

		engine := d.engines[pool.Address]
		engine.SetPrices(d.lookupPrice(ctx, pool.Token0Symbol), d.lookupPrice(ctx, pool.Token1Symbol))
		replayed := 0
		for _, record := range records {
			event, err := model.EventFromRecord(record)
			if err != nil {
				d.logger.Warn("skipping unreadable event row",
					zap.String("pool", pool.Address),
					zap.String("tx", record.TxHash),
					zap.Error(err))
				continue
			}
			engine.Apply(event)
			replayed++
		}
		d.logger.Info("rebuilt engine state from stored events",
			zap.String("pool", pool.Address),
			zap.Int("events", replayed))
	}
	return nil
}

// Run polls every configured interval until the context is canceled. The
// first round runs immediately.
func (d *Driver) Run(ctx context.Context) error {
	defer d.workers.StopAndWait()

	if err := d.restore(ctx); err != nil {
		return err
	}

	d.poll(ctx)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *Driver) poll(ctx context.Context) {
	group := d.workers.NewGroupContext(ctx)
	for _, pool := range d.cfg.Pools {
		pool := pool
		group.Submit(func() {
			if err := d.runCycle(ctx, pool); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("poll cycle failed", zap.String("pool", pool.Address), zap.Error(err))
			}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		d.logger.Warn("poll round incomplete", zap.Error(err))
	}
}

// Backfill processes an explicit inclusive block range for every tracked
// pool, resuming past the stored checkpoint when one is ahead.
func (d *Driver) Backfill(ctx context.Context, fromBlock, toBlock uint64) error {
	if err := d.restore(ctx); err != nil {
		return err
	}

	for _, pool := range d.cfg.Pools {
		from := fromBlock
		if cp, ok, err := d.store.LoadCheckpoint(ctx, pool.Address); err != nil {
			return err
		} else if ok && cp >= from {
			from = cp + 1
		}
		if from > toBlock {
			d.logger.Info("nothing to backfill", zap.String("pool", pool.Address), zap.Uint64("from", from), zap.Uint64("to", toBlock))
			continue
		}
		if err := d.processRange(ctx, pool, from, toBlock); err != nil {
			return fmt.Errorf("backfill pool %s: %w", pool.Address, err)
		}
	}
	return nil
}
