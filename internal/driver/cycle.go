package driver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/dex"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/metrics"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/oracle"
)

// logQuery is one eth_getLogs filter: a single contract and topic0.
type logQuery struct {
	address string
	topic0  string
}

// queriesFor maps a pool declaration to the log filters its tracked event
// kinds require.
func queriesFor(pool model.TrackedPool) []logQuery {
	var queries []logQuery
	if pool.Tracks(model.KindSwap) {
		queries = append(queries, logQuery{pool.Address, dex.V2SwapTopic})
	}
	if pool.Tracks(model.KindV3Liquidity) {
		queries = append(queries,
			logQuery{pool.Address, dex.V3MintTopic},
			logQuery{pool.Address, dex.V3BurnTopic},
		)
	}
	if pool.Tracks(model.KindV2Liquidity) && pool.LPToken != "" {
		queries = append(queries, logQuery{pool.LPToken, dex.TransferTopic})
	}
	if pool.Tracks(model.KindTransfer) {
		queries = append(queries,
			logQuery{pool.Token0, dex.TransferTopic},
			logQuery{pool.Token1, dex.TransferTopic},
		)
	}
	return queries
}

// runCycle advances one pool from its checkpoint to the chain head.
func (d *Driver) runCycle(ctx context.Context, pool model.TrackedPool) error {
	var latest uint64
	err := withRetry(ctx, d.cfg.MaxRetries, d.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		latest, err = d.source.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("latest block: %w", err)
	}

	from := d.startBlock(ctx, pool, latest)
	if from > latest {
		return nil
	}
	return d.processRange(ctx, pool, from, latest)
}

// startBlock resumes past the checkpoint, or starts a lookback window back
// from the head on the first cycle. A checkpoint read failure falls back to
// the lookback window rather than aborting the cycle: re-processing is safe
// because event writes are idempotent.
func (d *Driver) startBlock(ctx context.Context, pool model.TrackedPool, latest uint64) uint64 {
	checkpoint, ok, err := d.store.LoadCheckpoint(ctx, pool.Address)
	if err != nil {
		d.logger.Warn("checkpoint read failed", zap.String("pool", pool.Address), zap.Error(err))
	} else if ok {
		return checkpoint + 1
	}

	lookback := d.cfg.Lookback
	if lookback == 0 {
		lookback = d.cfg.BatchSize
	}
	if lookback >= latest {
		return 0
	}
	return latest - lookback
}

// processRange runs the full pipeline over [fromBlock, toBlock]: fetch,
// decode, fold, persist, checkpoint. Decoded events are applied in
// (block, logIndex) order regardless of fetch order.
func (d *Driver) processRange(ctx context.Context, pool model.TrackedPool, fromBlock, toBlock uint64) error {
	logs, err := d.fetchLogs(ctx, pool, fromBlock, toBlock)
	if err != nil {
		return err
	}

	events, records, failures := d.decodeAll(logs, pool)

	engine, ok := d.engines[pool.Address]
	if !ok {
		return fmt.Errorf("no engine for pool %s", pool.Address)
	}

	d.seedReserves(ctx, pool, engine)
	engine.SetPrices(d.lookupPrice(ctx, pool.Token0Symbol), d.lookupPrice(ctx, pool.Token1Symbol))
	for _, ev := range events {
		engine.Apply(ev)
	}

	now := time.Now().UTC()
	if len(records) > 0 {
		if err := d.store.UpsertEvents(ctx, records); err != nil {
			return fmt.Errorf("upsert events: %w", err)
		}
	}
	if len(failures) > 0 {
		if err := d.store.UpsertDecodeFailures(ctx, failures); err != nil {
			return fmt.Errorf("upsert decode failures: %w", err)
		}
	}
	if err := d.store.AppendSnapshot(ctx, engine.Snapshot(now)); err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	if positions := engine.Positions(); len(positions) > 0 {
		if err := d.store.UpsertPositions(ctx, positions); err != nil {
			return fmt.Errorf("upsert positions: %w", err)
		}
	}
	if err := d.store.AppendConcentration(ctx, engine.Concentration(now)); err != nil {
		return fmt.Errorf("append concentration: %w", err)
	}
	if suspects := engine.WashSuspects(now); len(suspects) > 0 {
		if err := d.store.AppendWashSuspects(ctx, suspects); err != nil {
			return fmt.Errorf("append wash suspects: %w", err)
		}
	}
	if err := d.store.SaveCheckpoint(ctx, pool.Address, toBlock); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	d.logger.Info("cycle complete",
		zap.String("pool", pool.Address),
		zap.Uint64("from", fromBlock),
		zap.Uint64("to", toBlock),
		zap.Int("events", len(records)),
		zap.Int("decode_failures", len(failures)))
	return nil
}

// fetchLogs collects logs for every query and batch of the range. Batches
// run sequentially per pool; concurrency lives at the pool level.
func (d *Driver) fetchLogs(ctx context.Context, pool model.TrackedPool, fromBlock, toBlock uint64) ([]model.RawLog, error) {
	ranges, err := SplitRange(fromBlock, toBlock, d.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	var logs []model.RawLog
	for _, r := range ranges {
		for _, q := range queriesFor(pool) {
			var batch []model.RawLog
			err := withRetry(ctx, d.cfg.MaxRetries, d.cfg.RetryBackoff, func(ctx context.Context) error {
				var err error
				batch, err = d.source.FetchLogs(ctx, q.address, r.From, r.To, q.topic0)
				return err
			})
			if err != nil {
				return nil, fmt.Errorf("fetch logs %s topic %s blocks %d-%d: %w", q.address, q.topic0, r.From, r.To, err)
			}
			logs = append(logs, batch...)
		}
	}
	return logs, nil
}

// decodeAll sorts logs into canonical (block, logIndex) order and decodes
// them. A malformed log is recorded and skipped; it never stops the batch.
func (d *Driver) decodeAll(logs []model.RawLog, pool model.TrackedPool) ([]model.Event, []model.EventRecord, []model.DecodeFailure) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].LogIndex < logs[j].LogIndex
	})

	var (
		events   []model.Event
		records  []model.EventRecord
		failures []model.DecodeFailure
	)
	for _, log := range logs {
		if log.Removed || !d.decoder.CanDecode(log.Topic0()) {
			continue
		}
		ev, err := d.decoder.Decode(log, pool)
		if err != nil {
			d.logger.Warn("log decode failed",
				zap.String("pool", pool.Address),
				zap.String("tx", log.TxHash),
				zap.Uint64("log_index", log.LogIndex),
				zap.Error(err))
			failures = append(failures, model.FailureFromLog(log, err))
			continue
		}
		record, err := model.RecordFromEvent(log.ChainID, ev)
		if err != nil {
			d.logger.Warn("event encode failed", zap.String("tx", log.TxHash), zap.Error(err))
			continue
		}
		events = append(events, ev)
		records = append(records, record)
	}
	return events, records, failures
}

// seedReserves refreshes the engine's reserve view from the chain when a
// reserve source is wired. Failure is tolerated: reserves folded from swap
// net flows keep the snapshot usable.
func (d *Driver) seedReserves(ctx context.Context, pool model.TrackedPool, engine *metrics.Engine) {
	if d.reserves == nil {
		return
	}
	var reserve0, reserve1 *big.Int
	err := withRetry(ctx, d.cfg.MaxRetries, d.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		reserve0, reserve1, err = d.reserves.PoolReserves(ctx, pool.Address, pool.Token0, pool.Token1)
		return err
	})
	if err != nil {
		d.logger.Warn("reserve refresh failed", zap.String("pool", pool.Address), zap.Error(err))
		return
	}
	engine.SeedReserves(reserve0, reserve1)
}

// lookupPrice returns the USD price for a symbol, or nil when the oracle is
// absent or has no quote. Metrics that need the missing leg degrade to nil
// instead of reporting zero.
func (d *Driver) lookupPrice(ctx context.Context, symbol string) *float64 {
	if d.prices == nil || symbol == "" {
		return nil
	}
	price, err := d.prices.USDPrice(ctx, symbol)
	if err != nil {
		if !errors.Is(err, oracle.ErrNoQuote) {
			d.logger.Warn("price lookup failed", zap.String("symbol", symbol), zap.Error(err))
		}
		return nil
	}
	return &price
}
