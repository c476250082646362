package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
)

// Store persists pipeline output in Postgres. Event rows dedup on their
// natural key with insert-or-ignore; derived metrics append one row per
// cycle; wallet positions upsert with later-values-win. Concurrent pool
// cycles rely on these per-statement guarantees, not on an in-process lock.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertEvents writes decoded event rows; re-writing an existing natural
// key is a no-op.
func (s *Store) UpsertEvents(ctx context.Context, events []model.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		batch.Queue(`
			INSERT INTO pool_events (
				chain_id, block_number, tx_hash, log_index, address, event_kind, block_ts, payload, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, to_timestamp($7), $8, now())
			ON CONFLICT (tx_hash, log_index, event_kind, address) DO NOTHING
		`,
			int64(event.ChainID),
			int64(event.BlockNumber),
			event.TxHash,
			int64(event.LogIndex),
			event.Address,
			string(event.EventKind),
			int64(event.Timestamp),
			[]byte(event.Payload),
		)
	}
	return s.sendBatch(ctx, batch, len(events))
}

// UpsertDecodeFailures records per-log decode failures for review.
func (s *Store) UpsertDecodeFailures(ctx context.Context, failures []model.DecodeFailure) error {
	if len(failures) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, failure := range failures {
		batch.Queue(`
			INSERT INTO decode_failures (
				chain_id, block_number, tx_hash, log_index, address, topic0, kind, error, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (tx_hash, log_index) DO UPDATE SET
				kind = EXCLUDED.kind,
				error = EXCLUDED.error
		`,
			int64(failure.ChainID),
			int64(failure.BlockNumber),
			failure.TxHash,
			int64(failure.LogIndex),
			failure.Address,
			failure.Topic0,
			failure.Kind,
			failure.Error,
		)
	}
	return s.sendBatch(ctx, batch, len(failures))
}

// AppendSnapshot stores one pool snapshot row. Snapshots are an append-only
// time series; "current" state is the most recent row.
func (s *Store) AppendSnapshot(ctx context.Context, snapshot model.PoolSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_snapshots (
			chain_id, pool_address, reserve0, reserve1, price, tvl_usd, ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chain_id, pool_address, ts) DO NOTHING
	`,
		int64(snapshot.ChainID),
		snapshot.PoolAddress,
		snapshot.Reserve0,
		snapshot.Reserve1,
		snapshot.Price,
		snapshot.TVLUSD,
		snapshot.Timestamp,
	)
	return err
}

// UpsertPositions writes wallet positions with later values winning.
func (s *Store) UpsertPositions(ctx context.Context, positions []model.WalletPosition) error {
	if len(positions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, position := range positions {
		batch.Queue(`
			INSERT INTO wallet_positions (
				chain_id, pool_address, wallet, base_balance, quote_balance,
				total_cost_usd, total_revenue_usd, realized_pnl_usd, unrealized_pnl_usd,
				trade_count, win_count, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
			ON CONFLICT (chain_id, pool_address, wallet) DO UPDATE SET
				base_balance = EXCLUDED.base_balance,
				quote_balance = EXCLUDED.quote_balance,
				total_cost_usd = EXCLUDED.total_cost_usd,
				total_revenue_usd = EXCLUDED.total_revenue_usd,
				realized_pnl_usd = EXCLUDED.realized_pnl_usd,
				unrealized_pnl_usd = EXCLUDED.unrealized_pnl_usd,
				trade_count = EXCLUDED.trade_count,
				win_count = EXCLUDED.win_count,
				updated_at = now()
		`,
			int64(position.ChainID),
			position.PoolAddress,
			position.Wallet,
			position.BaseBalance,
			position.QuoteBalance,
			position.TotalCostUSD,
			position.TotalRevenueUSD,
			position.RealizedPnLUSD,
			position.UnrealizedUSD,
			int64(position.TradeCount),
			int64(position.WinCount),
		)
	}
	return s.sendBatch(ctx, batch, len(positions))
}

// AppendConcentration stores one concentration row per cycle.
func (s *Store) AppendConcentration(ctx context.Context, stats model.ConcentrationStats) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO holder_concentration (
			chain_id, pool_address, holder_count, top10_pct, top25_pct, top50_pct, top100_pct,
			gini_coefficient, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (chain_id, pool_address, computed_at) DO NOTHING
	`,
		int64(stats.ChainID),
		stats.PoolAddress,
		stats.HolderCount,
		stats.Top10Pct,
		stats.Top25Pct,
		stats.Top50Pct,
		stats.Top100Pct,
		stats.Gini,
		stats.ComputedAt,
	)
	return err
}

// AppendWashSuspects stores this cycle's wash-trade suspects.
func (s *Store) AppendWashSuspects(ctx context.Context, suspects []model.WashTradeSuspect) error {
	if len(suspects) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, suspect := range suspects {
		batch.Queue(`
			INSERT INTO wash_trade_suspects (
				chain_id, pool_address, wallet, related_wallets, suspicious_tx_count,
				circular_volume_usd, confidence_score, window_start, window_end, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
			ON CONFLICT (chain_id, pool_address, wallet, window_end) DO UPDATE SET
				related_wallets = EXCLUDED.related_wallets,
				suspicious_tx_count = EXCLUDED.suspicious_tx_count,
				circular_volume_usd = EXCLUDED.circular_volume_usd,
				confidence_score = EXCLUDED.confidence_score
		`,
			int64(suspect.ChainID),
			suspect.PoolAddress,
			suspect.Wallet,
			suspect.RelatedWallets,
			int64(suspect.SuspiciousTxs),
			suspect.CircularVolume,
			suspect.ConfidenceScore,
			suspect.WindowStart,
			suspect.WindowEnd,
		)
	}
	return s.sendBatch(ctx, batch, len(suspects))
}

// LoadEvents returns the stored event rows for one contract address in
// (block number, log index) order, ready for replay.
func (s *Store) LoadEvents(ctx context.Context, address string) ([]model.EventRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, block_number, tx_hash, log_index, address, event_kind,
		       extract(epoch FROM block_ts)::bigint, payload
		FROM pool_events
		WHERE lower(address) = lower($1)
		ORDER BY block_number, log_index
	`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EventRecord
	for rows.Next() {
		var (
			chainID, blockNumber, logIndex, blockTS int64
			kind                                    string
			payload                                 []byte
			record                                  model.EventRecord
		)
		if err := rows.Scan(&chainID, &blockNumber, &record.TxHash, &logIndex, &record.Address, &kind, &blockTS, &payload); err != nil {
			return nil, err
		}
		record.ChainID = uint64(chainID)
		record.BlockNumber = uint64(blockNumber)
		record.LogIndex = uint64(logIndex)
		record.EventKind = model.EventKind(kind)
		record.Timestamp = uint64(blockTS)
		record.Payload = payload
		out = append(out, record)
	}
	return out, rows.Err()
}

// LoadCheckpoint returns the last processed block for a pool.
func (s *Store) LoadCheckpoint(ctx context.Context, pool string) (uint64, bool, error) {
	if pool == "" {
		return 0, false, fmt.Errorf("pool address required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM pipeline_state WHERE pool_address=$1`, pool)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveCheckpoint upserts the last processed block for a pool.
func (s *Store) SaveCheckpoint(ctx context.Context, pool string, block uint64) error {
	if pool == "" {
		return fmt.Errorf("pool address required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_state (pool_address, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (pool_address) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, pool, int64(block))
	return err
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, size int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < size; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
