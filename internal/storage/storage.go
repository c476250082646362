package storage

import (
	"context"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
)

// Store is the pipeline's persistence sink. All writes are idempotent:
// event rows upsert on their natural (tx hash, log index, kind, address)
// key, snapshot-style rows are append-only per cycle, and re-writing the
// same record must neither duplicate nor error. Implementations must be
// safe for concurrent writers; per-pool cycles run in parallel.
type Store interface {
	UpsertEvents(ctx context.Context, events []model.EventRecord) error
	UpsertDecodeFailures(ctx context.Context, failures []model.DecodeFailure) error
	AppendSnapshot(ctx context.Context, snapshot model.PoolSnapshot) error
	UpsertPositions(ctx context.Context, positions []model.WalletPosition) error
	AppendConcentration(ctx context.Context, stats model.ConcentrationStats) error
	AppendWashSuspects(ctx context.Context, suspects []model.WashTradeSuspect) error

	// LoadEvents returns every stored event row for one contract address in
	// (block number, log index) order. The driver replays them on startup
	// so derived state survives process restarts.
	LoadEvents(ctx context.Context, address string) ([]model.EventRecord, error)

	// Checkpoints track the last processed block per pool so cycles and
	// backfills resume instead of re-scanning.
	LoadCheckpoint(ctx context.Context, pool string) (uint64, bool, error)
	SaveCheckpoint(ctx context.Context, pool string, block uint64) error

	Close()
}
