package driver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/dex"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/oracle"
)

const (
	testPoolAddr = "0x36696169c63e42cd08ce11f5deebbcebae652050"
	testToken0   = "0x7130d2a12b9bcbfae4f2634d864a1ee1ce3ead9c"
	testToken1   = "0x55d398326f99059ff775485246999027b3197955"
	testWallet   = "0x00000000000000000000000000000000000000aa"
)

type fetchCall struct {
	address string
	topic0  string
	from    uint64
	to      uint64
}

type fakeSource struct {
	mu     sync.Mutex
	latest uint64
	logs   []model.RawLog
	calls  []fetchCall
}

func (f *fakeSource) FetchLogs(_ context.Context, address string, fromBlock, toBlock uint64, topic0 string) ([]model.RawLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{address: address, topic0: topic0, from: fromBlock, to: toBlock})

	var out []model.RawLog
	for _, log := range f.logs {
		if !strings.EqualFold(log.Address, address) {
			continue
		}
		if !strings.EqualFold(log.Topic0(), topic0) {
			continue
		}
		if log.BlockNumber < fromBlock || log.BlockNumber > toBlock {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func (f *fakeSource) LatestBlockNumber(_ context.Context) (uint64, error) {
	return f.latest, nil
}

type memStore struct {
	mu          sync.Mutex
	events      []model.EventRecord
	failures    []model.DecodeFailure
	snapshots   []model.PoolSnapshot
	positions   []model.WalletPosition
	stats       []model.ConcentrationStats
	suspects    []model.WashTradeSuspect
	checkpoints map[string]uint64
}

func newMemStore() *memStore {
	return &memStore{checkpoints: make(map[string]uint64)}
}

func (s *memStore) UpsertEvents(_ context.Context, events []model.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *memStore) UpsertDecodeFailures(_ context.Context, failures []model.DecodeFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failures...)
	return nil
}

func (s *memStore) AppendSnapshot(_ context.Context, snapshot model.PoolSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

func (s *memStore) UpsertPositions(_ context.Context, positions []model.WalletPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, positions...)
	return nil
}

func (s *memStore) AppendConcentration(_ context.Context, stats model.ConcentrationStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = append(s.stats, stats)
	return nil
}

func (s *memStore) AppendWashSuspects(_ context.Context, suspects []model.WashTradeSuspect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspects = append(s.suspects, suspects...)
	return nil
}

func (s *memStore) LoadEvents(_ context.Context, address string) ([]model.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.EventRecord
	for _, event := range s.events {
		if strings.EqualFold(event.Address, address) {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out, nil
}

func (s *memStore) LoadCheckpoint(_ context.Context, pool string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	block, ok := s.checkpoints[pool]
	return block, ok, nil
}

func (s *memStore) SaveCheckpoint(_ context.Context, pool string, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[pool] = block
	return nil
}

func (s *memStore) Close() {}

func testPool() model.TrackedPool {
	return model.TrackedPool{
		ChainID:      56,
		Address:      testPoolAddr,
		Protocol:     model.ProtocolV2,
		Token0:       testToken0,
		Token1:       testToken1,
		Token0Symbol: "BTCB",
		Token1Symbol: "USDT",
		Decimals0:    18,
		Decimals1:    18,
		LPToken:      testPoolAddr,
		LPDecimals:   18,
		Track:        []model.EventKind{model.KindSwap, model.KindV2Liquidity},
	}
}

func testConfig() Config {
	return Config{
		Pools:        []model.TrackedPool{testPool()},
		Interval:     time.Minute,
		BatchSize:    100,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
		WashWindow:   time.Hour,
		Workers:      1,
	}
}

func addrTopic(addr string) string {
	return "0x000000000000000000000000" + strings.TrimPrefix(strings.ToLower(addr), "0x")
}

func dataWords(values ...uint64) string {
	var b strings.Builder
	b.WriteString("0x")
	for _, v := range values {
		fmt.Fprintf(&b, "%064x", v)
	}
	return b.String()
}

func swapLog(block, logIndex uint64, amount0In, amount1Out uint64) model.RawLog {
	return model.RawLog{
		ChainID:        56,
		BlockNumber:    block,
		TxHash:         fmt.Sprintf("0xswap%d-%d", block, logIndex),
		LogIndex:       logIndex,
		Address:        testPoolAddr,
		Topics:         []string{dex.V2SwapTopic, addrTopic(testWallet), addrTopic(testWallet)},
		Data:           dataWords(amount0In, 0, 0, amount1Out),
		BlockTimestamp: 1_700_000_000 + block,
	}
}

func TestBackfillOrdersEvents(t *testing.T) {
	source := &fakeSource{
		latest: 12,
		logs: []model.RawLog{
			swapLog(12, 3, 1, 70),
			swapLog(10, 7, 2, 140),
			swapLog(11, 0, 3, 210),
			swapLog(10, 2, 4, 280),
		},
	}
	store := newMemStore()
	prices := &oracle.StaticOracle{Prices: map[string]float64{"BTCB": 70000, "USDT": 1}}

	d, err := New(testConfig(), source, nil, prices, store, zap.NewNop())
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	if err := d.Backfill(context.Background(), 10, 12); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	if len(store.events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(store.events))
	}
	for i := 1; i < len(store.events); i++ {
		prev, cur := store.events[i-1], store.events[i]
		if cur.BlockNumber < prev.BlockNumber ||
			(cur.BlockNumber == prev.BlockNumber && cur.LogIndex < prev.LogIndex) {
			t.Fatalf("events out of order at %d: (%d,%d) after (%d,%d)",
				i, cur.BlockNumber, cur.LogIndex, prev.BlockNumber, prev.LogIndex)
		}
	}

	if got := store.checkpoints[testPoolAddr]; got != 12 {
		t.Fatalf("checkpoint = %d, want 12", got)
	}
	if len(store.snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(store.snapshots))
	}
	if len(store.positions) == 0 {
		t.Fatalf("expected wallet positions after swaps")
	}
}

func TestBackfillSkipsMalformedLog(t *testing.T) {
	bad := swapLog(11, 1, 5, 350)
	bad.Data = dataWords(5, 0) // two words where the shape requires four

	source := &fakeSource{
		latest: 12,
		logs:   []model.RawLog{swapLog(10, 0, 1, 70), bad, swapLog(12, 0, 2, 140)},
	}
	store := newMemStore()

	d, err := New(testConfig(), source, nil, nil, store, zap.NewNop())
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	if err := d.Backfill(context.Background(), 10, 12); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	if len(store.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(store.events))
	}
	if len(store.failures) != 1 {
		t.Fatalf("expected 1 decode failure, got %d", len(store.failures))
	}
	failure := store.failures[0]
	if failure.Kind != string(model.MalformedData) {
		t.Fatalf("failure kind = %q, want %q", failure.Kind, model.MalformedData)
	}
	if failure.BlockNumber != 11 || failure.LogIndex != 1 {
		t.Fatalf("failure references wrong log: block %d index %d", failure.BlockNumber, failure.LogIndex)
	}
	if got := store.checkpoints[testPoolAddr]; got != 12 {
		t.Fatalf("checkpoint = %d, want 12", got)
	}
}

func TestBackfillResumesPastCheckpoint(t *testing.T) {
	source := &fakeSource{latest: 120}
	store := newMemStore()
	store.checkpoints[testPoolAddr] = 100

	d, err := New(testConfig(), source, nil, nil, store, zap.NewNop())
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	if err := d.Backfill(context.Background(), 50, 120); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	if len(source.calls) == 0 {
		t.Fatalf("expected log fetches")
	}
	for _, call := range source.calls {
		if call.from < 101 {
			t.Fatalf("fetched from block %d, want >= 101", call.from)
		}
	}
	if got := store.checkpoints[testPoolAddr]; got != 120 {
		t.Fatalf("checkpoint = %d, want 120", got)
	}
}

func TestRestartRebuildsPositionsFromStoredEvents(t *testing.T) {
	source := &fakeSource{
		latest: 11,
		logs:   []model.RawLog{swapLog(10, 0, 1, 70), swapLog(11, 0, 1, 70)},
	}
	store := newMemStore()
	prices := &oracle.StaticOracle{Prices: map[string]float64{"BTCB": 70000, "USDT": 1}}

	first, err := New(testConfig(), source, nil, prices, store, zap.NewNop())
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	if err := first.Backfill(context.Background(), 10, 11); err != nil {
		t.Fatalf("first backfill: %v", err)
	}
	if got := lastPosition(t, store, testWallet).TradeCount; got != 2 {
		t.Fatalf("trade count after first run = %d, want 2", got)
	}

	// New process over the same store: the engine starts empty and must
	// replay the two stored swaps before folding the third.
	source.latest = 12
	source.logs = append(source.logs, swapLog(12, 0, 1, 70))

	second, err := New(testConfig(), source, nil, prices, store, zap.NewNop())
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	if err := second.Backfill(context.Background(), 10, 12); err != nil {
		t.Fatalf("second backfill: %v", err)
	}

	position := lastPosition(t, store, testWallet)
	if position.TradeCount != 3 {
		t.Fatalf("trade count after restart = %d, want 3", position.TradeCount)
	}
	if position.TotalRevenueUSD <= 0 {
		t.Fatalf("expected cumulative revenue after replay, got %f", position.TotalRevenueUSD)
	}
	if got := store.checkpoints[testPoolAddr]; got != 12 {
		t.Fatalf("checkpoint = %d, want 12", got)
	}
}

func lastPosition(t *testing.T, store *memStore, wallet string) model.WalletPosition {
	t.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	for i := len(store.positions) - 1; i >= 0; i-- {
		if strings.EqualFold(store.positions[i].Wallet, wallet) {
			return store.positions[i]
		}
	}
	t.Fatalf("no stored position for wallet %s", wallet)
	return model.WalletPosition{}
}

func TestBackfillSkipsRemovedLogs(t *testing.T) {
	removed := swapLog(10, 1, 1, 70)
	removed.Removed = true

	source := &fakeSource{latest: 10, logs: []model.RawLog{removed}}
	store := newMemStore()

	d, err := New(testConfig(), source, nil, nil, store, zap.NewNop())
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	if err := d.Backfill(context.Background(), 10, 10); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	if len(store.events) != 0 {
		t.Fatalf("expected no events from removed logs, got %d", len(store.events))
	}
	if len(store.failures) != 0 {
		t.Fatalf("removed log is not a decode failure, got %d", len(store.failures))
	}
}
