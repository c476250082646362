package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
)

// JSONLStore appends records as JSON lines under a directory, one file per
// record family, and keeps checkpoints in a JSON sidecar. It exists for
// development runs without Postgres; upsert dedup happens in memory for the
// life of the process.
type JSONLStore struct {
	dir string

	mu          sync.Mutex
	seenEvents  map[string]struct{}
	checkpoints map[string]uint64
}

func NewJSONLStore(dir string) (*JSONLStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	store := &JSONLStore{
		dir:         dir,
		seenEvents:  make(map[string]struct{}),
		checkpoints: make(map[string]uint64),
	}
	if err := store.loadCheckpoints(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *JSONLStore) UpsertEvents(_ context.Context, events []model.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]interface{}, 0, len(events))
	for _, event := range events {
		key := fmt.Sprintf("%s:%d:%s:%s", event.TxHash, event.LogIndex, event.EventKind, strings.ToLower(event.Address))
		if _, ok := s.seenEvents[key]; ok {
			continue
		}
		s.seenEvents[key] = struct{}{}
		fresh = append(fresh, event)
	}
	return s.appendLines("events.jsonl", fresh)
}

func (s *JSONLStore) UpsertDecodeFailures(_ context.Context, failures []model.DecodeFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLines("decode_failures.jsonl", toAny(failures))
}

func (s *JSONLStore) AppendSnapshot(_ context.Context, snapshot model.PoolSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLines("pool_snapshots.jsonl", []interface{}{snapshot})
}

func (s *JSONLStore) UpsertPositions(_ context.Context, positions []model.WalletPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLines("wallet_positions.jsonl", toAny(positions))
}

func (s *JSONLStore) AppendConcentration(_ context.Context, stats model.ConcentrationStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLines("concentration.jsonl", []interface{}{stats})
}

func (s *JSONLStore) AppendWashSuspects(_ context.Context, suspects []model.WashTradeSuspect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLines("wash_suspects.jsonl", toAny(suspects))
}

// LoadEvents scans events.jsonl for rows addressed to the given contract,
// dropping duplicate natural keys left over from earlier runs, and returns
// them in replay order.
func (s *JSONLStore) LoadEvents(_ context.Context, address string) ([]model.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(filepath.Join(s.dir, "events.jsonl"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open events: %w", err)
	}
	defer file.Close()

	var out []model.EventRecord
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record model.EventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("parse event line: %w", err)
		}
		if !strings.EqualFold(record.Address, address) {
			continue
		}
		key := fmt.Sprintf("%s:%d:%s:%s", record.TxHash, record.LogIndex, record.EventKind, strings.ToLower(record.Address))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out, nil
}

func (s *JSONLStore) LoadCheckpoint(_ context.Context, pool string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	block, ok := s.checkpoints[strings.ToLower(pool)]
	return block, ok, nil
}

func (s *JSONLStore) SaveCheckpoint(_ context.Context, pool string, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[strings.ToLower(pool)] = block
	return s.flushCheckpoints()
}

func (s *JSONLStore) Close() {}

func (s *JSONLStore) appendLines(name string, records []interface{}) error {
	if len(records) == 0 {
		return nil
	}

	file, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", name, err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write %s newline: %w", name, err)
		}
	}
	return writer.Flush()
}

type checkpointFile struct {
	Checkpoints map[string]uint64 `json:"checkpoints"`
	UpdatedAt   string            `json:"updated_at"`
}

func (s *JSONLStore) checkpointPath() string {
	return filepath.Join(s.dir, "checkpoints.json")
}

func (s *JSONLStore) loadCheckpoints() error {
	data, err := os.ReadFile(s.checkpointPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read checkpoints: %w", err)
	}

	var parsed checkpointFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse checkpoints: %w", err)
	}
	for pool, block := range parsed.Checkpoints {
		s.checkpoints[strings.ToLower(pool)] = block
	}
	return nil
}

func (s *JSONLStore) flushCheckpoints() error {
	record := checkpointFile{
		Checkpoints: s.checkpoints,
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal checkpoints: %w", err)
	}

	tmp := s.checkpointPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoints tmp: %w", err)
	}
	if err := os.Rename(tmp, s.checkpointPath()); err != nil {
		return fmt.Errorf("rename checkpoints: %w", err)
	}
	return nil
}

func toAny[T any](items []T) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out
}
