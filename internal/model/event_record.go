package model

import (
	"encoding/json"
	"fmt"
)

// EventRecord is the flattened storage row for a decoded event. The
// (tx_hash, log_index) pair plus kind and address is the natural uniqueness
// key; writing the same record twice must be a no-op at the store.
type EventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventKind   EventKind       `json:"event_kind"`
	Timestamp   uint64          `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

// EventFromRecord rebuilds the decoded event from its storage row. Stored
// events are the source of truth for derived state; replaying them through
// this function must reproduce the events decoding originally yielded.
func EventFromRecord(record EventRecord) (Event, error) {
	switch record.EventKind {
	case KindTransfer:
		var ev Transfer
		if err := json.Unmarshal(record.Payload, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal transfer payload: %w", err)
		}
		return ev, nil
	case KindSwap:
		var ev Swap
		if err := json.Unmarshal(record.Payload, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal swap payload: %w", err)
		}
		return ev, nil
	case KindV2Liquidity:
		var ev V2LiquidityChange
		if err := json.Unmarshal(record.Payload, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal v2 liquidity payload: %w", err)
		}
		return ev, nil
	case KindV3Liquidity:
		var ev V3LiquidityChange
		if err := json.Unmarshal(record.Payload, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal v3 liquidity payload: %w", err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", record.EventKind)
	}
}

// RecordFromEvent flattens a decoded event into its storage row.
func RecordFromEvent(chainID uint64, ev Event) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, fmt.Errorf("marshal event payload: %w", err)
	}

	var address string
	switch typed := ev.(type) {
	case Transfer:
		address = typed.Token
	case Swap:
		address = typed.Pool
	case V2LiquidityChange:
		address = typed.Pool
	case V3LiquidityChange:
		address = typed.Pool
	default:
		return EventRecord{}, fmt.Errorf("unknown event variant %T", ev)
	}

	ref := ev.Ref()
	return EventRecord{
		ChainID:     chainID,
		BlockNumber: ref.BlockNumber,
		TxHash:      ref.TxHash,
		LogIndex:    ref.LogIndex,
		Address:     address,
		EventKind:   ev.Kind(),
		Timestamp:   ref.Timestamp,
		Payload:     payload,
	}, nil
}
