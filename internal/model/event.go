package model

import (
	"fmt"
	"math/big"
)

// EventKind discriminates decoded event variants.
type EventKind string

const (
	KindTransfer    EventKind = "transfer"
	KindSwap        EventKind = "swap"
	KindV2Liquidity EventKind = "v2_liquidity"
	KindV3Liquidity EventKind = "v3_liquidity"
)

// LiquidityKind classifies a liquidity change.
type LiquidityKind string

const (
	LiquidityMint          LiquidityKind = "mint"
	LiquidityBurn          LiquidityKind = "burn"
	LiquidityPlainTransfer LiquidityKind = "transfer"
)

// EventRef ties a decoded event back to its originating log. Together with
// the event kind and address it forms the natural dedup key.
type EventRef struct {
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Timestamp   uint64 `json:"timestamp"`
}

// Event is a decoded pool event. Consumers dispatch with a type switch over
// the concrete variants; decoding the same log always yields a structurally
// identical value.
type Event interface {
	Kind() EventKind
	Ref() EventRef
	DedupKey() string
}

// Transfer is a decoded ERC-20 Transfer. Amount is the raw integer before
// decimal scaling.
type Transfer struct {
	EventRef
	Token  string   `json:"token"`
	From   string   `json:"from"`
	To     string   `json:"to"`
	Amount *big.Int `json:"amount"`
}

func (t Transfer) Kind() EventKind { return KindTransfer }
func (t Transfer) Ref() EventRef   { return t.EventRef }
func (t Transfer) DedupKey() string {
	return dedupKey(t.EventRef, KindTransfer, t.Token)
}

// Swap is a decoded V2-style swap with net-flow amounts. For a simple pool
// exactly one of the in legs is nonzero; aggregated router calls may set
// both, and consumers must tolerate that.
type Swap struct {
	EventRef
	Pool       string   `json:"pool"`
	Sender     string   `json:"sender"`
	Recipient  string   `json:"recipient"`
	Amount0In  *big.Int `json:"amount0_in"`
	Amount1In  *big.Int `json:"amount1_in"`
	Amount0Out *big.Int `json:"amount0_out"`
	Amount1Out *big.Int `json:"amount1_out"`
}

func (s Swap) Kind() EventKind { return KindSwap }
func (s Swap) Ref() EventRef   { return s.EventRef }
func (s Swap) DedupKey() string {
	return dedupKey(s.EventRef, KindSwap, s.Pool)
}

// V2LiquidityChange is an LP-token movement on a fungible-LP pool.
type V2LiquidityChange struct {
	EventRef
	Pool     string        `json:"pool"`
	Change   LiquidityKind `json:"change"`
	From     string        `json:"from"`
	To       string        `json:"to"`
	LPAmount *big.Int      `json:"lp_amount"`
}

func (c V2LiquidityChange) Kind() EventKind { return KindV2Liquidity }
func (c V2LiquidityChange) Ref() EventRef   { return c.EventRef }
func (c V2LiquidityChange) DedupKey() string {
	return dedupKey(c.EventRef, KindV2Liquidity, c.Pool)
}

// V3LiquidityChange is a concentrated-liquidity Mint or Burn.
type V3LiquidityChange struct {
	EventRef
	Pool      string        `json:"pool"`
	Change    LiquidityKind `json:"change"`
	Owner     string        `json:"owner"`
	TickLower int32         `json:"tick_lower"`
	TickUpper int32         `json:"tick_upper"`
	Liquidity *big.Int      `json:"liquidity"`
	Amount0   *big.Int      `json:"amount0"`
	Amount1   *big.Int      `json:"amount1"`
}

func (c V3LiquidityChange) Kind() EventKind { return KindV3Liquidity }
func (c V3LiquidityChange) Ref() EventRef   { return c.EventRef }
func (c V3LiquidityChange) DedupKey() string {
	return dedupKey(c.EventRef, KindV3Liquidity, c.Pool)
}

func dedupKey(ref EventRef, kind EventKind, address string) string {
	return fmt.Sprintf("%s:%d:%s:%s", ref.TxHash, ref.LogIndex, kind, address)
}
