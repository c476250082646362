package metrics

import (
	"time"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
)

// Trade is one wallet-attributed swap in decimal units, the input to PnL
// folding and the wash-trading screen.
type Trade struct {
	Wallet      string
	TxHash      string
	Time        time.Time
	IsBuy       bool
	BaseAmount  float64
	QuoteAmount float64
	ValueUSD    float64
}

// FoldSwap folds one trade into a running position. Folding is
// order-dependent: callers must apply trades in non-decreasing
// (block number, log index) order or win rate and realized PnL drift.
//
// Realized PnL is cumulative revenue minus cumulative cost, not FIFO/LIFO
// lot matching; a trade counts as "winning" when cumulative revenue exceeds
// cumulative cost at the moment it lands. Both are coarse by intent and
// kept compatible with the numbers the upstream system reports.
func FoldSwap(position *model.WalletPosition, trade Trade) {
	if trade.IsBuy {
		position.BaseBalance += trade.BaseAmount
		position.QuoteBalance -= trade.QuoteAmount
		position.TotalCostUSD += trade.ValueUSD
	} else {
		position.BaseBalance -= trade.BaseAmount
		position.QuoteBalance += trade.QuoteAmount
		position.TotalRevenueUSD += trade.ValueUSD
	}

	position.RealizedPnLUSD = position.TotalRevenueUSD - position.TotalCostUSD
	position.TradeCount++
	if position.TotalRevenueUSD > position.TotalCostUSD {
		position.WinCount++
	}
}

// Valuate marks a position to current prices. Unrealized PnL is recomputed
// every cycle even without new trades; it stays nil while either leg is
// unpriced.
func Valuate(position *model.WalletPosition, basePriceUSD, quotePriceUSD *float64) {
	if basePriceUSD == nil || quotePriceUSD == nil {
		position.UnrealizedUSD = nil
		return
	}
	unrealized := position.BaseBalance**basePriceUSD + position.QuoteBalance**quotePriceUSD
	position.UnrealizedUSD = &unrealized
}

// PositionBook tracks per-wallet positions for one pool.
type PositionBook struct {
	chainID   uint64
	pool      string
	positions map[string]*model.WalletPosition
}

func NewPositionBook(chainID uint64, pool string) *PositionBook {
	return &PositionBook{
		chainID:   chainID,
		pool:      pool,
		positions: make(map[string]*model.WalletPosition),
	}
}

// Fold applies a trade to its wallet's position, creating it on first sight.
func (b *PositionBook) Fold(trade Trade) *model.WalletPosition {
	position, ok := b.positions[trade.Wallet]
	if !ok {
		position = &model.WalletPosition{
			ChainID:     b.chainID,
			PoolAddress: b.pool,
			Wallet:      trade.Wallet,
		}
		b.positions[trade.Wallet] = position
	}
	FoldSwap(position, trade)
	return position
}

// Positions returns all tracked positions valuated at current prices.
func (b *PositionBook) Positions(basePriceUSD, quotePriceUSD *float64) []model.WalletPosition {
	out := make([]model.WalletPosition, 0, len(b.positions))
	for _, position := range b.positions {
		Valuate(position, basePriceUSD, quotePriceUSD)
		out = append(out, *position)
	}
	return out
}
