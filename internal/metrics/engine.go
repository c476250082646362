package metrics

import (
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
)

// Engine folds decoded events for one tracked pool into running aggregates:
// reserves, wallet positions, the holder book, and the trailing trade window
// used by the wash-trading screen. It performs no I/O; the driver feeds it
// events in (block number, log index) order and collects the per-cycle
// outputs for storage.
type Engine struct {
	pool   model.TrackedPool
	logger *zap.Logger

	reserve0 *big.Int
	reserve1 *big.Int

	positions *PositionBook
	holders   *HolderBook

	window    []Trade
	windowDur time.Duration

	// Cycle prices; nil while the oracle has no quote.
	basePriceUSD  *float64
	quotePriceUSD *float64
}

func NewEngine(pool model.TrackedPool, windowDur time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		pool:      pool,
		logger:    logger,
		reserve0:  new(big.Int),
		reserve1:  new(big.Int),
		positions: NewPositionBook(pool.ChainID, pool.Address),
		holders:   NewHolderBook(),
		window:    make([]Trade, 0),
		windowDur: windowDur,
	}
}

// SeedReserves replaces tracked reserves with authoritative on-chain values.
func (e *Engine) SeedReserves(reserve0, reserve1 *big.Int) {
	if reserve0 != nil {
		e.reserve0 = new(big.Int).Set(reserve0)
	}
	if reserve1 != nil {
		e.reserve1 = new(big.Int).Set(reserve1)
	}
}

// SetPrices installs this cycle's oracle quotes. A nil quote marks the leg
// unpriced for the cycle; derived USD metrics degrade to nil rather than 0.
func (e *Engine) SetPrices(basePriceUSD, quotePriceUSD *float64) {
	e.basePriceUSD = basePriceUSD
	e.quotePriceUSD = quotePriceUSD
}

// Apply folds one decoded event. Events must arrive in non-decreasing
// (block number, log index) order; position folding is order-dependent.
func (e *Engine) Apply(event model.Event) {
	switch typed := event.(type) {
	case model.Swap:
		e.applySwap(typed)
	case model.V2LiquidityChange:
		e.holders.Fold(typed)
	case model.V3LiquidityChange:
		e.applyV3(typed)
	case model.Transfer:
		// Plain token transfers carry no pool-level information beyond
		// what the raw record already stores.
	default:
		e.logger.Warn("unknown event variant", zap.String("kind", string(event.Kind())))
	}
}

func (e *Engine) applySwap(swap model.Swap) {
	// V2 net-flow convention: in legs enter the pool, out legs leave it.
	e.reserve0.Add(e.reserve0, swap.Amount0In)
	e.reserve0.Sub(e.reserve0, swap.Amount0Out)
	e.reserve1.Add(e.reserve1, swap.Amount1In)
	e.reserve1.Sub(e.reserve1, swap.Amount1Out)
	e.clampReserves()

	trade, ok := e.tradeFromSwap(swap)
	if !ok {
		return
	}
	e.positions.Fold(trade)
	e.window = append(e.window, trade)
}

func (e *Engine) applyV3(change model.V3LiquidityChange) {
	switch change.Change {
	case model.LiquidityMint:
		e.reserve0.Add(e.reserve0, change.Amount0)
		e.reserve1.Add(e.reserve1, change.Amount1)
	case model.LiquidityBurn:
		e.reserve0.Sub(e.reserve0, change.Amount0)
		e.reserve1.Sub(e.reserve1, change.Amount1)
		e.clampReserves()
	}
}

// clampReserves floors tracked reserves at zero. Net-flow folding can
// undershoot before the first authoritative seed; a negative reserve would
// surface as a negative price and TVL in the snapshot.
func (e *Engine) clampReserves() {
	if e.reserve0.Sign() < 0 {
		e.reserve0.SetInt64(0)
	}
	if e.reserve1.Sign() < 0 {
		e.reserve1.SetInt64(0)
	}
}

// tradeFromSwap orients a swap for the wallet: token0 is the base asset, so
// base flowing out of the pool means the wallet bought. Router aggregation
// may set both in legs; direction follows the dominant base flow.
func (e *Engine) tradeFromSwap(swap model.Swap) (Trade, bool) {
	wallet := swap.Recipient
	if wallet == "" {
		wallet = swap.Sender
	}
	if wallet == "" {
		return Trade{}, false
	}

	amount0In := ScaleAmount(swap.Amount0In, e.pool.Decimals0)
	amount0Out := ScaleAmount(swap.Amount0Out, e.pool.Decimals0)
	amount1In := ScaleAmount(swap.Amount1In, e.pool.Decimals1)
	amount1Out := ScaleAmount(swap.Amount1Out, e.pool.Decimals1)

	trade := Trade{
		Wallet: wallet,
		TxHash: swap.TxHash,
		Time:   time.Unix(int64(swap.Timestamp), 0).UTC(),
	}

	if amount0Out >= amount0In {
		trade.IsBuy = true
		trade.BaseAmount = amount0Out - amount0In
		trade.QuoteAmount = amount1In - amount1Out
	} else {
		trade.IsBuy = false
		trade.BaseAmount = amount0In - amount0Out
		trade.QuoteAmount = amount1Out - amount1In
	}
	if trade.BaseAmount == 0 && trade.QuoteAmount == 0 {
		return Trade{}, false
	}

	switch {
	case e.quotePriceUSD != nil:
		trade.ValueUSD = trade.QuoteAmount * *e.quotePriceUSD
	case e.basePriceUSD != nil:
		trade.ValueUSD = trade.BaseAmount * *e.basePriceUSD
	}
	if trade.ValueUSD < 0 {
		trade.ValueUSD = -trade.ValueUSD
	}
	return trade, true
}

// Snapshot derives this cycle's pool snapshot from tracked reserves and the
// installed prices.
func (e *Engine) Snapshot(at time.Time) model.PoolSnapshot {
	snapshot := ComputePoolSnapshot(e.reserve0, e.reserve1, e.pool.Decimals0, e.pool.Decimals1, e.basePriceUSD, e.quotePriceUSD)
	snapshot.ChainID = e.pool.ChainID
	snapshot.PoolAddress = e.pool.Address
	snapshot.Timestamp = at
	return snapshot
}

// Positions returns all wallet positions valuated at cycle prices.
func (e *Engine) Positions() []model.WalletPosition {
	return e.positions.Positions(e.basePriceUSD, e.quotePriceUSD)
}

// Concentration computes holder concentration from the LP balance book.
func (e *Engine) Concentration(at time.Time) model.ConcentrationStats {
	return ComputeConcentration(e.pool.ChainID, e.pool.Address, e.holders.Balances(e.pool.LPDecimals), at)
}

// WashSuspects prunes the trailing window and runs the wash-trading screen
// over what remains.
func (e *Engine) WashSuspects(at time.Time) []model.WashTradeSuspect {
	cutoff := at.Add(-e.windowDur)
	kept := e.window[:0]
	for _, trade := range e.window {
		if trade.Time.After(cutoff) {
			kept = append(kept, trade)
		}
	}
	e.window = kept

	return DetectWashTrades(e.pool.ChainID, e.pool.Address, e.window, cutoff, at)
}
