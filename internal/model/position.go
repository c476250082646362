package model

// WalletPosition is the running trading position of one wallet in one pool.
// It is derived state: replaying the ordered swap history from scratch
// reproduces it exactly, so it is recomputable rather than persisted truth.
//
// RealizedPnLUSD is cumulative revenue minus cumulative cost over the whole
// history, not per-lot matching. The upstream system computes it this way
// and the approximation is preserved deliberately.
type WalletPosition struct {
	ChainID         uint64   `json:"chain_id"`
	PoolAddress     string   `json:"pool_address"`
	Wallet          string   `json:"wallet"`
	BaseBalance     float64  `json:"base_balance"`
	QuoteBalance    float64  `json:"quote_balance"`
	TotalCostUSD    float64  `json:"total_cost_usd"`
	TotalRevenueUSD float64  `json:"total_revenue_usd"`
	RealizedPnLUSD  float64  `json:"realized_pnl_usd"`
	UnrealizedUSD   *float64 `json:"unrealized_pnl_usd"`
	TradeCount      uint64   `json:"trade_count"`
	WinCount        uint64   `json:"win_count"`
}

// WinRate returns win_count/trade_count as a percentage, 0 when no trades.
func (p WalletPosition) WinRate() float64 {
	if p.TradeCount == 0 {
		return 0
	}
	return float64(p.WinCount) / float64(p.TradeCount) * 100
}
