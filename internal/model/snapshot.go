package model

import "time"

// PoolSnapshot captures reserves, price and TVL for one poll cycle. Rows are
// append-only; the current state is the most recent row.
type PoolSnapshot struct {
	ChainID     uint64    `json:"chain_id"`
	PoolAddress string    `json:"pool_address"`
	Reserve0    float64   `json:"reserve0"`
	Reserve1    float64   `json:"reserve1"`
	Price       float64   `json:"price"`
	TVLUSD      *float64  `json:"tvl_usd"`
	Timestamp   time.Time `json:"timestamp"`
}

// Priced reports whether a USD valuation was available for this cycle. A nil
// TVL means "unknown", which is distinct from a legitimate zero.
func (s PoolSnapshot) Priced() bool {
	return s.TVLUSD != nil
}
