package model

import "time"

// ConcentrationStats summarizes how concentrated holder balances are.
// It is a stateless function of one balance snapshot, recomputed per cycle.
type ConcentrationStats struct {
	ChainID     uint64    `json:"chain_id"`
	PoolAddress string    `json:"pool_address"`
	HolderCount int       `json:"holder_count"`
	Top10Pct    float64   `json:"top10_pct"`
	Top25Pct    float64   `json:"top25_pct"`
	Top50Pct    float64   `json:"top50_pct"`
	Top100Pct   float64   `json:"top100_pct"`
	Gini        float64   `json:"gini_coefficient"`
	ComputedAt  time.Time `json:"computed_at"`
}
