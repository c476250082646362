package model

import "time"

// WashTradeSuspect flags one wallet whose windowed trading pattern matches
// the wash-trading screen. It is a lead for review, not a verdict, and is
// recomputed each cycle from the trailing window with no carried state.
type WashTradeSuspect struct {
	ChainID         uint64    `json:"chain_id"`
	PoolAddress     string    `json:"pool_address"`
	Wallet          string    `json:"wallet"`
	RelatedWallets  []string  `json:"related_wallets"`
	SuspiciousTxs   uint64    `json:"suspicious_tx_count"`
	CircularVolume  float64   `json:"circular_volume_usd"`
	ConfidenceScore float64   `json:"confidence_score"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
}
