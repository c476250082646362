package metrics

import (
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
)

// ComputeGini returns the discrete Gini estimator over non-negative
// balances, clamped to [0, 1]. Empty input and all-zero input are both
// defined as 0.
func ComputeGini(balances []float64) float64 {
	n := len(balances)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, balances)
	sort.Float64s(sorted)

	var cumsum, total float64
	for i, balance := range sorted {
		cumsum += float64(n-i) * balance
		total += balance
	}
	if total == 0 {
		return 0
	}

	gini := (float64(n) + 1 - 2*cumsum/total) / float64(n)
	if gini < 0 {
		return 0
	}
	if gini > 1 {
		return 1
	}
	return gini
}

// topShare returns the percentage of total held by the n largest balances.
func topShare(sortedDesc []float64, total float64, n int) float64 {
	if total == 0 {
		return 0
	}
	if n > len(sortedDesc) {
		n = len(sortedDesc)
	}
	var sum float64
	for _, balance := range sortedDesc[:n] {
		sum += balance
	}
	return sum / total * 100
}

// ComputeConcentration derives holder-concentration statistics from one
// balance snapshot. Stateless: recomputed in full each cycle.
func ComputeConcentration(chainID uint64, pool string, balances []float64, at time.Time) model.ConcentrationStats {
	sortedDesc := make([]float64, len(balances))
	copy(sortedDesc, balances)
	sort.Sort(sort.Reverse(sort.Float64Slice(sortedDesc)))

	var total float64
	for _, balance := range sortedDesc {
		total += balance
	}

	return model.ConcentrationStats{
		ChainID:     chainID,
		PoolAddress: pool,
		HolderCount: len(balances),
		Top10Pct:    topShare(sortedDesc, total, 10),
		Top25Pct:    topShare(sortedDesc, total, 25),
		Top50Pct:    topShare(sortedDesc, total, 50),
		Top100Pct:   topShare(sortedDesc, total, 100),
		Gini:        ComputeGini(balances),
		ComputedAt:  at,
	}
}

// HolderBook folds LP-token movements into per-wallet balances, the input
// set for concentration stats. Mint credits the receiver, burn debits the
// sender, a plain transfer moves balance between wallets. The zero address
// never holds.
type HolderBook struct {
	balances map[string]*big.Int
}

func NewHolderBook() *HolderBook {
	return &HolderBook{balances: make(map[string]*big.Int)}
}

// Fold applies one liquidity change.
func (h *HolderBook) Fold(change model.V2LiquidityChange) {
	switch change.Change {
	case model.LiquidityMint:
		h.add(change.To, change.LPAmount)
	case model.LiquidityBurn:
		h.sub(change.From, change.LPAmount)
	case model.LiquidityPlainTransfer:
		h.sub(change.From, change.LPAmount)
		h.add(change.To, change.LPAmount)
	}
}

func (h *HolderBook) add(wallet string, amount *big.Int) {
	if amount == nil {
		return
	}
	key := strings.ToLower(wallet)
	balance, ok := h.balances[key]
	if !ok {
		balance = new(big.Int)
		h.balances[key] = balance
	}
	balance.Add(balance, amount)
}

func (h *HolderBook) sub(wallet string, amount *big.Int) {
	if amount == nil {
		return
	}
	key := strings.ToLower(wallet)
	balance, ok := h.balances[key]
	if !ok {
		balance = new(big.Int)
		h.balances[key] = balance
	}
	balance.Sub(balance, amount)
}

// Balances returns positive holder balances in decimal units.
func (h *HolderBook) Balances(decimals uint8) []float64 {
	out := make([]float64, 0, len(h.balances))
	for _, balance := range h.balances {
		if balance.Sign() <= 0 {
			continue
		}
		out = append(out, ScaleAmount(balance, decimals))
	}
	return out
}
