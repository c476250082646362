package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
)

// Wash-trading screen thresholds. Deliberately coarse: the output is a lead
// for review, not a verdict.
const (
	washMinTrades         = 10 // strict >, a wallet at exactly 10 is not flagged
	washMaxTradesPerMin   = 2.0
	washMaxSizeVariance   = 0.1 // stddev below this fraction of mean size
	washMaxVolumePerMin   = 10000.0
	washCounterWindow     = 60 * time.Second
	washSizeTolerance     = 0.01 // absolute base units
	washMinCounterMatches = 3    // strict >, need more than this many matched pairs
	washConfidencePerPeer = 20.0
)

type walletStats struct {
	trades        []Trade
	volumeUSD     float64
	activeMinutes int
	avgSize       float64
	stddevSize    float64
}

// DetectWashTrades screens a trailing window of trades for one pool.
// A wallet is a candidate when it trades unusually often with unusually
// uniform sizes, or moves unusually dense volume; a candidate is confirmed
// only when other wallets mirror enough of its trades (opposite direction,
// within ±60s, size matched within tolerance).
func DetectWashTrades(chainID uint64, pool string, trades []Trade, windowStart, windowEnd time.Time) []model.WashTradeSuspect {
	byWallet := groupByWallet(trades)

	suspects := make([]model.WashTradeSuspect, 0)
	for wallet, stats := range byWallet {
		if !isCandidate(stats) {
			continue
		}

		matches := 0
		counterparties := make(map[string]struct{})
		matchedTxs := make(map[string]struct{})
		var circularVolume float64

		for _, trade := range stats.trades {
			matched := false
			for other, otherStats := range byWallet {
				if other == wallet {
					continue
				}
				for _, counter := range otherStats.trades {
					if !isCounterTrade(trade, counter) {
						continue
					}
					matches++
					counterparties[other] = struct{}{}
					matched = true
				}
			}
			if matched {
				if _, seen := matchedTxs[trade.TxHash]; !seen {
					matchedTxs[trade.TxHash] = struct{}{}
					circularVolume += trade.ValueUSD
				}
			}
		}

		if matches <= washMinCounterMatches {
			continue
		}

		related := make([]string, 0, len(counterparties))
		for peer := range counterparties {
			related = append(related, peer)
		}
		sort.Strings(related)

		suspects = append(suspects, model.WashTradeSuspect{
			ChainID:         chainID,
			PoolAddress:     pool,
			Wallet:          wallet,
			RelatedWallets:  related,
			SuspiciousTxs:   uint64(len(matchedTxs)),
			CircularVolume:  circularVolume,
			ConfidenceScore: math.Min(100, float64(len(counterparties))*washConfidencePerPeer),
			WindowStart:     windowStart,
			WindowEnd:       windowEnd,
		})
	}

	sort.Slice(suspects, func(i, j int) bool { return suspects[i].Wallet < suspects[j].Wallet })
	return suspects
}

func groupByWallet(trades []Trade) map[string]*walletStats {
	byWallet := make(map[string]*walletStats)
	for _, trade := range trades {
		stats, ok := byWallet[trade.Wallet]
		if !ok {
			stats = &walletStats{}
			byWallet[trade.Wallet] = stats
		}
		stats.trades = append(stats.trades, trade)
		stats.volumeUSD += trade.ValueUSD
	}

	for _, stats := range byWallet {
		minutes := make(map[int64]struct{})
		var sum float64
		for _, trade := range stats.trades {
			minutes[trade.Time.Unix()/60] = struct{}{}
			sum += trade.BaseAmount
		}
		stats.activeMinutes = len(minutes)
		mean := sum / float64(len(stats.trades))

		var variance float64
		for _, trade := range stats.trades {
			diff := trade.BaseAmount - mean
			variance += diff * diff
		}
		variance /= float64(len(stats.trades))

		stats.avgSize = mean
		stats.stddevSize = math.Sqrt(variance)
	}
	return byWallet
}

func isCandidate(stats *walletStats) bool {
	if len(stats.trades) <= washMinTrades {
		return false
	}
	if stats.activeMinutes == 0 {
		return false
	}

	tradesPerMin := float64(len(stats.trades)) / float64(stats.activeMinutes)
	volumePerMin := stats.volumeUSD / float64(stats.activeMinutes)

	highFrequencyLowVariance := tradesPerMin > washMaxTradesPerMin && stats.stddevSize < washMaxSizeVariance*stats.avgSize
	highVolumeDensity := volumePerMin > washMaxVolumePerMin

	return highFrequencyLowVariance || highVolumeDensity
}

func isCounterTrade(trade, counter Trade) bool {
	if trade.IsBuy == counter.IsBuy {
		return false
	}
	gap := trade.Time.Sub(counter.Time)
	if gap < 0 {
		gap = -gap
	}
	if gap > washCounterWindow {
		return false
	}
	return math.Abs(trade.BaseAmount-counter.BaseAmount) <= washSizeTolerance
}
