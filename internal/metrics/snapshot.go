package metrics

import (
	"math/big"
	"time"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
)

// ComputePoolSnapshot derives reserves, price and TVL from raw reserve
// integers. Price is reserve1/reserve0 in decimal-adjusted units, defined as
// 0 when reserve0 is empty (a guard, not an error). When token0 has no
// independent quote (price0USD nil) its USD price is derived as
// price*price1USD. A nil price1USD leaves TVL nil: "unknown" must stay
// distinguishable from "worthless".
func ComputePoolSnapshot(reserve0Raw, reserve1Raw *big.Int, decimals0, decimals1 uint8, price0USD, price1USD *float64) model.PoolSnapshot {
	reserve0 := ScaleAmount(reserve0Raw, decimals0)
	reserve1 := ScaleAmount(reserve1Raw, decimals1)

	var price float64
	if reserve0 > 0 {
		price = reserve1 / reserve0
	}

	snapshot := model.PoolSnapshot{
		Reserve0:  reserve0,
		Reserve1:  reserve1,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}

	if price1USD == nil {
		return snapshot
	}

	p0 := price * *price1USD
	if price0USD != nil {
		p0 = *price0USD
	}
	tvl := reserve0*p0 + reserve1**price1USD
	snapshot.TVLUSD = &tvl
	return snapshot
}

// ScaleAmount converts a raw token integer into decimal units.
func ScaleAmount(raw *big.Int, decimals uint8) float64 {
	if raw == nil || raw.Sign() == 0 {
		return 0
	}
	scaled := new(big.Float).SetInt(raw)
	denom := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	scaled.Quo(scaled, denom)
	value, _ := scaled.Float64()
	return value
}
