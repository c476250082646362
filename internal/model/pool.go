package model

// PoolProtocol identifies the AMM flavor of a tracked pool.
type PoolProtocol string

const (
	ProtocolV2 PoolProtocol = "v2"
	ProtocolV3 PoolProtocol = "v3"
)

// TrackedPool declares one pool to monitor and which event kinds to fold for
// it. One declarative record replaces a per-pool monitor implementation.
type TrackedPool struct {
	ChainID      uint64       `json:"chain_id"`
	Address      string       `json:"address"`
	Protocol     PoolProtocol `json:"protocol"`
	Token0       string       `json:"token0"`
	Token1       string       `json:"token1"`
	Token0Symbol string       `json:"token0_symbol"`
	Token1Symbol string       `json:"token1_symbol"`
	Decimals0    uint8        `json:"decimals0"`
	Decimals1    uint8        `json:"decimals1"`
	// LPToken is the fungible LP contract; for V2 pools this is the pool
	// address itself.
	LPToken    string      `json:"lp_token"`
	LPDecimals uint8       `json:"lp_decimals"`
	Track      []EventKind `json:"track"`
}

// Tracks reports whether the pool wants events of the given kind.
func (p TrackedPool) Tracks(kind EventKind) bool {
	for _, k := range p.Track {
		if k == kind {
			return true
		}
	}
	return false
}
