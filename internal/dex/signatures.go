package dex

import (
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Event signature topics for the AMM event shapes the decoder understands.
// V2 liquidity changes surface as ERC-20 Transfers on the pool's LP token,
// so they share TransferTopic.
var (
	TransferTopic = sigTopic("Transfer(address,address,uint256)")
	V2SwapTopic   = sigTopic("Swap(address,uint256,uint256,uint256,uint256,address)")
	V3MintTopic   = sigTopic("Mint(address,address,int24,int24,uint128,uint256,uint256)")
	V3BurnTopic   = sigTopic("Burn(address,int24,int24,uint128,uint256,uint256)")
)

func sigTopic(signature string) string {
	return strings.ToLower(crypto.Keccak256Hash([]byte(signature)).Hex())
}
