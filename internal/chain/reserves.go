package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const reservesABIJSON = `[
  {"inputs": [], "name": "getReserves", "outputs": [
    {"internalType": "uint112", "name": "_reserve0", "type": "uint112"},
    {"internalType": "uint112", "name": "_reserve1", "type": "uint112"},
    {"internalType": "uint32", "name": "_blockTimestampLast", "type": "uint32"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
   "name": "balanceOf", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
   "stateMutability": "view", "type": "function"}
]`

var (
	reservesABI     abi.ABI
	reservesABIOnce sync.Once
	reservesABIErr  error
)

func getReservesABI() (abi.ABI, error) {
	reservesABIOnce.Do(func() {
		reservesABI, reservesABIErr = abi.JSON(strings.NewReader(reservesABIJSON))
	})
	return reservesABI, reservesABIErr
}

// PoolReserves reads reserve0/reserve1 for a V2 pool via getReserves,
// falling back to token balanceOf when the pool does not expose it (V3
// pools hold plain token balances instead of tracked reserves).
func (c *Client) PoolReserves(ctx context.Context, pool, token0, token1 string) (*big.Int, *big.Int, error) {
	if !common.IsHexAddress(pool) {
		return nil, nil, fmt.Errorf("invalid pool address: %s", pool)
	}
	poolAddr := common.HexToAddress(pool)

	if reserve0, reserve1, err := c.callGetReserves(ctx, poolAddr); err == nil {
		return reserve0, reserve1, nil
	}

	if !common.IsHexAddress(token0) || !common.IsHexAddress(token1) {
		return nil, nil, fmt.Errorf("invalid token address for pool %s", pool)
	}
	balance0, err := c.balanceOf(ctx, common.HexToAddress(token0), poolAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("token0 balance: %w", err)
	}
	balance1, err := c.balanceOf(ctx, common.HexToAddress(token1), poolAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("token1 balance: %w", err)
	}
	return balance0, balance1, nil
}

func (c *Client) callGetReserves(ctx context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	poolABI, err := getReservesABI()
	if err != nil {
		return nil, nil, err
	}

	data, err := poolABI.Pack("getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("pack getReserves: %w", err)
	}

	resp, err := c.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: data}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("call getReserves: %w", err)
	}

	values, err := poolABI.Unpack("getReserves", resp)
	if err != nil {
		return nil, nil, fmt.Errorf("unpack getReserves: %w", err)
	}
	if len(values) != 3 {
		return nil, nil, fmt.Errorf("getReserves return size %d", len(values))
	}

	reserve0, ok := values[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("reserve0 unexpected type %T", values[0])
	}
	reserve1, ok := values[1].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("reserve1 unexpected type %T", values[1])
	}
	return reserve0, reserve1, nil
}

func (c *Client) balanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	poolABI, err := getReservesABI()
	if err != nil {
		return nil, err
	}

	data, err := poolABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	resp, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}

	values, err := poolABI.Unpack("balanceOf", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("balanceOf return size %d", len(values))
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf unexpected type %T", values[0])
	}
	return balance, nil
}
