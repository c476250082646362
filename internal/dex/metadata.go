package dex

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/chain"
	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
)

// Some older BSC tokens return bytes32 for symbol/name instead of string,
// so metadata calls try the string ABI first and fall back.
const erc20MetaStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

const erc20MetaBytes32JSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	metaStringABI      abi.ABI
	metaStringABIOnce  sync.Once
	metaStringABIErr   error
	metaBytes32ABI     abi.ABI
	metaBytes32ABIOnce sync.Once
	metaBytes32ABIErr  error
)

func erc20StringABI() (abi.ABI, error) {
	metaStringABIOnce.Do(func() {
		metaStringABI, metaStringABIErr = abi.JSON(strings.NewReader(erc20MetaStringJSON))
	})
	return metaStringABI, metaStringABIErr
}

func erc20Bytes32ABI() (abi.ABI, error) {
	metaBytes32ABIOnce.Do(func() {
		metaBytes32ABI, metaBytes32ABIErr = abi.JSON(strings.NewReader(erc20MetaBytes32JSON))
	})
	return metaBytes32ABI, metaBytes32ABIErr
}

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// FetchTokenMeta loads decimals, symbol and name via ERC-20 calls, using the
// cache when warm. Decimals are required; symbol/name failures degrade to
// empty strings.
func FetchTokenMeta(ctx context.Context, chainClient *chain.Client, cache *TokenMetaCache, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	if cache != nil {
		if meta, ok := cache.Get(token); ok {
			return meta, nil
		}
	}
	if chainClient == nil {
		return model.TokenMeta{}, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	stringABI, err := erc20StringABI()
	if err != nil {
		return model.TokenMeta{}, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20Bytes32ABI()
	if err != nil {
		return model.TokenMeta{}, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	call := func(method string, parsed abi.ABI) ([]interface{}, error) {
		data, err := parsed.Pack(method)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		resp, err := chainClient.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		values, err := parsed.Unpack(method, resp)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method, err)
		}
		return values, nil
	}

	meta := model.TokenMeta{Address: token.Hex()}

	values, err := call("decimals", stringABI)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, fmt.Errorf("decimals: %w", err)
	}
	meta.Decimals = decimals

	if values, err := call("symbol", stringABI); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := call("symbol", bytes32ABI); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := call("name", stringABI); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := call("name", bytes32ABI); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else {
		logger.Debug("name call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if cache != nil {
		cache.Set(token, meta)
	}
	return meta, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
