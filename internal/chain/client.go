package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
)

// Client wraps go-ethereum RPC and acts as the pipeline's log source.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	mu      sync.RWMutex
	tsCache map[uint64]uint64
	chainID uint64
}

// NewClient dials the RPC endpoint.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tsCache:   make(map[uint64]uint64),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID, cached after the first call.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.RLock()
	cached := c.chainID
	c.mu.RUnlock()
	if cached != 0 {
		return new(big.Int).SetUint64(cached), nil
	}

	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.chainID = id.Uint64()
	c.mu.Unlock()
	return id, nil
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// BlockTimestamp returns a block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// FetchLogs returns the raw logs for one contract and topic0 in an
// inclusive block range. An empty result is valid and not an error.
func (c *Client) FetchLogs(ctx context.Context, address string, fromBlock, toBlock uint64, topic0 string) ([]model.RawLog, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{common.HexToAddress(address)},
	}
	if topic0 != "" {
		query.Topics = [][]common.Hash{{common.HexToHash(topic0)}}
	}

	logs, err := c.ethClient.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	records := make([]model.RawLog, 0, len(logs))
	for _, log := range logs {
		ts, err := c.BlockTimestamp(ctx, log.BlockNumber)
		if err != nil {
			return nil, err
		}
		records = append(records, rawLogFrom(chainID.Uint64(), log, ts))
	}
	return records, nil
}

// CallContract performs an eth_call.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

func rawLogFrom(chainID uint64, log types.Log, timestamp uint64) model.RawLog {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.RawLog{
		ChainID:        chainID,
		BlockNumber:    log.BlockNumber,
		BlockHash:      log.BlockHash.Hex(),
		TxHash:         log.TxHash.Hex(),
		TxIndex:        uint64(log.TxIndex),
		LogIndex:       uint64(log.Index),
		Address:        log.Address.Hex(),
		Topics:         topics,
		Data:           hexutil.Encode(log.Data),
		Removed:        log.Removed,
		BlockTimestamp: timestamp,
	}
}
