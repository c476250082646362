package dex

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
)

const wordSize = 32

// tick values are int24: low 3 bytes of the topic word, two's complement.
const (
	tickSignBit = 0x7FFFFF
	tickModulus = 0x1000000
)

var zeroAddress common.Address

// Decoder maps raw pool logs to typed events. It performs no I/O and is
// deterministic: decoding the same log twice yields identical values.
// Callers dispatch by topic0 before calling; an unrecognized signature is
// simply not routed here.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// CanDecode checks whether topic0 is one of the supported event shapes.
func (d *Decoder) CanDecode(topic0 string) bool {
	switch strings.ToLower(topic0) {
	case TransferTopic, V2SwapTopic, V3MintTopic, V3BurnTopic:
		return true
	default:
		return false
	}
}

// Decode routes a raw log to the decoder for its signature, using the
// tracked-pool declaration to tell LP-token transfers apart from plain
// ERC-20 transfers.
func (d *Decoder) Decode(log model.RawLog, pool model.TrackedPool) (model.Event, error) {
	switch strings.ToLower(log.Topic0()) {
	case TransferTopic:
		if pool.Tracks(model.KindV2Liquidity) && strings.EqualFold(log.Address, pool.LPToken) {
			return d.DecodeV2Liquidity(log)
		}
		return d.DecodeTransfer(log)
	case V2SwapTopic:
		return d.DecodeV2Swap(log)
	case V3MintTopic:
		return d.DecodeV3Liquidity(log, model.LiquidityMint)
	case V3BurnTopic:
		return d.DecodeV3Liquidity(log, model.LiquidityBurn)
	default:
		return nil, model.NewDecodeError(model.UnsupportedEventShape, "topic0 %s", log.Topic0())
	}
}

// DecodeTransfer decodes an ERC-20 Transfer: exactly three topics
// (signature, from, to) and one 32-byte amount word.
func (d *Decoder) DecodeTransfer(log model.RawLog) (model.Transfer, error) {
	topics, err := parseTopics(log.Topics)
	if err != nil {
		return model.Transfer{}, err
	}
	if len(topics) != 3 {
		return model.Transfer{}, model.NewDecodeError(model.MalformedTopics, "transfer needs 3 topics, got %d", len(topics))
	}

	data, err := parseData(log.Data, 1)
	if err != nil {
		return model.Transfer{}, err
	}

	return model.Transfer{
		EventRef: refFromLog(log),
		Token:    log.Address,
		From:     addressFromTopic(topics[1]).Hex(),
		To:       addressFromTopic(topics[2]).Hex(),
		Amount:   wordBig(data, 0),
	}, nil
}

// DecodeV2Swap decodes a V2 Swap. The data section carries four uint256
// words in fixed order: amount0In, amount1In, amount0Out, amount1Out.
// Sender and recipient topics are optional for amount extraction.
func (d *Decoder) DecodeV2Swap(log model.RawLog) (model.Swap, error) {
	topics, err := parseTopics(log.Topics)
	if err != nil {
		return model.Swap{}, err
	}
	if len(topics) == 0 {
		return model.Swap{}, model.NewDecodeError(model.MalformedTopics, "missing signature topic")
	}

	data, err := parseData(log.Data, 4)
	if err != nil {
		return model.Swap{}, err
	}

	swap := model.Swap{
		EventRef:   refFromLog(log),
		Pool:       log.Address,
		Amount0In:  wordBig(data, 0),
		Amount1In:  wordBig(data, 1),
		Amount0Out: wordBig(data, 2),
		Amount1Out: wordBig(data, 3),
	}
	if len(topics) >= 3 {
		swap.Sender = addressFromTopic(topics[1]).Hex()
		swap.Recipient = addressFromTopic(topics[2]).Hex()
	}
	return swap, nil
}

// DecodeV2Liquidity decodes an LP-token Transfer and classifies it against
// the zero address: mint when from is zero, burn when to is zero, plain
// transfer otherwise. Both zero at once is invalid input.
func (d *Decoder) DecodeV2Liquidity(log model.RawLog) (model.V2LiquidityChange, error) {
	transfer, err := d.DecodeTransfer(log)
	if err != nil {
		return model.V2LiquidityChange{}, err
	}

	fromZero := isZeroAddress(transfer.From)
	toZero := isZeroAddress(transfer.To)

	var kind model.LiquidityKind
	switch {
	case fromZero && toZero:
		return model.V2LiquidityChange{}, model.NewDecodeError(model.UnsupportedEventShape, "lp transfer between zero addresses")
	case fromZero:
		kind = model.LiquidityMint
	case toZero:
		kind = model.LiquidityBurn
	default:
		kind = model.LiquidityPlainTransfer
	}

	return model.V2LiquidityChange{
		EventRef: transfer.EventRef,
		Pool:     log.Address,
		Change:   kind,
		From:     transfer.From,
		To:       transfer.To,
		LPAmount: transfer.Amount,
	}, nil
}

// DecodeV3Liquidity decodes a concentrated-liquidity Mint or Burn. Topics
// carry owner and the tick bounds; data carries liquidity and both token
// amounts, with a leading sender word on Mint that callers do not need.
func (d *Decoder) DecodeV3Liquidity(log model.RawLog, kind model.LiquidityKind) (model.V3LiquidityChange, error) {
	topics, err := parseTopics(log.Topics)
	if err != nil {
		return model.V3LiquidityChange{}, err
	}
	if len(topics) != 4 {
		return model.V3LiquidityChange{}, model.NewDecodeError(model.MalformedTopics, "v3 %s needs 4 topics, got %d", kind, len(topics))
	}

	words := 3
	if kind == model.LiquidityMint {
		words = 4
	}
	data, err := parseData(log.Data, words)
	if err != nil {
		return model.V3LiquidityChange{}, err
	}

	// Mint data leads with the sender address padded to a full word.
	offset := 0
	if kind == model.LiquidityMint {
		offset = 1
	}

	return model.V3LiquidityChange{
		EventRef:  refFromLog(log),
		Pool:      log.Address,
		Change:    kind,
		Owner:     addressFromTopic(topics[1]).Hex(),
		TickLower: tickFromTopic(topics[2]),
		TickUpper: tickFromTopic(topics[3]),
		Liquidity: wordBig(data, offset),
		Amount0:   wordBig(data, offset+1),
		Amount1:   wordBig(data, offset+2),
	}, nil
}

func refFromLog(log model.RawLog) model.EventRef {
	return model.EventRef{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Timestamp:   log.BlockTimestamp,
	}
}

func parseTopics(raw []string) ([]common.Hash, error) {
	topics := make([]common.Hash, 0, len(raw))
	for _, topic := range raw {
		decoded, err := hexutil.Decode(topic)
		if err != nil || len(decoded) != wordSize {
			return nil, model.NewDecodeError(model.MalformedTopics, "bad topic %s", topic)
		}
		topics = append(topics, common.BytesToHash(decoded))
	}
	return topics, nil
}

// parseData decodes the hex data section and checks it holds at least
// minWords full 32-byte words.
func parseData(raw string, minWords int) ([]byte, error) {
	data, err := hexutil.Decode(raw)
	if err != nil {
		return nil, model.NewDecodeError(model.MalformedData, "bad data hex")
	}
	if len(data) == 0 || len(data)%wordSize != 0 {
		return nil, model.NewDecodeError(model.MalformedData, "data length %d not a multiple of %d", len(data), wordSize)
	}
	if len(data) < minWords*wordSize {
		return nil, model.NewDecodeError(model.MalformedData, "data holds %d words, need %d", len(data)/wordSize, minWords)
	}
	return data, nil
}

func wordBig(data []byte, index int) *big.Int {
	start := index * wordSize
	return new(big.Int).SetBytes(data[start : start+wordSize])
}

// addressFromTopic takes the low 20 bytes of a 32-byte topic word.
func addressFromTopic(topic common.Hash) common.Address {
	return common.BytesToAddress(topic[12:])
}

// tickFromTopic reads an int24 from the low 3 bytes of a topic word and
// sign-extends: raw values above 0x7FFFFF wrap negative.
func tickFromTopic(topic common.Hash) int32 {
	raw := int32(topic[29])<<16 | int32(topic[30])<<8 | int32(topic[31])
	if raw > tickSignBit {
		raw -= tickModulus
	}
	return raw
}

func isZeroAddress(hex string) bool {
	return common.HexToAddress(hex) == zeroAddress
}
