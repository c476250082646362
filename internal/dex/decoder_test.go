package dex

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
)

const (
	lpTokenAddr = "0x36696169c63e42cd08ce11f5deebbcebae652050"
	tokenAddr   = "0x7130d2a12b9bcbfae4f2634d864a1ee1ce3ead9c"
	fromAddr    = "0x2222222222222222222222222222222222222222"
	toAddr      = "0x3333333333333333333333333333333333333333"
	zeroAddr    = "0x0000000000000000000000000000000000000000"
)

func rawLog(address string, topics []string, data string) model.RawLog {
	return model.RawLog{
		ChainID:        56,
		BlockNumber:    12345,
		BlockHash:      "0xabc",
		TxHash:         "0xdef",
		LogIndex:       7,
		Address:        address,
		Topics:         topics,
		Data:           data,
		BlockTimestamp: 1700000000,
	}
}

func addressTopic(addr string) string {
	return common.BytesToHash(common.HexToAddress(addr).Bytes()).Hex()
}

func tickTopic(value int32) string {
	bigVal := big.NewInt(int64(value))
	if value < 0 {
		bigVal = new(big.Int).Add(bigVal, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return common.BigToHash(bigVal).Hex()
}

func packWords(values ...*big.Int) string {
	var b strings.Builder
	b.WriteString("0x")
	for _, v := range values {
		fmt.Fprintf(&b, "%064x", v)
	}
	return b.String()
}

func decodeErrorKind(t *testing.T, err error) model.DecodeErrorKind {
	t.Helper()
	var de *model.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected decode error, got %v", err)
	}
	return de.Reason
}

func TestDecodeTransfer(t *testing.T) {
	decoder := NewDecoder()
	log := rawLog(tokenAddr,
		[]string{TransferTopic, addressTopic(fromAddr), addressTopic(toAddr)},
		packWords(big.NewInt(123456)))

	transfer, err := decoder.DecodeTransfer(log)
	if err != nil {
		t.Fatalf("decode transfer: %v", err)
	}

	if transfer.Token != tokenAddr {
		t.Fatalf("token mismatch: %s", transfer.Token)
	}
	if !strings.EqualFold(transfer.From, fromAddr) || !strings.EqualFold(transfer.To, toAddr) {
		t.Fatalf("address mismatch: %s -> %s", transfer.From, transfer.To)
	}
	if transfer.Amount.Cmp(big.NewInt(123456)) != 0 {
		t.Fatalf("amount mismatch: %s", transfer.Amount)
	}
	if transfer.Ref().BlockNumber != 12345 || transfer.Ref().LogIndex != 7 {
		t.Fatalf("ref mismatch: %+v", transfer.Ref())
	}
}

func TestDecodeTransferMalformedTopics(t *testing.T) {
	decoder := NewDecoder()

	log := rawLog(tokenAddr, []string{TransferTopic, addressTopic(fromAddr)}, packWords(big.NewInt(1)))
	_, err := decoder.DecodeTransfer(log)
	if kind := decodeErrorKind(t, err); kind != model.MalformedTopics {
		t.Fatalf("kind = %s, want %s", kind, model.MalformedTopics)
	}

	log = rawLog(tokenAddr, []string{TransferTopic, "0x1234", addressTopic(toAddr)}, packWords(big.NewInt(1)))
	_, err = decoder.DecodeTransfer(log)
	if kind := decodeErrorKind(t, err); kind != model.MalformedTopics {
		t.Fatalf("kind = %s, want %s", kind, model.MalformedTopics)
	}
}

func TestDecodeTransferMalformedData(t *testing.T) {
	decoder := NewDecoder()
	topics := []string{TransferTopic, addressTopic(fromAddr), addressTopic(toAddr)}

	for _, data := range []string{"0x", "0xzz", "0x0011", packWords(big.NewInt(1))[:40]} {
		_, err := decoder.DecodeTransfer(rawLog(tokenAddr, topics, data))
		if kind := decodeErrorKind(t, err); kind != model.MalformedData {
			t.Fatalf("data %q: kind = %s, want %s", data, kind, model.MalformedData)
		}
	}
}

func TestDecodeV2Swap(t *testing.T) {
	decoder := NewDecoder()
	log := rawLog(lpTokenAddr,
		[]string{V2SwapTopic, addressTopic(fromAddr), addressTopic(toAddr)},
		packWords(big.NewInt(1000), big.NewInt(0), big.NewInt(0), big.NewInt(70000)))

	swap, err := decoder.DecodeV2Swap(log)
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}

	if swap.Amount0In.Cmp(big.NewInt(1000)) != 0 || swap.Amount1Out.Cmp(big.NewInt(70000)) != 0 {
		t.Fatalf("amounts mismatch: %+v", swap)
	}
	if swap.Amount1In.Sign() != 0 || swap.Amount0Out.Sign() != 0 {
		t.Fatalf("zero legs mismatch: %+v", swap)
	}
	if !strings.EqualFold(swap.Sender, fromAddr) || !strings.EqualFold(swap.Recipient, toAddr) {
		t.Fatalf("participant mismatch: %+v", swap)
	}
}

func TestDecodeV2SwapShortData(t *testing.T) {
	decoder := NewDecoder()
	log := rawLog(lpTokenAddr,
		[]string{V2SwapTopic, addressTopic(fromAddr), addressTopic(toAddr)},
		packWords(big.NewInt(1000), big.NewInt(0)))

	_, err := decoder.DecodeV2Swap(log)
	if kind := decodeErrorKind(t, err); kind != model.MalformedData {
		t.Fatalf("kind = %s, want %s", kind, model.MalformedData)
	}
}

func TestDecodeV2LiquidityClassification(t *testing.T) {
	decoder := NewDecoder()
	amount := packWords(big.NewInt(5000))

	cases := []struct {
		name string
		from string
		to   string
		want model.LiquidityKind
	}{
		{"mint", zeroAddr, toAddr, model.LiquidityMint},
		{"burn", fromAddr, zeroAddr, model.LiquidityBurn},
		{"plain", fromAddr, toAddr, model.LiquidityPlainTransfer},
	}

	for _, tc := range cases {
		log := rawLog(lpTokenAddr,
			[]string{TransferTopic, addressTopic(tc.from), addressTopic(tc.to)}, amount)
		change, err := decoder.DecodeV2Liquidity(log)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if change.Change != tc.want {
			t.Fatalf("%s: kind = %s, want %s", tc.name, change.Change, tc.want)
		}
		if change.LPAmount.Cmp(big.NewInt(5000)) != 0 {
			t.Fatalf("%s: amount mismatch: %s", tc.name, change.LPAmount)
		}
	}
}

func TestDecodeV2LiquidityBothZero(t *testing.T) {
	decoder := NewDecoder()
	log := rawLog(lpTokenAddr,
		[]string{TransferTopic, addressTopic(zeroAddr), addressTopic(zeroAddr)},
		packWords(big.NewInt(1)))

	_, err := decoder.DecodeV2Liquidity(log)
	if kind := decodeErrorKind(t, err); kind != model.UnsupportedEventShape {
		t.Fatalf("kind = %s, want %s", kind, model.UnsupportedEventShape)
	}
}

func TestDecodeV3Mint(t *testing.T) {
	decoder := NewDecoder()
	log := rawLog(lpTokenAddr,
		[]string{V3MintTopic, addressTopic(fromAddr), tickTopic(-120), tickTopic(120)},
		packWords(
			new(big.Int).SetBytes(common.HexToAddress(toAddr).Bytes()),
			big.NewInt(5000),
			big.NewInt(100),
			big.NewInt(200),
		))

	change, err := decoder.DecodeV3Liquidity(log, model.LiquidityMint)
	if err != nil {
		t.Fatalf("decode mint: %v", err)
	}

	if change.TickLower != -120 || change.TickUpper != 120 {
		t.Fatalf("tick mismatch: %+v", change)
	}
	if change.Liquidity.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("liquidity mismatch: %s", change.Liquidity)
	}
	if change.Amount0.Cmp(big.NewInt(100)) != 0 || change.Amount1.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("amounts mismatch: %+v", change)
	}
	if !strings.EqualFold(change.Owner, fromAddr) {
		t.Fatalf("owner mismatch: %s", change.Owner)
	}
}

func TestDecodeV3Burn(t *testing.T) {
	decoder := NewDecoder()
	log := rawLog(lpTokenAddr,
		[]string{V3BurnTopic, addressTopic(fromAddr), tickTopic(-60), tickTopic(60)},
		packWords(big.NewInt(7000), big.NewInt(300), big.NewInt(400)))

	change, err := decoder.DecodeV3Liquidity(log, model.LiquidityBurn)
	if err != nil {
		t.Fatalf("decode burn: %v", err)
	}

	if change.Change != model.LiquidityBurn {
		t.Fatalf("kind mismatch: %s", change.Change)
	}
	if change.TickLower != -60 || change.TickUpper != 60 {
		t.Fatalf("tick mismatch: %+v", change)
	}
	if change.Liquidity.Cmp(big.NewInt(7000)) != 0 {
		t.Fatalf("liquidity mismatch: %s", change.Liquidity)
	}
}

func TestTickSignExtension(t *testing.T) {
	cases := []struct {
		raw  string
		want int32
	}{
		{"0x0000000000000000000000000000000000000000000000000000000000000005", 5},
		{"0x0000000000000000000000000000000000000000000000000000000000fffffe", -2},
		{"0x00000000000000000000000000000000000000000000000000000000007fffff", 8388607},
		{"0x0000000000000000000000000000000000000000000000000000000000800000", -8388608},
		{"0x0000000000000000000000000000000000000000000000000000000000000000", 0},
	}

	for _, tc := range cases {
		got := tickFromTopic(common.HexToHash(tc.raw))
		if got != tc.want {
			t.Fatalf("tick %s = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestDecodeDeterminism(t *testing.T) {
	decoder := NewDecoder()
	pool := model.TrackedPool{
		Address: lpTokenAddr,
		LPToken: lpTokenAddr,
		Track:   []model.EventKind{model.KindSwap, model.KindV2Liquidity},
	}
	log := rawLog(lpTokenAddr,
		[]string{V2SwapTopic, addressTopic(fromAddr), addressTopic(toAddr)},
		packWords(big.NewInt(1000), big.NewInt(0), big.NewInt(0), big.NewInt(70000)))

	first, err := decoder.Decode(log, pool)
	if err != nil {
		t.Fatalf("first decode: %v", err)
	}
	second, err := decoder.Decode(log, pool)
	if err != nil {
		t.Fatalf("second decode: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("decode not deterministic: %+v != %+v", first, second)
	}

	firstRecord, err := model.RecordFromEvent(56, first)
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	secondRecord, err := model.RecordFromEvent(56, second)
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if string(firstRecord.Payload) != string(secondRecord.Payload) {
		t.Fatalf("payload bytes differ")
	}
}

func TestDecodeRoutesLPTransfer(t *testing.T) {
	decoder := NewDecoder()
	pool := model.TrackedPool{
		Address: lpTokenAddr,
		Token0:  tokenAddr,
		LPToken: lpTokenAddr,
		Track:   []model.EventKind{model.KindTransfer, model.KindV2Liquidity},
	}
	topics := []string{TransferTopic, addressTopic(zeroAddr), addressTopic(toAddr)}
	amount := packWords(big.NewInt(9000))

	ev, err := decoder.Decode(rawLog(lpTokenAddr, topics, amount), pool)
	if err != nil {
		t.Fatalf("decode lp transfer: %v", err)
	}
	if ev.Kind() != model.KindV2Liquidity {
		t.Fatalf("lp transfer kind = %s, want %s", ev.Kind(), model.KindV2Liquidity)
	}

	ev, err = decoder.Decode(rawLog(tokenAddr, topics, amount), pool)
	if err != nil {
		t.Fatalf("decode token transfer: %v", err)
	}
	if ev.Kind() != model.KindTransfer {
		t.Fatalf("token transfer kind = %s, want %s", ev.Kind(), model.KindTransfer)
	}
}

func TestDecodeUnknownTopic(t *testing.T) {
	decoder := NewDecoder()
	if decoder.CanDecode("0x00000000000000000000000000000000000000000000000000000000deadbeef") {
		t.Fatalf("unexpected topic support")
	}

	log := rawLog(lpTokenAddr,
		[]string{"0x00000000000000000000000000000000000000000000000000000000deadbeef"},
		packWords(big.NewInt(1)))
	_, err := decoder.Decode(log, model.TrackedPool{Address: lpTokenAddr})
	if kind := decodeErrorKind(t, err); kind != model.UnsupportedEventShape {
		t.Fatalf("kind = %s, want %s", kind, model.UnsupportedEventShape)
	}
}
