package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNoQuote marks a symbol the oracle does not know. Transient transport
// failures surface as ordinary wrapped errors; callers can tell the two
// apart and must treat both as "unpriced", never as price zero.
var ErrNoQuote = fmt.Errorf("no quote for symbol")

// PriceOracle supplies current USD prices by token symbol.
type PriceOracle interface {
	USDPrice(ctx context.Context, symbol string) (float64, error)
}

// HTTPOracle queries a ticker endpoint shaped like the Binance spot API:
// GET {base}/api/v3/ticker/price?symbol={SYMBOL}USDT -> {"price": "..."}.
// Stablecoin symbols are pinned to 1.0 without a network call.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[string]cachedQuote
	ttl   time.Duration
}

type cachedQuote struct {
	price   float64
	fetched time.Time
}

var stablecoins = map[string]float64{
	"USDT": 1.0,
	"USDC": 1.0,
	"BUSD": 1.0,
	"DAI":  1.0,
}

func NewHTTPOracle(baseURL string, timeout, cacheTTL time.Duration, logger *zap.Logger) *HTTPOracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPOracle{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		cache:   make(map[string]cachedQuote),
		ttl:     cacheTTL,
	}
}

// USDPrice returns the current USD price for a symbol.
func (o *HTTPOracle) USDPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0, ErrNoQuote
	}
	if price, ok := stablecoins[symbol]; ok {
		return price, nil
	}

	o.mu.RLock()
	cached, ok := o.cache[symbol]
	o.mu.RUnlock()
	if ok && time.Since(cached.fetched) < o.ttl {
		return cached.price, nil
	}

	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", o.baseURL, url.QueryEscape(symbol+"USDT"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build quote request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch quote %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("quote %s: unexpected status %d", symbol, resp.StatusCode)
	}

	var payload struct {
		Price string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode quote %s: %w", symbol, err)
	}
	price, err := strconv.ParseFloat(payload.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quote %s: %w", symbol, err)
	}

	o.mu.Lock()
	o.cache[symbol] = cachedQuote{price: price, fetched: time.Now()}
	o.mu.Unlock()

	return price, nil
}

// StaticOracle serves fixed prices; used in tests and dry runs.
type StaticOracle struct {
	Prices map[string]float64
}

func (o *StaticOracle) USDPrice(_ context.Context, symbol string) (float64, error) {
	price, ok := o.Prices[strings.ToUpper(symbol)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}
	return price, nil
}
