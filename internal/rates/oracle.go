package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/MesaPay/hub/internal/circuitbreaker"
	"github.com/MesaPay/hub/internal/logger"
	"github.com/MesaPay/hub/internal/money"
	"github.com/MesaPay/hub/internal/rpcutil"
	"github.com/MesaPay/hub/internal/tokens"
)

// QuoteAsset is the reference currency every rate is quoted against.
const QuoteAsset = "USD"

// TickerQuery names one token for an oracle fetch: the hub's own ticker and
// the symbol the oracle knows the asset by.
type TickerQuery struct {
	Ticker       tokens.Ticker
	OracleTicker tokens.Ticker
}

// ExternalRate is one oracle answer. The rate keeps the oracle's native
// decimal count; callers rescale to the hub's 8-decimal standard.
type ExternalRate struct {
	Ticker    tokens.Ticker
	Rate      money.Decimal
	Timestamp uint64
}

// Oracle fetches current token/USD exchange rates.
type Oracle interface {
	FetchCurrentRates(ctx context.Context, queries []TickerQuery) ([]ExternalRate, error)
}

// MockOracle produces synthetic deterministic rates for test/dev deployments:
// the rate is derived from the clock, 8 decimals, strictly below 1 USD.
type MockOracle struct {
	Now func() time.Time
}

// FetchCurrentRates implements Oracle.
func (m *MockOracle) FetchCurrentRates(_ context.Context, queries []TickerQuery) ([]ExternalRate, error) {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	ts := uint64(now().UnixNano())

	out := make([]ExternalRate, 0, len(queries))
	for _, q := range queries {
		rate, err := money.FromUint64(ts%100_000_000, money.USDDecimals)
		if err != nil {
			return nil, err
		}
		out = append(out, ExternalRate{
			Ticker:    q.Ticker,
			Rate:      rate,
			Timestamp: ts,
		})
	}
	return out, nil
}

// oracleResponse is the wire form of one oracle quote.
type oracleResponse struct {
	Symbol    string      `json:"symbol"`
	Rate      json.Number `json:"rate"`
	Decimals  uint8       `json:"decimals"`
	Timestamp uint64      `json:"timestamp"`
}

// HTTPOracle fetches rates from an external oracle service over HTTP, one
// quote per ticker. Tickers the oracle cannot quote are skipped, not fatal.
type HTTPOracle struct {
	baseURL  string
	httpc    *http.Client
	breakers *circuitbreaker.Manager
}

// NewHTTPOracle creates an oracle client for the given base URL.
func NewHTTPOracle(baseURL string, breakers *circuitbreaker.Manager) *HTTPOracle {
	return &HTTPOracle{
		baseURL:  baseURL,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		breakers: breakers,
	}
}

// FetchCurrentRates implements Oracle.
func (o *HTTPOracle) FetchCurrentRates(ctx context.Context, queries []TickerQuery) ([]ExternalRate, error) {
	log := logger.FromContext(ctx)
	out := make([]ExternalRate, 0, len(queries))

	for _, q := range queries {
		quote, err := o.fetchOne(ctx, q.OracleTicker)
		if err != nil {
			log.Warn().
				Err(err).
				Str("ticker", string(q.Ticker)).
				Str("oracle_ticker", string(q.OracleTicker)).
				Msg("rates.oracle_quote_failed")
			continue
		}

		val, ok := new(big.Int).SetString(quote.Rate.String(), 10)
		if !ok {
			log.Warn().
				Str("ticker", string(q.Ticker)).
				Str("rate", quote.Rate.String()).
				Msg("rates.oracle_quote_malformed")
			continue
		}

		rate, err := money.New(val, quote.Decimals)
		if err != nil {
			log.Warn().
				Err(err).
				Str("ticker", string(q.Ticker)).
				Msg("rates.oracle_quote_malformed")
			continue
		}

		out = append(out, ExternalRate{
			Ticker:    q.Ticker,
			Rate:      rate,
			Timestamp: quote.Timestamp,
		})
	}

	return out, nil
}

func (o *HTTPOracle) fetchOne(ctx context.Context, symbol tokens.Ticker) (oracleResponse, error) {
	reqURL := fmt.Sprintf("%s/v1/rates?base=%s&quote=%s",
		o.baseURL, url.QueryEscape(string(symbol)), QuoteAsset)

	return rpcutil.WithRetry(ctx, func() (oracleResponse, error) {
		res, err := o.breakers.Execute(circuitbreaker.ServiceRateOracle, func() (interface{}, error) {
			return o.roundTrip(ctx, reqURL)
		})
		if err != nil {
			return oracleResponse{}, err
		}
		return res.(oracleResponse), nil
	})
}

func (o *HTTPOracle) roundTrip(ctx context.Context, reqURL string) (oracleResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return oracleResponse{}, fmt.Errorf("rates: build request: %w", err)
	}

	resp, err := o.httpc.Do(req)
	if err != nil {
		return oracleResponse{}, fmt.Errorf("rates: call oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return oracleResponse{}, fmt.Errorf("rates: oracle status %d", resp.StatusCode)
	}

	var out oracleResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return oracleResponse{}, fmt.Errorf("rates: decode oracle response: %w", err)
	}
	return out, nil
}
