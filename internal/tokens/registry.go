package tokens

import (
	"sort"

	"github.com/MesaPay/hub/internal/ledger"
	"github.com/MesaPay/hub/internal/money"
)

// Ticker is a short token symbol ("USDX", "WTN", ...).
type Ticker string

// Token describes one supported payment token. The fee is denominated in the
// token's own atomic units, so its scale doubles as the token's decimal count.
// Removing a token does not invalidate invoices already locked to its rate:
// those embed the rate and decimals by value.
type Token struct {
	ID           ledger.TokenID `json:"id"`
	Ticker       Ticker         `json:"ticker"`
	OracleTicker Ticker         `json:"oracle_ticker"`
	Fee          money.Decimal  `json:"fee"`
	LogoSrc      string         `json:"logo_src"`
	LedgerURL    string         `json:"ledger_url"`
}

// Decimals returns the token's native decimal-place count.
func (t Token) Decimals() uint8 {
	return t.Fee.Decimals()
}

// Registry is a bidirectional id <-> ticker index of supported tokens.
// It is not internally synchronized; the hub state serializes access.
type Registry struct {
	Tokens   map[ledger.TokenID]Token  `json:"tokens"`
	ByTicker map[Ticker]ledger.TokenID `json:"by_ticker"`
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		Tokens:   make(map[ledger.TokenID]Token),
		ByTicker: make(map[Ticker]ledger.TokenID),
	}
}

// Add inserts or replaces a token under both indexes.
func (r *Registry) Add(token Token) {
	r.ByTicker[token.Ticker] = token.ID
	r.Tokens[token.ID] = token
}

// Remove deletes the token registered under ticker, if any.
func (r *Registry) Remove(ticker Ticker) {
	id, ok := r.ByTicker[ticker]
	if !ok {
		return
	}
	delete(r.ByTicker, ticker)
	delete(r.Tokens, id)
}

// ContainsID reports whether a token id is registered.
func (r *Registry) ContainsID(id ledger.TokenID) bool {
	_, ok := r.Tokens[id]
	return ok
}

// ContainsTicker reports whether a ticker is registered.
func (r *Registry) ContainsTicker(ticker Ticker) bool {
	_, ok := r.ByTicker[ticker]
	return ok
}

// ByID returns the token registered under id.
func (r *Registry) ByID(id ledger.TokenID) (Token, bool) {
	t, ok := r.Tokens[id]
	return t, ok
}

// TickerByID returns the ticker of the token registered under id.
func (r *Registry) TickerByID(id ledger.TokenID) (Ticker, bool) {
	t, ok := r.Tokens[id]
	if !ok {
		return "", false
	}
	return t.Ticker, true
}

// List returns all registered tokens ordered by ticker.
func (r *Registry) List() []Token {
	out := make([]Token, 0, len(r.Tokens))
	for _, t := range r.Tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}
