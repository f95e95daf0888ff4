// Package hub ties the invoice, shop, token and exchange-rate state together
// and orchestrates the flows that cross them.
package hub

import (
	"github.com/MesaPay/hub/internal/invoices"
	"github.com/MesaPay/hub/internal/ledger"
	"github.com/MesaPay/hub/internal/money"
	"github.com/MesaPay/hub/internal/rates"
	"github.com/MesaPay/hub/internal/shops"
	"github.com/MesaPay/hub/internal/tokens"
)

// State is the whole hub state, serializable as one JSON document. The
// persistence layer snapshots and restores it wholesale.
type State struct {
	Shops           *shops.State     `json:"shops"`
	Invoices        *invoices.State  `json:"invoices"`
	SupportedTokens *tokens.Registry `json:"supported_tokens"`
	ExchangeRates   *rates.Store     `json:"exchange_rates"`

	// FeeCollector receives the platform's share of withdrawal fees.
	FeeCollector ledger.Principal `json:"fee_collector"`
}

// NewState creates an empty hub state.
func NewState(feeCollector ledger.Principal, mockRates bool) *State {
	return &State{
		Shops:           shops.NewState(),
		Invoices:        invoices.NewState(),
		SupportedTokens: tokens.NewRegistry(),
		ExchangeRates:   rates.NewStore(mockRates),
		FeeCollector:    feeCollector,
	}
}

// UpdateExchangeRates installs a fresh snapshot at timestamp now from the
// oracle's answers, keeping only tickers the registry supports and
// normalizing every rate to the hub's USD scale. If nothing references the
// snapshot being superseded, it is dropped on the spot instead of waiting
// for the next sweep.
func (s *State) UpdateExchangeRates(external []rates.ExternalRate, now uint64) error {
	prev := s.ExchangeRates.LastUpdatedAt
	s.ExchangeRates.SetCurrent(now)

	// Only after the new snapshot became current: DeleteOutdated never
	// evicts the current one.
	if prev != 0 && prev != now {
		if _, referenced := s.Invoices.Active[prev]; !referenced {
			s.ExchangeRates.DeleteOutdated(prev)
		}
	}

	for _, r := range external {
		if !s.SupportedTokens.ContainsTicker(r.Ticker) {
			continue
		}
		rate, err := r.Rate.Rescale(money.USDDecimals)
		if err != nil {
			return err
		}
		s.ExchangeRates.Insert(now, r.Ticker, rate)
	}

	return nil
}

// PurgeExpiredInvoices runs one sweep pass over the active invoices and
// reclaims the rate snapshots of every bucket the sweep emptied. Returns
// the number of buckets reclaimed.
func (s *State) PurgeExpiredInvoices() int {
	emptied := s.Invoices.SweepExpired()
	for _, ts := range emptied {
		s.ExchangeRates.DeleteOutdated(ts)
	}
	return len(emptied)
}
