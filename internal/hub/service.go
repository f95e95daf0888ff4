package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MesaPay/hub/internal/archive"
	apierrors "github.com/MesaPay/hub/internal/errors"
	"github.com/MesaPay/hub/internal/invoices"
	"github.com/MesaPay/hub/internal/ledger"
	"github.com/MesaPay/hub/internal/metrics"
	"github.com/MesaPay/hub/internal/money"
	"github.com/MesaPay/hub/internal/rates"
	"github.com/MesaPay/hub/internal/shops"
	"github.com/MesaPay/hub/internal/tokens"
)

// Snapshotter persists and restores the hub state as one opaque document.
type Snapshotter interface {
	Save(ctx context.Context, snapshot []byte) error
	Load(ctx context.Context) ([]byte, bool, error)
}

// Dependencies are the external collaborators a Service needs.
type Dependencies struct {
	Ledgers   ledger.Dialer
	Oracle    rates.Oracle
	Archive   archive.Pusher
	Snapshots Snapshotter
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger

	// Identity is the principal ledgers know this hub by: the required
	// recipient of every invoice payment and the sender of withdrawals.
	Identity ledger.Principal

	// Admin may force-unlock invoices and manage the token registry.
	Admin ledger.Principal
}

// Service orchestrates the hub flows. The mutex guards the in-memory state;
// it is never held across an external call - the invoice status machine
// carries the cross-call locking instead.
type Service struct {
	mu    sync.Mutex
	state *State
	deps  Dependencies
	log   zerolog.Logger
	now   func() time.Time
}

// NewService wires a Service around an existing state.
func NewService(state *State, deps Dependencies) *Service {
	return &Service{
		state: state,
		deps:  deps,
		log:   deps.Logger,
		now:   time.Now,
	}
}

func (s *Service) nowNanos() uint64 {
	return uint64(s.now().UnixNano())
}

func (s *Service) isAdmin(caller ledger.Principal) bool {
	return s.deps.Admin != "" && caller == s.deps.Admin
}

// --- shops ---

// CreateShopParams carries the fields of a shop registration.
type CreateShopParams struct {
	InvoiceCreators []ledger.Principal
	Name            string
	Description     string
	IconBase64      string
	Referral        *ledger.Principal
}

// CreateShop registers a shop owned by caller.
func (s *Service) CreateShop(_ context.Context, params CreateShopParams, caller ledger.Principal) (shops.Shop, error) {
	if params.Name == "" {
		return shops.Shop{}, apierrors.New(apierrors.ErrCodeMissingField, "shop name is required")
	}
	if params.Referral != nil && *params.Referral == caller {
		return shops.Shop{}, apierrors.New(apierrors.ErrCodeInvalidField, "a shop cannot refer itself")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.state.Shops.Create(params.InvoiceCreators, params.Name, params.Description, params.IconBase64, params.Referral, caller)
	shop, _ := s.state.Shops.Get(id)

	s.log.Info().
		Uint64("shop_id", uint64(id)).
		Str("owner", string(caller)).
		Msg("hub.shop_created")

	return *shop, nil
}

// UpdateShop mutates a shop on behalf of its owner.
func (s *Service) UpdateShop(_ context.Context, id shops.ShopID, params shops.UpdateParams, caller ledger.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Shops.Update(id, params, caller)
}

// GetShop returns one shop.
func (s *Service) GetShop(_ context.Context, id shops.ShopID) (shops.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shop, ok := s.state.Shops.Get(id)
	if !ok {
		return shops.Shop{}, apierrors.Newf(apierrors.ErrCodeShopNotFound, "shop %d not found", id)
	}
	return *shop, nil
}

// MyShops returns the shops caller owns.
func (s *Service) MyShops(_ context.Context, caller ledger.Principal) []shops.Shop {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.state.Shops.ByOwner(caller)
	out := make([]shops.Shop, 0, len(owned))
	for _, shop := range owned {
		out = append(out, *shop)
	}
	return out
}

// MyReferredShops returns the shops caller referred, with referral earnings.
func (s *Service) MyReferredShops(_ context.Context, caller ledger.Principal) []shops.ReferredShop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Shops.ByReferral(caller)
}

// --- tokens ---

// ListTokens returns the supported tokens.
func (s *Service) ListTokens(_ context.Context) []tokens.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SupportedTokens.List()
}

// AddToken registers a supported token. Admin only.
func (s *Service) AddToken(_ context.Context, token tokens.Token, caller ledger.Principal) error {
	if !s.isAdmin(caller) {
		return apierrors.New(apierrors.ErrCodeAccessDenied, "only the admin can manage tokens")
	}
	if token.ID == "" || token.Ticker == "" || token.LedgerURL == "" {
		return apierrors.New(apierrors.ErrCodeMissingField, "token id, ticker and ledger url are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.SupportedTokens.Add(token)
	s.log.Info().
		Str("token_id", string(token.ID)).
		Str("ticker", string(token.Ticker)).
		Msg("hub.token_added")
	return nil
}

// RemoveToken unregisters a token by ticker. Admin only. Invoices locked to
// the token's past rates are unaffected; they carry the rate by value.
func (s *Service) RemoveToken(_ context.Context, ticker tokens.Ticker, caller ledger.Principal) error {
	if !s.isAdmin(caller) {
		return apierrors.New(apierrors.ErrCodeAccessDenied, "only the admin can manage tokens")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.SupportedTokens.ContainsTicker(ticker) {
		return apierrors.Newf(apierrors.ErrCodeTokenNotFound, "token %s not found", ticker)
	}
	s.state.SupportedTokens.Remove(ticker)
	s.log.Info().Str("ticker", string(ticker)).Msg("hub.token_removed")
	return nil
}

// CurrentRates returns the current exchange rate snapshot and its timestamp.
func (s *Service) CurrentRates(_ context.Context) (map[tokens.Ticker]money.Decimal, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok := s.state.ExchangeRates.Current()
	if !ok {
		return nil, 0, apierrors.New(apierrors.ErrCodeRatesNotFound, "no exchange rates fetched yet")
	}

	out := make(map[tokens.Ticker]money.Decimal, len(snapshot))
	for ticker, rate := range snapshot {
		out[ticker] = rate
	}
	return out, s.state.ExchangeRates.LastUpdatedAt, nil
}

// RatesAt returns the most recent snapshot taken at or before timestamp,
// with the timestamp it was actually taken at. This is the snapshot an
// invoice created at that moment would have locked to.
func (s *Service) RatesAt(_ context.Context, timestamp uint64) (map[tokens.Ticker]money.Decimal, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ts, ok := s.state.ExchangeRates.AtOrBefore(timestamp)
	if !ok {
		return nil, 0, apierrors.Newf(apierrors.ErrCodeRatesNotFound, "no exchange rate snapshot at or before %d", timestamp)
	}

	out := make(map[tokens.Ticker]money.Decimal, len(snapshot))
	for ticker, rate := range snapshot {
		out[ticker] = rate
	}
	return out, ts, nil
}

// --- invoices ---

// CreateInvoice opens an invoice for a fixed USD amount, locked to the
// current exchange rate snapshot. Caller must be the shop owner or one of
// its authorized invoice creators.
func (s *Service) CreateInvoice(_ context.Context, shopID shops.ShopID, qtyUSD money.Decimal, caller ledger.Principal) (invoices.Invoice, error) {
	if qtyUSD.Decimals() != money.USDDecimals {
		return invoices.Invoice{}, apierrors.Newf(apierrors.ErrCodeInvalidAmount, "usd amounts use %d decimals", money.USDDecimals)
	}
	if qtyUSD.IsZero() {
		return invoices.Invoice{}, apierrors.New(apierrors.ErrCodeInvalidAmount, "invoice amount must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	shop, ok := s.state.Shops.Get(shopID)
	if !ok {
		return invoices.Invoice{}, apierrors.Newf(apierrors.ErrCodeShopNotFound, "shop %d not found", shopID)
	}
	if shop.Owner != caller && !shop.CanCreateInvoices(caller) {
		return invoices.Invoice{}, apierrors.New(apierrors.ErrCodeAccessDenied, "caller may not create invoices for this shop")
	}

	if _, ok := s.state.ExchangeRates.Current(); !ok {
		return invoices.Invoice{}, apierrors.New(apierrors.ErrCodeRatesNotFound, "no exchange rates fetched yet")
	}

	id := s.state.Invoices.Create(qtyUSD, shopID, s.nowNanos(), s.state.ExchangeRates.LastUpdatedAt, caller)
	inv, _ := s.state.Invoices.Get(id)

	if m := s.deps.Metrics; m != nil {
		m.InvoicesCreatedTotal.Inc()
		m.InvoicesActive.Set(float64(s.activeCountLocked()))
	}

	s.log.Info().
		Str("invoice_id", id.String()).
		Uint64("shop_id", uint64(shopID)).
		Str("qty_usd", qtyUSD.String()).
		Msg("hub.invoice_created")

	return *inv, nil
}

// GetInvoice returns one invoice. Unauthenticated: payment pages need it.
func (s *Service) GetInvoice(_ context.Context, id invoices.InvoiceID) (invoices.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.state.Invoices.Get(id)
	if !ok {
		return invoices.Invoice{}, apierrors.Newf(apierrors.ErrCodeInvoiceNotFound, "invoice %s not found", id)
	}
	return *inv, nil
}

// VerifyPaymentRequest names a transfer claimed to pay an invoice.
type VerifyPaymentRequest struct {
	InvoiceID invoices.InvoiceID
	TokenID   ledger.TokenID
	BlockIdx  uint64
}

// VerifyPayment checks the referenced ledger block against the invoice and
// settles on success. The invoice is locked before the ledger call and
// restored on any failure, so a retry with the right block always remains
// possible and a concurrent duplicate is rejected cleanly.
func (s *Service) VerifyPayment(ctx context.Context, req VerifyPaymentRequest, caller ledger.Principal) (invoices.Invoice, error) {
	start := s.now()

	s.mu.Lock()
	token, ok := s.state.SupportedTokens.ByID(req.TokenID)
	if !ok {
		s.mu.Unlock()
		return invoices.Invoice{}, apierrors.Newf(apierrors.ErrCodeTokenNotFound, "token %s is not supported", req.TokenID)
	}

	lock, err := s.state.Invoices.BeginVerification(req.InvoiceID, caller)
	if err != nil {
		s.mu.Unlock()
		return invoices.Invoice{}, err
	}

	rate, ok := s.state.ExchangeRates.Rate(lock.RateTimestamp, token.Ticker)
	if !ok {
		s.state.Invoices.RestoreAfterFailure(req.InvoiceID, lock.TTL)
		s.mu.Unlock()
		return invoices.Invoice{}, apierrors.Newf(apierrors.ErrCodeRatesNotFound,
			"no %s rate in the snapshot the invoice is locked to", token.Ticker)
	}
	s.mu.Unlock()

	// The invoice stays locked across this call; no state mutex held.
	client := s.deps.Ledgers.Dial(token.LedgerURL)
	block, fetchErr := client.FetchBlock(ctx, req.BlockIdx)

	var txn ledger.TransferTxn
	var decodeErr error
	if fetchErr == nil {
		txn, decodeErr = ledger.DecodeTransfer(block, token.ID, token.Decimals())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fail := func(reason string, err error) (invoices.Invoice, error) {
		s.state.Invoices.RestoreAfterFailure(req.InvoiceID, lock.TTL)
		if m := s.deps.Metrics; m != nil {
			m.InvoicesFailedTotal.WithLabelValues(reason).Inc()
		}
		s.log.Warn().
			Err(err).
			Str("invoice_id", req.InvoiceID.String()).
			Uint64("block_idx", req.BlockIdx).
			Msg("hub.payment_verification_failed")
		return invoices.Invoice{}, err
	}

	if fetchErr != nil {
		if errors.Is(fetchErr, ledger.ErrBlockOutOfRange) {
			return fail("block_out_of_range",
				apierrors.Wrap(apierrors.ErrCodeValidationFailed, "the referenced block does not exist", fetchErr))
		}
		return fail("ledger_unreachable",
			apierrors.Wrap(apierrors.ErrCodeExternalCallFailed, "failed to fetch the block", fetchErr))
	}
	if decodeErr != nil {
		return fail("not_a_transfer",
			apierrors.Wrap(apierrors.ErrCodeValidationFailed, "the referenced block is not a valid transfer", decodeErr))
	}

	paid, allEmpty, err := s.state.Invoices.VerifyPayment(req.InvoiceID, txn, rate, s.deps.Identity, s.nowNanos())
	if err != nil {
		return fail(string(apierrors.CodeOf(err)), err)
	}

	if err := s.state.Shops.RecordEarning(paid.ShopID, paid.QtyUSD); err != nil {
		// The payment already settled; a missing shop only loses bookkeeping.
		s.log.Error().
			Err(err).
			Uint64("shop_id", uint64(paid.ShopID)).
			Msg("hub.earning_not_recorded")
	}

	s.reclaimSnapshotsLocked(lock.RateTimestamp, allEmpty)

	if m := s.deps.Metrics; m != nil {
		m.InvoicesPaidTotal.WithLabelValues(string(token.Ticker)).Inc()
		m.PaymentDuration.WithLabelValues(string(token.Ticker)).Observe(s.now().Sub(start).Seconds())
		m.InvoicesActive.Set(float64(s.activeCountLocked()))
		m.RateSnapshotsLive.Set(float64(len(s.state.ExchangeRates.Rates)))
	}

	s.log.Info().
		Str("invoice_id", req.InvoiceID.String()).
		Str("token", string(token.Ticker)).
		Str("qty", paid.Status.Paid.Qty.String()).
		Msg("hub.invoice_paid")

	return paid, nil
}

// reclaimSnapshotsLocked drops the rate snapshot a settled invoice was
// locked to once nothing references it, and on a fully drained index drops
// every non-current snapshot. The current one always survives.
func (s *Service) reclaimSnapshotsLocked(rateTimestamp uint64, allEmpty bool) {
	if _, referenced := s.state.Invoices.Active[rateTimestamp]; !referenced {
		s.state.ExchangeRates.DeleteOutdated(rateTimestamp)
	}
	if allEmpty {
		for ts := range s.state.ExchangeRates.Rates {
			s.state.ExchangeRates.DeleteOutdated(ts)
		}
	}
}

// ForceUnlockInvoice unsticks an invoice left locked by a crash. Admin only.
func (s *Service) ForceUnlockInvoice(_ context.Context, id invoices.InvoiceID, caller ledger.Principal) error {
	if !s.isAdmin(caller) {
		return apierrors.New(apierrors.ErrCodeAccessDenied, "only the admin can force-unlock invoices")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.state.Invoices.ForceUnlock(id); err != nil {
		return err
	}
	s.log.Warn().Str("invoice_id", id.String()).Msg("hub.invoice_force_unlocked")
	return nil
}

// --- withdrawals ---

// WithdrawRequest asks to move part of a shop's token balance out of its
// subaccount.
type WithdrawRequest struct {
	ShopID  shops.ShopID
	TokenID ledger.TokenID
	Qty     money.Decimal
	To      ledger.Account
}

// WithdrawResult reports where the merchant's transfer settled.
type WithdrawResult struct {
	BlockIdx uint64 `json:"block_idx"`
}

// WithdrawProfit pays out qty from the shop's subaccount: 97% to the
// merchant's destination, 3% platform fee, of which a referrer (when the
// shop has one) receives 20%. Only the merchant transfer is fatal; fee-side
// transfers are logged and dropped on failure rather than blocking the
// merchant's money.
func (s *Service) WithdrawProfit(ctx context.Context, req WithdrawRequest, caller ledger.Principal) (WithdrawResult, error) {
	s.mu.Lock()
	shop, ok := s.state.Shops.Get(req.ShopID)
	if !ok {
		s.mu.Unlock()
		return WithdrawResult{}, apierrors.Newf(apierrors.ErrCodeShopNotFound, "shop %d not found", req.ShopID)
	}
	if shop.Owner != caller {
		s.mu.Unlock()
		return WithdrawResult{}, apierrors.New(apierrors.ErrCodeAccessDenied, "only the shop owner can withdraw")
	}

	token, ok := s.state.SupportedTokens.ByID(req.TokenID)
	if !ok {
		s.mu.Unlock()
		return WithdrawResult{}, apierrors.Newf(apierrors.ErrCodeTokenNotFound, "token %s is not supported", req.TokenID)
	}

	referral := shop.Referral
	collector := s.state.FeeCollector

	var rate money.Decimal
	rateKnown := false
	if snapshot, ok := s.state.ExchangeRates.Current(); ok {
		rate, rateKnown = snapshot[token.Ticker]
	}
	s.mu.Unlock()

	if req.Qty.Decimals() != token.Decimals() {
		return WithdrawResult{}, apierrors.Newf(apierrors.ErrCodeInvalidAmount, "%s amounts use %d decimals", token.Ticker, token.Decimals())
	}

	// Below 6x the ledger fee the fee split degenerates into dust.
	minQty := token.Fee.MulUint64(6)
	if cmp, err := req.Qty.Cmp(minQty); err != nil || cmp < 0 {
		return WithdrawResult{}, apierrors.Newf(apierrors.ErrCodeInvalidAmount,
			"minimum withdrawal is %s %s", minQty, token.Ticker)
	}

	split, err := splitWithdrawal(req.Qty, token.Fee, referral != nil)
	if err != nil {
		return WithdrawResult{}, fmt.Errorf("hub: split withdrawal: %w", err)
	}

	fromSub := invoices.ShopSubaccount(req.ShopID)
	client := s.deps.Ledgers.Dial(token.LedgerURL)

	blockIdx, err := client.SubmitTransfer(ctx, ledger.TransferArgs{
		FromSubaccount: &fromSub,
		To:             req.To,
		Amount:         split.Merchant,
		Fee:            token.Fee,
	})
	if err != nil {
		if m := s.deps.Metrics; m != nil {
			m.WithdrawalsFailedTotal.WithLabelValues(string(token.Ticker), "transfer_failed").Inc()
		}
		return WithdrawResult{}, apierrors.Wrap(apierrors.ErrCodeExternalCallFailed, "withdrawal transfer failed", err)
	}

	if referral != nil && !split.Referral.IsZero() {
		_, rerr := client.SubmitTransfer(ctx, ledger.TransferArgs{
			FromSubaccount: &fromSub,
			To:             ledger.Account{Owner: *referral},
			Amount:         split.Referral,
			Fee:            token.Fee,
		})
		if rerr != nil {
			s.log.Warn().
				Err(rerr).
				Uint64("shop_id", uint64(req.ShopID)).
				Str("referral", string(*referral)).
				Msg("hub.referral_fee_transfer_failed")
		} else {
			s.recordReferralEarning(*referral, req.ShopID, split.Referral, rate, rateKnown)
		}
	}

	if !split.Platform.IsZero() {
		_, perr := client.SubmitTransfer(ctx, ledger.TransferArgs{
			FromSubaccount: &fromSub,
			To:             ledger.Account{Owner: collector},
			Amount:         split.Platform,
			Fee:            token.Fee,
		})
		if perr != nil {
			s.log.Warn().
				Err(perr).
				Uint64("shop_id", uint64(req.ShopID)).
				Msg("hub.platform_fee_transfer_failed")
		}
	}

	if m := s.deps.Metrics; m != nil {
		m.WithdrawalsTotal.WithLabelValues(string(token.Ticker)).Inc()
	}

	s.log.Info().
		Uint64("shop_id", uint64(req.ShopID)).
		Str("token", string(token.Ticker)).
		Str("qty", req.Qty.String()).
		Uint64("block_idx", blockIdx).
		Msg("hub.profit_withdrawn")

	return WithdrawResult{BlockIdx: blockIdx}, nil
}

// withdrawalSplit is the three-way division of one withdrawal. Amounts are
// what each transfer sends, already net of the per-transfer ledger fee the
// sender pays on top.
type withdrawalSplit struct {
	Merchant money.Decimal
	Platform money.Decimal
	Referral money.Decimal
}

// splitWithdrawal computes the 97/3 merchant/platform division, carving 20%
// of the platform cut out for the referrer when there is one. A side amount
// that cannot cover its own ledger fee is zeroed, not sent.
func splitWithdrawal(qty, fee money.Decimal, hasReferral bool) (withdrawalSplit, error) {
	platformCut, err := qty.MulUint64(3).DivUint64(100)
	if err != nil {
		return withdrawalSplit{}, err
	}

	merchant, err := qty.Sub(platformCut)
	if err != nil {
		return withdrawalSplit{}, err
	}
	merchant, err = merchant.Sub(fee)
	if err != nil {
		return withdrawalSplit{}, err
	}

	var referral money.Decimal
	if hasReferral {
		referral, err = platformCut.MulUint64(20).DivUint64(100)
		if err != nil {
			return withdrawalSplit{}, err
		}
	} else {
		referral = money.Zero(qty.Decimals())
	}

	platform, err := platformCut.Sub(referral)
	if err != nil {
		return withdrawalSplit{}, err
	}

	referral = netOfFee(referral, fee)
	platform = netOfFee(platform, fee)

	return withdrawalSplit{Merchant: merchant, Platform: platform, Referral: referral}, nil
}

// netOfFee returns amount minus the ledger fee, or zero when the amount
// cannot cover it.
func netOfFee(amount, fee money.Decimal) money.Decimal {
	net, err := amount.Sub(fee)
	if err != nil {
		return money.Zero(amount.Decimals())
	}
	return net
}

// recordReferralEarning books the referral fee in USD at the current rate.
// Without a current rate the transfer still happened; only the USD-side
// bookkeeping is skipped.
func (s *Service) recordReferralEarning(referral ledger.Principal, shopID shops.ShopID, qty, rate money.Decimal, rateKnown bool) {
	if !rateKnown {
		s.log.Warn().
			Uint64("shop_id", uint64(shopID)).
			Msg("hub.referral_earning_not_recorded")
		return
	}

	usdQty, err := qty.Rescale(money.USDDecimals)
	if err == nil {
		var usd money.Decimal
		usd, err = usdQty.Mul(rate)
		if err == nil {
			s.mu.Lock()
			err = s.state.Shops.RecordReferralEarning(referral, shopID, usd)
			s.mu.Unlock()
		}
	}
	if err != nil {
		s.log.Warn().
			Err(err).
			Uint64("shop_id", uint64(shopID)).
			Msg("hub.referral_earning_not_recorded")
	}
}

// --- maintenance flows ---

// RefreshExchangeRates fetches current rates for every supported token and
// installs them as the new current snapshot.
func (s *Service) RefreshExchangeRates(ctx context.Context) error {
	s.mu.Lock()
	supported := s.state.SupportedTokens.List()
	s.mu.Unlock()

	queries := make([]rates.TickerQuery, 0, len(supported))
	for _, t := range supported {
		queries = append(queries, rates.TickerQuery{Ticker: t.Ticker, OracleTicker: t.OracleTicker})
	}

	external, err := s.deps.Oracle.FetchCurrentRates(ctx, queries)
	if err != nil {
		return apierrors.Wrap(apierrors.ErrCodeExternalCallFailed, "exchange rate fetch failed", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.state.UpdateExchangeRates(external, s.nowNanos()); err != nil {
		return fmt.Errorf("hub: install exchange rates: %w", err)
	}

	if m := s.deps.Metrics; m != nil {
		m.RateRefreshesTotal.Inc()
		m.RateSnapshotsLive.Set(float64(len(s.state.ExchangeRates.Rates)))
	}

	s.log.Info().
		Int("tickers", len(external)).
		Uint64("timestamp", s.state.ExchangeRates.LastUpdatedAt).
		Msg("hub.exchange_rates_refreshed")
	return nil
}

// PurgeExpiredInvoices runs one expiry sweep and reclaims unreferenced rate
// snapshots. Returns the number of invoices removed.
func (s *Service) PurgeExpiredInvoices(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.allCountLocked()
	buckets := s.state.PurgeExpiredInvoices()
	removed := before - s.allCountLocked()

	if m := s.deps.Metrics; m != nil {
		m.InvoicesSweptTotal.Add(float64(removed))
		m.InvoicesActive.Set(float64(s.activeCountLocked()))
		m.RateSnapshotsLive.Set(float64(len(s.state.ExchangeRates.Rates)))
	}

	if removed > 0 || buckets > 0 {
		s.log.Info().
			Int("removed", removed).
			Int("snapshots_reclaimed", buckets).
			Msg("hub.expired_invoices_purged")
	}
	return removed
}

// ArchiveSettledInvoices drains up to max settled invoices to the archive.
// A failed push reapplies the batch, so every settled invoice reaches the
// archive at least once.
func (s *Service) ArchiveSettledInvoices(ctx context.Context, max int) (int, error) {
	s.mu.Lock()
	batch := s.state.Invoices.PrepareArchiveBatch(max)
	s.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}

	if m := s.deps.Metrics; m != nil {
		m.ArchivalRunsTotal.Inc()
	}

	if err := s.deps.Archive.Push(ctx, batch); err != nil {
		s.mu.Lock()
		s.state.Invoices.ReapplyArchiveBatch(batch)
		s.mu.Unlock()

		if m := s.deps.Metrics; m != nil {
			m.ArchivalFailuresTotal.Inc()
		}
		return 0, apierrors.Wrap(apierrors.ErrCodeExternalCallFailed, "archive push failed", err)
	}

	if m := s.deps.Metrics; m != nil {
		m.ArchivedInvoicesTotal.Add(float64(len(batch)))
	}
	s.log.Info().Int("count", len(batch)).Msg("hub.invoices_archived")
	return len(batch), nil
}

// --- persistence ---

// SaveSnapshot serializes the whole state and hands it to the snapshot
// store.
func (s *Service) SaveSnapshot(ctx context.Context) error {
	if s.deps.Snapshots == nil {
		return nil
	}

	s.mu.Lock()
	payload, err := json.Marshal(s.state)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("hub: serialize state: %w", err)
	}

	if err := s.deps.Snapshots.Save(ctx, payload); err != nil {
		return apierrors.Wrap(apierrors.ErrCodeStorageError, "snapshot save failed", err)
	}
	return nil
}

// RestoreSnapshot replaces the in-memory state with the latest persisted
// snapshot, if one exists. Called once at startup, before any traffic.
func (s *Service) RestoreSnapshot(ctx context.Context) error {
	if s.deps.Snapshots == nil {
		return nil
	}

	payload, found, err := s.deps.Snapshots.Load(ctx)
	if err != nil {
		return apierrors.Wrap(apierrors.ErrCodeStorageError, "snapshot load failed", err)
	}
	if !found {
		return nil
	}

	restored := NewState(s.state.FeeCollector, s.state.ExchangeRates.Mock)
	if err := json.Unmarshal(payload, restored); err != nil {
		return fmt.Errorf("hub: deserialize state: %w", err)
	}

	s.mu.Lock()
	s.state = restored
	s.mu.Unlock()

	s.log.Info().Msg("hub.state_restored")
	return nil
}

// --- stats ---

// Stats is the hub-wide aggregate exposed for monitoring.
type Stats struct {
	TotalProcessedUSD money.Decimal `json:"total_processed_usd"`
	ActiveInvoices    int           `json:"active_invoices"`
	SettledAwaiting   int           `json:"settled_awaiting_archival"`
	Shops             int           `json:"shops"`
	SupportedTokens   int           `json:"supported_tokens"`
	RateSnapshots     int           `json:"rate_snapshots"`
}

// GetStats returns current hub-wide aggregates.
func (s *Service) GetStats(_ context.Context) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		TotalProcessedUSD: s.state.Invoices.TotalProcessedUSD,
		ActiveInvoices:    s.activeCountLocked(),
		SettledAwaiting:   len(s.state.Invoices.Inactive),
		Shops:             len(s.state.Shops.Shops),
		SupportedTokens:   len(s.state.SupportedTokens.Tokens),
		RateSnapshots:     len(s.state.ExchangeRates.Rates),
	}
}

func (s *Service) activeCountLocked() int {
	n := 0
	for _, bucket := range s.state.Invoices.Active {
		n += len(bucket)
	}
	return n
}

func (s *Service) allCountLocked() int {
	return len(s.state.Invoices.All)
}
