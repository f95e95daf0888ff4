package invoices

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	apierrors "github.com/MesaPay/hub/internal/errors"
	"github.com/MesaPay/hub/internal/ledger"
	"github.com/MesaPay/hub/internal/money"
	"github.com/MesaPay/hub/internal/shops"
)

// State holds every live invoice plus the indexes the lifecycle needs: one
// bucket of active (non-terminal) invoice ids per exchange-rate timestamp,
// and a flat set of settled ids awaiting archival. An id lives in exactly one
// of those until it is archived or swept.
//
// Not internally synchronized; the hub state serializes access.
type State struct {
	// IDGenerator feeds forward through every generated id: each new id is a
	// hash of the previous generator value, so ids are never reused.
	IDGenerator InvoiceID `json:"invoice_id_generator"`

	All      map[InvoiceID]*Invoice       `json:"all_invoices"`
	Active   map[uint64]map[InvoiceID]bool `json:"active_invoices"`
	Inactive map[InvoiceID]bool           `json:"inactive_invoices"`

	TotalProcessedUSD money.Decimal `json:"total_processed_in_usd"`
}

// NewState creates an empty invoice collection.
func NewState() *State {
	return &State{
		All:               make(map[InvoiceID]*Invoice),
		Active:            make(map[uint64]map[InvoiceID]bool),
		Inactive:          make(map[InvoiceID]bool),
		TotalProcessedUSD: money.Zero(money.USDDecimals),
	}
}

// InitIDSeed seeds the id generator. Called once at startup with output from
// a secure randomness source; ids are unguessable only insofar as the seed is.
func (s *State) InitIDSeed(seed []byte) {
	copy(s.IDGenerator[:], seed)
}

// generateID derives a fresh id from the running generator state, the domain
// tag, and a salt, then feeds the result forward as the next generator state.
func (s *State) generateID(salt []byte) InvoiceID {
	h := sha256.New()
	h.Write(s.IDGenerator[:])
	h.Write(idGenerationDomain)
	h.Write(salt)

	var id InvoiceID
	copy(id[:], h.Sum(nil))
	s.IDGenerator = id
	return id
}

// Create inserts a new invoice in Created state, registered under the active
// bucket for ratesTimestamp, and returns its id.
func (s *State) Create(qtyUSD money.Decimal, shopID shops.ShopID, now, ratesTimestamp uint64, caller ledger.Principal) InvoiceID {
	var salt [8]byte
	binary.LittleEndian.PutUint64(salt[:], now)
	id := s.generateID(salt[:])

	inv := &Invoice{
		ID:                    id,
		Status:                Status{Kind: StatusCreated, TTL: DefaultTTL},
		Creator:               caller,
		QtyUSD:                qtyUSD,
		CreatedAt:             now,
		ExchangeRateTimestamp: ratesTimestamp,
		ShopID:                shopID,
	}

	bucket, ok := s.Active[ratesTimestamp]
	if !ok {
		bucket = make(map[InvoiceID]bool)
		s.Active[ratesTimestamp] = bucket
	}
	bucket[id] = true

	s.All[id] = inv
	return id
}

// Get returns the invoice registered under id.
func (s *State) Get(id InvoiceID) (*Invoice, bool) {
	inv, ok := s.All[id]
	return inv, ok
}

// VerificationLock is the data a verifier needs after locking an invoice:
// the locked rate timestamp, and the ttl to restore should verification fail.
type VerificationLock struct {
	RateTimestamp uint64
	TTL           uint8
}

// BeginVerification atomically transitions a Created invoice to
// VerifyPayment for its creator. The status field is the mutual-exclusion
// mechanism: it is set before any suspension for the external ledger call,
// so a concurrent duplicate attempt observes a non-created state here and is
// rejected before it can race.
func (s *State) BeginVerification(id InvoiceID, caller ledger.Principal) (VerificationLock, error) {
	inv, ok := s.All[id]
	if !ok {
		// Indistinguishable from a foreign invoice on purpose.
		return VerificationLock{}, apierrors.New(apierrors.ErrCodeAccessDenied, "access denied")
	}

	if inv.Creator != caller {
		return VerificationLock{}, apierrors.New(apierrors.ErrCodeAccessDenied, "access denied")
	}

	switch inv.Status.Kind {
	case StatusCreated:
	case StatusVerifyPayment:
		return VerificationLock{}, apierrors.New(apierrors.ErrCodeInvalidState, "a verification for this invoice is already in progress")
	default:
		return VerificationLock{}, apierrors.New(apierrors.ErrCodeInvalidState, "the invoice is already paid")
	}

	lock := VerificationLock{
		RateTimestamp: inv.ExchangeRateTimestamp,
		TTL:           inv.Status.TTL,
	}
	inv.Status = Status{Kind: StatusVerifyPayment}
	return lock, nil
}

// VerifyPayment validates an untrusted transfer record against a locked
// invoice and settles it on success. The checks run in order, failing fast:
// recipient principal, recipient subaccount, memo, then amount. The returned
// bool reports whether the whole active-invoice index is now empty, a signal
// that snapshot cleanup may be possible.
//
// On failure the caller must restore the invoice with RestoreAfterFailure;
// the failure surfaces after an await, so rollback cannot happen here.
func (s *State) VerifyPayment(id InvoiceID, txn ledger.TransferTxn, exchangeRate money.Decimal, ownIdentity ledger.Principal, now uint64) (Invoice, bool, error) {
	inv, ok := s.All[id]
	if !ok {
		return Invoice{}, false, apierrors.Newf(apierrors.ErrCodeInvoiceNotFound, "invoice %s not found", id)
	}

	if inv.Status.Kind != StatusVerifyPayment {
		return Invoice{}, false, apierrors.New(apierrors.ErrCodeInvalidState, "invoice is not locked for verification")
	}

	// 1. The transfer must pay this hub; anything else means the funds
	// landed in an account nobody here controls.
	if txn.To.Owner != ownIdentity {
		return Invoice{}, false, apierrors.Newf(apierrors.ErrCodeFundsAtRisk,
			"invalid recipient - funds are lost: expected %s, actual %s", ownIdentity, txn.To.Owner)
	}

	// 2. The subaccount must be the one derived for the invoice's shop.
	expectedSub := ShopSubaccount(inv.ShopID)
	actualSub := txn.To.EffectiveSubaccount()
	if actualSub != expectedSub {
		return Invoice{}, false, apierrors.Newf(apierrors.ErrCodeValidationFailed,
			"invalid recipient subaccount: expected %x, actual %x", expectedSub, actualSub)
	}

	// 3. The memo must bind the transfer to exactly this invoice.
	expectedMemo := MemoForInvoice(id)
	if txn.Memo != expectedMemo {
		return Invoice{}, false, apierrors.Newf(apierrors.ErrCodeValidationFailed,
			"transfer memo doesn't match the invoice one: expected %x, actual %x", expectedMemo, txn.Memo)
	}

	// 4. The amount, at the locked rate and the token's decimals, must cover
	// the invoice up to a 1% tolerance. The tolerance absorbs rounding from
	// rate/decimal conversion, not business slippage.
	minQty, err := minAcceptedQty(inv.QtyUSD, exchangeRate, txn.Qty.Decimals())
	if err != nil {
		return Invoice{}, false, fmt.Errorf("invoices: compute expected amount: %w", err)
	}
	cmp, err := txn.Qty.Cmp(minQty)
	if err != nil {
		return Invoice{}, false, fmt.Errorf("invoices: compare amounts: %w", err)
	}
	if cmp < 0 {
		return Invoice{}, false, apierrors.Newf(apierrors.ErrCodeValidationFailed,
			"insufficient transfer: expected at least %s, actual %s", minQty, txn.Qty)
	}

	inv.Status = Status{
		Kind: StatusPaid,
		Paid: &PaidInfo{
			Timestamp:    now,
			TokenID:      txn.TokenID,
			Qty:          txn.Qty,
			ExchangeRate: exchangeRate,
		},
	}

	// The invoice leaves its rate-timestamp bucket and joins the archival
	// queue. An empty bucket is dropped so the emptiness signal below means
	// something.
	if bucket, ok := s.Active[inv.ExchangeRateTimestamp]; ok {
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(s.Active, inv.ExchangeRateTimestamp)
		}
	}
	s.Inactive[id] = true

	if total, err := s.TotalProcessedUSD.Add(inv.QtyUSD); err == nil {
		s.TotalProcessedUSD = total
	}

	return *inv, len(s.Active) == 0, nil
}

// minAcceptedQty converts the invoice's USD amount to token units at the
// locked rate, rescales to the token's decimals, and applies the 1%
// tolerance.
func minAcceptedQty(qtyUSD, rate money.Decimal, tokenDecimals uint8) (money.Decimal, error) {
	expectedUSD := qtyUSD
	expected, err := expectedUSD.Div(rate)
	if err != nil {
		return money.Decimal{}, err
	}

	expectedTok, err := expected.Rescale(tokenDecimals)
	if err != nil {
		return money.Decimal{}, err
	}

	return expectedTok.MulUint64(99).DivUint64(100)
}

// RestoreAfterFailure returns a locked invoice to a retryable Created state
// with the ttl captured at lock time. It is the explicit counterpart of
// BeginVerification for the failure path.
func (s *State) RestoreAfterFailure(id InvoiceID, ttl uint8) {
	inv, ok := s.All[id]
	if !ok || inv.Status.Kind != StatusVerifyPayment {
		return
	}
	inv.Status = Status{Kind: StatusCreated, TTL: ttl}
}

// ForceUnlock is the administrative unstick path for an invoice left in
// VerifyPayment by an orchestrator crash. It restores Created with the
// default ttl.
func (s *State) ForceUnlock(id InvoiceID) error {
	inv, ok := s.All[id]
	if !ok {
		return apierrors.Newf(apierrors.ErrCodeInvoiceNotFound, "invoice %s not found", id)
	}
	if inv.Status.Kind != StatusVerifyPayment {
		return apierrors.New(apierrors.ErrCodeInvalidState, "invoice is not locked for verification")
	}
	inv.Status = Status{Kind: StatusCreated, TTL: DefaultTTL}
	return nil
}

// SweepExpired decrements the ttl of every Created invoice and removes those
// already at the floor (abandoned, never settled - not archived). Invoices
// locked in VerifyPayment are left alone. It returns the rate timestamps
// whose buckets became empty, so the caller can reclaim their snapshots.
func (s *State) SweepExpired() []uint64 {
	var emptied []uint64

	for ts, bucket := range s.Active {
		for id := range bucket {
			inv, ok := s.All[id]
			if !ok || inv.Status.Kind != StatusCreated {
				continue
			}

			if inv.Status.TTL > RecyclingTTL {
				inv.Status.TTL--
				continue
			}

			delete(s.All, id)
			delete(bucket, id)
		}

		if len(bucket) == 0 {
			delete(s.Active, ts)
			emptied = append(emptied, ts)
		}
	}

	sort.Slice(emptied, func(i, j int) bool { return emptied[i] < emptied[j] })
	return emptied
}

// PrepareArchiveBatch pops up to max settled invoices from the inactive set
// and the primary table, in id order, for handoff to the archive service.
// If the handoff fails, ReapplyArchiveBatch undoes the pop.
func (s *State) PrepareArchiveBatch(max int) []Invoice {
	ids := make([]InvoiceID, 0, len(s.Inactive))
	for id := range s.Inactive {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return string(ids[i][:]) < string(ids[j][:])
	})

	if len(ids) > max {
		ids = ids[:max]
	}

	batch := make([]Invoice, 0, len(ids))
	for _, id := range ids {
		inv, ok := s.All[id]
		if !ok {
			delete(s.Inactive, id)
			continue
		}
		batch = append(batch, *inv)
		delete(s.Inactive, id)
		delete(s.All, id)
	}

	return batch
}

// ReapplyArchiveBatch reinserts a batch popped by PrepareArchiveBatch,
// preserving at-least-once archival when the external push fails.
func (s *State) ReapplyArchiveBatch(batch []Invoice) {
	for i := range batch {
		inv := batch[i]
		s.Inactive[inv.ID] = true
		s.All[inv.ID] = &inv
	}
}
