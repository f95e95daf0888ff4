package invoices

import (
	"encoding/hex"
	"fmt"

	"github.com/MesaPay/hub/internal/ledger"
	"github.com/MesaPay/hub/internal/money"
	"github.com/MesaPay/hub/internal/shops"
)

// InvoiceID is a 32-byte hash-derived invoice identifier.
type InvoiceID [32]byte

// String renders the id as lowercase hex.
func (id InvoiceID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText renders the id as lowercase hex (also used for JSON map keys).
func (id InvoiceID) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(id[:])), nil
}

// UnmarshalText parses a 64-char hex id.
func (id *InvoiceID) UnmarshalText(data []byte) error {
	raw, err := hex.DecodeString(string(data))
	if err != nil {
		return fmt.Errorf("invoices: invalid id hex: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("invoices: id must be 32 bytes, got %d", len(raw))
	}
	copy(id[:], raw)
	return nil
}

// StatusKind names an invoice state-machine state.
type StatusKind string

const (
	// StatusCreated: open, awaiting payment; expires when its ttl runs out.
	StatusCreated StatusKind = "created"

	// StatusVerifyPayment: a payment submission is in flight. Set before the
	// external ledger call, so a concurrent duplicate submission observes a
	// non-created state and is rejected instead of racing.
	StatusVerifyPayment StatusKind = "verify_payment"

	// StatusPaid: terminal; the settlement facts are recorded.
	StatusPaid StatusKind = "paid"
)

// PaidInfo records the settlement facts of a paid invoice.
type PaidInfo struct {
	Timestamp    uint64         `json:"timestamp"`
	TokenID      ledger.TokenID `json:"token_id"`
	Qty          money.Decimal  `json:"qty"`
	ExchangeRate money.Decimal  `json:"exchange_rate"`
}

// Status is the invoice state-machine variant. TTL is meaningful only for
// StatusCreated, Paid only for StatusPaid.
type Status struct {
	Kind StatusKind `json:"kind"`
	TTL  uint8      `json:"ttl,omitempty"`
	Paid *PaidInfo  `json:"paid,omitempty"`
}

// Invoice is a request to receive a fixed USD amount in any supported token.
// The exchange-rate timestamp locks the invoice to the snapshot current at
// creation, so later rate refreshes never change what it owes.
type Invoice struct {
	ID                    InvoiceID        `json:"id"`
	Status                Status           `json:"status"`
	Creator               ledger.Principal `json:"creator"`
	QtyUSD                money.Decimal    `json:"qty_usd"`
	CreatedAt             uint64           `json:"created_at"`
	ExchangeRateTimestamp uint64           `json:"exchange_rate_timestamp"`
	ShopID                shops.ShopID     `json:"shop_id"`
}

const (
	// DefaultTTL is the number of sweep passes a fresh invoice survives.
	DefaultTTL uint8 = 1

	// RecyclingTTL is the floor below which the sweep removes an invoice.
	RecyclingTTL uint8 = 0
)
