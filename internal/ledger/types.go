package ledger

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/MesaPay/hub/internal/money"
)

// Principal is the textual identity of an account owner: a caller, a shop
// owner, a ledger service, or this hub itself.
type Principal string

// TokenID identifies a supported token's ledger service.
type TokenID string

// Subaccount routes funds within one owner's account space. The hub derives
// one subaccount per shop so earnings stay separated.
type Subaccount [32]byte

// Memo is the 32-byte transfer annotation binding a transfer to an invoice.
type Memo [32]byte

// Account is a (owner, subaccount) pair. A nil subaccount means the default
// (all-zero) subaccount.
type Account struct {
	Owner      Principal   `json:"owner"`
	Subaccount *Subaccount `json:"subaccount,omitempty"`
}

// EffectiveSubaccount returns the subaccount, defaulting to all zeroes.
func (a Account) EffectiveSubaccount() Subaccount {
	if a.Subaccount == nil {
		return Subaccount{}
	}
	return *a.Subaccount
}

// TransferTxn is a validated transfer record extracted from a ledger block.
type TransferTxn struct {
	From    Account       `json:"from"`
	To      Account       `json:"to"`
	Qty     money.Decimal `json:"qty"`
	TokenID TokenID       `json:"token_id"`
	Memo    Memo          `json:"memo"`
}

// TransferArgs describes an outgoing transfer submission.
type TransferArgs struct {
	FromSubaccount *Subaccount   `json:"from_subaccount,omitempty"`
	To             Account       `json:"to"`
	Amount         money.Decimal `json:"amount"`
	Fee            money.Decimal `json:"fee"`
	Memo           *Memo         `json:"memo,omitempty"`
}

// MarshalText renders a subaccount as lowercase hex.
func (s Subaccount) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(s[:])), nil
}

// UnmarshalText parses a 64-char hex subaccount.
func (s *Subaccount) UnmarshalText(data []byte) error {
	return decode32(s[:], data, "subaccount")
}

// MarshalText renders a memo as lowercase hex.
func (m Memo) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(m[:])), nil
}

// UnmarshalText parses a 64-char hex memo.
func (m *Memo) UnmarshalText(data []byte) error {
	return decode32(m[:], data, "memo")
}

func decode32(dst []byte, data []byte, what string) error {
	raw, err := hex.DecodeString(string(data))
	if err != nil {
		return fmt.Errorf("ledger: invalid %s hex: %w", what, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("ledger: %s must be 32 bytes, got %d", what, len(raw))
	}
	copy(dst, raw)
	return nil
}

// ErrBlockOutOfRange is returned when the requested block index exceeds the
// ledger's log length.
var ErrBlockOutOfRange = errors.New("ledger: block index out of range")
