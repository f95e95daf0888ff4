package invoices

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/MesaPay/hub/internal/ledger"
	"github.com/MesaPay/hub/internal/shops"
)

// Domain-separation tags. These are stable byte sequences: changing one
// breaks the binding between persisted invoices and their derived memos and
// subaccounts.
var (
	idGenerationDomain   = []byte("mesapay-id-generation")
	memoGenerationDomain = []byte("mesapay-memo-generation")
	shopSubaccountDomain = []byte("mesapay-shop-id-subaccount")
)

// ShopSubaccount derives the subaccount that routes funds to one shop's
// balance within the hub's account space.
func ShopSubaccount(id shops.ShopID) ledger.Subaccount {
	h := sha256.New()
	h.Write(shopSubaccountDomain)

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	h.Write(buf[:])

	var out ledger.Subaccount
	copy(out[:], h.Sum(nil))
	return out
}

// MemoForInvoice derives the transfer memo that binds an otherwise fungible
// transfer to exactly one invoice.
func MemoForInvoice(id InvoiceID) ledger.Memo {
	h := sha256.New()
	h.Write(memoGenerationDomain)
	h.Write(id[:])

	var out ledger.Memo
	copy(out[:], h.Sum(nil))
	return out
}
