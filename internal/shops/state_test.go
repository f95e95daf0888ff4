package shops

import (
	"testing"

	apierrors "github.com/MesaPay/hub/internal/errors"
	"github.com/MesaPay/hub/internal/ledger"
	"github.com/MesaPay/hub/internal/money"
)

const (
	owner    = ledger.Principal("owner")
	other    = ledger.Principal("other")
	referrer = ledger.Principal("referrer")
)

func usd(t *testing.T, v string) money.Decimal {
	t.Helper()
	return money.MustParse(v, money.USDDecimals)
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	s := NewState()

	first := s.Create(nil, "First", "", "", nil, owner)
	second := s.Create(nil, "Second", "", "", nil, owner)

	if first == second {
		t.Fatal("two shops share an id")
	}
	if second != first+1 {
		t.Fatalf("ids not sequential: %d then %d", first, second)
	}
	if got := s.ByOwner(owner); len(got) != 2 {
		t.Fatalf("ByOwner = %d shops, want 2", len(got))
	}
}

func TestUpdateOwnershipTransfer(t *testing.T) {
	s := NewState()
	id := s.Create(nil, "Shop", "", "", nil, owner)

	if err := s.Update(id, UpdateParams{}, other); apierrors.CodeOf(err) != apierrors.ErrCodeAccessDenied {
		t.Fatalf("non-owner update: code = %v, want access_denied", apierrors.CodeOf(err))
	}

	newOwner := other
	name := "Renamed"
	if err := s.Update(id, UpdateParams{NewOwner: &newOwner, NewName: &name}, owner); err != nil {
		t.Fatalf("Update: %v", err)
	}

	shop, _ := s.Get(id)
	if shop.Owner != other || shop.Name != "Renamed" {
		t.Fatalf("shop = %+v", shop)
	}
	if len(s.ByOwner(owner)) != 0 {
		t.Fatal("old owner still indexed")
	}
	if len(s.ByOwner(other)) != 1 {
		t.Fatal("new owner not indexed")
	}

	// The previous owner lost control with the transfer.
	if err := s.Update(id, UpdateParams{NewName: &name}, owner); apierrors.CodeOf(err) != apierrors.ErrCodeAccessDenied {
		t.Fatal("previous owner can still update after transfer")
	}
}

func TestCanCreateInvoices(t *testing.T) {
	s := NewState()
	creator := ledger.Principal("creator-bot")
	id := s.Create([]ledger.Principal{creator}, "Shop", "", "", nil, owner)

	if !s.CanCreateInvoices(id, creator) {
		t.Fatal("listed creator rejected")
	}
	if s.CanCreateInvoices(id, other) {
		t.Fatal("unlisted principal accepted")
	}
	if s.CanCreateInvoices(999, creator) {
		t.Fatal("unknown shop accepted")
	}
}

func TestRecordEarning(t *testing.T) {
	s := NewState()
	id := s.Create(nil, "Shop", "", "", nil, owner)

	if err := s.RecordEarning(id, usd(t, "10")); err != nil {
		t.Fatalf("RecordEarning: %v", err)
	}
	if err := s.RecordEarning(id, usd(t, "2.5")); err != nil {
		t.Fatalf("RecordEarning: %v", err)
	}

	shop, _ := s.Get(id)
	if got := shop.TotalEarnedUSD.String(); got != "12.50000000" {
		t.Fatalf("TotalEarnedUSD = %s, want 12.50000000", got)
	}

	if err := s.RecordEarning(999, usd(t, "1")); apierrors.CodeOf(err) != apierrors.ErrCodeShopNotFound {
		t.Fatal("unknown shop should report shop_not_found")
	}
}

func TestReferralEarnings(t *testing.T) {
	s := NewState()
	ref := referrer
	id := s.Create(nil, "Shop", "", "", &ref, owner)

	if got := s.GetReferral(id); got == nil || *got != referrer {
		t.Fatalf("GetReferral = %v", got)
	}

	if err := s.RecordReferralEarning(referrer, id, usd(t, "0.30")); err != nil {
		t.Fatalf("RecordReferralEarning: %v", err)
	}

	referred := s.ByReferral(referrer)
	if len(referred) != 1 {
		t.Fatalf("ByReferral = %d shops, want 1", len(referred))
	}
	if got := referred[0].ReferralEarnedUSD.String(); got != "0.30000000" {
		t.Fatalf("ReferralEarnedUSD = %s", got)
	}

	// Booking against a shop the principal didn't refer must fail.
	plain := s.Create(nil, "Plain", "", "", nil, owner)
	if err := s.RecordReferralEarning(referrer, plain, usd(t, "1")); apierrors.CodeOf(err) != apierrors.ErrCodeNotFound {
		t.Fatal("unreferred shop accepted a referral earning")
	}
	if err := s.RecordReferralEarning(other, id, usd(t, "1")); apierrors.CodeOf(err) != apierrors.ErrCodeNotFound {
		t.Fatal("non-referrer accepted a referral earning")
	}
}
