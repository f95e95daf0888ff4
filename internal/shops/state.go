package shops

import (
	"fmt"
	"sort"

	apierrors "github.com/MesaPay/hub/internal/errors"
	"github.com/MesaPay/hub/internal/ledger"
	"github.com/MesaPay/hub/internal/money"
)

// ShopID identifies a registered shop.
type ShopID uint64

// Shop is a merchant account. Earnings accumulate in USD (8 decimals) and
// only ever grow; withdrawals move token balances, not this counter.
type Shop struct {
	ID              ShopID             `json:"id"`
	Owner           ledger.Principal   `json:"owner"`
	InvoiceCreators []ledger.Principal `json:"invoice_creators"`
	Name            string             `json:"name"`
	Description     string             `json:"description"`
	IconBase64      string             `json:"icon_base64"`
	Referral        *ledger.Principal  `json:"referral,omitempty"`
	TotalEarnedUSD  money.Decimal      `json:"total_earned_usd"`
}

// CanCreateInvoices reports whether caller is an authorized invoice creator.
func (s *Shop) CanCreateInvoices(caller ledger.Principal) bool {
	for _, p := range s.InvoiceCreators {
		if p == caller {
			return true
		}
	}
	return false
}

// ReferredShop is a shop seen from its referrer's perspective, with the
// referrer's accumulated earnings for it.
type ReferredShop struct {
	Shop
	ReferralEarnedUSD money.Decimal `json:"referral_earned_usd"`
}

// State is the shop registry and earnings ledger.
// Not internally synchronized; the hub state serializes access.
type State struct {
	ShopIDGenerator ShopID                                        `json:"shop_id_generator"`
	Shops           map[ShopID]*Shop                              `json:"shops"`
	OwnerToShops    map[ledger.Principal]map[ShopID]bool          `json:"owner_to_shops"`
	ReferralToShops map[ledger.Principal]map[ShopID]money.Decimal `json:"referral_to_shops"`
}

// NewState creates an empty shop registry.
func NewState() *State {
	return &State{
		Shops:           make(map[ShopID]*Shop),
		OwnerToShops:    make(map[ledger.Principal]map[ShopID]bool),
		ReferralToShops: make(map[ledger.Principal]map[ShopID]money.Decimal),
	}
}

// Create registers a new shop owned by caller and returns its id.
func (s *State) Create(invoiceCreators []ledger.Principal, name, description, iconBase64 string, referral *ledger.Principal, caller ledger.Principal) ShopID {
	id := s.ShopIDGenerator
	s.ShopIDGenerator++

	s.Shops[id] = &Shop{
		ID:              id,
		Owner:           caller,
		InvoiceCreators: invoiceCreators,
		Name:            name,
		Description:     description,
		IconBase64:      iconBase64,
		Referral:        referral,
		TotalEarnedUSD:  money.Zero(money.USDDecimals),
	}

	if s.OwnerToShops[caller] == nil {
		s.OwnerToShops[caller] = make(map[ShopID]bool)
	}
	s.OwnerToShops[caller][id] = true

	if referral != nil {
		if s.ReferralToShops[*referral] == nil {
			s.ReferralToShops[*referral] = make(map[ShopID]money.Decimal)
		}
		s.ReferralToShops[*referral][id] = money.Zero(money.USDDecimals)
	}

	return id
}

// UpdateParams carries the optional fields of an Update call; nil means keep.
type UpdateParams struct {
	NewOwner           *ledger.Principal
	NewInvoiceCreators []ledger.Principal
	NewName            *string
	NewDescription     *string
	NewIconBase64      *string
}

// Update mutates a shop. Only the current owner may update; transferring
// ownership re-indexes the owner relation.
func (s *State) Update(id ShopID, params UpdateParams, caller ledger.Principal) error {
	shop, ok := s.Shops[id]
	if !ok {
		return apierrors.Newf(apierrors.ErrCodeShopNotFound, "shop %d not found", id)
	}

	if shop.Owner != caller {
		return apierrors.New(apierrors.ErrCodeAccessDenied, "only the shop owner can update it")
	}

	if params.NewOwner != nil {
		delete(s.OwnerToShops[shop.Owner], id)
		if s.OwnerToShops[*params.NewOwner] == nil {
			s.OwnerToShops[*params.NewOwner] = make(map[ShopID]bool)
		}
		s.OwnerToShops[*params.NewOwner][id] = true
		shop.Owner = *params.NewOwner
	}

	if params.NewInvoiceCreators != nil {
		shop.InvoiceCreators = params.NewInvoiceCreators
	}
	if params.NewName != nil {
		shop.Name = *params.NewName
	}
	if params.NewDescription != nil {
		shop.Description = *params.NewDescription
	}
	if params.NewIconBase64 != nil {
		shop.IconBase64 = *params.NewIconBase64
	}

	return nil
}

// Get returns the shop registered under id.
func (s *State) Get(id ShopID) (*Shop, bool) {
	shop, ok := s.Shops[id]
	return shop, ok
}

// GetReferral returns the referrer of a shop, if it has one.
func (s *State) GetReferral(id ShopID) *ledger.Principal {
	shop, ok := s.Shops[id]
	if !ok {
		return nil
	}
	return shop.Referral
}

// ByOwner returns all shops owned by owner, ordered by id.
func (s *State) ByOwner(owner ledger.Principal) []*Shop {
	ids := sortedIDs(s.OwnerToShops[owner])
	out := make([]*Shop, 0, len(ids))
	for _, id := range ids {
		if shop, ok := s.Shops[id]; ok {
			out = append(out, shop)
		}
	}
	return out
}

// ByReferral returns all shops referred by referral with the referrer's
// per-shop earnings, ordered by id.
func (s *State) ByReferral(referral ledger.Principal) []ReferredShop {
	earnings := s.ReferralToShops[referral]
	ids := make([]ShopID, 0, len(earnings))
	for id := range earnings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]ReferredShop, 0, len(ids))
	for _, id := range ids {
		shop, ok := s.Shops[id]
		if !ok {
			continue
		}
		out = append(out, ReferredShop{Shop: *shop, ReferralEarnedUSD: earnings[id]})
	}
	return out
}

// CanCreateInvoices reports whether caller may create invoices for shop id.
func (s *State) CanCreateInvoices(id ShopID, caller ledger.Principal) bool {
	shop, ok := s.Shops[id]
	return ok && shop.CanCreateInvoices(caller)
}

// RecordEarning adds a settled USD amount to the shop's running total.
// Called only on successful payment settlement.
func (s *State) RecordEarning(id ShopID, amountUSD money.Decimal) error {
	shop, ok := s.Shops[id]
	if !ok {
		return apierrors.Newf(apierrors.ErrCodeShopNotFound, "shop %d not found", id)
	}

	total, err := shop.TotalEarnedUSD.Add(amountUSD)
	if err != nil {
		return fmt.Errorf("shops: record earning: %w", err)
	}
	shop.TotalEarnedUSD = total
	return nil
}

// RecordReferralEarning adds a referral-fee amount to the referrer's
// per-shop total. Called only after the referral transfer succeeds.
func (s *State) RecordReferralEarning(referral ledger.Principal, id ShopID, amountUSD money.Decimal) error {
	byShop, ok := s.ReferralToShops[referral]
	if !ok {
		return apierrors.Newf(apierrors.ErrCodeNotFound, "principal %s refers no shops", referral)
	}
	current, ok := byShop[id]
	if !ok {
		return apierrors.Newf(apierrors.ErrCodeNotFound, "shop %d is not referred by %s", id, referral)
	}

	total, err := current.Add(amountUSD)
	if err != nil {
		return fmt.Errorf("shops: record referral earning: %w", err)
	}
	byShop[id] = total
	return nil
}

func sortedIDs(set map[ShopID]bool) []ShopID {
	ids := make([]ShopID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
