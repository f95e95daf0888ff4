package httpserver

import (
	"net/http"

	"github.com/MesaPay/hub/internal/hub"
	"github.com/MesaPay/hub/internal/ledger"
	"github.com/MesaPay/hub/internal/logger"
	"github.com/MesaPay/hub/internal/shops"
	"github.com/MesaPay/hub/pkg/responders"

	apierrors "github.com/MesaPay/hub/internal/errors"
)

// createShopRequest is the JSON body of a shop registration.
type createShopRequest struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	IconBase64      string   `json:"icon_base64"`
	InvoiceCreators []string `json:"invoice_creators"`
	Referral        *string  `json:"referral"`
}

func (h *handlers) createShop(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req createShopRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	creators := make([]ledger.Principal, 0, len(req.InvoiceCreators))
	for _, c := range req.InvoiceCreators {
		creators = append(creators, ledger.Principal(c))
	}
	var referral *ledger.Principal
	if req.Referral != nil && *req.Referral != "" {
		p := ledger.Principal(*req.Referral)
		referral = &p
	}

	shop, err := h.hub.CreateShop(r.Context(), hub.CreateShopParams{
		InvoiceCreators: creators,
		Name:            req.Name,
		Description:     req.Description,
		IconBase64:      req.IconBase64,
		Referral:        referral,
	}, caller)
	if err != nil {
		apierrors.WriteTyped(w, err)
		return
	}

	responders.JSON(w, http.StatusCreated, shop)
}

// updateShopRequest carries the optional fields of a shop update.
type updateShopRequest struct {
	NewOwner           *string  `json:"new_owner"`
	NewInvoiceCreators []string `json:"new_invoice_creators"`
	NewName            *string  `json:"new_name"`
	NewDescription     *string  `json:"new_description"`
	NewIconBase64      *string  `json:"new_icon_base64"`
}

func (h *handlers) updateShop(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := shopIDParam(w, r)
	if !ok {
		return
	}

	var req updateShopRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	params := shops.UpdateParams{
		NewName:        req.NewName,
		NewDescription: req.NewDescription,
		NewIconBase64:  req.NewIconBase64,
	}
	if req.NewOwner != nil {
		p := ledger.Principal(*req.NewOwner)
		params.NewOwner = &p
	}
	if req.NewInvoiceCreators != nil {
		creators := make([]ledger.Principal, 0, len(req.NewInvoiceCreators))
		for _, c := range req.NewInvoiceCreators {
			creators = append(creators, ledger.Principal(c))
		}
		params.NewInvoiceCreators = creators
	}

	if err := h.hub.UpdateShop(r.Context(), id, params, caller); err != nil {
		logger.FromContext(r.Context()).Warn().
			Err(err).
			Uint64("shop_id", uint64(id)).
			Msg("shops.update_failed")
		apierrors.WriteTyped(w, err)
		return
	}

	responders.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *handlers) getShop(w http.ResponseWriter, r *http.Request) {
	id, ok := shopIDParam(w, r)
	if !ok {
		return
	}

	shop, err := h.hub.GetShop(r.Context(), id)
	if err != nil {
		apierrors.WriteTyped(w, err)
		return
	}
	responders.JSON(w, http.StatusOK, shop)
}

func (h *handlers) myShops(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"shops": h.hub.MyShops(r.Context(), caller),
	})
}

func (h *handlers) myReferredShops(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"shops": h.hub.MyReferredShops(r.Context(), caller),
	})
}
