package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MesaPay/hub/internal/auth"
	apierrors "github.com/MesaPay/hub/internal/errors"
	"github.com/MesaPay/hub/internal/invoices"
	"github.com/MesaPay/hub/internal/ledger"
	"github.com/MesaPay/hub/internal/shops"
	"github.com/MesaPay/hub/internal/tokens"
)

// requireCaller extracts the authenticated principal or writes a 403.
func requireCaller(w http.ResponseWriter, r *http.Request) (ledger.Principal, bool) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeAccessDenied, "authentication required")
		return "", false
	}
	return caller, true
}

// decodeJSON parses the request body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// shopIDParam parses the {shopID} URL parameter.
func shopIDParam(w http.ResponseWriter, r *http.Request) (shops.ShopID, bool) {
	raw := chi.URLParam(r, "shopID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "invalid shop id")
		return 0, false
	}
	return shops.ShopID(id), true
}

// lookupToken resolves a token id against the supported set. Handlers need
// the token's decimals before they can parse amounts from request bodies.
func (h *handlers) lookupToken(r *http.Request, id ledger.TokenID) (tokens.Token, bool) {
	for _, t := range h.hub.ListTokens(r.Context()) {
		if t.ID == id {
			return t, true
		}
	}
	return tokens.Token{}, false
}

// invoiceIDParam parses the {invoiceID} URL parameter (64-char hex).
func invoiceIDParam(w http.ResponseWriter, r *http.Request) (invoices.InvoiceID, bool) {
	raw := chi.URLParam(r, "invoiceID")
	var id invoices.InvoiceID
	if err := id.UnmarshalText([]byte(raw)); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "invalid invoice id")
		return invoices.InvoiceID{}, false
	}
	return id, true
}
