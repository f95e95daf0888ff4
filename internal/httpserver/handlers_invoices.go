package httpserver

import (
	"net/http"

	"github.com/MesaPay/hub/internal/hub"
	"github.com/MesaPay/hub/internal/ledger"
	"github.com/MesaPay/hub/internal/logger"
	"github.com/MesaPay/hub/internal/money"
	"github.com/MesaPay/hub/internal/shops"
	"github.com/MesaPay/hub/pkg/responders"

	apierrors "github.com/MesaPay/hub/internal/errors"
)

// createInvoiceRequest is the JSON body of an invoice creation.
type createInvoiceRequest struct {
	ShopID uint64 `json:"shop_id"`

	// QtyUSD is a decimal string, e.g. "10.50".
	QtyUSD string `json:"qty_usd"`
}

func (h *handlers) createInvoice(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req createInvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	qty, err := money.Parse(req.QtyUSD, money.USDDecimals)
	if err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidAmount, "invalid usd amount: "+req.QtyUSD)
		return
	}

	inv, err := h.hub.CreateInvoice(r.Context(), shops.ShopID(req.ShopID), qty, caller)
	if err != nil {
		apierrors.WriteTyped(w, err)
		return
	}

	responders.JSON(w, http.StatusCreated, inv)
}

func (h *handlers) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceIDParam(w, r)
	if !ok {
		return
	}

	inv, err := h.hub.GetInvoice(r.Context(), id)
	if err != nil {
		apierrors.WriteTyped(w, err)
		return
	}
	responders.JSON(w, http.StatusOK, inv)
}

// verifyPaymentRequest points at the ledger block said to pay the invoice.
type verifyPaymentRequest struct {
	TokenID  string `json:"token_id"`
	BlockIdx uint64 `json:"block_idx"`
}

func (h *handlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := invoiceIDParam(w, r)
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	paid, err := h.hub.VerifyPayment(r.Context(), hub.VerifyPaymentRequest{
		InvoiceID: id,
		TokenID:   ledger.TokenID(req.TokenID),
		BlockIdx:  req.BlockIdx,
	}, caller)
	if err != nil {
		logger.FromContext(r.Context()).Warn().
			Err(err).
			Str("invoice_id", id.String()).
			Msg("invoices.verify_failed")
		apierrors.WriteTyped(w, err)
		return
	}

	responders.JSON(w, http.StatusOK, paid)
}

func (h *handlers) forceUnlockInvoice(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := invoiceIDParam(w, r)
	if !ok {
		return
	}

	if err := h.hub.ForceUnlockInvoice(r.Context(), id, caller); err != nil {
		apierrors.WriteTyped(w, err)
		return
	}
	responders.JSON(w, http.StatusOK, map[string]any{"unlocked": true})
}
