package httpserver

import (
	"net/http"

	"github.com/MesaPay/hub/internal/hub"
	"github.com/MesaPay/hub/internal/ledger"
	"github.com/MesaPay/hub/internal/logger"
	"github.com/MesaPay/hub/internal/money"
	"github.com/MesaPay/hub/pkg/responders"

	apierrors "github.com/MesaPay/hub/internal/errors"
)

// withdrawRequest asks to pay out part of a shop's token balance.
type withdrawRequest struct {
	TokenID string `json:"token_id"`

	// Qty is a decimal string in whole-token units at the token's decimals.
	Qty string `json:"qty"`

	To struct {
		Owner      string `json:"owner"`
		Subaccount string `json:"subaccount,omitempty"`
	} `json:"to"`
}

func (h *handlers) withdrawProfit(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	shopID, ok := shopIDParam(w, r)
	if !ok {
		return
	}

	var req withdrawRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.To.Owner == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "destination owner is required")
		return
	}

	token, found := h.lookupToken(r, ledger.TokenID(req.TokenID))
	if !found {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeTokenNotFound, "token "+req.TokenID+" is not supported")
		return
	}

	qty, err := money.Parse(req.Qty, token.Decimals())
	if err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidAmount, "invalid amount: "+req.Qty)
		return
	}

	to := ledger.Account{Owner: ledger.Principal(req.To.Owner)}
	if req.To.Subaccount != "" {
		var sub ledger.Subaccount
		if err := sub.UnmarshalText([]byte(req.To.Subaccount)); err != nil {
			apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "invalid destination subaccount")
			return
		}
		to.Subaccount = &sub
	}

	result, err := h.hub.WithdrawProfit(r.Context(), hub.WithdrawRequest{
		ShopID:  shopID,
		TokenID: token.ID,
		Qty:     qty,
		To:      to,
	}, caller)
	if err != nil {
		logger.FromContext(r.Context()).Warn().
			Err(err).
			Uint64("shop_id", uint64(shopID)).
			Msg("withdraw.failed")
		apierrors.WriteTyped(w, err)
		return
	}

	responders.JSON(w, http.StatusOK, result)
}
