package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MesaPay/hub/internal/ledger"
	"github.com/MesaPay/hub/internal/money"
	"github.com/MesaPay/hub/internal/tokens"
	"github.com/MesaPay/hub/pkg/responders"

	apierrors "github.com/MesaPay/hub/internal/errors"
)

func (h *handlers) listTokens(w http.ResponseWriter, r *http.Request) {
	responders.JSON(w, http.StatusOK, map[string]any{
		"tokens": h.hub.ListTokens(r.Context()),
	})
}

// addTokenRequest declares a token to support.
type addTokenRequest struct {
	ID           string `json:"id"`
	Ticker       string `json:"ticker"`
	OracleTicker string `json:"oracle_ticker"`
	Decimals     uint8  `json:"decimals"`
	Fee          string `json:"fee"`
	LogoSrc      string `json:"logo_src"`
	LedgerURL    string `json:"ledger_url"`
}

func (h *handlers) addToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req addTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fee, err := money.Parse(req.Fee, req.Decimals)
	if err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidAmount, "invalid token fee: "+req.Fee)
		return
	}

	oracleTicker := tokens.Ticker(req.OracleTicker)
	if oracleTicker == "" {
		oracleTicker = tokens.Ticker(req.Ticker)
	}

	token := tokens.Token{
		ID:           ledger.TokenID(req.ID),
		Ticker:       tokens.Ticker(req.Ticker),
		OracleTicker: oracleTicker,
		Fee:          fee,
		LogoSrc:      req.LogoSrc,
		LedgerURL:    req.LedgerURL,
	}
	if err := h.hub.AddToken(r.Context(), token, caller); err != nil {
		apierrors.WriteTyped(w, err)
		return
	}

	responders.JSON(w, http.StatusCreated, token)
}

func (h *handlers) removeToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	ticker := tokens.Ticker(chi.URLParam(r, "ticker"))
	if err := h.hub.RemoveToken(r.Context(), ticker, caller); err != nil {
		apierrors.WriteTyped(w, err)
		return
	}
	responders.JSON(w, http.StatusOK, map[string]any{"removed": true})
}

// getRates returns the current snapshot, or with ?timestamp= the snapshot
// that was current at that moment.
func (h *handlers) getRates(w http.ResponseWriter, r *http.Request) {
	var (
		snapshot  map[tokens.Ticker]money.Decimal
		timestamp uint64
		err       error
	)
	if raw := r.URL.Query().Get("timestamp"); raw != "" {
		var at uint64
		at, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "invalid timestamp: "+raw)
			return
		}
		snapshot, timestamp, err = h.hub.RatesAt(r.Context(), at)
	} else {
		snapshot, timestamp, err = h.hub.CurrentRates(r.Context())
	}
	if err != nil {
		apierrors.WriteTyped(w, err)
		return
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"timestamp": timestamp,
		"rates":     snapshot,
	})
}
