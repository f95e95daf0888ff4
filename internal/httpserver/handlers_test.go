package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/rs/zerolog"

	"github.com/MesaPay/hub/internal/config"
	"github.com/MesaPay/hub/internal/hub"
	"github.com/MesaPay/hub/internal/rates"
)

func newTestServer(t *testing.T) (*Server, *hub.Service) {
	t.Helper()

	cfg := &config.Config{}
	cfg.APIKey.Enabled = false
	cfg.RateLimit.Enabled = false

	state := hub.NewState("fee-collector", true)
	state.Invoices.InitIDSeed([]byte("httpserver-test-seed-32-byte-val"))

	svc := hub.NewService(state, hub.Dependencies{
		Oracle:   &rates.MockOracle{},
		Logger:   zerolog.Nop(),
		Identity: "hub-identity",
		Admin:    "admin",
	})
	return New(cfg, svc, zerolog.Nop()), svc
}

// do performs a request against the router. With API keys disabled the
// X-API-Key header value is the principal itself.
func do(t *testing.T, s *Server, method, path, principal string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if principal != "" {
		req.Header.Set("X-API-Key", principal)
	}

	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, rec, &resp)
	return resp.Error.Code
}

func TestStatefulEndpointsRequireAuthentication(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/shops", "", map[string]string{"name": "Shop"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if code := errorCode(t, rec); code != "access_denied" {
		t.Fatalf("error code = %s", code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]any
	decodeBody(t, rec, &resp)
	if resp["status"] != "ok" {
		t.Fatalf("status field = %v", resp["status"])
	}
}

func TestTokenManagementOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)

	body := map[string]any{
		"id":         "wtn-ledger",
		"ticker":     "WTN",
		"decimals":   8,
		"fee":        "0.0001",
		"ledger_url": "http://wtn-ledger.local",
	}

	if rec := do(t, s, http.MethodPost, "/v1/tokens", "merchant", body); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin add token: status = %d, want 403", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/v1/tokens", "admin", body); rec.Code != http.StatusCreated {
		t.Fatalf("admin add token: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec := do(t, s, http.MethodGet, "/v1/tokens", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list tokens: status = %d", rec.Code)
	}
	var listed struct {
		Tokens []struct {
			Ticker string `json:"ticker"`
		} `json:"tokens"`
	}
	decodeBody(t, rec, &listed)
	if len(listed.Tokens) != 1 || listed.Tokens[0].Ticker != "WTN" {
		t.Fatalf("listed = %+v", listed)
	}

	if rec := do(t, s, http.MethodDelete, "/v1/tokens/WTN", "admin", nil); rec.Code != http.StatusOK {
		t.Fatalf("remove token: status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, "/v1/tokens/WTN", "admin", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("remove missing token: status = %d, want 404", rec.Code)
	}
}

func TestInvoiceFlowOverHTTP(t *testing.T) {
	s, svc := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/shops", "merchant", map[string]any{"name": "Shop"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create shop: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var shop struct {
		ID uint64 `json:"id"`
	}
	decodeBody(t, rec, &shop)

	// No rates fetched yet: invoice creation has nothing to lock to.
	invoiceBody := map[string]any{"shop_id": shop.ID, "qty_usd": "10"}
	if rec := do(t, s, http.MethodPost, "/v1/invoices", "merchant", invoiceBody); rec.Code != http.StatusNotFound {
		t.Fatalf("invoice without rates: status = %d, want 404", rec.Code)
	}

	if err := svc.RefreshExchangeRates(context.Background()); err != nil {
		t.Fatalf("RefreshExchangeRates: %v", err)
	}

	rec = do(t, s, http.MethodPost, "/v1/invoices", "merchant", invoiceBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create invoice: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var inv struct {
		ID     string `json:"id"`
		QtyUSD struct {
			Value    string `json:"value"`
			Decimals uint8  `json:"decimals"`
		} `json:"qty_usd"`
		Status struct {
			Kind string `json:"kind"`
		} `json:"status"`
	}
	decodeBody(t, rec, &inv)
	if inv.Status.Kind != "created" {
		t.Fatalf("invoice status = %+v", inv.Status)
	}
	if inv.QtyUSD.Value != "1000000000" || inv.QtyUSD.Decimals != 8 {
		t.Fatalf("invoice qty = %+v", inv.QtyUSD)
	}

	// Invoice lookup is public: payment pages are unauthenticated.
	if rec := do(t, s, http.MethodGet, "/v1/invoices/"+inv.ID, "", nil); rec.Code != http.StatusOK {
		t.Fatalf("get invoice: status = %d", rec.Code)
	}

	if rec := do(t, s, http.MethodGet, "/v1/invoices/not-hex", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed invoice id: status = %d, want 400", rec.Code)
	}

	bogus := "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	if rec := do(t, s, http.MethodGet, "/v1/invoices/"+bogus, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown invoice id: status = %d, want 404", rec.Code)
	}

	// An amount the USD parser rejects never reaches the service.
	badAmount := map[string]any{"shop_id": shop.ID, "qty_usd": "ten dollars"}
	if rec := do(t, s, http.MethodPost, "/v1/invoices", "merchant", badAmount); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad amount: status = %d, want 400", rec.Code)
	}
}

func TestRatesEndpoint(t *testing.T) {
	s, svc := newTestServer(t)

	if rec := do(t, s, http.MethodGet, "/v1/rates", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("rates before first fetch: status = %d, want 404", rec.Code)
	}

	if err := svc.RefreshExchangeRates(context.Background()); err != nil {
		t.Fatalf("RefreshExchangeRates: %v", err)
	}

	rec := do(t, s, http.MethodGet, "/v1/rates", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("current rates: status = %d", rec.Code)
	}
	var current struct {
		Timestamp uint64 `json:"timestamp"`
	}
	decodeBody(t, rec, &current)
	if current.Timestamp == 0 {
		t.Fatal("missing snapshot timestamp")
	}

	// A historical query at the snapshot's own timestamp resolves to it.
	at := "/v1/rates?timestamp=" + strconv.FormatUint(current.Timestamp, 10)
	rec = do(t, s, http.MethodGet, at, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("historical rates: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var historical struct {
		Timestamp uint64 `json:"timestamp"`
	}
	decodeBody(t, rec, &historical)
	if historical.Timestamp != current.Timestamp {
		t.Fatalf("historical timestamp = %d, want %d", historical.Timestamp, current.Timestamp)
	}

	// Before the first snapshot there is nothing to resolve to.
	if rec := do(t, s, http.MethodGet, "/v1/rates?timestamp=1", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("too-early query: status = %d, want 404", rec.Code)
	}

	if rec := do(t, s, http.MethodGet, "/v1/rates?timestamp=yesterday", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed timestamp: status = %d, want 400", rec.Code)
	}
}

func TestShopQueriesOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)

	for _, name := range []string{"First", "Second"} {
		rec := do(t, s, http.MethodPost, "/v1/shops", "merchant", map[string]any{"name": name})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create shop %s: status = %d", name, rec.Code)
		}
	}

	rec := do(t, s, http.MethodGet, "/v1/shops", "merchant", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("my shops: status = %d", rec.Code)
	}
	var mine struct {
		Shops []struct {
			Name string `json:"name"`
		} `json:"shops"`
	}
	decodeBody(t, rec, &mine)
	if len(mine.Shops) != 2 {
		t.Fatalf("my shops = %d, want 2", len(mine.Shops))
	}

	if rec := do(t, s, http.MethodGet, "/v1/shops/999", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown shop: status = %d, want 404", rec.Code)
	}

	patch := map[string]any{"new_name": "Renamed"}
	if rec := do(t, s, http.MethodPatch, "/v1/shops/0", "stranger", patch); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign update: status = %d, want 403", rec.Code)
	}
	if rec := do(t, s, http.MethodPatch, "/v1/shops/0", "merchant", patch); rec.Code != http.StatusOK {
		t.Fatalf("owner update: status = %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/v1/shops/0", "", nil)
	var shop struct {
		Name string `json:"name"`
	}
	decodeBody(t, rec, &shop)
	if shop.Name != "Renamed" {
		t.Fatalf("shop name = %s", shop.Name)
	}
}
