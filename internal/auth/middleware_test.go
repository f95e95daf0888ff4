package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MesaPay/hub/internal/ledger"
)

func callWithKey(t *testing.T, cfg Config, key string) (ledger.Principal, bool) {
	t.Helper()

	var got ledger.Principal
	var ok bool
	handler := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = CallerFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/shops", nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got, ok
}

func TestMiddlewareResolvesKnownKey(t *testing.T) {
	cfg := Config{
		Enabled: true,
		Keys:    map[string]ledger.Principal{"secret-key": "merchant-principal"},
	}

	principal, ok := callWithKey(t, cfg, "secret-key")
	if !ok || principal != "merchant-principal" {
		t.Fatalf("caller = %q, ok=%v", principal, ok)
	}
}

func TestMiddlewareUnknownKeyStaysAnonymous(t *testing.T) {
	cfg := Config{
		Enabled: true,
		Keys:    map[string]ledger.Principal{"secret-key": "merchant-principal"},
	}

	if _, ok := callWithKey(t, cfg, "stale-key"); ok {
		t.Fatal("unknown key must not authenticate")
	}
	if _, ok := callWithKey(t, cfg, ""); ok {
		t.Fatal("missing key must not authenticate")
	}
}

func TestMiddlewareDisabledTreatsKeyAsPrincipal(t *testing.T) {
	principal, ok := callWithKey(t, Config{Enabled: false}, "dev-principal")
	if !ok || principal != "dev-principal" {
		t.Fatalf("caller = %q, ok=%v", principal, ok)
	}
}

func TestCallerFromContextWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := CallerFromContext(req.Context()); ok {
		t.Fatal("expected no caller on a bare context")
	}
}
