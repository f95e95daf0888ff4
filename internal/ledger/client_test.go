package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MesaPay/hub/internal/circuitbreaker"
)

func blocksResponse(t *testing.T, w http.ResponseWriter, resp any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func newClient(baseURL string) *HTTPClient {
	return NewHTTPClient(baseURL, circuitbreaker.NewManager(circuitbreaker.Config{Enabled: false}))
}

func TestFetchBlockFollowsArchivePointer(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/archive") {
			blocksResponse(t, w, map[string]any{
				"log_length": 100,
				"blocks":     []map[string]any{{"id": 7, "block": map[string]any{}}},
			})
			return
		}
		// The live window no longer holds the block; point at the archive.
		blocksResponse(t, w, map[string]any{
			"log_length":      100,
			"blocks":          []any{},
			"archived_blocks": []map[string]any{{"url": srv.URL + "/archive/v1/blocks"}},
		})
	}))
	defer srv.Close()

	block, err := newClient(srv.URL).FetchBlock(context.Background(), 7)
	if err != nil {
		t.Fatalf("FetchBlock: %v", err)
	}
	if block.ID != 7 {
		t.Fatalf("block id = %d, want 7", block.ID)
	}
}

func TestFetchBlockOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		blocksResponse(t, w, map[string]any{"log_length": 5, "blocks": []any{}})
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).FetchBlock(context.Background(), 5)
	if !errors.Is(err, ErrBlockOutOfRange) {
		t.Fatalf("err = %v, want ErrBlockOutOfRange", err)
	}
}

func TestFetchBlockArchiveCycleIsBounded(t *testing.T) {
	// A broken ledger that always answers with a pointer back to itself.
	var srv *httptest.Server
	var calls int
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		blocksResponse(t, w, map[string]any{
			"log_length":      100,
			"blocks":          []any{},
			"archived_blocks": []map[string]any{{"url": srv.URL + "/v1/blocks"}},
		})
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).FetchBlock(context.Background(), 7)
	if err == nil || !strings.Contains(err.Error(), "archive hops") {
		t.Fatalf("err = %v, want the hop bound to trip", err)
	}
	if calls > maxArchiveHops+1 {
		t.Fatalf("made %d calls, want at most %d", calls, maxArchiveHops+1)
	}
}
