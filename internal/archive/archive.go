// Package archive hands settled invoices off to long-term storage, keeping
// the hot invoice table bounded.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MesaPay/hub/internal/circuitbreaker"
	"github.com/MesaPay/hub/internal/invoices"
	"github.com/MesaPay/hub/internal/rpcutil"
)

// Pusher accepts batches of settled invoices. A Push either lands the whole
// batch or fails it; the caller reapplies failed batches, so implementations
// must tolerate re-delivery of the same invoices.
type Pusher interface {
	Push(ctx context.Context, batch []invoices.Invoice) error
}

// HTTPPusher ships batches to an external archive service.
type HTTPPusher struct {
	baseURL  string
	httpc    *http.Client
	breakers *circuitbreaker.Manager
}

// NewHTTPPusher creates a pusher for the given archive base URL.
func NewHTTPPusher(baseURL string, breakers *circuitbreaker.Manager) *HTTPPusher {
	return &HTTPPusher{
		baseURL:  baseURL,
		httpc:    &http.Client{Timeout: 30 * time.Second},
		breakers: breakers,
	}
}

type pushRequest struct {
	Invoices []invoices.Invoice `json:"invoices"`
}

// Push implements Pusher.
func (p *HTTPPusher) Push(ctx context.Context, batch []invoices.Invoice) error {
	if len(batch) == 0 {
		return nil
	}

	payload, err := json.Marshal(pushRequest{Invoices: batch})
	if err != nil {
		return fmt.Errorf("archive: encode batch: %w", err)
	}

	_, err = rpcutil.WithRetry(ctx, func() (struct{}, error) {
		_, berr := p.breakers.Execute(circuitbreaker.ServiceArchive, func() (interface{}, error) {
			return nil, p.roundTrip(ctx, payload)
		})
		return struct{}{}, berr
	})
	return err
}

func (p *HTTPPusher) roundTrip(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/invoices", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("archive: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("archive: push batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("archive: push batch: status %d", resp.StatusCode)
	}
	return nil
}

// Memory is an in-process Pusher for tests and single-node deployments.
// Re-delivered invoices overwrite their previous copy.
type Memory struct {
	mu       sync.Mutex
	invoices map[invoices.InvoiceID]invoices.Invoice
}

// NewMemory creates an empty in-memory archive.
func NewMemory() *Memory {
	return &Memory{invoices: make(map[invoices.InvoiceID]invoices.Invoice)}
}

// Push implements Pusher.
func (m *Memory) Push(_ context.Context, batch []invoices.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range batch {
		m.invoices[inv.ID] = inv
	}
	return nil
}

// Get returns an archived invoice.
func (m *Memory) Get(id invoices.InvoiceID) (invoices.Invoice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	return inv, ok
}

// Len returns the number of archived invoices.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invoices)
}
