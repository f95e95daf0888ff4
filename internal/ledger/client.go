package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MesaPay/hub/internal/circuitbreaker"
	"github.com/MesaPay/hub/internal/logger"
	"github.com/MesaPay/hub/internal/rpcutil"
)

// Client talks to one token's ledger service.
type Client interface {
	// FetchBlock locates the block at idx, following archive pointers when
	// the live window no longer holds it. Returns ErrBlockOutOfRange when
	// idx exceeds the ledger's log length.
	FetchBlock(ctx context.Context, idx uint64) (Block, error)

	// SubmitTransfer submits a transfer and returns the block index it
	// settled at.
	SubmitTransfer(ctx context.Context, args TransferArgs) (uint64, error)
}

// Dialer produces Clients for ledger service base URLs.
type Dialer interface {
	Dial(baseURL string) Client
}

// getBlocksRequest is the wire form of a block-window query.
type getBlocksRequest struct {
	Start  uint64 `json:"start"`
	Length uint64 `json:"length"`
}

// getBlocksResult mirrors the ledger's block-query response. Blocks absent
// from the live window are reachable through archived_blocks pointers.
type getBlocksResult struct {
	LogLength      uint64 `json:"log_length"`
	Blocks         []Block `json:"blocks"`
	ArchivedBlocks []struct {
		URL string `json:"url"`
	} `json:"archived_blocks"`
}

// transferResult is the wire form of a transfer submission response.
type transferResult struct {
	BlockIndex *uint64 `json:"block_index,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// maxArchiveHops bounds how many archive pointers FetchBlock follows before
// giving up on a block.
const maxArchiveHops = 8

// HTTPClient is a Client over the ledger's HTTP API, with retry and circuit
// breaker protection on every call.
type HTTPClient struct {
	baseURL  string
	httpc    *http.Client
	breakers *circuitbreaker.Manager
}

// NewHTTPClient creates a ledger client for the given base URL.
func NewHTTPClient(baseURL string, breakers *circuitbreaker.Manager) *HTTPClient {
	return &HTTPClient{
		baseURL:  baseURL,
		httpc:    &http.Client{Timeout: 15 * time.Second},
		breakers: breakers,
	}
}

// FetchBlock implements Client.
func (c *HTTPClient) FetchBlock(ctx context.Context, idx uint64) (Block, error) {
	result, err := c.getBlocks(ctx, c.baseURL+"/v1/blocks", idx)
	if err != nil {
		return Block{}, err
	}

	if result.LogLength <= idx {
		return Block{}, fmt.Errorf("%w: block %d does not exist (log length %d)",
			ErrBlockOutOfRange, idx, result.LogLength)
	}

	// Not in the live window: chase archive pointers until the block shows
	// up. The hop cap guards against a ledger whose pointers cycle.
	for hops := 0; len(result.Blocks) == 0; hops++ {
		if hops == maxArchiveHops {
			return Block{}, fmt.Errorf("ledger: block %d not found after %d archive hops", idx, maxArchiveHops)
		}
		if len(result.ArchivedBlocks) == 0 {
			return Block{}, fmt.Errorf("ledger: no archive found for block %d", idx)
		}

		archiveURL := result.ArchivedBlocks[0].URL
		result, err = c.getBlocks(ctx, archiveURL, idx)
		if err != nil {
			return Block{}, err
		}
	}

	block := result.Blocks[0]
	if block.ID != idx {
		return Block{}, fmt.Errorf("ledger: ledger returned block %d, wanted %d", block.ID, idx)
	}

	return block, nil
}

// SubmitTransfer implements Client.
func (c *HTTPClient) SubmitTransfer(ctx context.Context, args TransferArgs) (uint64, error) {
	var result transferResult
	if err := c.post(ctx, c.baseURL+"/v1/transfer", args, &result); err != nil {
		return 0, err
	}

	if result.Error != "" {
		return 0, fmt.Errorf("ledger: transfer rejected: %s", result.Error)
	}
	if result.BlockIndex == nil {
		return 0, fmt.Errorf("ledger: transfer response missing block index")
	}

	return *result.BlockIndex, nil
}

// getBlocks queries one block from a ledger or archive endpoint.
func (c *HTTPClient) getBlocks(ctx context.Context, url string, idx uint64) (getBlocksResult, error) {
	var result getBlocksResult
	err := c.post(ctx, url, getBlocksRequest{Start: idx, Length: 1}, &result)
	return result, err
}

// post performs one JSON request/response round trip under retry + breaker.
func (c *HTTPClient) post(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ledger: encode request: %w", err)
	}

	_, err = rpcutil.WithRetry(ctx, func() (struct{}, error) {
		_, berr := c.breakers.Execute(circuitbreaker.ServiceLedgerRPC, func() (interface{}, error) {
			return nil, c.roundTrip(ctx, url, payload, out)
		})
		return struct{}{}, berr
	})
	if err != nil {
		logger.FromContext(ctx).Error().
			Err(err).
			Str("url", url).
			Msg("ledger.call_failed")
	}
	return err
}

func (c *HTTPClient) roundTrip(ctx context.Context, url string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("ledger: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("ledger: call %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger: call %s: status %d", url, resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("ledger: decode response: %w", err)
	}
	return nil
}

// HTTPDialer hands out one cached HTTPClient per ledger base URL.
type HTTPDialer struct {
	mu       sync.Mutex
	clients  map[string]*HTTPClient
	breakers *circuitbreaker.Manager
}

// NewHTTPDialer creates a dialer sharing one breaker manager across ledgers.
func NewHTTPDialer(breakers *circuitbreaker.Manager) *HTTPDialer {
	return &HTTPDialer{
		clients:  make(map[string]*HTTPClient),
		breakers: breakers,
	}
}

// Dial implements Dialer.
func (d *HTTPDialer) Dial(baseURL string) Client {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.clients[baseURL]; ok {
		return c
	}
	c := NewHTTPClient(baseURL, d.breakers)
	d.clients[baseURL] = c
	return c
}
