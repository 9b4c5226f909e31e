// Package rpc provides a Venue implementation backed by a remote
// exchange venue speaking JSON-RPC 2.0 over HTTP.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/ledger"
	"token-swap-guard/internal/venue"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Remote venue JSON-RPC methods.
const (
	methodQuote            = "venue.quote"
	methodExecuteAndSettle = "venue.executeAndSettle"
)

// Remote venue failure codes, mapped onto the domain taxonomy.
const (
	codeSlippageExceeded = -32001
	codeExpired          = -32002
	codeRouteUnavailable = -32003
)

// Client implements venue.Venue against a remote venue endpoint.
// The remote venue settles on its own ledger and provides its own
// atomicity; a failure here still reverts the local custody intake
// through the surrounding envelope.
type Client struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for quote calls.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a remote venue client.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ venue.Venue = (*Client)(nil)

// executeParams is the wire form of venue.ExecutionParams.
type executeParams struct {
	AmountIn              uint64   `json:"amount_in"`
	MinimumAmountOut      uint64   `json:"minimum_amount_out"`
	Route                 []string `json:"route"`
	Payer                 string   `json:"payer"`
	SettlementDestination string   `json:"settlement_destination"`
	ExpiryMs              int64    `json:"expiry_ms"`
}

// executeResult is the wire form of a settlement outcome.
type executeResult struct {
	AmountOut uint64 `json:"amount_out"`
}

// quoteParams is the wire form of a quote request.
type quoteParams struct {
	Route    []string `json:"route"`
	AmountIn uint64   `json:"amount_in"`
}

// quoteResult is the wire form of a quote response.
type quoteResult struct {
	AmountOut uint64 `json:"amount_out"`
}

// ExecuteAndSettle forwards the execution to the remote venue. The
// caller's minimum is carried verbatim on the wire. Never retried:
// settlement is not idempotent.
func (c *Client) ExecuteAndSettle(ctx context.Context, _ ledger.Ledger, p venue.ExecutionParams) (*domain.SettlementOutcome, error) {
	params := executeParams{
		AmountIn:              p.AmountIn,
		MinimumAmountOut:      p.MinimumAmountOut,
		Route:                 []string{string(p.Route.Input()), string(p.Route.Output())},
		Payer:                 string(p.Payer),
		SettlementDestination: string(p.SettlementDestination),
		ExpiryMs:              p.Expiry.UnixMilli(),
	}

	var result executeResult
	if err := c.call(ctx, methodExecuteAndSettle, params, &result, 0); err != nil {
		return nil, err
	}
	return &domain.SettlementOutcome{AmountOut: result.AmountOut}, nil
}

// Quote asks the remote venue for the currently achievable output.
// Transport failures are retried with exponential backoff.
func (c *Client) Quote(ctx context.Context, route domain.Route, amountIn uint64) (uint64, error) {
	params := quoteParams{
		Route:    []string{string(route.Input()), string(route.Output())},
		AmountIn: amountIn,
	}

	var result quoteResult
	if err := c.call(ctx, methodQuote, params, &result, c.maxRetries); err != nil {
		return 0, err
	}
	return result.AmountOut, nil
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// domainError maps remote failure codes onto the local taxonomy so
// callers classify with errors.Is regardless of venue locality.
func (e *rpcError) domainError() error {
	switch e.Code {
	case codeSlippageExceeded:
		return fmt.Errorf("%w: %s", domain.ErrSlippageExceeded, e.Message)
	case codeExpired:
		return fmt.Errorf("%w: %s", domain.ErrExpired, e.Message)
	case codeRouteUnavailable:
		return fmt.Errorf("%w: %s", domain.ErrRouteUnavailable, e.Message)
	default:
		return e
	}
}

// call performs a JSON-RPC call. Transport errors are retried up to
// maxRetries with exponential backoff; venue errors never are.
func (c *Client) call(ctx context.Context, method string, params, result any, maxRetries int) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			return rpcResp.Error.domainError()
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
