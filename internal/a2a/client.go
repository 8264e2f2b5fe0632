package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/agentfleet/agentfleet/internal/correlation"
)

// APIKeyHeader carries the shared secret between agents.
const APIKeyHeader = "X-API-Key"

// ErrMalformedResponse marks a 2xx reply whose body is not a JSON-RPC envelope.
var ErrMalformedResponse = errors.New("malformed response")

// maxResponseBytes bounds how much of a peer response is read.
const maxResponseBytes = 8 << 20

// StatusError is returned when a peer answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "peer request failed"
	}
	if e.Body == "" {
		return fmt.Sprintf("peer request failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("peer request failed: status %d: %s", e.StatusCode, e.Body)
}

// Client calls peer agents over HTTP JSON-RPC.
type Client struct {
	HTTPClient *http.Client
	// APIKey is forwarded as X-API-Key when set.
	APIKey string
}

// NewClient returns a client using http.DefaultClient.
func NewClient(apiKey string) *Client {
	return &Client{APIKey: strings.TrimSpace(apiKey)}
}

// NewSendRequest builds the message/send envelope for a single text message.
func NewSendRequest(text string) Request {
	params, _ := json.Marshal(MessageParams{Message: Message{
		Role:      "user",
		Parts:     []Part{TextPart(text)},
		MessageID: uuid.New().String(),
	}})
	return Request{
		JSONRPC: Version,
		ID:      json.RawMessage("1"),
		Method:  MethodSend,
		Params:  params,
	}
}

// SendMessage posts text to the agent at url with message/send and returns
// the decoded result. A JSON-RPC error from the peer is returned as *RPCError.
func (c *Client) SendMessage(ctx context.Context, url, text string) (any, error) {
	return c.Call(ctx, url, NewSendRequest(text))
}

// Call posts an arbitrary JSON-RPC request and returns the decoded result.
func (c *Client) Call(ctx context.Context, url string, req Request) (any, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.decorate(ctx, httpReq)

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var parsed struct {
		Result any       `json:"result"`
		Error  *RPCError `json:"error"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrMalformedResponse, err)
	}
	if parsed.Error != nil {
		return nil, parsed.Error
	}
	return parsed.Result, nil
}

// Health issues GET url/health and returns the HTTP status code.
func (c *Client) Health(ctx context.Context, baseURL string) (int, error) {
	url := strings.TrimRight(baseURL, "/") + "/health"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	c.decorate(ctx, httpReq)

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	return resp.StatusCode, nil
}

func (c *Client) decorate(ctx context.Context, req *http.Request) {
	correlation.Attach(ctx, req.Header)
	if c != nil && c.APIKey != "" {
		req.Header.Set(APIKeyHeader, c.APIKey)
	}
}

func (c *Client) httpClient() *http.Client {
	if c != nil && c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}
