package jupiterone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Version is sent in the User-Agent header.
const Version = "0.1.0"

// Client issues queries against a single JupiterOne deployment. It holds no
// mutable state and is safe for concurrent use.
type Client struct {
	Endpoint   string
	APIKey     string
	AccountID  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = hc
	}
}

func NewClient(endpoint, apiKey, accountID string, timeout time.Duration, options ...Option) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		// Query results can be large; only the headers are bounded here.
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	c := &Client{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		AccountID:  accountID,
		Timeout:    timeout,
		HTTPClient: &http.Client{Transport: transport},
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// Query posts req to the query endpoint and returns the response body
// unchanged. The call is bounded by the client timeout and is never retried.
func (c *Client) Query(ctx context.Context, req *QueryRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal query request: %w", err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unable to create query request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set(AccountHeader, c.AccountID)
	httpReq.Header.Set("User-Agent", "j1-query-mcp/"+Version)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Message: remoteMessage(resp, data)}
	}
	if err != nil {
		// A deadline hit mid-body is still a transport failure.
		if ctx.Err() != nil {
			return nil, &TransportError{Err: ctx.Err()}
		}
		return nil, &DecodeError{Err: err}
	}
	if !json.Valid(data) {
		return nil, &DecodeError{Err: fmt.Errorf("response body is not valid JSON (%d bytes)", len(data))}
	}

	return json.RawMessage(data), nil
}
