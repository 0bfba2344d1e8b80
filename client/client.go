// Package client is the Go SDK for the aweb coordination service.
//
// A Client is safe for concurrent use. Every call maps to one HTTP request
// against the /v1 API; blocking operations (send-and-wait) honour the
// caller's context.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 30 * time.Second

// Client talks to an aweb server on behalf of a single agent identity.
type Client struct {
	rest *resty.Client
	// blocking has no client-level timeout; send-and-wait calls can hold the
	// connection open for the full server-side wait window.
	blocking *resty.Client
}

// Option configures a Client during construction in New.
type Option func(*Client) error

// WithHTTPTimeout bounds the total time spent on a single HTTP request.
// Blocking calls (send-and-wait, streaming) disable this per request, so the
// timeout only guards plain request/response calls.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("http timeout must be > 0")
		}
		c.rest.SetTimeout(d)
		return nil
	}
}

// New constructs a Client with the given server base URL and API key.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL cannot be empty")
	}
	c := &Client{
		rest: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetAuthToken(apiKey).
			SetTimeout(defaultTimeout),
		blocking: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetAuthToken(apiKey),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Init bootstraps a project and agent identity on the server and returns the
// plaintext API key. It is the only unauthenticated call; use the returned
// key with New for all further calls.
func Init(ctx context.Context, baseURL string, req InitRequest) (*InitResult, error) {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(defaultTimeout)

	var out InitResult
	resp, err := rest.R().
		SetContext(ctx).
		SetBody(&req).
		SetResult(&out).
		Post("/v1/init")
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	if resp.IsError() {
		return nil, errorFromResponse(resp)
	}
	return &out, nil
}

// do issues one request and decodes the 2xx body into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any, query map[string]string) error {
	r := c.rest.R().SetContext(ctx)
	if body != nil {
		r.SetBody(body)
	}
	if out != nil {
		r.SetResult(out)
	}
	if len(query) > 0 {
		r.SetQueryParams(query)
	}
	resp, err := r.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return errorFromResponse(resp)
	}
	return nil
}

// doBlocking is do without the client-level timeout, for calls that may
// legitimately hold the connection open (send-and-wait).
func (c *Client) doBlocking(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.blocking.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return errorFromResponse(resp)
	}
	return nil
}
