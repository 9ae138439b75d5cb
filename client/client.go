// Package client talks to an echo-callback relay from the process that cannot
// receive a browser redirect itself.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultPollInterval is how often Wait polls an endpoint that has not been
// written yet.
const DefaultPollInterval = time.Second

var (
	ErrNotFound       = errors.New("endpoint not found")
	ErrAlreadyWritten = errors.New("data has already been written to this endpoint")
	ErrNotReady       = errors.New("data has not been written to this endpoint yet")
)

// StatusError is returned for responses the relay API does not define.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unexpected status code %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Detail)
}

type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// New returns a client for the relay served at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   http.DefaultClient,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewEndpoint allocates a fresh endpoint and returns its URL.
func (c *Client) NewEndpoint(ctx context.Context) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/", nil, &resp); err != nil {
		return "", fmt.Errorf("failed to create endpoint: %w", err)
	}
	if resp.URL == "" {
		return "", errors.New("failed to create endpoint: response carries no url")
	}
	return resp.URL, nil
}

// Send writes payload, encoded as JSON, to the endpoint.
func (c *Client) Send(ctx context.Context, endpoint string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	return c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(b), nil)
}

// Receive reads the endpoint once and decodes the payload into out. A
// successful call consumes the endpoint.
func (c *Client) Receive(ctx context.Context, endpoint string, out any) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, out)
}

// Wait polls the endpoint until its payload arrives, another error occurs or
// ctx is done.
func (c *Client) Wait(ctx context.Context, endpoint string, out any) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		err := c.Receive(ctx, endpoint, out)
		if !errors.Is(err, ErrNotReady) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusForbidden:
		return ErrAlreadyWritten
	case http.StatusTooEarly:
		return ErrNotReady
	default:
		var errResp struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(b, &errResp)
		return &StatusError{StatusCode: resp.StatusCode, Detail: errResp.Detail}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
