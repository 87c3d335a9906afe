// Package backend is the HTTP client for the external job and auth API.
// Requests are relayed as-is; cookies are forwarded, never interpreted.
package backend

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

// DefaultURL is used when no backend URL is configured.
const DefaultURL = "http://localhost:8000"

// MaxHexCount is the largest hex generation batch accepted for relay.
const MaxHexCount = 2048

var (
	// ErrInvalidRequest is returned when a request is rejected before relay.
	ErrInvalidRequest = errors.New("invalid backend request")

	// ErrUnhealthy is returned when the health endpoint answers non-2xx.
	ErrUnhealthy = errors.New("backend unhealthy")
)

// Config holds backend connection configuration.
type Config struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Client talks to the backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend client.
func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Health is the backend's health document.
type Health struct {
	Status string `json:"status"`
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: http %d", ErrUnhealthy, resp.StatusCode)
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &h, nil
}

// Request is one relayed call.
type Request struct {
	Method string
	Path   string
	Cookie string
	Body   []byte
}

// Response is the backend's answer as relayed to the caller.
type Response struct {
	StatusCode  int
	ContentType string
	SetCookie   []string
	Body        []byte
}

// Forward relays r to the backend and returns its status, body and Set-Cookie
// headers untouched. A transport failure is returned as an error; the caller
// maps it to 502.
func (c *Client) Forward(ctx context.Context, r Request) (*Response, error) {
	var body io.Reader
	if len(r.Body) > 0 && r.Method != http.MethodGet {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, c.baseURL+r.Path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Cookie != "" {
		req.Header.Set("Cookie", r.Cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward %s %s: %w", r.Method, r.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		SetCookie:   resp.Header.Values("Set-Cookie"),
		Body:        data,
	}, nil
}

// HexRequest is the hex generation payload accepted by the backend.
type HexRequest struct {
	Count     *int    `json:"count,omitempty"`
	Length    *int    `json:"length,omitempty"`
	MinHex    *string `json:"min_hex,omitempty"`
	MaxHex    *string `json:"max_hex,omitempty"`
	Randomize *bool   `json:"randomize,omitempty"`
	Unique    *bool   `json:"unique,omitempty"`
	Prefix0x  *bool   `json:"prefix_0x,omitempty"`
}

// ValidateHexRequest checks a hex generation body before it is relayed.
// An empty body is accepted; the backend applies its own defaults.
func ValidateHexRequest(body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var req HexRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Count != nil && (*req.Count < 1 || *req.Count > MaxHexCount) {
		return fmt.Errorf("%w: count must be in 1..%d", ErrInvalidRequest, MaxHexCount)
	}
	if req.Length != nil && (*req.Length <= 0 || *req.Length%2 != 0) {
		return fmt.Errorf("%w: length must be a positive even number", ErrInvalidRequest)
	}
	return nil
}
