package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vietddude/seedscan/internal/core/domain"
)

// NoCheckURL is the error reported when external checks run without a target.
const NoCheckURL = "no_check_url"

// maxCheckBody bounds how much of a checker response is kept.
const maxCheckBody = 1 << 20

// Checker runs one external enrichment call for a generated hex.
type Checker interface {
	Check(ctx context.Context, hex string, timeout time.Duration) domain.CheckResult
}

// HTTPChecker calls GET {url}?hex=... on an external balance checker.
type HTTPChecker struct {
	url    string
	client *http.Client
}

// NewHTTPChecker creates a checker. An empty URL makes every check fail with no_check_url.
func NewHTTPChecker(checkURL string) *HTTPChecker {
	return &HTTPChecker{url: checkURL, client: &http.Client{}}
}

// URL returns the configured target.
func (c *HTTPChecker) URL() string {
	return c.url
}

// Check runs under its own timeout. The call is detached from ctx
// cancellation so a client disconnect does not abort it.
func (c *HTTPChecker) Check(ctx context.Context, hex string, timeout time.Duration) domain.CheckResult {
	if c.url == "" {
		return domain.CheckResult{OK: false, Error: NoCheckURL}
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	u, err := url.Parse(c.url)
	if err != nil {
		return domain.CheckResult{OK: false, Error: err.Error()}
	}
	q := u.Query()
	q.Set("hex", hex)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return domain.CheckResult{OK: false, Error: err.Error()}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.CheckResult{OK: false, Error: "timeout"}
		}
		return domain.CheckResult{OK: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCheckBody))
	if err != nil {
		return domain.CheckResult{OK: false, Status: resp.StatusCode, Error: err.Error()}
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		body = string(raw)
	}
	return domain.CheckResult{
		OK:     resp.StatusCode >= 200 && resp.StatusCode <= 299,
		Status: resp.StatusCode,
		Body:   body,
	}
}
