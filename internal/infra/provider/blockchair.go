package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/seedscan/internal/core/domain"
	"github.com/vietddude/seedscan/internal/metrics"
)

// DefaultBlockchairURL is the public bitcoin mainnet endpoint.
const DefaultBlockchairURL = "https://api.blockchair.com/bitcoin"

// ErrThrottled is returned without a network call while the monitor reports
// the provider as throttled or blocked.
var ErrThrottled = fmt.Errorf("%w: throttled", domain.ErrProviderUnavailable)

// maxErrorBody bounds how much of an error response ends up in logs.
const maxErrorBody = 512

// BlockchairConfig configures the Blockchair client.
type BlockchairConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// BlockchairClient implements AddressProvider against the Blockchair REST API.
type BlockchairClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	Monitor *Monitor
}

// NewBlockchairClient creates a client. Empty fields fall back to defaults.
func NewBlockchairClient(cfg BlockchairConfig, logger *slog.Logger) *BlockchairClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBlockchairURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BlockchairClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:  logger,
		Monitor: NewMonitor(),
	}
}

// FetchAddresses queries the address dashboard in batches of MaxAddressesPerCall.
func (c *BlockchairClient) FetchAddresses(
	ctx context.Context,
	addrs []string,
) (map[string]domain.AddressInfo, error) {
	out := make(map[string]domain.AddressInfo, len(addrs))
	for _, batch := range Chunk(addrs, MaxAddressesPerCall) {
		if err := c.fetchAddressBatch(ctx, batch, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *BlockchairClient) fetchAddressBatch(
	ctx context.Context,
	batch []string,
	out map[string]domain.AddressInfo,
) error {
	escaped := make([]string, len(batch))
	for i, a := range batch {
		escaped[i] = url.PathEscape(a)
	}

	q := url.Values{}
	q.Set("limit", "0")
	body, err := c.get(ctx, "addresses", "/dashboards/addresses/"+strings.Join(escaped, ","), q)
	if err != nil {
		return err
	}

	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: decode addresses: %v", domain.ErrProviderUnavailable, err)
	}

	// An empty result comes back as [] rather than {}.
	if !isObject(resp.Data) {
		return nil
	}
	var data map[string]addressDashboard
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return fmt.Errorf("%w: decode addresses: %v", domain.ErrProviderUnavailable, err)
	}
	for addr, d := range data {
		out[addr] = domain.AddressInfo{
			Address:          addr,
			Balance:          int64(d.Address.Balance),
			TransactionCount: int64(d.Address.TransactionCount),
			Received:         int64(d.Address.Received),
			Spent:            int64(d.Address.Spent),
			UTXO:             nonNilUTXO(d.UTXO),
		}
	}
	return nil
}

// FetchXpub queries the xpub dashboard.
func (c *BlockchairClient) FetchXpub(
	ctx context.Context,
	xpub string,
	limit int,
) (*domain.XpubResult, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(ClampXpubLimit(limit)))
	body, err := c.get(ctx, "xpub", "/dashboards/xpub/"+url.PathEscape(xpub), q)
	if err != nil {
		return nil, err
	}
	return parseXpubDashboard(body, xpub)
}

func (c *BlockchairClient) get(ctx context.Context, op, path string, q url.Values) ([]byte, error) {
	if st := c.Monitor.CheckStatus(); st == StatusThrottled || st == StatusBlocked {
		metrics.ProviderCallsTotal.WithLabelValues("blockchair", op, "throttled").Inc()
		return nil, fmt.Errorf("%w (%s), retry after %v", ErrThrottled, st, c.Monitor.RetryAfter())
	}

	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	endpoint := c.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	metrics.ProviderLatency.WithLabelValues("blockchair", op).Observe(latency.Seconds())
	if err != nil {
		metrics.ProviderCallsTotal.WithLabelValues("blockchair", op, "error").Inc()
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrProviderUnavailable, op, err)
	}
	defer resp.Body.Close()

	if IsThrottleStatus(resp.StatusCode) || IsBlockStatus(resp.StatusCode) {
		retryAfter := resp.Header.Get("Retry-After")
		c.Monitor.RecordThrottle(resp.StatusCode, retryAfter)
		metrics.ProviderCallsTotal.WithLabelValues("blockchair", op, "throttled").Inc()
		c.logger.Warn("provider throttled",
			"op", op,
			"status", resp.StatusCode,
			"retry_after", retryAfter,
		)
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ProviderCallsTotal.WithLabelValues("blockchair", op, "error").Inc()
		return nil, fmt.Errorf("%w: read %s response: %v", domain.ErrProviderUnavailable, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ProviderCallsTotal.WithLabelValues("blockchair", op, "error").Inc()
		text := string(body[:min(len(body), maxErrorBody)])
		if c.Monitor.DetectThrottlePattern(text) {
			c.Monitor.RecordThrottle(http.StatusTooManyRequests, "")
		}
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: text}
	}

	c.Monitor.RecordRequest(latency)
	metrics.ProviderCallsTotal.WithLabelValues("blockchair", op, "ok").Inc()
	return body, nil
}

type addressDashboard struct {
	Address struct {
		Balance          flexInt `json:"balance"`
		TransactionCount flexInt `json:"transaction_count"`
		Received         flexInt `json:"received"`
		Spent            flexInt `json:"spent"`
	} `json:"address"`
	UTXO []json.RawMessage `json:"utxo"`
}

// parseXpubDashboard reads data[xpub].addresses, falling back to data.addresses.
// addresses may be a list of records or an object keyed by address.
func parseXpubDashboard(body []byte, xpub string) (*domain.XpubResult, error) {
	var resp struct {
		Data    json.RawMessage `json:"data"`
		Context json.RawMessage `json:"context"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode xpub: %v", domain.ErrProviderUnavailable, err)
	}

	var entry map[string]json.RawMessage
	if isObject(resp.Data) {
		if err := json.Unmarshal(resp.Data, &entry); err != nil {
			return nil, fmt.Errorf("%w: decode xpub: %v", domain.ErrProviderUnavailable, err)
		}
	}
	if raw, ok := entry[xpub]; ok && isObject(raw) {
		entry = nil
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("%w: decode xpub entry: %v", domain.ErrProviderUnavailable, err)
		}
	}

	result := &domain.XpubResult{Addresses: []domain.AddressInfo{}, Meta: resp.Context}

	raw := entry["addresses"]
	switch {
	case isArray(raw):
		var list []record
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("%w: decode xpub addresses: %v", domain.ErrProviderUnavailable, err)
		}
		for _, r := range list {
			result.Addresses = append(result.Addresses, r.info(""))
		}
	case isObject(raw):
		var byAddr map[string]record
		if err := json.Unmarshal(raw, &byAddr); err != nil {
			return nil, fmt.Errorf("%w: decode xpub addresses: %v", domain.ErrProviderUnavailable, err)
		}
		for addr, r := range byAddr {
			result.Addresses = append(result.Addresses, r.info(addr))
		}
	}
	return result, nil
}

// record is a loosely shaped provider address record. Fields are looked up
// at the top level first, then inside a nested "address" object.
type record map[string]json.RawMessage

func (r record) nested() record {
	raw, ok := r["address"]
	if !ok || !isObject(raw) {
		return nil
	}
	var n record
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	return n
}

func (r record) lookup(key string, dst any) bool {
	for _, m := range []record{r, r.nested()} {
		v, ok := m[key]
		if !ok || isNull(v) {
			continue
		}
		if json.Unmarshal(v, dst) == nil {
			return true
		}
	}
	return false
}

func (r record) str(key string) string {
	var s string
	r.lookup(key, &s)
	return s
}

func (r record) int(key string) int64 {
	var n flexInt
	r.lookup(key, &n)
	return int64(n)
}

func (r record) info(fallbackAddr string) domain.AddressInfo {
	addr := r.str("address")
	if addr == "" {
		addr = fallbackAddr
	}
	var utxo []json.RawMessage
	r.lookup("utxo", &utxo)

	path := r.str("path")
	return domain.AddressInfo{
		Address:          addr,
		Balance:          r.int("balance"),
		TransactionCount: r.int("transaction_count"),
		Received:         r.int("received"),
		Spent:            r.int("spent"),
		UTXO:             nonNilUTXO(utxo),
		Path:             path,
		Chain:            domain.ChainFromPath(path),
	}
}

// flexInt decodes JSON numbers, numeric strings and null. Anything
// unparseable decodes to zero.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	if fl, err := strconv.ParseFloat(s, 64); err == nil {
		*f = flexInt(int64(fl))
		return nil
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return fmt.Errorf("flexInt: not a scalar: %s", s)
	}
	*f = 0
	return nil
}

func nonNilUTXO(u []json.RawMessage) []json.RawMessage {
	if u == nil {
		return []json.RawMessage{}
	}
	return u
}

func isObject(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '{'
}

func isArray(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '['
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
