package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/seedscan/internal/core/domain"
	"github.com/vietddude/seedscan/internal/infra/backend"
	"github.com/vietddude/seedscan/internal/infra/probe"
	"github.com/vietddude/seedscan/internal/infra/storage/memory"
	"github.com/vietddude/seedscan/internal/scan/aggregate"
)

const seedOne = "0000000000000000000000000000000000000000000000000000000000000001"

type stubBackend struct {
	mu       sync.Mutex
	health   []error
	calls    int
	requests []backend.Request
	resp     *backend.Response
	err      error
}

func (b *stubBackend) Health(ctx context.Context) (*backend.Health, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.calls
	b.calls++
	if i < len(b.health) && b.health[i] != nil {
		return nil, b.health[i]
	}
	return &backend.Health{Status: "ok"}, nil
}

func (b *stubBackend) Forward(ctx context.Context, req backend.Request) (*backend.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if b.err != nil {
		return nil, b.err
	}
	return b.resp, nil
}

type stubProvider struct {
	xpub *domain.XpubResult
	err  error
	got  int
}

func (p *stubProvider) FetchAddresses(ctx context.Context, addrs []string) (map[string]domain.AddressInfo, error) {
	return map[string]domain.AddressInfo{}, p.err
}

func (p *stubProvider) FetchXpub(ctx context.Context, xpub string, limit int) (*domain.XpubResult, error) {
	p.got = limit
	return p.xpub, p.err
}

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	if deps.Expander == nil {
		deps.Expander = aggregate.New(nil, nil)
	}
	ts := httptest.NewServer(NewServer(0, deps).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestExpand_InvalidHex(t *testing.T) {
	ts := newTestServer(t, Deps{})

	for _, q := range []string{"", "?hex=abc", "?hex=" + strings.Repeat("zz", 16), "?hex=" + strings.Repeat("a", 130)} {
		resp, err := http.Get(ts.URL + "/api/random/expand" + q)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%q: expected 400, got %d", q, resp.StatusCode)
		}
		var body errorBody
		decode(t, resp, &body)
		if body.Error != "invalid hex" {
			t.Errorf("%q: unexpected error %q", q, body.Error)
		}
	}
}

func TestExpand_OddLengthIsBadRequest(t *testing.T) {
	ts := newTestServer(t, Deps{})

	resp, err := http.Get(ts.URL + "/api/random/expand?hex=" + strings.Repeat("a", 33))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestExpand_OfflineDocumentIsPersisted(t *testing.T) {
	repo := memory.NewResultRepo()
	ts := newTestServer(t, Deps{Results: repo})

	resp, err := http.Get(ts.URL + "/api/random/expand?hex=" + seedOne + "&depth=2&source=specific")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var doc domain.ResultDocument
	decode(t, resp, &doc)
	if doc.ID == "" {
		t.Fatal("expected document id")
	}
	if doc.Source != domain.SourceSpecific {
		t.Errorf("expected source specific, got %s", doc.Source)
	}
	if doc.Input.PrivateKeyHex != "0x"+seedOne {
		t.Errorf("unexpected private key hex %s", doc.Input.PrivateKeyHex)
	}
	bip84 := doc.Results.Bitcoin["p2wpkh"]
	if bip84 == nil || len(bip84.Addresses) != 2 {
		t.Fatalf("expected 2 bip84 addresses, got %+v", bip84)
	}

	stored, err := repo.Get(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("expected stored document: %v", err)
	}
	if stored.ExtendedKeys.RootFingerprint != "4b75fab0" {
		t.Errorf("unexpected fingerprint %s", stored.ExtendedKeys.RootFingerprint)
	}

	resp, err = http.Get(ts.URL + "/api/random/results/" + doc.ID)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for stored result, got %d", resp.StatusCode)
	}
}

func TestExpand_PostBody(t *testing.T) {
	ts := newTestServer(t, Deps{})

	resp, err := http.Post(ts.URL+"/api/random/expand?depth=1", "application/json",
		strings.NewReader(`{"hex":"`+seedOne+`"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var doc domain.ResultDocument
	decode(t, resp, &doc)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if doc.Source != domain.SourceRandom {
		t.Errorf("expected default source random, got %s", doc.Source)
	}
}

func TestParseDepth(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 100},
		{"0", 100},
		{"abc", 100},
		{"-5", 1},
		{"7", 7},
		{"5000", 1000},
	}
	for _, tt := range tests {
		if got := parseDepth(tt.raw); got != tt.want {
			t.Errorf("parseDepth(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestResults_NotFound(t *testing.T) {
	ts := newTestServer(t, Deps{Results: memory.NewResultRepo()})

	resp, err := http.Get(ts.URL + "/api/random/results/missing")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestXpub(t *testing.T) {
	p := &stubProvider{xpub: &domain.XpubResult{
		Addresses: []domain.AddressInfo{{Address: "bc1qexample", Balance: 5, TransactionCount: 1}},
	}}
	ts := newTestServer(t, Deps{Provider: p})

	resp, err := http.Get(ts.URL + "/api/blockchair/xpub")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var eb errorBody
	decode(t, resp, &eb)
	if resp.StatusCode != http.StatusBadRequest || eb.Error != "xpub is required" {
		t.Errorf("expected 400 xpub is required, got %d %q", resp.StatusCode, eb.Error)
	}

	resp, err = http.Get(ts.URL + "/api/blockchair/xpub?xpub=xpub6example")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var res domain.XpubResult
	decode(t, resp, &res)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(res.Addresses) != 1 || res.Addresses[0].Balance != 5 {
		t.Errorf("unexpected result %+v", res)
	}
	if p.got != defaultXpubLimit {
		t.Errorf("expected default limit %d, got %d", defaultXpubLimit, p.got)
	}

	p.err = domain.ErrProviderUnavailable
	resp, err = http.Get(ts.URL + "/api/blockchair/xpub?xpub=xpub6example")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
}

func fastProbe() probe.Config {
	return probe.Config{Name: "test", MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestBackendHealth_RetriesThenSucceeds(t *testing.T) {
	b := &stubBackend{health: []error{errors.New("down"), errors.New("down")}}
	ts := newTestServer(t, Deps{Backend: b, HealthProbe: fastProbe()})

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var body map[string]string
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("expected 200 ok, got %d %v", resp.StatusCode, body)
	}
	if b.calls != 3 {
		t.Errorf("expected 3 health calls, got %d", b.calls)
	}
}

func TestBackendHealth_Exhausted(t *testing.T) {
	down := errors.New("down")
	b := &stubBackend{health: []error{down, down, down}}
	ts := newTestServer(t, Deps{Backend: b, HealthProbe: fastProbe()})

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var body map[string]string
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
	if body["status"] != "error" || body["error"] == "" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestProxy_RelaysStatusBodyAndCookies(t *testing.T) {
	b := &stubBackend{resp: &backend.Response{
		StatusCode:  http.StatusCreated,
		ContentType: "application/json",
		SetCookie:   []string{"session=abc; Path=/"},
		Body:        []byte(`{"job_id":"j1"}`),
	}}
	ts := newTestServer(t, Deps{Backend: b})

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/scan/start", strings.NewReader(`{"start":"00"}`))
	req.Header.Set("Cookie", "session=old")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("expected 201, got %d", resp.StatusCode)
	}
	if string(body) != `{"job_id":"j1"}` {
		t.Errorf("unexpected body %s", body)
	}
	if got := resp.Header.Get("Set-Cookie"); got != "session=abc; Path=/" {
		t.Errorf("unexpected Set-Cookie %q", got)
	}

	fwd := b.requests[0]
	if fwd.Path != "/scan/start" || fwd.Cookie != "session=old" || string(fwd.Body) != `{"start":"00"}` {
		t.Errorf("unexpected forwarded request %+v", fwd)
	}
}

func TestProxy_Paths(t *testing.T) {
	b := &stubBackend{resp: &backend.Response{StatusCode: http.StatusOK}}
	ts := newTestServer(t, Deps{Backend: b})

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/api/scan/job-1/status", "/scan/job-1/status"},
		{http.MethodGet, "/api/scan/job-1/results", "/scan/job-1/results"},
		{http.MethodGet, "/api/auth/me", "/auth/me"},
		{http.MethodPost, "/api/auth/logout", "/auth/logout"},
		{http.MethodPost, "/api/auth/register", "/auth/register"},
		{http.MethodPost, "/api/utils/derive", "/utils/derive/from-hex"},
	}
	for i, tt := range tests {
		req, _ := http.NewRequest(tt.method, ts.URL+tt.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: request failed: %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", tt.path, resp.StatusCode)
		}
		if got := b.requests[i].Path; got != tt.want {
			t.Errorf("%s: forwarded to %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestProxy_RegisterRejectsGet(t *testing.T) {
	b := &stubBackend{resp: &backend.Response{StatusCode: http.StatusOK}}
	ts := newTestServer(t, Deps{Backend: b})

	resp, err := http.Get(ts.URL + "/api/auth/register")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
	if len(b.requests) != 0 {
		t.Errorf("expected no forwarded requests, got %d", len(b.requests))
	}
}

func TestProxy_HexValidation(t *testing.T) {
	b := &stubBackend{resp: &backend.Response{StatusCode: http.StatusOK, Body: []byte(`[]`)}}
	ts := newTestServer(t, Deps{Backend: b})

	for _, body := range []string{`{"count":0,"length":64}`, `{"count":4096,"length":64}`, `{"count":1,"length":3}`, `nope`} {
		resp, err := http.Post(ts.URL+"/api/utils/hex", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, resp.StatusCode)
		}
	}
	if len(b.requests) != 0 {
		t.Fatalf("invalid requests were forwarded: %d", len(b.requests))
	}

	resp, err := http.Post(ts.URL+"/api/utils/hex", "application/json", strings.NewReader(`{"count":2,"length":64}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || b.requests[0].Path != "/utils/hex/generate" {
		t.Errorf("expected relay to /utils/hex/generate, got %d %+v", resp.StatusCode, b.requests)
	}
}

func TestProxy_TransportError(t *testing.T) {
	b := &stubBackend{err: errors.New("connection refused")}
	ts := newTestServer(t, Deps{Backend: b})

	resp, err := http.Get(ts.URL + "/api/auth/me")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
}

func TestStream_HelloAndItems(t *testing.T) {
	ts := newTestServer(t, Deps{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/random/stream?ips=200", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("unexpected content type %q", ct)
	}

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 1024)
	for !strings.Contains(string(buf), "event: item") {
		n, err := resp.Body.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			t.Fatalf("read stream: %v (got %q)", err, buf)
		}
	}
	if !strings.HasPrefix(string(buf), "event: hello\n") {
		t.Errorf("expected hello first, got %q", buf)
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, Deps{Components: []Component{
		{Name: "cache", Check: func(context.Context) error { return nil }},
		{Name: "database", Check: func(context.Context) error { return errors.New("unreachable") }},
	}})

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/health/detailed")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var body struct {
		Status     string                     `json:"status"`
		Components map[string]componentStatus `json:"components"`
	}
	decode(t, resp, &body)
	if body.Status != "degraded" {
		t.Errorf("expected degraded, got %s", body.Status)
	}
	if body.Components["cache"].Status != "ok" || body.Components["database"].Error != "unreachable" {
		t.Errorf("unexpected components %+v", body.Components)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
}

func TestExpand_MalformedBody(t *testing.T) {
	ts := newTestServer(t, Deps{})

	resp, err := http.Post(ts.URL+"/api/random/expand", "application/json", strings.NewReader(`{"hex":`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var body errorBody
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	if !strings.HasPrefix(body.Error, "invalid body") {
		t.Errorf("expected body decode error, got %q", body.Error)
	}
}

func readHello(t *testing.T, url string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 0, 1024)
	chunk := make([]byte, 512)
	for !strings.Contains(string(buf), "\n\n") {
		n, err := resp.Body.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			t.Fatalf("read stream: %v (got %q)", err, buf)
		}
	}
	return string(buf[:strings.Index(string(buf), "\n\n")])
}

func TestStream_HDIgnoresDefaultMode(t *testing.T) {
	ts := newTestServer(t, Deps{DefaultMode: aggregate.ModeXpub})

	hello := readHello(t, ts.URL+"/api/random/stream")
	if !strings.Contains(hello, `"hd":"address"`) {
		t.Errorf("expected hd address by default, got %q", hello)
	}

	hello = readHello(t, ts.URL+"/api/random/stream?hd=xpub")
	if !strings.Contains(hello, `"hd":"xpub"`) {
		t.Errorf("expected hd xpub when requested, got %q", hello)
	}
}
