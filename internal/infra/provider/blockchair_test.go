package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/seedscan/internal/core/domain"
)

func addressDashboardHandler(t *testing.T, calls *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.URL.Query().Get("limit"); got != "0" {
			t.Errorf("expected limit=0, got %q", got)
		}
		list := strings.TrimPrefix(r.URL.Path, "/dashboards/addresses/")
		data := map[string]any{}
		for i, addr := range strings.Split(list, ",") {
			if addr == "unknown" {
				continue
			}
			data[addr] = map[string]any{
				"address": map[string]any{
					"balance":           i * 10,
					"transaction_count": fmt.Sprint(i % 2),
					"received":          i * 10,
					"spent":             nil,
				},
				"utxo": []any{},
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}
}

func TestBlockchair_FetchAddressesBatches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(addressDashboardHandler(t, &calls))
	defer srv.Close()

	c := NewBlockchairClient(BlockchairConfig{BaseURL: srv.URL}, nil)

	addrs := make([]string, 150)
	for i := range addrs {
		addrs[i] = fmt.Sprintf("addr%03d", i)
	}
	got, err := c.FetchAddresses(context.Background(), addrs)
	if err != nil {
		t.Fatalf("FetchAddresses failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 batches, got %d", calls.Load())
	}
	if len(got) != 150 {
		t.Fatalf("expected 150 records, got %d", len(got))
	}

	info := got["addr001"]
	if info.Balance != 10 || info.TransactionCount != 1 || info.Spent != 0 {
		t.Errorf("unexpected record %+v", info)
	}
	if info.UTXO == nil {
		t.Error("expected empty utxo list, got nil")
	}
}

func TestBlockchair_UnknownAddressesOmitted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(addressDashboardHandler(t, &calls))
	defer srv.Close()

	c := NewBlockchairClient(BlockchairConfig{BaseURL: srv.URL}, nil)
	got, err := c.FetchAddresses(context.Background(), []string{"known", "unknown"})
	if err != nil {
		t.Fatalf("FetchAddresses failed: %v", err)
	}
	if _, ok := got["unknown"]; ok || len(got) != 1 {
		t.Errorf("expected only the known address, got %v", got)
	}
}

func TestBlockchair_EmptyDataArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[],"context":{"code":200}}`))
	}))
	defer srv.Close()

	c := NewBlockchairClient(BlockchairConfig{BaseURL: srv.URL}, nil)
	got, err := c.FetchAddresses(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("FetchAddresses failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}

func TestBlockchair_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewBlockchairClient(BlockchairConfig{BaseURL: srv.URL}, nil)
	_, err := c.FetchAddresses(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected StatusError 500, got %v", err)
	}
}

func TestBlockchair_APIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "secret" {
			t.Errorf("expected key=secret, got %q", got)
		}
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	c := NewBlockchairClient(BlockchairConfig{BaseURL: srv.URL, APIKey: "secret"}, nil)
	if _, err := c.FetchAddresses(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("FetchAddresses failed: %v", err)
	}
}

func TestBlockchair_FetchXpubShapes(t *testing.T) {
	const xpub = "xpub-test"

	tests := []struct {
		name string
		body string
	}{
		{
			name: "list with nested address",
			body: `{"data":{"xpub-test":{"addresses":[
				{"address":{"address":"A","balance":"500","transaction_count":2,"path":"0/0"}},
				{"address":"B","balance":0,"transaction_count":0,"path":"1/3"}
			]}},"context":{"limit":"20"}}`,
		},
		{
			name: "object keyed by address",
			body: `{"data":{"xpub-test":{"addresses":{
				"A":{"balance":500,"transaction_count":"2","path":"0/0"},
				"B":{"balance":0,"transaction_count":0,"path":"1/3"}
			}}},"context":{"limit":"20"}}`,
		},
		{
			name: "flat data",
			body: `{"data":{"addresses":[
				{"address":"A","balance":500,"transaction_count":2,"path":"0/0"},
				{"address":"B","balance":0,"transaction_count":0,"path":"1/3"}
			]},"context":{"limit":"20"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/dashboards/xpub/"+xpub {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewBlockchairClient(BlockchairConfig{BaseURL: srv.URL}, nil)
			res, err := c.FetchXpub(context.Background(), xpub, 20)
			if err != nil {
				t.Fatalf("FetchXpub failed: %v", err)
			}
			if len(res.Addresses) != 2 {
				t.Fatalf("expected 2 addresses, got %d", len(res.Addresses))
			}

			byAddr := map[string]domain.AddressInfo{}
			for _, a := range res.Addresses {
				byAddr[a.Address] = a
			}
			a := byAddr["A"]
			if a.Balance != 500 || a.TransactionCount != 2 || a.Chain != "external" {
				t.Errorf("unexpected record A: %+v", a)
			}
			if b := byAddr["B"]; b.Chain != "change" || b.Path != "1/3" {
				t.Errorf("unexpected record B: %+v", b)
			}
			if len(res.Meta) == 0 {
				t.Error("expected context to be kept as meta")
			}
		})
	}
}

func TestBlockchair_XpubLimitClamped(t *testing.T) {
	tests := []struct {
		limit int
		want  string
	}{
		{0, "1"},
		{-5, "1"},
		{250, "250"},
		{20000, "10000"},
	}

	for _, tt := range tests {
		var got string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.URL.Query().Get("limit")
			_, _ = w.Write([]byte(`{"data":{}}`))
		}))

		c := NewBlockchairClient(BlockchairConfig{BaseURL: srv.URL}, nil)
		if _, err := c.FetchXpub(context.Background(), "x", tt.limit); err != nil {
			t.Fatalf("FetchXpub failed: %v", err)
		}
		srv.Close()
		if got != tt.want {
			t.Errorf("limit %d: expected %s, got %s", tt.limit, tt.want, got)
		}
	}
}

func TestBlockchair_ThrottleFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewBlockchairClient(BlockchairConfig{BaseURL: srv.URL}, nil)

	_, err := c.FetchAddresses(context.Background(), []string{"a"})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 StatusError, got %v", err)
	}

	_, err = c.FetchAddresses(context.Background(), []string{"a"})
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected throttled client to skip the network, got %d calls", calls.Load())
	}
	if ra := c.Monitor.RetryAfter(); ra <= 0 || ra > 30*time.Second {
		t.Errorf("unexpected retry after %v", ra)
	}
}
