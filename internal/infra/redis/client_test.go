package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNewClient_InvalidURL(t *testing.T) {
	if _, err := NewClient(Config{URL: "not-a-redis-url"}); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestClient_KeyPrefix(t *testing.T) {
	c := NewFromClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "seedscan:")
	defer c.Close()

	if got := c.key("scan:btc"); got != "seedscan:scan:btc" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestClient_UnreachableReturnsError(t *testing.T) {
	c := NewFromClient(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	}), "")
	defer c.Close()

	ctx := context.Background()
	if _, _, err := c.Get(ctx, "k"); err == nil {
		t.Error("expected Get error against unreachable server")
	}
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err == nil {
		t.Error("expected Set error against unreachable server")
	}
	if err := c.Ping(ctx); err == nil {
		t.Error("expected Ping error against unreachable server")
	}
}
