package stream

import (
	"net/url"
	"strconv"
	"time"

	"github.com/vietddude/seedscan/internal/scan/aggregate"
)

const (
	DefaultIPS = 50
	MinIPS     = 1
	MaxIPS     = 500

	DefaultTimeout = 200 * time.Millisecond
	MinTimeout     = 50 * time.Millisecond
	MaxTimeout     = 2000 * time.Millisecond

	DefaultDepth = 100
	MaxDepth     = 100
)

// Enrichment selects where item checks are run.
type Enrichment string

const (
	EnrichInternal Enrichment = "internal"
	EnrichExternal Enrichment = "external"
)

// Options are the per-connection stream parameters.
type Options struct {
	IPS     int
	Check   bool
	Mode    Enrichment
	HD      aggregate.Mode
	Timeout time.Duration
}

// Interval is the fixed delay after each item, never below 1ms.
func (o Options) Interval() time.Duration {
	return time.Duration(max(1, 1000/max(1, o.IPS))) * time.Millisecond
}

// ParseOptions reads ips, check, mode, hd and timeout from a query string.
// Out-of-range values are clamped; unparseable ones take the default.
func ParseOptions(q url.Values) Options {
	opts := Options{
		IPS:     clampInt(q.Get("ips"), DefaultIPS, MinIPS, MaxIPS),
		Check:   q.Get("check") == "1",
		Mode:    EnrichExternal,
		HD:      aggregate.ParseMode(q.Get("hd")),
		Timeout: time.Duration(clampInt(q.Get("timeout"), int(DefaultTimeout/time.Millisecond),
			int(MinTimeout/time.Millisecond), int(MaxTimeout/time.Millisecond))) * time.Millisecond,
	}
	if q.Get("mode") == string(EnrichInternal) {
		opts.Mode = EnrichInternal
	}
	return opts
}

// ClampDepth bounds the internal enrichment depth to [1, MaxDepth].
func ClampDepth(depth int) int {
	if depth <= 0 {
		return DefaultDepth
	}
	return min(MaxDepth, depth)
}

func clampInt(raw string, def, lo, hi int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n == 0 {
		return def
	}
	return min(hi, max(lo, n))
}
