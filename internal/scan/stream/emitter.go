// Package stream emits a rate-limited stream of random 32-byte seeds,
// optionally enriching each one with a balance check.
package stream

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/vietddude/seedscan/internal/core/domain"
	"github.com/vietddude/seedscan/internal/metrics"
	"github.com/vietddude/seedscan/internal/scan/aggregate"
)

// SeedBytes is the size of each generated seed.
const SeedBytes = 32

// ErrAlreadyStarted is returned when Run is called twice on one Emitter.
var ErrAlreadyStarted = errors.New("stream already started")

// Summarizer produces the internal enrichment for a seed.
type Summarizer interface {
	Summarize(ctx context.Context, seedHex string, depth int, mode aggregate.Mode) (*domain.Summary, error)
}

// State is the emitter lifecycle.
type State int32

const (
	StateIdle State = iota
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// Deps are the collaborators of an Emitter. Checker may be nil, in which case
// every check runs internally.
type Deps struct {
	Summarizer Summarizer
	Checker    Checker
	CheckURL   string
	Depth      int
	Logger     *slog.Logger
}

// Emitter drives one stream connection.
type Emitter struct {
	opts       Options
	summarizer Summarizer
	checker    Checker
	checkURL   string
	depth      int
	logger     *slog.Logger

	state atomic.Int32
	rand  io.Reader
	now   func() time.Time
}

// NewEmitter creates an idle emitter.
func NewEmitter(opts Options, deps Deps) *Emitter {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		opts:       opts,
		summarizer: deps.Summarizer,
		checker:    deps.Checker,
		checkURL:   deps.CheckURL,
		depth:      ClampDepth(deps.Depth),
		logger:     logger,
		rand:       rand.Reader,
		now:        time.Now,
	}
}

// State returns the current lifecycle state.
func (e *Emitter) State() State {
	return State(e.state.Load())
}

type hello struct {
	IPS       int    `json:"ips"`
	Check     bool   `json:"check"`
	Mode      string `json:"mode"`
	HD        string `json:"hd"`
	TimeoutMs int64  `json:"timeoutMs"`
	TS        int64  `json:"ts"`
}

// Run emits hello and then one item per interval until ctx is done or the
// sink fails. Cancellation is not an error.
func (e *Emitter) Run(ctx context.Context, sink Sink) error {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateStreaming)) {
		return ErrAlreadyStarted
	}
	defer e.state.Store(int32(StateClosed))

	metrics.StreamOpen.Inc()
	defer metrics.StreamOpen.Dec()

	err := sink.Send(domain.EventHello, hello{
		IPS:       e.opts.IPS,
		Check:     e.opts.Check,
		Mode:      string(e.enrichment()),
		HD:        string(e.opts.HD),
		TimeoutMs: e.opts.Timeout.Milliseconds(),
		TS:        e.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	checkLabel := strconv.FormatBool(e.opts.Check)
	timer := time.NewTimer(0)
	<-timer.C
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		item, err := e.generate()
		if err != nil {
			return err
		}

		if e.opts.Check {
			if ctx.Err() != nil {
				return nil
			}
			check, err := e.enrich(ctx, sink, item.Hex)
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			item.Check = check
		}

		if err := sink.Send(domain.EventItem, item); err != nil {
			return fmt.Errorf("send item: %w", err)
		}
		metrics.StreamItemsTotal.WithLabelValues(checkLabel).Inc()

		timer.Reset(e.opts.Interval())
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

func (e *Emitter) generate() (*domain.StreamItem, error) {
	seed := make([]byte, SeedBytes)
	if _, err := io.ReadFull(e.rand, seed); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	sum := sha256.Sum256(seed)
	return &domain.StreamItem{
		TS:     e.now().UnixMilli(),
		Hex:    hex.EncodeToString(seed),
		Base64: base64.StdEncoding.EncodeToString(seed),
		SHA256: hex.EncodeToString(sum[:]),
	}, nil
}

// enrichment resolves the effective mode: external needs a checker.
func (e *Emitter) enrichment() Enrichment {
	if e.opts.Mode == EnrichInternal || e.checker == nil {
		return EnrichInternal
	}
	return EnrichExternal
}

type debugEvent struct {
	Msg       string `json:"msg"`
	HDMode    string `json:"hdMode,omitempty"`
	Depth     int    `json:"depth,omitempty"`
	URL       string `json:"url,omitempty"`
	TimeoutMs int64  `json:"timeoutMs,omitempty"`
	Ms        *int64 `json:"ms,omitempty"`
	OK        *bool  `json:"ok,omitempty"`
	Status    int    `json:"status,omitempty"`
}

func (e *Emitter) enrich(ctx context.Context, sink Sink, seedHex string) (*domain.CheckResult, error) {
	mode := e.enrichment()

	start := debugEvent{Msg: "external check start", URL: e.checkURL, TimeoutMs: e.opts.Timeout.Milliseconds()}
	if mode == EnrichInternal {
		start = debugEvent{Msg: "internalExpand start", HDMode: string(e.opts.HD), Depth: e.depth}
	}
	if err := sink.Send(domain.EventDebug, start); err != nil {
		return nil, fmt.Errorf("send debug: %w", err)
	}

	t0 := time.Now()
	var res domain.CheckResult
	if mode == EnrichInternal {
		res = e.summarize(ctx, seedHex)
	} else {
		res = e.checker.Check(ctx, seedHex, e.opts.Timeout)
	}
	elapsed := time.Since(t0)
	metrics.EnrichmentLatency.
		WithLabelValues(string(mode), strconv.FormatBool(res.OK)).
		Observe(elapsed.Seconds())

	ms := elapsed.Milliseconds()
	done := debugEvent{Msg: "external check done", Ms: &ms, OK: &res.OK, Status: res.Status}
	if mode == EnrichInternal {
		done = debugEvent{Msg: "internalExpand done", Ms: &ms, OK: &res.OK}
	}
	if ctx.Err() == nil {
		if err := sink.Send(domain.EventDebug, done); err != nil {
			return nil, fmt.Errorf("send debug: %w", err)
		}
	}
	return &res, nil
}

func (e *Emitter) summarize(ctx context.Context, seedHex string) domain.CheckResult {
	if e.summarizer == nil {
		return domain.CheckResult{OK: false, Error: "internal enrichment unavailable"}
	}
	sum, err := e.summarizer.Summarize(ctx, seedHex, e.depth, e.opts.HD)
	if err != nil {
		e.logger.Debug("internal enrichment failed", "error", err)
		return domain.CheckResult{OK: false, Error: err.Error()}
	}
	return domain.CheckResult{OK: true, Body: sum}
}
