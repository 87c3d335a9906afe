package provider

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Status represents the health state of the provider.
type Status int

const (
	StatusHealthy   Status = iota // working normally
	StatusDegraded                // slow but working
	StatusThrottled               // rate limiting this client
	StatusBlocked                 // refusing this client
)

func (s Status) String() string {
	switch s {
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	case StatusBlocked:
		return "blocked"
	default:
		return "healthy"
	}
}

const (
	defaultThrottleBackoff = 60 * time.Second
	defaultBlockBackoff    = 10 * time.Minute
)

// MonitorStats is a snapshot of Monitor state.
type MonitorStats struct {
	Status         Status        `json:"status"`
	AverageLatency time.Duration `json:"average_latency"`
	Requests       int           `json:"requests"`
	ThrottleCount  int           `json:"throttle_count"`
	BlockCount     int           `json:"block_count"`
	RetryAfter     time.Duration `json:"retry_after"`
}

// Monitor tracks provider latency and throttling so callers can fail fast
// while the provider is rate limiting or blocking this client.
type Monitor struct {
	mu sync.RWMutex

	recentLatencies  []time.Duration
	maxLatencyWindow int

	requests      int
	throttleCount int
	blockCount    int
	blocked       bool
	lastThrottle  time.Time
	retryAfter    time.Duration

	throttlePatterns      []string
	slowResponseThreshold time.Duration

	now func() time.Time
}

// NewMonitor creates a monitor with default thresholds.
func NewMonitor() *Monitor {
	return &Monitor{
		recentLatencies:  make([]time.Duration, 0, 100),
		maxLatencyWindow: 100,
		throttlePatterns: []string{
			"rate limit",
			"too many requests",
			"limit exceeded",
			"request count exceeded",
		},
		slowResponseThreshold: 3 * time.Second,
		now:                   time.Now,
	}
}

// IsThrottleStatus reports whether the status code means "slow down".
// Blockchair answers 402 once the daily allowance is spent.
func IsThrottleStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusPaymentRequired
}

// IsBlockStatus reports whether the status code means the client is banned.
// 430 is Blockchair's blacklist response.
func IsBlockStatus(code int) bool {
	return code == http.StatusForbidden || code == 430
}

// RecordRequest records a successful request and clears throttle state.
func (m *Monitor) RecordRequest(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests++
	m.recentLatencies = append(m.recentLatencies, latency)
	if len(m.recentLatencies) > m.maxLatencyWindow {
		m.recentLatencies = m.recentLatencies[1:]
	}
	m.retryAfter = 0
	m.blocked = false
}

// RecordThrottle records a throttling or blocking response.
func (m *Monitor) RecordThrottle(statusCode int, retryAfter string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests++
	m.lastThrottle = m.now()

	if IsBlockStatus(statusCode) {
		m.blockCount++
		m.blocked = true
		m.retryAfter = defaultBlockBackoff
		return
	}

	m.throttleCount++
	m.retryAfter = parseRetryAfter(retryAfter, m.lastThrottle)
	if m.retryAfter <= 0 {
		m.retryAfter = defaultThrottleBackoff
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return at.Sub(now)
	}
	return 0
}

// DetectThrottlePattern checks if a response body looks like a rate-limit message.
func (m *Monitor) DetectThrottlePattern(message string) bool {
	lower := strings.ToLower(message)
	for _, pattern := range m.throttlePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// CheckStatus returns the current status of the provider.
func (m *Monitor) CheckStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

func (m *Monitor) statusLocked() Status {
	if m.retryAfter > 0 && m.now().Sub(m.lastThrottle) < m.retryAfter {
		if m.blocked {
			return StatusBlocked
		}
		return StatusThrottled
	}

	if len(m.recentLatencies) > 10 && m.averageLocked() > m.slowResponseThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

// RetryAfter returns the remaining time before requests are allowed again.
func (m *Monitor) RetryAfter() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.retryAfterLocked()
}

func (m *Monitor) retryAfterLocked() time.Duration {
	if m.retryAfter <= 0 {
		return 0
	}
	return max(0, m.retryAfter-m.now().Sub(m.lastThrottle))
}

func (m *Monitor) averageLocked() time.Duration {
	if len(m.recentLatencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, lat := range m.recentLatencies {
		total += lat
	}
	return total / time.Duration(len(m.recentLatencies))
}

// Stats returns current monitoring statistics.
func (m *Monitor) Stats() MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MonitorStats{
		Status:         m.statusLocked(),
		AverageLatency: m.averageLocked(),
		Requests:       m.requests,
		ThrottleCount:  m.throttleCount,
		BlockCount:     m.blockCount,
		RetryAfter:     m.retryAfterLocked(),
	}
}
