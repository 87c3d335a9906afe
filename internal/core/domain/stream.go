package domain

// Stream event names.
const (
	EventHello = "hello"
	EventItem  = "item"
	EventDebug = "debug"
)

// StreamItem is one generated seed on the random stream. Never persisted.
type StreamItem struct {
	TS     int64        `json:"ts"`
	Hex    string       `json:"hex"`
	Base64 string       `json:"base64"`
	SHA256 string       `json:"sha256"`
	Check  *CheckResult `json:"check,omitempty"`
}

// CheckResult is the outcome of an item's enrichment call.
type CheckResult struct {
	OK     bool   `json:"ok"`
	Status int    `json:"status,omitempty"`
	Body   any    `json:"body,omitempty"`
	Error  string `json:"error,omitempty"`
}
