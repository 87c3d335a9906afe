package domain

import (
	"encoding/json"
	"strings"
)

// AddressInfo is the balance/activity record returned by the provider.
type AddressInfo struct {
	Address          string            `json:"address"`
	Balance          int64             `json:"balance"`
	TransactionCount int64             `json:"transaction_count"`
	Received         int64             `json:"received"`
	Spent            int64             `json:"spent"`
	UTXO             []json.RawMessage `json:"utxo,omitempty"`
	Path             string            `json:"path,omitempty"`
	Chain            string            `json:"chain,omitempty"`
}

// Active reports whether the address has ever transacted.
func (a AddressInfo) Active() bool {
	return a.TransactionCount > 0
}

// ChainFromPath maps a provider path such as "0/5" to external or change.
func ChainFromPath(path string) string {
	switch {
	case strings.HasPrefix(path, "0/"):
		return BranchExternal.String()
	case strings.HasPrefix(path, "1/"):
		return BranchChange.String()
	default:
		return ""
	}
}

// XpubResult is the provider's gap-limited discovery of an extended public key.
type XpubResult struct {
	Addresses []AddressInfo   `json:"addresses"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}
