package domain

import "time"

// Source records how the seed of a result document was obtained.
type Source string

const (
	SourceRandom   Source = "random"
	SourceRange    Source = "range"
	SourceSpecific Source = "specific"
)

// ParseSource returns the source named by s, or false if s is unknown.
func ParseSource(s string) (Source, bool) {
	switch Source(s) {
	case SourceRandom, SourceRange, SourceSpecific:
		return Source(s), true
	}
	return "", false
}

// Bip39NotRecoverable is the note stored for raw-hex seeds.
const Bip39NotRecoverable = "BIP39 seed not recoverable from raw private key"

// ResultDocument is the structured outcome of one expansion request.
type ResultDocument struct {
	ID           string             `json:"id"`
	CreatedAt    time.Time          `json:"created_at"`
	Source       Source             `json:"source"`
	Input        ResultInput        `json:"input"`
	Bip39        Bip39Info          `json:"bip39"`
	ExtendedKeys ExtendedKeySummary `json:"extended_keys"`
	Results      Results            `json:"results"`
	Totals       Totals             `json:"totals"`
}

type ResultInput struct {
	PrivateKeyHex string `json:"private_key_hex,omitempty"`
	Xpub          string `json:"xpub,omitempty"`
}

// Bip39Info is always empty for raw-hex seeds.
type Bip39Info struct {
	Mnemonic *string `json:"mnemonic"`
	SeedHex  *string `json:"seed_hex"`
	Note     string  `json:"note,omitempty"`
}

type ExtendedKeySummary struct {
	Xprv            string `json:"xprv"`
	Xpub            string `json:"xpub"`
	Yprv            string `json:"yprv"`
	Ypub            string `json:"ypub"`
	Zprv            string `json:"zprv"`
	Zpub            string `json:"zpub"`
	RootFingerprint string `json:"root_fingerprint"`
}

type Results struct {
	Bitcoin map[string]*DerivationResult `json:"bitcoin,omitempty"`
}

// DerivationResult holds one standard's external branch and, nested, its change branch.
type DerivationResult struct {
	AccountPath   string            `json:"accountPath"`
	Addresses     []AddressEntry    `json:"addresses"`
	ActiveIndices []uint32          `json:"active_indices"`
	Change        *DerivationResult `json:"change,omitempty"`
}

// AddressEntry is one derived address, optionally enriched by the provider.
type AddressEntry struct {
	Index          uint32       `json:"index"`
	Address        string       `json:"address"`
	DerivationPath string       `json:"derivationPath,omitempty"`
	TxCount        *int64       `json:"tx_count,omitempty"`
	API            *ProviderAPI `json:"api,omitempty"`
}

type ProviderAPI struct {
	Blockchair *AddressInfo `json:"blockchair,omitempty"`
}

// Totals aggregates activity over every address the provider answered for.
type Totals struct {
	AddressesScanned int   `json:"addresses_scanned"`
	WithActivity     int   `json:"with_activity"`
	BalanceSats      int64 `json:"balance_sats"`
}

// Add folds one provider record into the totals.
func (t *Totals) Add(info AddressInfo) {
	t.AddressesScanned++
	if info.Active() {
		t.WithActivity++
		t.BalanceSats += info.Balance
	}
}

// Summary is the flat variant of a result, used for stream enrichment.
type Summary struct {
	Xprv      string        `json:"xprv"`
	Yprv      string        `json:"yprv"`
	Zprv      string        `json:"zprv"`
	Xpub      string        `json:"xpub"`
	Ypub      string        `json:"ypub"`
	Zpub      string        `json:"zpub"`
	Totals    Totals        `json:"totals"`
	Positives []AddressInfo `json:"positives"`
}
