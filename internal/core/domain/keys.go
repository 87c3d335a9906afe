package domain

// ExtendedKeys holds the master key encoded under all six version prefixes.
type ExtendedKeys struct {
	SeedHex string `json:"seedHex"`
	Xprv    string `json:"xprv"`
	Xpub    string `json:"xpub"`
	Yprv    string `json:"yprv"`
	Ypub    string `json:"ypub"`
	Zprv    string `json:"zprv"`
	Zpub    string `json:"zpub"`
}

// Derivation is the address list of one standard's account 0.
type Derivation struct {
	Standard Standard `json:"type"`
	Xpub     string   `json:"xpub"`
	External []string `json:"addrs"`
	Change   []string `json:"change"`
}

// Addresses returns external then change addresses.
func (d Derivation) Addresses() []string {
	out := make([]string, 0, len(d.External)+len(d.Change))
	out = append(out, d.External...)
	return append(out, d.Change...)
}
