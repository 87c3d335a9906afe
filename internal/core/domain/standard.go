package domain

import "fmt"

// Standard is an HD address-derivation standard.
type Standard string

const (
	StandardBIP44 Standard = "bip44" // legacy P2PKH
	StandardBIP49 Standard = "bip49" // P2SH-wrapped P2WPKH
	StandardBIP84 Standard = "bip84" // native P2WPKH
)

// CoinTypeBitcoin is the SLIP-44 coin type for bitcoin mainnet.
const CoinTypeBitcoin uint32 = 0

// DefaultAccount is the only account index scanned.
const DefaultAccount uint32 = 0

// Standards lists every supported standard in derivation order.
var Standards = []Standard{StandardBIP44, StandardBIP49, StandardBIP84}

// Purpose returns the BIP43 purpose constant.
func (s Standard) Purpose() uint32 {
	switch s {
	case StandardBIP49:
		return 49
	case StandardBIP84:
		return 84
	default:
		return 44
	}
}

// Bucket returns the result-document key for addresses of this standard.
func (s Standard) Bucket() string {
	switch s {
	case StandardBIP49:
		return "p2sh_p2wpkh"
	case StandardBIP84:
		return "p2wpkh"
	default:
		return "p2pkh"
	}
}

// AccountPath returns the account-level derivation path, e.g. m/84'/0'/0'.
func (s Standard) AccountPath() string {
	return fmt.Sprintf("m/%d'/%d'/%d'", s.Purpose(), CoinTypeBitcoin, DefaultAccount)
}

// Branch selects the external (receive) or change chain of an account.
type Branch uint32

const (
	BranchExternal Branch = 0
	BranchChange   Branch = 1
)

func (b Branch) String() string {
	if b == BranchChange {
		return "change"
	}
	return "external"
}

// Path returns the full derivation path of index i on this branch.
func (s Standard) Path(b Branch, i uint32) string {
	return fmt.Sprintf("%s/%d/%d", s.AccountPath(), b, i)
}
