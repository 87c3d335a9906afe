package hd

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/txscript"

	"github.com/vietddude/seedscan/internal/core/domain"
)

// MaxDepth bounds derivation cost for request handlers.
const MaxDepth = 1000

func hardened(i uint32) uint32 {
	return i + hdkeychain.HardenedKeyStart
}

// Account derives m/purpose'/coin'/account' for the standard.
func Account(master *hdkeychain.ExtendedKey, s domain.Standard) (*hdkeychain.ExtendedKey, error) {
	key := master
	for _, i := range []uint32{s.Purpose(), domain.CoinTypeBitcoin, domain.DefaultAccount} {
		var err error
		if key, err = key.Derive(hardened(i)); err != nil {
			return nil, fmt.Errorf("derive %s account: %w", s, err)
		}
	}
	return key, nil
}

// AccountXpub returns the account public key tagged with the standard's prefix.
func AccountXpub(account *hdkeychain.ExtendedKey, s domain.Standard) (string, error) {
	pub, err := account.Neuter()
	if err != nil {
		return "", fmt.Errorf("neuter account: %w", err)
	}
	return SetVersion(pub.String(), PublicVersion(s))
}

// AddressFromPubKey encodes a public key with the standard's address rule.
func AddressFromPubKey(s domain.Standard, pub *btcec.PublicKey) (string, error) {
	hash := btcutil.Hash160(pub.SerializeCompressed())

	switch s {
	case domain.StandardBIP44:
		addr, err := btcutil.NewAddressPubKeyHash(hash, NetParams)
		if err != nil {
			return "", err
		}
		return addr.EncodeAddress(), nil

	case domain.StandardBIP49:
		witness, err := btcutil.NewAddressWitnessPubKeyHash(hash, NetParams)
		if err != nil {
			return "", err
		}
		redeem, err := txscript.PayToAddrScript(witness)
		if err != nil {
			return "", err
		}
		addr, err := btcutil.NewAddressScriptHash(redeem, NetParams)
		if err != nil {
			return "", err
		}
		return addr.EncodeAddress(), nil

	case domain.StandardBIP84:
		addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, NetParams)
		if err != nil {
			return "", err
		}
		return addr.EncodeAddress(), nil
	}
	return "", fmt.Errorf("unknown standard %q", s)
}

// BranchAddresses derives indices [0, depth) of one branch of an account.
func BranchAddresses(
	account *hdkeychain.ExtendedKey,
	s domain.Standard,
	b domain.Branch,
	depth int,
) ([]string, error) {
	branch, err := account.Derive(uint32(b))
	if err != nil {
		return nil, fmt.Errorf("derive %s branch: %w", b, err)
	}

	addrs := make([]string, 0, depth)
	for i := 0; i < depth; i++ {
		child, err := branch.Derive(uint32(i))
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", s.Path(b, uint32(i)), err)
		}
		pub, err := child.ECPubKey()
		if err != nil {
			return nil, err
		}
		addr, err := AddressFromPubKey(s, pub)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// DeriveAddresses derives depth external and depth change addresses for
// every standard, in bip44, bip49, bip84 order.
func DeriveAddresses(seedHex string, depth int) ([]domain.Derivation, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidDepth, depth)
	}
	master, err := Master(seedHex)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Derivation, 0, len(domain.Standards))
	for _, s := range domain.Standards {
		account, err := Account(master, s)
		if err != nil {
			return nil, err
		}
		xpub, err := AccountXpub(account, s)
		if err != nil {
			return nil, err
		}
		external, err := BranchAddresses(account, s, domain.BranchExternal, depth)
		if err != nil {
			return nil, err
		}
		change, err := BranchAddresses(account, s, domain.BranchChange, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Derivation{
			Standard: s,
			Xpub:     xpub,
			External: external,
			Change:   change,
		})
	}
	return out, nil
}

// AccountXpubs returns the account public key of every standard, keyed by standard.
func AccountXpubs(seedHex string) (map[domain.Standard]string, error) {
	master, err := Master(seedHex)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.Standard]string, len(domain.Standards))
	for _, s := range domain.Standards {
		account, err := Account(master, s)
		if err != nil {
			return nil, err
		}
		if out[s], err = AccountXpub(account, s); err != nil {
			return nil, err
		}
	}
	return out, nil
}
