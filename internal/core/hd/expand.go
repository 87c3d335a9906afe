// Package hd expands raw hex seeds into extended keys and BIP44/49/84
// addresses. Everything here is a pure function of its input.
package hd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/vietddude/seedscan/internal/core/domain"
)

const (
	MinSeedBytes = 16
	MaxSeedBytes = 64
)

// NetParams is the only network supported.
var NetParams = &chaincfg.MainNetParams

// ParseSeed decodes seedHex and checks its length. Seeds are used directly
// as BIP32 entropy, never truncated or padded.
func ParseSeed(seedHex string) ([]byte, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidHex, err)
	}
	if len(seed) < MinSeedBytes || len(seed) > MaxSeedBytes {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidSeedLength, len(seed))
	}
	return seed, nil
}

// Master derives the BIP32 master node of a hex seed.
func Master(seedHex string) (*hdkeychain.ExtendedKey, error) {
	seed, err := ParseSeed(seedHex)
	if err != nil {
		return nil, err
	}
	master, err := hdkeychain.NewMaster(seed, NetParams)
	if err != nil {
		return nil, fmt.Errorf("new master: %w", err)
	}
	return master, nil
}

// Expand returns the master key under all six version prefixes.
func Expand(seedHex string) (*domain.ExtendedKeys, error) {
	master, err := Master(seedHex)
	if err != nil {
		return nil, err
	}
	neutered, err := master.Neuter()
	if err != nil {
		return nil, fmt.Errorf("neuter master: %w", err)
	}

	keys := &domain.ExtendedKeys{
		SeedHex: strings.ToLower(seedHex),
		Xprv:    master.String(),
		Xpub:    neutered.String(),
	}

	retag := []struct {
		dst     *string
		src     string
		version uint32
	}{
		{&keys.Yprv, keys.Xprv, VersionYprv},
		{&keys.Ypub, keys.Xpub, VersionYpub},
		{&keys.Zprv, keys.Xprv, VersionZprv},
		{&keys.Zpub, keys.Xpub, VersionZpub},
	}
	for _, r := range retag {
		if *r.dst, err = SetVersion(r.src, r.version); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// RootFingerprint returns the first 4 bytes of HASH160(master pubkey) as hex.
func RootFingerprint(seedHex string) (string, error) {
	master, err := Master(seedHex)
	if err != nil {
		return "", err
	}
	return fingerprint(master)
}

func fingerprint(key *hdkeychain.ExtendedKey) (string, error) {
	pub, err := key.ECPubKey()
	if err != nil {
		return "", fmt.Errorf("master pubkey: %w", err)
	}
	return hex.EncodeToString(btcutil.Hash160(pub.SerializeCompressed())[:4]), nil
}
