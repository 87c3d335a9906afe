package hd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/vietddude/seedscan/internal/core/domain"
)

// Mainnet extended key version prefixes (SLIP-132).
const (
	VersionXprv uint32 = 0x0488ade4
	VersionXpub uint32 = 0x0488b21e
	VersionYprv uint32 = 0x049d7878
	VersionYpub uint32 = 0x049d7cb2
	VersionZprv uint32 = 0x04b2430c
	VersionZpub uint32 = 0x04b24746
)

// serializedKeyLen is version(4) + depth(1) + fingerprint(4) + index(4) + chain code(32) + key(33).
const serializedKeyLen = 78

const checksumLen = 4

// PublicVersion returns the public prefix used for addresses of the standard.
func PublicVersion(s domain.Standard) uint32 {
	switch s {
	case domain.StandardBIP49:
		return VersionYpub
	case domain.StandardBIP84:
		return VersionZpub
	default:
		return VersionXpub
	}
}

// DecodeExtendedKey returns the 78-byte payload of a base58check extended key.
func DecodeExtendedKey(key string) ([]byte, error) {
	raw := base58.Decode(key)
	if len(raw) != serializedKeyLen+checksumLen {
		return nil, fmt.Errorf("%w: bad length %d", domain.ErrUnsupportedExtendedKey, len(raw))
	}
	payload, sum := raw[:serializedKeyLen], raw[serializedKeyLen:]
	if !bytes.Equal(chainhash.DoubleHashB(payload)[:checksumLen], sum) {
		return nil, fmt.Errorf("%w: bad checksum", domain.ErrUnsupportedExtendedKey)
	}
	return payload, nil
}

// EncodeExtendedKey base58check-encodes a 78-byte payload.
func EncodeExtendedKey(payload []byte) string {
	buf := make([]byte, 0, len(payload)+checksumLen)
	buf = append(buf, payload...)
	buf = append(buf, chainhash.DoubleHashB(payload)[:checksumLen]...)
	return base58.Encode(buf)
}

// SetVersion re-tags an extended key with a new version prefix. Only the
// first four bytes and the checksum change.
func SetVersion(key string, version uint32) (string, error) {
	payload, err := DecodeExtendedKey(key)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	binary.BigEndian.PutUint32(out[:4], version)
	return EncodeExtendedKey(out), nil
}

// ConvertToLegacyXpub rewrites a ypub or zpub to the xpub prefix. Any other
// key is returned unchanged.
func ConvertToLegacyXpub(key string) (string, error) {
	if !strings.HasPrefix(key, "ypub") && !strings.HasPrefix(key, "zpub") {
		return key, nil
	}
	return SetVersion(key, VersionXpub)
}
