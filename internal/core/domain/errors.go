package domain

import "errors"

var (
	// ErrInvalidSeedLength is returned when a decoded seed is outside 16..64 bytes.
	ErrInvalidSeedLength = errors.New("seed hex must be 16..64 bytes")

	// ErrInvalidHex is returned when the seed is not a valid hex string.
	ErrInvalidHex = errors.New("invalid hex")

	// ErrInvalidDepth is returned when a derivation depth is not positive.
	ErrInvalidDepth = errors.New("depth must be a positive integer")

	// ErrProviderUnavailable wraps any failure talking to the balance provider.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrUnsupportedExtendedKey is returned for extended keys that cannot be re-tagged.
	ErrUnsupportedExtendedKey = errors.New("unsupported extended key")
)

// IsValidation reports whether err is a caller input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidSeedLength) ||
		errors.Is(err, ErrInvalidHex) ||
		errors.Is(err, ErrInvalidDepth)
}
