// Package address defines the 32-byte identity used for signers, records, assets and
// token accounts, rendered in base58.
package address

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// Size is the byte length of an Address.
const Size = 32

// ErrInvalidAddress is returned for text that does not decode to exactly Size bytes.
var ErrInvalidAddress = errors.New("address: invalid base58 address")

// Address is an opaque 32-byte identity.
type Address [Size]byte

// Zero is the all-zero address.
var Zero Address

// Parse decodes a base58 address.
func Parse(s string) (Address, error) {
	var a Address
	if s == "" {
		return a, ErrInvalidAddress
	}
	raw := base58.Decode(s)
	if len(raw) != Size {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	copy(a[:], raw)
	return a, nil
}

// MustParse is Parse that panics; intended for constants.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromBytes copies b into an Address.
func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != Size {
		return a, fmt.Errorf("%w: %d bytes", ErrInvalidAddress, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Hash returns the sha256 of the concatenated parts as an Address. It names well-known
// identities such as program ids.
func Hash(parts ...[]byte) Address {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

func (a Address) String() string { return base58.Encode(a[:]) }

// Bytes returns a copy of the raw bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, a[:])
	return out
}

func (a Address) IsZero() bool { return a == Zero }

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
