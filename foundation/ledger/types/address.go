package types

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"sort"

	"github.com/mr-tron/base58"
)

// AddressLength is the size of an address. An address is the Ed25519 public
// key of its owner.
const AddressLength = ed25519.PublicKeySize

// Address identifies an account on the ledger.
type Address [AddressLength]byte

// AddressFromPublicKey converts the public key to an address value.
func AddressFromPublicKey(pk ed25519.PublicKey) (Address, error) {
	if len(pk) != AddressLength {
		return Address{}, fmt.Errorf("invalid public key length %d", len(pk))
	}

	return Address(pk), nil
}

// ParseAddress converts a base58 string into an address and validates the
// string is formatted correctly.
func ParseAddress(s string) (Address, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("decoding address %q: %w", s, err)
	}

	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("invalid address length %d", len(b))
	}

	return Address(b), nil
}

// PublicKey returns the address as the public key used to verify signatures.
func (a Address) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(a[:])
}

// IsZero reports whether the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the base58 form of the address.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// MarshalText implements the encoding.TextMarshaler interface.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (a *Address) UnmarshalText(text []byte) error {
	v, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// =============================================================================

// SortAddresses sorts the addresses in ascending byte order. This is the
// order accounts are locked and hashed in.
func SortAddresses(addrs []Address) {
	sort.Sort(byAddress(addrs))
}

// Compare returns an integer comparing two addresses lexicographically.
func Compare(a, b Address) int {
	return bytes.Compare(a[:], b[:])
}

// byAddress provides sorting support by the address value.
type byAddress []Address

// Len returns the number of addresses in the list.
func (ba byAddress) Len() int {
	return len(ba)
}

// Less helps to sort the list by address in ascending order.
func (ba byAddress) Less(i, j int) bool {
	return Compare(ba[i], ba[j]) < 0
}

// Swap moves addresses in the order of the address value.
func (ba byAddress) Swap(i, j int) {
	ba[i], ba[j] = ba[j], ba[i]
}
