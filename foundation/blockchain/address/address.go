// Package address converts between public key hashes and the base58check
// addresses users hand around.
package address

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/hashing"
	"github.com/btcsuite/btcd/btcutil/base58"
)

// Version is the version byte prefixed to every public key hash. A zero
// version renders as a leading "1" in the encoded address.
const Version byte = 0x00

// ErrInvalidAddress is returned when an address can't be decoded into a
// public key hash.
var ErrInvalidAddress = errors.New("invalid address")

// FromPublicKey derives the address for the raw public key.
func FromPublicKey(publicKey []byte) string {
	return Encode(hashing.PublicKeyHash(publicKey))
}

// Encode renders base58(version | publicKeyHash | checksum) where the checksum
// is the first 4 bytes of the double SHA-256 of version | publicKeyHash.
func Encode(publicKeyHash []byte) string {
	return base58.CheckEncode(publicKeyHash, Version)
}

// Decode strips the version byte and checksum from the address and returns
// the 20 byte public key hash.
func Decode(addr string) ([]byte, error) {
	pkh, version, err := base58.CheckDecode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, addr, err)
	}

	if version != Version {
		return nil, fmt.Errorf("%w: %q: version %d", ErrInvalidAddress, addr, version)
	}

	if len(pkh) != hashing.PublicKeyHashLength {
		return nil, fmt.Errorf("%w: %q: hash length %d", ErrInvalidAddress, addr, len(pkh))
	}

	return pkh, nil
}

// IsValid reports whether the address decodes into a public key hash.
func IsValid(addr string) bool {
	_, err := Decode(addr)
	return err == nil
}
