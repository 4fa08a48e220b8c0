// Package signature provides helper functions for handling the blockchain
// signature needs. Keys live on the secp256k1 curve, signatures are DER
// encoded and public keys travel in their 65 byte uncompressed form.
package signature

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrInvalidSignature is returned when a signature or public key can't be
// parsed.
var ErrInvalidSignature = errors.New("invalid signature")

// Signer is the capability a wallet hands to the ledger. The ledger never
// sees private key material, only this behavior.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
	PublicKey() []byte
}

// =============================================================================

// Key is a Signer backed by a secp256k1 private key.
type Key struct {
	privateKey *secp256k1.PrivateKey
}

// GenerateKey constructs a new random key.
func GenerateKey() (Key, error) {
	pk, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return Key{}, fmt.Errorf("generate key: %w", err)
	}

	return Key{privateKey: pk}, nil
}

// KeyFromBytes constructs a key from the 32 byte private scalar.
func KeyFromBytes(privateKey []byte) (Key, error) {
	if len(privateKey) != secp256k1.PrivKeyBytesLen {
		return Key{}, fmt.Errorf("private key length %d, exp %d", len(privateKey), secp256k1.PrivKeyBytesLen)
	}

	return Key{privateKey: secp256k1.PrivKeyFromBytes(privateKey)}, nil
}

// Sign produces a DER encoded signature over the SHA-256 digest of the payload.
func (k Key) Sign(payload []byte) ([]byte, error) {
	if k.privateKey == nil {
		return nil, errors.New("sign: key not initialized")
	}

	digest := sha256.Sum256(payload)
	sig := ecdsa.Sign(k.privateKey, digest[:])

	return sig.Serialize(), nil
}

// PublicKey returns the uncompressed public key.
func (k Key) PublicKey() []byte {
	if k.privateKey == nil {
		return nil
	}

	return k.privateKey.PubKey().SerializeUncompressed()
}

// Bytes returns the 32 byte private scalar.
func (k Key) Bytes() []byte {
	if k.privateKey == nil {
		return nil
	}

	return k.privateKey.Serialize()
}

// =============================================================================

// Verify checks the DER signature was produced over the payload by the owner
// of the public key.
func Verify(publicKey []byte, payload []byte, sig []byte) (bool, error) {
	pub, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false, fmt.Errorf("%w: public key: %w", ErrInvalidSignature, err)
	}

	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false, fmt.Errorf("%w: der: %w", ErrInvalidSignature, err)
	}

	digest := sha256.Sum256(payload)

	return parsed.Verify(digest[:], pub), nil
}

// PublicKeyHex renders a public key for logging and display.
func PublicKeyHex(publicKey []byte) string {
	return hexutil.Encode(publicKey)
}
