// Package hashing provides the digest functions the ledger is built on. Every
// digest that leaves this package is a lowercase, fixed width hex string so
// values can be compared lexicographically.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/ripemd160"
)

// PublicKeyHashLength is the size of the digest produced by PublicKeyHash.
const PublicKeyHashLength = ripemd160.Size

// Sha256 returns the hex encoded SHA-256 digest of the payload.
func Sha256(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Sha256x2 returns the hex encoded SHA-256 digest of the SHA-256 digest of
// the payload.
func Sha256x2(payload []byte) string {
	sum := DoubleSha256(payload)
	return hex.EncodeToString(sum[:])
}

// DoubleSha256 returns the raw double SHA-256 digest of the payload.
func DoubleSha256(payload []byte) [sha256.Size]byte {
	first := sha256.Sum256(payload)
	return sha256.Sum256(first[:])
}

// Ripemd160 returns the raw RIPEMD-160 digest of the payload.
func Ripemd160(payload []byte) []byte {
	h := ripemd160.New()

	// Write on a hash.Hash never returns an error.
	h.Write(payload)

	return h.Sum(nil)
}

// PublicKeyHash returns RIPEMD160(SHA256(publicKey)), the value outputs are
// locked to.
func PublicKeyHash(publicKey []byte) []byte {
	sum := sha256.Sum256(publicKey)
	return Ripemd160(sum[:])
}

// Hash returns the double SHA-256 hex digest of the JSON representation of
// the value.
func Hash(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}

	return Sha256x2(data), nil
}
