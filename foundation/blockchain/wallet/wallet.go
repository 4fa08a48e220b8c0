// Package wallet manages the key pairs of the addresses a user controls. Each
// key lives in the wallet folder in a file named <address>.ecdsa.
package wallet

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/address"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

const keyExt = ".ecdsa"

// Wallets maintains the set of keys found in the wallet folder.
type Wallets struct {
	mu   sync.RWMutex
	root string
	keys map[string]signature.Key
}

// Load reads every key file in the folder. A folder that does not exist yet
// is an empty set of wallets.
func Load(root string) (*Wallets, error) {
	w := Wallets{
		root: root,
		keys: make(map[string]signature.Key),
	}

	fn := func(fileName string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if d.IsDir() || filepath.Ext(fileName) != keyExt {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("load %s: %w", fileName, err)
		}

		key, err := signature.KeyFromBytes(crypto.FromECDSA(privateKey))
		if err != nil {
			return fmt.Errorf("load %s: %w", fileName, err)
		}

		w.keys[Address(key)] = key

		return nil
	}

	if err := filepath.WalkDir(root, fn); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &w, nil
		}
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &w, nil
}

// Create generates a new key, saves it to the wallet folder, and returns its
// address.
func (w *Wallets) Create() (string, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}

	key, err := signature.KeyFromBytes(crypto.FromECDSA(privateKey))
	if err != nil {
		return "", err
	}
	addr := Address(key)

	if err := os.MkdirAll(w.root, 0o700); err != nil {
		return "", fmt.Errorf("create wallet folder: %w", err)
	}

	if err := crypto.SaveECDSA(filepath.Join(w.root, addr+keyExt), privateKey); err != nil {
		return "", fmt.Errorf("save key: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.keys[addr] = key

	return addr, nil
}

// Addresses returns the known addresses in sorted order.
func (w *Wallets) Addresses() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	addrs := make([]string, 0, len(w.keys))
	for addr := range w.keys {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	return addrs
}

// Wallet returns the signer for the address.
func (w *Wallets) Wallet(addr string) (signature.Signer, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	key, exists := w.keys[addr]
	if !exists {
		return nil, fmt.Errorf("wallet %s: %w", addr, database.ErrNotFound)
	}

	return key, nil
}

// Address derives the address of the signer's public key.
func Address(signer signature.Signer) string {
	return address.FromPublicKey(signer.PublicKey())
}
