// Package utxo maintains the index of unspent transaction outputs. The index
// is derived from the ledger and can always be rebuilt from it. Every key is a
// transaction id and every value is the JSON list of that transaction's
// outputs that are still unspent.
package utxo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/address"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage"
)

// Chain is the behavior required from the ledger to rebuild the index.
type Chain interface {
	FindUnspentTransactionsOutputs() (map[string][]database.UnspentOutput, error)
}

// Set is the unspent output index.
type Set struct {
	mu        sync.RWMutex
	store     storage.Store
	chain     Chain
	evHandler database.EventHandler
}

// New constructs an index over the store for the specified chain.
func New(store storage.Store, chain Chain, evHandler database.EventHandler) *Set {
	if evHandler == nil {
		evHandler = func(v string, args ...any) {}
	}

	return &Set{
		store:     store,
		chain:     chain,
		evHandler: evHandler,
	}
}

// Close releases the index store.
func (s *Set) Close() error {
	return s.store.Close()
}

// Reindex rebuilds the index with a full scan of the chain. Stale keys are
// removed and the rebuilt entries written in one batch, so a failure leaves
// the previous index in place.
func (s *Set) Reindex() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("utxo: Reindex: started")

	unspent, err := s.chain.FindUnspentTransactionsOutputs()
	if err != nil {
		return err
	}

	var stale []string
	err = s.store.ForEach(func(key []byte, value []byte) error {
		if _, exists := unspent[string(key)]; !exists {
			stale = append(stale, string(key))
		}
		return nil
	})
	if err != nil {
		return storageError("scan", err)
	}

	ids := make([]string, 0, len(unspent))
	for id := range unspent {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ops := make([]storage.Op, 0, len(stale)+len(ids))
	for _, id := range stale {
		ops = append(ops, storage.Delete([]byte(id)))
	}

	for _, id := range ids {
		data, err := json.Marshal(unspent[id])
		if err != nil {
			return err
		}
		ops = append(ops, storage.Put([]byte(id), data))
	}

	if err := s.store.Batch(ops); err != nil {
		return storageError("reindex", err)
	}

	s.evHandler("utxo: Reindex: completed: txs[%d]: stale[%d]", len(ids), len(stale))

	return nil
}

// Update applies a newly appended block: outputs its inputs spend are removed
// and its own outputs are added. All the changes are written in one batch, so
// a failure leaves the index untouched.
func (s *Set) Update(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make(map[string][]database.UnspentOutput)

	load := func(id string) ([]database.UnspentOutput, error) {
		if outs, exists := pending[id]; exists {
			return outs, nil
		}

		outs, err := s.read(id)
		if err != nil {
			return nil, err
		}
		pending[id] = outs

		return outs, nil
	}

	for _, tx := range block.Transactions {
		if !tx.IsCoinbase() {
			for _, in := range tx.Inputs {
				outs, err := load(in.TransactionID)
				if err != nil {
					return err
				}

				remaining, found := remove(outs, in.OutputIndex)
				if !found {
					return fmt.Errorf("block %s: output %s:%d is not unspent: %w", block.Hash, in.TransactionID, in.OutputIndex, database.ErrNotFound)
				}
				pending[in.TransactionID] = remaining
			}
		}

		outs, err := load(tx.ID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return err
		}

		for idx, out := range tx.Outputs {
			outs = append(outs, database.UnspentOutput{
				Index:         idx,
				Value:         out.Value,
				PublicKeyHash: out.PublicKeyHash,
			})
		}
		pending[tx.ID] = outs
	}

	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ops := make([]storage.Op, 0, len(ids))
	for _, id := range ids {
		outs := pending[id]
		if len(outs) == 0 {
			ops = append(ops, storage.Delete([]byte(id)))
			continue
		}

		data, err := json.Marshal(outs)
		if err != nil {
			return err
		}
		ops = append(ops, storage.Put([]byte(id), data))
	}

	if err := s.store.Batch(ops); err != nil {
		return storageError("update", err)
	}

	s.evHandler("utxo: Update: blk[%s]: txs[%d]: keys[%d]", block.Hash, len(block.Transactions), len(ops))

	return nil
}

// FindSpendableOutputs walks the index collecting outputs locked to the
// public key hash until their value reaches the amount. The accumulated value
// is less than the amount when funds are insufficient. Which outputs are
// selected depends on the iteration order of the store.
func (s *Set) FindSpendableOutputs(publicKeyHash []byte, amount uint64) (uint64, map[string][]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var accumulated uint64
	selected := make(map[string][]int)

	err := s.store.ForEach(func(key []byte, value []byte) error {
		var outs []database.UnspentOutput
		if err := json.Unmarshal(value, &outs); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}

		id := string(key)
		for _, out := range outs {
			if accumulated >= amount {
				break
			}

			if !bytes.Equal(out.PublicKeyHash, publicKeyHash) {
				continue
			}

			accumulated += out.Value
			selected[id] = append(selected[id], out.Index)
		}

		if accumulated >= amount {
			return storage.ErrStopIteration
		}

		return nil
	})

	if err != nil {
		return 0, nil, storageError("find spendable", err)
	}

	return accumulated, selected, nil
}

// FindUnspentOutputs returns every unspent output locked to the public key
// hash.
func (s *Set) FindUnspentOutputs(publicKeyHash []byte) ([]database.UnspentOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []database.UnspentOutput

	err := s.store.ForEach(func(key []byte, value []byte) error {
		var outs []database.UnspentOutput
		if err := json.Unmarshal(value, &outs); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}

		for _, out := range outs {
			if bytes.Equal(out.PublicKeyHash, publicKeyHash) {
				found = append(found, out)
			}
		}

		return nil
	})

	if err != nil {
		return nil, storageError("find unspent", err)
	}

	return found, nil
}

// Balance returns the sum of the unspent outputs locked to the address.
func (s *Set) Balance(addr string) (uint64, error) {
	pkh, err := address.Decode(addr)
	if err != nil {
		return 0, err
	}

	outs, err := s.FindUnspentOutputs(pkh)
	if err != nil {
		return 0, err
	}

	var balance uint64
	for _, out := range outs {
		balance += out.Value
	}

	return balance, nil
}

// CountTransactions returns the number of transactions with unspent outputs.
func (s *Set) CountTransactions() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.store.Count()
	if err != nil {
		return 0, storageError("count", err)
	}

	return n, nil
}

// read loads the unspent outputs of a transaction.
func (s *Set) read(id string) ([]database.UnspentOutput, error) {
	data, err := s.store.Get([]byte(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("transaction %s not in index: %w", id, database.ErrNotFound)
		}
		return nil, storageError("get", err)
	}

	var outs []database.UnspentOutput
	if err := json.Unmarshal(data, &outs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}

	return outs, nil
}

// =============================================================================

// remove drops the output with the specified index.
func remove(outs []database.UnspentOutput, index int) ([]database.UnspentOutput, bool) {
	for i, out := range outs {
		if out.Index == index {
			remaining := make([]database.UnspentOutput, 0, len(outs)-1)
			remaining = append(remaining, outs[:i]...)
			return append(remaining, outs[i+1:]...), true
		}
	}

	return outs, false
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: utxo: %s: %w", database.ErrStorage, op, err)
}
