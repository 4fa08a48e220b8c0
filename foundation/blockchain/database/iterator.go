package database

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/storage"
)

// Iterator walks the chain backwards from the tip it was created with until
// the genesis block has been returned. It can't be restarted.
type Iterator struct {
	store   storage.Store
	current string
}

// Next reads the block the iterator points at and moves to its parent.
func (it *Iterator) Next() (Block, error) {
	if it.Done() {
		return Block{}, ErrChainEnd
	}

	block, err := readBlock(it.store, it.current)
	if err != nil {
		it.current = ""
		return Block{}, err
	}

	it.current = block.PreviousBlockHash

	return block, nil
}

// Done reports whether every block has been returned.
func (it *Iterator) Done() bool {
	return it.current == ""
}

// readBlock loads and decodes the block stored under the hash.
func readBlock(store storage.Store, hash string) (Block, error) {
	data, err := store.Get([]byte(hash))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Block{}, fmt.Errorf("block %s: %w", hash, ErrNotFound)
		}
		return Block{}, storageError("get block", err)
	}

	var block Block
	if err := json.Unmarshal(data, &block); err != nil {
		return Block{}, fmt.Errorf("decode block %s: %w", hash, err)
	}

	return block, nil
}
