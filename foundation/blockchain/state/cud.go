package state

import (
	"context"
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// Send pays amount from one address to another. The payment is mined into a
// new block together with a coinbase rewarding the sender, and the index is
// updated with the block.
func (s *State) Send(ctx context.Context, from string, to string, amount uint64) (database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: Send: started: from[%s]: to[%s]: amount[%d]", from, to, amount)
	defer s.evHandler("state: Send: completed")

	coinbase, err := s.db.NewCoinbaseTransaction(from, "")
	if err != nil {
		return database.Block{}, err
	}

	tx, err := s.db.NewTransaction(from, to, amount, s.utxo)
	if err != nil {
		return database.Block{}, err
	}

	return s.mineBlock(ctx, []database.Transaction{coinbase, tx})
}

// MineBlock appends a block holding the transactions and updates the index.
func (s *State) MineBlock(ctx context.Context, txs []database.Transaction) (database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mineBlock(ctx, txs)
}

func (s *State) mineBlock(ctx context.Context, txs []database.Transaction) (database.Block, error) {
	block, err := s.db.MineBlock(ctx, txs)
	if err != nil {
		return database.Block{}, err
	}

	// The block is already on the chain. A failed update leaves the index
	// untouched and behind the chain until it is reindexed.
	if err := s.utxo.Update(block); err != nil {
		s.evHandler("state: MineBlock: blk[%s]: update index: ERROR: %s", block.Hash, err)
		return block, fmt.Errorf("blk %s appended, index needs a reindex: %w", block.Hash, err)
	}

	return block, nil
}

// Reindex rebuilds the unspent output index from the chain and returns the
// number of transactions holding unspent outputs.
func (s *State) Reindex() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.utxo.Reindex(); err != nil {
		return 0, err
	}

	return s.utxo.CountTransactions()
}

// CreateWallet generates a new key pair and returns its address.
func (s *State) CreateWallet() (string, error) {
	addr, err := s.wallets.Create()
	if err != nil {
		return "", err
	}

	s.evHandler("state: CreateWallet: address[%s]", addr)

	return addr, nil
}
