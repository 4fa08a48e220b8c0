package state

import (
	"context"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// QueryBalance returns the sum of the unspent outputs locked to the address.
func (s *State) QueryBalance(address string) (uint64, error) {
	return s.utxo.Balance(address)
}

// QueryUnspentCount returns the number of transactions holding unspent outputs.
func (s *State) QueryUnspentCount() (int, error) {
	return s.utxo.CountTransactions()
}

// QueryBlocks returns the chain from the tip back to the genesis block.
func (s *State) QueryBlocks(ctx context.Context) ([]database.Block, error) {
	var out []database.Block

	iter := s.db.Iterator()
	for !iter.Done() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		block, err := iter.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, block)
	}

	return out, nil
}

// QueryTransaction returns the transaction with the specified id.
func (s *State) QueryTransaction(id string) (database.Transaction, error) {
	return s.db.FindTransaction(id)
}

// QueryAddresses returns the addresses of the known wallets.
func (s *State) QueryAddresses() []string {
	return s.wallets.Addresses()
}

// ValidateBlock checks the block's proof of work against the ledger puzzle.
func (s *State) ValidateBlock(block database.Block) error {
	return block.Validate(s.db.ProofOfWork())
}

// Audit walks the chain validating every block. It returns the number of
// blocks checked.
func (s *State) Audit(ctx context.Context) (int, error) {
	return s.db.Audit(ctx)
}
