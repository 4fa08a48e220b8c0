package database

import (
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/merkle"
	"github.com/ardanlabs/utxochain/foundation/blockchain/pow"
)

// UnminedBlock is a block that is waiting for a nonce. It has no timestamp
// until the puzzle header is built for mining.
type UnminedBlock struct {
	PreviousBlockHash string
	Transactions      []Transaction
}

// Header builds the puzzle input for the block at the specified time.
func (ub UnminedBlock) Header(timestamp int64) (pow.Header, error) {
	root, err := HashTransactions(ub.Transactions)
	if err != nil {
		return pow.Header{}, err
	}

	h := pow.Header{
		PreviousBlockHash: ub.PreviousBlockHash,
		MerkleRoot:        root,
		Timestamp:         timestamp,
	}

	return h, nil
}

// Mined seals the block with the timestamp the solution was found for.
func (ub UnminedBlock) Mined(timestamp int64, sol pow.Solution) Block {
	return Block{
		Timestamp:         timestamp,
		Transactions:      ub.Transactions,
		PreviousBlockHash: ub.PreviousBlockHash,
		Hash:              sol.Hash,
		Nonce:             sol.Nonce,
	}
}

// =============================================================================

// Block represents a group of transactions sealed by a proof of work. This is
// what is written to the ledger store.
type Block struct {
	Timestamp         int64         `json:"timestamp"` // Unix milliseconds.
	Transactions      []Transaction `json:"transactions"`
	PreviousBlockHash string        `json:"previousBlockHash"` // Empty for the genesis block.
	Hash              string        `json:"hash"`
	Nonce             uint64        `json:"nonce"`
}

// IsGenesis reports whether the block starts the chain.
func (b Block) IsGenesis() bool {
	return b.PreviousBlockHash == ""
}

// Header rebuilds the puzzle input from the block's own fields.
func (b Block) Header() (pow.Header, error) {
	ub := UnminedBlock{
		PreviousBlockHash: b.PreviousBlockHash,
		Transactions:      b.Transactions,
	}

	return ub.Header(b.Timestamp)
}

// Validate recomputes the hash for the stored nonce and checks it matches the
// stored hash and sorts below the puzzle target.
func (b Block) Validate(p pow.ProofOfWork) error {
	h, err := b.Header()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}

	hash := p.Hash(h, b.Nonce)
	if hash != b.Hash {
		return fmt.Errorf("%w: hash mismatch, got %s, exp %s", ErrInvalidBlock, hash, b.Hash)
	}

	if !p.Meets(hash) {
		return fmt.Errorf("%w: hash %s is not below target %s", ErrInvalidBlock, hash, p.Target())
	}

	return nil
}

// HashTransactions returns the merkle root over the transactions.
func HashTransactions(txs []Transaction) (string, error) {
	if len(txs) == 0 {
		return "", ErrNoTransactions
	}

	tree, err := merkle.NewTree(txs)
	if err != nil {
		return "", err
	}

	return tree.RootHex(), nil
}
