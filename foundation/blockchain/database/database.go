// Package database maintains the ledger: an append only chain of blocks kept
// in a key/value store. The key "l" holds the hash of the tip and every block
// is stored as JSON under its own hash.
package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/address"
	"github.com/ardanlabs/utxochain/foundation/blockchain/hashing"
	"github.com/ardanlabs/utxochain/foundation/blockchain/pow"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

// DefaultSubsidy is the block reward used when none is configured.
const DefaultSubsidy uint64 = 10

// tipKey holds the hash of the latest block.
var tipKey = []byte("l")

// EventHandler defines a function that is called when events occur in the
// processing of the ledger.
type EventHandler func(v string, args ...any)

// Solver finds a nonce for a block header. The single goroutine search in
// the pow package and the parallel miner both satisfy this interface.
type Solver interface {
	Solve(ctx context.Context, h pow.Header) (pow.Solution, error)
}

// WalletStore provides the signing capability for an address.
type WalletStore interface {
	Wallet(address string) (signature.Signer, error)
}

// SpendableFinder selects unspent outputs locked to a public key hash until
// their value covers the amount. The selection maps transaction ids to
// output indexes.
type SpendableFinder interface {
	FindSpendableOutputs(publicKeyHash []byte, amount uint64) (uint64, map[string][]int, error)
}

// UnspentOutput is an output that no input on the chain references. Index is
// the position of the output in its transaction.
type UnspentOutput struct {
	Index         int           `json:"index"`
	Value         uint64        `json:"value"`
	PublicKeyHash hexutil.Bytes `json:"publicKeyHash"`
}

// =============================================================================

// Config represents the configuration required to start the ledger.
type Config struct {
	Storage    storage.Store
	Wallets    WalletStore
	Complexity int
	Subsidy    uint64
	Solver     Solver
	EvHandler  EventHandler
}

// Database manages the ledger store and the tip of the chain.
type Database struct {
	mu        sync.RWMutex
	store     storage.Store
	wallets   WalletStore
	pow       pow.ProofOfWork
	subsidy   uint64
	solver    Solver
	evHandler EventHandler
	address   string
	tip       string
}

// Create starts a new chain with a genesis block rewarding the address. It
// fails if the store already holds a chain. On failure the store is left open
// for the caller to close.
func Create(ctx context.Context, cfg Config, genesisAddress string) (*Database, error) {
	db, err := newDatabase(cfg, genesisAddress)
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	switch _, err := db.store.Get(tipKey); {
	case err == nil:
		return nil, ErrAlreadyExists
	case !errors.Is(err, storage.ErrNotFound):
		return nil, storageError("get tip", err)
	}

	db.evHandler("database: Create: genesis: address[%s]", genesisAddress)

	coinbase, err := db.NewCoinbaseTransaction(genesisAddress, "")
	if err != nil {
		return nil, err
	}

	genesis := UnminedBlock{
		PreviousBlockHash: "",
		Transactions:      []Transaction{coinbase},
	}

	block, err := db.mine(ctx, genesis)
	if err != nil {
		return nil, err
	}

	db.evHandler("database: Create: genesis: blk[%s]", block.Hash)

	return db, nil
}

// Open binds to an existing chain. It fails if the store holds no chain.
func Open(cfg Config, addr string) (*Database, error) {
	db, err := newDatabase(cfg, addr)
	if err != nil {
		return nil, err
	}

	tip, err := db.store.Get(tipKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("no existing blockchain found: %w", ErrNotFound)
		}
		return nil, storageError("get tip", err)
	}

	db.tip = string(tip)
	db.evHandler("database: Open: address[%s]: tip[%s]", addr, db.tip)

	return db, nil
}

func newDatabase(cfg Config, addr string) (*Database, error) {
	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}

	if cfg.Complexity < 0 {
		return nil, fmt.Errorf("complexity %d must not be negative", cfg.Complexity)
	}

	if addr != "" && !address.IsValid(addr) {
		return nil, fmt.Errorf("%s: %w", addr, address.ErrInvalidAddress)
	}

	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	subsidy := cfg.Subsidy
	if subsidy == 0 {
		subsidy = DefaultSubsidy
	}

	p := pow.New(cfg.Complexity)

	var solver Solver = p
	if cfg.Solver != nil {
		solver = cfg.Solver
	}

	db := Database{
		store:     cfg.Storage,
		wallets:   cfg.Wallets,
		pow:       p,
		subsidy:   subsidy,
		solver:    solver,
		evHandler: ev,
		address:   addr,
	}

	return &db, nil
}

// Close releases the ledger store.
func (db *Database) Close() error {
	return db.store.Close()
}

// Address returns the address the ledger was opened for.
func (db *Database) Address() string {
	return db.address
}

// Tip returns the hash of the latest block.
func (db *Database) Tip() string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.tip
}

// ProofOfWork returns the puzzle blocks are validated against.
func (db *Database) ProofOfWork() pow.ProofOfWork {
	return db.pow
}

// Subsidy returns the block reward.
func (db *Database) Subsidy() uint64 {
	return db.subsidy
}

// =============================================================================

// NewCoinbaseTransaction constructs the transaction minting the block reward
// for the address. When no memo is provided a unique one is generated.
func (db *Database) NewCoinbaseTransaction(to string, data string) (Transaction, error) {
	return NewCoinbase(to, data, db.subsidy)
}

// NewCoinbase constructs a transaction minting the subsidy for the address
// outside of any ledger.
func NewCoinbase(to string, data string, subsidy uint64) (Transaction, error) {
	if data == "" {
		data = fmt.Sprintf("reward to %s: %s", to, uuid.NewString())
	}

	out, err := Lock(subsidy, to)
	if err != nil {
		return Transaction{}, err
	}

	in := TxInput{
		TransactionID: "",
		OutputIndex:   CoinbaseIndex,
		Signature:     []byte(data),
	}

	return newTransaction([]TxInput{in}, []TxOutput{out})
}

// NewTransaction constructs and signs a transaction paying amount from one
// address to another. Change is returned to the sender.
func (db *Database) NewTransaction(from string, to string, amount uint64, finder SpendableFinder) (Transaction, error) {
	if amount == 0 {
		return Transaction{}, ErrInvalidAmount
	}

	if db.wallets == nil {
		return Transaction{}, ErrWalletsNotAvailable
	}

	fromPKH, err := address.Decode(from)
	if err != nil {
		return Transaction{}, err
	}

	payment, err := Lock(amount, to)
	if err != nil {
		return Transaction{}, err
	}

	signer, err := db.wallets.Wallet(from)
	if err != nil {
		return Transaction{}, fmt.Errorf("wallet %s: %w", from, err)
	}

	pubKey := signer.PublicKey()
	if !bytes.Equal(hashing.PublicKeyHash(pubKey), fromPKH) {
		return Transaction{}, fmt.Errorf("wallet key does not belong to %s", from)
	}

	accumulated, selected, err := finder.FindSpendableOutputs(fromPKH, amount)
	if err != nil {
		return Transaction{}, err
	}

	if accumulated < amount {
		return Transaction{}, &FundsError{Address: from, Requested: amount, Available: accumulated}
	}

	ids := make([]string, 0, len(selected))
	for id := range selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var inputs []TxInput
	for _, id := range ids {
		for _, idx := range selected[id] {
			inputs = append(inputs, TxInput{
				TransactionID: id,
				OutputIndex:   idx,
				PublicKey:     pubKey,
			})
		}
	}

	outputs := []TxOutput{payment}
	if accumulated > amount {
		outputs = append(outputs, TxOutput{Value: accumulated - amount, PublicKeyHash: fromPKH})
	}

	tx, err := newTransaction(inputs, outputs)
	if err != nil {
		return Transaction{}, err
	}

	prevTxs, _, err := db.previousTransactions([]Transaction{tx})
	if err != nil {
		return Transaction{}, err
	}

	if err := tx.Sign(signer, prevTxs); err != nil {
		return Transaction{}, err
	}

	db.evHandler("database: NewTransaction: from[%s]: to[%s]: amount[%d]: tx[%s]", from, to, amount, tx)

	return tx, nil
}

// MineBlock verifies the transactions, solves the puzzle for a block chained
// to the current tip, and writes the block and the new tip in one batch.
func (db *Database) MineBlock(ctx context.Context, txs []Transaction) (Block, error) {
	if len(txs) == 0 {
		return Block{}, ErrNoTransactions
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.evHandler("database: MineBlock: verify: txs[%d]", len(txs))

	if err := db.verifyTransactions(txs); err != nil {
		return Block{}, err
	}

	tip, err := db.store.Get(tipKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Block{}, fmt.Errorf("no existing blockchain found: %w", ErrNotFound)
		}
		return Block{}, storageError("get tip", err)
	}

	ub := UnminedBlock{
		PreviousBlockHash: string(tip),
		Transactions:      txs,
	}

	return db.mine(ctx, ub)
}

// mine solves the puzzle for the block and appends it. The caller must hold
// the write lock.
func (db *Database) mine(ctx context.Context, ub UnminedBlock) (Block, error) {
	timestamp := time.Now().UnixMilli()

	h, err := ub.Header(timestamp)
	if err != nil {
		return Block{}, err
	}

	db.evHandler("database: mine: MINING: started: prevBlk[%s]: merkle[%s]", h.PreviousBlockHash, h.MerkleRoot)

	sol, err := db.solver.Solve(ctx, h)
	if err != nil {
		db.evHandler("database: mine: MINING: ERROR: %s", err)
		return Block{}, err
	}

	block := ub.Mined(timestamp, sol)
	if err := block.Validate(db.pow); err != nil {
		return Block{}, err
	}

	data, err := json.Marshal(block)
	if err != nil {
		return Block{}, err
	}

	ops := []storage.Op{
		storage.Put([]byte(block.Hash), data),
		storage.Put(tipKey, []byte(block.Hash)),
	}

	if err := db.store.Batch(ops); err != nil {
		return Block{}, storageError("append block", err)
	}

	db.tip = block.Hash

	db.evHandler("database: mine: MINING: SOLVED: prevBlk[%s]: newBlk[%s]: nonce[%d]", block.PreviousBlockHash, block.Hash, block.Nonce)

	return block, nil
}

// verifyTransactions checks every signature and that every output spent by
// the batch is still unspent, both on the chain and within the batch.
func (db *Database) verifyTransactions(txs []Transaction) error {
	prevTxs, spentOnChain, err := db.previousTransactions(txs)
	if err != nil {
		var missing *MissingTxError
		if errors.As(err, &missing) {
			for _, tx := range txs {
				for _, in := range tx.Inputs {
					if !tx.IsCoinbase() && in.TransactionID == missing.ID {
						return &TxError{ID: tx.ID, Err: err}
					}
				}
			}
		}
		return err
	}

	spent := make(map[string]string)
	for _, tx := range txs {
		ok, err := tx.Verify(prevTxs)
		if err != nil {
			return &TxError{ID: tx.ID, Err: err}
		}

		if !ok {
			return &TxError{ID: tx.ID, Err: signature.ErrInvalidSignature}
		}

		if tx.IsCoinbase() {
			continue
		}

		for _, in := range tx.Inputs {
			key := outpoint(in.TransactionID, in.OutputIndex)
			if other, exists := spentOnChain[key]; exists {
				return &TxError{ID: tx.ID, Err: fmt.Errorf("output %s already spent on the chain by %s", key, other)}
			}
			if other, exists := spent[key]; exists {
				return &TxError{ID: tx.ID, Err: fmt.Errorf("output %s already spent by %s", key, other)}
			}
			spent[key] = tx.ID
		}

		db.evHandler("database: MineBlock: verified: tx[%s]", tx)
	}

	return nil
}

// previousTransactions collects every transaction referenced by the inputs
// of the specified transactions in a single backward scan. It also returns
// which of their outputs are already spent on the chain, keyed by outpoint
// with the spending transaction id. Every spend of an output sits in the
// block holding the output or a later one, so the scan can stop once every
// transaction is found.
func (db *Database) previousTransactions(txs []Transaction) (map[string]Transaction, map[string]string, error) {
	want := make(map[string]struct{})
	for _, tx := range txs {
		if tx.IsCoinbase() {
			continue
		}
		for _, in := range tx.Inputs {
			want[in.TransactionID] = struct{}{}
		}
	}

	found := make(map[string]Transaction, len(want))
	spent := make(map[string]string)
	if len(want) == 0 {
		return found, spent, nil
	}

	iter := db.iterator()
	for !iter.Done() && len(found) < len(want) {
		block, err := iter.Next()
		if err != nil {
			return nil, nil, err
		}

		for _, tx := range block.Transactions {
			if _, exists := want[tx.ID]; exists {
				found[tx.ID] = tx
			}

			if tx.IsCoinbase() {
				continue
			}

			for _, in := range tx.Inputs {
				if _, exists := want[in.TransactionID]; exists {
					spent[outpoint(in.TransactionID, in.OutputIndex)] = tx.ID
				}
			}
		}
	}

	for id := range want {
		if _, exists := found[id]; !exists {
			return nil, nil, &MissingTxError{ID: id}
		}
	}

	return found, spent, nil
}

// outpoint formats the reference to a transaction output.
func outpoint(id string, index int) string {
	return fmt.Sprintf("%s:%d", id, index)
}

// =============================================================================

// Iterator returns a new iterator positioned at the current tip.
func (db *Database) Iterator() *Iterator {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.iterator()
}

func (db *Database) iterator() *Iterator {
	return &Iterator{
		store:   db.store,
		current: db.tip,
	}
}

// FindTransaction scans the chain backwards for the transaction.
func (db *Database) FindTransaction(id string) (Transaction, error) {
	iter := db.Iterator()
	for !iter.Done() {
		block, err := iter.Next()
		if err != nil {
			return Transaction{}, err
		}

		for _, tx := range block.Transactions {
			if tx.ID == id {
				return tx, nil
			}
		}
	}

	return Transaction{}, &MissingTxError{ID: id}
}

// FindUnspentTransactionsOutputs scans the whole chain and returns, per
// transaction, the outputs that no input references.
func (db *Database) FindUnspentTransactionsOutputs() (map[string][]UnspentOutput, error) {
	unspent := make(map[string][]UnspentOutput)
	spent := make(map[string]map[int]bool)

	iter := db.Iterator()
	for !iter.Done() {
		block, err := iter.Next()
		if err != nil {
			return nil, err
		}

		// Later transactions in a block may spend earlier ones, so walk the
		// block backwards as well.
		for i := len(block.Transactions) - 1; i >= 0; i-- {
			tx := block.Transactions[i]

			for idx, out := range tx.Outputs {
				if spent[tx.ID][idx] {
					continue
				}

				unspent[tx.ID] = append(unspent[tx.ID], UnspentOutput{
					Index:         idx,
					Value:         out.Value,
					PublicKeyHash: out.PublicKeyHash,
				})
			}

			if tx.IsCoinbase() {
				continue
			}

			for _, in := range tx.Inputs {
				if spent[in.TransactionID] == nil {
					spent[in.TransactionID] = make(map[int]bool)
				}
				spent[in.TransactionID][in.OutputIndex] = true
			}
		}
	}

	return unspent, nil
}

// Audit walks the chain and checks that every block is stored under its own
// hash, that its proof of work holds, that its transaction ids are intact,
// and that no output is spent twice. It returns the number of blocks checked.
func (db *Database) Audit(ctx context.Context) (int, error) {
	iter := db.Iterator()
	expected := iter.current
	spent := make(map[string]string)

	var n int
	for !iter.Done() {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		block, err := iter.Next()
		if err != nil {
			return n, err
		}

		db.evHandler("database: Audit: blk[%s]: check: stored under its hash", block.Hash)

		if block.Hash != expected {
			return n, fmt.Errorf("%w: block stored under %s reports hash %s", ErrInvalidBlock, expected, block.Hash)
		}

		db.evHandler("database: Audit: blk[%s]: check: proof of work", block.Hash)

		if err := block.Validate(db.pow); err != nil {
			return n, err
		}

		db.evHandler("database: Audit: blk[%s]: check: transaction ids", block.Hash)

		for _, tx := range block.Transactions {
			id, err := tx.computeID()
			if err != nil {
				return n, err
			}
			if id != tx.ID {
				return n, fmt.Errorf("%w: block %s: transaction id %s, computed %s", ErrInvalidBlock, block.Hash, tx.ID, id)
			}
		}

		db.evHandler("database: Audit: blk[%s]: check: double spends", block.Hash)

		for _, tx := range block.Transactions {
			if tx.IsCoinbase() {
				continue
			}
			for _, in := range tx.Inputs {
				key := outpoint(in.TransactionID, in.OutputIndex)
				if other, exists := spent[key]; exists {
					return n, fmt.Errorf("%w: block %s: output %s spent by %s and %s", ErrInvalidBlock, block.Hash, key, tx.ID, other)
				}
				spent[key] = tx.ID
			}
		}

		expected = block.PreviousBlockHash
		n++
	}

	return n, nil
}
