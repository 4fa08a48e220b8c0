// Package state is the core API for the ledger. It binds the ledger, the
// unspent output index, the wallets, and the miner together and serializes
// every write to the chain.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/miner"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/bolt"
	"github.com/ardanlabs/utxochain/foundation/blockchain/utxo"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
)

// EventHandler defines a function that is called when events
// occur in the processing of the ledger.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to start the ledger. When a
// store is not provided it is opened from its path.
type Config struct {
	DBPath       string
	UTXOPath     string
	Ledger       storage.Store
	Index        storage.Store
	WalletFolder string
	Complexity   int
	Subsidy      uint64
	Miner        *miner.Config
	EvHandler    EventHandler
}

// State manages the ledger and the unspent output index.
type State struct {
	mu        sync.Mutex
	evHandler EventHandler
	ledger    storage.Store
	index     storage.Store
	wallets   *wallet.Wallets
	miner     *miner.Miner
	db        *database.Database
	utxo      *utxo.Set
}

// Create starts a new chain rewarding the address with the genesis subsidy
// and builds the unspent output index for it.
func Create(ctx context.Context, cfg Config, address string) (*State, error) {
	s, dbCfg, err := newState(cfg)
	if err != nil {
		return nil, err
	}

	db, err := database.Create(ctx, dbCfg, address)
	if err != nil {
		s.closeStores()
		return nil, err
	}
	s.bind(db)

	if err := s.utxo.Reindex(); err != nil {
		s.Shutdown()
		return nil, err
	}

	return s, nil
}

// Open binds to an existing chain for the address. The address may be empty
// for read only work. An empty index is rebuilt from the chain.
func Open(cfg Config, address string) (*State, error) {
	s, dbCfg, err := newState(cfg)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(dbCfg, address)
	if err != nil {
		s.closeStores()
		return nil, err
	}
	s.bind(db)

	n, err := s.utxo.CountTransactions()
	if err != nil {
		s.Shutdown()
		return nil, err
	}

	if n == 0 {
		s.evHandler("state: Open: empty index: rebuilding")
		if err := s.utxo.Reindex(); err != nil {
			s.Shutdown()
			return nil, err
		}
	}

	return s, nil
}

func newState(cfg Config) (*State, database.Config, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	// A missing wallet folder is an empty set of wallets.
	wallets, err := wallet.Load(cfg.WalletFolder)
	if err != nil {
		return nil, database.Config{}, fmt.Errorf("loading wallets: %w", err)
	}

	s := State{
		evHandler: ev,
		wallets:   wallets,
		ledger:    cfg.Ledger,
		index:     cfg.Index,
	}

	var solver database.Solver
	if cfg.Miner != nil {
		mcfg := *cfg.Miner
		mcfg.Complexity = cfg.Complexity
		if mcfg.EvHandler == nil {
			mcfg.EvHandler = miner.EventHandler(ev)
		}

		m, err := miner.New(mcfg)
		if err != nil {
			return nil, database.Config{}, err
		}
		s.miner = m
		solver = m
	}

	if s.ledger == nil {
		b, err := bolt.Open(cfg.DBPath)
		if err != nil {
			return nil, database.Config{}, fmt.Errorf("opening ledger: %w", err)
		}
		s.ledger = b
	}

	if s.index == nil {
		b, err := bolt.Open(cfg.UTXOPath)
		if err != nil {
			s.ledger.Close()
			return nil, database.Config{}, fmt.Errorf("opening index: %w", err)
		}
		s.index = b
	}

	dbCfg := database.Config{
		Storage:    s.ledger,
		Wallets:    wallets,
		Complexity: cfg.Complexity,
		Subsidy:    cfg.Subsidy,
		Solver:     solver,
		EvHandler:  database.EventHandler(ev),
	}

	return &s, dbCfg, nil
}

func (s *State) bind(db *database.Database) {
	s.db = db
	s.utxo = utxo.New(s.index, db, database.EventHandler(s.evHandler))
}

func (s *State) closeStores() {
	s.ledger.Close()
	s.index.Close()
}

// Shutdown cleanly closes both stores.
func (s *State) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return errors.Join(s.db.Close(), s.utxo.Close())
}

// Address returns the address the chain was opened for.
func (s *State) Address() string {
	return s.db.Address()
}

// Tip returns the hash of the latest block.
func (s *State) Tip() string {
	return s.db.Tip()
}

// Miner returns the worker pool used to solve blocks, or nil when blocks are
// solved on the calling goroutine.
func (s *State) Miner() *miner.Miner {
	return s.miner
}
