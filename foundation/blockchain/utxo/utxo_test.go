package utxo_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/address"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/bolt"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/utxochain/foundation/blockchain/utxo"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// wallets is an in memory wallet store keyed by address.
type wallets map[string]signature.Key

func (w wallets) Wallet(addr string) (signature.Signer, error) {
	k, exists := w[addr]
	if !exists {
		return nil, database.ErrNotFound
	}
	return k, nil
}

func (w wallets) add(t *testing.T) string {
	k, err := signature.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
	}

	addr := address.FromPublicKey(k.PublicKey())
	w[addr] = k

	return addr
}

// ledger bundles what a test needs to move value around.
type ledger struct {
	db  *database.Database
	set *utxo.Set
}

func newLedger(t *testing.T, w wallets, genesis string, chain storage.Store, index storage.Store) ledger {
	cfg := database.Config{
		Storage:    chain,
		Wallets:    w,
		Complexity: 1,
	}

	if _, err := database.Create(context.Background(), cfg, genesis); err != nil {
		t.Fatalf("\t%s\tShould be able to create the ledger: %v", failed, err)
	}

	db, err := database.Open(cfg, genesis)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the ledger: %v", failed, err)
	}

	set := utxo.New(index, db, nil)
	if err := set.Reindex(); err != nil {
		t.Fatalf("\t%s\tShould be able to reindex: %v", failed, err)
	}

	return ledger{db: db, set: set}
}

// send pays amount from one address to another in a new block whose reward
// goes to the miner address.
func (l ledger) send(from string, to string, amount uint64, miner string) (database.Block, error) {
	tx, err := l.db.NewTransaction(from, to, amount, l.set)
	if err != nil {
		return database.Block{}, err
	}

	coinbase, err := l.db.NewCoinbaseTransaction(miner, "")
	if err != nil {
		return database.Block{}, err
	}

	block, err := l.db.MineBlock(context.Background(), []database.Transaction{coinbase, tx})
	if err != nil {
		return database.Block{}, err
	}

	return block, l.set.Update(block)
}

func balance(t *testing.T, set *utxo.Set, addr string) uint64 {
	b, err := set.Balance(addr)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to get the balance of %s: %v", failed, addr, err)
	}
	return b
}

// =============================================================================

func TestScenarios(t *testing.T) {
	type table struct {
		name  string
		chain func(t *testing.T) storage.Store
		index func(t *testing.T) storage.Store
	}

	openBolt := func(name string) func(t *testing.T) storage.Store {
		return func(t *testing.T) storage.Store {
			b, err := bolt.Open(filepath.Join(t.TempDir(), name))
			if err != nil {
				t.Fatalf("\t%s\tShould be able to open the bolt file: %v", failed, err)
			}
			t.Cleanup(func() { b.Close() })
			return b
		}
	}

	openMemory := func(t *testing.T) storage.Store { return memory.New() }

	tt := []table{
		{name: "memory", chain: openMemory, index: openMemory},
		{name: "bolt", chain: openBolt("blockchain.db"), index: openBolt("utxo.db")},
	}

	t.Log("Given the need to move value between addresses.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				w := make(wallets)
				addrA := w.add(t)
				addrB := w.add(t)

				l := newLedger(t, w, addrA, tst.chain(t), tst.index(t))

				t.Logf("\tTest %d:\tWhen the ledger has just been created.", testID)
				{
					if got := balance(t, l.set, addrA); got != database.DefaultSubsidy {
						t.Fatalf("\t%s\tTest %d:\tShould credit the genesis reward: got %d", failed, testID, got)
					}
					t.Logf("\t%s\tTest %d:\tShould credit the genesis reward.", success, testID)
				}

				t.Logf("\tTest %d:\tWhen sending 4 and mining the reward to the sender.", testID)
				{
					if _, err := l.send(addrA, addrB, 4, addrA); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to send: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to send.", success, testID)

					if got := balance(t, l.set, addrA); got != database.DefaultSubsidy*2-4 {
						t.Fatalf("\t%s\tTest %d:\tShould leave the sender with two rewards minus 4: got %d", failed, testID, got)
					}
					if got := balance(t, l.set, addrB); got != 4 {
						t.Fatalf("\t%s\tTest %d:\tShould credit the receiver with 4: got %d", failed, testID, got)
					}
					t.Logf("\t%s\tTest %d:\tShould have the expected balances.", success, testID)

					pkh, _ := address.Decode(addrA)
					_, selected, err := l.set.FindSpendableOutputs(pkh, 1_000)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to find spendable outputs: %v", failed, testID, err)
					}

					var genesisBlock database.Block
					iter := l.db.Iterator()
					for !iter.Done() {
						genesisBlock, err = iter.Next()
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to walk the chain: %v", failed, testID, err)
						}
					}

					if _, exists := selected[genesisBlock.Transactions[0].ID]; exists {
						t.Fatalf("\t%s\tTest %d:\tShould never offer the spent genesis output again.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould never offer the spent genesis output again.", success, testID)
				}

				t.Logf("\tTest %d:\tWhen sending more than the balance.", testID)
				{
					before, err := l.set.CountTransactions()
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to count: %v", failed, testID, err)
					}

					_, err = l.send(addrB, addrA, 5, addrB)

					var funds *database.FundsError
					if !errors.Is(err, database.ErrInsufficientFunds) || !errors.As(err, &funds) {
						t.Fatalf("\t%s\tTest %d:\tShould get insufficient funds: %v", failed, testID, err)
					}
					if funds.Requested != 5 || funds.Available != 4 || funds.Address != addrB {
						t.Fatalf("\t%s\tTest %d:\tShould report requested and available: %+v", failed, testID, funds)
					}
					t.Logf("\t%s\tTest %d:\tShould get insufficient funds.", success, testID)

					after, _ := l.set.CountTransactions()
					if before != after || balance(t, l.set, addrB) != 4 || balance(t, l.set, addrA) != 16 {
						t.Fatalf("\t%s\tTest %d:\tShould leave the index unchanged.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould leave the index unchanged.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func TestPartialSpend(t *testing.T) {
	w := make(wallets)
	addrA := w.add(t)
	addrB := w.add(t)
	addrC := w.add(t)

	l := newLedger(t, w, addrA, memory.New(), memory.New())

	t.Log("Given the need to spend outputs of a transaction one at a time.")
	{
		t.Logf("\tTest 0:\tWhen the payment output is spent before the change.")
		{
			// A pays B 4 and keeps 6 in change, the reward goes to C.
			if _, err := l.send(addrA, addrB, 4, addrC); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to pay B: %v", failed, err)
			}

			// B spends output 0, leaving only the change at output 1.
			if _, err := l.send(addrB, addrC, 4, addrC); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to pay C from B: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to spend the payment.", success)

			// A now spends the change, which must still be found at output 1.
			if _, err := l.send(addrA, addrC, 6, addrC); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to spend the change: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to spend the change.", success)

			if got := balance(t, l.set, addrA); got != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould leave A empty: got %d", failed, got)
			}
			if got := balance(t, l.set, addrC); got != 4+6+3*database.DefaultSubsidy {
				t.Fatalf("\t%s\tTest 0:\tShould credit C with both payments and three rewards: got %d", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould have the expected balances.", success)
		}

		t.Logf("\tTest 1:\tWhen rebuilding the index from the chain.")
		{
			count, _ := l.set.CountTransactions()
			balC := balance(t, l.set, addrC)

			if err := l.set.Reindex(); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to reindex: %v", failed, err)
			}

			if got, _ := l.set.CountTransactions(); got != count {
				t.Fatalf("\t%s\tTest 1:\tShould index the same transactions: got %d, exp %d", failed, got, count)
			}
			if got := balance(t, l.set, addrC); got != balC {
				t.Fatalf("\t%s\tTest 1:\tShould compute the same balance: got %d, exp %d", failed, got, balC)
			}
			t.Logf("\t%s\tTest 1:\tShould match the incrementally maintained index.", success)
		}
	}
}

func TestUpdateUnknownOutput(t *testing.T) {
	w := make(wallets)
	addrA := w.add(t)
	addrB := w.add(t)

	l := newLedger(t, w, addrA, memory.New(), memory.New())

	t.Log("Given the need to keep the index consistent.")
	{
		t.Logf("\tTest 0:\tWhen a block spends an output the index does not hold.")
		{
			block, err := l.send(addrA, addrB, 10, addrB)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to send: %v", failed, err)
			}

			count, _ := l.set.CountTransactions()

			if err := l.set.Update(block); !errors.Is(err, database.ErrNotFound) {
				t.Fatalf("\t%s\tTest 0:\tShould reject applying the block twice: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject applying the block twice.", success)

			if got, _ := l.set.CountTransactions(); got != count || balance(t, l.set, addrB) != 20 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the index unchanged.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the index unchanged.", success)
		}
	}
}

// failingBatch is a memory store whose batches can be made to fail.
type failingBatch struct {
	*memory.Memory
	fail bool
}

func (f *failingBatch) Batch(ops []storage.Op) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Memory.Batch(ops)
}

func TestReindexFailure(t *testing.T) {
	w := make(wallets)
	addrA := w.add(t)
	index := &failingBatch{Memory: memory.New()}
	l := newLedger(t, w, addrA, memory.New(), index)

	if err := index.Put([]byte("stale"), []byte("[]")); err != nil {
		t.Fatalf("\t%s\tShould be able to write a stale key: %v", failed, err)
	}

	t.Log("Given the need to rebuild the index without losing it on failure.")
	{
		t.Logf("\tTest 0:\tWhen the rebuild can't be written.")
		{
			index.fail = true

			if err := l.set.Reindex(); !errors.Is(err, database.ErrStorage) {
				t.Fatalf("\t%s\tTest 0:\tShould get a storage error: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get a storage error.", success)

			if got := balance(t, l.set, addrA); got != database.DefaultSubsidy {
				t.Fatalf("\t%s\tTest 0:\tShould keep the previous index: balance %d", failed, got)
			}
			if n, _ := index.Count(); n != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the previous index: %d keys", failed, n)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the previous index.", success)
		}

		t.Logf("\tTest 1:\tWhen the rebuild is written.")
		{
			index.fail = false

			if err := l.set.Reindex(); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to reindex: %v", failed, err)
			}

			if n, _ := index.Count(); n != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould drop keys the chain no longer holds: %d keys", failed, n)
			}
			t.Logf("\t%s\tTest 1:\tShould drop keys the chain no longer holds.", success)

			if got := balance(t, l.set, addrA); got != database.DefaultSubsidy {
				t.Fatalf("\t%s\tTest 1:\tShould rebuild the balance: %d", failed, got)
			}
			t.Logf("\t%s\tTest 1:\tShould rebuild the balance.", success)
		}
	}
}
