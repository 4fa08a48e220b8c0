package state_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/miner"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func ifErrFailNow(t *testing.T, err error) {
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
}

func newWallets(t *testing.T, n int) (string, []string) {
	folder := filepath.Join(t.TempDir(), "wallets")

	w, err := wallet.Load(folder)
	ifErrFailNow(t, err)

	addrs := make([]string, n)
	for i := range addrs {
		addrs[i], err = w.Create()
		ifErrFailNow(t, err)
	}

	return folder, addrs
}

func TestSend(t *testing.T) {
	folder, addrs := newWallets(t, 2)
	addrA, addrB := addrs[0], addrs[1]

	dir := t.TempDir()
	var hashRates int
	cfg := state.Config{
		DBPath:       filepath.Join(dir, "blocks.db"),
		UTXOPath:     filepath.Join(dir, "utxo.db"),
		WalletFolder: folder,
		Complexity:   1,
		Miner: &miner.Config{
			Workers:    2,
			Mode:       miner.ModeThread,
			OnHashRate: func(miner.HashRate) { hashRates++ },
		},
	}
	ctx := context.Background()

	t.Log("Given the need to pay between addresses on a persistent chain.")
	{
		t.Logf("\tTest 0:\tWhen creating the chain.")
		{
			s, err := state.Create(ctx, cfg, addrA)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to create the chain: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to create the chain.", success)

			balance, err := s.QueryBalance(addrA)
			ifErrFailNow(t, err)
			if balance != database.DefaultSubsidy {
				t.Fatalf("\t%s\tTest 0:\tShould credit the genesis subsidy: got %d", failed, balance)
			}
			t.Logf("\t%s\tTest 0:\tShould credit the genesis subsidy.", success)

			if hashRates != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould mine the genesis block with the worker pool: %d reports", failed, hashRates)
			}
			t.Logf("\t%s\tTest 0:\tShould mine the genesis block with the worker pool.", success)

			ifErrFailNow(t, s.Shutdown())
		}

		t.Logf("\tTest 1:\tWhen sending from a reopened chain.")
		{
			s, err := state.Open(cfg, addrA)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to reopen the chain: %v", failed, err)
			}
			defer s.Shutdown()
			t.Logf("\t%s\tTest 1:\tShould be able to reopen the chain.", success)

			block, err := s.Send(ctx, addrA, addrB, 4)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to send: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to send.", success)

			if err := s.ValidateBlock(block); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould mine a valid block: %v", failed, err)
			}
			if s.Tip() != block.Hash {
				t.Fatalf("\t%s\tTest 1:\tShould move the tip to the new block.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould mine a valid block at the tip.", success)

			balanceA, err := s.QueryBalance(addrA)
			ifErrFailNow(t, err)
			balanceB, err := s.QueryBalance(addrB)
			ifErrFailNow(t, err)
			if balanceA != 2*database.DefaultSubsidy-4 || balanceB != 4 {
				t.Fatalf("\t%s\tTest 1:\tShould get balances 16 and 4: got %d and %d", failed, balanceA, balanceB)
			}
			t.Logf("\t%s\tTest 1:\tShould get balances 16 and 4.", success)

			_, err = s.Send(ctx, addrB, addrA, 5)
			var fe *database.FundsError
			if !errors.As(err, &fe) || fe.Available != 4 {
				t.Fatalf("\t%s\tTest 1:\tShould not overspend: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould not overspend.", success)

			blocks, err := s.QueryBlocks(ctx)
			ifErrFailNow(t, err)
			if len(blocks) != 2 || blocks[0].Hash != block.Hash || !blocks[1].IsGenesis() {
				t.Fatalf("\t%s\tTest 1:\tShould list the chain from the tip: %d blocks", failed, len(blocks))
			}
			t.Logf("\t%s\tTest 1:\tShould list the chain from the tip.", success)

			n, err := s.Audit(ctx)
			if err != nil || n != 2 {
				t.Fatalf("\t%s\tTest 1:\tShould audit both blocks: %d %v", failed, n, err)
			}
			t.Logf("\t%s\tTest 1:\tShould audit both blocks.", success)

			count, err := s.Reindex()
			ifErrFailNow(t, err)
			if count != 2 {
				t.Fatalf("\t%s\tTest 1:\tShould count the transactions with unspent outputs: got %d", failed, count)
			}
			t.Logf("\t%s\tTest 1:\tShould count the transactions with unspent outputs.", success)
		}
	}
}

func TestOpenRebuildsIndex(t *testing.T) {
	folder, addrs := newWallets(t, 1)
	ledger := memory.New()
	ctx := context.Background()

	cfg := state.Config{
		Ledger:       ledger,
		Index:        memory.New(),
		WalletFolder: folder,
		Complexity:   1,
	}

	t.Log("Given the need to derive the index from the chain.")
	{
		t.Logf("\tTest 0:\tWhen opening a chain with an empty index.")
		{
			s, err := state.Create(ctx, cfg, addrs[0])
			ifErrFailNow(t, err)

			cfg.Index = memory.New()
			s, err = state.Open(cfg, "")
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to open the chain: %v", failed, err)
			}

			balance, err := s.QueryBalance(addrs[0])
			ifErrFailNow(t, err)
			if balance != database.DefaultSubsidy {
				t.Fatalf("\t%s\tTest 0:\tShould rebuild the index: got balance %d", failed, balance)
			}
			t.Logf("\t%s\tTest 0:\tShould rebuild the index.", success)
		}

		t.Logf("\tTest 1:\tWhen the chain already exists.")
		{
			if _, err := state.Create(ctx, cfg, addrs[0]); !errors.Is(err, database.ErrAlreadyExists) {
				t.Fatalf("\t%s\tTest 1:\tShould not create a second chain: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould not create a second chain.", success)
		}

		t.Logf("\tTest 2:\tWhen creating a wallet.")
		{
			s, err := state.Open(cfg, "")
			ifErrFailNow(t, err)

			addr, err := s.CreateWallet()
			ifErrFailNow(t, err)

			var found bool
			for _, a := range s.QueryAddresses() {
				found = found || a == addr
			}
			if !found || len(s.QueryAddresses()) != 2 {
				t.Fatalf("\t%s\tTest 2:\tShould list the new wallet: %v", failed, s.QueryAddresses())
			}
			t.Logf("\t%s\tTest 2:\tShould list the new wallet.", success)
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

func TestIndexUpdateFailure(t *testing.T) {
	folder, addrs := newWallets(t, 2)
	addrA, addrB := addrs[0], addrs[1]
	index := &failingBatch{Memory: memory.New()}
	ctx := context.Background()

	cfg := state.Config{
		Ledger:       memory.New(),
		Index:        index,
		WalletFolder: folder,
		Complexity:   1,
	}

	s, err := state.Create(ctx, cfg, addrA)
	ifErrFailNow(t, err)
	defer s.Shutdown()

	t.Log("Given the need to report an index that fell behind the chain.")
	{
		t.Logf("\tTest 0:\tWhen the index can't follow a mined block.")
		{
			index.fail = true

			block, err := s.Send(ctx, addrA, addrB, 4)
			if !errors.Is(err, database.ErrStorage) {
				t.Fatalf("\t%s\tTest 0:\tShould get a storage error: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get a storage error.", success)

			if s.Tip() != block.Hash {
				t.Fatalf("\t%s\tTest 0:\tShould report the block that was appended.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould report the block that was appended.", success)
		}

		t.Logf("\tTest 1:\tWhen the index is rebuilt.")
		{
			index.fail = false

			_, err := s.Reindex()
			ifErrFailNow(t, err)

			balanceA, err := s.QueryBalance(addrA)
			ifErrFailNow(t, err)
			balanceB, err := s.QueryBalance(addrB)
			ifErrFailNow(t, err)
			if balanceA != 2*database.DefaultSubsidy-4 || balanceB != 4 {
				t.Fatalf("\t%s\tTest 1:\tShould catch up with the chain: got %d and %d", failed, balanceA, balanceB)
			}
			t.Logf("\t%s\tTest 1:\tShould catch up with the chain.", success)
		}
	}
}
