package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/address"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/miner"
	"github.com/ardanlabs/utxochain/foundation/blockchain/pow"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

// mineCmd represents the mine command
var mineCmd = &cobra.Command{
	Use:   "mine <complexity> <mode> <pool>",
	Short: "Measure how long a worker pool takes to mine a block. Nothing is written to the chain.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cplx, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("complexity %q: %w", args[0], err)
		}

		pool, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("pool %q: %w", args[2], err)
		}

		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		// Chain the block to the current tip when a chain exists. Opening the
		// state creates the files, so a missing database is left alone.
		var prev string
		switch _, err := os.Stat(dbPath); {
		case err == nil:
			st, closeFn, err := openState("")
			switch {
			case err == nil:
				prev = st.Tip()
				closeFn()
			case !errors.Is(err, database.ErrNotFound):
				return err
			}
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}

		key, err := signature.GenerateKey()
		if err != nil {
			return err
		}

		coinbase, err := database.NewCoinbase(address.FromPublicKey(key.PublicKey()), "", subsidy)
		if err != nil {
			return err
		}

		ub := database.UnminedBlock{
			PreviousBlockHash: prev,
			Transactions:      []database.Transaction{coinbase},
		}

		timestamp := time.Now().UnixMilli()
		header, err := ub.Header(timestamp)
		if err != nil {
			return err
		}

		mcfg, err := minerConfig(args[1], pool, log)
		if err != nil {
			return err
		}
		mcfg.Complexity = cplx

		out := cmd.OutOrStdout()
		mcfg.OnHashRate = func(hr miner.HashRate) {
			fmt.Fprintf(out, "Hash rate: %.0f hashes/sec over %d workers (%d hashes)\n", hr.HashesPerSecond, hr.Workers, hr.Hashes)
		}

		m, err := miner.New(mcfg)
		if err != nil {
			return err
		}

		start := time.Now()
		sol, err := m.Mine(cmd.Context(), header)
		if err != nil {
			return err
		}
		mineTime := time.Since(start)

		if mineTime <= time.Second {
			fmt.Fprintln(out, "Mine time:", mineTime.Milliseconds(), "ms")
		} else {
			fmt.Fprintln(out, "Mine time:", mineTime.Round(time.Second))
		}

		block := ub.Mined(timestamp, sol)
		fmt.Fprintln(out, "Hash:", block.Hash)
		fmt.Fprintln(out, "Nonce:", block.Nonce)
		fmt.Fprintln(out, "Valid:", block.Validate(pow.New(cplx)) == nil)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(mineCmd)
}
