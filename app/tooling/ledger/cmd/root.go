// Package cmd contains the ledger commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/utxochain/foundation/blockchain/miner"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dbPath       string
	utxoPath     string
	walletFolder string
	complexity   int
	subsidy      uint64
	minerMode    string
	minerWorkers int
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "ledger",
	Short:         "A proof of work ledger of unspent transaction outputs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "zblock/blocks.db", "Path to the ledger database.")
	rootCmd.PersistentFlags().StringVar(&utxoPath, "utxo", "zblock/utxo.db", "Path to the unspent output index.")
	rootCmd.PersistentFlags().StringVarP(&walletFolder, "wallet-path", "p", "zblock/wallets/", "Path to the directory with private keys.")
	rootCmd.PersistentFlags().IntVarP(&complexity, "complexity", "c", 4, "Number of leading zeros a block hash needs.")
	rootCmd.PersistentFlags().Uint64Var(&subsidy, "subsidy", 10, "Reward minted by every block.")
	rootCmd.PersistentFlags().StringVar(&minerMode, "miner", "", "Worker pool used to mine blocks: thread or process. Empty mines on one goroutine.")
	rootCmd.PersistentFlags().IntVar(&minerWorkers, "workers", 0, "Number of mining workers. Zero uses one per CPU.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log ledger events to stderr.")
}

// newLogger returns a logger writing ledger events to stderr when verbose
// output is requested.
func newLogger() (*zap.SugaredLogger, error) {
	if !verbose {
		return zap.NewNop().Sugar(), nil
	}
	return logger.New("LEDGER", "stderr")
}

// stateConfig builds the ledger configuration from the flags.
func stateConfig(log *zap.SugaredLogger) (state.Config, error) {
	cfg := state.Config{
		DBPath:       dbPath,
		UTXOPath:     utxoPath,
		WalletFolder: walletFolder,
		Complexity:   complexity,
		Subsidy:      subsidy,
		EvHandler: func(v string, args ...any) {
			log.Infof(v, args...)
		},
	}

	if minerMode != "" {
		mcfg, err := minerConfig(minerMode, minerWorkers, log)
		if err != nil {
			return state.Config{}, err
		}
		cfg.Miner = &mcfg
	}

	return cfg, nil
}

// minerConfig builds a worker pool configuration. Process mode runs this
// program's worker command in every child.
func minerConfig(mode string, workers int, log *zap.SugaredLogger) (miner.Config, error) {
	if mode == "worker" {
		mode = miner.ModeThread
	}

	cfg := miner.Config{
		Workers: workers,
		Mode:    mode,
		EvHandler: func(v string, args ...any) {
			log.Infof(v, args...)
		},
	}

	if mode == miner.ModeProcess {
		exe, err := os.Executable()
		if err != nil {
			return miner.Config{}, fmt.Errorf("locating worker program: %w", err)
		}
		cfg.WorkerCommand = []string{exe, "worker"}
	}

	return cfg, nil
}

// openState opens the ledger for the address with a logger bound to it.
func openState(address string) (*state.State, func(), error) {
	log, err := newLogger()
	if err != nil {
		return nil, nil, err
	}

	cfg, err := stateConfig(log)
	if err != nil {
		return nil, nil, err
	}

	st, err := state.Open(cfg, address)
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		st.Shutdown()
		log.Sync()
	}

	return st, closeFn, nil
}
