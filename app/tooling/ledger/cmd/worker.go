package cmd

import (
	"os"

	"github.com/ardanlabs/utxochain/foundation/blockchain/miner"
	"github.com/spf13/cobra"
)

// workerCmd is the child side of process mode mining. It reads dispatches
// from stdin and writes reports to stdout.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Serve mining dispatches over stdin and stdout.",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return miner.ServeWorker(cmd.Context(), os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
