package cmd

import (
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/spf13/cobra"
)

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:   "create <address>",
	Short: "Create a new chain rewarding the address with the genesis block.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		cfg, err := stateConfig(log)
		if err != nil {
			return err
		}

		st, err := state.Create(cmd.Context(), cfg, args[0])
		if err != nil {
			return err
		}
		defer st.Shutdown()

		fmt.Fprintln(cmd.OutOrStdout(), "Done")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}
