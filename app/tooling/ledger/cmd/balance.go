package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// balanceCmd represents the balance command
var balanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "Print the balance of the address.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closeFn, err := openState(args[0])
		if err != nil {
			return err
		}
		defer closeFn()

		balance, err := st.QueryBalance(args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Balance of %s: %d\n", args[0], balance)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}
