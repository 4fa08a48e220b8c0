package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// reindexCmd represents the reindex command
var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the unspent output index from the chain.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closeFn, err := openState("")
		if err != nil {
			return err
		}
		defer closeFn()

		n, err := st.Reindex()
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Transactions count:", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}
