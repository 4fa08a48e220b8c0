package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <from> <to> <amount>",
	Short: "Pay an amount between addresses and mine it into a new block.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to := args[0], args[1]

		amount, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("amount %q: %w", args[2], err)
		}

		st, closeFn, err := openState(from)
		if err != nil {
			return err
		}
		defer closeFn()

		block, err := st.Send(cmd.Context(), from, to, amount)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Block:", block.Hash)
		fmt.Fprintln(cmd.OutOrStdout(), "Success")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
