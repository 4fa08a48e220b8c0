package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var audit bool

// chainCmd represents the chain command
var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Print every block from the tip back to the genesis block.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closeFn, err := openState("")
		if err != nil {
			return err
		}
		defer closeFn()

		blocks, err := st.QueryBlocks(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, block := range blocks {
			data, err := json.MarshalIndent(block, "", "  ")
			if err != nil {
				return err
			}

			fmt.Fprintln(out, string(data))
			fmt.Fprintln(out, "Valid:", st.ValidateBlock(block) == nil)
			fmt.Fprintln(out)
		}

		if audit {
			n, err := st.Audit(cmd.Context())
			if err != nil {
				return fmt.Errorf("audit failed after %d blocks: %w", n, err)
			}
			fmt.Fprintln(out, "Audited blocks:", n)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(chainCmd)
	chainCmd.Flags().BoolVarP(&audit, "audit", "a", false, "Check the links and transaction ids of the whole chain.")
}
