package cmd

import (
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
	"github.com/spf13/cobra"
)

// walletCmd represents the wallet command
var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Create a new wallet and print its address.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := wallet.Load(walletFolder)
		if err != nil {
			return err
		}

		addr, err := w.Create()
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), addr)
		return nil
	},
}

// addressesCmd represents the addresses command
var addressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "List the addresses and public keys of the known wallets.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := wallet.Load(walletFolder)
		if err != nil {
			return err
		}

		for _, addr := range w.Addresses() {
			signer, err := w.Wallet(addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", addr, signature.PublicKeyHex(signer.PublicKey()))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(addressesCmd)
}
