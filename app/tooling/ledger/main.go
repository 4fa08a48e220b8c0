// This program manages a ledger from the command line.
package main

import "github.com/ardanlabs/utxochain/app/tooling/ledger/cmd"

func main() {
	cmd.Execute()
}
