package public

import (
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/validate"
)

// send is the payment a client asks the node to mine.
type send struct {
	From   string `json:"from" validate:"required,address"`
	To     string `json:"to" validate:"required,address"`
	Amount uint64 `json:"amount" validate:"required,gt=0"`
}

// Validate checks the data in the model is considered clean.
func (s send) Validate() error {
	return validate.Check(s)
}

type block struct {
	database.Block
	Valid bool `json:"valid"`
}

type balance struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

type unspent struct {
	Transactions int `json:"transactions"`
}

type wallets struct {
	Addresses []string `json:"addresses"`
}

type mined struct {
	Block   database.Block `json:"block"`
	Balance uint64         `json:"balance"`
}
