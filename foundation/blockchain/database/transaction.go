package database

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/address"
	"github.com/ardanlabs/utxochain/foundation/blockchain/hashing"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CoinbaseIndex is the output index carried by the input of a coinbase
// transaction.
const CoinbaseIndex = -1

// =============================================================================

// TxInput references a single output of a previous transaction.
type TxInput struct {
	TransactionID string        `json:"transactionId"` // Transaction holding the output being spent, empty for coinbase.
	OutputIndex   int           `json:"outputIndex"`   // Index of the output being spent, -1 for coinbase.
	PublicKey     hexutil.Bytes `json:"publicKey"`     // Raw public key of the spender.
	Signature     hexutil.Bytes `json:"signature"`     // DER signature, or the memo for coinbase.
}

// TxOutput locks a value to a public key hash.
type TxOutput struct {
	Value         uint64        `json:"value"`
	PublicKeyHash hexutil.Bytes `json:"publicKeyHash"`
}

// Lock constructs an output paying value to the specified address.
func Lock(value uint64, addr string) (TxOutput, error) {
	pkh, err := address.Decode(addr)
	if err != nil {
		return TxOutput{}, err
	}

	return TxOutput{Value: value, PublicKeyHash: pkh}, nil
}

// IsLockedWith reports whether the output can be spent by the owner of the
// public key hash.
func (out TxOutput) IsLockedWith(publicKeyHash []byte) bool {
	return bytes.Equal(out.PublicKeyHash, publicKeyHash)
}

// =============================================================================

// Transaction moves value from previous outputs into new outputs.
type Transaction struct {
	ID        string     `json:"id"`
	Timestamp int64      `json:"timestamp"` // Unix milliseconds.
	Inputs    []TxInput  `json:"inputs"`
	Outputs   []TxOutput `json:"outputs"`
}

// newTransaction constructs a transaction stamped with the current time and
// assigns its id.
func newTransaction(inputs []TxInput, outputs []TxOutput) (Transaction, error) {
	tx := Transaction{
		Timestamp: time.Now().UnixMilli(),
		Inputs:    inputs,
		Outputs:   outputs,
	}

	if err := tx.GenerateID(); err != nil {
		return Transaction{}, err
	}

	return tx, nil
}

// IsCoinbase reports whether the transaction mints the block reward.
func (tx Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].TransactionID == "" && tx.Inputs[0].OutputIndex == CoinbaseIndex
}

// GenerateID computes the id from the transaction as it looks before any
// signature is attached. The coinbase memo is part of the id.
func (tx *Transaction) GenerateID() error {
	id, err := tx.computeID()
	if err != nil {
		return err
	}

	tx.ID = id
	return nil
}

// computeID hashes a copy of the transaction with the id cleared and, for
// ordinary transactions, every signature cleared.
func (tx Transaction) computeID() (string, error) {
	cpy := Transaction{
		Timestamp: tx.Timestamp,
		Inputs:    make([]TxInput, len(tx.Inputs)),
		Outputs:   tx.Outputs,
	}

	coinbase := tx.IsCoinbase()
	for i, in := range tx.Inputs {
		cpy.Inputs[i] = in
		if !coinbase {
			cpy.Inputs[i].Signature = nil
		}
	}

	return hashing.Hash(cpy)
}

// Sign attaches a signature to every input. Each input signs the id of a copy
// of the transaction where only that input carries the public key hash of the
// output it spends. Coinbase transactions are left untouched.
func (tx *Transaction) Sign(signer signature.Signer, prevTxs map[string]Transaction) error {
	if tx.IsCoinbase() {
		return nil
	}

	if err := tx.checkPrevious(prevTxs); err != nil {
		return err
	}

	cpy := tx.trimmedCopy()
	for i, in := range tx.Inputs {
		payload, err := cpy.signingPayload(i, prevTxs[in.TransactionID].Outputs[in.OutputIndex])
		if err != nil {
			return err
		}

		sig, err := signer.Sign(payload)
		if err != nil {
			return fmt.Errorf("sign input %d: %w", i, err)
		}

		tx.Inputs[i].Signature = sig
	}

	return nil
}

// Verify reproduces the signing payload for every input and checks the stored
// signature against it. An input also fails when its public key does not hash
// to the lock of the output it spends. Coinbase transactions always verify.
func (tx Transaction) Verify(prevTxs map[string]Transaction) (bool, error) {
	if tx.IsCoinbase() {
		return true, nil
	}

	if err := tx.checkPrevious(prevTxs); err != nil {
		return false, err
	}

	cpy := tx.trimmedCopy()
	for i, in := range tx.Inputs {
		prevOut := prevTxs[in.TransactionID].Outputs[in.OutputIndex]

		if !prevOut.IsLockedWith(hashing.PublicKeyHash(in.PublicKey)) {
			return false, nil
		}

		payload, err := cpy.signingPayload(i, prevOut)
		if err != nil {
			return false, err
		}

		ok, err := signature.Verify(in.PublicKey, payload, in.Signature)
		if err != nil || !ok {
			return false, nil
		}
	}

	return true, nil
}

// Hash implements the merkle Hashable interface. The leaf digest is the
// SHA-256 of the JSON representation of the transaction.
func (tx Transaction) Hash() ([]byte, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	return sum[:], nil
}

// Equals implements the merkle Hashable interface.
func (tx Transaction) Equals(other Transaction) bool {
	return tx.ID == other.ID
}

// String implements the fmt.Stringer interface for logging.
func (tx Transaction) String() string {
	var value uint64
	for _, out := range tx.Outputs {
		value += out.Value
	}

	return fmt.Sprintf("%s:in[%d]:out[%d]:value[%d]", tx.ID, len(tx.Inputs), len(tx.Outputs), value)
}

// checkPrevious makes sure every input references a known output.
func (tx Transaction) checkPrevious(prevTxs map[string]Transaction) error {
	for _, in := range tx.Inputs {
		prev, exists := prevTxs[in.TransactionID]
		if !exists {
			return &MissingTxError{ID: in.TransactionID}
		}

		if in.OutputIndex < 0 || in.OutputIndex >= len(prev.Outputs) {
			return fmt.Errorf("input references output %d of %s with %d outputs", in.OutputIndex, in.TransactionID, len(prev.Outputs))
		}
	}

	return nil
}

// trimmedCopy returns a copy with every public key and signature cleared.
func (tx Transaction) trimmedCopy() Transaction {
	cpy := Transaction{
		ID:        tx.ID,
		Timestamp: tx.Timestamp,
		Inputs:    make([]TxInput, len(tx.Inputs)),
		Outputs:   make([]TxOutput, len(tx.Outputs)),
	}

	for i, in := range tx.Inputs {
		cpy.Inputs[i] = TxInput{TransactionID: in.TransactionID, OutputIndex: in.OutputIndex}
	}
	copy(cpy.Outputs, tx.Outputs)

	return cpy
}

// signingPayload places the locking hash of the spent output in input i,
// hashes the copy, and clears the slot again.
func (tx Transaction) signingPayload(i int, prevOut TxOutput) ([]byte, error) {
	tx.Inputs[i].PublicKey = prevOut.PublicKeyHash
	defer func() { tx.Inputs[i].PublicKey = nil }()

	id, err := hashing.Hash(tx)
	if err != nil {
		return nil, err
	}

	return []byte(id), nil
}
