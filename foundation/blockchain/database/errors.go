package database

import (
	"errors"
	"fmt"
)

// Set of error variables for ledger operations.
var (
	ErrAlreadyExists       = errors.New("blockchain already exists")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientFunds   = errors.New("not enough funds")
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrInvalidBlock        = errors.New("invalid block")
	ErrStorage             = errors.New("storage failure")
	ErrChainEnd            = errors.New("end of chain")
	ErrNoTransactions      = errors.New("block has no transactions")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrWalletsNotAvailable = errors.New("no wallet store configured")
)

// MissingTxError is returned when an input references a transaction that
// can't be found on the chain.
type MissingTxError struct {
	ID string
}

// Error implements the error interface.
func (e *MissingTxError) Error() string {
	return fmt.Sprintf("previous transaction %q not found", e.ID)
}

// Is allows errors.Is(err, ErrNotFound) to match.
func (e *MissingTxError) Is(target error) bool {
	return target == ErrNotFound
}

// FundsError is returned when the spendable outputs of an address can't
// cover a payment.
type FundsError struct {
	Address   string
	Requested uint64
	Available uint64
}

// Error implements the error interface.
func (e *FundsError) Error() string {
	return fmt.Sprintf("address %s: requested %d, available %d: %s", e.Address, e.Requested, e.Available, ErrInsufficientFunds)
}

// Is allows errors.Is(err, ErrInsufficientFunds) to match.
func (e *FundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// TxError is returned when a transaction fails validation while a block is
// being assembled.
type TxError struct {
	ID  string
	Err error
}

// Error implements the error interface.
func (e *TxError) Error() string {
	return fmt.Sprintf("transaction %s: %s: %s", e.ID, ErrInvalidTransaction, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TxError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, ErrInvalidTransaction) to match.
func (e *TxError) Is(target error) bool {
	return target == ErrInvalidTransaction
}

// storageError marks an error coming from the underlying store.
func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
