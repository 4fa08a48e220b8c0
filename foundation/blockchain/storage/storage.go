// Package storage defines the key/value contract used to persist the ledger
// and the unspent output index.
package storage

import "errors"

// Set of error variables for store operations.
var (
	ErrNotFound      = errors.New("key not found")
	ErrStopIteration = errors.New("stop iteration")
)

// Op represents a single write applied as part of a batch.
type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Put constructs an Op that stores the value under the key.
func Put(key []byte, value []byte) Op {
	return Op{Key: key, Value: value}
}

// Delete constructs an Op that removes the key.
func Delete(key []byte) Op {
	return Op{Key: key, Delete: true}
}

// Store interface represents the behavior required to be implemented by any
// package providing support for persisting ledger data. Values returned by Get
// and passed to ForEach are owned by the caller. The ForEach callback must not
// write to the store it is walking.
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	Batch(ops []Op) error
	ForEach(fn func(key []byte, value []byte) error) error
	Clear() error
	Count() (int, error)
	Close() error
}
