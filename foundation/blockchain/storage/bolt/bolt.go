// Package bolt implements the storage.Store interface on top of a bbolt file.
// Every store owns one file and keeps its data in a single bucket.
package bolt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/storage"
	bolt "go.etcd.io/bbolt"
)

var bucket = []byte("data")

// Bolt represents a store backed by a bbolt database file.
type Bolt struct {
	db *bolt.DB
}

// Open creates the directory for the file if required and opens the bbolt
// database at the specified path.
func Open(path string) (*Bolt, error) {
	if path == "" {
		return nil, errors.New("path required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			return fmt.Errorf("create bucket %s: %w", string(bucket), err)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Bolt{db: db}, nil
}

// Close releases the database file.
func (b *Bolt) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Get returns a copy of the value stored under the key.
func (b *Bolt) Get(key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get(key)
		if v == nil {
			return storage.ErrNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	})

	return value, err
}

// Put stores the value under the key.
func (b *Bolt) Put(key []byte, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, value)
	})
}

// Delete removes the key. Removing a missing key is not an error.
func (b *Bolt) Delete(key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
}

// Batch applies all the operations in a single transaction.
func (b *Bolt) Batch(ops []storage.Op) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucket)
		for _, op := range ops {
			if op.Delete {
				if err := bkt.Delete(op.Key); err != nil {
					return err
				}
				continue
			}
			if err := bkt.Put(op.Key, op.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// ForEach calls fn for every key in byte order inside a read transaction, so
// fn must not write to the store. Returning storage.ErrStopIteration from fn
// ends the walk without an error.
func (b *Bolt) ForEach(fn func(key []byte, value []byte) error) error {
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			return fn(append([]byte(nil), k...), append([]byte(nil), v...))
		})
	})

	if errors.Is(err, storage.ErrStopIteration) {
		return nil
	}

	return err
}

// Clear removes every key from the store.
func (b *Bolt) Clear() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucket)
		return err
	})
}

// Count returns the number of keys in the store.
func (b *Bolt) Count() (int, error) {
	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucket).Stats().KeyN
		return nil
	})

	return n, err
}
