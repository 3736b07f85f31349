// Package kv is an ordered key value storage abstraction used by the embedded document store
package kv

// DB is an ordered key value database
type DB interface {
	// Tx runs fn in a transaction. Changes made by fn are committed if it returns nil and discarded otherwise.
	Tx(isUpdate bool, fn func(Tx) error) error
	Close() error
}

// IterOpts configures an iterator
type IterOpts struct {
	Prefix []byte `json:"prefix"`
}

// Tx is a key value transaction
type Tx interface {
	// Get returns the value for key, or nil if the key does not exist
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewIterator(opts IterOpts) Iterator
}

// Iterator iterates over keys in order
type Iterator interface {
	Close()
	Valid() bool
	Item() Item
	Next()
}

// Item is a key value pair
type Item interface {
	Key() []byte
	Value() ([]byte, error)
}
