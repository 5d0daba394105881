// Package kv provides keyed record collections with whole-record
// read/replace semantics and an atomic read-modify-write per key.
//
// Records are stored encoded, so a value handed to an update function is a
// private copy: mutating it has no effect unless the function returns nil.
package kv

import (
	"encoding/json"
	"fmt"
)

// Collection is a keyed set of records of type V.
//
// Update and Upsert hold the key's lock for the whole read-modify-write, so
// two updates of the same key are linearized while updates of different keys
// proceed independently. Calling into another collection from inside fn is
// allowed; calling back into the same key deadlocks.
type Collection[V any] interface {
	// Get returns nil, nil if the key is absent.
	Get(key string) (*V, error)
	// Insert fails with model.ErrAlreadyExists if the key is present.
	Insert(key string, v V) error
	// Update fails with model.ErrNotFound if the key is absent. An error
	// returned by fn aborts the write and is returned unchanged.
	Update(key string, fn func(v *V) error) error
	// Upsert is Update that starts from the zero value when the key is absent.
	Upsert(key string, fn func(v *V, exists bool) error) error
	// List returns every record in insertion order.
	List() ([]V, error)
}

func encode[V any](v V) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

func decode[V any](data []byte) (*V, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &v, nil
}
