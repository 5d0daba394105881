// Package kvtest provides collection wrappers for exercising failure paths.
package kvtest

import (
	"errors"
	"sync"

	"github.com/dukerupert/rewardledger/internal/kv"
)

// ErrWriteFailed is what a failed write reports.
var ErrWriteFailed = errors.New("kvtest: write failed")

// Failing wraps a collection and fails the Nth write to Key. For Update and
// Upsert the update function runs first and the write is then aborted, the
// way a commit error surfaces after the record was prepared. Writes whose
// update function returns an error are not counted.
type Failing[V any] struct {
	kv.Collection[V]
	Key string
	N   int
	// OnFail, if set, runs in place of the failed write. For Update and
	// Upsert it runs while the key is still locked.
	OnFail func()

	mu     sync.Mutex
	writes int
}

// Wrap returns a Failing that fails the nth write to key.
func Wrap[V any](c kv.Collection[V], key string, n int) *Failing[V] {
	return &Failing[V]{Collection: c, Key: key, N: n}
}

func (f *Failing[V]) fail(key string) bool {
	if key != f.Key {
		return false
	}
	f.mu.Lock()
	f.writes++
	hit := f.writes == f.N
	f.mu.Unlock()
	if hit && f.OnFail != nil {
		f.OnFail()
	}
	return hit
}

// Writes returns how many counted writes Key has seen.
func (f *Failing[V]) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *Failing[V]) Insert(key string, v V) error {
	if f.fail(key) {
		return ErrWriteFailed
	}
	return f.Collection.Insert(key, v)
}

func (f *Failing[V]) Update(key string, fn func(v *V) error) error {
	return f.Collection.Update(key, func(v *V) error {
		if err := fn(v); err != nil {
			return err
		}
		if f.fail(key) {
			return ErrWriteFailed
		}
		return nil
	})
}

func (f *Failing[V]) Upsert(key string, fn func(v *V, exists bool) error) error {
	return f.Collection.Upsert(key, func(v *V, exists bool) error {
		if err := fn(v, exists); err != nil {
			return err
		}
		if f.fail(key) {
			return ErrWriteFailed
		}
		return nil
	})
}
