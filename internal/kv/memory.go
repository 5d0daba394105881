package kv

import (
	"sync"

	"github.com/dukerupert/rewardledger/internal/model"
)

// Memory is an in-process Collection. It is the backend used when no
// database path is configured and in tests.
type Memory[V any] struct {
	keys *KeyLock

	mu      sync.RWMutex
	records map[string][]byte
	order   []string
}

func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{
		keys:    NewKeyLock(),
		records: make(map[string][]byte),
	}
}

func (m *Memory[V]) load(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.records[key]
	return data, ok
}

func (m *Memory[V]) store(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; !ok {
		m.order = append(m.order, key)
	}
	m.records[key] = data
}

func (m *Memory[V]) Get(key string) (*V, error) {
	data, ok := m.load(key)
	if !ok {
		return nil, nil
	}
	return decode[V](data)
}

func (m *Memory[V]) Insert(key string, v V) error {
	unlock := m.keys.Lock(key)
	defer unlock()

	if _, ok := m.load(key); ok {
		return model.ErrAlreadyExists
	}
	data, err := encode(v)
	if err != nil {
		return err
	}
	m.store(key, data)
	return nil
}

func (m *Memory[V]) Update(key string, fn func(v *V) error) error {
	return m.Upsert(key, func(v *V, exists bool) error {
		if !exists {
			return model.ErrNotFound
		}
		return fn(v)
	})
}

func (m *Memory[V]) Upsert(key string, fn func(v *V, exists bool) error) error {
	unlock := m.keys.Lock(key)
	defer unlock()

	v := new(V)
	data, exists := m.load(key)
	if exists {
		var err error
		if v, err = decode[V](data); err != nil {
			return err
		}
	}

	if err := fn(v, exists); err != nil {
		return err
	}

	data, err := encode(*v)
	if err != nil {
		return err
	}
	m.store(key, data)
	return nil
}

func (m *Memory[V]) List() ([]V, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]V, 0, len(m.order))
	for _, key := range m.order {
		v, err := decode[V](m.records[key])
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}
