package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Memo adds compute-on-miss with at-most-once computation per key to a
// byte Cache. Values are stored as JSON.
type Memo[T any] struct {
	store  Cache
	flight *ShardedGroup
	ttl    time.Duration

	// OnWriteError is told about failed cache writes; the computed value is
	// still returned
	OnWriteError func(key string, err error)
}

// NewMemo wraps store; ttl 0 uses the store's default
func NewMemo[T any](store Cache, ttl time.Duration) *Memo[T] {
	return &Memo[T]{
		store:  store,
		flight: NewShardedGroup(),
		ttl:    ttl,
	}
}

// GetOrCompute returns the cached value for key, or runs compute once
// across all concurrent callers and caches its result. Errors are never
// cached. The bool reports whether the value came from the cache. Every
// caller decodes its own copy, so returned slices and maps are never shared.
func (m *Memo[T]) GetOrCompute(key string, compute func() (T, error)) (T, bool, error) {
	if v, ok := m.lookup(key); ok {
		return v, true, nil
	}

	res, err, _ := m.flight.Do(key, func() (any, error) {
		// a concurrent caller may have finished while we queued
		if data, ok := m.raw(key); ok {
			return flightResult{data: data, hit: true}, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode cache value: %w", err)
		}
		if err := m.store.Set(key, data, m.ttl); err != nil && m.OnWriteError != nil {
			m.OnWriteError(key, err)
		}
		return flightResult{data: data}, nil
	})
	var out T
	if err != nil {
		return out, false, err
	}

	fr := res.(flightResult)
	// decoding even on a miss keeps a miss and a later hit identical
	if err := json.Unmarshal(fr.data, &out); err != nil {
		return out, false, fmt.Errorf("failed to decode cache value: %w", err)
	}
	return out, fr.hit, nil
}

// Invalidate drops key from the store and any in-flight computation
func (m *Memo[T]) Invalidate(key string) error {
	m.flight.Forget(key)
	return m.store.Delete(key)
}

// Clear empties the underlying store
func (m *Memo[T]) Clear() error {
	return m.store.Clear()
}

type flightResult struct {
	data []byte
	hit  bool
}

func (m *Memo[T]) lookup(key string) (T, bool) {
	var v T
	data, ok := m.store.Get(key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		// unreadable entries are recomputed
		_ = m.store.Delete(key)
		return v, false
	}
	return v, true
}

// raw returns the stored encoding of key if it still decodes
func (m *Memo[T]) raw(key string) ([]byte, bool) {
	data, ok := m.store.Get(key)
	if !ok {
		return nil, false
	}
	var decoded T
	if err := json.Unmarshal(data, &decoded); err != nil {
		_ = m.store.Delete(key)
		return nil, false
	}
	return data, true
}
