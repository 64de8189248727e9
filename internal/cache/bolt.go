package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketAssessments = []byte("assessments")

// BoltCache persists entries in a BoltDB file so a restarted process keeps
// its warm cache
type BoltCache struct {
	db  *bbolt.DB
	ttl time.Duration
	now func() time.Time
}

type cacheEntry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewBoltCache opens (or creates) the cache file at path
func NewBoltCache(path string, ttl time.Duration) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAssessments)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltCache{db: db, ttl: ttl, now: time.Now}, nil
}

// Get retrieves a value, dropping it if expired
func (c *BoltCache) Get(key string) ([]byte, bool) {
	var entry cacheEntry
	found := false

	_ = c.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketAssessments).Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil
		}
		found = true
		return nil
	})
	if !found {
		return nil, false
	}

	if !entry.ExpiresAt.IsZero() && c.now().After(entry.ExpiresAt) {
		_ = c.Delete(key)
		return nil, false
	}
	return entry.Data, true
}

// Set stores a value (ttl 0 uses the cache default, negative never expires)
func (c *BoltCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}

	entry := cacheEntry{Data: value}
	if ttl > 0 {
		entry.ExpiresAt = c.now().Add(ttl)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAssessments).Put([]byte(key), data)
	})
}

// Delete removes a value
func (c *BoltCache) Delete(key string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAssessments).Delete([]byte(key))
	})
}

// Clear removes every entry
func (c *BoltCache) Clear() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketAssessments); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketAssessments)
		return err
	})
}

// Close releases the database file lock
func (c *BoltCache) Close() error {
	return c.db.Close()
}
