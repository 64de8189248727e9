package cache

import "time"

// LayeredCache implements a two-layer cache (memory in front of a
// persistent store)
type LayeredCache struct {
	memory     Cache
	persistent Cache
}

// NewLayeredCache creates a new layered cache. persistent may be nil, in
// which case the memory layer is used alone.
func NewLayeredCache(memory, persistent Cache) *LayeredCache {
	return &LayeredCache{
		memory:     memory,
		persistent: persistent,
	}
}

// Get retrieves a value from the cache (checks memory first, then the
// persistent layer)
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		return val, true
	}

	if c.persistent == nil {
		return nil, false
	}
	if val, found := c.persistent.Get(key); found {
		// Promote to memory cache
		_ = c.memory.Set(key, val, 0)
		return val, true
	}

	return nil, false
}

// Set stores a value in both layers. ttl applies to the memory layer only;
// the persistent layer always uses its own default expiry.
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(key, value, ttl); err != nil {
		return err
	}
	if c.persistent != nil {
		if err := c.persistent.Set(key, value, 0); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a value from both layers
func (c *LayeredCache) Delete(key string) error {
	err := c.memory.Delete(key)
	if c.persistent != nil {
		if perr := c.persistent.Delete(key); perr != nil {
			err = perr
		}
	}
	return err
}

// Clear removes all values from both layers
func (c *LayeredCache) Clear() error {
	err := c.memory.Clear()
	if c.persistent != nil {
		if perr := c.persistent.Clear(); perr != nil {
			err = perr
		}
	}
	return err
}
