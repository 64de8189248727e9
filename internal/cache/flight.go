package cache

import (
	"hash/maphash"
	"sync"

	"golang.org/x/sync/singleflight"
)

const flightShards = 64

// ShardedGroup spreads singleflight calls over several groups so unrelated
// keys do not contend on one mutex during import bursts
type ShardedGroup struct {
	shards []*singleflight.Group
	seed   maphash.Seed
}

var hasherPool = sync.Pool{
	New: func() any {
		return new(maphash.Hash)
	},
}

// NewShardedGroup creates a sharded singleflight group
func NewShardedGroup() *ShardedGroup {
	g := &ShardedGroup{
		shards: make([]*singleflight.Group, flightShards),
		seed:   maphash.MakeSeed(),
	}
	for i := range g.shards {
		g.shards[i] = &singleflight.Group{}
	}
	return g
}

func (g *ShardedGroup) shard(key string) *singleflight.Group {
	h := hasherPool.Get().(*maphash.Hash)
	// Reset before SetSeed, reused hashers panic otherwise
	h.Reset()
	h.SetSeed(g.seed)
	h.WriteString(key)
	idx := h.Sum64() & (flightShards - 1)
	hasherPool.Put(h)

	return g.shards[idx]
}

// Do runs fn once per key among concurrent callers
func (g *ShardedGroup) Do(key string, fn func() (any, error)) (any, error, bool) {
	return g.shard(key).Do(key, fn)
}

// Forget drops an in-flight key so the next call recomputes
func (g *ShardedGroup) Forget(key string) {
	g.shard(key).Forget(key)
}
