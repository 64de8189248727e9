package normalize

import (
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/iocscore/internal/model"
)

// Registry deduplicates indicators across feeds by fingerprint.
// It is safe for concurrent use; callers only ever see clones.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*model.Indicator
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*model.Indicator)}
}

// Observe records a sighting of the raw indicator from feed and returns a
// snapshot of the merged indicator
func (r *Registry) Observe(rawType, rawValue, feed string, ts time.Time) (*model.Indicator, error) {
	fresh, err := NewIndicator(rawType, rawValue)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ind, ok := r.items[fresh.Fingerprint]
	if !ok {
		ind = fresh
		r.items[ind.Fingerprint] = ind
	}
	RecordSighting(ind, feed, ts)
	return ind.Clone(), nil
}

// Get returns a snapshot of the indicator with the given fingerprint
func (r *Registry) Get(fingerprint string) (*model.Indicator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ind, ok := r.items[fingerprint]
	if !ok {
		return nil, false
	}
	return ind.Clone(), true
}

// Len returns the number of distinct indicators
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// All returns snapshots of every indicator ordered by fingerprint
func (r *Registry) All() []*model.Indicator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Indicator, 0, len(r.items))
	for _, ind := range r.items {
		out = append(out, ind.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out
}

// Update applies fn to the stored indicator under the write lock and returns
// a snapshot of the result. Identity fields changed by fn are restored.
func (r *Registry) Update(fingerprint string, fn func(*model.Indicator)) (*model.Indicator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ind, ok := r.items[fingerprint]
	if !ok {
		return nil, false
	}
	t, v, fp := ind.Type, ind.Value, ind.Fingerprint
	fn(ind)
	ind.Type, ind.Value, ind.Fingerprint = t, v, fp
	return ind.Clone(), true
}
