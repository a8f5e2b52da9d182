package prefs

import (
	"container/list"
	"sync"
	"time"

	"github.com/oaf-platform/leo/internal/types"
)

// profileCache is a bounded TTL cache of resolved profiles keyed by user id.
// Eviction is LRU so memory stays bounded regardless of traffic. Concurrent
// resolution of the same user is last-writer-wins; nothing stronger is
// needed here.
type profileCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	now      func() time.Time
}

type cacheEntry struct {
	userID   string
	profile  *types.PreferenceProfile
	cachedAt time.Time
}

func newProfileCache(ttl time.Duration, capacity int) *profileCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if capacity <= 0 {
		capacity = 10000
	}
	return &profileCache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// get returns a copy of the cached profile, or nil on miss/expiry.
func (c *profileCache) get(userID string) *types.PreferenceProfile {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[userID]
	if !ok {
		return nil
	}
	entry := el.Value.(*cacheEntry)
	if c.now().Sub(entry.cachedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, userID)
		return nil
	}
	c.order.MoveToFront(el)
	return entry.profile.Clone()
}

// put stores a profile copy, evicting the least recently used entry when
// over capacity.
func (c *profileCache) put(userID string, profile *types.PreferenceProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[userID]; ok {
		entry := el.Value.(*cacheEntry)
		entry.profile = profile.Clone()
		entry.cachedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheEntry{
		userID:   userID,
		profile:  profile.Clone(),
		cachedAt: c.now(),
	})
	c.entries[userID] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).userID)
	}
}

// nudge applies fn to the cached profile in place, preserving the entry's
// TTL stamp. Returns false when nothing is cached for the user.
func (c *profileCache) nudge(userID string, fn func(*types.PreferenceProfile)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[userID]
	if !ok {
		return false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().Sub(entry.cachedAt) > c.ttl {
		return false
	}
	fn(entry.profile)
	return true
}

// invalidate removes one entry.
func (c *profileCache) invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[userID]; ok {
		c.order.Remove(el)
		delete(c.entries, userID)
	}
}

// invalidateAll drops every entry, used when the nightly batch recomputes
// profiles.
func (c *profileCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

func (c *profileCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
