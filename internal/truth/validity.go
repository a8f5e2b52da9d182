package truth

import (
	"container/list"
	"sync"
	"time"
)

// ValidityRecord is the local revalidation state for one truth.
type ValidityRecord struct {
	TruthID    string
	Valid      bool
	Confidence float64
	CheckedAt  time.Time
}

// ValidityCache tracks when truths were last revalidated and whether they
// still hold. Truths are never deleted from the store; an invalid record
// here merely downgrades them. Bounded LRU: a forgotten record costs one
// extra revalidation call, never correctness.
type ValidityCache struct {
	mu       sync.Mutex
	capacity int
	records  map[string]*list.Element
	order    *list.List
	now      func() time.Time
}

// NewValidityCache creates a cache bounded to capacity records
// (default 20000).
func NewValidityCache(capacity int) *ValidityCache {
	if capacity <= 0 {
		capacity = 20000
	}
	return &ValidityCache{
		capacity: capacity,
		records:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// NeedsCheck reports whether a truth is due for revalidation: its record is
// missing or older than maxAge.
func (c *ValidityCache) NeedsCheck(truthID string, maxAge time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.records[truthID]
	if !ok {
		return true
	}
	return c.now().Sub(el.Value.(*ValidityRecord).CheckedAt) > maxAge
}

// Record stores the outcome of a revalidation.
func (c *ValidityCache) Record(truthID string, valid bool, confidence float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.records[truthID]; ok {
		rec := el.Value.(*ValidityRecord)
		rec.Valid = valid
		rec.Confidence = confidence
		rec.CheckedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	c.records[truthID] = c.order.PushFront(&ValidityRecord{
		TruthID:    truthID,
		Valid:      valid,
		Confidence: confidence,
		CheckedAt:  c.now(),
	})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.records, oldest.Value.(*ValidityRecord).TruthID)
	}
}

// IsValid reports whether a truth is currently considered valid. Truths
// with no record default to valid; evidence is never silently discarded.
func (c *ValidityCache) IsValid(truthID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.records[truthID]
	if !ok {
		return true
	}
	return el.Value.(*ValidityRecord).Valid
}

// Stats returns total and invalid record counts.
func (c *ValidityCache) Stats() (total, invalid int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total = c.order.Len()
	for el := c.order.Front(); el != nil; el = el.Next() {
		if !el.Value.(*ValidityRecord).Valid {
			invalid++
		}
	}
	return total, invalid
}
