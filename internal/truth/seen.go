package truth

import (
	"container/list"
	"sync"
)

// SeenSet is the process-wide dedup set of document ids already handed to
// extraction. It is bounded: when full, the oldest ids are forgotten, which
// at worst costs one re-extraction of an old document. Consistency is
// last-write-wins; a false "already processed" only skips one document for
// one cycle.
type SeenSet struct {
	mu       sync.Mutex
	capacity int
	ids      map[string]*list.Element
	order    *list.List // front = newest
}

// NewSeenSet creates a set bounded to capacity ids (default 50000).
func NewSeenSet(capacity int) *SeenSet {
	if capacity <= 0 {
		capacity = 50000
	}
	return &SeenSet{
		capacity: capacity,
		ids:      make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Contains reports whether the id has been processed.
func (s *SeenSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Add marks an id processed, evicting the oldest entries past capacity.
func (s *SeenSet) Add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return
	}
	s.ids[id] = s.order.PushFront(id)
	for s.order.Len() > s.capacity {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.ids, oldest.Value.(string))
	}
}

// Len reports the current number of tracked ids.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
