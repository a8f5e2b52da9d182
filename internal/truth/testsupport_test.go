package truth

import (
	"context"
	"fmt"
	"sync"

	"github.com/oaf-platform/leo/internal/llm"
	"github.com/oaf-platform/leo/internal/types"
	"github.com/oaf-platform/leo/internal/vectorstore"
)

// memStore is an in-memory vector store fake for pipeline tests.
type memStore struct {
	mu          sync.Mutex
	collections map[string][]vectorstore.Document
	upsertErr   error
	sampleErr   error
	countErr    error
}

func newMemStore() *memStore {
	return &memStore{collections: make(map[string][]vectorstore.Document)}
}

func (m *memStore) Upsert(ctx context.Context, collection string, docs []vectorstore.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.collections[collection] = append(m.collections[collection], docs...)
	return nil
}

func (m *memStore) Query(ctx context.Context, collection, text string, limit int, filter vectorstore.Filter) ([]types.SearchHit, error) {
	return m.Sample(ctx, collection, limit, filter)
}

func (m *memStore) Sample(ctx context.Context, collection string, limit int, filter vectorstore.Filter) ([]types.SearchHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sampleErr != nil {
		return nil, m.sampleErr
	}
	var hits []types.SearchHit
	for _, d := range m.collections[collection] {
		if limit > 0 && len(hits) >= limit {
			break
		}
		hits = append(hits, types.SearchHit{
			ID:         d.ID,
			Collection: collection,
			Content:    d.Content,
			Metadata:   d.Metadata,
			Similarity: 0.5,
		})
	}
	return hits, nil
}

func (m *memStore) Get(ctx context.Context, collection, id string) (*vectorstore.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.collections[collection] {
		if d.ID == id {
			doc := d
			return &doc, nil
		}
	}
	return nil, nil
}

func (m *memStore) Count(ctx context.Context, collection string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return len(m.collections[collection]), nil
}

func (m *memStore) Healthy(ctx context.Context) error { return nil }

func (m *memStore) docCount(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collections[collection])
}

// scriptedLLM returns one canned response (or error) per call, repeating
// the last entry, and counts calls.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
}

func (s *scriptedLLM) Generate(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", fmt.Errorf("scriptedLLM: no responses configured")
	}
	i := s.calls - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func (s *scriptedLLM) Healthy(ctx context.Context) error { return nil }

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
