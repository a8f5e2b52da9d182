package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oaf-platform/leo/internal/discovery"
	"github.com/oaf-platform/leo/internal/llm"
	"github.com/oaf-platform/leo/internal/prefs"
	"github.com/oaf-platform/leo/internal/scoring"
	"github.com/oaf-platform/leo/internal/truth"
	"github.com/oaf-platform/leo/internal/types"
	"github.com/oaf-platform/leo/internal/vectorstore"
)

// fakeStore serves canned hits per collection and records upserts.
type fakeStore struct {
	mu        sync.Mutex
	queryHits map[string][]types.SearchHit
	queryErr  map[string]error
	samples   map[string][]types.SearchHit
	counts    map[string]int
	healthErr error
	upserted  map[string][]vectorstore.Document
	upsertErr map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		queryHits: make(map[string][]types.SearchHit),
		queryErr:  make(map[string]error),
		samples:   make(map[string][]types.SearchHit),
		counts:    make(map[string]int),
		upserted:  make(map[string][]vectorstore.Document),
		upsertErr: make(map[string]error),
	}
}

func (f *fakeStore) Upsert(_ context.Context, collection string, docs []vectorstore.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.upsertErr[collection]; err != nil {
		return err
	}
	f.upserted[collection] = append(f.upserted[collection], docs...)
	return nil
}

func (f *fakeStore) Query(_ context.Context, collection, _ string, _ int, _ vectorstore.Filter) ([]types.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.queryErr[collection]; err != nil {
		return nil, err
	}
	return f.queryHits[collection], nil
}

func (f *fakeStore) Sample(_ context.Context, collection string, _ int, _ vectorstore.Filter) ([]types.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.samples[collection], nil
}

func (f *fakeStore) Get(context.Context, string, string) (*vectorstore.Document, error) {
	return nil, nil
}

func (f *fakeStore) Count(_ context.Context, collection string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[collection], nil
}

func (f *fakeStore) Healthy(context.Context) error { return f.healthErr }

type llmFunc func(ctx context.Context, req llm.Request) (string, error)

func (f llmFunc) Generate(ctx context.Context, req llm.Request) (string, error) { return f(ctx, req) }
func (f llmFunc) Healthy(context.Context) error                                { return nil }

func failingLLM() llm.Client {
	return llmFunc(func(context.Context, llm.Request) (string, error) {
		return "", fmt.Errorf("llm offline")
	})
}

func productHit(id string) types.SearchHit {
	return types.SearchHit{
		ID:         id,
		Collection: vectorstore.CollectionProducts,
		Content:    "ceramic vase " + id,
		Similarity: 0.8,
		Item:       types.Item{ID: id, Title: "Vase " + id, InStock: true},
	}
}

func newTestOrchestrator(t *testing.T, store *fakeStore, client llm.Client) *Orchestrator {
	t.Helper()

	truths := truth.NewStore(store)
	seen := truth.NewSeenSet(100)

	o, err := New(Deps{
		Store:     store,
		Client:    client,
		Resolver:  prefs.NewResolver(store, prefs.Config{}),
		Engine:    scoring.NewEngine(scoring.DefaultWeights()),
		Extractor: truth.NewExtractor(client, truths, seen, truth.ExtractorConfig{}),
		Truths:    truths,
	}, DefaultConfig())
	require.NoError(t, err)
	return o
}

func TestHandleQueryFailsOnlyWhenAllSearchesFail(t *testing.T) {
	store := newFakeStore()
	for _, c := range vectorstore.ContentCollections() {
		store.queryErr[c] = fmt.Errorf("connection refused")
	}

	o := newTestOrchestrator(t, store, failingLLM())
	_, err := o.HandleQuery(context.Background(), types.QueryRequest{Text: "vases"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestHandleQueryDegradesOnPartialFailure(t *testing.T) {
	store := newFakeStore()
	store.queryErr[vectorstore.CollectionArtists] = fmt.Errorf("timeout")
	store.queryHits[vectorstore.CollectionProducts] = []types.SearchHit{
		productHit("p1"), productHit("p2"),
	}

	o := newTestOrchestrator(t, store, failingLLM())
	res, err := o.HandleQuery(context.Background(), types.QueryRequest{
		Text:       "vases",
		Categories: []string{"products", "artists"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1", res.Metadata["categories_failed"])
	assert.Equal(t, "2", res.Metadata["results"])
}

func TestHandleQueryDeduplicatesAcrossCollections(t *testing.T) {
	store := newFakeStore()
	store.queryHits[vectorstore.CollectionProducts] = []types.SearchHit{
		productHit("p1"), productHit("p1"), productHit("p2"),
	}

	o := newTestOrchestrator(t, store, failingLLM())
	res, err := o.HandleQuery(context.Background(), types.QueryRequest{
		Text:       "vases",
		Categories: []string{"products"},
	})
	require.NoError(t, err)
	assert.Equal(t, "2", res.Metadata["results"])
}

func TestFallbackOrganizerGroupsByCollection(t *testing.T) {
	store := newFakeStore()
	store.queryHits[vectorstore.CollectionProducts] = []types.SearchHit{
		productHit("p1"), productHit("p2"), productHit("p3"),
		productHit("p4"), productHit("p5"),
	}
	store.queryHits[vectorstore.CollectionArticles] = []types.SearchHit{
		{ID: "a1", Collection: vectorstore.CollectionArticles, Content: "studio visit", Similarity: 0.6, Item: types.Item{ID: "a1", InStock: true}},
	}

	o := newTestOrchestrator(t, store, failingLLM())
	res, err := o.HandleQuery(context.Background(), types.QueryRequest{
		Text:       "ceramics",
		Categories: []string{"products", "articles"},
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Organizer)

	names := make([]string, 0, len(res.Categories))
	for _, c := range res.Categories {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "products")
	assert.Contains(t, names, "articles")
}

func TestLLMOrganizationGrouping(t *testing.T) {
	store := newFakeStore()
	store.queryHits[vectorstore.CollectionProducts] = []types.SearchHit{
		productHit("p1"), productHit("p2"), productHit("p3"),
		productHit("p4"), productHit("p5"), productHit("p6"),
	}

	client := llmFunc(func(_ context.Context, req llm.Request) (string, error) {
		return `{"categories": [
			{"name": "Statement pieces", "item_ids": ["p1", "p2", "bogus-id"]},
			{"name": "Everyday ceramics", "item_ids": ["p3", "p4"]}
		], "confidence": 0.85}`, nil
	})

	o := newTestOrchestrator(t, store, client)
	res, err := o.HandleQuery(context.Background(), types.QueryRequest{
		Text:       "ceramics",
		Categories: []string{"products"},
	})
	require.NoError(t, err)
	assert.Equal(t, "llm", res.Organizer)
	assert.InDelta(t, 0.85, res.Confidence, 1e-9)

	require.GreaterOrEqual(t, len(res.Categories), 2)
	assert.Equal(t, "Statement pieces", res.Categories[0].Name)
	assert.Len(t, res.Categories[0].Items, 2, "invented ids must be dropped")

	// p5 and p6 were not mentioned by the model; they land in a
	// collection-keyed sweep-up group instead of being lost.
	total := 0
	for _, c := range res.Categories {
		total += len(c.Items)
	}
	assert.Equal(t, 6, total)
}

func TestSparseCategoryBackfill(t *testing.T) {
	store := newFakeStore()
	store.queryHits[vectorstore.CollectionProducts] = []types.SearchHit{
		productHit("p1"), productHit("p2"),
	}
	store.samples[vectorstore.CollectionProducts] = []types.SearchHit{
		productHit("p1"), // already present, must be skipped
		productHit("r1"), productHit("r2"), productHit("r3"), productHit("r4"),
	}

	o := newTestOrchestrator(t, store, failingLLM())
	res, err := o.HandleQuery(context.Background(), types.QueryRequest{
		Text:       "obscure niche query",
		Categories: []string{"products"},
	})
	require.NoError(t, err)

	idx := -1
	for i, c := range res.Categories {
		if c.Name == "products" {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0)

	items := res.Categories[idx].Items
	require.GreaterOrEqual(t, len(items), 5)

	backfilled := 0
	for _, item := range items {
		if item.Backfill {
			backfilled++
			assert.False(t, item.Personalized)
		}
	}
	assert.Equal(t, 3, backfilled, "two real matches plus three padding items")
}

func TestRenamedGroupsDoNotTriggerBackfill(t *testing.T) {
	store := newFakeStore()
	store.queryHits[vectorstore.CollectionProducts] = []types.SearchHit{
		productHit("p1"), productHit("p2"), productHit("p3"),
		productHit("p4"), productHit("p5"), productHit("p6"),
	}
	store.samples[vectorstore.CollectionProducts] = []types.SearchHit{
		productHit("r1"), productHit("r2"), productHit("r3"),
	}

	// The organizer assigns every item but keeps none of the requested
	// category names.
	client := llmFunc(func(_ context.Context, req llm.Request) (string, error) {
		return `{"categories": [
			{"name": "Statement pieces", "item_ids": ["p1", "p2", "p3"]},
			{"name": "Everyday ceramics", "item_ids": ["p4", "p5", "p6"]}
		], "confidence": 0.9}`, nil
	})

	o := newTestOrchestrator(t, store, client)
	res, err := o.HandleQuery(context.Background(), types.QueryRequest{
		Text:       "ceramics",
		Categories: []string{"products"},
	})
	require.NoError(t, err)

	// Six product items already satisfy the floor regardless of group
	// names, so no padding group appears and nothing is backfilled.
	for _, c := range res.Categories {
		assert.NotEqual(t, "products", c.Name)
		for _, item := range c.Items {
			assert.False(t, item.Backfill)
		}
	}
}

func TestUnknownCategoriesAreSkipped(t *testing.T) {
	store := newFakeStore()
	store.queryHits[vectorstore.CollectionProducts] = []types.SearchHit{productHit("p1")}

	o := newTestOrchestrator(t, store, failingLLM())
	res, err := o.HandleQuery(context.Background(), types.QueryRequest{
		Text:       "vases",
		Categories: []string{"products", "orders"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1", res.Metadata["categories_requested"])

	_, err = o.HandleQuery(context.Background(), types.QueryRequest{
		Text:       "vases",
		Categories: []string{"orders"},
	})
	assert.Error(t, err, "nothing searchable left after dropping unknown categories")
}

func TestRecordFeedbackRejectsBadRating(t *testing.T) {
	o := newTestOrchestrator(t, newFakeStore(), failingLLM())
	_, err := o.RecordFeedback(context.Background(), types.Feedback{Query: "q", Rating: 0})
	assert.Error(t, err)
	_, err = o.RecordFeedback(context.Background(), types.Feedback{Query: "q", Rating: 6})
	assert.Error(t, err)
}

func TestRecordFeedbackExtractsTruths(t *testing.T) {
	store := newFakeStore()
	client := llmFunc(func(context.Context, llm.Request) (string, error) {
		return `{"patterns": [{"pattern": "user prefers muted palettes", "type": "user_preference", "confidence": 0.7}]}`, nil
	})

	o := newTestOrchestrator(t, store, client)
	result, err := o.RecordFeedback(context.Background(), types.Feedback{
		UserID:   "u1",
		Query:    "colorful abstract prints",
		Response: "showed muted landscape prints",
		Rating:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TruthsExtracted)
	assert.NotEmpty(t, store.upserted[vectorstore.CollectionUserTruths])

	require.Len(t, store.upserted[vectorstore.CollectionFeedback], 1)
	saved := store.upserted[vectorstore.CollectionFeedback][0]
	assert.Equal(t, "2", saved.Metadata["rating"])
	assert.Equal(t, "u1", saved.Metadata["user_id"])
}

func TestRecordFeedbackSurvivesLLMOutage(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(t, store, failingLLM())

	result, err := o.RecordFeedback(context.Background(), types.Feedback{
		UserID: "u1",
		Query:  "minimalist prints",
		Rating: 4,
	})
	require.NoError(t, err, "extraction failure must not reject the rating")
	assert.Zero(t, result.TruthsExtracted)

	// The raw rating is on disk and tagged for a later discovery crawl.
	require.Len(t, store.upserted[vectorstore.CollectionFeedback], 1)
	assert.Contains(t, store.upserted[vectorstore.CollectionFeedback][0].Content, "rating 4/5")
	assert.Contains(t, discovery.DefaultConfig().TrackedCollections, vectorstore.CollectionFeedback)
}

func TestRecordFeedbackFailsWhenWriteFails(t *testing.T) {
	store := newFakeStore()
	store.upsertErr[vectorstore.CollectionFeedback] = fmt.Errorf("disk full")

	o := newTestOrchestrator(t, store, failingLLM())
	_, err := o.RecordFeedback(context.Background(), types.Feedback{Query: "q", Rating: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persisting feedback")
}

func TestHealthReport(t *testing.T) {
	store := newFakeStore()
	store.counts[vectorstore.CollectionBehavioralTruths] = 12

	o := newTestOrchestrator(t, store, failingLLM())
	report := o.Health(context.Background())

	assert.True(t, report.VectorStoreOK)
	assert.True(t, report.LLMOk)
	require.Len(t, report.Collections, len(vectorstore.TruthCollections()))
	for _, c := range report.Collections {
		assert.True(t, c.Reachable)
		if c.Collection == vectorstore.CollectionBehavioralTruths {
			assert.Equal(t, 12, c.Count)
		}
	}
}
