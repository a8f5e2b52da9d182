package truth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oaf-platform/leo/internal/vectorstore"
)

func docBatch(n int) []vectorstore.Document {
	docs := make([]vectorstore.Document, n)
	for i := range docs {
		docs[i] = vectorstore.Document{
			ID:       fmt.Sprintf("doc-%d", i),
			Content:  "user browsed blue abstract paintings for twenty minutes",
			Metadata: map[string]string{"collection": "products"},
		}
	}
	return docs
}

func TestExtractPersistsAcceptedPatterns(t *testing.T) {
	store := newMemStore()
	seen := NewSeenSet(100)
	client := &scriptedLLM{responses: []string{
		`{"patterns": [
			{"pattern": "prefers blue abstract art", "type": "user_preference", "confidence": 0.8},
			{"pattern": "browses in long sessions", "type": "behavioral_pattern", "confidence": 0.6}
		]}`,
	}}

	e := NewExtractor(client, NewStore(store), seen, ExtractorConfig{Model: "llama3.1"})
	result := e.Extract(context.Background(), docBatch(1), "browsing session")

	assert.Equal(t, 2, result.TruthsExtracted)
	assert.Equal(t, 1, result.DocumentsProcessed)
	assert.Equal(t, 1, store.docCount(vectorstore.CollectionUserTruths))
	assert.Equal(t, 1, store.docCount(vectorstore.CollectionBehavioralTruths))
	assert.True(t, seen.Contains("doc-0"))
}

func TestExtractLLMFailureLeavesDocumentsRetryable(t *testing.T) {
	store := newMemStore()
	seen := NewSeenSet(100)
	client := &scriptedLLM{err: errors.New("status 500")}

	e := NewExtractor(client, NewStore(store), seen, ExtractorConfig{})
	result := e.Extract(context.Background(), docBatch(5), "")

	assert.Equal(t, 0, result.TruthsExtracted)
	assert.Equal(t, 5, result.DocumentsProcessed)
	assert.Equal(t, 0, seen.Len(), "failed documents must not enter the dedup set")
}

func TestExtractUnparseableResponseIsNoTruths(t *testing.T) {
	store := newMemStore()
	seen := NewSeenSet(100)
	client := &scriptedLLM{responses: []string{"I see no patterns worth reporting here."}}

	e := NewExtractor(client, NewStore(store), seen, ExtractorConfig{})
	result := e.Extract(context.Background(), docBatch(1), "")

	assert.Equal(t, 0, result.TruthsExtracted)
	assert.Equal(t, 1, result.DocumentsProcessed)
	// The iteration itself succeeded, so the document is not retried.
	assert.True(t, seen.Contains("doc-0"))
}

func TestExtractDropsLowConfidence(t *testing.T) {
	store := newMemStore()
	client := &scriptedLLM{responses: []string{
		`{"patterns": [
			{"pattern": "weak hunch", "type": "behavioral_pattern", "confidence": 0.29},
			{"pattern": "solid pattern", "type": "behavioral_pattern", "confidence": 0.3}
		]}`,
	}}

	e := NewExtractor(client, NewStore(store), NewSeenSet(100), ExtractorConfig{})
	result := e.Extract(context.Background(), docBatch(1), "")

	assert.Equal(t, 1, result.TruthsExtracted)
	assert.Equal(t, 1, store.docCount(vectorstore.CollectionBehavioralTruths))
}

func TestExtractUnknownTypeDefaultsToBehavioral(t *testing.T) {
	store := newMemStore()
	client := &scriptedLLM{responses: []string{
		`{"patterns": [{"pattern": "odd pattern", "type": "astrological", "confidence": 0.7}]}`,
	}}

	e := NewExtractor(client, NewStore(store), NewSeenSet(100), ExtractorConfig{})
	e.Extract(context.Background(), docBatch(1), "")

	assert.Equal(t, 1, store.docCount(vectorstore.CollectionBehavioralTruths))
}

func TestExtractStoreFailureKeepsDocumentRetryable(t *testing.T) {
	store := newMemStore()
	store.upsertErr = errors.New("collection locked")
	seen := NewSeenSet(100)
	client := &scriptedLLM{responses: []string{
		`{"patterns": [{"pattern": "p", "type": "behavioral_pattern", "confidence": 0.9}]}`,
	}}

	e := NewExtractor(client, NewStore(store), seen, ExtractorConfig{})
	result := e.Extract(context.Background(), docBatch(1), "")

	assert.Equal(t, 0, result.TruthsExtracted)
	assert.False(t, seen.Contains("doc-0"))
}

func TestExtractSkipsAlreadySeen(t *testing.T) {
	store := newMemStore()
	seen := NewSeenSet(100)
	seen.Add("doc-0")
	client := &scriptedLLM{responses: []string{`{"patterns": []}`}}

	e := NewExtractor(client, NewStore(store), seen, ExtractorConfig{})
	result := e.Extract(context.Background(), docBatch(1), "")

	require.Equal(t, 0, result.DocumentsProcessed)
	assert.Equal(t, 0, client.callCount(), "seen documents never reach the LLM")
}

func TestSeenSetBounded(t *testing.T) {
	s := NewSeenSet(3)
	for i := 0; i < 5; i++ {
		s.Add(fmt.Sprintf("doc-%d", i))
	}
	assert.Equal(t, 3, s.Len())
	assert.False(t, s.Contains("doc-0"), "oldest ids are forgotten at capacity")
	assert.False(t, s.Contains("doc-1"))
	assert.True(t, s.Contains("doc-4"))
}
