// Package vectorstore provides the client interface to the vector-similarity
// store backing Leo's semantic search and truth persistence.
//
// The store is an external collaborator: Leo consumes named collections with
// upsert / nearest-neighbor / get / count operations and owns no schema.
// Similarity is reported as 1 - distance.
package vectorstore

import (
	"context"

	"github.com/oaf-platform/leo/internal/types"
)

// Content collections searched on behalf of customers.
const (
	CollectionProducts  = "products"
	CollectionArtists   = "artists"
	CollectionPromoters = "promoters"
	CollectionArticles  = "articles"
	CollectionEvents    = "events"

	// CollectionUserProfiles holds the nightly-computed preference
	// profile documents, keyed by deterministic user id.
	CollectionUserProfiles = "user_profiles"

	// CollectionFeedback holds explicit user ratings. Written on
	// ingestion so a rating survives an LLM outage, and crawled by the
	// discovery scheduler so unprocessed feedback gets extracted later.
	CollectionFeedback = "feedback"
)

// Truth collections, one per truth type.
const (
	CollectionUserTruths       = "user_truths"
	CollectionBehavioralTruths = "behavioral_truths"
	CollectionContentTruths    = "content_truths"
	CollectionTemporalTruths   = "temporal_truths"
	CollectionPatternTruths    = "pattern_truths"
)

// ContentCollections lists the customer-facing collections in fan-out order.
func ContentCollections() []string {
	return []string{
		CollectionProducts,
		CollectionArtists,
		CollectionPromoters,
		CollectionArticles,
		CollectionEvents,
	}
}

// TruthCollections lists every collection that stores truths.
func TruthCollections() []string {
	return []string{
		CollectionUserTruths,
		CollectionBehavioralTruths,
		CollectionContentTruths,
		CollectionTemporalTruths,
		CollectionPatternTruths,
	}
}

// Filter is a structured predicate applied at the store's query layer.
// Terms are ANDed equality checks on metadata fields. Applying filters at
// the store (not post-filtering) is the safety boundary that keeps
// non-public records structurally unreachable.
type Filter map[string]string

// Document is a stored record: text plus flat metadata.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Store is the vector-similarity store client surface.
type Store interface {
	// Upsert writes documents by id into a collection.
	Upsert(ctx context.Context, collection string, docs []Document) error

	// Query runs a nearest-neighbor search over the collection. A nil
	// filter matches everything; a non-nil filter is evaluated by the
	// store before results are returned.
	Query(ctx context.Context, collection, text string, limit int, filter Filter) ([]types.SearchHit, error)

	// Sample returns documents from the collection without a query text,
	// used for sparse-category backfill.
	Sample(ctx context.Context, collection string, limit int, filter Filter) ([]types.SearchHit, error)

	// Get fetches a single document by id, nil if absent.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Count returns the number of documents in a collection.
	Count(ctx context.Context, collection string) (int, error)

	// Healthy probes store reachability.
	Healthy(ctx context.Context) error
}
