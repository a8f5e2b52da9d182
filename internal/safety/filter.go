// Package safety maps requested content categories to the mandatory
// query-time filter predicates that keep non-public records structurally
// unreachable.
//
// The predicate is the sole safety boundary: it must be applied at the
// vector store's query layer on every customer-facing search. Post-filtering
// is forbidden: it would fetch private data only to discard it.
package safety

import (
	"log/slog"

	"github.com/oaf-platform/leo/internal/vectorstore"
)

// Category names accepted by the query surface.
const (
	CategoryProducts  = "products"
	CategoryArtists   = "artists"
	CategoryPromoters = "promoters"
	CategoryArticles  = "articles"
	CategoryEvents    = "events"
	CategoryAll       = "all"
)

// filters is the closed lookup table. Every predicate constrains record
// state so drafts, deleted records, and order/PII documents never match,
// regardless of query text.
var filters = map[string]vectorstore.Filter{
	CategoryProducts:  {"record_type": "product", "visibility": "public", "status": "active"},
	CategoryArtists:   {"record_type": "artist_profile", "visibility": "public", "status": "active"},
	CategoryPromoters: {"record_type": "promoter_profile", "visibility": "public", "status": "active"},
	CategoryArticles:  {"record_type": "article", "visibility": "public", "status": "published"},
	CategoryEvents:    {"record_type": "event", "visibility": "public", "status": "active"},
	CategoryAll:       {"visibility": "public"},
}

// collections maps a category to the collection it searches.
var collections = map[string]string{
	CategoryProducts:  vectorstore.CollectionProducts,
	CategoryArtists:   vectorstore.CollectionArtists,
	CategoryPromoters: vectorstore.CollectionPromoters,
	CategoryArticles:  vectorstore.CollectionArticles,
	CategoryEvents:    vectorstore.CollectionEvents,
}

// FilterFor returns the query-layer predicate for a category. Unknown
// categories get an empty predicate and a warning, a configuration error,
// never a request failure.
func FilterFor(category string) vectorstore.Filter {
	f, ok := filters[category]
	if !ok {
		slog.Warn("no safety filter for category, using empty predicate", "category", category)
		return vectorstore.Filter{}
	}
	// Copy so callers can't mutate the table.
	out := make(vectorstore.Filter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// CollectionFor returns the vector-store collection behind a category, or
// "" for unknown categories.
func CollectionFor(category string) string {
	return collections[category]
}

// Categories returns the closed set of searchable categories (excluding
// the "all" pseudo-category) in fan-out order.
func Categories() []string {
	return []string{
		CategoryProducts,
		CategoryArtists,
		CategoryPromoters,
		CategoryArticles,
		CategoryEvents,
	}
}

// Known reports whether the category is in the closed set.
func Known(category string) bool {
	_, ok := filters[category]
	return ok
}
