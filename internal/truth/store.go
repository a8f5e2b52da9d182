// Package truth implements the truth extraction pipeline and its
// supporting pieces: collection routing, the processed-document dedup set,
// the revalidation cache, and meta-truth mining.
//
// A "truth" is a behavioral pattern mined from interaction data. Truths are
// append-only: revalidation downgrades them in a local validity cache, never
// deletes them from the store.
package truth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oaf-platform/leo/internal/types"
	"github.com/oaf-platform/leo/internal/vectorstore"
)

// Confidence floors below which candidate truths are dropped.
const (
	MinExtractionConfidence = 0.3
	MinMetaConfidence       = 0.4
)

// typeCollections routes truth types to their collections. Unmapped types
// default to behavioral_truths.
var typeCollections = map[types.TruthType]string{
	types.TruthUserPreference:     vectorstore.CollectionUserTruths,
	types.TruthBehavioralPattern:  vectorstore.CollectionBehavioralTruths,
	types.TruthContentCorrelation: vectorstore.CollectionContentTruths,
	types.TruthTemporalPattern:    vectorstore.CollectionTemporalTruths,
	types.TruthPatternCorrelation: vectorstore.CollectionPatternTruths,
}

// CollectionForType returns the collection a truth type persists to.
func CollectionForType(t types.TruthType) string {
	if c, ok := typeCollections[t]; ok {
		return c
	}
	return vectorstore.CollectionBehavioralTruths
}

// Store persists truths to their collections and reads them back for
// validation and mining.
type Store struct {
	vs vectorstore.Store
}

// NewStore wraps the vector store.
func NewStore(vs vectorstore.Store) *Store {
	return &Store{vs: vs}
}

// Save writes one truth, assigning an id if the store has not. The caller
// is responsible for confidence floors.
func (s *Store) Save(ctx context.Context, t *types.Truth) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid truth: %w", err)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	meta := map[string]string{
		"truth_type": string(t.Type),
		"confidence": fmt.Sprintf("%.3f", t.Confidence),
		"source":     string(t.Source),
		"created_at": t.CreatedAt.Format(time.RFC3339),
	}
	for k, v := range t.Metadata {
		meta[k] = v
	}

	collection := CollectionForType(t.Type)
	err := s.vs.Upsert(ctx, collection, []vectorstore.Document{{
		ID:       t.ID,
		Content:  t.Content,
		Metadata: meta,
	}})
	if err != nil {
		return fmt.Errorf("persisting truth to %s: %w", collection, err)
	}
	return nil
}

// All returns up to perCollection truths from every truth collection.
// Collections that fail to read are skipped; mining and validation are
// best-effort.
func (s *Store) All(ctx context.Context, perCollection int) ([]types.Truth, error) {
	var out []types.Truth
	var lastErr error
	for _, collection := range vectorstore.TruthCollections() {
		hits, err := s.vs.Sample(ctx, collection, perCollection, nil)
		if err != nil {
			lastErr = err
			continue
		}
		for _, h := range hits {
			out = append(out, truthFromHit(h))
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, fmt.Errorf("reading truths: %w", lastErr)
	}
	return out, nil
}

// Counts reports per-collection truth counts for the health check.
func (s *Store) Counts(ctx context.Context) []types.CollectionHealth {
	out := make([]types.CollectionHealth, 0, len(vectorstore.TruthCollections()))
	for _, collection := range vectorstore.TruthCollections() {
		health := types.CollectionHealth{Collection: collection, Reachable: true}
		n, err := s.vs.Count(ctx, collection)
		if err != nil {
			health.Reachable = false
			health.Error = err.Error()
		} else {
			health.Count = n
		}
		out = append(out, health)
	}
	return out
}

func truthFromHit(h types.SearchHit) types.Truth {
	t := types.Truth{
		ID:       h.ID,
		Content:  h.Content,
		Type:     types.TruthType(h.Metadata["truth_type"]),
		Source:   types.TruthSource(h.Metadata["source"]),
		Metadata: h.Metadata,
	}
	fmt.Sscanf(h.Metadata["confidence"], "%f", &t.Confidence)
	if ts, err := time.Parse(time.RFC3339, h.Metadata["created_at"]); err == nil {
		t.CreatedAt = ts
	}
	return t
}
