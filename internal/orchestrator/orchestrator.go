// Package orchestrator coordinates a query end to end: profile resolution,
// parallel safety-filtered similarity searches, boost ranking, LLM result
// organization with a deterministic fallback, and sparse-category backfill.
//
// Every step degrades independently. A request fails outright only when
// the similarity store is unreachable for every requested category.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oaf-platform/leo/internal/discovery"
	"github.com/oaf-platform/leo/internal/llm"
	"github.com/oaf-platform/leo/internal/prefs"
	"github.com/oaf-platform/leo/internal/safety"
	"github.com/oaf-platform/leo/internal/scoring"
	"github.com/oaf-platform/leo/internal/truth"
	"github.com/oaf-platform/leo/internal/types"
	"github.com/oaf-platform/leo/internal/vectorstore"
)

// Config tunes per-request behavior.
type Config struct {
	// Model used for result organization prompts.
	Model string
	// SearchLimit is the per-collection similarity fan-out size.
	SearchLimit int
	// MinCategorySize is the backfill floor: requested categories are
	// padded to at least this many items (default 5).
	MinCategorySize int
	// OrganizeTimeout bounds the LLM organization call (default 15s).
	OrganizeTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Model:           "llama3.1",
		SearchLimit:     20,
		MinCategorySize: 5,
		OrganizeTimeout: 15 * time.Second,
	}
}

// Deps holds the orchestrator's collaborators.
type Deps struct {
	Store     vectorstore.Store
	Client    llm.Client
	Resolver  *prefs.Resolver
	Engine    *scoring.Engine
	Extractor *truth.Extractor
	Truths    *truth.Store
	Scheduler *discovery.Scheduler
}

// Orchestrator is the subsystem's exposed surface.
type Orchestrator struct {
	cfg  Config
	deps Deps
}

// New creates an orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if deps.Resolver == nil || deps.Engine == nil {
		return nil, fmt.Errorf("resolver and scoring engine are required")
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 20
	}
	if cfg.MinCategorySize <= 0 {
		cfg.MinCategorySize = 5
	}
	if cfg.OrganizeTimeout <= 0 {
		cfg.OrganizeTimeout = 15 * time.Second
	}
	return &Orchestrator{cfg: cfg, deps: deps}, nil
}

// categorySearch is the result of one collection's similarity fan-out.
type categorySearch struct {
	category string
	hits     []types.SearchHit
	err      error
}

// HandleQuery runs the full query pipeline and returns categorized, ranked
// results. It returns an error only when every requested category's search
// fails.
func (o *Orchestrator) HandleQuery(ctx context.Context, req types.QueryRequest) (*types.OrganizedResults, error) {
	categories := o.requestedCategories(req.Categories)
	if len(categories) == 0 {
		return nil, fmt.Errorf("no searchable categories in request")
	}

	profile := o.deps.Resolver.Resolve(ctx, req.UserID)

	searches := o.fanOut(ctx, req.Text, categories)

	failed := 0
	var merged []types.SearchHit
	seen := make(map[string]bool)
	for _, s := range searches {
		if s.err != nil {
			failed++
			slog.Warn("category search failed, degrading", "category", s.category, "error", s.err)
			continue
		}
		for _, h := range s.hits {
			if seen[h.ID] {
				continue
			}
			seen[h.ID] = true
			merged = append(merged, h)
		}
	}
	if failed == len(searches) {
		return nil, fmt.Errorf("similarity store unreachable for all %d requested categories", len(searches))
	}

	scored := o.deps.Engine.ScoreAndSort(merged, profile)

	organized := o.organize(ctx, req.Text, scored, profile)
	o.backfill(ctx, organized, categories, seen)
	o.applyLimit(organized, req.Limit)

	organized.Metadata["results"] = strconv.Itoa(len(scored))
	organized.Metadata["categories_requested"] = strconv.Itoa(len(categories))
	organized.Metadata["categories_failed"] = strconv.Itoa(failed)
	return organized, nil
}

// requestedCategories normalizes the request's category list. Unknown
// names are logged and dropped; "all" or an empty list expands to the
// full searchable set.
func (o *Orchestrator) requestedCategories(requested []string) []string {
	if len(requested) == 0 {
		return safety.Categories()
	}

	var out []string
	for _, c := range requested {
		if c == safety.CategoryAll {
			return safety.Categories()
		}
		if !safety.Known(c) {
			slog.Warn("unknown category in request, skipping", "category", c)
			continue
		}
		out = append(out, c)
	}
	return out
}

// fanOut runs one safety-filtered similarity search per category in
// parallel and collects all outcomes.
func (o *Orchestrator) fanOut(ctx context.Context, text string, categories []string) []categorySearch {
	results := make([]categorySearch, len(categories))

	var wg sync.WaitGroup
	for i, category := range categories {
		wg.Add(1)
		go func(i int, category string) {
			defer wg.Done()
			hits, err := o.deps.Store.Query(ctx, safety.CollectionFor(category), text,
				o.cfg.SearchLimit, safety.FilterFor(category))
			results[i] = categorySearch{category: category, hits: hits, err: err}
		}(i, category)
	}
	wg.Wait()
	return results
}

// backfill pads each requested category whose collection contributed fewer
// than MinCategorySize items using a broad random sample from that
// collection. Membership is counted by originating collection across all
// result groups, so an LLM organizer that renames groups does not trigger
// spurious padding. Backfilled items are flagged non-personalized.
func (o *Orchestrator) backfill(ctx context.Context, organized *types.OrganizedResults, categories []string, seen map[string]bool) {
	byCollection := make(map[string]int)
	for _, c := range organized.Categories {
		for _, item := range c.Items {
			byCollection[item.Hit.Collection]++
		}
	}

	for _, category := range categories {
		need := o.cfg.MinCategorySize - byCollection[safety.CollectionFor(category)]
		if need <= 0 {
			continue
		}

		hits, err := o.deps.Store.Sample(ctx, safety.CollectionFor(category),
			need+len(seen), safety.FilterFor(category))
		if err != nil {
			slog.Warn("backfill sample failed", "category", category, "error", err)
			continue
		}

		var padding []types.ScoredResult
		for _, h := range hits {
			if seen[h.ID] {
				continue
			}
			seen[h.ID] = true
			padding = append(padding, types.ScoredResult{
				Hit:          h,
				BoostDetails: map[string]float64{},
				Personalized: false,
				Backfill:     true,
			})
			if len(padding) == need {
				break
			}
		}
		if len(padding) == 0 {
			continue
		}

		idx := categoryIndex(organized, category)
		if idx < 0 {
			organized.Categories = append(organized.Categories, types.ResultCategory{Name: category})
			idx = len(organized.Categories) - 1
		}
		organized.Categories[idx].Items = append(organized.Categories[idx].Items, padding...)
		slog.Debug("backfilled sparse category", "category", category, "added", len(padding))
	}
}

// applyLimit caps each category's item list at the request limit.
func (o *Orchestrator) applyLimit(organized *types.OrganizedResults, limit int) {
	if limit <= 0 {
		return
	}
	for i := range organized.Categories {
		if len(organized.Categories[i].Items) > limit {
			organized.Categories[i].Items = organized.Categories[i].Items[:limit]
		}
	}
}

func categoryIndex(organized *types.OrganizedResults, name string) int {
	for i, c := range organized.Categories {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// RecordFeedback persists an explicit rating as a document and runs truth
// extraction over it. The document is written to the feedback collection
// before the LLM is involved, so an outage never loses the rating: the
// unprocessed document is not in the seen set and the discovery crawl
// picks it up on a later pass.
func (o *Orchestrator) RecordFeedback(ctx context.Context, fb types.Feedback) (truth.Result, error) {
	if fb.Rating < 1 || fb.Rating > 5 {
		return truth.Result{}, fmt.Errorf("rating must be 1-5, got %d", fb.Rating)
	}
	if fb.At.IsZero() {
		fb.At = time.Now()
	}

	doc := vectorstore.Document{
		ID: "feedback_" + uuid.New().String(),
		Content: fmt.Sprintf("User feedback (rating %d/5)\nQuery: %s\nResponse shown: %s",
			fb.Rating, fb.Query, fb.Response),
		Metadata: map[string]string{
			"record_type": "feedback",
			"user_id":     fb.UserID,
			"rating":      strconv.Itoa(fb.Rating),
			"created_at":  fb.At.UTC().Format(time.RFC3339),
		},
	}

	if err := o.deps.Store.Upsert(ctx, vectorstore.CollectionFeedback, []vectorstore.Document{doc}); err != nil {
		return truth.Result{}, fmt.Errorf("persisting feedback: %w", err)
	}

	if o.deps.Extractor == nil {
		return truth.Result{}, nil
	}
	result := o.deps.Extractor.Extract(ctx, []vectorstore.Document{doc}, "explicit user feedback")
	return result, nil
}

// RecordInteraction applies a positive in-session signal to the user's
// cached profile.
func (o *Orchestrator) RecordInteraction(interaction types.Interaction) {
	o.deps.Resolver.ApplySessionSignal(interaction)
}

// StartDiscovery starts the background discovery scheduler.
func (o *Orchestrator) StartDiscovery(ctx context.Context) discovery.StartResult {
	if o.deps.Scheduler == nil {
		return discovery.StartResult{Started: false, Message: "discovery not configured"}
	}
	return o.deps.Scheduler.Start(ctx)
}

// StopDiscovery stops the scheduler from any state.
func (o *Orchestrator) StopDiscovery() {
	if o.deps.Scheduler != nil {
		o.deps.Scheduler.Stop()
	}
}

// DiscoveryStatus returns the scheduler snapshot.
func (o *Orchestrator) DiscoveryStatus() discovery.Snapshot {
	if o.deps.Scheduler == nil {
		return discovery.Snapshot{State: discovery.StateStopped}
	}
	return o.deps.Scheduler.Status()
}

// Health reports store and LLM reachability plus per-collection truth
// counts.
func (o *Orchestrator) Health(ctx context.Context) types.HealthReport {
	report := types.HealthReport{CheckedAt: time.Now()}

	report.VectorStoreOK = o.deps.Store.Healthy(ctx) == nil
	report.LLMOk = o.deps.Client.Healthy(ctx) == nil

	for _, collection := range vectorstore.TruthCollections() {
		ch := types.CollectionHealth{Collection: collection}
		count, err := o.deps.Store.Count(ctx, collection)
		if err != nil {
			ch.Error = err.Error()
		} else {
			ch.Reachable = true
			ch.Count = count
		}
		report.Collections = append(report.Collections, ch)
	}
	return report
}
