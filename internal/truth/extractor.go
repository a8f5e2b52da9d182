package truth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oaf-platform/leo/internal/llm"
	"github.com/oaf-platform/leo/internal/types"
	"github.com/oaf-platform/leo/internal/vectorstore"
)

const extractionPrompt = `You are analyzing marketplace interaction data to find behavioral patterns.

Document:
%s

Document metadata:
%s

Context: %s

Identify behavioral patterns in this document. Respond with ONLY a JSON object:
{"patterns": [{"pattern": "<one sentence description>", "type": "<user_preference|behavioral_pattern|content_correlation|temporal_pattern>", "confidence": <0.0-1.0>}]}

Return {"patterns": []} if no clear pattern exists. Do not invent patterns.`

// extractionResponse is the JSON shape expected from the model.
type extractionResponse struct {
	Patterns []candidatePattern `json:"patterns"`
}

type candidatePattern struct {
	Pattern    string  `json:"pattern"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Result summarizes one extraction batch.
type Result struct {
	TruthsExtracted    int `json:"truths_extracted"`
	DocumentsProcessed int `json:"documents_processed"`
}

// ExtractorConfig tunes the pipeline.
type ExtractorConfig struct {
	Model string
	// Timeout bounds each LLM call. Batch extraction gets longer than
	// planning prompts (default 60s).
	Timeout time.Duration
}

// Extractor turns batches of documents into persisted truths.
type Extractor struct {
	llm   llm.Client
	store *Store
	seen  *SeenSet
	cfg   ExtractorConfig
}

// NewExtractor creates the pipeline. The seen set is shared with the
// discovery scheduler.
func NewExtractor(client llm.Client, store *Store, seen *SeenSet, cfg ExtractorConfig) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Extractor{llm: client, store: store, seen: seen, cfg: cfg}
}

// Extract runs the pipeline over a document batch. It never returns an
// error: an unreachable endpoint or unparseable response yields zero truths
// for that document, and a per-document store failure is logged and
// skipped. Document ids enter the dedup set only after a fully successful
// iteration (including the store write), so failed documents retry next
// cycle.
func (e *Extractor) Extract(ctx context.Context, docs []vectorstore.Document, hint string) Result {
	result := Result{}

	for _, doc := range docs {
		if e.seen.Contains(doc.ID) {
			continue
		}
		result.DocumentsProcessed++

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		text, err := e.llm.Generate(callCtx, llm.Request{
			Model:  e.cfg.Model,
			Prompt: buildExtractionPrompt(doc, hint),
			Options: llm.Options{
				Temperature: 0.2,
				MaxTokens:   1024,
			},
		})
		cancel()
		if err != nil {
			// Endpoint failure: skip without marking seen so the
			// document is retried next cycle.
			slog.Warn("truth extraction LLM call failed", "doc_id", doc.ID, "error", err)
			continue
		}

		// Parse failure is "no truths found", not an error.
		resp := llm.ParseOrFallback(text, extractionResponse{}, "truth extraction")

		saved, storeFailed := e.saveCandidates(ctx, doc, resp.Patterns)
		if storeFailed {
			continue
		}

		result.TruthsExtracted += saved
		e.seen.Add(doc.ID)
	}

	if result.DocumentsProcessed > 0 {
		slog.Info("truth extraction batch complete",
			"documents", result.DocumentsProcessed,
			"truths", result.TruthsExtracted)
	}
	return result
}

// saveCandidates persists accepted patterns. Returns the number saved and
// whether any store write failed (which keeps the document retryable).
func (e *Extractor) saveCandidates(ctx context.Context, doc vectorstore.Document, candidates []candidatePattern) (int, bool) {
	saved := 0
	for _, c := range candidates {
		if strings.TrimSpace(c.Pattern) == "" {
			continue
		}
		if c.Confidence < MinExtractionConfidence {
			slog.Debug("dropping low-confidence pattern",
				"doc_id", doc.ID, "confidence", c.Confidence)
			continue
		}

		truthType := types.TruthType(c.Type)
		if !truthType.IsValid() {
			slog.Warn("unknown truth type from model, defaulting",
				"type", c.Type, "doc_id", doc.ID)
			truthType = types.TruthBehavioralPattern
		}

		t := &types.Truth{
			Content:    c.Pattern,
			Type:       truthType,
			Confidence: c.Confidence,
			Source:     types.SourceExtraction,
			Metadata: map[string]string{
				"source_document":   doc.ID,
				"source_collection": doc.Metadata["collection"],
			},
		}
		if err := e.store.Save(ctx, t); err != nil {
			slog.Warn("truth store write failed, document stays retryable",
				"doc_id", doc.ID, "error", err)
			return saved, true
		}
		saved++
	}
	return saved, false
}

func buildExtractionPrompt(doc vectorstore.Document, hint string) string {
	var meta strings.Builder
	for k, v := range doc.Metadata {
		fmt.Fprintf(&meta, "%s: %s\n", k, v)
	}
	if hint == "" {
		hint = "general marketplace behavior"
	}
	return fmt.Sprintf(extractionPrompt, doc.Content, meta.String(), hint)
}
