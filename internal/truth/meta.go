package truth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oaf-platform/leo/internal/llm"
	"github.com/oaf-platform/leo/internal/types"
)

const metaPrompt = `These marketplace behavior patterns were discovered independently:

%s

Identify correlations ACROSS these patterns (meta-patterns that connect two
or more of them). Respond with ONLY a JSON object:
{"correlations": [{"pattern": "<one sentence cross-pattern description>", "confidence": <0.0-1.0>}]}

Return {"correlations": []} if the patterns are unrelated.`

type metaResponse struct {
	Correlations []candidatePattern `json:"correlations"`
}

// maxMetaPerBucket caps how many meta-truths one bucket may yield per pass.
const maxMetaPerBucket = 2

// minBucketSize is the smallest group worth sending for correlation.
const minBucketSize = 3

// MinerConfig tunes meta-truth mining.
type MinerConfig struct {
	Model   string
	Timeout time.Duration // per-bucket LLM call bound (default 60s)
}

// Miner looks for correlations among already-discovered truths and writes
// the accepted meta-patterns back to the truth store.
type Miner struct {
	llm   llm.Client
	store *Store
	cfg   MinerConfig
}

// NewMiner creates a miner.
func NewMiner(client llm.Client, store *Store, cfg MinerConfig) *Miner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Miner{llm: client, store: store, cfg: cfg}
}

// Mine groups truths into buckets, asks the model for cross-truth
// correlations in each bucket of three or more, and persists accepted
// meta-truths. Returns how many were stored. Failures are logged and the
// remaining buckets continue.
func (m *Miner) Mine(ctx context.Context, truths []types.Truth) int {
	buckets := bucketTruths(truths)
	stored := 0

	for name, group := range buckets {
		if len(group) < minBucketSize {
			continue
		}
		stored += m.mineBucket(ctx, name, group)
	}
	return stored
}

func (m *Miner) mineBucket(ctx context.Context, bucket string, group []types.Truth) int {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	text, err := m.llm.Generate(callCtx, llm.Request{
		Model:  m.cfg.Model,
		Prompt: fmt.Sprintf(metaPrompt, formatBucket(group)),
		Options: llm.Options{
			Temperature: 0.3,
			MaxTokens:   1024,
		},
	})
	if err != nil {
		slog.Debug("meta mining call failed", "bucket", bucket, "error", err)
		return 0
	}

	resp := llm.ParseOrFallback(text, metaResponse{}, "meta mining")

	sourceIDs := make([]string, 0, len(group))
	for _, t := range group {
		sourceIDs = append(sourceIDs, t.ID)
	}

	stored := 0
	for _, c := range resp.Correlations {
		if stored >= maxMetaPerBucket {
			break
		}
		if strings.TrimSpace(c.Pattern) == "" || c.Confidence < MinMetaConfidence {
			continue
		}

		meta := &types.Truth{
			Content:    c.Pattern,
			Type:       types.TruthPatternCorrelation,
			Confidence: c.Confidence,
			Source:     types.SourceMetaAnalysis,
			Metadata: map[string]string{
				"bucket":        bucket,
				"source_truths": strings.Join(sourceIDs, ","),
			},
		}
		if err := m.store.Save(ctx, meta); err != nil {
			slog.Warn("meta truth write failed", "bucket", bucket, "error", err)
			continue
		}
		stored++
	}

	if stored > 0 {
		slog.Info("meta truths mined", "bucket", bucket, "stored", stored)
	}
	return stored
}

// bucketTruths groups truths by keyword heuristics on their type. The
// exact bucketing is a policy choice, not a contract; what matters is that
// related truths land together often enough for correlation to find
// something.
func bucketTruths(truths []types.Truth) map[string][]types.Truth {
	buckets := make(map[string][]types.Truth)
	for _, t := range truths {
		typeName := string(t.Type)
		switch {
		case strings.Contains(typeName, "user") || strings.Contains(typeName, "behavioral"):
			buckets["behavior"] = append(buckets["behavior"], t)
		case strings.Contains(typeName, "content") || strings.Contains(typeName, "correlation"):
			buckets["content"] = append(buckets["content"], t)
		case strings.Contains(typeName, "temporal"):
			buckets["temporal"] = append(buckets["temporal"], t)
		default:
			buckets["other"] = append(buckets["other"], t)
		}
	}
	return buckets
}

func formatBucket(group []types.Truth) string {
	var b strings.Builder
	for i, t := range group {
		fmt.Fprintf(&b, "%d. [%s, confidence %.2f] %s\n", i+1, t.Type, t.Confidence, t.Content)
	}
	return b.String()
}
