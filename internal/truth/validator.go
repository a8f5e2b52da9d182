package truth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oaf-platform/leo/internal/llm"
	"github.com/oaf-platform/leo/internal/types"
)

const validationPrompt = `A previously discovered marketplace behavior pattern is being re-checked:

"%s"

Is this pattern still true given current platform behavior? Respond with ONLY a JSON object:
{"still_valid": <true|false>, "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}`

type validationResponse struct {
	StillValid bool    `json:"still_valid"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ValidatorConfig tunes revalidation.
type ValidatorConfig struct {
	Model string
	// MaxTruthAge is how long a validity record stays fresh (default 7d).
	MaxTruthAge time.Duration
	// ValidityThreshold is the confidence below which an explicit "no
	// longer valid" answer downgrades the truth (default 0.3).
	ValidityThreshold float64
	// Timeout bounds each LLM call (default 15s).
	Timeout time.Duration
}

// Validator re-tests stored truths for continued validity.
type Validator struct {
	llm   llm.Client
	cache *ValidityCache
	cfg   ValidatorConfig
}

// NewValidator creates a validator sharing the given validity cache.
func NewValidator(client llm.Client, cache *ValidityCache, cfg ValidatorConfig) *Validator {
	if cfg.MaxTruthAge <= 0 {
		cfg.MaxTruthAge = 7 * 24 * time.Hour
	}
	if cfg.ValidityThreshold <= 0 {
		cfg.ValidityThreshold = 0.3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Validator{llm: client, cache: cache, cfg: cfg}
}

// ValidateDue revalidates every truth whose record is missing or stale,
// returning how many were checked. Truths checked within MaxTruthAge are
// skipped without an LLM call.
func (v *Validator) ValidateDue(ctx context.Context, truths []types.Truth) int {
	checked := 0
	for _, t := range truths {
		if t.ID == "" {
			continue
		}
		if !v.cache.NeedsCheck(t.ID, v.cfg.MaxTruthAge) {
			continue
		}
		v.revalidate(ctx, t)
		checked++
	}
	return checked
}

// revalidate asks the model whether the pattern still holds. The contract
// is conservative: a truth is downgraded only when the model explicitly
// says it is no longer valid AND its confidence is below the threshold.
// Ambiguous, unreachable, or unparseable responses default to "still
// valid"; evidence is never silently discarded.
func (v *Validator) revalidate(ctx context.Context, t types.Truth) {
	callCtx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	text, err := v.llm.Generate(callCtx, llm.Request{
		Model:  v.cfg.Model,
		Prompt: fmt.Sprintf(validationPrompt, t.Content),
		Options: llm.Options{
			Temperature: 0.1,
			MaxTokens:   256,
		},
	})
	if err != nil {
		slog.Debug("revalidation call failed, keeping truth valid",
			"truth_id", t.ID, "error", err)
		v.cache.Record(t.ID, true, t.Confidence)
		return
	}

	result := llm.Parse[validationResponse](text)
	if !result.OK {
		v.cache.Record(t.ID, true, t.Confidence)
		return
	}

	valid := result.Data.StillValid || result.Data.Confidence >= v.cfg.ValidityThreshold
	if !valid {
		slog.Info("truth downgraded by revalidation",
			"truth_id", t.ID,
			"confidence", result.Data.Confidence,
			"reasoning", result.Data.Reasoning)
	}
	v.cache.Record(t.ID, valid, result.Data.Confidence)
}
