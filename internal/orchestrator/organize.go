package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oaf-platform/leo/internal/llm"
	"github.com/oaf-platform/leo/internal/safety"
	"github.com/oaf-platform/leo/internal/types"
)

// maxOrganizeItems bounds how many ranked results are offered to the LLM
// for organization. Anything past this stays in rank order and is grouped
// by the fallback categorizer.
const maxOrganizeItems = 30

const organizePrompt = `You organize marketplace search results into named categories for display.

The user searched for: %q

Ranked results (best first), one per line as "id | collection | description":
%s

Group the results into 2-5 named categories that would help this shopper.
Keep every category's items in the given rank order. Reference results by id
only. Respond with ONLY a JSON object in this exact shape:

{"categories": [{"name": "...", "item_ids": ["...", "..."]}], "confidence": 0.0}

confidence is your 0-1 confidence in the grouping. Do not invent ids.`

type organizeResponse struct {
	Categories []struct {
		Name    string   `json:"name"`
		ItemIDs []string `json:"item_ids"`
	} `json:"categories"`
	Confidence float64 `json:"confidence"`
}

// organize asks the LLM to group the ranked results into named categories.
// Any failure (call error, timeout, unparseable output, empty grouping)
// falls back to the deterministic collection-keyed categorizer.
func (o *Orchestrator) organize(ctx context.Context, query string, scored []types.ScoredResult, profile *types.PreferenceProfile) *types.OrganizedResults {
	base := &types.OrganizedResults{
		Personalized: profile != nil && profile.Source != types.SourceGlobal,
		Confidence:   profileConfidence(profile),
		Metadata:     map[string]string{},
	}
	if len(scored) == 0 {
		base.Organizer = "fallback"
		return base
	}

	offered := scored
	if len(offered) > maxOrganizeItems {
		offered = offered[:maxOrganizeItems]
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.OrganizeTimeout)
	defer cancel()

	raw, err := o.deps.Client.Generate(callCtx, llm.Request{
		Model:  o.cfg.Model,
		Prompt: fmt.Sprintf(organizePrompt, query, describeResults(offered)),
	})
	if err != nil {
		slog.Warn("organization call failed, using collection fallback", "error", err)
		return fallbackOrganize(base, scored)
	}

	parsed := llm.Parse[organizeResponse](raw)
	if !parsed.OK {
		slog.Warn("organization response unparseable, using collection fallback", "error", parsed.Err)
		return fallbackOrganize(base, scored)
	}

	organized, ok := applyGrouping(base, scored, parsed.Data)
	if !ok {
		return fallbackOrganize(base, scored)
	}
	return organized
}

// applyGrouping maps the LLM's id grouping back onto the scored results.
// Unknown ids are dropped; results the LLM did not mention are appended to
// fallback collection groups so nothing ranked is ever lost.
func applyGrouping(base *types.OrganizedResults, scored []types.ScoredResult, resp organizeResponse) (*types.OrganizedResults, bool) {
	if len(resp.Categories) == 0 {
		return nil, false
	}

	byID := make(map[string]types.ScoredResult, len(scored))
	for _, r := range scored {
		byID[r.Hit.ID] = r
	}

	placed := make(map[string]bool, len(scored))
	for _, c := range resp.Categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		cat := types.ResultCategory{Name: name}
		for _, id := range c.ItemIDs {
			r, ok := byID[id]
			if !ok || placed[id] {
				continue
			}
			placed[id] = true
			cat.Items = append(cat.Items, r)
		}
		if len(cat.Items) > 0 {
			base.Categories = append(base.Categories, cat)
		}
	}
	if len(base.Categories) == 0 {
		return nil, false
	}

	// Sweep up anything the model ignored.
	for _, r := range scored {
		if !placed[r.Hit.ID] {
			appendToCollectionGroup(base, r)
		}
	}

	base.Organizer = "llm"
	base.Confidence = clamp01(resp.Confidence)
	return base, true
}

// fallbackOrganize groups results deterministically by their originating
// collection, preserving rank order within each group.
func fallbackOrganize(base *types.OrganizedResults, scored []types.ScoredResult) *types.OrganizedResults {
	base.Categories = nil
	for _, r := range scored {
		appendToCollectionGroup(base, r)
	}
	base.Organizer = "fallback"
	return base
}

func appendToCollectionGroup(organized *types.OrganizedResults, r types.ScoredResult) {
	name := categoryForCollection(r.Hit.Collection)
	idx := categoryIndex(organized, name)
	if idx < 0 {
		organized.Categories = append(organized.Categories, types.ResultCategory{Name: name})
		idx = len(organized.Categories) - 1
	}
	organized.Categories[idx].Items = append(organized.Categories[idx].Items, r)
}

// categoryForCollection inverts the category-to-collection mapping for
// the fallback categorizer. Unmapped collections group under "more".
func categoryForCollection(collection string) string {
	for _, category := range safety.Categories() {
		if safety.CollectionFor(category) == collection {
			return category
		}
	}
	return "more"
}

func describeResults(results []types.ScoredResult) string {
	var b strings.Builder
	for _, r := range results {
		desc := r.Hit.Item.Title
		if desc == "" {
			desc = preview(r.Hit.Content, 100)
		}
		fmt.Fprintf(&b, "%s | %s | %s\n", r.Hit.ID, r.Hit.Collection, desc)
	}
	return b.String()
}

func preview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func profileConfidence(p *types.PreferenceProfile) float64 {
	if p == nil {
		return 0
	}
	return p.Confidence
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
