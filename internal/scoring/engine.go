// Package scoring implements the boost scoring engine: deterministic, pure
// blending of a raw similarity score with a resolved preference profile.
//
// Ranking is relative, not absolute: final scores are clamped at zero but
// have no upper bound.
package scoring

import (
	"sort"
	"time"

	"github.com/oaf-platform/leo/internal/types"
)

// Weights are the fixed, tunable multipliers applied to each signal's
// contribution.
type Weights struct {
	Color          float64
	Style          float64
	Price          float64
	Medium         float64
	Category       float64
	FavoriteArtist float64
	Popularity     float64
	Recency        float64

	// AvailabilityPenalty is applied flatly (unweighted) when an item is
	// out of stock and inventory-tracked.
	AvailabilityPenalty float64

	// Default flat popularity bonuses, overridable per profile.
	PopularityBonus float64
	FavoritedBonus  float64
}

// DefaultWeights returns the production weight set.
func DefaultWeights() Weights {
	return Weights{
		Color:               0.30,
		Style:               0.25,
		Price:               0.20,
		Medium:              0.15,
		Category:            0.15,
		FavoriteArtist:      0.15,
		Popularity:          0.10,
		Recency:             0.05,
		AvailabilityPenalty: -0.50,
		PopularityBonus:     0.15,
		FavoritedBonus:      0.10,
	}
}

// Engine scores similarity hits against preference profiles. No I/O, safe
// for concurrent use.
type Engine struct {
	weights Weights
	now     func() time.Time
}

// NewEngine creates an engine with the given weights.
func NewEngine(w Weights) *Engine {
	return &Engine{weights: w, now: time.Now}
}

// Score combines a raw similarity hit with a profile into a scored result.
//
// Profile-dependent signals (color, style, medium, category, price,
// favorite artist) only engage for personal or blended profiles; anonymous
// traffic scored against the global profile gets popularity, recency and
// availability terms only.
func (e *Engine) Score(hit types.SearchHit, profile *types.PreferenceProfile) types.ScoredResult {
	details := make(map[string]float64)
	score := hit.Similarity
	item := hit.Item

	personalized := profile != nil && profile.Source != types.SourceGlobal

	if personalized {
		if c := bestWeight(item.Colors, profile.Colors); c != 0 {
			details["color"] = c * e.weights.Color
		}
		if c := bestWeight(item.Styles, profile.Styles); c != 0 {
			details["style"] = c * e.weights.Style
		}
		if c := bestWeight(item.Mediums, profile.Mediums); c != 0 {
			details["medium"] = c * e.weights.Medium
		}
		if item.Category != "" {
			if c := profile.Categories[item.Category]; c != 0 {
				details["category"] = c * e.weights.Category
			}
		}
		if c := priceContribution(item.Price, profile.SweetSpot, profile.MaxComfortable); c != 0 {
			details["price"] = c * e.weights.Price
		}
		if item.ArtistID != "" && profile.FavoriteArtists[item.ArtistID] {
			details["favorite_artist"] = 1.0 * e.weights.FavoriteArtist
		}
	}

	if c := e.popularityContribution(item, profile); c != 0 {
		details["popularity"] = c * e.weights.Popularity
	}
	if c := e.recencyContribution(item); c != 0 {
		details["recency"] = c * e.weights.Recency
	}

	// Availability penalty is flat and applied exactly once.
	if item.TrackInventory && !item.InStock {
		details["availability"] = e.weights.AvailabilityPenalty
	}

	for _, v := range details {
		score += v
	}
	if score < 0 {
		score = 0
	}

	return types.ScoredResult{
		Hit:           hit,
		OriginalScore: hit.Similarity,
		BoostDetails:  details,
		FinalScore:    score,
		Personalized:  personalized,
	}
}

// ScoreAndSort scores every hit and sorts descending by final score.
// The sort is stable: ties preserve input order.
func (e *Engine) ScoreAndSort(hits []types.SearchHit, profile *types.PreferenceProfile) []types.ScoredResult {
	results := make([]types.ScoredResult, len(hits))
	for i, hit := range hits {
		results[i] = e.Score(hit, profile)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
	return results
}

// bestWeight looks up each attribute value in the profile's weight map and
// returns the one with the largest magnitude, first-seen winning ties.
func bestWeight(values []string, weights map[string]float64) float64 {
	var best float64
	for _, v := range values {
		w, ok := weights[v]
		if !ok {
			continue
		}
		if abs(w) > abs(best) {
			best = w
		}
	}
	return best
}

// priceContribution is a triangular preference curve around the sweet spot,
// with over-budget penalties that always win over proximity bonuses.
func priceContribution(price, sweetSpot, maxComfortable float64) float64 {
	if price <= 0 || sweetSpot <= 0 {
		return 0
	}

	// Penalty bands are checked first and are exclusive of the bonus bands.
	if maxComfortable > 0 && price > maxComfortable {
		if price > 1.5*maxComfortable {
			return -0.8
		}
		return -0.3
	}

	distance := abs(price - sweetSpot)
	switch {
	case distance <= 50:
		return 1.0
	case distance <= 100:
		return 0.7
	case distance <= 200:
		return 0.3
	default:
		return 0
	}
}

func (e *Engine) popularityContribution(item types.Item, profile *types.PreferenceProfile) float64 {
	popBonus := e.weights.PopularityBonus
	favBonus := e.weights.FavoritedBonus
	if profile != nil {
		if profile.PopularityBonus != nil {
			popBonus = *profile.PopularityBonus
		}
		if profile.FavoritedBonus != nil {
			favBonus = *profile.FavoritedBonus
		}
	}

	var c float64
	if item.Popular {
		c += popBonus
	}
	if item.HighlyFavorited {
		c += favBonus
	}
	return c
}

func (e *Engine) recencyContribution(item types.Item) float64 {
	if item.NewArrival {
		return 1.0
	}
	if item.CreatedAt.IsZero() {
		return 0
	}
	age := e.now().Sub(item.CreatedAt)
	switch {
	case age < 7*24*time.Hour:
		return 0.8
	case age < 30*24*time.Hour:
		return 0.5
	default:
		return 0
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
