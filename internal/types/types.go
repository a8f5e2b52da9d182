// Package types holds the domain types shared across Leo's personalization
// and discovery subsystems.
package types

import (
	"fmt"
	"time"
)

// ProfileSource identifies where a preference profile came from.
type ProfileSource string

const (
	// SourcePersonal means the profile was built entirely from the user's own history
	SourcePersonal ProfileSource = "personal"
	// SourceBlended means the profile was interpolated with global trends
	SourceBlended ProfileSource = "blended"
	// SourceGlobal means the platform-wide trends profile was used verbatim
	SourceGlobal ProfileSource = "global"
)

// PreferenceProfile captures a user's (or the platform's) taste signals.
// Profiles are computed by the nightly batch and read-only here except for
// small in-session nudges applied to cached copies.
type PreferenceProfile struct {
	UserID     string             `json:"user_id,omitempty"`
	Colors     map[string]float64 `json:"colors"`
	Styles     map[string]float64 `json:"styles"`
	Mediums    map[string]float64 `json:"mediums"`
	Categories map[string]float64 `json:"categories"`

	// SweetSpot and MaxComfortable are in currency units
	SweetSpot      float64 `json:"sweet_spot"`
	MaxComfortable float64 `json:"max_comfortable"`

	FavoriteArtists  map[string]bool `json:"favorite_artists,omitempty"`
	TemporalPatterns map[string]bool `json:"temporal_patterns,omitempty"`

	// Optional per-profile overrides for the flat popularity bonuses.
	// Nil means use the engine defaults.
	PopularityBonus *float64 `json:"popularity_bonus,omitempty"`
	FavoritedBonus  *float64 `json:"favorited_bonus,omitempty"`

	DataPoints  int           `json:"data_points"`
	Confidence  float64       `json:"confidence"`
	Source      ProfileSource `json:"source"`
	LastUpdated time.Time     `json:"last_updated"`
}

// Clone returns a deep copy so cached profiles can be nudged per-session
// without mutating the shared entry.
func (p *PreferenceProfile) Clone() *PreferenceProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.Colors = copyWeights(p.Colors)
	out.Styles = copyWeights(p.Styles)
	out.Mediums = copyWeights(p.Mediums)
	out.Categories = copyWeights(p.Categories)
	out.FavoriteArtists = copyFlags(p.FavoriteArtists)
	out.TemporalPatterns = copyFlags(p.TemporalPatterns)
	if p.PopularityBonus != nil {
		v := *p.PopularityBonus
		out.PopularityBonus = &v
	}
	if p.FavoritedBonus != nil {
		v := *p.FavoritedBonus
		out.FavoritedBonus = &v
	}
	return &out
}

func copyWeights(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyFlags(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// TruthType categorizes a discovered behavioral pattern.
type TruthType string

const (
	TruthUserPreference     TruthType = "user_preference"
	TruthBehavioralPattern  TruthType = "behavioral_pattern"
	TruthContentCorrelation TruthType = "content_correlation"
	TruthTemporalPattern    TruthType = "temporal_pattern"
	// TruthPatternCorrelation marks meta-patterns derived from other truths
	TruthPatternCorrelation TruthType = "pattern_correlation"
)

// IsValid reports whether the truth type is one of the known values.
func (t TruthType) IsValid() bool {
	switch t {
	case TruthUserPreference, TruthBehavioralPattern, TruthContentCorrelation,
		TruthTemporalPattern, TruthPatternCorrelation:
		return true
	}
	return false
}

// TruthSource identifies which pipeline produced a truth.
type TruthSource string

const (
	SourceExtraction   TruthSource = "extraction"
	SourceMetaAnalysis TruthSource = "meta_analysis"
)

// Truth is a discovered behavioral pattern persisted to the truth store.
// Truths are never physically deleted; revalidation downgrades them in a
// local validity cache instead.
type Truth struct {
	ID         string            `json:"id,omitempty"` // store-assigned
	Content    string            `json:"content"`
	Type       TruthType         `json:"type"`
	Confidence float64           `json:"confidence"`
	Source     TruthSource       `json:"source"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Validate checks the invariants a truth must satisfy before persistence.
func (t *Truth) Validate() error {
	if t.Content == "" {
		return fmt.Errorf("content is required")
	}
	if t.Confidence < 0 || t.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1] (got %.2f)", t.Confidence)
	}
	if t.Source != SourceExtraction && t.Source != SourceMetaAnalysis {
		return fmt.Errorf("invalid source: %s", t.Source)
	}
	return nil
}

// Item holds the product attributes the scoring engine reads. It is parsed
// from a similarity hit's metadata.
type Item struct {
	ID              string    `json:"id"`
	Title           string    `json:"title,omitempty"`
	Colors          []string  `json:"colors,omitempty"`
	Styles          []string  `json:"styles,omitempty"`
	Mediums         []string  `json:"mediums,omitempty"`
	Category        string    `json:"category,omitempty"`
	Price           float64   `json:"price,omitempty"`
	ArtistID        string    `json:"artist_id,omitempty"`
	Popular         bool      `json:"popular,omitempty"`
	HighlyFavorited bool      `json:"highly_favorited,omitempty"`
	NewArrival      bool      `json:"new_arrival,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	InStock         bool      `json:"in_stock"`
	TrackInventory  bool      `json:"track_inventory,omitempty"`
}

// SearchHit is a raw nearest-neighbor result from the vector store.
// Similarity is 1 - distance.
type SearchHit struct {
	ID         string
	Collection string
	Content    string
	Metadata   map[string]string
	Similarity float64
	Item       Item
}

// ScoredResult wraps a hit with its personalization scoring breakdown.
// Ephemeral: produced per request, never persisted.
type ScoredResult struct {
	Hit           SearchHit          `json:"hit"`
	OriginalScore float64            `json:"original_score"`
	BoostDetails  map[string]float64 `json:"boost_details"`
	FinalScore    float64            `json:"final_score"`
	Personalized  bool               `json:"personalized"`
	// Backfill marks non-personalized random samples added to pad a
	// sparse category.
	Backfill bool `json:"backfill,omitempty"`
}

// QueryRequest is the exposed query surface.
type QueryRequest struct {
	Text       string   `json:"text"`
	UserID     string   `json:"user_id,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

// ResultCategory is one named bucket of an organized result set.
type ResultCategory struct {
	Name  string         `json:"name"`
	Items []ScoredResult `json:"items"`
}

// OrganizedResults is the categorized, ranked response to a query.
type OrganizedResults struct {
	Categories   []ResultCategory  `json:"categories"`
	Personalized bool              `json:"personalized"`
	Confidence   float64           `json:"confidence"`
	Organizer    string            `json:"organizer"` // "llm" or "fallback"
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Feedback is an explicit user rating of a query/response pair. It feeds
// the truth extraction pipeline.
type Feedback struct {
	UserID   string    `json:"user_id,omitempty"`
	Query    string    `json:"query"`
	Response string    `json:"response"`
	Rating   int       `json:"rating"` // 1-5
	At       time.Time `json:"at"`
}

// Interaction is a positive in-session signal used for real-time profile
// nudges.
type Interaction struct {
	UserID string   `json:"user_id"`
	ItemID string   `json:"item_id,omitempty"`
	Colors []string `json:"colors,omitempty"`
	Styles []string `json:"styles,omitempty"`
}

// CollectionHealth reports reachability and truth count for one collection.
type CollectionHealth struct {
	Collection string `json:"collection"`
	Reachable  bool   `json:"reachable"`
	Count      int    `json:"count"`
	Error      string `json:"error,omitempty"`
}

// HealthReport aggregates store reachability and truth counts.
type HealthReport struct {
	VectorStoreOK bool               `json:"vector_store_ok"`
	LLMOk         bool               `json:"llm_ok"`
	Collections   []CollectionHealth `json:"collections"`
	CheckedAt     time.Time          `json:"checked_at"`
}
