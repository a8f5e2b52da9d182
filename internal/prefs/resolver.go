// Package prefs resolves, caches and blends per-user preference profiles.
//
// Profiles are computed by an external nightly batch and stored in the
// vector store's user-profile collection; this package only reads them,
// apart from small in-session nudges applied to cached copies.
package prefs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/oaf-platform/leo/internal/types"
	"github.com/oaf-platform/leo/internal/vectorstore"
)

// Blending thresholds: a profile below either is never used unblended.
const (
	MinDataPoints = 20
	MinConfidence = 0.5

	// MaxUserWeight caps the user side of the blend so the global
	// contribution never drops to zero.
	MaxUserWeight = 0.7

	// FullWeightDataPoints is where the user weight reaches its cap.
	FullWeightDataPoints = 50
)

// Session nudge increments.
const (
	colorNudge = 0.05
	styleNudge = 0.03
)

// profileRecordType is the classification tag a profile document must
// carry. A mismatch signals a stale or wrong document and the resolver
// falls back to global trends.
const profileRecordType = "user_profile"

// Config tunes the resolver.
type Config struct {
	CacheTTL  time.Duration // default 5m
	CacheSize int           // default 10000
}

// Resolver loads and blends preference profiles.
type Resolver struct {
	store vectorstore.Store
	cache *profileCache
}

// NewResolver creates a resolver over the given store.
func NewResolver(store vectorstore.Store, cfg Config) *Resolver {
	return &Resolver{
		store: store,
		cache: newProfileCache(cfg.CacheTTL, cfg.CacheSize),
	}
}

// Resolve returns the profile to score with. It never fails: every error
// path degrades to the global trends profile.
//
// Anonymous users get global trends verbatim, never blended or cached
// per-user.
func (r *Resolver) Resolve(ctx context.Context, userID string) *types.PreferenceProfile {
	if userID == "" {
		return GlobalTrends()
	}

	if cached := r.cache.get(userID); cached != nil {
		return cached
	}

	doc, err := r.store.Get(ctx, vectorstore.CollectionUserProfiles, ProfileDocumentID(userID))
	if err != nil {
		slog.Warn("profile fetch failed, using global trends", "user_id", userID, "error", err)
		return GlobalTrends()
	}
	if doc == nil {
		slog.Debug("no stored profile, using global trends", "user_id", userID)
		return GlobalTrends()
	}
	if doc.Metadata["record_type"] != profileRecordType {
		slog.Warn("profile document has wrong classification tag, discarding",
			"user_id", userID, "record_type", doc.Metadata["record_type"])
		return GlobalTrends()
	}

	profile := parseProfile(userID, doc.Metadata)
	if profile.DataPoints < MinDataPoints || profile.Confidence < MinConfidence {
		profile = Blend(profile, GlobalTrends())
	}

	r.cache.put(userID, profile)
	return profile
}

// ApplySessionSignal nudges the cached profile's weight maps after an
// explicit positive interaction. DataPoints, confidence, and the cache TTL
// are untouched; it is a no-op when nothing is cached for the user.
func (r *Resolver) ApplySessionSignal(interaction types.Interaction) {
	if interaction.UserID == "" {
		return
	}
	applied := r.cache.nudge(interaction.UserID, func(p *types.PreferenceProfile) {
		if p.Colors == nil {
			p.Colors = make(map[string]float64)
		}
		if p.Styles == nil {
			p.Styles = make(map[string]float64)
		}
		for _, c := range interaction.Colors {
			p.Colors[c] += colorNudge
		}
		for _, s := range interaction.Styles {
			p.Styles[s] += styleNudge
		}
	})
	if applied {
		slog.Debug("session signal applied",
			"user_id", interaction.UserID,
			"colors", len(interaction.Colors),
			"styles", len(interaction.Styles))
	}
}

// Invalidate drops one user's cache entry.
func (r *Resolver) Invalidate(userID string) {
	r.cache.invalidate(userID)
}

// InvalidateAll drops every cached profile, called when the nightly batch
// recomputes.
func (r *Resolver) InvalidateAll() {
	r.cache.invalidateAll()
}

// CacheLen reports the number of cached profiles (for status reporting).
func (r *Resolver) CacheLen() int {
	return r.cache.len()
}

// ProfileDocumentID is the deterministic id of a user's profile document.
func ProfileDocumentID(userID string) string {
	return "user_profile_" + userID
}

// Blend linearly interpolates a thin personal profile with global trends.
// The user weight grows with data points and is capped at MaxUserWeight;
// zero data points yields global trends exactly.
func Blend(user, global *types.PreferenceProfile) *types.PreferenceProfile {
	uw := UserWeight(user.DataPoints)
	if uw == 0 {
		// Nothing observed carries no weight: stored favorites and
		// bonus overrides must not leak through at full strength.
		return global.Clone()
	}
	gw := 1 - uw

	out := &types.PreferenceProfile{
		UserID:           user.UserID,
		Colors:           blendWeights(user.Colors, global.Colors, uw, gw),
		Styles:           blendWeights(user.Styles, global.Styles, uw, gw),
		Mediums:          blendWeights(user.Mediums, global.Mediums, uw, gw),
		Categories:       blendWeights(user.Categories, global.Categories, uw, gw),
		SweetSpot:        uw*user.SweetSpot + gw*global.SweetSpot,
		MaxComfortable:   uw*user.MaxComfortable + gw*global.MaxComfortable,
		FavoriteArtists:  copySet(user.FavoriteArtists),
		TemporalPatterns: copySet(user.TemporalPatterns),
		PopularityBonus:  user.PopularityBonus,
		FavoritedBonus:   user.FavoritedBonus,
		DataPoints:       user.DataPoints,
		Confidence:       user.Confidence,
		Source:           types.SourceBlended,
		LastUpdated:      user.LastUpdated,
	}
	return out
}

// UserWeight maps observation count onto the blend weight for the user
// side: linear in data points, capped at MaxUserWeight.
func UserWeight(dataPoints int) float64 {
	if dataPoints <= 0 {
		return 0
	}
	w := float64(dataPoints) / FullWeightDataPoints * MaxUserWeight
	if w > MaxUserWeight {
		return MaxUserWeight
	}
	return w
}

func blendWeights(user, global map[string]float64, uw, gw float64) map[string]float64 {
	out := make(map[string]float64, len(user)+len(global))
	for k, v := range global {
		out[k] = gw * v
	}
	for k, v := range user {
		out[k] = uw*v + gw*global[k]
	}
	return out
}

func copySet(m map[string]bool) map[string]bool {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// parseProfile turns a flattened profile document into the structured form.
// Attribute weights arrive as key-prefixed metadata entries
// (color_preference_blue, style_preference_abstract, ...).
func parseProfile(userID string, meta map[string]string) *types.PreferenceProfile {
	p := &types.PreferenceProfile{
		UserID:     userID,
		Colors:     make(map[string]float64),
		Styles:     make(map[string]float64),
		Mediums:    make(map[string]float64),
		Categories: make(map[string]float64),
		Source:     types.SourcePersonal,
	}

	for key, raw := range meta {
		switch {
		case strings.HasPrefix(key, "color_preference_"):
			setWeight(p.Colors, strings.TrimPrefix(key, "color_preference_"), raw)
		case strings.HasPrefix(key, "style_preference_"):
			setWeight(p.Styles, strings.TrimPrefix(key, "style_preference_"), raw)
		case strings.HasPrefix(key, "medium_preference_"):
			setWeight(p.Mediums, strings.TrimPrefix(key, "medium_preference_"), raw)
		case strings.HasPrefix(key, "category_preference_"):
			setWeight(p.Categories, strings.TrimPrefix(key, "category_preference_"), raw)
		case strings.HasPrefix(key, "favorite_artist_"):
			if raw == "true" {
				if p.FavoriteArtists == nil {
					p.FavoriteArtists = make(map[string]bool)
				}
				p.FavoriteArtists[strings.TrimPrefix(key, "favorite_artist_")] = true
			}
		case strings.HasPrefix(key, "temporal_"):
			if raw == "true" {
				if p.TemporalPatterns == nil {
					p.TemporalPatterns = make(map[string]bool)
				}
				p.TemporalPatterns[strings.TrimPrefix(key, "temporal_")] = true
			}
		}
	}

	p.SweetSpot = parseFloat(meta["sweet_spot"])
	p.MaxComfortable = parseFloat(meta["max_comfortable"])
	p.Confidence = parseFloat(meta["confidence"])
	if n, err := strconv.Atoi(meta["data_points"]); err == nil {
		p.DataPoints = n
	}
	if ts, err := time.Parse(time.RFC3339, meta["last_updated"]); err == nil {
		p.LastUpdated = ts
	}
	return p
}

func setWeight(m map[string]float64, key, raw string) {
	if key == "" {
		return
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		m[key] = v
	} else {
		slog.Debug("skipping malformed profile weight", "key", key, "value", fmt.Sprintf("%.32s", raw))
	}
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
