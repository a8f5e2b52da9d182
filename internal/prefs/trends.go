package prefs

import (
	"time"

	"github.com/oaf-platform/leo/internal/types"
)

// Platform-wide price anchors used when a user has no reliable history.
const (
	GlobalSweetSpot      = 350
	GlobalMaxComfortable = 1200
)

// GlobalTrends returns the platform-wide trends profile. It is the scoring
// fallback for anonymous users and the blending partner for thin personal
// profiles. A fresh copy is returned each call so callers can never mutate
// the table.
func GlobalTrends() *types.PreferenceProfile {
	return &types.PreferenceProfile{
		Colors: map[string]float64{
			"blue":  0.6,
			"green": 0.5,
			"earth": 0.5,
			"black": 0.4,
			"white": 0.4,
		},
		Styles: map[string]float64{
			"abstract":      0.6,
			"contemporary":  0.6,
			"impressionist": 0.5,
			"minimalist":    0.4,
		},
		Mediums: map[string]float64{
			"painting":    0.6,
			"print":       0.5,
			"photography": 0.4,
			"sculpture":   0.3,
		},
		Categories: map[string]float64{
			"painting":    0.6,
			"wall_art":    0.5,
			"photography": 0.4,
			"ceramics":    0.3,
		},
		SweetSpot:      GlobalSweetSpot,
		MaxComfortable: GlobalMaxComfortable,
		Confidence:     1.0,
		Source:         types.SourceGlobal,
		LastUpdated:    time.Time{},
	}
}
