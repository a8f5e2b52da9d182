package vectorstore

import (
	"strconv"
	"strings"
	"time"

	"github.com/oaf-platform/leo/internal/types"
)

// ItemFromMetadata parses the flat metadata of a similarity hit into the
// structured item the scoring engine reads. Missing or malformed fields
// fall back to zero values; scoring treats those as "signal absent".
func ItemFromMetadata(id string, meta map[string]string) types.Item {
	item := types.Item{
		ID:              id,
		Title:           meta["title"],
		Colors:          splitList(meta["colors"]),
		Styles:          splitList(meta["styles"]),
		Mediums:         splitList(meta["mediums"]),
		Category:        meta["category"],
		ArtistID:        meta["artist_id"],
		Popular:         parseBool(meta["popular"]),
		HighlyFavorited: parseBool(meta["highly_favorited"]),
		NewArrival:      parseBool(meta["new_arrival"]),
		InStock:         true,
	}

	if v, err := strconv.ParseFloat(meta["price"], 64); err == nil {
		item.Price = v
	}
	if v, ok := meta["in_stock"]; ok {
		item.InStock = parseBool(v)
	}
	item.TrackInventory = parseBool(meta["track_inventory"])
	if ts, err := time.Parse(time.RFC3339, meta["created_at"]); err == nil {
		item.CreatedAt = ts
	}
	return item
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(s)
	return err == nil && v
}
