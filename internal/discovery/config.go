package discovery

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/oaf-platform/leo/internal/vectorstore"
)

// Config holds every interval and threshold the scheduler uses.
type Config struct {
	// Loop intervals.
	CrawlInterval      time.Duration // primary crawl (default 30s)
	ValidationInterval time.Duration // truth revalidation (default 5m)
	MetaInterval       time.Duration // meta-truth mining (default 10m)
	MonitorInterval    time.Duration // resource monitor (default 60s)

	// Crawl tuning.
	TrackedCollections []string // default: the content collections plus feedback
	CrawlBatchSize     int      // documents pulled per collection per tick (default 10)
	// BurstThreshold triggers an out-of-band meta pass when one batch
	// yields at least this many new truths (default 3).
	BurstThreshold int
	BurstDelay     time.Duration // delay before the burst meta pass (default 5s)

	// Validation tuning.
	MaxTruthAge       time.Duration // revalidation staleness bound (default 7d)
	ValidityThreshold float64       // downgrade confidence floor (default 0.3)
	ValidationBatch   int           // truths read per validation tick (default 50)

	// Mining tuning.
	MiningBatch int // truths read per mining tick (default 100)

	// Resource thresholds, in percent.
	CPUSoftLimit      float64       // pause above this (default 80)
	MemorySoftLimit   float64       // pause above this (default 85)
	CPUEmergencyLimit float64       // emergency stop above this (default 95)
	MemEmergencyLimit float64       // emergency stop above this (default 95)
	PauseAutoResume   time.Duration // auto-resume after soft pause (default 2m)
	EmergencyCooldown time.Duration // cooldown before leaving emergency stop (default 5m)

	// Model used for all discovery prompts.
	Model string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CrawlInterval:      30 * time.Second,
		ValidationInterval: 5 * time.Minute,
		MetaInterval:       10 * time.Minute,
		MonitorInterval:    60 * time.Second,
		TrackedCollections: append(vectorstore.ContentCollections(), vectorstore.CollectionFeedback),
		CrawlBatchSize:     10,
		BurstThreshold:     3,
		BurstDelay:         5 * time.Second,
		MaxTruthAge:        7 * 24 * time.Hour,
		ValidityThreshold:  0.3,
		ValidationBatch:    50,
		MiningBatch:        100,
		CPUSoftLimit:       80,
		MemorySoftLimit:    85,
		CPUEmergencyLimit:  95,
		MemEmergencyLimit:  95,
		PauseAutoResume:    2 * time.Minute,
		EmergencyCooldown:  5 * time.Minute,
		Model:              "llama3.1",
	}
}

// ConfigFromEnv applies LEO_DISCOVERY_* environment overrides on top of
// the defaults. Invalid values return an error rather than silently
// running with surprising thresholds.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if err := envDuration("LEO_DISCOVERY_CRAWL_INTERVAL", &cfg.CrawlInterval); err != nil {
		return cfg, err
	}
	if err := envDuration("LEO_DISCOVERY_VALIDATION_INTERVAL", &cfg.ValidationInterval); err != nil {
		return cfg, err
	}
	if err := envDuration("LEO_DISCOVERY_META_INTERVAL", &cfg.MetaInterval); err != nil {
		return cfg, err
	}
	if err := envDuration("LEO_DISCOVERY_MONITOR_INTERVAL", &cfg.MonitorInterval); err != nil {
		return cfg, err
	}
	if err := envFloat("LEO_DISCOVERY_CPU_SOFT_LIMIT", &cfg.CPUSoftLimit); err != nil {
		return cfg, err
	}
	if err := envFloat("LEO_DISCOVERY_MEM_SOFT_LIMIT", &cfg.MemorySoftLimit); err != nil {
		return cfg, err
	}
	if err := envFloat("LEO_DISCOVERY_CPU_EMERGENCY_LIMIT", &cfg.CPUEmergencyLimit); err != nil {
		return cfg, err
	}
	if err := envFloat("LEO_DISCOVERY_MEM_EMERGENCY_LIMIT", &cfg.MemEmergencyLimit); err != nil {
		return cfg, err
	}
	if model := os.Getenv("LEO_DISCOVERY_MODEL"); model != "" {
		cfg.Model = model
	}

	if cfg.CPUSoftLimit >= cfg.CPUEmergencyLimit {
		return cfg, fmt.Errorf("CPU soft limit (%.0f) must be below emergency limit (%.0f)",
			cfg.CPUSoftLimit, cfg.CPUEmergencyLimit)
	}
	if cfg.MemorySoftLimit >= cfg.MemEmergencyLimit {
		return cfg, fmt.Errorf("memory soft limit (%.0f) must be below emergency limit (%.0f)",
			cfg.MemorySoftLimit, cfg.MemEmergencyLimit)
	}
	return cfg, nil
}

func envDuration(name string, out *time.Duration) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive (got %s)", name, d)
	}
	*out = d
	return nil
}

func envFloat(name string, out *float64) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if v <= 0 || v > 100 {
		return fmt.Errorf("%s must be in (0,100] (got %.1f)", name, v)
	}
	*out = v
	return nil
}
