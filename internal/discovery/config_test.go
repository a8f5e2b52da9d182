package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.CrawlInterval)
	assert.Equal(t, 5*time.Minute, cfg.ValidationInterval)
	assert.Equal(t, 10*time.Minute, cfg.MetaInterval)
	assert.Equal(t, 60*time.Second, cfg.MonitorInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.MaxTruthAge)
	assert.InDelta(t, 0.3, cfg.ValidityThreshold, 1e-9)
	assert.Equal(t, 2*time.Minute, cfg.PauseAutoResume)
	assert.Equal(t, 5*time.Minute, cfg.EmergencyCooldown)
	assert.NotEmpty(t, cfg.TrackedCollections)
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("LEO_DISCOVERY_CRAWL_INTERVAL", "45s")
	t.Setenv("LEO_DISCOVERY_CPU_SOFT_LIMIT", "70")
	t.Setenv("LEO_DISCOVERY_MODEL", "qwen2.5")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.CrawlInterval)
	assert.InDelta(t, 70.0, cfg.CPUSoftLimit, 1e-9)
	assert.Equal(t, "qwen2.5", cfg.Model)
}

func TestConfigFromEnvRejectsBadValues(t *testing.T) {
	t.Run("unparseable duration", func(t *testing.T) {
		t.Setenv("LEO_DISCOVERY_CRAWL_INTERVAL", "often")
		_, err := ConfigFromEnv()
		assert.Error(t, err)
	})

	t.Run("negative duration", func(t *testing.T) {
		t.Setenv("LEO_DISCOVERY_MONITOR_INTERVAL", "-10s")
		_, err := ConfigFromEnv()
		assert.Error(t, err)
	})

	t.Run("threshold out of range", func(t *testing.T) {
		t.Setenv("LEO_DISCOVERY_CPU_SOFT_LIMIT", "150")
		_, err := ConfigFromEnv()
		assert.Error(t, err)
	})

	t.Run("soft limit at or above emergency", func(t *testing.T) {
		t.Setenv("LEO_DISCOVERY_CPU_SOFT_LIMIT", "95")
		_, err := ConfigFromEnv()
		assert.Error(t, err)
	})
}

func TestThrottleMultiplierBands(t *testing.T) {
	cases := []struct {
		name     string
		cpu, mem float64
		want     float64
	}{
		{"idle", 10, 10, 1.0},
		{"moderate", 50, 40, 1.25},
		{"approaching soft limit", 70, 50, 1.5},
		{"just over soft limit", 84, 50, 2.0},
		{"well past soft limit", 95, 50, 3.0},
		{"memory dominates", 10, 90, 2.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := throttleMultiplier(tc.cpu, tc.mem, 80, 85)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}
