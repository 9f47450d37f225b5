package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownPerEntityOverride(t *testing.T) {
	cfg := ScrapeConfig{
		UpdateCooldown: 60,
		EntityCooldowns: map[string]int{
			"b4f0c3a2-6d1e-49e7-8c55-2f9d8a10e3b7": 300,
		},
	}

	assert.Equal(t, 5*time.Minute, cfg.Cooldown("b4f0c3a2-6d1e-49e7-8c55-2f9d8a10e3b7"))
	// Override lookup is case-insensitive on the entity id.
	assert.Equal(t, 5*time.Minute, cfg.Cooldown("B4F0C3A2-6D1E-49E7-8C55-2F9D8A10E3B7"))
	assert.Equal(t, time.Minute, cfg.Cooldown("00000000-0000-0000-0000-000000000001"))
}

func TestStaticHolderGet(t *testing.T) {
	cfg := DefaultScrapeConfig()
	cfg.ReportingCurrency = "USD"

	holder := NewStaticScrapeConfigHolder(cfg)
	assert.Equal(t, "USD", holder.Get().ReportingCurrency)
	assert.Equal(t, time.Minute, holder.Get().Cooldown("any"))
}
