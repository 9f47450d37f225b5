package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ScrapeConfig controls fetch cooldowns, the virtual data source and the
// currency the global position is reported in.
type ScrapeConfig struct {
	UpdateCooldown    int            `mapstructure:"updateCooldown"`
	EntityCooldowns   map[string]int `mapstructure:"entityCooldowns"`
	Virtual           VirtualConfig  `mapstructure:"virtual"`
	ReportingCurrency string         `mapstructure:"reportingCurrency"`
}

type VirtualConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func DefaultScrapeConfig() ScrapeConfig {
	return ScrapeConfig{
		UpdateCooldown:    60,
		EntityCooldowns:   map[string]int{},
		Virtual:           VirtualConfig{Enabled: true},
		ReportingCurrency: "EUR",
	}
}

// Cooldown returns the effective cooldown for an entity, honoring per-entity
// overrides keyed by entity UUID.
func (c ScrapeConfig) Cooldown(entityID string) time.Duration {
	if c.EntityCooldowns != nil {
		if seconds, ok := c.EntityCooldowns[strings.ToLower(entityID)]; ok {
			return time.Duration(seconds) * time.Second
		}
	}
	return time.Duration(c.UpdateCooldown) * time.Second
}

// ScrapeConfigHolder exposes the current scrape config and hot-reloads it when
// the backing file changes.
type ScrapeConfigHolder struct {
	current atomic.Value // holds ScrapeConfig
}

func NewScrapeConfigHolder() (*ScrapeConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("finanze")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/finanze")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FINANZE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultScrapeConfig()
	v.SetDefault("scrape.updateCooldown", defaults.UpdateCooldown)
	v.SetDefault("scrape.virtual.enabled", defaults.Virtual.Enabled)
	v.SetDefault("scrape.reportingCurrency", defaults.ReportingCurrency)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg, err := unmarshalScrape(v)
	if err != nil {
		return nil, err
	}

	holder := &ScrapeConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalScrape(v)
		if err != nil {
			log.Printf("[scrape-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[scrape-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticScrapeConfigHolder returns a holder pinned to a fixed config.
// Intended for tests.
func NewStaticScrapeConfigHolder(cfg ScrapeConfig) *ScrapeConfigHolder {
	holder := &ScrapeConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *ScrapeConfigHolder) Get() ScrapeConfig {
	return h.current.Load().(ScrapeConfig)
}

func unmarshalScrape(v *viper.Viper) (ScrapeConfig, error) {
	var cfg ScrapeConfig
	if err := v.UnmarshalKey("scrape", &cfg); err != nil {
		return ScrapeConfig{}, err
	}
	if cfg.UpdateCooldown < 0 {
		return ScrapeConfig{}, errors.New("scrape.updateCooldown cannot be negative")
	}
	if cfg.ReportingCurrency == "" {
		cfg.ReportingCurrency = DefaultScrapeConfig().ReportingCurrency
	}
	cfg.ReportingCurrency = strings.ToUpper(strings.TrimSpace(cfg.ReportingCurrency))
	if cfg.EntityCooldowns == nil {
		cfg.EntityCooldowns = map[string]int{}
	}
	lowered := make(map[string]int, len(cfg.EntityCooldowns))
	for id, seconds := range cfg.EntityCooldowns {
		lowered[strings.ToLower(id)] = seconds
	}
	cfg.EntityCooldowns = lowered
	return cfg, nil
}
