// Package config loads the service configuration from a YAML or JSON file with
// SLOT_ environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/slotshare/core/allocation"
	"github.com/kilianp07/slotshare/core/commit"
	"github.com/kilianp07/slotshare/core/exchange"
	"github.com/kilianp07/slotshare/core/metrics"
	"github.com/kilianp07/slotshare/core/travel"
	"github.com/kilianp07/slotshare/infra/monitoring"
	"github.com/kilianp07/slotshare/infra/mqtt"
)

// EnvPrefix marks environment overrides. SLOT_EXCHANGE__MAX_HOPS=4 sets
// exchange.max_hops.
const EnvPrefix = "SLOT_"

type Config struct {
	Store       StoreConfig       `json:"store"`
	Allocation  allocation.Config `json:"allocation"`
	Travel      travel.Config     `json:"travel"`
	Exchange    exchange.Config   `json:"exchange"`
	Commit      commit.Config     `json:"commit"`
	AutoConfirm AutoConfirmConfig `json:"autoconfirm"`
	HTTP        HTTPConfig        `json:"http"`
	MQTT        mqtt.Config       `json:"mqtt"`
	Metrics     metrics.Config    `json:"metrics"`
	Audit       AuditConfig       `json:"audit"`
	Logging     LoggingConfig     `json:"logging"`
	Sentry      monitoring.Config `json:"sentry"`
}

// Load reads path, applies environment overrides and defaults, then validates
// every section. An empty path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Store.SetDefaults()
	c.Allocation.SetDefaults()
	c.Travel.SetDefaults()
	c.Exchange.SetDefaults()
	c.Commit.SetDefaults()
	c.AutoConfirm.SetDefaults()
	c.HTTP.SetDefaults()
	c.MQTT.SetDefaults()
	c.Audit.SetDefaults()
	c.Logging.SetDefaults()
	c.Sentry.SetDefaults()
}

// Validate checks every section and names the failing one.
func (c Config) Validate() error {
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"store", c.Store},
		{"allocation", c.Allocation},
		{"travel", c.Travel},
		{"exchange", c.Exchange},
		{"commit", c.Commit},
		{"autoconfirm", c.AutoConfirm},
		{"http", c.HTTP},
		{"mqtt", c.MQTT},
		{"audit", c.Audit},
		{"logging", c.Logging},
		{"sentry", c.Sentry},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	for i, s := range c.Metrics.Sinks {
		if s.Type == "" {
			return fmt.Errorf("metrics: sink %d has no type", i)
		}
	}
	return nil
}
