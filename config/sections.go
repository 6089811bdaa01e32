package config

import (
	"fmt"

	"github.com/kilianp07/slotshare/core/coordinator"
	"github.com/kilianp07/slotshare/jobs/autoconfirm"
)

// StoreConfig selects the record store.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `json:"backend"`
	// DSN is the sqlite database path or URI.
	DSN string `json:"dsn"`
}

// SetDefaults applies sane defaults.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Backend == "sqlite" && c.DSN == "" {
		c.DSN = "slotshare.db"
	}
}

// Validate checks mandatory fields.
func (c StoreConfig) Validate() error {
	if c.Backend != "memory" && c.Backend != "sqlite" {
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	return nil
}

// AuditConfig selects where audit entries go.
type AuditConfig struct {
	// Backend is "memory", "sqlite" or "none".
	Backend string `json:"backend"`
	DSN     string `json:"dsn"`
}

// SetDefaults applies sane defaults.
func (c *AuditConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Backend == "sqlite" && c.DSN == "" {
		c.DSN = "audit.db"
	}
}

// Validate checks mandatory fields.
func (c AuditConfig) Validate() error {
	switch c.Backend {
	case "memory", "sqlite", "none":
		return nil
	}
	return fmt.Errorf("unknown backend %s", c.Backend)
}

// AutoConfirmConfig groups the deadline defaults and the poller.
type AutoConfirmConfig struct {
	// DefaultMinutes is used when a room is armed without a duration.
	DefaultMinutes int `json:"default_minutes"`
	// ArmAfterAllocate arms the deadline whenever an allocation adds slots.
	ArmAfterAllocate bool `json:"arm_after_allocate"`
	// Poller runs the background confirmation of due rooms.
	Poller autoconfirm.Config `json:"poller"`
}

// SetDefaults applies sane defaults.
func (c *AutoConfirmConfig) SetDefaults() {
	cc := c.Coordinator()
	cc.SetDefaults()
	c.DefaultMinutes = cc.AutoConfirmMinutes
	c.Poller.SetDefaults()
}

// Validate checks the configured values.
func (c AutoConfirmConfig) Validate() error {
	if err := c.Coordinator().Validate(); err != nil {
		return err
	}
	return c.Poller.Validate()
}

// Coordinator returns the coordinator settings.
func (c AutoConfirmConfig) Coordinator() coordinator.Config {
	return coordinator.Config{AutoConfirmMinutes: c.DefaultMinutes, ArmAfterAllocate: c.ArmAfterAllocate}
}

// HTTPConfig configures the API and metrics listeners.
type HTTPConfig struct {
	Addr string `json:"addr"`
	// MetricsAddr serves /metrics when a prometheus sink is configured.
	MetricsAddr    string   `json:"metrics_addr"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// SetDefaults applies sane defaults.
func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":2112"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
}

// Validate checks mandatory fields.
func (c HTTPConfig) Validate() error {
	if c.Addr == c.MetricsAddr {
		return fmt.Errorf("addr and metrics_addr must differ")
	}
	return nil
}
