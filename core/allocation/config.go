package allocation

import "fmt"

// Config defines allocation parameters loaded from configuration.
type Config struct {
	// SlotMinutes is the granularity used when a room does not set its own.
	SlotMinutes int `json:"slot_minutes" yaml:"slot_minutes"`
	// MaxDailyMinutes caps what one member receives per date. Zero disables the cap.
	MaxDailyMinutes int `json:"max_daily_minutes" yaml:"max_daily_minutes"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.SlotMinutes <= 0 {
		c.SlotMinutes = 30
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.SlotMinutes <= 0 || c.SlotMinutes > 24*60 {
		return fmt.Errorf("slot_minutes must be between 1 and 1440")
	}
	if c.MaxDailyMinutes < 0 {
		return fmt.Errorf("max_daily_minutes must not be negative")
	}
	return nil
}
