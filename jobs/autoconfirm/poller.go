// Package autoconfirm confirms rooms whose auto-confirm deadline has passed.
package autoconfirm

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/slotshare/core/commit"
	"github.com/kilianp07/slotshare/core/logger"
	"github.com/kilianp07/slotshare/core/monitoring"
	"github.com/kilianp07/slotshare/core/store"
)

// Config controls the deadline poller.
type Config struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 30
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.IntervalSeconds > 24*3600 {
		return fmt.Errorf("interval_seconds must not exceed one day")
	}
	return nil
}

// Confirmer writes a room's pending slots to calendars.
type Confirmer interface {
	Confirm(ctx context.Context, roomID, actorID string) (commit.Result, error)
}

// Poller checks deadlines on a fixed interval. Confirmation disarms the
// deadline, so a room is picked up at most once per arming.
type Poller struct {
	rooms     store.RoomStore
	confirmer Confirmer
	log       logger.Logger
	interval  time.Duration
	now       func() time.Time
}

// NewPoller returns a Poller.
func NewPoller(cfg Config, rooms store.RoomStore, c Confirmer, log logger.Logger) *Poller {
	cfg.SetDefaults()
	return &Poller{
		rooms:     rooms,
		confirmer: c,
		log:       logger.OrNop(log),
		interval:  time.Duration(cfg.IntervalSeconds) * time.Second,
		now:       time.Now,
	}
}

// Start runs Tick until ctx is canceled.
func (p *Poller) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.Tick(ctx); err != nil {
				p.log.Errorf("auto-confirm poll: %v", err)
			}
		}
	}
}

// Tick confirms every room due now and returns how many were confirmed.
// A failing room is logged and retried on the next tick.
func (p *Poller) Tick(ctx context.Context) (int, error) {
	due, err := p.rooms.ListRoomsDue(ctx, p.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("list rooms due: %w", err)
	}
	confirmed := 0
	for _, r := range due {
		res, err := p.confirmer.Confirm(ctx, r.ID, "")
		if err != nil {
			p.log.Errorf("auto-confirm room %s: %v", r.ID, err)
			monitoring.CaptureException(err, map[string]string{"room_id": r.ID, "job": "autoconfirm"})
			continue
		}
		confirmed++
		p.log.Infow("room auto-confirmed", map[string]any{"room_id": r.ID, "blocks": res.Blocks, "skipped": res.Skipped})
	}
	return confirmed, nil
}
