// Package coordinator persists the outcome of the scheduling core: it runs the
// allocator and simulator against stored rooms, writes slots and preference
// splits back with optimistic retries and publishes room events.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/slotshare/core/allocation"
	"github.com/kilianp07/slotshare/core/audit"
	"github.com/kilianp07/slotshare/core/coalesce"
	"github.com/kilianp07/slotshare/core/events"
	"github.com/kilianp07/slotshare/core/logger"
	"github.com/kilianp07/slotshare/core/metrics"
	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/preference"
	"github.com/kilianp07/slotshare/core/store"
	"github.com/kilianp07/slotshare/core/travel"
)

// errInfeasible aborts a room write when the simulator refuses the slot.
var errInfeasible = errors.New("slot is not feasible")

// Config holds auto-confirm defaults.
type Config struct {
	// AutoConfirmMinutes is used when arming without an explicit duration.
	AutoConfirmMinutes int `json:"auto_confirm_minutes"`
	// ArmAfterAllocate arms the deadline whenever an allocation adds slots.
	ArmAfterAllocate bool `json:"arm_after_allocate"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.AutoConfirmMinutes <= 0 {
		c.AutoConfirmMinutes = 24 * 60
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.AutoConfirmMinutes < 0 {
		return fmt.Errorf("auto_confirm_minutes must not be negative")
	}
	return nil
}

// Service coordinates room mutations.
type Service struct {
	cfg      Config
	store    store.Store
	alloc    *allocation.Allocator
	sim      *travel.Simulator
	bus      events.Publisher
	audit    audit.Log
	sink     metrics.Sink
	log      logger.Logger
	retry    store.RetryPolicy
	analysis coalesce.Group
	now      func() time.Time
	newID    func() string
}

// Option customizes a Service.
type Option func(*Service)

func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.bus = p } }
func WithAudit(l audit.Log) Option            { return func(s *Service) { s.audit = l } }
func WithMetrics(m metrics.Sink) Option       { return func(s *Service) { s.sink = m } }
func WithLogger(l logger.Logger) Option       { return func(s *Service) { s.log = l } }
func WithRetry(p store.RetryPolicy) Option    { return func(s *Service) { s.retry = p } }
func WithClock(now func() time.Time) Option   { return func(s *Service) { s.now = now } }
func WithIDs(f func() string) Option          { return func(s *Service) { s.newID = f } }

// New returns a Service.
func New(cfg Config, st store.Store, alloc *allocation.Allocator, sim *travel.Simulator, opts ...Option) *Service {
	cfg.SetDefaults()
	s := &Service{
		cfg:   cfg,
		store: st,
		alloc: alloc,
		sim:   sim,
		bus:   events.NopPublisher{},
		sink:  metrics.NopSink{},
		log:   logger.NopLogger{},
		retry: store.DefaultRetryPolicy,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = logger.OrNop(s.log)
	s.sink = metrics.OrNop(s.sink)
	return s
}

// Room returns the stored room.
func (s *Service) Room(ctx context.Context, id string) (model.Room, error) {
	return s.store.GetRoom(ctx, id)
}

func (s *Service) members(ctx context.Context, room *model.Room) (map[string]model.Member, error) {
	members, err := s.store.GetMembers(ctx, room.MemberIDs())
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	return members, nil
}

func (s *Service) today() model.Date { return model.DateOf(s.now().UTC()) }

func (s *Service) publish(roomID, name string, recipients []string, payload map[string]any) {
	s.bus.Publish(events.RoomEvent{RoomID: roomID, Name: name, Recipients: recipients, Payload: payload, At: s.now().UTC()})
}

func (s *Service) record(ctx context.Context, roomID, actorID, action, message string) {
	if s.audit == nil {
		return
	}
	name := actorID
	if actorID == "" {
		name = "system"
	} else if m, err := s.store.GetMember(ctx, actorID); err == nil && m.Name != "" {
		name = m.Name
	}
	if err := s.audit.Append(ctx, audit.Entry{
		ID: s.newID(), RoomID: roomID, ActorID: actorID, ActorName: name,
		Action: action, Message: message, At: s.now().UTC(),
	}); err != nil {
		s.log.Errorf("audit append: %v", err)
	}
}

// carve removes slots from the member's preferences and appends the removed
// pieces to the room's undo log instead of replacing it, so ResetSlots can
// restore everything the room took.
func (s *Service) carve(ctx context.Context, roomID, memberID string, slots []model.Slot) error {
	if len(slots) == 0 {
		return nil
	}
	_, err := store.UpdateMember(ctx, s.store, s.retry, memberID, func(m *model.Member) error {
		prior := m.PreferenceBackups[roomID]
		next, removed := preference.RemovePreferenceTimes(*m, slots, roomID)
		next.PreferenceBackups[roomID] = append(append([]model.PreferenceWindow(nil), prior...), removed...)
		*m = next
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		s.log.Warnf("member %s has no document, preferences left untouched", memberID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("split preferences of %s: %w", memberID, err)
	}
	return nil
}
