// Package commit confirms a room's schedule into the members' personal
// calendars. Confirmation is idempotent: every calendar block carries a source
// key derived from the committed range, and blocks already present are skipped.
package commit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/slotshare/core/audit"
	"github.com/kilianp07/slotshare/core/events"
	"github.com/kilianp07/slotshare/core/logger"
	"github.com/kilianp07/slotshare/core/metrics"
	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/preference"
	"github.com/kilianp07/slotshare/core/store"
	"github.com/kilianp07/slotshare/core/travel"
)

// ErrCommitFailed is returned when a calendar or room write could not be applied.
var ErrCommitFailed = errors.New("calendar commit failed")

// Config bounds the optimistic write retries.
type Config struct {
	MaxAttempts int `json:"max_attempts"`
	BackoffMs   int `json:"backoff_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = store.DefaultRetryPolicy.MaxAttempts
	}
	if c.BackoffMs <= 0 {
		c.BackoffMs = int(store.DefaultRetryPolicy.Step / time.Millisecond)
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.MaxAttempts > 20 {
		return fmt.Errorf("max_attempts must not exceed 20")
	}
	return nil
}

// Policy returns the retry policy described by c.
func (c Config) Policy() store.RetryPolicy {
	return store.RetryPolicy{MaxAttempts: c.MaxAttempts, Step: time.Duration(c.BackoffMs) * time.Millisecond}
}

// Result summarizes one confirmation.
type Result struct {
	RoomID  string   `json:"room_id"`
	Slots   []string `json:"slots"`
	Blocks  int      `json:"blocks"`
	Skipped bool     `json:"skipped"`
}

// Committer writes confirmed schedules.
type Committer struct {
	store store.Store
	sim   *travel.Simulator
	bus   events.Publisher
	audit audit.Log
	sink  metrics.Sink
	log   logger.Logger
	retry store.RetryPolicy
	now   func() time.Time
}

// Option customizes a Committer.
type Option func(*Committer)

func WithPublisher(p events.Publisher) Option { return func(c *Committer) { c.bus = p } }
func WithAudit(l audit.Log) Option            { return func(c *Committer) { c.audit = l } }
func WithMetrics(s metrics.Sink) Option       { return func(c *Committer) { c.sink = s } }
func WithLogger(l logger.Logger) Option       { return func(c *Committer) { c.log = l } }
func WithClock(now func() time.Time) Option   { return func(c *Committer) { c.now = now } }

// New returns a Committer.
func New(cfg Config, st store.Store, sim *travel.Simulator, opts ...Option) *Committer {
	cfg.SetDefaults()
	c := &Committer{
		store: st,
		sim:   sim,
		bus:   events.NopPublisher{},
		sink:  metrics.NopSink{},
		log:   logger.NopLogger{},
		retry: cfg.Policy(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logger.OrNop(c.log)
	c.sink = metrics.OrNop(c.sink)
	return c
}

// Confirm writes every unconfirmed class slot of the room to the calendars.
// Members receive their own merged class blocks; the owner receives one block
// per member and date that includes the member's travel leg.
func (c *Committer) Confirm(ctx context.Context, roomID, actorID string) (res Result, err error) {
	start := c.now()
	defer func() {
		ev := metrics.CommitEvent{RoomID: roomID, Blocks: res.Blocks, Skipped: res.Skipped, Duration: c.now().Sub(start), Time: start}
		if err != nil {
			ev.Err = err.Error()
		}
		if mErr := metrics.RecordCommit(c.sink, ev); mErr != nil {
			c.log.Warnf("record commit metric: %v", mErr)
		}
	}()

	room, err := c.store.GetRoom(ctx, roomID)
	if err != nil {
		return Result{}, fmt.Errorf("load room: %w", err)
	}
	res.RoomID = room.ID
	if actorID != "" && !room.IsParticipant(actorID) {
		return res, fmt.Errorf("%w: %s", model.ErrNotParticipant, actorID)
	}
	members, err := c.store.GetMembers(ctx, room.MemberIDs())
	if err != nil {
		return res, fmt.Errorf("load members: %w", err)
	}

	plan, slotIDs := c.plan(&room, members)
	if len(slotIDs) == 0 {
		res.Skipped = true
		if room.AutoConfirmAt != nil {
			_, err := store.UpdateRoom(ctx, c.store, c.retry, room.ID, func(r *model.Room) error {
				r.DisarmAutoConfirm()
				return nil
			})
			if err != nil {
				return res, fmt.Errorf("%w: %w", ErrCommitFailed, err)
			}
		}
		return res, nil
	}

	ids := make([]string, 0, len(plan))
	for id := range plan {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		n, err := c.write(ctx, id, plan[id])
		if err != nil {
			return res, err
		}
		res.Blocks += n
	}

	now := c.now().UTC()
	wanted := make(map[string]string, len(slotIDs))
	for _, s := range slotIDs {
		wanted[s.ID] = s.MemberID
	}
	_, err = store.UpdateRoom(ctx, c.store, c.retry, room.ID, func(r *model.Room) error {
		for i := range r.Slots {
			if who, ok := wanted[r.Slots[i].ID]; ok && r.Slots[i].MemberID == who {
				r.Slots[i].ConfirmedToCalendar = true
			}
		}
		r.DisarmAutoConfirm()
		r.ConfirmedTravelMode = r.TravelMode
		r.ConfirmedAt = &now
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("%w: room %s: %w", ErrCommitFailed, room.ID, err)
	}
	for _, s := range slotIDs {
		res.Slots = append(res.Slots, s.ID)
	}

	c.record(ctx, room, actorID, members, res)
	c.bus.Publish(events.RoomEvent{
		RoomID: room.ID,
		Name:   events.ScheduleConfirmed,
		Payload: map[string]any{
			"slots":       len(res.Slots),
			"blocks":      res.Blocks,
			"travel_mode": string(room.TravelMode),
			"actor":       actorID,
		},
		At: now,
	})
	c.log.Infow("schedule confirmed", map[string]any{"room_id": room.ID, "slots": len(res.Slots), "blocks": res.Blocks})
	return res, nil
}

// plan returns the calendar blocks per member and the slots they cover.
func (c *Committer) plan(room *model.Room, members map[string]model.Member) (map[string][]model.CalendarBlock, []model.Slot) {
	type key struct {
		member string
		date   model.Date
	}
	groups := map[key][]model.Slot{}
	var keys []key
	var pending []model.Slot
	for _, s := range room.Slots {
		if s.Kind != model.SlotClass || s.ConfirmedToCalendar {
			continue
		}
		k := key{s.MemberID, s.Date}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], s)
		pending = append(pending, s)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].member < keys[j].member
	})
	model.SortSlots(pending)

	chains := map[model.Date]map[string]travel.Segment{}
	plan := map[string][]model.CalendarBlock{}
	for _, k := range keys {
		slots := groups[k]
		ranges := make([]model.Interval, 0, len(slots))
		for _, s := range slots {
			ranges = append(ranges, s.Interval())
		}
		merged := preference.Merge(ranges)
		for _, r := range merged {
			plan[k.member] = append(plan[k.member], model.CalendarBlock{
				SourceKey: SourceKey(room.ID, k.member, k.date, r, model.BlockClass),
				RoomID:    room.ID,
				Date:      k.date,
				Start:     r.Start,
				End:       r.End,
				Kind:      model.BlockClass,
				Title:     room.Name,
			})
		}
		if k.member == room.OwnerID {
			continue
		}

		segs, ok := chains[k.date]
		if !ok {
			segs = map[string]travel.Segment{}
			for _, sg := range c.sim.DayChain(room, members, k.date, nil, nil) {
				segs[sg.SlotID] = sg
			}
			chains[k.date] = segs
		}
		first, last := merged[0].Start, merged[len(merged)-1].End
		mirror := model.Interval{Start: first, End: last}
		travelMins := 0
		for _, s := range slots {
			sg := segs[s.ID]
			travelMins += sg.TravelMinutes
			w := sg.Window()
			mirror.Start = min(mirror.Start, max(w.Start, 0))
			mirror.End = max(mirror.End, w.End)
		}
		name := k.member
		if m, ok := members[k.member]; ok && m.Name != "" {
			name = m.Name
		}
		plan[room.OwnerID] = append(plan[room.OwnerID], model.CalendarBlock{
			SourceKey:    SourceKey(room.ID, k.member, k.date, mirror, model.BlockMirror),
			RoomID:       room.ID,
			Date:         k.date,
			Start:        mirror.Start,
			End:          mirror.End,
			Kind:         model.BlockMirror,
			Title:        fmt.Sprintf("%s: %s", room.Name, name),
			Counterpart:  k.member,
			TravelMinute: travelMins,
		})
	}
	return plan, pending
}

// SourceKey identifies a committed range in a member calendar.
func SourceKey(roomID, memberID string, d model.Date, r model.Interval, kind string) string {
	return fmt.Sprintf("%s/%s/%s/%s-%s/%s", roomID, memberID, d, r.Start, r.End, kind)
}

// write appends the blocks the member does not have yet and returns how many were added.
func (c *Committer) write(ctx context.Context, memberID string, blocks []model.CalendarBlock) (int, error) {
	added := 0
	_, err := store.UpdateMember(ctx, c.store, c.retry, memberID, func(m *model.Member) error {
		added = 0
		for _, b := range blocks {
			if m.HasCalendarBlock(b.SourceKey) {
				continue
			}
			m.Calendar = append(m.Calendar, b)
			added++
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		c.log.Warnf("member %s has no document, %d calendar blocks dropped", memberID, len(blocks))
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: calendar of %s: %w", ErrCommitFailed, memberID, err)
	}
	return added, nil
}

func (c *Committer) record(ctx context.Context, room model.Room, actorID string, members map[string]model.Member, res Result) {
	if c.audit == nil {
		return
	}
	name := actorID
	if actorID == "" {
		name = "auto-confirm"
	} else if m, ok := members[actorID]; ok && m.Name != "" {
		name = m.Name
	}
	if err := c.audit.Append(ctx, audit.Entry{
		ID:        uuid.NewString(),
		RoomID:    room.ID,
		ActorID:   actorID,
		ActorName: name,
		Action:    "schedule.confirm",
		Message:   fmt.Sprintf("confirmed %d slots into %d calendar blocks (travel %s)", len(res.Slots), res.Blocks, room.TravelMode),
		At:        c.now().UTC(),
	}); err != nil {
		c.log.Errorf("audit append: %v", err)
	}
}
