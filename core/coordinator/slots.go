package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/slotshare/core/events"
	"github.com/kilianp07/slotshare/core/metrics"
	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/preference"
	"github.com/kilianp07/slotshare/core/store"
	"github.com/kilianp07/slotshare/core/travel"
)

// SimulateParams is a hypothetical insertion.
type SimulateParams struct {
	RoomID   string       `json:"room_id"`
	MemberID string       `json:"member_id"`
	Date     model.Date   `json:"date"`
	Start    model.Minute `json:"start"`
	Duration int          `json:"duration"`
	Exclude  []string     `json:"exclude,omitempty"`
}

// Simulate checks a hypothetical slot against the stored room.
func (s *Service) Simulate(ctx context.Context, p SimulateParams) (travel.Result, error) {
	room, err := s.store.GetRoom(ctx, p.RoomID)
	if err != nil {
		return travel.Result{}, fmt.Errorf("load room: %w", err)
	}
	members, err := s.members(ctx, &room)
	if err != nil {
		return travel.Result{}, err
	}
	return s.simulate(&room, members, p)
}

func (s *Service) simulate(room *model.Room, members map[string]model.Member, p SimulateParams) (travel.Result, error) {
	res, err := s.sim.Simulate(travel.Request{
		Room:        room,
		Members:     members,
		CandidateID: p.MemberID,
		Date:        p.Date,
		Start:       p.Start,
		Duration:    p.Duration,
		Exclude:     p.Exclude,
	})
	if err != nil {
		return travel.Result{}, err
	}
	if mErr := metrics.RecordSimulation(s.sink, metrics.SimulationEvent{RoomID: room.ID, Valid: res.IsValid, Code: res.Code, Time: s.now()}); mErr != nil {
		s.log.Warnf("record simulation metric: %v", mErr)
	}
	return res, nil
}

// InsertParams is a manual slot edit.
type InsertParams struct {
	RoomID   string       `json:"room_id"`
	MemberID string       `json:"member_id"`
	Date     model.Date   `json:"date"`
	Start    model.Minute `json:"start"`
	End      model.Minute `json:"end"`
	ActorID  string       `json:"actor_id"`
}

// InsertSlot adds a manual slot when the simulator accepts it. The slot is
// stored at the time travel lets it start, and it is refused when it would
// push a later occupant. A refused slot
// is reported through the returned Result with a zero Slot and no error. An
// armed auto-confirm deadline is re-armed.
func (s *Service) InsertSlot(ctx context.Context, p InsertParams) (model.Slot, travel.Result, error) {
	if p.End <= p.Start {
		return model.Slot{}, travel.Result{}, fmt.Errorf("insert slot: %w", model.ErrInvalidRange)
	}
	var (
		verdict travel.Result
		slot    model.Slot
	)
	_, err := store.UpdateRoom(ctx, s.store, s.retry, p.RoomID, func(r *model.Room) error {
		members, err := s.members(ctx, r)
		if err != nil {
			return err
		}
		verdict, err = s.simulate(r, members, SimulateParams{
			RoomID: r.ID, MemberID: p.MemberID, Date: p.Date, Start: p.Start, Duration: int(p.End - p.Start),
		})
		if err != nil {
			return err
		}
		if verdict.IsValid && verdict.Ripples() {
			verdict.IsValid = false
			verdict.Code = travel.ReasonDisplaces
			verdict.Reason = fmt.Sprintf("travel to %s would move a later class", p.MemberID)
		}
		if !verdict.IsValid {
			return errInfeasible
		}
		slot = model.NewSlot(s.newID(), p.Date, verdict.Effective.Start, verdict.Effective.End, p.MemberID, model.SourceManual)
		r.Slots = append(r.Slots, slot)
		model.SortSlots(r.Slots)
		if r.AutoConfirmAt != nil {
			r.ArmAutoConfirm(s.now().UTC(), s.autoMinutes(r))
		}
		return nil
	})
	if errors.Is(err, errInfeasible) {
		return model.Slot{}, verdict, nil
	}
	if err != nil {
		return model.Slot{}, travel.Result{}, err
	}
	if err := s.carve(ctx, p.RoomID, p.MemberID, []model.Slot{slot}); err != nil {
		return slot, verdict, err
	}
	s.record(ctx, p.RoomID, p.ActorID, "slot.insert", fmt.Sprintf("added %s %s for %s", slot.Date, slot.Interval(), slot.MemberID))
	return slot, verdict, nil
}

// PreferencesUpdate replaces a member's declared availability.
type PreferencesUpdate struct {
	Location            *model.GeoPoint            `json:"location,omitempty"`
	RecurringWindows    []model.PreferenceWindow   `json:"recurring_windows"`
	DateWindows         []model.PreferenceWindow   `json:"date_windows"`
	BlockingCommitments []model.BlockingCommitment `json:"blocking_commitments"`
}

// UpdatePreferences stores new availability for memberID. When roomID is set
// the slots the member already holds there are carved out of the new windows
// and the room's analysis is refreshed.
func (s *Service) UpdatePreferences(ctx context.Context, roomID, memberID string, u PreferencesUpdate) (model.Member, error) {
	candidate := model.Member{
		ID:                  memberID,
		Location:            u.Location,
		RecurringWindows:    u.RecurringWindows,
		DateWindows:         u.DateWindows,
		BlockingCommitments: u.BlockingCommitments,
	}
	if err := candidate.Validate(); err != nil {
		return model.Member{}, err
	}
	var held []model.Slot
	if roomID != "" {
		room, err := s.store.GetRoom(ctx, roomID)
		if err != nil {
			return model.Member{}, fmt.Errorf("load room: %w", err)
		}
		if !room.IsParticipant(memberID) {
			return model.Member{}, fmt.Errorf("%w: %s", model.ErrUnknownMember, memberID)
		}
		held = room.SlotsOf(memberID)
	}
	m, err := store.UpdateMember(ctx, s.store, s.retry, memberID, func(m *model.Member) error {
		if u.Location != nil {
			m.Location = u.Location
		}
		m.RecurringWindows = u.RecurringWindows
		m.DateWindows = u.DateWindows
		m.BlockingCommitments = u.BlockingCommitments
		if len(held) > 0 {
			*m, _ = preference.RemovePreferenceTimes(*m, held, roomID)
		}
		m.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return model.Member{}, fmt.Errorf("update preferences: %w", err)
	}
	if roomID != "" {
		if _, err := s.Reanalyze(ctx, roomID); err != nil {
			s.log.Warnf("reanalyze room %s: %v", roomID, err)
		}
	}
	return m, nil
}

// ResetSlots removes every slot of the room, disarms auto-confirm and
// restores each participant's preferences from the room's undo log.
func (s *Service) ResetSlots(ctx context.Context, roomID, actorID string) (int, error) {
	removed := 0
	room, err := store.UpdateRoom(ctx, s.store, s.retry, roomID, func(r *model.Room) error {
		removed = len(r.Slots)
		r.Slots = nil
		r.DisarmAutoConfirm()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reset slots: %w", err)
	}
	for _, id := range room.MemberIDs() {
		_, err := store.UpdateMember(ctx, s.store, s.retry, id, func(m *model.Member) error {
			*m = preference.RestorePreferenceTimes(*m, roomID)
			return nil
		})
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("restore preferences of %s: %w", id, err)
		}
	}
	s.record(ctx, roomID, actorID, "schedule.reset", fmt.Sprintf("removed %d slots", removed))
	return removed, nil
}

func (s *Service) autoMinutes(r *model.Room) int {
	if r.AutoConfirmDurationMinutes > 0 {
		return r.AutoConfirmDurationMinutes
	}
	return s.cfg.AutoConfirmMinutes
}

// ArmAutoConfirm sets the room's single confirmation deadline, replacing any
// previous one. minutes <= 0 keeps the room's last duration or the default.
func (s *Service) ArmAutoConfirm(ctx context.Context, roomID string, minutes int) (model.Room, error) {
	room, err := store.UpdateRoom(ctx, s.store, s.retry, roomID, func(r *model.Room) error {
		if minutes <= 0 {
			minutes = s.autoMinutes(r)
		}
		r.ArmAutoConfirm(s.now().UTC(), minutes)
		return nil
	})
	if err != nil {
		return model.Room{}, fmt.Errorf("arm auto-confirm: %w", err)
	}
	s.publish(roomID, events.AutoConfirmArmed, nil, map[string]any{"at": room.AutoConfirmAt.Format(time.RFC3339)})
	return room, nil
}

// DisarmAutoConfirm clears the room's deadline.
func (s *Service) DisarmAutoConfirm(ctx context.Context, roomID string) (model.Room, error) {
	room, err := store.UpdateRoom(ctx, s.store, s.retry, roomID, func(r *model.Room) error {
		r.DisarmAutoConfirm()
		return nil
	})
	if err != nil {
		return model.Room{}, fmt.Errorf("disarm auto-confirm: %w", err)
	}
	return room, nil
}
