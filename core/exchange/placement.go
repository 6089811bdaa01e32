package exchange

import (
	"context"
	"fmt"
	"sort"

	"github.com/kilianp07/slotshare/core/allocation"
	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/store"
	"github.com/kilianp07/slotshare/core/travel"
)

// withMoves returns a copy of room where each slot id in moves belongs to the mapped member.
func withMoves(room *model.Room, moves map[string]string) *model.Room {
	v := *room
	v.Slots = append([]model.Slot(nil), room.Slots...)
	for i := range v.Slots {
		if to, ok := moves[v.Slots[i].ID]; ok {
			v.Slots[i].MemberID = to
		}
	}
	return &v
}

// fits runs the simulator for memberID occupying s in view.
func (r *Resolver) fits(view *model.Room, members map[string]model.Member, memberID string, s model.Slot) (bool, string) {
	res, err := r.sim.Simulate(travel.Request{
		Room:        view,
		Members:     members,
		CandidateID: memberID,
		Date:        s.Date,
		Start:       s.Start,
		Duration:    s.Minutes(),
		Exclude:     []string{s.ID},
	})
	if err != nil {
		return false, err.Error()
	}
	if res.IsValid && (res.Effective != s.Interval() || res.Ripples()) {
		return false, fmt.Sprintf("travel to %s moves the day away from %s", memberID, s.Interval())
	}
	return res.IsValid, res.Reason
}

// searchDates returns the days of lost's week that are not in the past.
func (r *Resolver) searchDates(lost model.Slot) []model.Date {
	today := model.DateOf(r.now().UTC())
	var out []model.Date
	for _, d := range lost.Date.WeekStart().WeekDates() {
		if !d.Before(today) {
			out = append(out, d)
		}
	}
	return out
}

// destination looks for free preferred time of the same length as lost.
func (r *Resolver) destination(view *model.Room, members map[string]model.Member, memberID string, lost model.Slot) (model.Slot, bool) {
	step := view.Settings.SlotMinutes
	if step <= 0 {
		step = r.cfg.SlotMinutes
	}
	dest, ok := allocation.FindPlacement(r.sim, view, members, memberID, r.searchDates(lost), lost.Minutes(), step, nil)
	if !ok {
		return model.Slot{}, false
	}
	dest.Source = model.SourceExchange
	return dest, true
}

// nextCandidate picks the slot mover would take next in a chain. Only slots
// of the same length in the same week are considered and mover must pass the
// simulator there. Members with the lowest weekly load go first, then join
// order, then id.
func (r *Resolver) nextCandidate(view *model.Room, members map[string]model.Member, mover string, lost model.Slot, excluded []string) (model.Slot, bool) {
	skip := map[string]bool{mover: true, view.OwnerID: true}
	for _, id := range excluded {
		skip[id] = true
	}
	inWeek := map[model.Date]bool{}
	for _, d := range r.searchDates(lost) {
		inWeek[d] = true
	}
	load := map[string]int{}
	for _, s := range view.Slots {
		if s.Kind == model.SlotClass && inWeek[s.Date] {
			load[s.MemberID] += s.Minutes()
		}
	}

	var opts []model.Slot
	for _, s := range view.Slots {
		if s.Kind != model.SlotClass || !inWeek[s.Date] || skip[s.MemberID] || s.ID == lost.ID {
			continue
		}
		if s.Minutes() != lost.Minutes() || !view.IsParticipant(s.MemberID) {
			continue
		}
		if ok, _ := r.fits(view, members, mover, s); ok {
			opts = append(opts, s)
		}
	}
	if len(opts) == 0 {
		return model.Slot{}, false
	}
	sort.SliceStable(opts, func(i, j int) bool {
		a, b := opts[i], opts[j]
		if load[a.MemberID] != load[b.MemberID] {
			return load[a.MemberID] < load[b.MemberID]
		}
		if ja, jb := view.JoinIndex(a.MemberID), view.JoinIndex(b.MemberID); ja != jb {
			return ja < jb
		}
		if a.MemberID != b.MemberID {
			return a.MemberID < b.MemberID
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.Start < b.Start
	})
	return opts[0], true
}

// commit applies moves (slot id to new occupant) and adds dest in one room
// write. owners holds the occupant each moved slot must still have; any drift
// aborts with errStale. Preferences of every touched member follow.
func (r *Resolver) commit(ctx context.Context, roomID string, moves, owners map[string]string, dest *model.Slot) error {
	var d delta
	_, err := store.UpdateRoom(ctx, r.store, r.retry, roomID, func(room *model.Room) error {
		d = delta{}
		for id, to := range moves {
			s, ok := room.Slot(id)
			if !ok || s.MemberID != owners[id] {
				return errStale
			}
			d.lose(*s)
			d.gain(to, *s)
			s.MemberID = to
			s.Source = model.SourceExchange
			s.ConfirmedToCalendar = false
		}
		if dest != nil {
			slot := *dest
			slot.ID = r.newID()
			room.Slots = append(room.Slots, slot)
			d.gain(slot.MemberID, slot)
		}
		model.SortSlots(room.Slots)
		return nil
	})
	if err != nil {
		return err
	}
	return r.applyPreferences(ctx, roomID, d)
}
