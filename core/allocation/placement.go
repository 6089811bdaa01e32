package allocation

import (
	"sort"

	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/preference"
	"github.com/kilianp07/slotshare/core/travel"
)

// candidate is a free range a member could be placed in.
type candidate struct {
	date     model.Date
	free     model.Interval
	priority int
}

// freeRanges returns the parts of the member's preferred windows on date that
// are inside the daily bounds, inside the owner's availability when the owner
// declared any, and clear of blocked time and other occupants.
func freeRanges(room *model.Room, members map[string]model.Member, memberID string, date model.Date, skip map[string]bool) []candidate {
	m, ok := members[memberID]
	if !ok {
		return nil
	}
	bounds := room.Settings.Bounds()
	var cuts []model.Interval
	cuts = append(cuts, room.Settings.BlockedOn(date)...)
	for _, s := range room.SlotsOn(date) {
		if !skip[s.ID] {
			cuts = append(cuts, s.Interval())
		}
	}
	var ownerRanges []model.Interval
	if owner, ok := members[room.OwnerID]; ok && room.OwnerID != memberID && hasWindows(owner) {
		ownerRanges = preference.MergedFor(owner, date)
		if len(ownerRanges) == 0 {
			return nil
		}
	}

	var out []candidate
	for _, w := range preference.WindowsFor(m, date) {
		base := model.Interval{Start: w.Start, End: w.End}.Intersect(bounds)
		if base.Empty() {
			continue
		}
		ranges := []model.Interval{base}
		if ownerRanges != nil {
			ranges = intersectAll(base, ownerRanges)
		}
		for _, r := range preference.Subtract(ranges, cuts) {
			out = append(out, candidate{date: date, free: r, priority: w.Priority})
		}
	}
	return out
}

func hasWindows(m model.Member) bool {
	return len(m.RecurringWindows) > 0 || len(m.DateWindows) > 0
}

func intersectAll(r model.Interval, with []model.Interval) []model.Interval {
	var out []model.Interval
	for _, w := range with {
		if x := r.Intersect(w); !x.Empty() {
			out = append(out, x)
		}
	}
	return out
}

// sortCandidates orders by priority tier (strongest first), then date, then start.
func sortCandidates(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if a.date != b.date {
			return a.date < b.date
		}
		return a.free.Start < b.free.Start
	})
}

func alignUp(m model.Minute, step int) model.Minute {
	s := model.Minute(step)
	if r := m % s; r != 0 {
		return m + s - r
	}
	return m
}

// fit looks for the earliest granularity-aligned start inside c where a block
// of length minutes passes the simulator without moving anyone else. The block
// is placed where travel lets it start, which can be later than the aligned
// start. Without a travel mode every aligned start inside the free range is
// accepted as is.
func fit(sim *travel.Simulator, room *model.Room, members map[string]model.Member, memberID string, c candidate, length, step int, exclude []string) (model.Minute, bool) {
	for s := alignUp(c.free.Start, step); s+model.Minute(length) <= c.free.End; s += model.Minute(step) {
		if room.TravelMode == model.TravelNone || room.TravelMode == "" || sim == nil {
			return s, true
		}
		res, err := sim.Simulate(travel.Request{
			Room:        room,
			Members:     members,
			CandidateID: memberID,
			Date:        c.date,
			Start:       s,
			Duration:    length,
			Exclude:     exclude,
		})
		if err != nil || !res.IsValid || res.Ripples() || res.Effective.End > c.free.End {
			continue
		}
		return res.Effective.Start, true
	}
	return 0, false
}

// FindPlacement returns a free slot of exactly minutes for memberID on one of
// dates. Candidates are tried by priority tier, date and start. Slots listed
// in exclude are treated as vacated. The returned slot has no id.
func FindPlacement(sim *travel.Simulator, room *model.Room, members map[string]model.Member, memberID string, dates []model.Date, minutes, step int, exclude []string) (model.Slot, bool) {
	if minutes <= 0 {
		return model.Slot{}, false
	}
	if step <= 0 {
		step = room.Settings.SlotMinutes
	}
	if step <= 0 {
		step = minutes
	}
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var cs []candidate
	for _, d := range dates {
		cs = append(cs, freeRanges(room, members, memberID, d, skip)...)
	}
	sortCandidates(cs)
	for _, c := range cs {
		if c.free.Len() < minutes {
			continue
		}
		if start, ok := fit(sim, room, members, memberID, c, minutes, step, exclude); ok {
			return model.NewSlot("", c.date, start, start+model.Minute(minutes), memberID, ""), true
		}
	}
	return model.Slot{}, false
}
