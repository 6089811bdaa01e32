package preference

import (
	"maps"
	"sort"

	"github.com/kilianp07/slotshare/core/model"
)

// RemovePreferenceTimes cuts every assigned class range out of the member's
// windows. Recurring windows match an assigned range on its weekday and
// date-specific windows on its exact date. Each window may end up as zero, one
// or two fragments carrying the original priority. The subtracted pieces are
// returned and stored as the undo log for roomID, replacing any previous log.
func RemovePreferenceTimes(m model.Member, assigned []model.Slot, roomID string) (model.Member, []model.PreferenceWindow) {
	var removed []model.PreferenceWindow
	m.RecurringWindows, removed = splitWindows(m.RecurringWindows, assigned, removed)
	m.DateWindows, removed = splitWindows(m.DateWindows, assigned, removed)

	backups := make(map[string][]model.PreferenceWindow, len(m.PreferenceBackups)+1)
	maps.Copy(backups, m.PreferenceBackups)
	backups[roomID] = removed
	m.PreferenceBackups = backups
	return m, removed
}

func splitWindows(windows []model.PreferenceWindow, assigned []model.Slot, removed []model.PreferenceWindow) ([]model.PreferenceWindow, []model.PreferenceWindow) {
	out := make([]model.PreferenceWindow, 0, len(windows))
	for _, w := range windows {
		pieces := []model.Interval{{Start: w.Start, End: w.End}}
		for _, a := range assigned {
			if a.Kind != "" && a.Kind != model.SlotClass {
				continue
			}
			if !w.Matches(a.Date) {
				continue
			}
			next := make([]model.Interval, 0, len(pieces)+1)
			for _, p := range pieces {
				left, cut := split(p, a.Interval())
				next = append(next, left...)
				if !cut.Empty() {
					piece := w
					piece.Start, piece.End = cut.Start, cut.End
					removed = append(removed, piece)
				}
			}
			pieces = next
		}
		for _, p := range pieces {
			frag := w
			frag.Start, frag.End = p.Start, p.End
			out = append(out, frag)
		}
	}
	return out, removed
}

// RestorePreferenceTimes merges the undo log of roomID back into the windows
// and clears it.
func RestorePreferenceTimes(m model.Member, roomID string) model.Member {
	log := m.PreferenceBackups[roomID]
	for _, w := range log {
		m = ReturnRange(m, w)
	}
	if _, ok := m.PreferenceBackups[roomID]; ok {
		backups := maps.Clone(m.PreferenceBackups)
		delete(backups, roomID)
		m.PreferenceBackups = backups
	}
	return m
}

// ReturnRange gives a released range back to the member. Fragments with the
// same key and priority that touch or overlap are joined.
func ReturnRange(m model.Member, w model.PreferenceWindow) model.Member {
	if w.Recurring() {
		m.RecurringWindows = coalesce(append(append([]model.PreferenceWindow(nil), m.RecurringWindows...), w))
	} else {
		m.DateWindows = coalesce(append(append([]model.PreferenceWindow(nil), m.DateWindows...), w))
	}
	return m
}

type windowKey struct {
	weekday  int
	date     model.Date
	priority int
}

func keyOf(w model.PreferenceWindow) windowKey {
	k := windowKey{date: w.Date, priority: w.Priority}
	if w.Recurring() {
		k.weekday = model.NormalizeWeekday(w.Weekday)
	} else {
		k.weekday = w.Date.Weekday()
	}
	return k
}

func coalesce(windows []model.PreferenceWindow) []model.PreferenceWindow {
	groups := make(map[windowKey][]model.Interval)
	var order []windowKey
	for _, w := range windows {
		k := keyOf(w)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], model.Interval{Start: w.Start, End: w.End})
	}
	var out []model.PreferenceWindow
	for _, k := range order {
		for _, r := range Merge(groups[k]) {
			out = append(out, model.PreferenceWindow{
				Weekday:  k.weekday,
				Date:     k.date,
				Start:    r.Start,
				End:      r.End,
				Priority: k.priority,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Weekday != b.Weekday {
			return a.Weekday < b.Weekday
		}
		return a.Start < b.Start
	})
	return out
}
