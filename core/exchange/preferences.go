package exchange

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"

	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/preference"
	"github.com/kilianp07/slotshare/core/store"
)

// delta lists, per member, the slots a committed exchange took away and gave.
type delta struct {
	lost   map[string][]model.Slot
	gained map[string][]model.Slot
}

func (d *delta) lose(s model.Slot) {
	if d.lost == nil {
		d.lost = map[string][]model.Slot{}
	}
	d.lost[s.MemberID] = append(d.lost[s.MemberID], s)
}

func (d *delta) gain(memberID string, s model.Slot) {
	if d.gained == nil {
		d.gained = map[string][]model.Slot{}
	}
	s.MemberID = memberID
	d.gained[memberID] = append(d.gained[memberID], s)
}

// applyPreferences keeps every touched member's preferred time consistent with
// the slots they hold: lost ranges go back, gained ranges are carved out and
// logged for the room.
func (r *Resolver) applyPreferences(ctx context.Context, roomID string, d delta) error {
	ids := make([]string, 0, len(d.lost)+len(d.gained))
	for id := range d.lost {
		ids = append(ids, id)
	}
	for id := range d.gained {
		if _, ok := d.lost[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		_, err := store.UpdateMember(ctx, r.store, r.retry, id, func(m *model.Member) error {
			for _, s := range d.lost[id] {
				*m = giveBack(*m, roomID, s)
			}
			if gained := d.gained[id]; len(gained) > 0 {
				// the room's undo log is extended, never replaced
				prior := m.PreferenceBackups[roomID]
				next, removed := preference.RemovePreferenceTimes(*m, gained, roomID)
				next.PreferenceBackups[roomID] = append(append([]model.PreferenceWindow(nil), prior...), removed...)
				*m = next
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				r.log.Warnf("member %s has no document, preferences left untouched", id)
				continue
			}
			return fmt.Errorf("update preferences of %s: %w", id, err)
		}
	}
	return nil
}

// giveBack returns slot s to m. Pieces logged when the range was taken are
// restored with their original key and priority; whatever the log does not
// cover comes back as a normal priority date window.
func giveBack(m model.Member, roomID string, s model.Slot) model.Member {
	span := s.Interval()
	var covered []model.Interval
	var keep []model.PreferenceWindow
	for _, p := range m.PreferenceBackups[roomID] {
		sameDay := p.Date == s.Date || (p.Recurring() && model.NormalizeWeekday(p.Weekday) == s.Weekday)
		x := model.Interval{Start: p.Start, End: p.End}.Intersect(span)
		if !sameDay || x.Empty() {
			keep = append(keep, p)
			continue
		}
		back := p
		back.Start, back.End = x.Start, x.End
		m = preference.ReturnRange(m, back)
		covered = append(covered, x)
		for _, rest := range preference.Subtract([]model.Interval{{Start: p.Start, End: p.End}}, []model.Interval{x}) {
			left := p
			left.Start, left.End = rest.Start, rest.End
			keep = append(keep, left)
		}
	}
	for _, rest := range preference.Subtract([]model.Interval{span}, covered) {
		m = preference.ReturnRange(m, model.PreferenceWindow{
			Date:     s.Date,
			Start:    rest.Start,
			End:      rest.End,
			Priority: model.PriorityNormal,
		})
	}
	if _, ok := m.PreferenceBackups[roomID]; ok {
		backups := maps.Clone(m.PreferenceBackups)
		if len(keep) == 0 {
			delete(backups, roomID)
		} else {
			backups[roomID] = keep
		}
		m.PreferenceBackups = backups
	}
	return m
}
