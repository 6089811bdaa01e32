// Package preference maintains member availability windows. It splits windows
// around assigned ranges, keeps a per-room undo log of every subtracted piece
// and merges fragments back into maximal ranges.
package preference

import (
	"sort"

	"github.com/kilianp07/slotshare/core/model"
)

// Merge returns the union of the ranges as sorted maximal contiguous ranges.
// Touching ranges are joined.
func Merge(ranges []model.Interval) []model.Interval {
	in := make([]model.Interval, 0, len(ranges))
	for _, r := range ranges {
		if !r.Empty() {
			in = append(in, r)
		}
	}
	sort.Slice(in, func(i, j int) bool {
		if in[i].Start != in[j].Start {
			return in[i].Start < in[j].Start
		}
		return in[i].End < in[j].End
	})
	var out []model.Interval
	for _, r := range in {
		if n := len(out); n > 0 && r.Start <= out[n-1].End {
			if r.End > out[n-1].End {
				out[n-1].End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// Subtract removes every cut from ranges and returns what is left, sorted.
func Subtract(ranges, cuts []model.Interval) []model.Interval {
	current := Merge(ranges)
	for _, cut := range cuts {
		if cut.Empty() {
			continue
		}
		next := make([]model.Interval, 0, len(current)+1)
		for _, c := range current {
			left, _ := split(c, cut)
			next = append(next, left...)
		}
		current = next
	}
	return current
}

// split cuts one range and returns the leftover pieces and the removed overlap.
func split(r, cut model.Interval) ([]model.Interval, model.Interval) {
	if !r.Overlaps(cut) {
		return []model.Interval{r}, model.Interval{}
	}
	var left []model.Interval
	if r.Start < cut.Start {
		left = append(left, model.Interval{Start: r.Start, End: cut.Start})
	}
	if cut.End < r.End {
		left = append(left, model.Interval{Start: cut.End, End: r.End})
	}
	return left, r.Intersect(cut)
}

// Intervals projects windows onto their minute ranges.
func Intervals(windows []model.PreferenceWindow) []model.Interval {
	out := make([]model.Interval, 0, len(windows))
	for _, w := range windows {
		out = append(out, model.Interval{Start: w.Start, End: w.End})
	}
	return out
}

// WindowsFor returns the effective windows of a date. Date-specific windows
// replace the recurring ones when any exist for that date. Blocking
// commitments are cut out and the priority of each fragment is kept.
func WindowsFor(m model.Member, d model.Date) []model.PreferenceWindow {
	var base []model.PreferenceWindow
	for _, w := range m.DateWindows {
		if w.Matches(d) {
			base = append(base, w)
		}
	}
	if len(base) == 0 {
		for _, w := range m.RecurringWindows {
			if w.Matches(d) {
				base = append(base, w)
			}
		}
	}
	cuts := Commitments(m, d)
	var out []model.PreferenceWindow
	for _, w := range base {
		for _, r := range Subtract([]model.Interval{{Start: w.Start, End: w.End}}, cuts) {
			frag := w
			frag.Start, frag.End = r.Start, r.End
			out = append(out, frag)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Commitments returns the blocking commitments of the member on d.
func Commitments(m model.Member, d model.Date) []model.Interval {
	var out []model.Interval
	for _, c := range m.BlockingCommitments {
		if c.Matches(d) {
			out = append(out, model.Interval{Start: c.Start, End: c.End})
		}
	}
	return out
}

// MergedFor returns the maximal preferred ranges of the member on d.
func MergedFor(m model.Member, d model.Date) []model.Interval {
	return Merge(Intervals(WindowsFor(m, d)))
}

// AvailableMinutes sums the preferred minutes of the member across dates.
func AvailableMinutes(m model.Member, dates []model.Date) int {
	total := 0
	for _, d := range dates {
		for _, r := range MergedFor(m, d) {
			total += r.Len()
		}
	}
	return total
}
