package model

// Interval is a half-open [Start, End) range of minutes within a day.
type Interval struct {
	Start Minute `json:"start" yaml:"start"`
	End   Minute `json:"end" yaml:"end"`
}

// Len returns the interval length in minutes.
func (i Interval) Len() int {
	if i.End <= i.Start {
		return 0
	}
	return int(i.End - i.Start)
}

// Empty reports whether the interval covers no minute.
func (i Interval) Empty() bool { return i.End <= i.Start }

// Overlaps reports whether the two half-open intervals share at least one minute.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Contains reports whether o lies fully inside i.
func (i Interval) Contains(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

// Intersect returns the shared part of both intervals, which may be empty.
func (i Interval) Intersect(o Interval) Interval {
	out := Interval{Start: max(i.Start, o.Start), End: min(i.End, o.End)}
	if out.End < out.Start {
		out.End = out.Start
	}
	return out
}

func (i Interval) String() string { return i.Start.String() + "-" + i.End.String() }
