package model

import (
	"fmt"
	"time"
)

// Priority tiers of a preference window. Higher is stronger.
const (
	PriorityLow    = 1
	PriorityNormal = 2
	PriorityHigh   = 3
)

// GeoPoint is a plain latitude/longitude pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// PreferenceWindow is an availability range. Recurring windows have an empty
// Date and match on Weekday; date-specific windows match on Date only.
type PreferenceWindow struct {
	Weekday  int    `json:"weekday" yaml:"weekday"`
	Date     Date   `json:"date,omitempty" yaml:"date,omitempty"`
	Start    Minute `json:"start" yaml:"start"`
	End      Minute `json:"end" yaml:"end"`
	Priority int    `json:"priority" yaml:"priority"`
}

// Recurring reports whether the window repeats weekly.
func (w PreferenceWindow) Recurring() bool { return w.Date == "" }

// Matches reports whether the window applies to the given day.
func (w PreferenceWindow) Matches(d Date) bool {
	if w.Recurring() {
		return NormalizeWeekday(w.Weekday) == d.Weekday()
	}
	return w.Date == d
}

// Minutes returns the window length.
func (w PreferenceWindow) Minutes() int { return int(w.End - w.Start) }

// BlockingCommitment is personal occupancy that is never negotiable. It repeats
// weekly on Weekday unless Date is set.
type BlockingCommitment struct {
	Title   string `json:"title" yaml:"title"`
	Weekday int    `json:"weekday" yaml:"weekday"`
	Date    Date   `json:"date,omitempty" yaml:"date,omitempty"`
	Start   Minute `json:"start" yaml:"start"`
	End     Minute `json:"end" yaml:"end"`
}

// Matches reports whether the commitment occupies the given day.
func (c BlockingCommitment) Matches(d Date) bool {
	if c.Date != "" {
		return c.Date == d
	}
	return NormalizeWeekday(c.Weekday) == d.Weekday()
}

// Calendar block kinds.
const (
	BlockClass  = "class"
	BlockMirror = "mirror"
)

// CalendarBlock is an entry in a member's personal calendar written on confirmation.
// SourceKey identifies the committed range so re-applying a commit is a no-op.
type CalendarBlock struct {
	SourceKey    string `json:"source_key"`
	RoomID       string `json:"room_id"`
	Date         Date   `json:"date"`
	Start        Minute `json:"start"`
	End          Minute `json:"end"`
	Kind         string `json:"kind"`
	Title        string `json:"title"`
	Counterpart  string `json:"counterpart,omitempty"`
	TravelMinute int    `json:"travel_minutes,omitempty"`
}

// Member is the per-person document holding availability and the personal calendar.
type Member struct {
	ID                  string                        `json:"id"`
	Name                string                        `json:"name"`
	Location            *GeoPoint                     `json:"location,omitempty"`
	RecurringWindows    []PreferenceWindow            `json:"recurring_windows"`
	DateWindows         []PreferenceWindow            `json:"date_windows"`
	BlockingCommitments []BlockingCommitment          `json:"blocking_commitments"`
	Calendar            []CalendarBlock               `json:"calendar"`
	PreferenceBackups   map[string][]PreferenceWindow `json:"preference_backups,omitempty"`
	Version             int64                         `json:"version"`
	UpdatedAt           time.Time                     `json:"updated_at"`
}

// HasCalendarBlock reports whether a block with the given source key exists.
func (m Member) HasCalendarBlock(key string) bool {
	for _, b := range m.Calendar {
		if b.SourceKey == key {
			return true
		}
	}
	return false
}

// Validate checks that every window and commitment is well formed.
func (m Member) Validate() error {
	vErr := &ValidationError{}
	if m.ID == "" {
		vErr.Add("id", "required")
	}
	for i, w := range m.RecurringWindows {
		validateWindow(vErr, fmt.Sprintf("recurring_windows[%d]", i), w)
		if w.Date != "" {
			vErr.Add(fmt.Sprintf("recurring_windows[%d].date", i), "must be empty for recurring windows")
		}
	}
	for i, w := range m.DateWindows {
		validateWindow(vErr, fmt.Sprintf("date_windows[%d]", i), w)
		if w.Date == "" {
			vErr.Add(fmt.Sprintf("date_windows[%d].date", i), "required")
		}
	}
	for i, c := range m.BlockingCommitments {
		field := fmt.Sprintf("blocking_commitments[%d]", i)
		if !c.Start.Valid() || !c.End.Valid() || c.End <= c.Start {
			vErr.Add(field, ErrInvalidRange.Error())
		}
		if c.Date != "" && !c.Date.Valid() {
			vErr.Add(field+".date", ErrInvalidDate.Error())
		}
	}
	if m.Location != nil {
		if m.Location.Lat < -90 || m.Location.Lat > 90 || m.Location.Lng < -180 || m.Location.Lng > 180 {
			vErr.Add("location", "out of range")
		}
	}
	return vErr.Err()
}

func validateWindow(vErr *ValidationError, field string, w PreferenceWindow) {
	if !w.Start.Valid() || !w.End.Valid() || w.End <= w.Start {
		vErr.Add(field, ErrInvalidRange.Error())
	}
	if w.Priority < PriorityLow || w.Priority > PriorityHigh {
		vErr.Add(field+".priority", "must be between 1 and 3")
	}
	if w.Weekday < 0 || w.Weekday > 7 {
		vErr.Add(field+".weekday", "must be between 0 and 7")
	}
	if w.Date != "" && !w.Date.Valid() {
		vErr.Add(field+".date", ErrInvalidDate.Error())
	}
}
