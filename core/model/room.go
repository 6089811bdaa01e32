package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TravelMode selects the speed used to compute travel legs.
type TravelMode string

const (
	TravelNone      TravelMode = "none"
	TravelDriving   TravelMode = "driving"
	TravelTransit   TravelMode = "transit"
	TravelWalking   TravelMode = "walking"
	TravelBicycling TravelMode = "bicycling"
)

// ParseTravelMode validates s. An empty string means TravelNone.
func ParseTravelMode(s string) (TravelMode, error) {
	switch TravelMode(s) {
	case "", TravelNone:
		return TravelNone, nil
	case TravelDriving, TravelTransit, TravelWalking, TravelBicycling:
		return TravelMode(s), nil
	}
	return "", fmt.Errorf("unknown travel mode %q", s)
}

// AssignmentMode selects the member ordering used by the allocator.
type AssignmentMode string

const (
	ModePriorityFirst AssignmentMode = "priority-first"
	ModeFirstCome     AssignmentMode = "first-come"
	ModeFromToday     AssignmentMode = "from-today"
)

// ParseAssignmentMode validates s. An empty string means ModePriorityFirst.
func ParseAssignmentMode(s string) (AssignmentMode, error) {
	switch AssignmentMode(s) {
	case "":
		return ModePriorityFirst, nil
	case ModePriorityFirst, ModeFirstCome, ModeFromToday:
		return AssignmentMode(s), nil
	}
	return "", fmt.Errorf("unknown assignment mode %q", s)
}

// CarryOverEntry records the carry-over computed at the end of a week.
type CarryOverEntry struct {
	Week  Date            `json:"week"`
	Hours decimal.Decimal `json:"hours"`
}

// RoomMember is the membership record of a member inside a room.
type RoomMember struct {
	MemberID           string           `json:"member_id"`
	JoinedAt           time.Time        `json:"joined_at"`
	CarryOverHours     decimal.Decimal  `json:"carry_over_hours"`
	CarryOverHistory   []CarryOverEntry `json:"carry_over_history"`
	TotalProgressHours decimal.Decimal  `json:"total_progress_hours"`
	Priority           int              `json:"priority"`
}

// BlockedWindow is a room-wide blocked range. An empty Weekdays list blocks every day.
type BlockedWindow struct {
	Name     string `json:"name" yaml:"name"`
	Start    Minute `json:"start" yaml:"start"`
	End      Minute `json:"end" yaml:"end"`
	Weekdays []int  `json:"weekdays,omitempty" yaml:"weekdays,omitempty"`
}

// Matches reports whether the window applies on d.
func (b BlockedWindow) Matches(d Date) bool {
	if len(b.Weekdays) == 0 {
		return true
	}
	for _, w := range b.Weekdays {
		if NormalizeWeekday(w) == d.Weekday() {
			return true
		}
	}
	return false
}

// DateException blocks a range on one specific date, or the whole day when AllDay is set.
type DateException struct {
	Date   Date   `json:"date" yaml:"date"`
	Name   string `json:"name" yaml:"name"`
	Start  Minute `json:"start" yaml:"start"`
	End    Minute `json:"end" yaml:"end"`
	AllDay bool   `json:"all_day" yaml:"all_day"`
}

// Settings holds room-wide scheduling constraints.
type Settings struct {
	DayStart       Minute          `json:"day_start"`
	DayEnd         Minute          `json:"day_end"`
	BlockedWindows []BlockedWindow `json:"blocked_windows"`
	DateExceptions []DateException `json:"date_exceptions"`
	MinWeeklyHours decimal.Decimal `json:"min_weekly_hours"`
	AssignmentMode AssignmentMode  `json:"assignment_mode"`
	SlotMinutes    int             `json:"slot_minutes"`
}

// Bounds returns the daily bounds, defaulting to the full day.
func (s Settings) Bounds() Interval {
	if s.DayEnd <= s.DayStart {
		return Interval{Start: 0, End: EndOfDay}
	}
	return Interval{Start: s.DayStart, End: s.DayEnd}
}

// BlockedOn returns every room-wide blocked interval for the date.
func (s Settings) BlockedOn(d Date) []Interval {
	var out []Interval
	for _, b := range s.BlockedWindows {
		if b.Matches(d) {
			out = append(out, Interval{Start: b.Start, End: b.End})
		}
	}
	for _, e := range s.DateExceptions {
		if e.Date != d {
			continue
		}
		if e.AllDay {
			out = append(out, Interval{Start: 0, End: EndOfDay})
			continue
		}
		out = append(out, Interval{Start: e.Start, End: e.End})
	}
	return out
}

// Room groups an owner, its members and their shared slots.
type Room struct {
	ID                         string       `json:"id"`
	Name                       string       `json:"name"`
	OwnerID                    string       `json:"owner_id"`
	Members                    []RoomMember `json:"members"`
	Slots                      []Slot       `json:"slots"`
	Settings                   Settings     `json:"settings"`
	TravelMode                 TravelMode   `json:"travel_mode"`
	ConfirmedTravelMode        TravelMode   `json:"confirmed_travel_mode,omitempty"`
	AutoConfirmAt              *time.Time   `json:"auto_confirm_at,omitempty"`
	AutoConfirmDurationMinutes int          `json:"auto_confirm_duration_minutes"`
	ConfirmedAt                *time.Time   `json:"confirmed_at,omitempty"`
	Version                    int64        `json:"version"`
	UpdatedAt                  time.Time    `json:"updated_at"`
}

// Member returns the membership record of id.
func (r *Room) Member(id string) (*RoomMember, bool) {
	for i := range r.Members {
		if r.Members[i].MemberID == id {
			return &r.Members[i], true
		}
	}
	return nil, false
}

// IsParticipant reports whether id is the owner or a member.
func (r *Room) IsParticipant(id string) bool {
	if id == r.OwnerID {
		return true
	}
	_, ok := r.Member(id)
	return ok
}

// MemberIDs returns the owner followed by the members in join order.
func (r *Room) MemberIDs() []string {
	ids := []string{r.OwnerID}
	for _, m := range r.JoinOrder() {
		if m.MemberID != r.OwnerID {
			ids = append(ids, m.MemberID)
		}
	}
	return ids
}

// JoinOrder returns a copy of the members sorted by join time.
func (r *Room) JoinOrder() []RoomMember {
	out := append([]RoomMember(nil), r.Members...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

// JoinIndex returns the position of id in join order, or len(Members) if absent.
func (r *Room) JoinIndex(id string) int {
	for i, m := range r.JoinOrder() {
		if m.MemberID == id {
			return i
		}
	}
	return len(r.Members)
}

// Slot returns the slot with the given id.
func (r *Room) Slot(id string) (*Slot, bool) {
	for i := range r.Slots {
		if r.Slots[i].ID == id {
			return &r.Slots[i], true
		}
	}
	return nil, false
}

// SlotsOn returns the class slots of the date sorted by start.
func (r *Room) SlotsOn(d Date) []Slot {
	var out []Slot
	for _, s := range r.Slots {
		if s.Date == d && s.Kind == SlotClass {
			out = append(out, s)
		}
	}
	SortSlots(out)
	return out
}

// SlotsOf returns the class slots occupied by member id.
func (r *Room) SlotsOf(id string) []Slot {
	var out []Slot
	for _, s := range r.Slots {
		if s.MemberID == id && s.Kind == SlotClass {
			out = append(out, s)
		}
	}
	SortSlots(out)
	return out
}

// RemoveSlot deletes the slot with the given id and reports whether it existed.
func (r *Room) RemoveSlot(id string) bool {
	for i := range r.Slots {
		if r.Slots[i].ID == id {
			r.Slots = append(r.Slots[:i], r.Slots[i+1:]...)
			return true
		}
	}
	return false
}

// ArmAutoConfirm sets a single deadline minutes after now, replacing any previous one.
func (r *Room) ArmAutoConfirm(now time.Time, minutes int) {
	at := now.Add(time.Duration(minutes) * time.Minute)
	r.AutoConfirmAt = &at
	r.AutoConfirmDurationMinutes = minutes
}

// DisarmAutoConfirm cancels the pending deadline.
func (r *Room) DisarmAutoConfirm() {
	r.AutoConfirmAt = nil
}

// AutoConfirmDue reports whether the deadline has elapsed at now.
func (r *Room) AutoConfirmDue(now time.Time) bool {
	return r.AutoConfirmAt != nil && !now.Before(*r.AutoConfirmAt)
}
