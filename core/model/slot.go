package model

import "sort"

// Slot kinds.
const (
	SlotClass  = "class"
	SlotTravel = "travel"
)

// Slot sources.
const (
	SourceAllocator = "allocator"
	SourceExchange  = "exchange"
	SourceManual    = "manual"
)

// Slot is an occupied range on a specific date.
type Slot struct {
	ID                  string `json:"id"`
	Date                Date   `json:"date"`
	Weekday             int    `json:"weekday"`
	Start               Minute `json:"start"`
	End                 Minute `json:"end"`
	MemberID            string `json:"member_id"`
	Kind                string `json:"kind"`
	Source              string `json:"source,omitempty"`
	ConfirmedToCalendar bool   `json:"confirmed_to_calendar"`
}

// Interval returns the slot range.
func (s Slot) Interval() Interval { return Interval{Start: s.Start, End: s.End} }

// Minutes returns the slot length.
func (s Slot) Minutes() int { return s.Interval().Len() }

// SameRange reports whether both slots cover the same date and minutes.
func (s Slot) SameRange(o Slot) bool {
	return s.Date == o.Date && s.Start == o.Start && s.End == o.End
}

// NewSlot builds a class slot and derives its weekday from the date.
func NewSlot(id string, d Date, start, end Minute, memberID, source string) Slot {
	return Slot{
		ID:       id,
		Date:     d,
		Weekday:  d.Weekday(),
		Start:    start,
		End:      end,
		MemberID: memberID,
		Kind:     SlotClass,
		Source:   source,
	}
}

// SortSlots orders slots by date, start and member id.
func SortSlots(slots []Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.MemberID < b.MemberID
	})
}
