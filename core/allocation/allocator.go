// Package allocation assigns open time to room members against their weekly
// quota. Infeasibility never fails a run: members that cannot reach their
// quota are listed in the report with their shortfall.
package allocation

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/slotshare/core/logger"
	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/preference"
	"github.com/kilianp07/slotshare/core/travel"
)

var sixty = decimal.NewFromInt(60)

// Input is one allocation request.
type Input struct {
	Room    *model.Room
	Members map[string]model.Member
	// WeekStart is any day of the target week; it is normalized to Monday.
	WeekStart model.Date
	// Today is the current simulated day used by the from-today mode.
	Today model.Date
	// Mode overrides the room's assignment mode when set.
	Mode model.AssignmentMode
}

// MemberResult is the outcome for one member.
type MemberResult struct {
	MemberID         string          `json:"member_id"`
	AvailableMinutes int             `json:"available_minutes"`
	QuotaHours       decimal.Decimal `json:"quota_hours"`
	AssignedHours    decimal.Decimal `json:"assigned_hours"`
	ShortfallHours   decimal.Decimal `json:"shortfall_hours"`
	Slots            []model.Slot    `json:"slots"`
}

// Shortfall lists a member that could not reach quota.
type Shortfall struct {
	MemberID string          `json:"member_id"`
	Hours    decimal.Decimal `json:"hours"`
	Reason   string          `json:"reason"`
}

// Advisory flags a member with a long-term carry-over.
type Advisory struct {
	MemberID string       `json:"member_id"`
	Weeks    []model.Date `json:"weeks"`
	Message  string       `json:"message"`
}

// Report explains an allocation run.
type Report struct {
	RoomID      string               `json:"room_id"`
	Mode        model.AssignmentMode `json:"mode"`
	WeekStart   model.Date           `json:"week_start"`
	Order       []string             `json:"order"`
	Members     []MemberResult       `json:"members"`
	Unassigned  []Shortfall          `json:"unassigned"`
	Advisories  []Advisory           `json:"advisories"`
	MeanHours   float64              `json:"mean_hours"`
	StdDevHours float64              `json:"std_dev_hours"`
}

// Result holds the new slots and the updated membership records. Persisting
// both atomically is the caller's job.
type Result struct {
	Slots   []model.Slot       `json:"slots"`
	Members []model.RoomMember `json:"members"`
	Report  Report             `json:"report"`
}

// Allocator is a synchronous batch allocator.
type Allocator struct {
	cfg   Config
	sim   *travel.Simulator
	log   logger.Logger
	newID func() string
}

// New returns an Allocator. sim gates placements when the room has a travel mode.
func New(cfg Config, sim *travel.Simulator, log logger.Logger) *Allocator {
	cfg.SetDefaults()
	return &Allocator{cfg: cfg, sim: sim, log: logger.OrNop(log), newID: uuid.NewString}
}

// Allocate assigns slots for the week of in.WeekStart.
func (a *Allocator) Allocate(in Input) (Result, error) {
	if in.Room == nil {
		return Result{}, fmt.Errorf("allocate: nil room")
	}
	if !in.WeekStart.Valid() {
		return Result{}, fmt.Errorf("allocate: %w: %q", model.ErrInvalidDate, in.WeekStart)
	}
	mode := in.Mode
	if mode == "" {
		mode = in.Room.Settings.AssignmentMode
	}
	mode, err := model.ParseAssignmentMode(string(mode))
	if err != nil {
		return Result{}, &model.ValidationError{FieldErrors: map[string]string{"mode": err.Error()}}
	}
	week := in.WeekStart.WeekStart()
	weekDates := week.WeekDates()
	dates := weekDates
	if mode == model.ModeFromToday {
		if !in.Today.Valid() {
			return Result{}, fmt.Errorf("allocate: today: %w: %q", model.ErrInvalidDate, in.Today)
		}
		dates = nil
		for _, d := range weekDates {
			if !d.Before(in.Today) {
				dates = append(dates, d)
			}
		}
	}
	step := in.Room.Settings.SlotMinutes
	if step <= 0 {
		step = a.cfg.SlotMinutes
	}

	work := *in.Room
	work.Slots = append([]model.Slot(nil), in.Room.Slots...)

	order := a.order(&work, in.Members, dates, mode)
	report := Report{RoomID: in.Room.ID, Mode: mode, WeekStart: week}
	var result Result
	var hours []float64

	for _, rm := range order {
		report.Order = append(report.Order, rm.MemberID)
		mem, known := in.Members[rm.MemberID]
		quota := a.quota(&work, rm, weekDates)
		mr := MemberResult{
			MemberID:   rm.MemberID,
			QuotaHours: quota,
		}
		if known {
			mr.AvailableMinutes = preference.AvailableMinutes(mem, dates)
		}
		remaining := int(quota.Mul(sixty).IntPart())
		remaining -= remaining % step

		if known && remaining > 0 {
			mr.Slots = a.assign(&work, in.Members, rm.MemberID, dates, remaining, step)
		}
		assigned := 0
		for _, s := range mr.Slots {
			assigned += s.Minutes()
		}
		mr.AssignedHours = decimal.NewFromInt(int64(assigned)).Div(sixty)
		mr.ShortfallHours = decimal.Max(quota.Sub(mr.AssignedHours), decimal.Zero)
		result.Slots = append(result.Slots, mr.Slots...)

		if mr.ShortfallHours.IsPositive() {
			reason := "not enough free preferred time"
			if !known {
				reason = "member document not found"
			} else if mr.AvailableMinutes == 0 {
				reason = "no preferred time in the allocation window"
			}
			report.Unassigned = append(report.Unassigned, Shortfall{MemberID: rm.MemberID, Hours: mr.ShortfallHours, Reason: reason})
		}
		if adv, ok := longTermAdvisory(rm, week); ok {
			report.Advisories = append(report.Advisories, adv)
		}
		result.Members = append(result.Members, settle(rm, week, mr))
		report.Members = append(report.Members, mr)
		hours = append(hours, mr.AssignedHours.InexactFloat64())
	}

	if len(hours) > 0 {
		report.MeanHours, report.StdDevHours = stat.MeanStdDev(hours, nil)
		if math.IsNaN(report.StdDevHours) {
			report.StdDevHours = 0
		}
	}
	result.Report = report
	a.log.Debugw("allocation computed", map[string]any{
		"room_id":    in.Room.ID,
		"mode":       string(mode),
		"week":       string(week),
		"slots":      len(result.Slots),
		"unassigned": len(report.Unassigned),
	})
	return result, nil
}

// order returns the non-owner members in the sequence they are served.
func (a *Allocator) order(room *model.Room, members map[string]model.Member, dates []model.Date, mode model.AssignmentMode) []model.RoomMember {
	var out []model.RoomMember
	for _, rm := range room.JoinOrder() {
		if rm.MemberID != room.OwnerID {
			out = append(out, rm)
		}
	}
	if mode != model.ModePriorityFirst {
		return out
	}
	avail := make(map[string]int, len(out))
	for _, rm := range out {
		avail[rm.MemberID] = preference.AvailableMinutes(members[rm.MemberID], dates)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := avail[out[i].MemberID], avail[out[j].MemberID]
		if ai != aj {
			return ai < aj
		}
		return out[i].Priority > out[j].Priority
	})
	return out
}

// quota is the minimum weekly hours minus what is already assigned this week
// plus the carry-over owed, never negative.
func (a *Allocator) quota(room *model.Room, rm model.RoomMember, weekDates []model.Date) decimal.Decimal {
	inWeek := make(map[model.Date]bool, len(weekDates))
	for _, d := range weekDates {
		inWeek[d] = true
	}
	assigned := 0
	for _, s := range room.SlotsOf(rm.MemberID) {
		if inWeek[s.Date] {
			assigned += s.Minutes()
		}
	}
	q := room.Settings.MinWeeklyHours.
		Sub(decimal.NewFromInt(int64(assigned)).Div(sixty)).
		Add(rm.CarryOverHours)
	return decimal.Max(q, decimal.Zero)
}

// assign places blocks for one member until remaining is used up or no
// candidate range is left. Placed slots are added to room so later members
// and later blocks see them.
func (a *Allocator) assign(room *model.Room, members map[string]model.Member, memberID string, dates []model.Date, remaining, step int) []model.Slot {
	var cs []candidate
	for _, d := range dates {
		cs = append(cs, freeRanges(room, members, memberID, d, nil)...)
	}
	sortCandidates(cs)

	daily := map[model.Date]int{}
	var placed []model.Slot
	for _, c := range cs {
		if remaining < step {
			break
		}
		free := c
		for _, s := range placed {
			if s.Date == c.date && s.Interval().Overlaps(free.free) {
				free.free.Start = max(free.free.Start, s.End)
			}
		}
		length := min(remaining, free.free.Len())
		if a.cfg.MaxDailyMinutes > 0 {
			length = min(length, a.cfg.MaxDailyMinutes-daily[c.date])
		}
		length -= length % step
		for ; length >= step; length -= step {
			start, ok := fit(a.sim, room, members, memberID, free, length, step, nil)
			if !ok {
				continue
			}
			slot := model.NewSlot(a.newID(), c.date, start, start+model.Minute(length), memberID, model.SourceAllocator)
			room.Slots = append(room.Slots, slot)
			placed = append(placed, slot)
			daily[c.date] += length
			remaining -= length
			break
		}
	}
	model.SortSlots(placed)
	return placed
}

// settle returns the membership record after the run: the shortfall becomes
// the new carry-over, the week is logged, and the priority boost grows while
// quota is missed.
func settle(rm model.RoomMember, week model.Date, mr MemberResult) model.RoomMember {
	rm.CarryOverHours = mr.ShortfallHours
	rm.TotalProgressHours = rm.TotalProgressHours.Add(mr.AssignedHours)
	hist := make([]model.CarryOverEntry, 0, len(rm.CarryOverHistory)+1)
	for _, e := range rm.CarryOverHistory {
		if e.Week != week {
			hist = append(hist, e)
		}
	}
	rm.CarryOverHistory = append(hist, model.CarryOverEntry{Week: week, Hours: mr.ShortfallHours})
	if mr.ShortfallHours.IsPositive() {
		rm.Priority = min(rm.Priority+1, model.PriorityHigh)
	} else {
		rm.Priority = 0
	}
	return rm
}

// longTermAdvisory reports a member whose history shows a non-zero carry-over
// in both weeks preceding week.
func longTermAdvisory(rm model.RoomMember, week model.Date) (Advisory, bool) {
	prev1, prev2 := week.AddDays(-7), week.AddDays(-14)
	var hit1, hit2 bool
	for _, e := range rm.CarryOverHistory {
		if e.Hours.IsZero() {
			continue
		}
		switch e.Week {
		case prev1:
			hit1 = true
		case prev2:
			hit2 = true
		}
	}
	if !hit1 || !hit2 {
		return Advisory{}, false
	}
	return Advisory{
		MemberID: rm.MemberID,
		Weeks:    []model.Date{prev2, prev1},
		Message:  fmt.Sprintf("%s has carried unmet hours for two consecutive weeks", rm.MemberID),
	}, true
}
