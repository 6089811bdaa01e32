// Package travel reconstructs the chronological occupancy chain of a day with
// travel legs and checks whether a hypothetical slot fits into it.
package travel

import (
	"fmt"
	"sort"

	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/preference"
)

// Reason codes of a negative simulation result.
const (
	ReasonOverlap    = "overlap"
	ReasonBounds     = "outside_bounds"
	ReasonBlocked    = "blocked"
	ReasonCommitment = "commitment"
	ReasonPreference = "outside_preference"
	ReasonDisplaces  = "displaces_occupant"
)

// Segment is one occupant of the day: the travel leg leading to it and its class time.
type Segment struct {
	SlotID        string         `json:"slot_id"`
	MemberID      string         `json:"member_id"`
	Travel        model.Interval `json:"travel"`
	Class         model.Interval `json:"class"`
	TravelMinutes int            `json:"travel_minutes"`
	// Shift is how far travel pushed the class past its nominal start.
	Shift     int  `json:"shift,omitempty"`
	Candidate bool `json:"candidate,omitempty"`
}

// Window returns the travel-inclusive range of the segment.
func (s Segment) Window() model.Interval {
	if s.Travel.Empty() {
		return s.Class
	}
	return model.Interval{Start: min(s.Travel.Start, s.Class.Start), End: s.Class.End}
}

// Request describes a hypothetical insertion.
type Request struct {
	Room        *model.Room
	Members     map[string]model.Member
	CandidateID string
	Date        model.Date
	Start       model.Minute
	Duration    int
	// Exclude lists slot ids treated as already vacated.
	Exclude []string
}

// Result is the verdict of a simulation. Infeasibility is reported here, not as an error.
type Result struct {
	IsValid           bool          `json:"is_valid"`
	Code              string        `json:"code,omitempty"`
	Reason            string        `json:"reason,omitempty"`
	SuggestedEarliest *model.Minute `json:"suggested_earliest,omitempty"`
	// Effective is the candidate's class once travel has been placed.
	Effective model.Interval `json:"effective"`
	Segments  []Segment      `json:"segments"`
}

// Ripples reports whether the candidate pushes an existing occupant away from
// its nominal time.
func (r Result) Ripples() bool {
	for _, sg := range r.Segments {
		if !sg.Candidate && sg.Shift > 0 {
			return true
		}
	}
	return false
}

// Simulator computes day chains. It holds no state besides its configuration
// and is safe for concurrent use.
type Simulator struct {
	speeds map[model.TravelMode]float64
	round  int
}

// New returns a Simulator using cfg on top of the default speeds.
func New(cfg Config) *Simulator {
	cfg.SetDefaults()
	speeds := make(map[model.TravelMode]float64, len(DefaultSpeeds))
	for k, v := range DefaultSpeeds {
		speeds[k] = v
	}
	for k, v := range cfg.SpeedsKmh {
		if v > 0 {
			speeds[model.TravelMode(k)] = v
		}
	}
	return &Simulator{speeds: speeds, round: cfg.RoundMinutes}
}

// DayChain returns the segments of every class slot of the room on date plus
// extra, sorted by start. The first leg of the day is anchored backward from
// its slot's start and departs from the owner's location. Every later leg
// starts where the previous occupant's computed class ends, and a class whose
// leg runs past its nominal start is pushed back by the same amount, so one
// insertion can shift every later occupant. A slot starting before the
// previous one's nominal end is a double booking and keeps its nominal time.
func (s *Simulator) DayChain(room *model.Room, members map[string]model.Member, date model.Date, extra *model.Slot, exclude []string) []Segment {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var slots []model.Slot
	for _, sl := range room.SlotsOn(date) {
		if !skip[sl.ID] {
			slots = append(slots, sl)
		}
	}
	if extra != nil {
		slots = append(slots, *extra)
	}
	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.MemberID != b.MemberID {
			return a.MemberID < b.MemberID
		}
		return a.ID < b.ID
	})

	segs := make([]Segment, 0, len(slots))
	prevLoc := location(members, room.OwnerID)
	var prevEnd, prevNominalEnd model.Minute
	for i, sl := range slots {
		loc := location(members, sl.MemberID)
		mins := s.LegMinutes(prevLoc, loc, room.TravelMode)
		seg := Segment{
			SlotID:        sl.ID,
			MemberID:      sl.MemberID,
			Class:         sl.Interval(),
			TravelMinutes: mins,
			Candidate:     extra != nil && sl.ID == extra.ID,
		}
		if i == 0 {
			if mins > 0 {
				seg.Travel = model.Interval{Start: sl.Start - model.Minute(mins), End: sl.Start}
			}
		} else {
			arrive := prevEnd + model.Minute(mins)
			if mins > 0 {
				seg.Travel = model.Interval{Start: prevEnd, End: arrive}
			}
			if sl.Start >= prevNominalEnd && arrive > sl.Start {
				seg.Class = model.Interval{Start: arrive, End: arrive + model.Minute(sl.Minutes())}
				seg.Shift = int(arrive - sl.Start)
			}
		}
		segs = append(segs, seg)
		prevLoc = loc
		prevEnd = seg.Class.End
		prevNominalEnd = sl.End
	}
	return segs
}

func location(members map[string]model.Member, id string) *model.GeoPoint {
	if m, ok := members[id]; ok {
		return m.Location
	}
	return nil
}

// FirstConflict returns the first pair of segments whose travel or class
// ranges overlap, comparing travel/travel, travel/class, class/travel and
// class/class for every pair. A travel leg running into its own class is
// reported as a conflict of the segment with itself.
func FirstConflict(segs []Segment) (Segment, Segment, bool) {
	for i := range segs {
		if segs[i].Travel.Overlaps(segs[i].Class) {
			return segs[i], segs[i], true
		}
		for j := i + 1; j < len(segs); j++ {
			a, b := segs[i], segs[j]
			if a.Travel.Overlaps(b.Travel) || a.Travel.Overlaps(b.Class) ||
				a.Class.Overlaps(b.Travel) || a.Class.Overlaps(b.Class) {
				return a, b, true
			}
		}
	}
	return Segment{}, Segment{}, false
}

// Simulate checks whether the candidate can occupy [Start, Start+Duration) on
// Date. Bounds, blocked windows, commitments and preferences are checked on the
// candidate's travel-inclusive window after placement, which may start later
// than requested. Malformed requests return an error; infeasibility returns a
// negative Result.
func (s *Simulator) Simulate(req Request) (Result, error) {
	if req.Room == nil {
		return Result{}, fmt.Errorf("simulate: nil room")
	}
	if !req.Date.Valid() {
		return Result{}, fmt.Errorf("simulate: %w: %q", model.ErrInvalidDate, req.Date)
	}
	end := req.Start + model.Minute(req.Duration)
	if req.Duration <= 0 || !req.Start.Valid() || !end.Valid() {
		return Result{}, fmt.Errorf("simulate: %w", model.ErrInvalidRange)
	}
	cand, ok := req.Members[req.CandidateID]
	if !ok || !req.Room.IsParticipant(req.CandidateID) {
		return Result{}, fmt.Errorf("simulate: %w: %s", model.ErrUnknownMember, req.CandidateID)
	}

	slot := model.NewSlot("candidate:"+req.CandidateID, req.Date, req.Start, end, req.CandidateID, model.SourceManual)
	segs := s.DayChain(req.Room, req.Members, req.Date, &slot, req.Exclude)
	res := Result{Segments: segs}

	var own Segment
	for _, sg := range segs {
		if sg.Candidate {
			own = sg
		}
	}
	res.Effective = own.Class
	window := own.Window()
	merged := preference.MergedFor(cand, req.Date)

	fail := func(code, reason string) (Result, error) {
		res.Code = code
		res.Reason = reason
		if len(merged) > 0 {
			at := merged[0].Start + model.Minute(own.TravelMinutes)
			res.SuggestedEarliest = &at
		}
		return res, nil
	}

	if a, b, bad := FirstConflict(segs); bad {
		if a.SlotID == b.SlotID {
			return fail(ReasonOverlap, fmt.Sprintf("travel to %s (%d min) runs into its class at %s", a.MemberID, a.TravelMinutes, a.Class.Start))
		}
		return fail(ReasonOverlap, fmt.Sprintf("%s %s overlaps %s %s", a.MemberID, a.Window(), b.MemberID, b.Window()))
	}
	if !req.Room.Settings.Bounds().Contains(window) {
		return fail(ReasonBounds, fmt.Sprintf("%s is outside daily bounds %s", window, req.Room.Settings.Bounds()))
	}
	for _, bl := range req.Room.Settings.BlockedOn(req.Date) {
		if bl.Overlaps(window) {
			return fail(ReasonBlocked, fmt.Sprintf("%s overlaps blocked time %s", window, bl))
		}
	}
	for _, c := range preference.Commitments(cand, req.Date) {
		if c.Overlaps(window) {
			return fail(ReasonCommitment, fmt.Sprintf("%s overlaps a blocking commitment %s", window, c))
		}
	}
	inside := false
	for _, r := range merged {
		if r.Contains(window) {
			inside = true
			break
		}
	}
	if !inside {
		return fail(ReasonPreference, fmt.Sprintf("%s is not inside a preferred range", window))
	}
	res.IsValid = true
	return res, nil
}
