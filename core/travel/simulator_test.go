package travel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/slotshare/core/model"
)

const tuesday = model.Date("2025-01-07")

func hm(s string) model.Minute { return model.MustMinute(s) }

// about 18.9 km apart along a meridian
var (
	home  = &model.GeoPoint{Lat: 48.80, Lng: 2.35}
	north = &model.GeoPoint{Lat: 48.97, Lng: 2.35}
)

func fixture(mode model.TravelMode) (*model.Room, map[string]model.Member) {
	room := &model.Room{
		ID:         "r1",
		OwnerID:    "owner",
		TravelMode: mode,
		Members: []model.RoomMember{
			{MemberID: "alice"},
			{MemberID: "bob"},
		},
		Slots: []model.Slot{
			model.NewSlot("s-alice", tuesday, hm("09:00"), hm("10:00"), "alice", model.SourceAllocator),
		},
	}
	members := map[string]model.Member{
		"owner": {ID: "owner", Location: home},
		"alice": {ID: "alice", Location: home},
		"bob": {ID: "bob", Location: north, RecurringWindows: []model.PreferenceWindow{
			{Weekday: 2, Start: hm("09:00"), End: hm("13:00"), Priority: 2},
		}},
	}
	return room, members
}

func TestLegMinutesScenarioB(t *testing.T) {
	s := New(Config{})
	km := DistanceKm(*home, *north)
	assert.InDelta(t, 18.9, km, 0.2)
	assert.Equal(t, 30, s.LegMinutes(home, north, model.TravelDriving))
	assert.Equal(t, 0, s.LegMinutes(home, north, model.TravelNone))
	assert.Equal(t, 0, s.LegMinutes(nil, north, model.TravelDriving))
	assert.Equal(t, 230, s.LegMinutes(home, north, model.TravelWalking))
}

func TestDayChainInsertsLegAfterPreviousClass(t *testing.T) {
	room, members := fixture(model.TravelDriving)
	extra := model.NewSlot("s-bob", tuesday, hm("10:30"), hm("11:30"), "bob", model.SourceManual)

	segs := New(Config{}).DayChain(room, members, tuesday, &extra, nil)

	require.Len(t, segs, 2)
	assert.True(t, segs[0].Travel.Empty(), "owner and alice share a location")
	assert.Equal(t, 30, segs[1].TravelMinutes)
	assert.Equal(t, model.Interval{Start: hm("10:00"), End: hm("10:30")}, segs[1].Travel)
	assert.Equal(t, model.Interval{Start: hm("10:30"), End: hm("11:30")}, segs[1].Class)
}

func TestDayChainAnchorsFirstLegBackward(t *testing.T) {
	room, members := fixture(model.TravelDriving)
	room.Slots = nil
	extra := model.NewSlot("s-bob", tuesday, hm("10:00"), hm("11:00"), "bob", model.SourceManual)
	segs := New(Config{}).DayChain(room, members, tuesday, &extra, nil)
	require.Len(t, segs, 1)
	assert.Equal(t, model.Interval{Start: hm("09:30"), End: hm("10:00")}, segs[0].Travel)
}

func TestSimulateValid(t *testing.T) {
	room, members := fixture(model.TravelDriving)
	res, err := New(Config{}).Simulate(Request{
		Room: room, Members: members, CandidateID: "bob",
		Date: tuesday, Start: hm("10:30"), Duration: 60,
	})
	require.NoError(t, err)
	assert.True(t, res.IsValid, res.Reason)
	assert.Nil(t, res.SuggestedEarliest)
}

func TestSimulateTravelShiftsCandidateClass(t *testing.T) {
	room, members := fixture(model.TravelDriving)
	sim := New(Config{})
	res, err := sim.Simulate(Request{
		Room: room, Members: members, CandidateID: "bob",
		Date: tuesday, Start: hm("10:00"), Duration: 60,
	})
	require.NoError(t, err)
	assert.True(t, res.IsValid, res.Reason)
	assert.Equal(t, model.Interval{Start: hm("10:30"), End: hm("11:30")}, res.Effective)
	assert.False(t, res.Ripples())

	// 10:00-12:50 fits the 09:00-13:00 preference, the shifted 10:30-13:20 does not
	res, err = sim.Simulate(Request{
		Room: room, Members: members, CandidateID: "bob",
		Date: tuesday, Start: hm("10:00"), Duration: 170,
	})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, ReasonPreference, res.Code)
	require.NotNil(t, res.SuggestedEarliest)
	assert.Equal(t, hm("09:30"), *res.SuggestedEarliest, "first preferred start plus own travel")
}

func TestDayChainCascadesLaterOccupants(t *testing.T) {
	room, members := fixture(model.TravelDriving)
	room.Slots = append(room.Slots,
		model.NewSlot("s-alice2", tuesday, hm("11:30"), hm("12:30"), "alice", model.SourceAllocator))
	extra := model.NewSlot("s-bob", tuesday, hm("10:10"), hm("11:10"), "bob", model.SourceManual)

	segs := New(Config{}).DayChain(room, members, tuesday, &extra, nil)

	require.Len(t, segs, 3)
	assert.Equal(t, model.Interval{Start: hm("09:00"), End: hm("10:00")}, segs[0].Class)
	assert.Equal(t, model.Interval{Start: hm("10:00"), End: hm("10:30")}, segs[1].Travel)
	assert.Equal(t, model.Interval{Start: hm("10:30"), End: hm("11:30")}, segs[1].Class)
	assert.Equal(t, 20, segs[1].Shift)
	assert.Equal(t, model.Interval{Start: hm("11:30"), End: hm("12:00")}, segs[2].Travel)
	assert.Equal(t, model.Interval{Start: hm("12:00"), End: hm("13:00")}, segs[2].Class)
	assert.Equal(t, 30, segs[2].Shift)
	_, _, bad := FirstConflict(segs)
	assert.False(t, bad)

	res, err := New(Config{}).Simulate(Request{
		Room: room, Members: members, CandidateID: "bob",
		Date: tuesday, Start: hm("10:10"), Duration: 60,
	})
	require.NoError(t, err)
	assert.True(t, res.IsValid, res.Reason)
	assert.True(t, res.Ripples(), "alice's second class moves")
}

func TestDayChainKeepsDoubleBookingNominal(t *testing.T) {
	room, members := fixture(model.TravelDriving)
	extra := model.NewSlot("s-bob", tuesday, hm("09:30"), hm("10:30"), "bob", model.SourceManual)

	segs := New(Config{}).DayChain(room, members, tuesday, &extra, nil)

	require.Len(t, segs, 2)
	assert.Equal(t, model.Interval{Start: hm("09:30"), End: hm("10:30")}, segs[1].Class)
	assert.Zero(t, segs[1].Shift)
	_, _, bad := FirstConflict(segs)
	assert.True(t, bad)
}

func TestSimulateWithoutTravelAllowsBackToBack(t *testing.T) {
	room, members := fixture(model.TravelNone)
	res, err := New(Config{}).Simulate(Request{
		Room: room, Members: members, CandidateID: "bob",
		Date: tuesday, Start: hm("10:00"), Duration: 60,
	})
	require.NoError(t, err)
	assert.True(t, res.IsValid, res.Reason)
}

func TestSimulateClassOverlap(t *testing.T) {
	room, members := fixture(model.TravelNone)
	res, err := New(Config{}).Simulate(Request{
		Room: room, Members: members, CandidateID: "bob",
		Date: tuesday, Start: hm("09:30"), Duration: 60,
	})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, ReasonOverlap, res.Code)

	res, err = New(Config{}).Simulate(Request{
		Room: room, Members: members, CandidateID: "bob",
		Date: tuesday, Start: hm("09:30"), Duration: 60, Exclude: []string{"s-alice"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsValid, "excluded slot is treated as vacated")
}

func TestSimulateBlockedAndPreference(t *testing.T) {
	room, members := fixture(model.TravelNone)
	room.Settings.BlockedWindows = []model.BlockedWindow{{Name: "lunch", Start: hm("12:00"), End: hm("13:00")}}
	sim := New(Config{})

	res, err := sim.Simulate(Request{Room: room, Members: members, CandidateID: "bob", Date: tuesday, Start: hm("11:30"), Duration: 60})
	require.NoError(t, err)
	assert.Equal(t, ReasonBlocked, res.Code)

	res, err = sim.Simulate(Request{Room: room, Members: members, CandidateID: "bob", Date: tuesday, Start: hm("14:00"), Duration: 60})
	require.NoError(t, err)
	assert.Equal(t, ReasonPreference, res.Code)
	require.NotNil(t, res.SuggestedEarliest)
	assert.Equal(t, hm("09:00"), *res.SuggestedEarliest)

	bob := members["bob"]
	bob.BlockingCommitments = []model.BlockingCommitment{{Title: "dentist", Date: tuesday, Start: hm("10:30"), End: hm("11:00")}}
	members["bob"] = bob
	res, err = sim.Simulate(Request{Room: room, Members: members, CandidateID: "bob", Date: tuesday, Start: hm("10:00"), Duration: 60})
	require.NoError(t, err)
	assert.Equal(t, ReasonCommitment, res.Code)
}

func TestSimulateRejectsMalformedInput(t *testing.T) {
	room, members := fixture(model.TravelNone)
	sim := New(Config{})
	_, err := sim.Simulate(Request{Room: room, Members: members, CandidateID: "bob", Date: "2025-02-30", Start: hm("10:00"), Duration: 60})
	assert.ErrorIs(t, err, model.ErrInvalidDate)
	_, err = sim.Simulate(Request{Room: room, Members: members, CandidateID: "bob", Date: tuesday, Start: hm("10:00"), Duration: 0})
	assert.ErrorIs(t, err, model.ErrInvalidRange)
	_, err = sim.Simulate(Request{Room: room, Members: members, CandidateID: "zoe", Date: tuesday, Start: hm("10:00"), Duration: 60})
	assert.ErrorIs(t, err, model.ErrUnknownMember)
}

func TestConflictVerdictIndependentOfInsertionOrder(t *testing.T) {
	_, members := fixture(model.TravelDriving)
	cases := map[string]struct {
		slots []model.Slot
		want  bool
	}{
		"travel shifts bob": {
			slots: []model.Slot{
				model.NewSlot("a", tuesday, hm("09:00"), hm("10:00"), "alice", ""),
				model.NewSlot("b", tuesday, hm("10:10"), hm("11:00"), "bob", ""),
				model.NewSlot("c", tuesday, hm("12:00"), hm("13:00"), "alice", ""),
			},
		},
		"double booking": {
			slots: []model.Slot{
				model.NewSlot("a", tuesday, hm("09:00"), hm("10:00"), "alice", ""),
				model.NewSlot("b", tuesday, hm("09:40"), hm("11:00"), "bob", ""),
				model.NewSlot("c", tuesday, hm("12:00"), hm("13:00"), "alice", ""),
			},
			want: true,
		},
	}
	sim := New(Config{})
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			for _, order := range [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}} {
				for _, extra := range []int{0, 1, 2} {
					room := &model.Room{OwnerID: "owner", TravelMode: model.TravelDriving}
					for _, i := range order {
						if i != extra {
							room.Slots = append(room.Slots, tc.slots[i])
						}
					}
					x := tc.slots[extra]
					_, _, bad := FirstConflict(sim.DayChain(room, members, tuesday, &x, nil))
					assert.Equal(t, tc.want, bad, "order %v extra %d", order, extra)
				}
			}
		})
	}
}
