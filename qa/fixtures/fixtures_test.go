package fixtures

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/slotshare/core/model"
)

func TestLoadPiano(t *testing.T) {
	f, err := Load("testdata/piano.yaml")
	require.NoError(t, err)
	assert.Equal(t, "piano", f.Name)

	room, err := f.RoomModel()
	require.NoError(t, err)
	assert.Equal(t, "olga", room.OwnerID)
	assert.Equal(t, model.TravelDriving, room.TravelMode)
	assert.Equal(t, model.ModeFirstCome, room.Settings.AssignmentMode)
	assert.Equal(t, model.MustMinute("08:00"), room.Settings.DayStart)
	assert.True(t, room.Settings.MinWeeklyHours.Equal(decimal.NewFromInt(1)))
	require.Len(t, room.Settings.BlockedWindows, 1)
	assert.Equal(t, model.MustMinute("12:00"), room.Settings.BlockedWindows[0].Start)

	assert.Equal(t, []string{"olga", "alice", "bob"}, room.MemberIDs(), "file order is join order")
	require.Len(t, room.Slots, 1)
	assert.Equal(t, "bob", room.Slots[0].MemberID)
	assert.Equal(t, 1, room.Slots[0].Weekday)
	assert.Equal(t, "fixture-1", room.Slots[0].ID)

	members := f.MemberModels()
	require.Len(t, members, 3)
	require.NotNil(t, members["bob"].Location)
	assert.Equal(t, model.MustMinute("13:00"), members["bob"].RecurringWindows[0].Start)
}

func TestParseRejectsBadFixtures(t *testing.T) {
	cases := map[string]string{
		"no owner": `room: {id: r}`,
		"bad mode": `room: {id: r, owner: o, settings: {assignment_mode: random}}`,
		"bad travel": `room: {id: r, owner: o, travel_mode: teleport}`,
		"stranger slot": `
room:
  id: r
  owner: o
  slots: [{member: x, date: "2025-01-06", start: "09:00", end: "10:00"}]`,
		"reversed slot": `
room:
  id: r
  owner: o
  slots: [{member: o, date: "2025-01-06", start: "10:00", end: "09:00"}]`,
		"bad window": `
room: {id: r, owner: o}
members:
  - id: o
    recurring_windows: [{weekday: 1, start: "10:00", end: "09:00", priority: 2}]`,
		"bad minute": `room: {id: r, owner: o, settings: {day_start: "25:00"}}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}
