package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMinute(t *testing.T) {
	cases := map[string]Minute{"00:00": 0, "09:30": 570, "24:00": 1440, " 7:05": 425}
	for in, want := range cases {
		got, err := ParseMinute(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "9", "9:5", "24:01", "12:60", "ab:cd", "-1:00"} {
		_, err := ParseMinute(bad)
		if !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("expected ErrInvalidTime for %q got %v", bad, err)
		}
	}
}

func TestMinuteText(t *testing.T) {
	var m Minute
	require.NoError(t, m.UnmarshalText([]byte("13:45")))
	assert.Equal(t, Minute(825), m)
	b, err := m.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "13:45", string(b))
	assert.Error(t, m.UnmarshalText([]byte("25:00")))
}

func TestDateHelpers(t *testing.T) {
	d, err := ParseDate("2025-01-08")
	require.NoError(t, err)
	assert.Equal(t, 3, d.Weekday())
	assert.Equal(t, Date("2025-01-06"), d.WeekStart())
	assert.Equal(t, Date("2025-01-06"), Date("2025-01-12").WeekStart())
	assert.Equal(t, Date("2025-02-01"), Date("2025-01-31").AddDays(1))
	assert.True(t, Date("2025-01-06").Before(d))
	assert.Len(t, d.WeekStart().WeekDates(), 7)

	_, err = ParseDate("2025-13-01")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestNormalizeWeekday(t *testing.T) {
	assert.Equal(t, 0, NormalizeWeekday(7))
	assert.Equal(t, 0, NormalizeWeekday(0))
	assert.Equal(t, 6, NormalizeWeekday(-1))

	w := PreferenceWindow{Weekday: 7, Start: 0, End: 60, Priority: 2}
	if !w.Matches("2025-01-05") {
		t.Fatalf("weekday 7 should match a Sunday")
	}
}

func TestIntervalOverlap(t *testing.T) {
	a := Interval{Start: 60, End: 120}
	b := Interval{Start: 120, End: 180}
	assert.False(t, a.Overlaps(b), "touching intervals do not overlap")
	assert.False(t, b.Overlaps(a))
	c := Interval{Start: 100, End: 130}
	assert.True(t, a.Overlaps(c))
	assert.True(t, c.Overlaps(a))
	assert.Equal(t, Interval{Start: 100, End: 120}, a.Intersect(c))
	assert.True(t, a.Intersect(b).Empty())
}

func TestMemberValidate(t *testing.T) {
	m := Member{
		ID:               "m1",
		RecurringWindows: []PreferenceWindow{{Weekday: 1, Start: 600, End: 540, Priority: 2}},
		DateWindows:      []PreferenceWindow{{Start: 60, End: 120, Priority: 4}},
	}
	err := m.Validate()
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "recurring_windows[0]")
	assert.Contains(t, vErr.FieldErrors, "date_windows[0].priority")
	assert.Contains(t, vErr.FieldErrors, "date_windows[0].date")
	assert.Equal(t, "validation", ErrorKind(err))

	ok := Member{ID: "m2", RecurringWindows: []PreferenceWindow{{Weekday: 1, Start: 540, End: 720, Priority: 2}}}
	assert.NoError(t, ok.Validate())
}

func TestExchangeTransitions(t *testing.T) {
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	r := ExchangeRequest{Status: StatusPending}
	require.NoError(t, r.Transition(StatusNeedsChainConfirmation, "", now))
	require.NoError(t, r.Transition(StatusWaitingForChain, "", now))
	require.NoError(t, r.Transition(StatusRejected, "no candidate", now))
	assert.NotNil(t, r.ResolvedAt)
	assert.Equal(t, "no candidate", r.Reason)

	err := r.Transition(StatusPending, "", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusRejected, r.Status)

	w := ExchangeRequest{Status: StatusWaitingForChain}
	assert.ErrorIs(t, w.Transition(StatusNeedsChainConfirmation, "", now), ErrInvalidTransition)
}

func TestRoomAutoConfirm(t *testing.T) {
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	var r Room
	r.ArmAutoConfirm(now, 30)
	assert.False(t, r.AutoConfirmDue(now.Add(29*time.Minute)))
	r.ArmAutoConfirm(now.Add(10*time.Minute), 60)
	assert.False(t, r.AutoConfirmDue(now.Add(31*time.Minute)), "re-arming replaces the deadline")
	assert.True(t, r.AutoConfirmDue(now.Add(70*time.Minute)))
	r.DisarmAutoConfirm()
	assert.False(t, r.AutoConfirmDue(now.Add(24*time.Hour)))
}

func TestSettingsBlockedOn(t *testing.T) {
	s := Settings{
		BlockedWindows: []BlockedWindow{
			{Name: "lunch", Start: 720, End: 780},
			{Name: "monday meeting", Start: 540, End: 600, Weekdays: []int{1}},
		},
		DateExceptions: []DateException{{Date: "2025-01-07", Name: "holiday", AllDay: true}},
	}
	assert.Len(t, s.BlockedOn("2025-01-06"), 2)
	tue := s.BlockedOn("2025-01-07")
	assert.Len(t, tue, 2)
	assert.Contains(t, tue, Interval{Start: 0, End: EndOfDay})
}
