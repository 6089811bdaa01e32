package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/store"
)

func TestRoomVersioning(t *testing.T) {
	ctx := context.Background()
	s := New()
	r, err := s.SaveRoom(ctx, model.Room{ID: "r1", OwnerID: "o"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Version)

	stale := r
	r.Name = "updated"
	r, err = s.SaveRoom(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.Version)

	_, err = s.SaveRoom(ctx, stale)
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	got, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Name)

	_, err = s.GetRoom(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecordsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := New()
	m := model.Member{ID: "m1", RecurringWindows: []model.PreferenceWindow{{Weekday: 1, Start: 540, End: 600, Priority: 2}}}
	saved, err := s.SaveMember(ctx, m)
	require.NoError(t, err)
	saved.RecurringWindows[0].Start = 0

	got, err := s.GetMember(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Minute(540), got.RecurringWindows[0].Start)
}

func TestGetMembersSkipsMissing(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.SaveMember(ctx, model.Member{ID: "a"})
	require.NoError(t, err)
	got, err := s.GetMembers(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "a")
}

func TestListRoomsDue(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	due := model.Room{ID: "due"}
	due.ArmAutoConfirm(now.Add(-time.Hour), 30)
	later := model.Room{ID: "later"}
	later.ArmAutoConfirm(now, 30)
	for _, r := range []model.Room{due, later, {ID: "idle"}} {
		_, err := s.SaveRoom(ctx, r)
		require.NoError(t, err)
	}
	rooms, err := s.ListRoomsDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "due", rooms[0].ID)
}

func TestListExchangesByRoom(t *testing.T) {
	ctx := context.Background()
	s := New()
	t0 := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"x2", "x1", "x3"} {
		room := "r1"
		if id == "x3" {
			room = "r2"
		}
		_, err := s.SaveExchange(ctx, model.ExchangeRequest{ID: id, RoomID: room, CreatedAt: t0.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}
	list, err := s.ListExchanges(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "x2", list[0].ID)
	assert.Equal(t, "x1", list[1].ID)
}
