package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/store"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "slots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRoomVersioning(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	r, err := s.SaveRoom(ctx, model.Room{ID: "r1", OwnerID: "o"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Version)

	_, err = s.SaveRoom(ctx, model.Room{ID: "r1", OwnerID: "other"})
	assert.ErrorIs(t, err, store.ErrVersionConflict, "creating an existing room conflicts")

	stale := r
	r.Name = "updated"
	r, err = s.SaveRoom(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.Version)

	failed, err := s.SaveRoom(ctx, stale)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
	assert.Equal(t, int64(1), failed.Version)

	got, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Name)
	assert.Equal(t, int64(2), got.Version)

	_, err = s.GetRoom(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListRoomsDue(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Minute), now.Add(time.Hour)
	for _, r := range []model.Room{
		{ID: "b", AutoConfirmAt: &past},
		{ID: "a", AutoConfirmAt: &now},
		{ID: "c", AutoConfirmAt: &future},
		{ID: "d"},
	} {
		_, err := s.SaveRoom(ctx, r)
		require.NoError(t, err)
	}
	due, err := s.ListRoomsDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "a", due[0].ID)
	assert.Equal(t, "b", due[1].ID)

	b, err := s.GetRoom(ctx, "b")
	require.NoError(t, err)
	b.DisarmAutoConfirm()
	_, err = s.SaveRoom(ctx, b)
	require.NoError(t, err)
	due, err = s.ListRoomsDue(ctx, now)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestMembers(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	m := model.Member{ID: "m1", Name: "Mia", RecurringWindows: []model.PreferenceWindow{{Weekday: 1, Start: 540, End: 600, Priority: 2}}}
	saved, err := s.SaveMember(ctx, m)
	require.NoError(t, err)
	saved.Name = "Mia B."
	_, err = s.SaveMember(ctx, saved)
	require.NoError(t, err)

	got, err := s.GetMembers(ctx, []string{"m1", "ghost"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Mia B.", got["m1"].Name)
	assert.Equal(t, model.Minute(540), got["m1"].RecurringWindows[0].Start)
}

func TestExchangesOrderedByCreation(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	t0 := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	for _, r := range []model.ExchangeRequest{
		{ID: "x2", RoomID: "r1", CreatedAt: t0.Add(time.Minute)},
		{ID: "x1", RoomID: "r1", CreatedAt: t0},
		{ID: "y1", RoomID: "r2", CreatedAt: t0},
	} {
		_, err := s.SaveExchange(ctx, r)
		require.NoError(t, err)
	}
	list, err := s.ListExchanges(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "x1", list[0].ID)
	assert.Equal(t, "x2", list[1].ID)

	all, err := s.ListExchanges(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdateRoomRetriesOnSQLite(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	_, err := s.SaveRoom(ctx, model.Room{ID: "r1"})
	require.NoError(t, err)
	r, err := store.UpdateRoom(ctx, s, store.DefaultRetryPolicy, "r1", func(r *model.Room) error {
		r.Name = "renamed"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.Version)
}
