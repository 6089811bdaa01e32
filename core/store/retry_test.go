package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/store"
	"github.com/kilianp07/slotshare/infra/store/memory"
)

// racingStore bumps the stored room before the first n saves so they conflict.
type racingStore struct {
	*memory.Store
	races int
}

func (r *racingStore) SaveRoom(ctx context.Context, room model.Room) (model.Room, error) {
	if r.races > 0 {
		r.races--
		cur, err := r.Store.GetRoom(ctx, room.ID)
		if err != nil {
			return room, err
		}
		cur.Name += "+"
		if _, err := r.Store.SaveRoom(ctx, cur); err != nil {
			return room, err
		}
	}
	return r.Store.SaveRoom(ctx, room)
}

func seed(t *testing.T) *racingStore {
	t.Helper()
	s := &racingStore{Store: memory.New()}
	_, err := s.Store.SaveRoom(context.Background(), model.Room{ID: "r1"})
	require.NoError(t, err)
	return s
}

func TestUpdateRoomRetriesOnConflict(t *testing.T) {
	s := seed(t)
	s.races = 2
	var waits []time.Duration
	p := store.RetryPolicy{MaxAttempts: 5, Step: time.Millisecond, Notify: func(_ error, d time.Duration) {
		waits = append(waits, d)
	}}
	applied := 0
	r, err := store.UpdateRoom(context.Background(), s, p, "r1", func(r *model.Room) error {
		applied++
		r.TravelMode = model.TravelWalking
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, applied, "delta is re-applied on every fresh read")
	assert.Equal(t, model.TravelWalking, r.TravelMode)
	assert.Equal(t, "++", r.Name, "concurrent writes are kept")
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits, "linear backoff")
}

func TestUpdateRoomExhausted(t *testing.T) {
	s := seed(t)
	s.races = 10
	_, err := store.UpdateRoom(context.Background(), s, store.RetryPolicy{MaxAttempts: 3, Step: time.Millisecond}, "r1", func(*model.Room) error { return nil })
	assert.ErrorIs(t, err, store.ErrRetriesExhausted)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
	assert.Equal(t, 7, s.races)
}

func TestUpdateRoomStopsOnApplyError(t *testing.T) {
	s := seed(t)
	boom := errors.New("boom")
	calls := 0
	_, err := store.UpdateRoom(context.Background(), s, store.RetryPolicy{}, "r1", func(*model.Room) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)

	_, err = store.UpdateRoom(context.Background(), s, store.RetryPolicy{}, "missing", func(*model.Room) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)
}
