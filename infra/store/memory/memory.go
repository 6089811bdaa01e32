// Package memory provides an in-process versioned store used by tests and
// single-node deployments.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/store"
)

// Store keeps records in maps guarded by a RWMutex. Records are deep-copied on
// the way in and out so callers never share state with the store.
type Store struct {
	mu        sync.RWMutex
	rooms     map[string][]byte
	members   map[string][]byte
	exchanges map[string][]byte
	now       func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		rooms:     map[string][]byte{},
		members:   map[string][]byte{},
		exchanges: map[string][]byte{},
		now:       time.Now,
	}
}

var _ store.Store = (*Store)(nil)

func get[T any](s *Store, m map[string][]byte, id string) (T, error) {
	var out T
	s.mu.RLock()
	raw, ok := m[id]
	s.mu.RUnlock()
	if !ok {
		return out, store.ErrNotFound
	}
	err := json.Unmarshal(raw, &out)
	return out, err
}

// put stores rec after checking the version read from the stored copy.
func put[T any](s *Store, m map[string][]byte, id string, version int64, rec *T, setVersion func(*T, int64)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stored int64
	if raw, ok := m[id]; ok {
		var current struct {
			Version int64 `json:"version"`
		}
		if err := json.Unmarshal(raw, &current); err != nil {
			return err
		}
		stored = current.Version
	}
	if stored != version {
		return store.ErrVersionConflict
	}
	setVersion(rec, version+1)
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	m[id] = raw
	return nil
}

// GetRoom implements store.RoomStore.
func (s *Store) GetRoom(_ context.Context, id string) (model.Room, error) {
	return get[model.Room](s, s.rooms, id)
}

// SaveRoom implements store.RoomStore.
func (s *Store) SaveRoom(_ context.Context, r model.Room) (model.Room, error) {
	r.UpdatedAt = s.now().UTC()
	err := put(s, s.rooms, r.ID, r.Version, &r, func(x *model.Room, v int64) { x.Version = v })
	return r, err
}

// ListRoomsDue implements store.RoomStore.
func (s *Store) ListRoomsDue(_ context.Context, now time.Time) ([]model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Room
	for _, raw := range s.rooms {
		var r model.Room
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, err
		}
		if r.AutoConfirmDue(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetMember implements store.MemberStore.
func (s *Store) GetMember(_ context.Context, id string) (model.Member, error) {
	return get[model.Member](s, s.members, id)
}

// GetMembers implements store.MemberStore.
func (s *Store) GetMembers(ctx context.Context, ids []string) (map[string]model.Member, error) {
	out := make(map[string]model.Member, len(ids))
	for _, id := range ids {
		m, err := s.GetMember(ctx, id)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = m
	}
	return out, nil
}

// SaveMember implements store.MemberStore.
func (s *Store) SaveMember(_ context.Context, m model.Member) (model.Member, error) {
	m.UpdatedAt = s.now().UTC()
	err := put(s, s.members, m.ID, m.Version, &m, func(x *model.Member, v int64) { x.Version = v })
	return m, err
}

// GetExchange implements store.ExchangeStore.
func (s *Store) GetExchange(_ context.Context, id string) (model.ExchangeRequest, error) {
	return get[model.ExchangeRequest](s, s.exchanges, id)
}

// SaveExchange implements store.ExchangeStore.
func (s *Store) SaveExchange(_ context.Context, r model.ExchangeRequest) (model.ExchangeRequest, error) {
	err := put(s, s.exchanges, r.ID, r.Version, &r, func(x *model.ExchangeRequest, v int64) { x.Version = v })
	return r, err
}

// ListExchanges implements store.ExchangeStore. Requests are ordered by creation time.
func (s *Store) ListExchanges(_ context.Context, roomID string) ([]model.ExchangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ExchangeRequest
	for _, raw := range s.exchanges {
		var r model.ExchangeRequest
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, err
		}
		if roomID == "" || r.RoomID == roomID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
