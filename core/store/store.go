// Package store defines the persistence contract of the scheduling core.
// Every record carries a version; saves fail with ErrVersionConflict when the
// stored version moved on since the record was read.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/slotshare/core/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a save is based on a stale version.
	ErrVersionConflict = errors.New("version conflict")
)

// RoomStore persists rooms.
type RoomStore interface {
	GetRoom(ctx context.Context, id string) (model.Room, error)
	// SaveRoom stores r when r.Version matches the stored version (0 creates)
	// and returns the record with its new version.
	SaveRoom(ctx context.Context, r model.Room) (model.Room, error)
	// ListRoomsDue returns rooms whose auto-confirm deadline is at or before now.
	ListRoomsDue(ctx context.Context, now time.Time) ([]model.Room, error)
}

// MemberStore persists member documents.
type MemberStore interface {
	GetMember(ctx context.Context, id string) (model.Member, error)
	// GetMembers returns the members found among ids, keyed by id.
	GetMembers(ctx context.Context, ids []string) (map[string]model.Member, error)
	SaveMember(ctx context.Context, m model.Member) (model.Member, error)
}

// ExchangeStore persists exchange requests.
type ExchangeStore interface {
	GetExchange(ctx context.Context, id string) (model.ExchangeRequest, error)
	SaveExchange(ctx context.Context, r model.ExchangeRequest) (model.ExchangeRequest, error)
	ListExchanges(ctx context.Context, roomID string) ([]model.ExchangeRequest, error)
}

// Store groups every record store.
type Store interface {
	RoomStore
	MemberStore
	ExchangeStore
}
