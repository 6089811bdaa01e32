// Package audit defines the append-only audit log contract.
package audit

import (
	"context"
	"sync"
	"time"
)

// Entry is one audit record.
type Entry struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Log appends entries. Implementations never modify stored entries.
type Log interface {
	Append(ctx context.Context, e Entry) error
}

// Querier lists the entries of a room, oldest first.
type Querier interface {
	Entries(ctx context.Context, roomID string) ([]Entry, error)
}

// MemoryLog keeps entries in memory.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
}

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, e Entry) error {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return nil
}

// Entries implements Querier.
func (l *MemoryLog) Entries(_ context.Context, roomID string) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if roomID == "" || e.RoomID == roomID {
			out = append(out, e)
		}
	}
	return out, nil
}
