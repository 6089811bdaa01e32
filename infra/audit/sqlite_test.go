package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreaudit "github.com/kilianp07/slotshare/core/audit"
)

func TestSQLiteLogAppendAndList(t *testing.T) {
	ctx := context.Background()
	l, err := NewSQLiteLog(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	at := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	entries := []coreaudit.Entry{
		{ID: "a1", RoomID: "r1", ActorID: "owner", ActorName: "Olga", Action: "schedule.allocate", Message: "allocated 3 slots", At: at},
		{ID: "a2", RoomID: "r2", ActorName: "system", Action: "schedule.reset", At: at},
		{ID: "a3", RoomID: "r1", ActorName: "auto-confirm", Action: "schedule.confirm", At: at.Add(time.Hour)},
	}
	for _, e := range entries {
		require.NoError(t, l.Append(ctx, e))
	}
	require.NoError(t, l.Append(ctx, entries[0]), "duplicate ids are ignored")

	got, err := l.Entries(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, entries[0], got[0])
	assert.Equal(t, "schedule.confirm", got[1].Action)

	all, err := l.Entries(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
