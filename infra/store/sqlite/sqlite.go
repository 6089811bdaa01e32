// Package sqlite persists rooms, members and exchange requests as JSON
// documents in a SQLite database. A version column guards every write.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
    id TEXT PRIMARY KEY,
    version INTEGER NOT NULL,
    auto_confirm_at INTEGER,
    doc TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS rooms_auto_confirm ON rooms(auto_confirm_at);
CREATE TABLE IF NOT EXISTS members (
    id TEXT PRIMARY KEY,
    version INTEGER NOT NULL,
    doc TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS exchanges (
    id TEXT PRIMARY KEY,
    room_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    doc TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS exchanges_room ON exchanges(room_id, created_at);`

// Store implements store.Store on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at dsn and ensures the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection: ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) getDoc(ctx context.Context, table, id string, out any) error {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM `+table+` WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(doc), out)
}

// write inserts when version is 0 and otherwise updates the row still holding
// version. cols and args are extra indexed columns.
func (s *Store) write(ctx context.Context, table, id string, version int64, doc []byte, cols []string, args []any) error {
	var (
		res sql.Result
		err error
	)
	if version == 0 {
		q := `INSERT INTO ` + table + ` (id, version, doc`
		vals := `?, 1, ?`
		for _, c := range cols {
			q += ", " + c
			vals += ", ?"
		}
		q += `) VALUES (` + vals + `) ON CONFLICT(id) DO NOTHING`
		res, err = s.db.ExecContext(ctx, q, append([]any{id, string(doc)}, args...)...)
	} else {
		q := `UPDATE ` + table + ` SET version = version + 1, doc = ?`
		for _, c := range cols {
			q += ", " + c + " = ?"
		}
		q += ` WHERE id = ? AND version = ?`
		params := append([]any{string(doc)}, args...)
		res, err = s.db.ExecContext(ctx, q, append(params, id, version)...)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrVersionConflict
	}
	return nil
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

// GetRoom implements store.RoomStore.
func (s *Store) GetRoom(ctx context.Context, id string) (model.Room, error) {
	var r model.Room
	err := s.getDoc(ctx, "rooms", id, &r)
	return r, err
}

// SaveRoom implements store.RoomStore.
func (s *Store) SaveRoom(ctx context.Context, r model.Room) (model.Room, error) {
	prev := r.Version
	r.UpdatedAt = s.now().UTC()
	r.Version = prev + 1
	doc, err := json.Marshal(r)
	if err != nil {
		return r, err
	}
	if err := s.write(ctx, "rooms", r.ID, prev, doc, []string{"auto_confirm_at"}, []any{nullableUnix(r.AutoConfirmAt)}); err != nil {
		r.Version = prev
		return r, err
	}
	return r, nil
}

// ListRoomsDue implements store.RoomStore.
func (s *Store) ListRoomsDue(ctx context.Context, now time.Time) ([]model.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM rooms WHERE auto_confirm_at IS NOT NULL AND auto_confirm_at <= ? ORDER BY id`,
		now.UnixNano())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Room
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var r model.Room
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetMember implements store.MemberStore.
func (s *Store) GetMember(ctx context.Context, id string) (model.Member, error) {
	var m model.Member
	err := s.getDoc(ctx, "members", id, &m)
	return m, err
}

// GetMembers implements store.MemberStore.
func (s *Store) GetMembers(ctx context.Context, ids []string) (map[string]model.Member, error) {
	out := make(map[string]model.Member, len(ids))
	for _, id := range ids {
		m, err := s.GetMember(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
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
func (s *Store) SaveMember(ctx context.Context, m model.Member) (model.Member, error) {
	prev := m.Version
	m.UpdatedAt = s.now().UTC()
	m.Version = prev + 1
	doc, err := json.Marshal(m)
	if err != nil {
		return m, err
	}
	if err := s.write(ctx, "members", m.ID, prev, doc, nil, nil); err != nil {
		m.Version = prev
		return m, err
	}
	return m, nil
}

// GetExchange implements store.ExchangeStore.
func (s *Store) GetExchange(ctx context.Context, id string) (model.ExchangeRequest, error) {
	var r model.ExchangeRequest
	err := s.getDoc(ctx, "exchanges", id, &r)
	return r, err
}

// SaveExchange implements store.ExchangeStore.
func (s *Store) SaveExchange(ctx context.Context, r model.ExchangeRequest) (model.ExchangeRequest, error) {
	prev := r.Version
	r.Version = prev + 1
	doc, err := json.Marshal(r)
	if err != nil {
		return r, err
	}
	err = s.write(ctx, "exchanges", r.ID, prev, doc,
		[]string{"room_id", "created_at"}, []any{r.RoomID, r.CreatedAt.UnixNano()})
	if err != nil {
		r.Version = prev
		return r, err
	}
	return r, nil
}

// ListExchanges implements store.ExchangeStore. Requests are ordered by creation time.
func (s *Store) ListExchanges(ctx context.Context, roomID string) ([]model.ExchangeRequest, error) {
	q := `SELECT doc FROM exchanges`
	var args []any
	if roomID != "" {
		q += ` WHERE room_id = ?`
		args = append(args, roomID)
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.ExchangeRequest
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var r model.ExchangeRequest
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
