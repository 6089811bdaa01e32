// Package audit stores audit entries in SQLite.
package audit

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	coreaudit "github.com/kilianp07/slotshare/core/audit"
)

// SQLiteLog is an append-only audit log.
type SQLiteLog struct {
	db *sql.DB
}

var (
	_ coreaudit.Log     = (*SQLiteLog)(nil)
	_ coreaudit.Querier = (*SQLiteLog)(nil)
)

// NewSQLiteLog opens or creates the database and ensures schema.
func NewSQLiteLog(dsn string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS audit_log (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL UNIQUE,
        room_id TEXT NOT NULL,
        actor_id TEXT,
        actor_name TEXT,
        action TEXT NOT NULL,
        message TEXT,
        at INTEGER NOT NULL
    );
    CREATE INDEX IF NOT EXISTS audit_log_room ON audit_log(room_id, seq);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteLog{db: db}, nil
}

// Append inserts the entry. Re-appending an id is ignored.
func (l *SQLiteLog) Append(ctx context.Context, e coreaudit.Entry) error {
	_, err := l.db.ExecContext(ctx, `INSERT INTO audit_log (id, room_id, actor_id, actor_name, action, message, at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO NOTHING`,
		e.ID, e.RoomID, e.ActorID, e.ActorName, e.Action, e.Message, e.At.UnixNano())
	return err
}

// Entries returns the room's entries in append order. An empty roomID lists all.
func (l *SQLiteLog) Entries(ctx context.Context, roomID string) ([]coreaudit.Entry, error) {
	q := `SELECT id, room_id, actor_id, actor_name, action, message, at FROM audit_log`
	var args []any
	if roomID != "" {
		q += ` WHERE room_id = ?`
		args = append(args, roomID)
	}
	rows, err := l.db.QueryContext(ctx, q+` ORDER BY seq`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []coreaudit.Entry
	for rows.Next() {
		var e coreaudit.Entry
		var at int64
		if err := rows.Scan(&e.ID, &e.RoomID, &e.ActorID, &e.ActorName, &e.Action, &e.Message, &at); err != nil {
			return nil, err
		}
		e.At = time.Unix(0, at).UTC()
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (l *SQLiteLog) Close() error { return l.db.Close() }
