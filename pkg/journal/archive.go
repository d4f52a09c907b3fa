package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

const eventTable = "journal_events"

// SQLiteArchive mirrors journal records into a SQLite database, giving the
// append-only log a queryable form that survives log rotation.
type SQLiteArchive struct {
	db *sql.DB
}

// OpenSQLiteArchive opens (or creates) the archive database at path and
// ensures the schema.
func OpenSQLiteArchive(path string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	arc, err := NewSQLiteArchive(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return arc, nil
}

// NewSQLiteArchive wraps an existing database handle and ensures the schema.
func NewSQLiteArchive(db *sql.DB) (*SQLiteArchive, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := ensureArchiveSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteArchive{db: db}, nil
}

func ensureArchiveSchema(db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			identity TEXT NOT NULL,
			anchor TEXT NOT NULL,
			version TEXT NOT NULL,
			event TEXT NOT NULL,
			details_json BLOB
		);`, eventTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_event ON %s(event);`, eventTable, eventTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_ts ON %s(ts);`, eventTable, eventTable),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append implements Sink.
func (a *SQLiteArchive) Append(ctx context.Context, rec Record) error {
	var details []byte
	if rec.Details != nil {
		var err error
		details, err = json.Marshal(rec.Details)
		if err != nil {
			return err
		}
	}
	_, err := a.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (ts, identity, anchor, version, event, details_json) VALUES (?, ?, ?, ?, ?, ?)`, eventTable),
		rec.Timestamp.UnixMilli(), rec.ID, rec.Anchor, rec.Version, rec.Event, details,
	)
	return err
}

// CountByEvent returns how many records carry the given event name.
func (a *SQLiteArchive) CountByEvent(ctx context.Context, event string) (int, error) {
	row := a.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE event = ?`, eventTable), event)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close implements Sink.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}
