package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ishmatuaulia/thermoagent/internal/history"
)

// Sink records events to a local SQLite journal (modernc.org/sqlite driver,
// CGO-free). Path is a filesystem location; use ":memory:" for in-memory.
type Sink struct {
	db *sql.DB
}

func New(path string) (*Sink, error) {
	p := strings.TrimSpace(strings.TrimPrefix(path, "sqlite://"))
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	s := &Sink{db: d}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS device_events(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			device_id TEXT NOT NULL,
			session_id TEXT NULL,
			slot TEXT NULL,
			version TEXT NULL,
			detail TEXT NULL,
			temperature REAL NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_device_events_type ON device_events(type);`,
		`CREATE INDEX IF NOT EXISTS idx_device_events_occurred ON device_events(occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_events(type, occurred_at, device_id, session_id, slot, version, detail, temperature)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		string(e.Type), e.OccurredAt.UTC(), e.DeviceID, e.SessionID, e.Slot, e.Version, e.Detail, e.Temperature)
	return err
}

// Recent returns up to limit most recent events, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]history.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, occurred_at, device_id, session_id, slot, version, detail, temperature
		FROM device_events ORDER BY id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []history.Event
	for rows.Next() {
		var e history.Event
		var typ string
		if err := rows.Scan(&typ, &e.OccurredAt, &e.DeviceID, &e.SessionID, &e.Slot, &e.Version, &e.Detail, &e.Temperature); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error { return s.db.Close() }
