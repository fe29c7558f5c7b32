package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	log "github.com/sirupsen/logrus"

	"github.com/mkmk6794/timepick/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
    id              TEXT PRIMARY KEY,
    organizer_token TEXT NOT NULL UNIQUE,
    created_at      TEXT NOT NULL,
    data            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS response_tokens (
    token          TEXT PRIMARY KEY,
    event_id       TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    participant_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS responses (
    seq            INTEGER PRIMARY KEY AUTOINCREMENT,
    id             TEXT NOT NULL UNIQUE,
    event_id       TEXT NOT NULL,
    participant_id TEXT NOT NULL,
    data           TEXT NOT NULL,
    UNIQUE(event_id, participant_id)
);

CREATE INDEX IF NOT EXISTS idx_response_tokens_event ON response_tokens(event_id);
`

// SQLiteStore keeps events as JSON documents next to indexed token
// columns. It holds a single connection, so transactions never interleave.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=1000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db at %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// sqlExecer is satisfied by both *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateEvent(ctx context.Context, ev *domain.Event) error {
	if err := validateEvent(ev); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertEvent(ctx, tx, ev)
	})
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	return scanEvent(s.db.QueryRowContext(ctx, `SELECT data FROM events WHERE id = ?`, id))
}

func (s *SQLiteStore) GetEventByOrganizerToken(ctx context.Context, token string) (*domain.Event, error) {
	return scanEvent(s.db.QueryRowContext(ctx, `SELECT data FROM events WHERE organizer_token = ?`, token))
}

func (s *SQLiteStore) GetEventByResponseToken(ctx context.Context, token string) (*domain.Event, string, error) {
	var data, participantID string
	err := s.db.QueryRowContext(ctx, `
		SELECT e.data, t.participant_id
		FROM response_tokens t
		JOIN events e ON e.id = t.event_id
		WHERE t.token = ?`, token).Scan(&data, &participantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("get event by response token: %w", err)
	}

	var ev domain.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil, "", fmt.Errorf("unmarshaling event: %w", err)
	}
	return &ev, participantID, nil
}

func (s *SQLiteStore) UpdateEvent(ctx context.Context, id string, fn func(*domain.Event) error) (*domain.Event, error) {
	var ev *domain.Event
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanEvent(tx.QueryRowContext(ctx, `SELECT data FROM events WHERE id = ?`, id))
		if err != nil || current == nil {
			return err
		}
		if err := fn(current); err != nil {
			return err
		}
		if current.ID != id {
			return fmt.Errorf("event %s: id must not change", id)
		}
		if err := deleteEventRows(ctx, tx, id); err != nil {
			return err
		}
		if err := insertEvent(ctx, tx, current); err != nil {
			return err
		}
		ev = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context) ([]domain.Event, error) {
	events, err := queryEvents(ctx, s.db)
	if err != nil {
		return nil, err
	}
	sortEvents(events)
	return events, nil
}

func (s *SQLiteStore) ListResponses(ctx context.Context, eventID string) ([]domain.Response, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM responses WHERE event_id = ? ORDER BY seq`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return scanResponses(rows)
}

func (s *SQLiteStore) GetResponse(ctx context.Context, eventID, participantID string) (*domain.Response, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM responses WHERE event_id = ? AND participant_id = ?`,
		eventID, participantID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get response: %w", err)
	}

	var r domain.Response
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	return &r, nil
}

func (s *SQLiteStore) ReplaceResponse(ctx context.Context, r *domain.Response) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return replaceResponseRow(ctx, tx, r)
	})
}

func (s *SQLiteStore) Export(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{Events: []domain.Event{}, Responses: []domain.Response{}}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		events, err := queryEvents(ctx, tx)
		if err != nil {
			return err
		}
		snap.Events = append(snap.Events, events...)

		rows, err := tx.QueryContext(ctx, `SELECT data FROM responses ORDER BY seq`)
		if err != nil {
			return fmt.Errorf("list responses: %w", err)
		}
		responses, err := scanResponses(rows)
		if err != nil {
			return err
		}
		snap.Responses = append(snap.Responses, responses...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEvents(snap.Events)
	return snap, nil
}

func (s *SQLiteStore) Import(ctx context.Context, snap *domain.Snapshot) (int, error) {
	var added int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		added, err = importSnapshotSQL(ctx, tx, snap, true)
		return err
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (s *SQLiteStore) ReplaceAll(ctx context.Context, snap *domain.Snapshot) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"responses", "response_tokens", "events"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		_, err := importSnapshotSQL(ctx, tx, snap, false)
		return err
	})
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func importSnapshotSQL(ctx context.Context, tx *sql.Tx, snap *domain.Snapshot, skipExisting bool) (int, error) {
	imported := make(map[string]bool, len(snap.Events))
	for i := range snap.Events {
		ev := &snap.Events[i]
		if err := validateEvent(ev); err != nil {
			return 0, err
		}
		existing, err := scanEvent(tx.QueryRowContext(ctx, `SELECT data FROM events WHERE id = ?`, ev.ID))
		if err != nil {
			return 0, err
		}
		if existing != nil {
			if skipExisting {
				log.WithField("event_id", ev.ID).Debug("import: event already exists, skipping")
				continue
			}
			return 0, fmt.Errorf("duplicate event %s in snapshot", ev.ID)
		}
		if err := insertEvent(ctx, tx, ev); err != nil {
			return 0, err
		}
		imported[ev.ID] = true
	}

	for _, r := range latestResponses(snap.Responses) {
		if !imported[r.EventID] {
			continue
		}
		if err := replaceResponseRow(ctx, tx, &r); err != nil {
			return 0, err
		}
	}
	return len(imported), nil
}

func insertEvent(ctx context.Context, q sqlExecer, ev *domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", ev.ID, err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO events (id, organizer_token, created_at, data) VALUES (?, ?, ?, ?)`,
		ev.ID, ev.OrganizerToken, ev.CreatedAt.UTC().Format(time.RFC3339Nano), string(data),
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.ID, err)
	}

	for _, p := range ev.Participants {
		_, err := q.ExecContext(ctx,
			`INSERT INTO response_tokens (token, event_id, participant_id) VALUES (?, ?, ?)`,
			p.ResponseToken, ev.ID, p.ID,
		)
		if err != nil {
			return fmt.Errorf("insert response token of participant %s: %w", p.ID, err)
		}
	}
	return nil
}

func deleteEventRows(ctx context.Context, q sqlExecer, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM response_tokens WHERE event_id = ?`, id); err != nil {
		return fmt.Errorf("delete response tokens of event %s: %w", id, err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

func replaceResponseRow(ctx context.Context, q sqlExecer, r *domain.Response) error {
	if r.ID == "" || r.EventID == "" || r.ParticipantID == "" {
		return fmt.Errorf("response must carry id, event id and participant id")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling response %s: %w", r.ID, err)
	}
	if _, err := q.ExecContext(ctx,
		`DELETE FROM responses WHERE event_id = ? AND participant_id = ?`,
		r.EventID, r.ParticipantID,
	); err != nil {
		return fmt.Errorf("delete previous response: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO responses (id, event_id, participant_id, data) VALUES (?, ?, ?, ?)`,
		r.ID, r.EventID, r.ParticipantID, string(data),
	); err != nil {
		return fmt.Errorf("insert response %s: %w", r.ID, err)
	}
	return nil
}

func scanEvent(row *sql.Row) (*domain.Event, error) {
	var data string
	err := row.Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}

	var ev domain.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil, fmt.Errorf("unmarshaling event: %w", err)
	}
	return &ev, nil
}

func queryEvents(ctx context.Context, q sqlExecer) ([]domain.Event, error) {
	rows, err := q.QueryContext(ctx, `SELECT data FROM events`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev domain.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("unmarshaling event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanResponses(rows *sql.Rows) ([]domain.Response, error) {
	defer rows.Close()

	var out []domain.Response
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		var r domain.Response
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshaling response: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
