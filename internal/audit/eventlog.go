// Package audit is the append-only trail of workflow operations. Events
// are written after the owning transaction commits; losing one degrades
// the trail, never the workflow state.
package audit

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// Event types emitted by the submission lifecycle.
const (
	TypeIntake            = "submission.intake"
	TypeReplace           = "submission.replace"
	TypeAttribute         = "submission.attribute"
	TypeDetach            = "submission.detach_grader"
	TypePurge             = "submission.purge"
	TypeCorrectionSubmit  = "correction.submit"
	TypeCorrectionApprove = "correction.validate"
	TypeCorrectionReject  = "correction.reject"
)

type Event struct {
	Offset    int64
	Type      string
	Key       string // natural key: submission id
	ActorID   string
	DataJSON  string
	CreatedAt int64
}

// Recorder appends events. Implementations must be safe for concurrent use.
type Recorder interface {
	Append(ctx context.Context, e Event) error
}

type Repo struct{ db *sql.DB }

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, actor_id, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.Type, e.Key, e.ActorID, e.DataJSON, time.Now().Unix())
	return err
}

func (r *Repo) List(ctx context.Context, key string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT "offset", typ, key, actor_id, data, created_at FROM event_log
		 WHERE key=$1 ORDER BY "offset"`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Offset, &e.Type, &e.Key, &e.ActorID, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Memory collects events in a slice, for offline mode and tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Append(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Offset = int64(len(m.events) + 1)
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	m.events = append(m.events, e)
	return nil
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
