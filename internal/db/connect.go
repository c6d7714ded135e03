package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:blindgrade.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/blindgrade?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  pass_hash TEXT NOT NULL,
  role TEXT NOT NULL                        -- submitter | grader | admin
);

CREATE TABLE IF NOT EXISTS contests (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  opens_at INTEGER NOT NULL,
  closes_at INTEGER NOT NULL,
  criteria_json TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
  id TEXT PRIMARY KEY,
  contest_id TEXT NOT NULL REFERENCES contests(id),
  submitter_id TEXT NOT NULL,
  anonymous_id TEXT NOT NULL,
  sealed_ref TEXT NOT NULL,
  deposited_at INTEGER NOT NULL,
  status TEXT NOT NULL,
  UNIQUE (contest_id, anonymous_id)         -- the identifier arbiter
);

CREATE TABLE IF NOT EXISTS attributions (
  submission_id TEXT PRIMARY KEY REFERENCES submissions(id),
  grader_id TEXT NOT NULL,
  assigned_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS corrections (
  id TEXT PRIMARY KEY,
  submission_id TEXT NOT NULL REFERENCES submissions(id),
  grader_id TEXT NOT NULL,
  entries_json TEXT NOT NULL,
  comment TEXT NOT NULL DEFAULT '',
  score REAL NOT NULL,
  submitted_at INTEGER NOT NULL,
  validated_at INTEGER,
  validator_id TEXT,
  admin_comment TEXT,
  UNIQUE (submission_id, grader_id)
);

CREATE TABLE IF NOT EXISTS modification_log (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  submission_id TEXT NOT NULL,
  actor_id TEXT NOT NULL,
  prior_ref TEXT NOT NULL,
  new_ref TEXT NOT NULL,
  reason TEXT NOT NULL DEFAULT '',
  at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rejection_log (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  submission_id TEXT NOT NULL,
  grader_id TEXT NOT NULL,
  admin_id TEXT NOT NULL,
  comment TEXT NOT NULL,
  entries_json TEXT NOT NULL,
  score REAL NOT NULL,
  at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  submission_id TEXT NOT NULL,
  message TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  read_at INTEGER
);

CREATE TABLE IF NOT EXISTS event_log (
  "offset" INTEGER PRIMARY KEY AUTOINCREMENT, -- BIGSERIAL in Postgres
  typ TEXT NOT NULL,                          -- e.g., submission.intake
  key TEXT NOT NULL,                          -- natural key: submission id
  actor_id TEXT NOT NULL DEFAULT '',
  data TEXT NOT NULL,                         -- JSON payload
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  pass_hash TEXT NOT NULL,
  role TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS contests (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  opens_at BIGINT NOT NULL,
  closes_at BIGINT NOT NULL,
  criteria_json TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
  id TEXT PRIMARY KEY,
  contest_id TEXT NOT NULL REFERENCES contests(id),
  submitter_id TEXT NOT NULL,
  anonymous_id TEXT NOT NULL,
  sealed_ref TEXT NOT NULL,
  deposited_at BIGINT NOT NULL,
  status TEXT NOT NULL,
  UNIQUE (contest_id, anonymous_id)
);

CREATE TABLE IF NOT EXISTS attributions (
  submission_id TEXT PRIMARY KEY REFERENCES submissions(id),
  grader_id TEXT NOT NULL,
  assigned_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS corrections (
  id TEXT PRIMARY KEY,
  submission_id TEXT NOT NULL REFERENCES submissions(id),
  grader_id TEXT NOT NULL,
  entries_json TEXT NOT NULL,
  comment TEXT NOT NULL DEFAULT '',
  score DOUBLE PRECISION NOT NULL,
  submitted_at BIGINT NOT NULL,
  validated_at BIGINT,
  validator_id TEXT,
  admin_comment TEXT,
  UNIQUE (submission_id, grader_id)
);

CREATE TABLE IF NOT EXISTS modification_log (
  id BIGSERIAL PRIMARY KEY,
  submission_id TEXT NOT NULL,
  actor_id TEXT NOT NULL,
  prior_ref TEXT NOT NULL,
  new_ref TEXT NOT NULL,
  reason TEXT NOT NULL DEFAULT '',
  at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS rejection_log (
  id BIGSERIAL PRIMARY KEY,
  submission_id TEXT NOT NULL,
  grader_id TEXT NOT NULL,
  admin_id TEXT NOT NULL,
  comment TEXT NOT NULL,
  entries_json TEXT NOT NULL,
  score DOUBLE PRECISION NOT NULL,
  at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  submission_id TEXT NOT NULL,
  message TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  read_at BIGINT
);

CREATE TABLE IF NOT EXISTS event_log (
  "offset" BIGSERIAL PRIMARY KEY,
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  actor_id TEXT NOT NULL DEFAULT '',
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
