// Package store persists interview sessions, their transcript fragments,
// generated questions and keynotes. Two dialects are supported: PostgreSQL
// (DSN starting with postgres://) through lib/pq and embedded SQLite
// through modernc.org/sqlite for everything else.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session or question row does not exist.
var ErrNotFound = errors.New("not found")

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// Store wraps a database handle for one of the supported dialects.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the database identified by dsn and verifies the connection.
func Open(dsn string) (*Store, error) {
	driver, d := "sqlite", dialectSQLite
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, d = "postgres", dialectPostgres
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if d == dialectSQLite {
		// One connection: keeps :memory: databases alive and serializes writers.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if d == dialectSQLite {
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	return &Store{db: db, dialect: d}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	serial, real, bigint, vector := "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL", "INTEGER", "TEXT"
	if s.dialect == dialectPostgres {
		serial, real, bigint, vector = "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION", "BIGINT", "DOUBLE PRECISION[]"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id ` + serial + `,
			name TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			company_name TEXT NOT NULL DEFAULT '',
			company_website TEXT NOT NULL DEFAULT '',
			company_description TEXT NOT NULL DEFAULT '',
			job_description TEXT NOT NULL DEFAULT '',
			interview_description TEXT NOT NULL DEFAULT '',
			date TEXT NOT NULL DEFAULT '',
			start_time TEXT NOT NULL DEFAULT '',
			finished BOOLEAN NOT NULL DEFAULT FALSE,
			finished_at ` + bigint + `,
			summary TEXT NOT NULL DEFAULT '',
			latest_summary TEXT NOT NULL DEFAULT '',
			created_at ` + bigint + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transcript_fragments (
			id ` + serial + `,
			session_id ` + bigint + ` NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			start_sec ` + real + ` NOT NULL DEFAULT 0,
			duration_sec ` + real + ` NOT NULL DEFAULT 0,
			transcript TEXT NOT NULL,
			confidence ` + real + ` NOT NULL DEFAULT 0,
			speaker INTEGER NOT NULL DEFAULT 0,
			channel INTEGER NOT NULL DEFAULT -1,
			consumed BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fragments_session ON transcript_fragments (session_id, consumed, id)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id ` + serial + `,
			session_id ` + bigint + ` NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			question TEXT NOT NULL,
			embedding ` + vector + `,
			answered BOOLEAN NOT NULL DEFAULT FALSE,
			answer TEXT NOT NULL DEFAULT '',
			valid INTEGER NOT NULL DEFAULT 1,
			created_at ` + bigint + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_session ON questions (session_id, answered, id)`,
		`CREATE TABLE IF NOT EXISTS keynotes (
			id ` + serial + `,
			session_id ` + bigint + ` NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			keynotes TEXT NOT NULL,
			embedding ` + vector + `,
			created_at ` + bigint + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_keynotes_session ON keynotes (session_id, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders into the dialect's bind syntax.
func (s *Store) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// forUpdate returns the row-locking suffix for SELECTs inside write transactions.
func (s *Store) forUpdate() string {
	if s.dialect == dialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func timeFromUnix(ts int64) time.Time {
	return time.Unix(ts, 0)
}
