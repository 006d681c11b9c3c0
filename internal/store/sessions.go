package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sessionColumns = `id, name, title, company_name, company_website, company_description,
	job_description, interview_description, date, start_time, finished, finished_at,
	summary, latest_summary, created_at`

// CreateSession inserts a scheduled interview and returns its id.
func (s *Store) CreateSession(ctx context.Context, sess Session) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO sessions (name, title, company_name, company_website, company_description,
			job_description, interview_description, date, start_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), sess.Name, sess.Title, sess.CompanyName, sess.CompanyWebsite, sess.CompanyDescription,
		sess.JobDescription, sess.InterviewDescription, sess.Date, sess.StartTime, time.Now().Unix()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// GetSession returns the session with the given id or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id int64) (*Session, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`), id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}

// FinishSession marks a session finished and stores the final summary in
// both summary fields. Finishing again overwrites the summaries.
func (s *Store) FinishSession(ctx context.Context, id int64, summary string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE sessions
		SET finished = TRUE, finished_at = ?, summary = ?, latest_summary = ?
		WHERE id = ?
	`), at.Unix(), summary, summary, id)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return expectRow(res)
}

// UpdateLatestSummary replaces the editable summary of a session.
func (s *Store) UpdateLatestSummary(ctx context.Context, id int64, summary string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE sessions SET latest_summary = ? WHERE id = ?`), summary, id)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	return expectRow(res)
}

// ListFinished returns up to limit finished sessions, most recently finished first.
func (s *Store) ListFinished(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE finished = TRUE
		ORDER BY finished_at DESC, id DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("query finished sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*Session, error) {
	var sess Session
	var finishedAt sql.NullInt64
	var createdAt int64
	if err := r.Scan(&sess.ID, &sess.Name, &sess.Title, &sess.CompanyName, &sess.CompanyWebsite,
		&sess.CompanyDescription, &sess.JobDescription, &sess.InterviewDescription, &sess.Date,
		&sess.StartTime, &sess.Finished, &finishedAt, &sess.Summary, &sess.LatestSummary, &createdAt); err != nil {
		return nil, err
	}
	sess.CreatedAt = timeFromUnix(createdAt)
	if finishedAt.Valid {
		t := timeFromUnix(finishedAt.Int64)
		sess.FinishedAt = &t
	}
	return &sess, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
