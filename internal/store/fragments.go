package store

import (
	"context"
	"fmt"

	"github.com/obiente/interviewd/internal/transcript"
)

// AppendFragment stores a fragment as unconsumed and returns its id.
// Ids grow monotonically, so id order is arrival order.
func (s *Store) AppendFragment(ctx context.Context, sessionID int64, f transcript.Fragment) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO transcript_fragments (session_id, start_sec, duration_sec, transcript, confidence, speaker, channel)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), sessionID, f.Start, f.Duration, f.Text, f.Confidence, f.Speaker, f.Channel).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert fragment: %w", err)
	}
	return id, nil
}

// Fragments returns every fragment of a session in arrival order.
func (s *Store) Fragments(ctx context.Context, sessionID int64) ([]transcript.Fragment, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, session_id, start_sec, duration_sec, transcript, confidence, speaker, channel, consumed
		FROM transcript_fragments
		WHERE session_id = ?
		ORDER BY id ASC
	`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("query fragments: %w", err)
	}
	defer rows.Close()

	var frags []transcript.Fragment
	for rows.Next() {
		var f transcript.Fragment
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Start, &f.Duration, &f.Text,
			&f.Confidence, &f.Speaker, &f.Channel, &f.Consumed); err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		frags = append(frags, f)
	}
	return frags, rows.Err()
}

// ReadAll returns the full transcript of a session, one fragment per line.
// It does not touch the consumed markers.
func (s *Store) ReadAll(ctx context.Context, sessionID int64) (string, error) {
	frags, err := s.Fragments(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return transcript.Join(frags), nil
}

// ReadUnconsumedAndMark returns the text of every unconsumed fragment of a
// session and marks those fragments consumed, in one transaction. If the
// transaction cannot commit, the error is returned and no fragment changes
// state. An empty string means nothing new has arrived since the last call.
func (s *Store) ReadUnconsumedAndMark(ctx context.Context, sessionID int64) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, s.rebind(`
		SELECT id, transcript
		FROM transcript_fragments
		WHERE session_id = ? AND consumed = FALSE
		ORDER BY id ASC`+s.forUpdate()), sessionID)
	if err != nil {
		return "", fmt.Errorf("query unconsumed: %w", err)
	}
	var (
		frags []transcript.Fragment
		last  int64
	)
	for rows.Next() {
		var f transcript.Fragment
		if err := rows.Scan(&f.ID, &f.Text); err != nil {
			rows.Close()
			return "", fmt.Errorf("scan fragment: %w", err)
		}
		frags = append(frags, f)
		last = f.ID
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return "", fmt.Errorf("iterate fragments: %w", err)
	}
	rows.Close()

	if len(frags) == 0 {
		return "", nil
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`
		UPDATE transcript_fragments
		SET consumed = TRUE
		WHERE session_id = ? AND consumed = FALSE AND id <= ?
	`), sessionID, last); err != nil {
		return "", fmt.Errorf("mark consumed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit consume: %w", err)
	}
	return transcript.Join(frags), nil
}
