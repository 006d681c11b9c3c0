package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// AppendKeynote stores a keynote with its embedding.
func (s *Store) AppendKeynote(ctx context.Context, sessionID int64, text string, embedding []float64) (Keynote, error) {
	var emb any
	if len(embedding) > 0 {
		emb = pq.Float64Array(embedding)
	}
	now := time.Now()
	k := Keynote{SessionID: sessionID, Text: text, Embedding: embedding, CreatedAt: time.Unix(now.Unix(), 0)}
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO keynotes (session_id, keynotes, embedding, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), sessionID, text, emb, now.Unix()).Scan(&k.ID)
	if err != nil {
		return Keynote{}, fmt.Errorf("insert keynote: %w", err)
	}
	return k, nil
}

// Keynotes returns all keynotes of a session in insertion order.
func (s *Store) Keynotes(ctx context.Context, sessionID int64) ([]Keynote, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, session_id, keynotes, embedding, created_at
		FROM keynotes
		WHERE session_id = ?
		ORDER BY id ASC
	`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("query keynotes: %w", err)
	}
	defer rows.Close()

	var out []Keynote
	for rows.Next() {
		var (
			k         Keynote
			vec       pq.Float64Array
			createdAt int64
		)
		if err := rows.Scan(&k.ID, &k.SessionID, &k.Text, &vec, &createdAt); err != nil {
			return nil, fmt.Errorf("scan keynote: %w", err)
		}
		k.Embedding = []float64(vec)
		k.CreatedAt = timeFromUnix(createdAt)
		out = append(out, k)
	}
	return out, rows.Err()
}
