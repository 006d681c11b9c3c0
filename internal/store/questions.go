package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Questions returns all questions of a session, unanswered first and
// newest first within each group.
func (s *Store) Questions(ctx context.Context, sessionID int64) ([]Question, error) {
	return s.queryQuestions(ctx, `
		SELECT id, session_id, question, answered, answer, valid
		FROM questions
		WHERE session_id = ?
		ORDER BY answered ASC, id DESC
	`, sessionID)
}

// PendingQuestions returns the questions still open for reconciliation:
// unanswered and not dismissed, newest first.
func (s *Store) PendingQuestions(ctx context.Context, sessionID int64) ([]Question, error) {
	return s.queryQuestions(ctx, `
		SELECT id, session_id, question, answered, answer, valid
		FROM questions
		WHERE session_id = ? AND answered = FALSE AND valid = 1
		ORDER BY id DESC
	`, sessionID)
}

func (s *Store) queryQuestions(ctx context.Context, query string, sessionID int64) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), sessionID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var qs []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.SessionID, &q.Text, &q.Answered, &q.Answer, &q.Valid); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		qs = append(qs, q)
	}
	return qs, rows.Err()
}

// QuestionEmbeddings returns the embedding of every question of a session,
// dismissed ones included. Rows without an embedding are skipped.
func (s *Store) QuestionEmbeddings(ctx context.Context, sessionID int64) ([][]float64, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT embedding FROM questions WHERE session_id = ? ORDER BY id ASC
	`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var out [][]float64
	for rows.Next() {
		var vec pq.Float64Array
		if err := rows.Scan(&vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if len(vec) > 0 {
			out = append(out, []float64(vec))
		}
	}
	return out, rows.Err()
}

// InsertQuestions stores new unanswered questions in one transaction and
// returns their ids in input order. Either all rows are written or none.
func (s *Store) InsertQuestions(ctx context.Context, sessionID int64, qs []Question) ([]int64, error) {
	if len(qs) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	ids := make([]int64, 0, len(qs))
	for _, q := range qs {
		var emb any
		if len(q.Embedding) > 0 {
			emb = pq.Float64Array(q.Embedding)
		}
		var id int64
		if err := tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO questions (session_id, question, embedding, answered, answer, valid, created_at)
			VALUES (?, ?, ?, FALSE, '', 1, ?)
			RETURNING id
		`), sessionID, q.Text, emb, now).Scan(&id); err != nil {
			return nil, fmt.Errorf("insert question: %w", err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit questions: %w", err)
	}
	return ids, nil
}

// ApplyAnswers records reconciliation results. Only questions of the
// session that are still unanswered and not dismissed are updated; answers
// for unknown, answered or dismissed ids are ignored, and so are entries
// that do not mark their question answered, whose answer stays empty. It
// returns the number of questions marked answered.
func (s *Store) ApplyAnswers(ctx context.Context, sessionID int64, answers []Answer) (int, error) {
	answered := make([]Answer, 0, len(answers))
	for _, a := range answers {
		if a.Answered {
			answered = append(answered, a)
		}
	}
	if len(answered) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	updated := 0
	for _, a := range answered {
		res, err := tx.ExecContext(ctx, s.rebind(`
			UPDATE questions
			SET answered = TRUE, answer = ?
			WHERE id = ? AND session_id = ? AND answered = FALSE AND valid = 1
		`), a.Text, a.QuestionID, sessionID)
		if err != nil {
			return 0, fmt.Errorf("update question %d: %w", a.QuestionID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			updated += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit answers: %w", err)
	}
	return updated, nil
}

// DismissQuestion marks a question invalid. Dismissal is terminal.
func (s *Store) DismissQuestion(ctx context.Context, sessionID, questionID int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE questions SET valid = 0 WHERE session_id = ? AND id = ?
	`), sessionID, questionID)
	if err != nil {
		return fmt.Errorf("dismiss question: %w", err)
	}
	return expectRow(res)
}
