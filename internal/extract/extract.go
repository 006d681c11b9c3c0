// Package extract runs the knowledge extraction flows over a session's
// transcript: incremental keynotes, deduplicated recommended questions
// with answer reconciliation, and the end-of-interview summary.
//
// Flows for one session are serialized; different sessions run in
// parallel.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/interviewd/internal/dedup"
	"github.com/obiente/interviewd/internal/llm"
	"github.com/obiente/interviewd/internal/prompts"
	"github.com/obiente/interviewd/internal/store"
)

// ErrNothingNew is returned by Keynotes when no transcript has arrived
// since the previous pass. It is a no-op signal, not a failure.
var ErrNothingNew = errors.New("extract: nothing new")

// Generator produces text from a chat prompt.
type Generator interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Store is the persistence the orchestrator needs.
type Store interface {
	CreateSession(ctx context.Context, sess store.Session) (int64, error)
	GetSession(ctx context.Context, id int64) (*store.Session, error)
	FinishSession(ctx context.Context, id int64, summary string, at time.Time) error
	UpdateLatestSummary(ctx context.Context, id int64, summary string) error
	ListFinished(ctx context.Context, limit int) ([]store.Session, error)

	ReadAll(ctx context.Context, sessionID int64) (string, error)
	ReadUnconsumedAndMark(ctx context.Context, sessionID int64) (string, error)

	Questions(ctx context.Context, sessionID int64) ([]store.Question, error)
	PendingQuestions(ctx context.Context, sessionID int64) ([]store.Question, error)
	QuestionEmbeddings(ctx context.Context, sessionID int64) ([][]float64, error)
	InsertQuestions(ctx context.Context, sessionID int64, qs []store.Question) ([]int64, error)
	ApplyAnswers(ctx context.Context, sessionID int64, answers []store.Answer) (int, error)
	DismissQuestion(ctx context.Context, sessionID, questionID int64) error

	AppendKeynote(ctx context.Context, sessionID int64, text string, embedding []float64) (store.Keynote, error)
	Keynotes(ctx context.Context, sessionID int64) ([]store.Keynote, error)
}

// Options tunes an Orchestrator.
type Options struct {
	// Threshold is the question dedup similarity; <= 0 means
	// dedup.DefaultQuestionThreshold.
	Threshold float64
	// ArtifactDir, when set, receives an append-only keynote log per session.
	ArtifactDir string
}

// Orchestrator runs the extraction flows, one at a time per session.
type Orchestrator struct {
	store       Store
	gen         Generator
	emb         dedup.Embedder
	prompts     *prompts.Set
	threshold   float64
	artifactDir string
	locks       *sessionLocks
}

// New returns an Orchestrator over st using gen for generation and emb
// for embeddings.
func New(st Store, gen Generator, emb dedup.Embedder, p *prompts.Set, opts Options) *Orchestrator {
	if opts.Threshold <= 0 {
		opts.Threshold = dedup.DefaultQuestionThreshold
	}
	return &Orchestrator{
		store:       st,
		gen:         gen,
		emb:         emb,
		prompts:     p,
		threshold:   opts.Threshold,
		artifactDir: opts.ArtifactDir,
		locks:       newSessionLocks(),
	}
}

// Keynotes consumes the transcript that arrived since the last pass and
// stores a keynote generated from it. It returns ErrNothingNew when there
// is no such transcript.
//
// The slice is marked consumed before generation runs, so a generation
// failure loses that slice for keynote purposes. Summaries and questions
// still see it through the full transcript.
func (o *Orchestrator) Keynotes(ctx context.Context, sessionID int64) (store.Keynote, error) {
	unlock := o.locks.lock(sessionID)
	defer unlock()

	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return store.Keynote{}, err
	}
	slice, err := o.store.ReadUnconsumedAndMark(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Int64("session_id", sessionID).Msg("keynotes: consume transcript failed")
		return store.Keynote{}, fmt.Errorf("consume transcript: %w", err)
	}
	if slice == "" {
		log.Debug().Int64("session_id", sessionID).Msg("keynotes: nothing new")
		return store.Keynote{}, ErrNothingNew
	}

	out, err := o.complete(ctx, *sess, o.prompts.Keynotes, slice)
	if err != nil {
		log.Error().Err(err).Int64("session_id", sessionID).Int("transcript_len", len(slice)).Msg("keynotes: generation failed")
		return store.Keynote{}, fmt.Errorf("generate keynotes: %w", err)
	}
	note := stripPrefix(out, o.prompts.KeynotesPrefix)
	if note == "" {
		log.Warn().Int64("session_id", sessionID).Msg("keynotes: empty generation output")
		return store.Keynote{}, &llm.MalformedError{Raw: out, Err: errors.New("empty keynote")}
	}

	vec, err := o.emb.Embed(ctx, dedup.Normalize(note))
	if err != nil {
		// Keep the keynote; the slice is already consumed.
		log.Warn().Err(err).Int64("session_id", sessionID).Msg("keynotes: embedding failed, storing without vector")
		vec = nil
	}
	k, err := o.store.AppendKeynote(ctx, sessionID, note, vec)
	if err != nil {
		log.Error().Err(err).Int64("session_id", sessionID).Msg("keynotes: persist failed")
		return store.Keynote{}, fmt.Errorf("persist keynote: %w", err)
	}
	o.writeArtifact(sessionID, k)

	log.Info().Int64("session_id", sessionID).Int64("keynote_id", k.ID).Int("transcript_len", len(slice)).Msg("keynotes: generated")
	return k, nil
}

// ListKeynotes returns the keynote history of a session, oldest first.
func (o *Orchestrator) ListKeynotes(ctx context.Context, sessionID int64) ([]store.Keynote, error) {
	if _, err := o.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return o.store.Keynotes(ctx, sessionID)
}

// GenerateQuestions generates recommended questions from the full
// transcript, inserts the ones that are semantically new, reconciles
// answers for every open question and returns the session's question list.
//
// Step failures are logged and do not fail the call: the list returned
// reflects whatever progress was made. Only a missing session or a failure
// to read the list itself is returned as an error.
func (o *Orchestrator) GenerateQuestions(ctx context.Context, sessionID int64) ([]store.Question, error) {
	unlock := o.locks.lock(sessionID)
	defer unlock()

	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	logger := log.With().Int64("session_id", sessionID).Logger()

	transcript, err := o.store.ReadAll(ctx, sessionID)
	switch {
	case err != nil:
		logger.Error().Err(err).Msg("questions: read transcript failed")
	case transcript == "":
		logger.Debug().Msg("questions: empty transcript")
	default:
		if n, err := o.insertUnique(ctx, *sess, transcript); err != nil {
			logger.Error().Err(err).Msg("questions: insert unique failed")
		} else {
			logger.Info().Int("inserted", n).Msg("questions: inserted")
		}
		if n, err := o.reconcile(ctx, *sess, transcript); err != nil {
			logger.Error().Err(err).Msg("questions: reconcile failed")
		} else {
			logger.Info().Int("answered", n).Msg("questions: reconciled")
		}
	}

	qs, err := o.store.Questions(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return qs, nil
}

// insertUnique generates candidate questions and stores those unique
// against the session's question corpus.
func (o *Orchestrator) insertUnique(ctx context.Context, sess store.Session, transcript string) (int, error) {
	raw, err := o.complete(ctx, sess, o.prompts.Questions, transcript)
	if err != nil {
		return 0, fmt.Errorf("generate questions: %w", err)
	}
	texts, err := llm.ParseStringValues(raw)
	if err != nil {
		log.Warn().Err(err).Int64("session_id", sess.ID).Str("raw", truncate(raw, 256)).Msg("questions: malformed generation output")
		return 0, err
	}

	corpus, err := o.store.QuestionEmbeddings(ctx, sess.ID)
	if err != nil {
		return 0, err
	}
	kept, err := dedup.Filter(ctx, o.emb, texts, corpus, o.threshold)
	if err != nil {
		return 0, fmt.Errorf("embed candidates: %w", err)
	}
	log.Debug().Int64("session_id", sess.ID).Int("candidates", len(texts)).Int("unique", len(kept)).Msg("questions: dedup")

	qs := make([]store.Question, 0, len(kept))
	for _, c := range kept {
		qs = append(qs, store.Question{Text: c.Text, Embedding: c.Embedding})
	}
	ids, err := o.store.InsertQuestions(ctx, sess.ID, qs)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// answerEntry is one reconciliation result as produced by the generator.
type answerEntry struct {
	ID         questionID `json:"id"`
	IsAnswered bool       `json:"is_answered"`
	Answer     string     `json:"answer"`
}

// reconcile asks the generator which open questions the transcript
// answers and records the results.
func (o *Orchestrator) reconcile(ctx context.Context, sess store.Session, transcript string) (int, error) {
	pending, err := o.store.PendingQuestions(ctx, sess.ID)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	lines := make([]string, 0, len(pending))
	for _, q := range pending {
		lines = append(lines, fmt.Sprintf("%d: %s", q.ID, q.Text))
	}
	body := strings.Join(lines, "\n") + "\n\nTranscript:\n" + transcript

	raw, err := o.complete(ctx, sess, o.prompts.Answers, body)
	if err != nil {
		return 0, fmt.Errorf("generate answers: %w", err)
	}
	entries, err := llm.ParseJSON[[]answerEntry](raw)
	if err != nil {
		log.Warn().Err(err).Int64("session_id", sess.ID).Str("raw", truncate(raw, 256)).Msg("questions: malformed reconciliation output")
		return 0, err
	}

	answers := make([]store.Answer, 0, len(entries))
	for _, e := range entries {
		answers = append(answers, store.Answer{QuestionID: int64(e.ID), Answered: e.IsAnswered, Text: e.Answer})
	}
	return o.store.ApplyAnswers(ctx, sess.ID, answers)
}

// ListQuestions returns a session's questions, unanswered and newest first.
func (o *Orchestrator) ListQuestions(ctx context.Context, sessionID int64) ([]store.Question, error) {
	if _, err := o.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return o.store.Questions(ctx, sessionID)
}

// AddQuestion stores a user-entered question. It is embedded so later
// generated paraphrases dedup against it; it is inserted even if it
// repeats an existing question.
func (o *Orchestrator) AddQuestion(ctx context.Context, sessionID int64, text string) (store.Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Question{}, errors.New("question text is empty")
	}
	unlock := o.locks.lock(sessionID)
	defer unlock()

	if _, err := o.store.GetSession(ctx, sessionID); err != nil {
		return store.Question{}, err
	}
	vec, err := o.emb.Embed(ctx, dedup.Normalize(text))
	if err != nil {
		return store.Question{}, fmt.Errorf("embed question: %w", err)
	}
	ids, err := o.store.InsertQuestions(ctx, sessionID, []store.Question{{Text: text, Embedding: vec}})
	if err != nil {
		return store.Question{}, err
	}
	return store.Question{ID: ids[0], SessionID: sessionID, Text: text, Embedding: vec, Valid: store.QuestionValid}, nil
}

// DismissQuestion marks a question invalid. Later reconciliation passes
// never touch it again.
func (o *Orchestrator) DismissQuestion(ctx context.Context, sessionID, questionID int64) error {
	unlock := o.locks.lock(sessionID)
	defer unlock()
	return o.store.DismissQuestion(ctx, sessionID, questionID)
}

// FinishSession summarizes the full transcript and closes the session.
// Finishing again recomputes the summary and overwrites it.
func (o *Orchestrator) FinishSession(ctx context.Context, sessionID int64) (string, error) {
	unlock := o.locks.lock(sessionID)
	defer unlock()

	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	transcript, err := o.store.ReadAll(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}

	var summary string
	if transcript != "" {
		summary, err = o.complete(ctx, *sess, o.prompts.Summary, transcript)
		if err != nil {
			log.Error().Err(err).Int64("session_id", sessionID).Msg("finish: summary generation failed")
			return "", fmt.Errorf("generate summary: %w", err)
		}
		summary = strings.TrimSpace(summary)
	}
	if err := o.store.FinishSession(ctx, sessionID, summary, time.Now()); err != nil {
		log.Error().Err(err).Int64("session_id", sessionID).Msg("finish: persist failed")
		return "", err
	}
	log.Info().Int64("session_id", sessionID).Int("summary_len", len(summary)).Msg("session finished")
	return summary, nil
}

// UpdateLatestSummary replaces the user-editable summary of a session.
func (o *Orchestrator) UpdateLatestSummary(ctx context.Context, sessionID int64, text string) error {
	unlock := o.locks.lock(sessionID)
	defer unlock()
	return o.store.UpdateLatestSummary(ctx, sessionID, text)
}

func (o *Orchestrator) CreateSession(ctx context.Context, sess store.Session) (*store.Session, error) {
	id, err := o.store.CreateSession(ctx, sess)
	if err != nil {
		return nil, err
	}
	return o.store.GetSession(ctx, id)
}

func (o *Orchestrator) GetSession(ctx context.Context, id int64) (*store.Session, error) {
	return o.store.GetSession(ctx, id)
}

// ListFinished returns the most recently finished sessions.
func (o *Orchestrator) ListFinished(ctx context.Context, limit int) ([]store.Session, error) {
	if limit <= 0 {
		limit = 10
	}
	return o.store.ListFinished(ctx, limit)
}

// complete renders the session system prompt and the task prompt and
// sends them with body appended to the task.
func (o *Orchestrator) complete(ctx context.Context, sess store.Session, task, body string) (string, error) {
	system, err := prompts.Render(o.prompts.System, sess)
	if err != nil {
		return "", err
	}
	instr, err := prompts.Render(task, sess)
	if err != nil {
		return "", err
	}
	user := instr + "\n\n" + body
	log.Debug().Int64("session_id", sess.ID).Int("system_len", len(system)).Int("prompt_len", len(user)).Msg("llm request")

	start := time.Now()
	out, err := o.gen.Complete(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
	if err != nil {
		return "", err
	}
	log.Debug().Int64("session_id", sess.ID).Int("result_len", len(out)).Dur("took", time.Since(start)).Msg("llm response")
	return out, nil
}

// stripPrefix removes the boilerplate lead-in generators put before
// keynotes, compared case-insensitively.
func stripPrefix(s, prefix string) string {
	s = strings.TrimSpace(s)
	if prefix != "" && len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		s = strings.TrimSpace(s[len(prefix):])
	}
	return s
}

func (o *Orchestrator) writeArtifact(sessionID int64, k store.Keynote) {
	if o.artifactDir == "" {
		return
	}
	path := filepath.Join(o.artifactDir, fmt.Sprintf("session-%d-keynotes.txt", sessionID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("keynotes: artifact open failed")
		return
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s\n\n", k.Text); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("keynotes: artifact write failed")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
