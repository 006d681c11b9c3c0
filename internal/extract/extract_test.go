package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/obiente/interviewd/internal/llm"
	"github.com/obiente/interviewd/internal/prompts"
	"github.com/obiente/interviewd/internal/store"
	"github.com/obiente/interviewd/internal/transcript"
)

var testPrompts = &prompts.Set{
	System:         "Interview with {{.Name}}.",
	KeynotesPrefix: "key points discussed:",
	Keynotes:       "TASK:keynotes",
	Questions:      "TASK:questions",
	Answers:        "TASK:answers",
	Summary:        "TASK:summary",
}

// fakeGenerator dispatches on the task prefix of the user message.
type fakeGenerator struct {
	mu    sync.Mutex
	calls map[string]int
	reply func(task, body string) (string, error)
}

func (g *fakeGenerator) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	user := messages[len(messages)-1].Content
	task, body, _ := strings.Cut(user, "\n\n")
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]int)
	}
	g.calls[task]++
	g.mu.Unlock()
	return g.reply(task, body)
}

func (g *fakeGenerator) count(task string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[task]
}

// fakeEmbedder gives every distinct text its own axis unless the text is
// listed in same, which maps paraphrases onto a shared text.
type fakeEmbedder struct {
	mu   sync.Mutex
	axes map[string]int
	same map[string]string
	err  error
}

const embedDims = 64

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.axes == nil {
		e.axes = make(map[string]int)
	}
	if canon, ok := e.same[text]; ok {
		text = canon
	}
	axis, ok := e.axes[text]
	if !ok {
		axis = len(e.axes)
		e.axes[text] = axis
	}
	vec := make([]float64, embedDims)
	vec[axis%embedDims] = 1
	return vec, nil
}

func newTestOrchestrator(t *testing.T, gen *fakeGenerator, emb *fakeEmbedder, opts Options) (*Orchestrator, *store.Store, int64) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	o := New(st, gen, emb, testPrompts, opts)
	sess, err := o.CreateSession(context.Background(), store.Session{Name: "Ada", CompanyName: "Acme"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return o, st, sess.ID
}

func appendFragment(t *testing.T, st *store.Store, sessionID int64, text string, speaker int) {
	t.Helper()
	f := transcript.Fragment{Text: text, Speaker: speaker, Channel: transcript.NoChannel, Confidence: 0.9}
	if _, err := st.AppendFragment(context.Background(), sessionID, f); err != nil {
		t.Fatalf("append fragment: %v", err)
	}
}

// pendingLine matches the "<id>: <question>" lines of a reconciliation prompt.
var pendingLine = regexp.MustCompile(`(?m)^(\d+): (.+)$`)

func pendingIDs(body string) map[string]int64 {
	out := make(map[string]int64)
	for _, m := range pendingLine.FindAllStringSubmatch(body, -1) {
		id, _ := strconv.ParseInt(m[1], 10, 64)
		out[m[2]] = id
	}
	return out
}

func TestKeynotesEndToEnd(t *testing.T) {
	gen := &fakeGenerator{reply: func(task, body string) (string, error) {
		return "Key points discussed:\n" + body, nil
	}}
	o, st, id := newTestOrchestrator(t, gen, &fakeEmbedder{}, Options{})
	ctx := context.Background()

	appendFragment(t, st, id, "Tell me about yourself.", 0)
	appendFragment(t, st, id, "I have five years of experience.", 1)

	k, err := o.Keynotes(ctx, id)
	if err != nil {
		t.Fatalf("Keynotes: %v", err)
	}
	if k.Text != "Tell me about yourself.\nI have five years of experience." {
		t.Errorf("keynote = %q", k.Text)
	}
	if len(k.Embedding) == 0 {
		t.Error("keynote stored without embedding")
	}

	if _, err := o.Keynotes(ctx, id); !errors.Is(err, ErrNothingNew) {
		t.Fatalf("second pass err = %v, want ErrNothingNew", err)
	}
	if n := gen.count("TASK:keynotes"); n != 1 {
		t.Errorf("generator called %d times, want 1", n)
	}

	appendFragment(t, st, id, "I led the migration to Go.", 1)
	k, err = o.Keynotes(ctx, id)
	if err != nil {
		t.Fatalf("third pass: %v", err)
	}
	if k.Text != "I led the migration to Go." {
		t.Errorf("keynote = %q, want only the new fragment", k.Text)
	}

	history, err := o.ListKeynotes(ctx, id)
	if err != nil {
		t.Fatalf("ListKeynotes: %v", err)
	}
	if len(history) != 2 || history[1].ID != k.ID {
		t.Errorf("history = %+v", history)
	}
}

func TestKeynotesGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{reply: func(task, body string) (string, error) {
		return "", &llm.StatusError{Code: 503, Body: "unavailable"}
	}}
	o, st, id := newTestOrchestrator(t, gen, &fakeEmbedder{}, Options{})
	appendFragment(t, st, id, "Tell me about yourself.", 0)

	_, err := o.Keynotes(context.Background(), id)
	var se *llm.StatusError
	if !errors.As(err, &se) || se.Code != 503 {
		t.Fatalf("err = %v, want wrapped StatusError", err)
	}
	history, _ := o.ListKeynotes(context.Background(), id)
	if len(history) != 0 {
		t.Errorf("keynote persisted after failure: %+v", history)
	}
}

func TestKeynotesEmbeddingFailureStillPersists(t *testing.T) {
	gen := &fakeGenerator{reply: func(task, body string) (string, error) { return body, nil }}
	o, st, id := newTestOrchestrator(t, gen, &fakeEmbedder{err: errors.New("embeddings down")}, Options{})
	appendFragment(t, st, id, "Tell me about yourself.", 0)

	k, err := o.Keynotes(context.Background(), id)
	if err != nil {
		t.Fatalf("Keynotes: %v", err)
	}
	if len(k.Embedding) != 0 {
		t.Errorf("embedding = %v, want none", k.Embedding)
	}
}

func TestKeynotesArtifact(t *testing.T) {
	dir := t.TempDir()
	gen := &fakeGenerator{reply: func(task, body string) (string, error) { return body, nil }}
	o, st, id := newTestOrchestrator(t, gen, &fakeEmbedder{}, Options{ArtifactDir: dir})
	ctx := context.Background()

	appendFragment(t, st, id, "First answer.", 1)
	o.Keynotes(ctx, id)
	appendFragment(t, st, id, "Second answer.", 1)
	o.Keynotes(ctx, id)

	data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("session-%d-keynotes.txt", id)))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != "First answer.\n\nSecond answer.\n\n" {
		t.Errorf("artifact = %q", data)
	}
}

func TestKeynotesSerializedPerSession(t *testing.T) {
	gen := &fakeGenerator{reply: func(task, body string) (string, error) { return body, nil }}
	o, st, id := newTestOrchestrator(t, gen, &fakeEmbedder{}, Options{})
	appendFragment(t, st, id, "Tell me about yourself.", 0)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		noop      atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Keynotes(context.Background(), id)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrNothingNew):
				noop.Add(1)
			default:
				t.Errorf("Keynotes: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 1 || noop.Load() != 7 {
		t.Errorf("succeeded=%d noop=%d, want 1 and 7", succeeded.Load(), noop.Load())
	}
	if n := o.locks.size(); n != 0 {
		t.Errorf("%d session locks left behind", n)
	}
}

func TestGenerateQuestionsDedupAndReconcile(t *testing.T) {
	gen := &fakeGenerator{reply: func(task, body string) (string, error) {
		switch task {
		case "TASK:questions":
			return "```json\n" + `{"q1": "What tools do you use?", "q2": "What tools are you using?", "q3": "Why Go?"}` + "\n```", nil
		case "TASK:answers":
			var out []map[string]any
			for text, id := range pendingIDs(body) {
				answered := text == "Why Go?"
				answer := "Not discussed yet."
				if answered {
					answer = "Concurrency."
				}
				out = append(out, map[string]any{"id": strconv.FormatInt(id, 10), "is_answered": answered, "answer": answer})
			}
			b, _ := json.Marshal(out)
			return string(b), nil
		}
		return "", fmt.Errorf("unexpected task %q", task)
	}}
	emb := &fakeEmbedder{same: map[string]string{"What tools are you using?": "What tools do you use?"}}
	o, st, id := newTestOrchestrator(t, gen, emb, Options{})
	ctx := context.Background()
	appendFragment(t, st, id, "We moved everything to Go for concurrency.", 1)

	qs, err := o.GenerateQuestions(ctx, id)
	if err != nil {
		t.Fatalf("GenerateQuestions: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("got %d questions, want 2: %+v", len(qs), qs)
	}
	if qs[0].Text != "What tools do you use?" || qs[0].Answered || qs[0].Answer != "" {
		t.Errorf("first = %+v, want unanswered tools question with no answer", qs[0])
	}
	if qs[1].Text != "Why Go?" || !qs[1].Answered || qs[1].Answer != "Concurrency." {
		t.Errorf("second = %+v, want answered Why Go", qs[1])
	}

	// A second pass over the same output adds nothing.
	qs, err = o.GenerateQuestions(ctx, id)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(qs) != 2 {
		t.Errorf("second pass has %d questions, want 2", len(qs))
	}
}

func TestDismissedQuestionIgnoredByReconciliation(t *testing.T) {
	var dismissed int64
	var sawDismissed atomic.Bool
	gen := &fakeGenerator{reply: func(task, body string) (string, error) {
		switch task {
		case "TASK:questions":
			return `{"a": "What is your notice period?", "b": "Do you prefer remote work?"}`, nil
		case "TASK:answers":
			ids := pendingIDs(body)
			for _, pid := range ids {
				if pid == dismissed {
					sawDismissed.Store(true)
				}
			}
			out := []map[string]any{}
			if dismissed != 0 {
				out = append(out, map[string]any{"id": dismissed, "is_answered": true, "answer": "Two weeks."})
			}
			out = append(out, map[string]any{"id": 9999, "is_answered": true, "answer": "ghost"})
			b, _ := json.Marshal(out)
			return string(b), nil
		}
		return "", nil
	}}
	o, st, id := newTestOrchestrator(t, gen, &fakeEmbedder{}, Options{})
	ctx := context.Background()
	appendFragment(t, st, id, "My notice period is two weeks.", 1)

	qs, err := o.GenerateQuestions(ctx, id)
	if err != nil || len(qs) != 2 {
		t.Fatalf("GenerateQuestions = %+v, %v", qs, err)
	}
	for _, q := range qs {
		if q.Text == "What is your notice period?" {
			dismissed = q.ID
		}
	}
	if err := o.DismissQuestion(ctx, id, dismissed); err != nil {
		t.Fatalf("DismissQuestion: %v", err)
	}

	qs, err = o.GenerateQuestions(ctx, id)
	if err != nil {
		t.Fatalf("GenerateQuestions: %v", err)
	}
	if sawDismissed.Load() {
		t.Error("dismissed question was offered for reconciliation")
	}
	if len(qs) != 2 {
		t.Fatalf("got %d questions, want 2 (dismissed one not regenerated)", len(qs))
	}
	for _, q := range qs {
		if q.ID == dismissed && (q.Valid != store.QuestionDismissed || q.Answered || q.Answer != "") {
			t.Errorf("dismissed question changed: %+v", q)
		}
	}
}

func TestGenerateQuestionsMalformedReturnsCurrentList(t *testing.T) {
	gen := &fakeGenerator{reply: func(task, body string) (string, error) {
		return "Sure! Here are some questions you could ask.", nil
	}}
	o, st, id := newTestOrchestrator(t, gen, &fakeEmbedder{}, Options{})
	ctx := context.Background()
	appendFragment(t, st, id, "Tell me about yourself.", 0)

	if _, err := o.AddQuestion(ctx, id, "What is your notice period?"); err != nil {
		t.Fatalf("AddQuestion: %v", err)
	}
	qs, err := o.GenerateQuestions(ctx, id)
	if err != nil {
		t.Fatalf("GenerateQuestions: %v", err)
	}
	if len(qs) != 1 || qs[0].Text != "What is your notice period?" || qs[0].Answered {
		t.Errorf("questions = %+v", qs)
	}
	if gen.count("TASK:answers") != 1 {
		t.Errorf("reconciliation should still run after a malformed question pass")
	}
}

func TestGenerateQuestionsUpstreamFailureKeepsInserted(t *testing.T) {
	gen := &fakeGenerator{reply: func(task, body string) (string, error) {
		if task == "TASK:questions" {
			return `["Why Go?"]`, nil
		}
		return "", errors.New("connection refused")
	}}
	o, st, id := newTestOrchestrator(t, gen, &fakeEmbedder{}, Options{})
	appendFragment(t, st, id, "Tell me about yourself.", 0)

	qs, err := o.GenerateQuestions(context.Background(), id)
	if err != nil {
		t.Fatalf("GenerateQuestions: %v", err)
	}
	if len(qs) != 1 || qs[0].Text != "Why Go?" {
		t.Errorf("questions = %+v, want the inserted question", qs)
	}
}

func TestGenerateQuestionsEmptyTranscript(t *testing.T) {
	gen := &fakeGenerator{reply: func(task, body string) (string, error) { return "{}", nil }}
	o, _, id := newTestOrchestrator(t, gen, &fakeEmbedder{}, Options{})

	qs, err := o.GenerateQuestions(context.Background(), id)
	if err != nil || len(qs) != 0 {
		t.Fatalf("GenerateQuestions = %+v, %v", qs, err)
	}
	if gen.count("TASK:questions") != 0 {
		t.Error("generator called without a transcript")
	}
}

func TestOperationsOnUnknownSession(t *testing.T) {
	gen := &fakeGenerator{reply: func(task, body string) (string, error) { return "", nil }}
	o, _, id := newTestOrchestrator(t, gen, &fakeEmbedder{}, Options{})
	ctx := context.Background()
	missing := id + 100

	if _, err := o.Keynotes(ctx, missing); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Keynotes err = %v", err)
	}
	if _, err := o.GenerateQuestions(ctx, missing); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GenerateQuestions err = %v", err)
	}
	if _, err := o.FinishSession(ctx, missing); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FinishSession err = %v", err)
	}
	if err := o.DismissQuestion(ctx, id, 12345); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("DismissQuestion err = %v", err)
	}
}

func TestFinishSession(t *testing.T) {
	n := 0
	gen := &fakeGenerator{reply: func(task, body string) (string, error) {
		n++
		return fmt.Sprintf("  Summary %d of: %s  ", n, body), nil
	}}
	o, st, id := newTestOrchestrator(t, gen, &fakeEmbedder{}, Options{})
	ctx := context.Background()
	appendFragment(t, st, id, "Tell me about yourself.", 0)

	summary, err := o.FinishSession(ctx, id)
	if err != nil {
		t.Fatalf("FinishSession: %v", err)
	}
	if summary != "Summary 1 of: Tell me about yourself." {
		t.Errorf("summary = %q", summary)
	}
	sess, _ := o.GetSession(ctx, id)
	if !sess.Finished || sess.Summary != summary || sess.LatestSummary != summary || sess.FinishedAt == nil {
		t.Errorf("session = %+v", sess)
	}

	if err := o.UpdateLatestSummary(ctx, id, "edited notes"); err != nil {
		t.Fatalf("UpdateLatestSummary: %v", err)
	}
	sess, _ = o.GetSession(ctx, id)
	if sess.Summary != summary || sess.LatestSummary != "edited notes" {
		t.Errorf("after edit = %+v", sess)
	}

	summary, err = o.FinishSession(ctx, id)
	if err != nil || !strings.HasPrefix(summary, "Summary 2") {
		t.Fatalf("refinish = %q, %v", summary, err)
	}
	finished, err := o.ListFinished(ctx, 0)
	if err != nil || len(finished) != 1 || finished[0].ID != id {
		t.Errorf("ListFinished = %+v, %v", finished, err)
	}
}

func TestAddQuestionRejectsBlank(t *testing.T) {
	gen := &fakeGenerator{reply: func(task, body string) (string, error) { return "", nil }}
	o, _, id := newTestOrchestrator(t, gen, &fakeEmbedder{}, Options{})
	if _, err := o.AddQuestion(context.Background(), id, "   "); err == nil {
		t.Error("expected error for blank question")
	}
}

func TestStripPrefix(t *testing.T) {
	tests := []struct{ in, want string }{
		{"key points discussed: - a", "- a"},
		{"Key Points Discussed:\n- a\n- b", "- a\n- b"},
		{"  - a  ", "- a"},
		{"key points", "key points"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := stripPrefix(tt.in, "key points discussed:"); got != tt.want {
			t.Errorf("stripPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQuestionIDUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{`12`, 12, false},
		{`"12"`, 12, false},
		{`" 7 "`, 7, false},
		{`1.5`, 0, true},
		{`"abc"`, 0, true},
		{`true`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var id questionID
			err := json.Unmarshal([]byte(tt.in), &id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && int64(id) != tt.want {
				t.Errorf("id = %d, want %d", id, tt.want)
			}
		})
	}
}
