package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/obiente/interviewd/internal/store"
)

// Orchestrator is the extraction and session surface the API serves.
type Orchestrator interface {
	CreateSession(ctx context.Context, sess store.Session) (*store.Session, error)
	GetSession(ctx context.Context, id int64) (*store.Session, error)
	ListFinished(ctx context.Context, limit int) ([]store.Session, error)
	FinishSession(ctx context.Context, id int64) (string, error)
	UpdateLatestSummary(ctx context.Context, id int64, text string) error

	Keynotes(ctx context.Context, id int64) (store.Keynote, error)
	ListKeynotes(ctx context.Context, id int64) ([]store.Keynote, error)

	GenerateQuestions(ctx context.Context, id int64) ([]store.Question, error)
	ListQuestions(ctx context.Context, id int64) ([]store.Question, error)
	AddQuestion(ctx context.Context, id int64, text string) (store.Question, error)
	DismissQuestion(ctx context.Context, id, questionID int64) error
}

// NewRouter wires the health check, the transcription socket and the
// session API.
func NewRouter(o Orchestrator, transcribe http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
	// Streaming transcription WebSocket
	mux.HandleFunc("GET /ws/transcribe", transcribe)

	h := &handlers{o: o}
	mux.HandleFunc("POST /sessions", h.createSession)
	mux.HandleFunc("GET /sessions/finished", h.listFinished)
	mux.HandleFunc("GET /sessions/{id}", h.getSession)
	mux.HandleFunc("POST /sessions/{id}/finish", h.finishSession)
	mux.HandleFunc("PUT /sessions/{id}/summary", h.updateSummary)
	mux.HandleFunc("POST /sessions/{id}/keynotes", h.generateKeynotes)
	mux.HandleFunc("GET /sessions/{id}/keynotes", h.listKeynotes)
	mux.HandleFunc("POST /sessions/{id}/questions/generate", h.generateQuestions)
	mux.HandleFunc("GET /sessions/{id}/questions", h.listQuestions)
	mux.HandleFunc("POST /sessions/{id}/questions", h.addQuestion)
	mux.HandleFunc("PATCH /sessions/{id}/questions/{qid}/dismiss", h.dismissQuestion)
	return mux
}
