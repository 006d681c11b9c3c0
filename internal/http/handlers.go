package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/obiente/interviewd/internal/extract"
	"github.com/obiente/interviewd/internal/llm"
	"github.com/obiente/interviewd/internal/store"
)

type handlers struct {
	o Orchestrator
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var se *llm.StatusError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case llm.IsMalformed(err), errors.As(err, &se):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": detail})
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var sess store.Session
	if err := json.NewDecoder(r.Body).Decode(&sess); err != nil {
		badRequest(w, "invalid session body")
		return
	}
	created, err := h.o.CreateSession(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid session id")
		return
	}
	sess, err := h.o.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *handlers) listFinished(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	sessions, err := h.o.ListFinished(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *handlers) finishSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid session id")
		return
	}
	summary, err := h.o.FinishSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

func (h *handlers) updateSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid session id")
		return
	}
	var body struct {
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid summary body")
		return
	}
	if err := h.o.UpdateLatestSummary(r.Context(), id, body.Summary); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// generateKeynotes runs an incremental keynote pass. When nothing new has
// been transcribed it answers with the existing history instead.
func (h *handlers) generateKeynotes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid session id")
		return
	}
	k, err := h.o.Keynotes(r.Context(), id)
	if errors.Is(err, extract.ErrNothingNew) {
		history, err := h.o.ListKeynotes(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if history == nil {
			history = []store.Keynote{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"nothing_new": true, "keynotes": history})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, k)
}

func (h *handlers) listKeynotes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid session id")
		return
	}
	history, err := h.o.ListKeynotes(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if history == nil {
		history = []store.Keynote{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *handlers) generateQuestions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid session id")
		return
	}
	qs, err := h.o.GenerateQuestions(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeQuestions(w, qs)
}

func (h *handlers) listQuestions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid session id")
		return
	}
	qs, err := h.o.ListQuestions(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeQuestions(w, qs)
}

func writeQuestions(w http.ResponseWriter, qs []store.Question) {
	if qs == nil {
		qs = []store.Question{}
	}
	writeJSON(w, http.StatusOK, qs)
}

func (h *handlers) addQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid session id")
		return
	}
	var body struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Question) == "" {
		badRequest(w, "question required")
		return
	}
	q, err := h.o.AddQuestion(r.Context(), id, body.Question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (h *handlers) dismissQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid session id")
		return
	}
	qid, ok := pathID(r, "qid")
	if !ok {
		badRequest(w, "invalid question id")
		return
	}
	if err := h.o.DismissQuestion(r.Context(), id, qid); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
