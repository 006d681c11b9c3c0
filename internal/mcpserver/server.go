// Package mcpserver exposes the extraction operations as MCP tools so an
// assistant can drive a live interview over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/obiente/interviewd/internal/extract"
	"github.com/obiente/interviewd/internal/store"
)

// Orchestrator is the subset of extraction operations offered as tools.
type Orchestrator interface {
	Keynotes(ctx context.Context, id int64) (store.Keynote, error)
	ListKeynotes(ctx context.Context, id int64) ([]store.Keynote, error)
	GenerateQuestions(ctx context.Context, id int64) ([]store.Question, error)
	ListQuestions(ctx context.Context, id int64) ([]store.Question, error)
	DismissQuestion(ctx context.Context, id, questionID int64) error
	FinishSession(ctx context.Context, id int64) (string, error)
}

type tools struct {
	o Orchestrator
}

// New builds an MCP server with one tool per operation.
func New(o Orchestrator, version string) *server.MCPServer {
	s := server.NewMCPServer("interviewd", version, server.WithToolCapabilities(false))
	t := &tools{o: o}

	sessionArg := mcp.WithNumber("session_id", mcp.Required(), mcp.Description("Interview session id"))

	s.AddTool(mcp.NewTool("generate_keynotes",
		mcp.WithDescription("Summarize the transcript received since the last call into keynotes. Returns the keynote history when nothing new was said."),
		sessionArg,
	), t.generateKeynotes)
	s.AddTool(mcp.NewTool("generate_questions",
		mcp.WithDescription("Suggest new follow-up questions from the full transcript, mark the ones already answered, and return all questions."),
		sessionArg,
	), t.generateQuestions)
	s.AddTool(mcp.NewTool("list_questions",
		mcp.WithDescription("List the session's questions, unanswered and newest first."),
		sessionArg,
	), t.listQuestions)
	s.AddTool(mcp.NewTool("dismiss_question",
		mcp.WithDescription("Dismiss a question so it is never suggested or answered again."),
		sessionArg,
		mcp.WithNumber("question_id", mcp.Required(), mcp.Description("Question id")),
	), t.dismissQuestion)
	s.AddTool(mcp.NewTool("finish_session",
		mcp.WithDescription("Write the meeting summary and close the session."),
		sessionArg,
	), t.finishSession)
	return s
}

// ServeStdio runs the server on stdin/stdout until the input closes.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func requireID(req mcp.CallToolRequest, name string) (int64, error) {
	v, err := req.RequireFloat(name)
	if err != nil {
		return 0, err
	}
	if v <= 0 || v != float64(int64(v)) {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return int64(v), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError reports operation failures to the model instead of failing
// the protocol call.
func toolError(tool string, err error) (*mcp.CallToolResult, error) {
	if !errors.Is(err, store.ErrNotFound) {
		log.Error().Err(err).Str("tool", tool).Msg("mcp tool failed")
	}
	return mcp.NewToolResultError(err.Error()), nil
}

func (t *tools) generateKeynotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	k, err := t.o.Keynotes(ctx, id)
	if errors.Is(err, extract.ErrNothingNew) {
		history, err := t.o.ListKeynotes(ctx, id)
		if err != nil {
			return toolError("generate_keynotes", err)
		}
		return jsonResult(map[string]any{"nothing_new": true, "keynotes": history})
	}
	if err != nil {
		return toolError("generate_keynotes", err)
	}
	return jsonResult(k)
}

func (t *tools) generateQuestions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	qs, err := t.o.GenerateQuestions(ctx, id)
	if err != nil {
		return toolError("generate_questions", err)
	}
	return jsonResult(nonNil(qs))
}

func (t *tools) listQuestions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	qs, err := t.o.ListQuestions(ctx, id)
	if err != nil {
		return toolError("list_questions", err)
	}
	return jsonResult(nonNil(qs))
}

func (t *tools) dismissQuestion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	qid, err := requireID(req, "question_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.o.DismissQuestion(ctx, id, qid); err != nil {
		return toolError("dismiss_question", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("question %d dismissed", qid)), nil
}

func (t *tools) finishSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	summary, err := t.o.FinishSession(ctx, id)
	if err != nil {
		return toolError("finish_session", err)
	}
	return jsonResult(map[string]any{"summary": summary})
}

func nonNil(qs []store.Question) []store.Question {
	if qs == nil {
		return []store.Question{}
	}
	return qs
}
