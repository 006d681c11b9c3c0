// Package llm talks to an OpenAI-compatible generation and embedding API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm http %d: %s", e.Code, e.Body)
}

// Client calls one OpenAI-compatible endpoint for chat and embeddings.
type Client struct {
	base           string
	apiKey         string
	model          string
	embeddingModel string
	http           *http.Client
}

// New returns a client for base; timeoutSec <= 0 means 60 seconds.
func New(base, apiKey, model, embeddingModel string, timeoutSec int) *Client {
	if timeoutSec <= 0 {
		timeoutSec = 60
	}
	return &Client{
		base:           strings.TrimRight(base, "/"),
		apiKey:         apiKey,
		model:          model,
		embeddingModel: embeddingModel,
		http:           &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

// Complete runs a chat completion and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	payload := map[string]any{
		"model":    c.model,
		"messages": messages,
	}
	var cr struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "/chat/completions", payload, &cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", errors.New("llm: completion returned no choices")
	}
	return cr.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for text. Line breaks are collapsed
// to spaces before the request.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	text = strings.ReplaceAll(text, "\n", " ")
	payload := map[string]any{
		"model": c.embeddingModel,
		"input": []string{text},
	}
	var er struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/embeddings", payload, &er); err != nil {
		return nil, err
	}
	if len(er.Data) == 0 || len(er.Data[0].Embedding) == 0 {
		return nil, errors.New("llm: embedding response was empty")
	}
	return er.Data[0].Embedding, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
