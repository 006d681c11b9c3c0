// Package dedup decides whether a piece of generated text is semantically
// new with respect to a corpus of previously stored texts, using embedding
// vectors and cosine similarity.
package dedup

import (
	"context"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultQuestionThreshold is the similarity at or above which two
// questions are considered the same question.
const DefaultQuestionThreshold = 0.92

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Normalize prepares text for embedding: NFKC normalization, control
// characters dropped and line breaks collapsed to single spaces.
func Normalize(text string) string {
	normed := norm.NFKC.String(text)
	normed = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		if unicode.IsControl(r) && r != '\t' {
			return -1
		}
		return r
	}, normed)
	return strings.TrimSpace(normed)
}

// Similarity returns the cosine similarity of a and b in [-1, 1].
// Mismatched lengths and zero vectors have similarity 0.
func Similarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// IsUnique reports whether candidate is strictly below threshold against
// every vector in corpus. Similarity equal to the threshold is a duplicate.
func IsUnique(candidate []float64, corpus [][]float64, threshold float64) bool {
	for _, v := range corpus {
		if Similarity(candidate, v) >= threshold {
			return false
		}
	}
	return true
}

// Candidate is a generated text together with its embedding.
type Candidate struct {
	Text      string
	Embedding []float64
}

// Filter embeds each text and keeps those unique against corpus and
// against candidates already kept in the same call. Texts are processed in
// order; the first embedding failure aborts the whole filter.
func Filter(ctx context.Context, e Embedder, texts []string, corpus [][]float64, threshold float64) ([]Candidate, error) {
	seen := make([][]float64, len(corpus), len(corpus)+len(texts))
	copy(seen, corpus)

	var kept []Candidate
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		vec, err := e.Embed(ctx, Normalize(text))
		if err != nil {
			return nil, err
		}
		if !IsUnique(vec, seen, threshold) {
			continue
		}
		seen = append(seen, vec)
		kept = append(kept, Candidate{Text: text, Embedding: vec})
	}
	return kept, nil
}
