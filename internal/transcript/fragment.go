// Package transcript defines the transcript fragment that flows from the
// speech provider through the relay into the store.
package transcript

import (
	"strings"
	"unicode/utf8"
)

// NoChannel is the channel value the relay stamps on every fragment.
const NoChannel = -1

// Fragment is one decoded utterance with timing and speaker metadata.
// The JSON shape is what relay clients receive, one object per fragment.
type Fragment struct {
	ID         int64   `json:"-"`
	SessionID  int64   `json:"-"`
	Start      float64 `json:"start"`
	Duration   float64 `json:"duration"`
	Text       string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Speaker    int     `json:"speaker"`
	Channel    int     `json:"channel"`
	Consumed   bool    `json:"-"`
}

// Accept reports whether a decoded utterance carries real speech.
// Providers emit empty or single-character placeholder events which must
// never be forwarded or persisted. Length is counted in characters.
func Accept(text string) bool {
	return utf8.RuneCountInString(text) > 1
}

// Join concatenates fragment texts in order, one per line.
func Join(frags []Fragment) string {
	parts := make([]string, 0, len(frags))
	for _, f := range frags {
		parts = append(parts, f.Text)
	}
	return strings.Join(parts, "\n")
}
