package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MalformedError reports generation output that does not have the
// expected structured shape. Raw holds the text that failed to parse.
type MalformedError struct {
	Raw string
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed generation output: %v", e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// IsMalformed reports whether err is, or wraps, a *MalformedError.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}

// StripFences drops markdown code-fence lines so a fenced JSON block
// parses as plain JSON.
func StripFences(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// ParseJSON decodes raw generation output into T after stripping code
// fences. Anything that is not exactly one JSON value of the right shape
// yields a *MalformedError.
func ParseJSON[T any](raw string) (T, error) {
	var v T
	dec := json.NewDecoder(strings.NewReader(StripFences(raw)))
	if err := dec.Decode(&v); err != nil {
		return v, &MalformedError{Raw: raw, Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return v, &MalformedError{Raw: raw, Err: errors.New("trailing data after JSON value")}
	}
	return v, nil
}

// ParseStringValues decodes a JSON object of string values, or a JSON
// array of strings, returning the strings in document order.
func ParseStringValues(raw string) ([]string, error) {
	body := StripFences(raw)
	dec := json.NewDecoder(strings.NewReader(body))

	tok, err := dec.Token()
	if err != nil {
		return nil, &MalformedError{Raw: raw, Err: err}
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '{' && delim != '[') {
		return nil, &MalformedError{Raw: raw, Err: fmt.Errorf("expected object or array, got %v", tok)}
	}

	var out []string
	for dec.More() {
		if delim == '{' {
			if _, err := dec.Token(); err != nil {
				return nil, &MalformedError{Raw: raw, Err: err}
			}
		}
		var s string
		if err := dec.Decode(&s); err != nil {
			return nil, &MalformedError{Raw: raw, Err: err}
		}
		out = append(out, s)
	}
	if _, err := dec.Token(); err != nil {
		return nil, &MalformedError{Raw: raw, Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &MalformedError{Raw: raw, Err: errors.New("trailing data after JSON value")}
	}
	return out, nil
}
