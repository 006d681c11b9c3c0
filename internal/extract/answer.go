package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// questionID accepts a question id written as a JSON number or as a
// numeric string, both of which generators produce.
type questionID int64

func (q *questionID) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		id, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return fmt.Errorf("question id %s: %w", n, err)
		}
		*q = questionID(id)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("question id must be a number or string, got %s", b)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("question id %q: %w", s, err)
	}
	*q = questionID(id)
	return nil
}
