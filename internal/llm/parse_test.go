package llm

import "testing"

func TestStripFences(t *testing.T) {
	in := "```json\n{\"a\": \"b\"}\n```"
	if got := StripFences(in); got != `{"a": "b"}` {
		t.Errorf("StripFences = %q", got)
	}
}

func TestParseJSON(t *testing.T) {
	type entry struct {
		ID     int    `json:"id"`
		Answer string `json:"answer"`
	}

	got, err := ParseJSON[[]entry]("```json\n[{\"id\": 3, \"answer\": \"yes\"}]\n```")
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if len(got) != 1 || got[0].ID != 3 || got[0].Answer != "yes" {
		t.Errorf("got %+v", got)
	}

	for _, raw := range []string{"", "not json", `[{"id": 1}] trailing`, `{"id": 1}`} {
		_, err := ParseJSON[[]entry](raw)
		if !IsMalformed(err) {
			t.Errorf("ParseJSON(%q) err = %v, want MalformedError", raw, err)
			continue
		}
		me := err.(*MalformedError)
		if me.Raw != raw {
			t.Errorf("Raw = %q, want %q", me.Raw, raw)
		}
	}
}

func TestParseStringValues(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"object keeps order", `{"q2": "second?", "q1": "first?", "q10": "third?"}`, []string{"second?", "first?", "third?"}},
		{"array", `["a?", "b?"]`, []string{"a?", "b?"}},
		{"fenced", "```\n{\"1\": \"x\"}\n```", []string{"x"}},
		{"empty object", `{}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStringValues(tt.raw)
			if err != nil {
				t.Fatalf("ParseStringValues: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %q, want %q", got, tt.want)
				}
			}
		})
	}

	for _, raw := range []string{"Here are questions: 1. x", `"just a string"`, `{"a": 1}`, `{"a": "b"} {}`, `{"a": "b"`} {
		if _, err := ParseStringValues(raw); !IsMalformed(err) {
			t.Errorf("ParseStringValues(%q) err = %v, want MalformedError", raw, err)
		}
	}
}
