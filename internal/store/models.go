package store

import "time"

// Session is a scheduled interview.
type Session struct {
	ID                   int64      `json:"id"`
	Name                 string     `json:"name"`
	Title                string     `json:"title"`
	CompanyName          string     `json:"company_name"`
	CompanyWebsite       string     `json:"company_website"`
	CompanyDescription   string     `json:"company_description"`
	JobDescription       string     `json:"job_description"`
	InterviewDescription string     `json:"interview_description"`
	Date                 string     `json:"date"`
	StartTime            string     `json:"start_time"`
	Finished             bool       `json:"finished"`
	FinishedAt           *time.Time `json:"finished_at,omitempty"`
	Summary              string     `json:"summary"`
	LatestSummary        string     `json:"latest_summary"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Question validity values.
const (
	QuestionDismissed = 0
	QuestionValid     = 1
)

// Question is a candidate interview question.
type Question struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"-"`
	Text      string    `json:"question"`
	Embedding []float64 `json:"-"`
	Answered  bool      `json:"answered"`
	Answer    string    `json:"answer"`
	Valid     int       `json:"valid"`
}

// Keynote is one keynote extraction result.
type Keynote struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"-"`
	Text      string    `json:"keynotes"`
	Embedding []float64 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Answer is a reconciliation result for a single question id.
type Answer struct {
	QuestionID int64
	Answered   bool
	Text       string
}
