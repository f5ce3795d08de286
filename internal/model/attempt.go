package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states.
type AttemptStatus string

const (
	AttemptStatusInProgress    AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted     AttemptStatus = "SUBMITTED"
	AttemptStatusAutoSubmitted AttemptStatus = "AUTO_SUBMITTED"
	AttemptStatusGraded        AttemptStatus = "GRADED"
)

// IsResolved reports whether the status is one of the two submission states
// that precede grading.
func (s AttemptStatus) IsResolved() bool {
	return s == AttemptStatusSubmitted || s == AttemptStatusAutoSubmitted
}

// Answers maps question ID to the chosen option index. Partial sheets are allowed.
type Answers map[uuid.UUID]int

// Clone returns an independent copy.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Attempt is one candidate's timed engagement with one exam.
type Attempt struct {
	ID        uuid.UUID     `json:"id"`
	UserID    int           `json:"user_id"`
	ExamID    uuid.UUID     `json:"exam_id"`
	StartedAt time.Time     `json:"started_at"`
	Status    AttemptStatus `json:"status"`
	// ResolvedAs records whether the attempt left IN_PROGRESS through a
	// candidate submission or an automatic one. Empty while in progress.
	ResolvedAs      AttemptStatus `json:"resolved_as,omitempty"`
	Answers         Answers       `json:"answers"`
	SubmittedAt     *time.Time    `json:"submitted_at,omitempty"`
	AutoSubmittedAt *time.Time    `json:"auto_submitted_at,omitempty"`
	Late            bool          `json:"late"`
	Score           *float64      `json:"score,omitempty"`
	Passed          *bool         `json:"passed,omitempty"`
	GradedAt        *time.Time    `json:"graded_at,omitempty"`
	Version         int           `json:"version"`
}

// Clone returns a deep copy so callers never share the answers map.
func (a *Attempt) Clone() *Attempt {
	c := *a
	c.Answers = a.Answers.Clone()
	return &c
}

// Redacted hides score and pass/fail from a candidate until the result is published.
func (a *Attempt) Redacted() *Attempt {
	c := a.Clone()
	c.Score = nil
	c.Passed = nil
	return c
}

// AttemptView is what a candidate sees when starting, resuming or polling an attempt.
type AttemptView struct {
	Attempt          *Attempt               `json:"attempt"`
	Resumed          bool                   `json:"resumed"`
	RemainingSeconds float64                `json:"remaining_seconds"`
	Deadline         time.Time              `json:"deadline"`
	Questions        []QuestionForCandidate `json:"questions,omitempty"`
	Result           *Result                `json:"result,omitempty"`
}

// SubmitAttemptRequest is the payload for submitting an attempt.
// Keys are question IDs, values are zero-based option indexes.
type SubmitAttemptRequest struct {
	Answers map[string]int `json:"answers" binding:"omitempty,dive,keys,uuid,endkeys,gte=0"`
}

// SaveAnswersRequest is the autosave payload; it is merged into stored answers.
type SaveAnswersRequest struct {
	Answers map[string]int `json:"answers" binding:"required,min=1,dive,keys,uuid,endkeys,gte=0"`
}
