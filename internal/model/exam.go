package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam is the catalog definition of an exam. It is read-only to the attempt
// lifecycle and must not change while attempts against it are in progress.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"duration_minutes"`
	PassScore       float64    `json:"pass_score"`
	IsActive        bool       `json:"is_active"`
	Questions       []Question `json:"questions"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Question looks up a question by ID.
func (e *Exam) Question(id uuid.UUID) (*Question, bool) {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i], true
		}
	}
	return nil, false
}
