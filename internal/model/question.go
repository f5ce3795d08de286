package model

import (
	"github.com/google/uuid"
)

// DefaultQuestionPoints applies when a question has no explicit point value.
const DefaultQuestionPoints = 1

// Question represents a single multiple-choice exam question.
type Question struct {
	ID                 uuid.UUID `json:"id"`
	ExamID             uuid.UUID `json:"exam_id"`
	Text               string    `json:"text"`
	Options            []string  `json:"options"`
	CorrectAnswerIndex int       `json:"correct_answer_index"`
	Points             int       `json:"points"`
	OrderNum           int       `json:"order_num"`
}

// EffectivePoints returns the point value used for grading.
func (q *Question) EffectivePoints() int {
	if q.Points < 1 {
		return DefaultQuestionPoints
	}
	return q.Points
}

// QuestionForCandidate is a question without the correct answer.
type QuestionForCandidate struct {
	ID       uuid.UUID `json:"id"`
	Text     string    `json:"text"`
	Options  []string  `json:"options"`
	Points   int       `json:"points"`
	OrderNum int       `json:"order_num"`
}

// ForCandidate strips the answer key.
func (q *Question) ForCandidate() QuestionForCandidate {
	return QuestionForCandidate{
		ID:       q.ID,
		Text:     q.Text,
		Options:  q.Options,
		Points:   q.EffectivePoints(),
		OrderNum: q.OrderNum,
	}
}
