// Package grading scores an attempt's answer sheet against an exam definition.
//
// Grade is the only place score arithmetic lives. The candidate submit path,
// the resume path and the expiry sweep all call it.
package grading

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-grading/internal/model"
)

// ScorePrecision is the number of decimal places kept in a stored score.
const ScorePrecision = 2

var (
	// ErrNotResolved means grading was requested for an attempt that has not
	// been submitted. The state machine never does this.
	ErrNotResolved = errors.New("attempt is not in a submitted state")

	ErrUnknownQuestion  = errors.New("question does not belong to exam")
	ErrOptionOutOfRange = errors.New("option index out of range")
	hundred             = decimal.NewFromInt(100)
)

// Outcome is the result of grading one attempt. Score is rounded for display;
// Passed is decided on the unrounded ratio, so a Score equal to the pass score
// can still carry Passed=false (2 of 3 against 66.67 gives 66.67, failed).
type Outcome struct {
	Score        float64 `json:"score"`
	Passed       bool    `json:"passed"`
	EarnedPoints int     `json:"earned_points"`
	TotalPoints  int     `json:"total_points"`
	Correct      int     `json:"correct"`
	Answered     int     `json:"answered"`
}

// Grade computes score and pass/fail. It performs no I/O and returns the same
// Outcome for the same inputs.
//
// score = earned / total * 100, rounded to ScorePrecision places.
// passed compares the exact ratio with the exam's pass score, so rounding never
// flips a borderline result. An exam with no points always fails.
func Grade(exam *model.Exam, attempt *model.Attempt) (Outcome, error) {
	if !attempt.Status.IsResolved() {
		return Outcome{}, fmt.Errorf("%w: attempt %s is %s", ErrNotResolved, attempt.ID, attempt.Status)
	}

	var out Outcome
	for i := range exam.Questions {
		q := &exam.Questions[i]
		points := q.EffectivePoints()
		out.TotalPoints += points

		chosen, ok := attempt.Answers[q.ID]
		if !ok {
			continue
		}
		out.Answered++
		if chosen == q.CorrectAnswerIndex {
			out.EarnedPoints += points
			out.Correct++
		}
	}

	if out.TotalPoints == 0 {
		return out, nil
	}

	earned := decimal.NewFromInt(int64(out.EarnedPoints))
	total := decimal.NewFromInt(int64(out.TotalPoints))

	out.Score = earned.Mul(hundred).Div(total).Round(ScorePrecision).InexactFloat64()
	out.Passed = earned.Mul(hundred).GreaterThanOrEqual(decimal.NewFromFloat(exam.PassScore).Mul(total))

	return out, nil
}

// CheckAnswers verifies that every answered question belongs to the exam and
// every chosen index addresses an existing option.
func CheckAnswers(exam *model.Exam, answers model.Answers) error {
	for qID, idx := range answers {
		q, ok := exam.Question(qID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownQuestion, qID)
		}
		if idx < 0 || idx >= len(q.Options) {
			return fmt.Errorf("%w: question %s has %d options, got %d", ErrOptionOutOfRange, qID, len(q.Options), idx)
		}
	}
	return nil
}

// ParseAnswers converts a wire answer sheet keyed by question ID strings.
func ParseAnswers(raw map[string]int) (model.Answers, error) {
	out := make(model.Answers, len(raw))
	for k, v := range raw {
		id, err := uuid.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownQuestion, k)
		}
		out[id] = v
	}
	return out, nil
}
