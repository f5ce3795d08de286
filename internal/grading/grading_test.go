package grading

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-grading/internal/model"
)

func newExam(t *testing.T, passScore float64, points ...int) *model.Exam {
	t.Helper()
	exam := &model.Exam{
		ID:              uuid.New(),
		DurationMinutes: 30,
		PassScore:       passScore,
		IsActive:        true,
	}
	for i, p := range points {
		exam.Questions = append(exam.Questions, model.Question{
			ID:                 uuid.New(),
			ExamID:             exam.ID,
			Text:               "question",
			Options:            []string{"A", "B", "C", "D"},
			CorrectAnswerIndex: i % 4,
			Points:             p,
			OrderNum:           i + 1,
		})
	}
	return exam
}

func submitted(answers model.Answers) *model.Attempt {
	return &model.Attempt{
		ID:      uuid.New(),
		Status:  model.AttemptStatusSubmitted,
		Answers: answers,
	}
}

// answerFirst answers the first n questions correctly and the rest wrongly.
func answerFirst(exam *model.Exam, n int) model.Answers {
	answers := model.Answers{}
	for i, q := range exam.Questions {
		if i < n {
			answers[q.ID] = q.CorrectAnswerIndex
		} else {
			answers[q.ID] = (q.CorrectAnswerIndex + 1) % len(q.Options)
		}
	}
	return answers
}

func TestGrade_EightOfTenPasses(t *testing.T) {
	exam := newExam(t, 60, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1)

	got, err := Grade(exam, submitted(answerFirst(exam, 8)))
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if got.Score != 80.0 {
		t.Errorf("expected score 80, got %v", got.Score)
	}
	if !got.Passed {
		t.Error("expected passed")
	}
	if got.Correct != 8 || got.Answered != 10 || got.TotalPoints != 10 {
		t.Errorf("unexpected counts %+v", got)
	}
}

func TestGrade_Table(t *testing.T) {
	tests := []struct {
		name      string
		passScore float64
		points    []int
		correct   int
		score     float64
		passed    bool
	}{
		{name: "all wrong", passScore: 60, points: []int{1, 1, 1}, correct: 0, score: 0, passed: false},
		{name: "all right", passScore: 60, points: []int{1, 1, 1}, correct: 3, score: 100, passed: true},
		{name: "weighted first question", passScore: 50, points: []int{3, 1}, correct: 1, score: 75, passed: true},
		{name: "unset points default to one", passScore: 50, points: []int{0, 0}, correct: 1, score: 50, passed: true},
		{name: "one third rounds", passScore: 33.33, points: []int{1, 1, 1}, correct: 1, score: 33.33, passed: true},
		{name: "one third below threshold", passScore: 33.34, points: []int{1, 1, 1}, correct: 1, score: 33.33, passed: false},
		{name: "rounded score at threshold still fails", passScore: 66.67, points: []int{1, 1, 1}, correct: 2, score: 66.67, passed: false},
		{name: "exact threshold passes", passScore: 80, points: []int{1, 1, 1, 1, 1}, correct: 4, score: 80, passed: true},
		{name: "zero pass score always passes with points", passScore: 0, points: []int{1}, correct: 0, score: 0, passed: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exam := newExam(t, tc.passScore, tc.points...)
			got, err := Grade(exam, submitted(answerFirst(exam, tc.correct)))
			if err != nil {
				t.Fatalf("Grade: %v", err)
			}
			if got.Score != tc.score {
				t.Errorf("expected score %v, got %v", tc.score, got.Score)
			}
			if got.Passed != tc.passed {
				t.Errorf("expected passed=%v, got %v", tc.passed, got.Passed)
			}
		})
	}
}

func TestGrade_UnansweredEarnsNothing(t *testing.T) {
	exam := newExam(t, 50, 1, 1, 1, 1)
	answers := model.Answers{exam.Questions[0].ID: exam.Questions[0].CorrectAnswerIndex}

	got, err := Grade(exam, submitted(answers))
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if got.Score != 25 || got.Passed {
		t.Errorf("expected 25 and failed, got %+v", got)
	}
	if got.Answered != 1 {
		t.Errorf("expected 1 answered, got %d", got.Answered)
	}
}

func TestGrade_NoQuestionsFails(t *testing.T) {
	for _, pass := range []float64{0, 60} {
		exam := newExam(t, pass)
		got, err := Grade(exam, submitted(model.Answers{}))
		if err != nil {
			t.Fatalf("Grade: %v", err)
		}
		if got.Score != 0 || got.Passed {
			t.Errorf("pass score %v: expected 0 and failed, got %+v", pass, got)
		}
	}
}

func TestGrade_IsDeterministic(t *testing.T) {
	exam := newExam(t, 70, 2, 1, 3, 1, 1, 2)
	attempt := submitted(answerFirst(exam, 4))
	attempt.Status = model.AttemptStatusAutoSubmitted

	first, err := Grade(exam, attempt)
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Grade(exam, attempt)
		if err != nil {
			t.Fatalf("Grade: %v", err)
		}
		if again != first {
			t.Fatalf("run %d: %+v != %+v", i, again, first)
		}
	}
}

func TestGrade_RejectsUnresolvedAttempt(t *testing.T) {
	exam := newExam(t, 60, 1)
	for _, st := range []model.AttemptStatus{model.AttemptStatusInProgress, model.AttemptStatusGraded} {
		_, err := Grade(exam, &model.Attempt{ID: uuid.New(), Status: st})
		if !errors.Is(err, ErrNotResolved) {
			t.Errorf("status %s: expected ErrNotResolved, got %v", st, err)
		}
	}
}

func TestCheckAnswers(t *testing.T) {
	exam := newExam(t, 60, 1, 1)
	q := exam.Questions[0]

	if err := CheckAnswers(exam, model.Answers{q.ID: 3}); err != nil {
		t.Errorf("expected valid sheet, got %v", err)
	}
	if err := CheckAnswers(exam, model.Answers{q.ID: 4}); !errors.Is(err, ErrOptionOutOfRange) {
		t.Errorf("expected ErrOptionOutOfRange, got %v", err)
	}
	if err := CheckAnswers(exam, model.Answers{uuid.New(): 0}); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("expected ErrUnknownQuestion, got %v", err)
	}
}

func TestParseAnswers(t *testing.T) {
	id := uuid.New()
	got, err := ParseAnswers(map[string]int{id.String(): 2})
	if err != nil {
		t.Fatalf("ParseAnswers: %v", err)
	}
	if got[id] != 2 {
		t.Errorf("expected 2, got %v", got[id])
	}
	if _, err := ParseAnswers(map[string]int{"nope": 1}); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("expected ErrUnknownQuestion, got %v", err)
	}
}
