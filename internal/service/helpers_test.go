package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-grading/internal/model"
	"github.com/stemsi/exstem-grading/internal/repository"
	"github.com/stemsi/exstem-grading/internal/repository/memory"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

var testLog = zerolog.New(io.Discard)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.AttemptEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e model.AttemptEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []model.AttemptEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.AttemptEventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []model.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

// storeAuditSink writes audit events straight into the memory store.
type storeAuditSink struct {
	store *memory.Store
}

func (s storeAuditSink) Record(ctx context.Context, e model.AuditEvent) error {
	return s.store.InsertAuditEvents(ctx, []model.AuditEvent{e})
}

type fixture struct {
	store    *memory.Store
	clock    *fakeClock
	events   *recordingPublisher
	notes    *recordingNotifier
	exam     *model.Exam
	attempts *AttemptService
	results  *ResultService
}

// newFixture builds an active 30 minute exam with ten one-point questions and
// a pass score of 60.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.New(),
		clock:  newClock(),
		events: &recordingPublisher{},
		notes:  &recordingNotifier{},
	}
	f.exam = f.addExam(t, 10, true)

	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.attempts = NewAttemptService(f.store, f.store, f.events, f.notes, testLog, opts...)
	f.results = NewResultService(f.store, storeAuditSink{store: f.store}, testLog, opts...)
	return f
}

func (f *fixture) addExam(t *testing.T, questions int, active bool) *model.Exam {
	t.Helper()
	exam := &model.Exam{
		Title:           "Matematika Dasar",
		DurationMinutes: 30,
		PassScore:       60,
		IsActive:        active,
	}
	for i := range questions {
		exam.Questions = append(exam.Questions, model.Question{
			Text:               "Soal",
			Options:            []string{"A", "B", "C", "D"},
			CorrectAnswerIndex: i % 4,
			Points:             1,
			OrderNum:           i + 1,
		})
	}
	if err := f.store.CreateExam(context.Background(), exam); err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	return exam
}

// sheet answers the first n questions correctly and the rest wrongly.
func sheet(exam *model.Exam, n int) model.Answers {
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

func (f *fixture) start(t *testing.T, userID int) *model.Attempt {
	t.Helper()
	v, err := f.attempts.Start(context.Background(), userID, f.exam.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return v.Attempt
}

func (f *fixture) inProgressCount(t *testing.T, userID int, examID uuid.UUID) int {
	t.Helper()
	all, err := f.store.ListInProgress(context.Background(), repository.Cursor{}, t0.Add(24*time.Hour), 1000)
	if err != nil {
		t.Fatalf("ListInProgress: %v", err)
	}
	n := 0
	for _, a := range all {
		if a.UserID == userID && a.ExamID == examID {
			n++
		}
	}
	return n
}
