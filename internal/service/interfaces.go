package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-grading/internal/model"
	"github.com/stemsi/exstem-grading/internal/repository"
)

// ExamCatalog resolves exam definitions with their questions.
//
// ExamActive reads the activation flag from the catalog's source of truth;
// unlike GetExam it is never served from a cache.
type ExamCatalog interface {
	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	ExamActive(ctx context.Context, examID uuid.UUID) (bool, error)
}

// ExamActivator toggles whether new attempts may start against an exam.
type ExamActivator interface {
	SetActive(ctx context.Context, examID uuid.UUID, active bool) error
}

// AttemptStore persists attempts. Implemented by repository.AttemptRepository
// and memory.Store.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, userID int, examID uuid.UUID, startedAt time.Time) (*model.Attempt, bool, error)
	GetAttempt(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetActive(ctx context.Context, userID int, examID uuid.UUID) (*model.Attempt, error)
	SaveAnswers(ctx context.Context, id uuid.UUID, answers model.Answers) (*model.Attempt, error)
	Finalize(ctx context.Context, f repository.Finalization) (*model.Attempt, *model.Result, error)
	ListInProgress(ctx context.Context, after repository.Cursor, startedBefore time.Time, limit int) ([]model.Attempt, error)
}

// ResultStore persists results. Implemented by repository.ResultRepository and
// memory.Store.
type ResultStore interface {
	GetResult(ctx context.Context, id uuid.UUID) (*model.Result, error)
	GetResultByAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Result, error)
	SetPublication(ctx context.Context, id uuid.UUID, published bool, actorID int, at time.Time) (*model.Result, error)
	ListResults(ctx context.Context, f model.ResultFilter) ([]model.Result, int64, error)
}

// AuditSink receives one event per administrative action.
type AuditSink interface {
	Record(ctx context.Context, e model.AuditEvent) error
}

// Notifier delivers user-facing alerts.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// EventPublisher broadcasts attempt lifecycle events to live monitors.
type EventPublisher interface {
	Publish(ctx context.Context, e model.AttemptEvent) error
}

// Locker hands out short-lived exclusive leases. ok is false when another
// holder has the lease.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, model.Notification) error { return nil }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, model.AttemptEvent) error { return nil }
