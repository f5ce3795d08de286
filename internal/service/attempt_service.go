package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-grading/internal/grading"
	"github.com/stemsi/exstem-grading/internal/model"
	"github.com/stemsi/exstem-grading/internal/repository"
	"github.com/stemsi/exstem-grading/internal/timepolicy"
)

// maxFinalizeTries bounds retries when an autosave lands between reading an
// attempt and finalizing it.
const maxFinalizeTries = 3

// systemActor marks calls made by the system rather than a candidate.
const systemActor = 0

// Trigger names why an attempt was resolved. It is logged and carried on events.
type Trigger string

const (
	TriggerSubmit   Trigger = "submit"
	TriggerResume   Trigger = "resume"
	TriggerAutosave Trigger = "autosave"
	TriggerSweep    Trigger = "sweep"
	TriggerManual   Trigger = "manual"
)

// AttemptService runs the attempt state machine:
// IN_PROGRESS -> SUBMITTED | AUTO_SUBMITTED -> GRADED.
type AttemptService struct {
	attempts AttemptStore
	exams    ExamCatalog
	events   EventPublisher
	notifier Notifier
	opts     options
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService. events and notifier may be nil.
func NewAttemptService(
	attempts AttemptStore,
	exams ExamCatalog,
	events EventPublisher,
	notifier Notifier,
	log zerolog.Logger,
	opts ...Option,
) *AttemptService {
	if events == nil {
		events = noopPublisher{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &AttemptService{
		attempts: attempts,
		exams:    exams,
		events:   events,
		notifier: notifier,
		opts:     buildOptions(opts),
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// Start begins an attempt or resumes the candidate's in-progress one. An
// in-progress attempt whose window has closed (resume buffer) is force-submitted
// with its stored answers and returned graded instead.
func (s *AttemptService) Start(ctx context.Context, userID int, examID uuid.UUID) (*model.AttemptView, error) {
	active, err := s.exams.ExamActive(ctx, examID)
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, ErrExamNotFound):
		return nil, ErrExamNotFound
	case err != nil:
		return nil, fmt.Errorf("check exam active: %w", err)
	case !active:
		return nil, ErrExamNotFound
	}

	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	now := s.opts.now()
	a, created, err := s.attempts.CreateAttempt(ctx, userID, examID, now)
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	if created {
		s.log.Info().
			Str("attempt_id", a.ID.String()).
			Str("exam_id", examID.String()).
			Int("user_id", userID).
			Msg("Attempt started")
		s.publish(ctx, a, model.AttemptEventStarted, now)
		return s.view(a, exam, false, now), nil
	}

	if !timepolicy.IsExpired(a.StartedAt, exam.DurationMinutes, timepolicy.ResumeBuffer, now) {
		return s.view(a, exam, true, now), nil
	}

	graded, err := s.resolve(ctx, resolveRequest{
		attemptID: a.ID,
		exam:      exam,
		forced:    true,
		trigger:   TriggerResume,
	})
	if errors.Is(err, ErrAttemptAlreadySubmitted) {
		// Resolved by a concurrent submit or sweep.
		graded, err = s.attempts.GetAttempt(ctx, a.ID)
	}
	if err != nil {
		return nil, err
	}
	return s.view(graded, exam, true, s.opts.now()), nil
}

// Submit replaces the attempt's answers with the supplied sheet, resolves it and
// grades it. A submission past the submit buffer is recorded as late.
func (s *AttemptService) Submit(ctx context.Context, userID int, attemptID uuid.UUID, answers model.Answers) (*model.Attempt, error) {
	if answers == nil {
		answers = model.Answers{}
	}
	return s.resolve(ctx, resolveRequest{
		attemptID: attemptID,
		userID:    userID,
		sheet:     answers,
		trigger:   TriggerSubmit,
	})
}

// ForceSubmit resolves an attempt with whatever answers are stored. The
// attempt is always recorded as late and auto-submitted.
func (s *AttemptService) ForceSubmit(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	return s.resolve(ctx, resolveRequest{
		attemptID: attemptID,
		forced:    true,
		trigger:   TriggerManual,
	})
}

// SaveAnswers merges a partial answer sheet into an in-progress attempt. Once the
// window has closed (submit buffer) the attempt is force-submitted instead and
// the graded attempt is returned. An attempt that is already resolved is
// returned as is.
func (s *AttemptService) SaveAnswers(ctx context.Context, userID int, attemptID uuid.UUID, answers model.Answers) (*model.Attempt, error) {
	a, err := s.getOwned(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusInProgress {
		return a, nil
	}

	exam, err := s.loadExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	now := s.opts.now()
	if timepolicy.IsExpired(a.StartedAt, exam.DurationMinutes, timepolicy.SubmitBuffer, now) {
		graded, err := s.resolve(ctx, resolveRequest{
			attemptID: a.ID,
			exam:      exam,
			forced:    true,
			trigger:   TriggerAutosave,
		})
		if errors.Is(err, ErrAttemptAlreadySubmitted) {
			return s.attempts.GetAttempt(ctx, a.ID)
		}
		return graded, err
	}

	if err := grading.CheckAnswers(exam, answers); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAnswer, err)
	}

	updated, err := s.attempts.SaveAnswers(ctx, a.ID, answers)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrStatusConflict):
		return s.attempts.GetAttempt(ctx, a.ID)
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrAttemptNotFound
	default:
		return nil, fmt.Errorf("save answers: %w", err)
	}

	s.publish(ctx, updated, model.AttemptEventAnswersSaved, now)
	return updated, nil
}

// GetAttempt returns the candidate's view of one of their attempts. It never
// changes state; an overdue attempt simply reports zero remaining time.
func (s *AttemptService) GetAttempt(ctx context.Context, userID int, attemptID uuid.UUID) (*model.AttemptView, error) {
	a, err := s.getOwned(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	exam, err := s.loadExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	return s.view(a, exam, false, s.opts.now()), nil
}

type resolveRequest struct {
	attemptID uuid.UUID
	// userID scopes the call to the attempt's owner; systemActor skips the check.
	userID int
	// exam is reused when the caller already loaded it.
	exam *model.Exam
	// sheet replaces stored answers. Ignored when forced.
	sheet   model.Answers
	forced  bool
	trigger Trigger
}

// resolve moves one attempt out of IN_PROGRESS and grades it in a single
// conditional write. It is the only path that produces a Result.
func (s *AttemptService) resolve(ctx context.Context, req resolveRequest) (*model.Attempt, error) {
	exam := req.exam

	for try := 1; ; try++ {
		a, err := s.getOwned(ctx, req.userID, req.attemptID)
		if err != nil {
			return nil, err
		}
		if a.Status != model.AttemptStatusInProgress {
			return nil, ErrAttemptAlreadySubmitted
		}

		if exam == nil {
			if exam, err = s.loadExam(ctx, a.ExamID); err != nil {
				return nil, err
			}
		}

		answers := a.Answers
		if !req.forced {
			if err := grading.CheckAnswers(exam, req.sheet); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidAnswer, err)
			}
			answers = req.sheet
		}

		now := s.opts.now()
		resolvedAs, late := model.AttemptStatusSubmitted, false
		if req.forced || timepolicy.IsExpired(a.StartedAt, exam.DurationMinutes, timepolicy.SubmitBuffer, now) {
			resolvedAs, late = model.AttemptStatusAutoSubmitted, true
		}

		pending := a.Clone()
		pending.Status = resolvedAs
		pending.Answers = answers
		pending.Late = late

		outcome, err := grading.Grade(exam, pending)
		if err != nil {
			s.log.Error().Err(err).
				Str("attempt_id", a.ID.String()).
				Str("status", string(pending.Status)).
				Str("trigger", string(req.trigger)).
				Msg("Grading refused attempt state")
			return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
		}

		graded, result, err := s.attempts.Finalize(ctx, repository.Finalization{
			AttemptID:       a.ID,
			ExpectedVersion: a.Version,
			ResolvedAs:      resolvedAs,
			ResolvedAt:      now,
			Late:            late,
			Answers:         answers,
			Score:           outcome.Score,
			Passed:          outcome.Passed,
		})
		switch {
		case err == nil:
			s.afterResolve(ctx, graded, result, outcome, req)
			return graded, nil
		case errors.Is(err, repository.ErrStatusConflict):
			return nil, ErrAttemptAlreadySubmitted
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrAttemptNotFound
		case errors.Is(err, repository.ErrVersionConflict) && try < maxFinalizeTries:
			s.log.Debug().Str("attempt_id", a.ID.String()).Int("try", try).Msg("Attempt changed during finalize, retrying")
			continue
		default:
			return nil, fmt.Errorf("finalize attempt: %w", err)
		}
	}
}

func (s *AttemptService) afterResolve(ctx context.Context, a *model.Attempt, res *model.Result, outcome grading.Outcome, req resolveRequest) {
	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("exam_id", a.ExamID.String()).
		Str("result_id", res.ID.String()).
		Int("user_id", a.UserID).
		Str("resolved_as", string(a.ResolvedAs)).
		Str("trigger", string(req.trigger)).
		Bool("late", a.Late).
		Float64("score", outcome.Score).
		Bool("passed", outcome.Passed).
		Msg("Attempt graded")

	eventType := model.AttemptEventSubmitted
	if a.ResolvedAs == model.AttemptStatusAutoSubmitted {
		eventType = model.AttemptEventAutoSubmitted
	}
	s.publish(ctx, a, eventType, *a.GradedAt)

	if !req.forced || !s.opts.notifyOnForced {
		return
	}
	note := model.Notification{
		UserID:    a.UserID,
		Kind:      model.NotificationAttemptAutoSubmitted,
		AttemptID: a.ID,
		ExamID:    a.ExamID,
		Message:   "Waktu ujian telah habis. Jawaban Anda telah dikumpulkan secara otomatis.",
		CreatedAt: *a.GradedAt,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Failed to notify candidate of forced submission")
	}
}

func (s *AttemptService) publish(ctx context.Context, a *model.Attempt, t model.AttemptEventType, at time.Time) {
	e := model.AttemptEvent{
		Type:      t,
		AttemptID: a.ID,
		UserID:    a.UserID,
		ExamID:    a.ExamID,
		Answered:  len(a.Answers),
		Score:     a.Score,
		Late:      a.Late,
		At:        at,
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Str("event", string(t)).Msg("Failed to publish attempt event")
	}
}

// getOwned loads an attempt; attempts of other users look missing.
func (s *AttemptService) getOwned(ctx context.Context, userID int, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if userID != systemActor && a.UserID != userID {
		return nil, ErrAttemptNotFound
	}
	return a, nil
}

func (s *AttemptService) loadExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

func (s *AttemptService) view(a *model.Attempt, exam *model.Exam, resumed bool, now time.Time) *model.AttemptView {
	v := &model.AttemptView{
		Attempt:  a,
		Resumed:  resumed,
		Deadline: timepolicy.Deadline(a.StartedAt, exam.DurationMinutes),
	}
	if a.Status != model.AttemptStatusInProgress {
		return v
	}
	v.RemainingSeconds = timepolicy.Remaining(a.StartedAt, exam.DurationMinutes, now).Seconds()
	v.Questions = make([]model.QuestionForCandidate, 0, len(exam.Questions))
	for i := range exam.Questions {
		v.Questions = append(v.Questions, exam.Questions[i].ForCandidate())
	}
	return v
}
