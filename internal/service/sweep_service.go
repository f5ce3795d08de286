package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-grading/internal/config"
	"github.com/stemsi/exstem-grading/internal/model"
	"github.com/stemsi/exstem-grading/internal/repository"
	"github.com/stemsi/exstem-grading/internal/timepolicy"
)

// SweepReport summarizes one expiry sweep run.
type SweepReport struct {
	Scanned  int           `json:"scanned"`
	Resolved int           `json:"resolved"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Partial  bool          `json:"partial"`
	Elapsed  time.Duration `json:"elapsed"`
}

// SweepService force-submits abandoned attempts whose window has closed.
type SweepService struct {
	attempts AttemptStore
	resolver *AttemptService
	locker   Locker
	opts     options
	log      zerolog.Logger
}

// NewSweepService creates a new SweepService. Exams are resolved through the
// attempt service's catalog. locker may be nil, in which case
// concurrent runs rely on the attempt status guard alone.
func NewSweepService(
	attempts AttemptStore,
	resolver *AttemptService,
	locker Locker,
	log zerolog.Logger,
	opts ...Option,
) *SweepService {
	return &SweepService{
		attempts: attempts,
		resolver: resolver,
		locker:   locker,
		opts:     buildOptions(opts),
		log:      log.With().Str("component", "sweep_service").Logger(),
	}
}

// RunExpirySweep scans in-progress attempts oldest first and force-submits the
// ones past the sweep buffer. A run stops at its time box and the next run
// picks up where it left off, since resolved attempts drop out of the scan.
// Attempts whose exam is gone are logged and skipped.
func (s *SweepService) RunExpirySweep(ctx context.Context) (report SweepReport, err error) {
	began := time.Now()
	defer func() { report.Elapsed = time.Since(began) }()

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, config.CacheKey.SweepLockKey(), s.opts.timeBox+10*time.Second)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Msg("Sweep lock unavailable, sweeping without it")
		case !ok:
			return report, ErrSweepInProgress
		default:
			defer release()
		}
	}

	now := s.opts.now()
	stopAt := began.Add(s.opts.timeBox)
	startedBefore := now.Add(-timepolicy.SweepBuffer)

	exams := make(map[uuid.UUID]*model.Exam)
	orphaned := make(map[uuid.UUID]bool)

	var cursor repository.Cursor
	for {
		if ctx.Err() != nil || time.Now().After(stopAt) {
			report.Partial = true
			break
		}

		page, err := s.attempts.ListInProgress(ctx, cursor, startedBefore, s.opts.batchSize)
		if err != nil {
			return report, fmt.Errorf("list in-progress attempts: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			a := &page[i]
			report.Scanned++

			exam, err := s.examFor(ctx, a.ExamID, exams, orphaned)
			if err != nil {
				if errors.Is(err, ErrExamNotFound) {
					s.log.Warn().
						Str("attempt_id", a.ID.String()).
						Str("exam_id", a.ExamID.String()).
						Msg("Skipping attempt with missing exam")
					report.Skipped++
				} else {
					s.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Failed to load exam for sweep")
					report.Failed++
				}
				continue
			}

			if !timepolicy.IsExpired(a.StartedAt, exam.DurationMinutes, timepolicy.SweepBuffer, now) {
				continue
			}

			_, err = s.resolver.resolve(ctx, resolveRequest{
				attemptID: a.ID,
				exam:      exam,
				forced:    true,
				trigger:   TriggerSweep,
			})
			switch {
			case err == nil:
				report.Resolved++
			case errors.Is(err, ErrAttemptAlreadySubmitted):
				s.log.Debug().Str("attempt_id", a.ID.String()).Msg("Attempt resolved concurrently")
			default:
				s.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Failed to force-submit expired attempt")
				report.Failed++
			}
		}

		last := page[len(page)-1]
		cursor = repository.Cursor{StartedAt: last.StartedAt, ID: last.ID}
		if len(page) < s.opts.batchSize {
			break
		}
	}

	s.log.Info().
		Int("scanned", report.Scanned).
		Int("resolved", report.Resolved).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Bool("partial", report.Partial).
		Msg("Expiry sweep finished")
	return report, nil
}

func (s *SweepService) examFor(ctx context.Context, id uuid.UUID, cache map[uuid.UUID]*model.Exam, orphaned map[uuid.UUID]bool) (*model.Exam, error) {
	if e, ok := cache[id]; ok {
		return e, nil
	}
	if orphaned[id] {
		return nil, ErrExamNotFound
	}
	e, err := s.resolver.loadExam(ctx, id)
	if err != nil {
		if errors.Is(err, ErrExamNotFound) {
			orphaned[id] = true
		}
		return nil, err
	}
	cache[id] = e
	return e, nil
}
