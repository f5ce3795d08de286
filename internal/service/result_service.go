package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-grading/internal/model"
	"github.com/stemsi/exstem-grading/internal/repository"
)

// ResultService controls result visibility. Publication never touches score or
// pass/fail.
type ResultService struct {
	results ResultStore
	audit   AuditSink
	opts    options
	log     zerolog.Logger
}

// NewResultService creates a new ResultService.
func NewResultService(results ResultStore, audit AuditSink, log zerolog.Logger, opts ...Option) *ResultService {
	return &ResultService{
		results: results,
		audit:   audit,
		opts:    buildOptions(opts),
		log:     log.With().Str("component", "result_service").Logger(),
	}
}

// Publish makes a result visible to its candidate and records who did it.
func (s *ResultService) Publish(ctx context.Context, resultID uuid.UUID, actorID int) (*model.Result, error) {
	return s.setPublication(ctx, resultID, actorID, true)
}

// Unpublish hides a result again. The last publisher and publication time are
// kept on the record.
func (s *ResultService) Unpublish(ctx context.Context, resultID uuid.UUID, actorID int) (*model.Result, error) {
	return s.setPublication(ctx, resultID, actorID, false)
}

func (s *ResultService) setPublication(ctx context.Context, resultID uuid.UUID, actorID int, published bool) (*model.Result, error) {
	now := s.opts.now()
	res, err := s.results.SetPublication(ctx, resultID, published, actorID, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("set publication: %w", err)
	}

	action := model.AuditActionResultPublished
	if !published {
		action = model.AuditActionResultUnpublished
	}
	event := model.AuditEvent{
		ID:       uuid.New(),
		Action:   action,
		ActorID:  actorID,
		ResultID: res.ID,
		UserID:   res.UserID,
		ExamID:   res.ExamID,
		Score:    res.Score,
		Metadata: map[string]any{
			"attempt_id": res.AttemptID.String(),
			"passed":     res.Passed,
		},
		OccurredAt: now,
	}
	if err := s.audit.Record(ctx, event); err != nil {
		// The flag is already flipped. Failing here would invite a retry
		// that records the action twice.
		s.log.Error().Err(err).
			Str("result_id", res.ID.String()).
			Str("action", string(action)).
			Int("actor_id", actorID).
			Msg("Audit event lost")
	}

	s.log.Info().
		Str("result_id", res.ID.String()).
		Str("action", string(action)).
		Int("actor_id", actorID).
		Int("user_id", res.UserID).
		Msg("Result publication changed")
	return res, nil
}

// GetResults lists a candidate's published results, newest first.
func (s *ResultService) GetResults(ctx context.Context, userID, page, perPage int) ([]model.Result, int64, error) {
	published := true
	return s.list(ctx, model.ResultFilter{
		UserID:    &userID,
		Published: &published,
		Page:      page,
		PerPage:   perPage,
	})
}

// ListAll is the administrator listing. Publication state is not filtered
// unless the filter asks for it.
func (s *ResultService) ListAll(ctx context.Context, f model.ResultFilter) ([]model.Result, int64, error) {
	return s.list(ctx, f)
}

// PublishedForAttempt returns the result of a candidate's attempt only if it
// has been published.
func (s *ResultService) PublishedForAttempt(ctx context.Context, userID int, attemptID uuid.UUID) (*model.Result, error) {
	res, err := s.results.GetResultByAttempt(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	if res.UserID != userID || !res.IsPublished {
		return nil, ErrResultNotFound
	}
	return res, nil
}

// Get returns any result by ID for administrators.
func (s *ResultService) Get(ctx context.Context, resultID uuid.UUID) (*model.Result, error) {
	res, err := s.results.GetResult(ctx, resultID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	return res, nil
}

func (s *ResultService) list(ctx context.Context, f model.ResultFilter) ([]model.Result, int64, error) {
	f = f.Normalized()
	results, total, err := s.results.ListResults(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}
	if results == nil {
		results = []model.Result{}
	}
	return results, total, nil
}
