package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-grading/internal/config"
	"github.com/stemsi/exstem-grading/internal/model"
	"github.com/stemsi/exstem-grading/internal/repository"
)

// CachedExamCatalog is a Redis read-through cache in front of the exam tables.
// Exam definitions do not change while attempts run against them, so entries
// live for a fixed TTL and are dropped explicitly on Refresh.
type CachedExamCatalog struct {
	source ExamCatalog
	rdb    *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedExamCatalog creates a new CachedExamCatalog.
func NewCachedExamCatalog(source ExamCatalog, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedExamCatalog {
	return &CachedExamCatalog{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		log:    log.With().Str("component", "exam_catalog").Logger(),
	}
}

// GetExam serves the definition from Redis, loading and caching it on a miss.
// Redis failures fall through to the source.
func (c *CachedExamCatalog) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	key := config.CacheKey.ExamDefinitionKey(examID.String())

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var exam model.Exam
		if err := json.Unmarshal(data, &exam); err == nil {
			return &exam, nil
		}
		c.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt cached exam, reloading")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Exam cache read failed")
	}

	exam, err := c.source.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(exam)
	if err != nil {
		return nil, fmt.Errorf("marshal exam: %w", err)
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Exam cache write failed")
	}
	return exam, nil
}

// ExamActive always asks the source; activation can change at any time.
func (c *CachedExamCatalog) ExamActive(ctx context.Context, examID uuid.UUID) (bool, error) {
	active, err := c.source.ExamActive(ctx, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, ErrExamNotFound
	}
	return active, err
}

// SetActive updates the flag at the source and drops the cached definition so
// readers see the new state.
func (c *CachedExamCatalog) SetActive(ctx context.Context, examID uuid.UUID, active bool) error {
	activator, ok := c.source.(ExamActivator)
	if !ok {
		return fmt.Errorf("exam source %T cannot change activation", c.source)
	}
	err := activator.SetActive(ctx, examID, active)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrExamNotFound
	}
	if err != nil {
		return fmt.Errorf("set exam active: %w", err)
	}
	if err := c.rdb.Del(ctx, config.CacheKey.ExamDefinitionKey(examID.String())).Err(); err != nil {
		c.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Exam cache invalidation failed")
	}
	c.log.Info().Str("exam_id", examID.String()).Bool("active", active).Msg("Exam activation changed")
	return nil
}

// Refresh drops the cached definition and loads it again from the source.
// An unknown exam reports ErrExamNotFound.
func (c *CachedExamCatalog) Refresh(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	if err := c.rdb.Del(ctx, config.CacheKey.ExamDefinitionKey(examID.String())).Err(); err != nil {
		return nil, fmt.Errorf("invalidate exam cache: %w", err)
	}
	exam, err := c.GetExam(ctx, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, err
	}
	c.log.Debug().
		Str("exam_id", examID.String()).
		Int("questions", len(exam.Questions)).
		Msg("Exam cache refreshed")
	return exam, nil
}
