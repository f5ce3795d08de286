package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-grading/internal/model"
)

// Finalization carries everything written when an attempt leaves IN_PROGRESS.
// The attempt moves straight to GRADED and its Result is created in the same
// transaction.
type Finalization struct {
	AttemptID       uuid.UUID
	ExpectedVersion int
	ResolvedAs      model.AttemptStatus
	ResolvedAt      time.Time
	Late            bool
	Answers         model.Answers
	Score           float64
	Passed          bool
}

// Cursor is a keyset position over (started_at, id).
type Cursor struct {
	StartedAt time.Time
	ID        uuid.UUID
}

// IsZero reports whether the cursor points at the beginning of the scan.
func (c Cursor) IsZero() bool {
	return c.StartedAt.IsZero() && c.ID == uuid.Nil
}

const attemptColumns = `id, user_id, exam_id, started_at, status, resolved_as, answers,
	submitted_at, auto_submitted_at, late, score, passed, graded_at, version`

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	var resolvedAs *string
	err := row.Scan(&a.ID, &a.UserID, &a.ExamID, &a.StartedAt, &a.Status, &resolvedAs, &a.Answers,
		&a.SubmittedAt, &a.AutoSubmittedAt, &a.Late, &a.Score, &a.Passed, &a.GradedAt, &a.Version)
	if err != nil {
		return nil, err
	}
	if resolvedAs != nil {
		a.ResolvedAs = model.AttemptStatus(*resolvedAs)
	}
	if a.Answers == nil {
		a.Answers = model.Answers{}
	}
	return a, nil
}

// CreateAttempt inserts a new IN_PROGRESS attempt unless one already exists for the
// (user, exam) pair. The partial unique index on in-progress attempts decides
// the winner; the loser reads the winner back. created is false when an
// existing attempt was returned.
func (r *AttemptRepository) CreateAttempt(ctx context.Context, userID int, examID uuid.UUID, startedAt time.Time) (*model.Attempt, bool, error) {
	for range 2 {
		a, err := scanAttempt(r.pool.QueryRow(ctx,
			`INSERT INTO attempts (user_id, exam_id, started_at, status, answers)
			 VALUES ($1, $2, $3, $4, '{}'::jsonb)
			 ON CONFLICT (user_id, exam_id) WHERE status = 'IN_PROGRESS' DO NOTHING
			 RETURNING `+attemptColumns,
			userID, examID, startedAt, model.AttemptStatusInProgress,
		))
		if err == nil {
			return a, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("insert attempt: %w", err)
		}

		existing, err := r.GetActive(ctx, userID, examID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
		// The conflicting attempt was resolved between the insert and the read.
	}
	return nil, false, ErrStatusConflict
}

// GetAttempt retrieves an attempt by ID.
func (r *AttemptRepository) GetAttempt(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// GetActive retrieves the IN_PROGRESS attempt for a user and exam.
func (r *AttemptRepository) GetActive(ctx context.Context, userID int, examID uuid.UUID) (*model.Attempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE user_id = $1 AND exam_id = $2 AND status = $3`,
		userID, examID, model.AttemptStatusInProgress))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// SaveAnswers merges answers into an in-progress attempt and bumps its version.
func (r *AttemptRepository) SaveAnswers(ctx context.Context, id uuid.UUID, answers model.Answers) (*model.Attempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET answers = answers || $2::jsonb, version = version + 1
		 WHERE id = $1 AND status = $3
		 RETURNING `+attemptColumns,
		id, answers, model.AttemptStatusInProgress))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return nil, r.classifyMiss(ctx, id)
}

// Finalize moves an in-progress attempt to GRADED and inserts its Result.
// The update only applies while the attempt is still IN_PROGRESS at the
// expected version.
func (r *AttemptRepository) Finalize(ctx context.Context, f Finalization) (*model.Attempt, *model.Result, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var submittedAt, autoSubmittedAt *time.Time
	if f.ResolvedAs == model.AttemptStatusAutoSubmitted {
		autoSubmittedAt = &f.ResolvedAt
	} else {
		submittedAt = &f.ResolvedAt
	}

	a, err := scanAttempt(tx.QueryRow(ctx,
		`UPDATE attempts
		 SET status = $3, resolved_as = $4, answers = $5,
		     submitted_at = $6, auto_submitted_at = $7, late = $8,
		     score = $9, passed = $10, graded_at = $11, version = version + 1
		 WHERE id = $1 AND version = $2 AND status = 'IN_PROGRESS'
		 RETURNING `+attemptColumns,
		f.AttemptID, f.ExpectedVersion, model.AttemptStatusGraded, f.ResolvedAs, f.Answers,
		submittedAt, autoSubmittedAt, f.Late, f.Score, f.Passed, f.ResolvedAt,
	))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("update attempt: %w", err)
		}
		return nil, nil, r.classifyMiss(ctx, f.AttemptID)
	}

	res := &model.Result{
		AttemptID: a.ID,
		UserID:    a.UserID,
		ExamID:    a.ExamID,
		Score:     f.Score,
		Passed:    f.Passed,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO results (attempt_id, user_id, exam_id, score, passed, is_published, created_at)
		 VALUES ($1, $2, $3, $4, $5, false, $6)
		 RETURNING id, created_at`,
		res.AttemptID, res.UserID, res.ExamID, res.Score, res.Passed, f.ResolvedAt,
	).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("insert result: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return a, res, nil
}

// classifyMiss explains why a conditional write on an attempt matched no rows.
func (r *AttemptRepository) classifyMiss(ctx context.Context, id uuid.UUID) error {
	var status model.AttemptStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM attempts WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return notFound(err)
	}
	if status != model.AttemptStatusInProgress {
		return ErrStatusConflict
	}
	return ErrVersionConflict
}

// ListInProgress returns up to limit IN_PROGRESS attempts started before
// startedBefore, ordered by (started_at, id) and positioned after the cursor.
func (r *AttemptRepository) ListInProgress(ctx context.Context, after Cursor, startedBefore time.Time, limit int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE status = $1
		   AND started_at < $2
		   AND (started_at, id) > ($3, $4)
		 ORDER BY started_at, id
		 LIMIT $5`,
		model.AttemptStatusInProgress, startedBefore, after.StartedAt, after.ID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}
