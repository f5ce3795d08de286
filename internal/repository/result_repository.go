package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-grading/internal/model"
)

const resultColumns = `id, attempt_id, user_id, exam_id, score, passed,
	is_published, published_by, published_at, created_at`

// ResultRepository handles result data access. Results are inserted by
// AttemptRepository.Finalize; only publication flags change afterwards.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

func scanResult(row pgx.Row) (*model.Result, error) {
	res := &model.Result{}
	err := row.Scan(&res.ID, &res.AttemptID, &res.UserID, &res.ExamID, &res.Score, &res.Passed,
		&res.IsPublished, &res.PublishedBy, &res.PublishedAt, &res.CreatedAt)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetResult retrieves a result by ID.
func (r *ResultRepository) GetResult(ctx context.Context, id uuid.UUID) (*model.Result, error) {
	res, err := scanResult(r.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM results WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return res, nil
}

// GetResultByAttempt retrieves the result of a graded attempt.
func (r *ResultRepository) GetResultByAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Result, error) {
	res, err := scanResult(r.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM results WHERE attempt_id = $1`, attemptID))
	if err != nil {
		return nil, notFound(err)
	}
	return res, nil
}

// SetPublication publishes or unpublishes a result. Publishing stamps the actor
// and time; unpublishing only clears the flag so the last publication stays on
// record.
func (r *ResultRepository) SetPublication(ctx context.Context, id uuid.UUID, published bool, actorID int, at time.Time) (*model.Result, error) {
	var row pgx.Row
	if published {
		row = r.pool.QueryRow(ctx,
			`UPDATE results
			 SET is_published = true, published_by = $2, published_at = $3
			 WHERE id = $1
			 RETURNING `+resultColumns, id, actorID, at)
	} else {
		row = r.pool.QueryRow(ctx,
			`UPDATE results SET is_published = false
			 WHERE id = $1
			 RETURNING `+resultColumns, id)
	}

	res, err := scanResult(row)
	if err != nil {
		return nil, notFound(err)
	}
	return res, nil
}

// ListResults retrieves results matching the filter, newest first, with the total
// count before pagination.
func (r *ResultRepository) ListResults(ctx context.Context, f model.ResultFilter) ([]model.Result, int64, error) {
	baseQuery := ` FROM results WHERE 1=1`
	var args []any

	if f.UserID != nil {
		args = append(args, *f.UserID)
		baseQuery += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if f.ExamID != nil {
		args = append(args, *f.ExamID)
		baseQuery += fmt.Sprintf(" AND exam_id = $%d", len(args))
	}
	if f.Published != nil {
		args = append(args, *f.Published)
		baseQuery += fmt.Sprintf(" AND is_published = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*)"+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := f.Page, f.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = model.DefaultResultsPerPage
	}

	query := `SELECT ` + resultColumns + baseQuery +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []model.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, *res)
	}
	return results, total, rows.Err()
}
