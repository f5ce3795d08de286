package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-grading/internal/model"
)

// ExamRepository reads exam definitions and their questions from the catalog tables.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetExam retrieves an exam with its questions ordered by order_num.
func (r *ExamRepository) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, pass_score, is_active, created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.PassScore, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	questions, err := r.listQuestions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	e.Questions = questions
	return e, nil
}

func (r *ExamRepository) listQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_text, options, correct_option, points, order_num
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text, &q.Options, &q.CorrectAnswerIndex, &q.Points, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CreateExam inserts an exam and its questions in one transaction.
// IDs left as uuid.Nil are generated by the database.
func (r *ExamRepository) CreateExam(ctx context.Context, e *model.Exam) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO exams (id, title, duration_minutes, pass_score, is_active)
		 VALUES (COALESCE($1, gen_random_uuid()), $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		nilUUID(e.ID), e.Title, e.DurationMinutes, e.PassScore, e.IsActive,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range e.Questions {
		q := &e.Questions[i]
		q.ExamID = e.ID
		batch.Queue(
			`INSERT INTO questions (id, exam_id, question_text, options, correct_option, points, order_num)
			 VALUES (COALESCE($1, gen_random_uuid()), $2, $3, $4, $5, $6, $7)
			 RETURNING id`,
			nilUUID(q.ID), q.ExamID, q.Text, q.Options, q.CorrectAnswerIndex, q.EffectivePoints(), q.OrderNum,
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&q.ID)
		})
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}

	return tx.Commit(ctx)
}

// ExamActive reads only the activation flag.
func (r *ExamRepository) ExamActive(ctx context.Context, id uuid.UUID) (bool, error) {
	var active bool
	err := r.pool.QueryRow(ctx, `SELECT is_active FROM exams WHERE id = $1`, id).Scan(&active)
	if err != nil {
		return false, notFound(err)
	}
	return active, nil
}

// SetActive toggles whether new attempts may start against the exam.
func (r *ExamRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nilUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
