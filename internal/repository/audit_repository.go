package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-grading/internal/model"
)

// AuditRepository persists audit events and candidate notifications in bulk.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// InsertAuditEvents writes a batch of audit events with a single UNNEST insert.
// Events already stored (same ID) are ignored so redelivery is harmless.
func (r *AuditRepository) InsertAuditEvents(ctx context.Context, events []model.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	n := len(events)
	ids := make([]uuid.UUID, n)
	actions := make([]string, n)
	actors := make([]int, n)
	resultIDs := make([]uuid.UUID, n)
	users := make([]int, n)
	examIDs := make([]uuid.UUID, n)
	scores := make([]float64, n)
	metadata := make([]string, n)
	occurred := make([]time.Time, n)

	for i, e := range events {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		ids[i] = e.ID
		actions[i] = string(e.Action)
		actors[i] = e.ActorID
		resultIDs[i] = e.ResultID
		users[i] = e.UserID
		examIDs[i] = e.ExamID
		scores[i] = e.Score
		metadata[i] = string(raw)
		occurred[i] = e.OccurredAt
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, action, actor_id, result_id, user_id, exam_id, score, metadata, occurred_at)
		SELECT u.id, u.action, u.actor_id, u.result_id, u.user_id, u.exam_id, u.score, u.metadata::jsonb, u.occurred_at
		FROM UNNEST(
			$1::uuid[],
			$2::text[],
			$3::int[],
			$4::uuid[],
			$5::int[],
			$6::uuid[],
			$7::float8[],
			$8::text[],
			$9::timestamptz[]
		) AS u (id, action, actor_id, result_id, user_id, exam_id, score, metadata, occurred_at)
		ON CONFLICT (id) DO NOTHING`,
		ids, actions, actors, resultIDs, users, examIDs, scores, metadata, occurred,
	)
	return err
}

// InsertNotifications writes a batch of notifications.
func (r *AuditRepository) InsertNotifications(ctx context.Context, notes []model.Notification) error {
	if len(notes) == 0 {
		return nil
	}

	n := len(notes)
	users := make([]int, n)
	kinds := make([]string, n)
	attemptIDs := make([]uuid.UUID, n)
	examIDs := make([]uuid.UUID, n)
	messages := make([]string, n)
	created := make([]time.Time, n)

	for i, note := range notes {
		users[i] = note.UserID
		kinds[i] = string(note.Kind)
		attemptIDs[i] = note.AttemptID
		examIDs[i] = note.ExamID
		messages[i] = note.Message
		created[i] = note.CreatedAt
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (user_id, kind, attempt_id, exam_id, message, created_at)
		SELECT u.user_id, u.kind, u.attempt_id, u.exam_id, u.message, u.created_at
		FROM UNNEST(
			$1::int[],
			$2::text[],
			$3::uuid[],
			$4::uuid[],
			$5::text[],
			$6::timestamptz[]
		) AS u (user_id, kind, attempt_id, exam_id, message, created_at)`,
		users, kinds, attemptIDs, examIDs, messages, created,
	)
	return err
}
