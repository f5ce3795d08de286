package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction names an administrative action recorded in the audit log.
type AuditAction string

const (
	AuditActionResultPublished   AuditAction = "result.published"
	AuditActionResultUnpublished AuditAction = "result.unpublished"
)

// AuditEvent is one append-only audit record.
type AuditEvent struct {
	ID         uuid.UUID      `json:"id"`
	Action     AuditAction    `json:"action"`
	ActorID    int            `json:"actor_id"`
	ResultID   uuid.UUID      `json:"result_id"`
	UserID     int            `json:"user_id"`
	ExamID     uuid.UUID      `json:"exam_id"`
	Score      float64        `json:"score"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NotificationKind classifies user-facing alerts.
type NotificationKind string

const (
	NotificationAttemptAutoSubmitted NotificationKind = "attempt.auto_submitted"
)

// Notification is a user-facing alert handed to the notification sink.
type Notification struct {
	UserID    int              `json:"user_id"`
	Kind      NotificationKind `json:"kind"`
	AttemptID uuid.UUID        `json:"attempt_id"`
	ExamID    uuid.UUID        `json:"exam_id"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}

// AttemptEventType enumerates live monitor events.
type AttemptEventType string

const (
	AttemptEventStarted       AttemptEventType = "started"
	AttemptEventAnswersSaved  AttemptEventType = "answers_saved"
	AttemptEventSubmitted     AttemptEventType = "submitted"
	AttemptEventAutoSubmitted AttemptEventType = "auto_submitted"
)

// AttemptEvent is published on the exam monitor channel.
type AttemptEvent struct {
	Type      AttemptEventType `json:"type"`
	AttemptID uuid.UUID        `json:"attempt_id"`
	UserID    int              `json:"user_id"`
	ExamID    uuid.UUID        `json:"exam_id"`
	Answered  int              `json:"answered"`
	Score     *float64         `json:"score,omitempty"`
	Late      bool             `json:"late"`
	At        time.Time        `json:"at"`
}
