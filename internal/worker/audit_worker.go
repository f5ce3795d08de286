package worker

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-grading/internal/config"
	"github.com/stemsi/exstem-grading/internal/model"
)

// AuditWriter persists audit events.
type AuditWriter interface {
	InsertAuditEvents(ctx context.Context, events []model.AuditEvent) error
}

// NotificationWriter persists candidate notifications.
type NotificationWriter interface {
	InsertNotifications(ctx context.Context, notes []model.Notification) error
}

// AuditWorker consumes persist_audit_queue and writes audit_logs in batches.
type AuditWorker struct {
	batcher *queueBatcher[model.AuditEvent]
}

// NewAuditWorker creates a new AuditWorker.
func NewAuditWorker(w AuditWriter, rdb *redis.Client, log zerolog.Logger) *AuditWorker {
	return &AuditWorker{batcher: &queueBatcher[model.AuditEvent]{
		rdb:     rdb,
		queue:   config.WorkerKey.PersistAuditQueue,
		size:    DefaultBatchSize,
		timeout: DefaultBatchTimeout,
		poll:    DefaultPollTimeout,
		flush:   w.InsertAuditEvents,
		log:     log.With().Str("component", "audit_worker").Logger(),
	}}
}

// Start runs until ctx is cancelled. Call in a goroutine.
func (w *AuditWorker) Start(ctx context.Context) { w.batcher.run(ctx) }

// Drain persists everything currently queued and returns how many events were read.
func (w *AuditWorker) Drain(ctx context.Context) (int, error) { return w.batcher.drain(ctx) }

// NotificationWorker consumes persist_notification_queue.
type NotificationWorker struct {
	batcher *queueBatcher[model.Notification]
}

// NewNotificationWorker creates a new NotificationWorker.
func NewNotificationWorker(w NotificationWriter, rdb *redis.Client, log zerolog.Logger) *NotificationWorker {
	return &NotificationWorker{batcher: &queueBatcher[model.Notification]{
		rdb:     rdb,
		queue:   config.WorkerKey.PersistNotificationQueue,
		size:    DefaultBatchSize,
		timeout: DefaultBatchTimeout,
		poll:    DefaultPollTimeout,
		flush:   w.InsertNotifications,
		log:     log.With().Str("component", "notification_worker").Logger(),
	}}
}

// Start runs until ctx is cancelled. Call in a goroutine.
func (w *NotificationWorker) Start(ctx context.Context) { w.batcher.run(ctx) }

// Drain persists everything currently queued.
func (w *NotificationWorker) Drain(ctx context.Context) (int, error) { return w.batcher.drain(ctx) }
