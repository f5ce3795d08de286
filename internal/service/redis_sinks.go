package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-grading/internal/config"
	"github.com/stemsi/exstem-grading/internal/model"
)

// RedisAuditSink queues audit events for the audit worker.
type RedisAuditSink struct {
	rdb *redis.Client
}

// NewRedisAuditSink creates a new RedisAuditSink.
func NewRedisAuditSink(rdb *redis.Client) *RedisAuditSink {
	return &RedisAuditSink{rdb: rdb}
}

// Record pushes the event onto the audit queue.
func (s *RedisAuditSink) Record(ctx context.Context, e model.AuditEvent) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.rdb.RPush(ctx, config.WorkerKey.PersistAuditQueue, raw).Err()
}

// RedisNotifier queues notifications for the notification worker.
type RedisNotifier struct {
	rdb *redis.Client
}

// NewRedisNotifier creates a new RedisNotifier.
func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

// Notify pushes the notification onto the notification queue.
func (n *RedisNotifier) Notify(ctx context.Context, note model.Notification) error {
	raw, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return n.rdb.RPush(ctx, config.WorkerKey.PersistNotificationQueue, raw).Err()
}

// RedisEventPublisher fans attempt events out on the exam's monitor channel.
type RedisEventPublisher struct {
	rdb *redis.Client
}

// NewRedisEventPublisher creates a new RedisEventPublisher.
func NewRedisEventPublisher(rdb *redis.Client) *RedisEventPublisher {
	return &RedisEventPublisher{rdb: rdb}
}

// Publish sends the event to live monitors of its exam.
func (p *RedisEventPublisher) Publish(ctx context.Context, e model.AttemptEvent) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal attempt event: %w", err)
	}
	return p.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(e.ExamID.String()), raw).Err()
}

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX and an owner token.
type RedisLocker struct {
	rdb *redis.Client
}

// NewRedisLocker creates a new RedisLocker.
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

// TryLock takes the lease if it is free.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
	}
	return release, true, nil
}
