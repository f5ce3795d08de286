package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultBatchSize    = 50
	DefaultBatchTimeout = 2 * time.Second
	DefaultPollTimeout  = 1 * time.Second
)

// queueBatcher drains a Redis list into batched writes. Items that still fail
// after the one-by-one fallback are pushed back onto the queue.
type queueBatcher[T any] struct {
	rdb     *redis.Client
	queue   string
	size    int
	timeout time.Duration
	poll    time.Duration
	flush   func(ctx context.Context, batch []T) error
	log     zerolog.Logger
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (b *queueBatcher[T]) run(ctx context.Context) {
	b.log.Info().Str("queue", b.queue).Msg("Worker started")

	batch := make([]T, 0, b.size)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= b.size || time.Since(lastFlush) >= b.timeout) {

			b.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			b.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			b.flushSafe(context.Background(), batch)
			return

		default:
			item, err := b.rdb.BLPop(ctx, b.poll, b.queue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					b.log.Error().Err(err).Msg("BLPop error")
					time.Sleep(b.poll)
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p T
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				b.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, p)
		}
	}
}

// drain flushes whatever is queued right now without blocking. Used by the
// CLI and tests. It pops at most the queue length seen on entry, so rows that
// keep failing and get requeued are left for the next run. It returns the
// number of rows persisted.
func (b *queueBatcher[T]) drain(ctx context.Context) (int, error) {
	remaining, err := b.rdb.LLen(ctx, b.queue).Result()
	if err != nil {
		return 0, err
	}

	total := 0
	for remaining > 0 {
		raw, err := b.rdb.LPopCount(ctx, b.queue, int(min(remaining, int64(b.size)))).Result()
		if errors.Is(err, redis.Nil) || (err == nil && len(raw) == 0) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		remaining -= int64(len(raw))

		batch := make([]T, 0, len(raw))
		for _, r := range raw {
			var p T
			if err := json.Unmarshal([]byte(r), &p); err != nil {
				b.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}
			batch = append(batch, p)
		}
		total += b.flushSafe(ctx, batch)
	}
	return total, nil
}

// ----------------------------------------------------------------
// Bulk write with single-item fallback
// ----------------------------------------------------------------

// flushSafe writes the batch and reports how many rows were persisted.
func (b *queueBatcher[T]) flushSafe(ctx context.Context, batch []T) int {
	if len(batch) == 0 {
		return 0
	}

	if err := b.flush(ctx, batch); err != nil {
		b.log.Warn().Err(err).Int("size", len(batch)).Msg("bulk write failed, using fallback")

		written := 0
		for _, p := range batch {
			if err := b.flush(ctx, []T{p}); err != nil {
				b.log.Error().Err(err).Msg("single write failed, requeueing")
				raw, _ := json.Marshal(p)
				b.rdb.RPush(ctx, b.queue, raw)
				continue
			}
			written++
		}
		return written
	}

	b.log.Debug().Int("size", len(batch)).Msg("Batch persisted")
	return len(batch)
}
