// Package app wires configuration into stores, services and workers. It is
// shared by the HTTP server and the examctl operator CLI.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-grading/internal/config"
	"github.com/stemsi/exstem-grading/internal/database"
	"github.com/stemsi/exstem-grading/internal/repository"
	"github.com/stemsi/exstem-grading/internal/repository/memory"
	"github.com/stemsi/exstem-grading/internal/service"
	"github.com/stemsi/exstem-grading/internal/worker"
)

// Stores bundles the persistence interfaces of one driver.
type Stores struct {
	Exams         service.ExamCatalog
	Attempts      service.AttemptStore
	Results       service.ResultStore
	Audit         worker.AuditWriter
	Notifications worker.NotificationWriter
}

// App is the fully wired application.
type App struct {
	Config *config.Config
	Log    zerolog.Logger
	Pool   *pgxpool.Pool // nil with the memory driver
	Redis  *redis.Client
	Stores Stores

	Auth     *service.AuthService
	Catalog  *service.CachedExamCatalog
	Attempts *service.AttemptService
	Results  *service.ResultService
	Sweep    *service.SweepService

	AuditWorker        *worker.AuditWorker
	NotificationWorker *worker.NotificationWorker
	SweepWorker        *worker.SweepWorker
}

// New connects to the configured stores and builds every service. Close
// releases the connections.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.Pool = pool
		audit := repository.NewAuditRepository(pool)
		a.Stores = Stores{
			Exams:         repository.NewExamRepository(pool),
			Attempts:      repository.NewAttemptRepository(pool),
			Results:       repository.NewResultRepository(pool),
			Audit:         audit,
			Notifications: audit,
		}
	case config.StoreDriverMemory:
		store := memory.New()
		a.Stores = Stores{
			Exams:         store,
			Attempts:      store,
			Results:       store,
			Audit:         store,
			Notifications: store,
		}
		log.Warn().Msg("Using in-memory store, data is lost on restart")
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.Redis = rdb

	a.build()
	return a, nil
}

// NewWithStores wires the application over existing stores and Redis client.
func NewWithStores(cfg *config.Config, log zerolog.Logger, stores Stores, rdb *redis.Client) *App {
	a := &App{Config: cfg, Log: log, Stores: stores, Redis: rdb}
	a.build()
	return a
}

func (a *App) build() {
	cfg, log := a.Config, a.Log
	opts := []service.Option{
		service.WithForcedSubmitNotification(cfg.NotifyOnForcedSubmit),
		service.WithSweepLimits(cfg.SweepBatchSize, cfg.SweepTimeBox),
	}

	a.Auth = service.NewAuthService(cfg.JWTSecret, cfg.JWTExpiry)
	a.Catalog = service.NewCachedExamCatalog(a.Stores.Exams, a.Redis, cfg.ExamCacheTTL, log)
	a.Attempts = service.NewAttemptService(
		a.Stores.Attempts,
		a.Catalog,
		service.NewRedisEventPublisher(a.Redis),
		service.NewRedisNotifier(a.Redis),
		log,
		opts...,
	)
	a.Results = service.NewResultService(a.Stores.Results, service.NewRedisAuditSink(a.Redis), log, opts...)
	a.Sweep = service.NewSweepService(a.Stores.Attempts, a.Attempts, service.NewRedisLocker(a.Redis), log, opts...)

	a.AuditWorker = worker.NewAuditWorker(a.Stores.Audit, a.Redis, log)
	a.NotificationWorker = worker.NewNotificationWorker(a.Stores.Notifications, a.Redis, log)
	a.SweepWorker = worker.NewSweepWorker(a.Sweep, cfg.SweepInterval, log)
}

// StartWorkers runs the background workers until ctx is cancelled. The
// returned channel closes once all of them have stopped.
func (a *App) StartWorkers(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	starts := []func(context.Context){
		a.AuditWorker.Start,
		a.NotificationWorker.Start,
		a.SweepWorker.Start,
	}
	stopped := make(chan struct{}, len(starts))
	for _, start := range starts {
		go func() {
			start(ctx)
			stopped <- struct{}{}
		}()
	}
	go func() {
		for range starts {
			<-stopped
		}
		close(done)
	}()
	return done
}

// Close releases database and Redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
