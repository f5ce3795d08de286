package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-grading/internal/service"
)

// Sweeper runs one expiry sweep.
type Sweeper interface {
	RunExpirySweep(ctx context.Context) (service.SweepReport, error)
}

// SweepWorker runs the expiry sweep on a fixed interval.
type SweepWorker struct {
	sweeper  Sweeper
	interval time.Duration
	log      zerolog.Logger
}

// NewSweepWorker creates a new SweepWorker.
func NewSweepWorker(sweeper Sweeper, interval time.Duration, log zerolog.Logger) *SweepWorker {
	return &SweepWorker{
		sweeper:  sweeper,
		interval: interval,
		log:      log.With().Str("component", "sweep_worker").Logger(),
	}
}

// Start runs a sweep immediately and then once per interval until ctx is done.
func (w *SweepWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
		}
	}
}

func (w *SweepWorker) runOnce(ctx context.Context) {
	report, err := w.sweeper.RunExpirySweep(ctx)
	switch {
	case errors.Is(err, service.ErrSweepInProgress):
		w.log.Debug().Msg("Sweep held by another instance")
	case err != nil:
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Sweep failed")
		}
	case report.Partial:
		w.log.Warn().Int("resolved", report.Resolved).Msg("Sweep hit its time box, remaining attempts wait for the next run")
	}
}
