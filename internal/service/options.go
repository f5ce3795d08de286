package service

import "time"

type options struct {
	now            func() time.Time
	notifyOnForced bool
	batchSize      int
	timeBox        time.Duration
}

// Option tunes a service at construction time.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithForcedSubmitNotification makes the attempt service alert candidates whose
// attempts the system resolved for them.
func WithForcedSubmitNotification(on bool) Option {
	return func(o *options) { o.notifyOnForced = on }
}

// WithSweepLimits sets the sweep page size and the wall-clock budget of one run.
func WithSweepLimits(batchSize int, timeBox time.Duration) Option {
	return func(o *options) {
		if batchSize > 0 {
			o.batchSize = batchSize
		}
		if timeBox > 0 {
			o.timeBox = timeBox
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:       time.Now,
		batchSize: 100,
		timeBox:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
