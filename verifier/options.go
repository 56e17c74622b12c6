package verifier

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type options struct {
	workers  int
	failFast bool
	deadline time.Duration
	logger   zerolog.Logger
	progress func()
}

type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(opts *options) {
	f(opts)
}

func defaultOptions() *options {
	return &options{
		workers:  runtime.NumCPU(),
		logger:   log.Logger,
		progress: func() {},
	}
}

// WithWorkers bounds the number of concurrent verification tasks.
// Values below 1 mean runtime.NumCPU().
func WithWorkers(n int) Option {
	return optionFunc(func(o *options) {
		if n < 1 {
			n = runtime.NumCPU()
		}
		o.workers = n
	})
}

// WithStopOnFirstFailure cancels all outstanding work as soon as any
// diagnostic is reported. The result then holds at least one diagnostic
// but not necessarily all of them.
func WithStopOnFirstFailure(stop bool) Option {
	return optionFunc(func(o *options) {
		o.failFast = stop
	})
}

// WithDeadline bounds the whole run, after which the verdict is Incomplete.
// Zero means no deadline.
func WithDeadline(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.deadline = d
	})
}

func WithLogger(l zerolog.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

// WithProgress registers a function called once per finished task. It is
// called from many goroutines.
func WithProgress(fn func()) Option {
	return optionFunc(func(o *options) {
		if fn != nil {
			o.progress = fn
		}
	})
}
