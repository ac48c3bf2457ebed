package ledger

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures Mirror, Executor, Session and RefreshScheduler.
type Option func(*options)

type options struct {
	log   zerolog.Logger
	clock func() time.Time
}

func collectOptions(opts []Option) options {
	o := options{log: zerolog.Nop(), clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. Components log nothing by default.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithClock overrides time.Now, for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}
