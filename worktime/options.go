package worktime

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Option configures the ledger, recalculator and reporter.
type Option func(*options)

type options struct {
	clock  Clock
	locker Locker
	logger *zap.Logger
	newID  func() string
	runs   RunStore
}

func defaultOptions() options {
	return options{
		clock:  SystemClock{},
		locker: NewKeyedMutex(),
		logger: zap.NewNop(),
		newID:  func() string { return uuid.NewString() },
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLocker shares one Locker between components. The ledger and the
// recalculator must use the same Locker to exclude each other.
func WithLocker(l Locker) Option {
	return func(o *options) {
		if l != nil {
			o.locker = l
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithRunStore persists each recalculation run. Without it runs are only returned.
func WithRunStore(rs RunStore) Option {
	return func(o *options) { o.runs = rs }
}
