package coros

import "time"

const (
	defaultStackHint      = 128 * 1024
	defaultTimeout        = 3 * time.Second
	defaultReniceAt       = 5
	defaultMaxWaitFDArray = 4096
)

// schedOptions holds resolved configuration for a Scheduler.
type schedOptions struct {
	stackHint      int
	defaultTimeout time.Duration
	reniceAt       int
	logger         Logger
	metricsEnabled bool
}

// Option configures a Scheduler at construction.
type Option interface {
	apply(*schedOptions) error
}

type optionFunc struct {
	fn func(*schedOptions) error
}

func (o *optionFunc) apply(opts *schedOptions) error { return o.fn(opts) }

// WithStackHint sets an advisory stack size (default 128 KiB). The value is
// validated and stored, but nothing in the scheduler reads it: it does not
// bound a coroutine's goroutine stack (Go grows those on its own), and stack
// sampling uses the fixed stackSampleBuf buffer.
func WithStackHint(n int) Option {
	return &optionFunc{func(opts *schedOptions) error {
		if n <= 0 {
			return wrapError("coros: invalid stack hint", ErrInvalidArgument)
		}
		opts.stackHint = n
		return nil
	}}
}

// WithDefaultTimeout sets the timeout used to bound a poll when no sleeper
// constrains it. Default 3s.
func WithDefaultTimeout(d time.Duration) Option {
	return &optionFunc{func(opts *schedOptions) error {
		opts.defaultTimeout = d
		return nil
	}}
}

// WithReniceThreshold overrides the voluntary-yield ops-counter threshold
// (default 5). This is scheduler policy, not a correctness invariant.
func WithReniceThreshold(n int) Option {
	return &optionFunc{func(opts *schedOptions) error {
		if n <= 0 {
			n = 1
		}
		opts.reniceAt = n
		return nil
	}}
}

// WithLogger sets the structured logger used for scheduler diagnostics.
func WithLogger(l Logger) Option {
	return &optionFunc{func(opts *schedOptions) error {
		opts.logger = l
		return nil
	}}
}

// WithMetrics enables lightweight scheduler counters (queue depths, poll
// counts) retrievable via Scheduler.Metrics.
func WithMetrics(enabled bool) Option {
	return &optionFunc{func(opts *schedOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

func resolveOptions(opts []Option) (*schedOptions, error) {
	cfg := &schedOptions{
		stackHint:      defaultStackHint,
		defaultTimeout: defaultTimeout,
		reniceAt:       defaultReniceAt,
		logger:         NewNoOpLogger(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		cfg.logger = NewNoOpLogger()
	}
	return cfg, nil
}
