package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	defaultAttempts = 4
	defaultDelay    = 200 * time.Millisecond
	defaultMaxDelay = 5 * time.Second
	defaultJitter   = 100 * time.Millisecond
)

// Config is the serialisable form of a Policy.
type Config struct {
	Attempts uint          `yaml:"attempts" env:"ATTEMPTS"`
	Delay    time.Duration `yaml:"delay" env:"DELAY"`
	MaxDelay time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	Jitter   time.Duration `yaml:"jitter" env:"JITTER"`
}

func DefaultConfig() Config {
	return Config{
		Attempts: defaultAttempts,
		Delay:    defaultDelay,
		MaxDelay: defaultMaxDelay,
		Jitter:   defaultJitter,
	}
}

// Policy is exponential backoff with random jitter and a bounded number of
// attempts. It is safe for concurrent use.
type Policy struct {
	cfg Config
}

func NewPolicy(cfg Config) *Policy {
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	return &Policy{cfg: cfg}
}

func (p *Policy) Attempts() uint {
	return p.cfg.Attempts
}

// ToRetryOptions builds retry-go options bound to ctx.
func (p *Policy) ToRetryOptions(ctx context.Context) []retry.Option {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(p.cfg.Attempts),
		retry.Delay(p.cfg.Delay),
		retry.LastErrorOnly(true),
	}
	if p.cfg.MaxDelay > 0 {
		opts = append(opts, retry.MaxDelay(p.cfg.MaxDelay))
	}
	if p.cfg.Jitter > 0 {
		opts = append(opts,
			retry.MaxJitter(p.cfg.Jitter),
			retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		)
	} else {
		opts = append(opts, retry.DelayType(retry.BackOffDelay))
	}
	return opts
}

// Do runs fn until it succeeds, returns an unrecoverable error, the attempts
// are exhausted or ctx is done. onRetry, if set, sees every failed attempt
// that will be retried.
func (p *Policy) Do(ctx context.Context, fn func() error, onRetry func(attempt uint, err error)) error {
	opts := p.ToRetryOptions(ctx)
	if onRetry != nil {
		opts = append(opts, retry.OnRetry(retry.OnRetryFunc(onRetry)))
	}
	return retry.Do(fn, opts...)
}

// Unrecoverable marks err so that Do stops immediately.
func Unrecoverable(err error) error {
	return retry.Unrecoverable(err)
}
