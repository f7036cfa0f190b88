package imagery

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jengzang/solarscan-backend-go/internal/logging"
)

// RetryConfig controls RetryingFetcher.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// AttemptTimeout bounds a single attempt; zero leaves only the caller's
	// deadline.
	AttemptTimeout time.Duration
}

// RetryingFetcher retries retryable failures with exponential backoff.
// Permanent failures are returned immediately.
type RetryingFetcher struct {
	next   Fetcher
	cfg    RetryConfig
	logger logging.Logger
}

// NewRetryingFetcher wraps next.
func NewRetryingFetcher(next Fetcher, cfg RetryConfig, logger logging.Logger) *RetryingFetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 8 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RetryingFetcher{next: next, cfg: cfg, logger: logger.Named("imagery")}
}

// FetchTile implements Fetcher.
func (r *RetryingFetcher) FetchTile(ctx context.Context, lat, lon float64, zoom, size, scale int) ([]byte, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.cfg.InitialInterval
	eb.MaxInterval = r.cfg.MaxInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.cfg.MaxAttempts-1)), ctx)

	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		actx, cancel := r.attemptContext(ctx)
		defer cancel()

		img, err := r.next.FetchTile(actx, lat, lon, zoom, size, scale)
		if err == nil {
			return img, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if !IsRetryable(err) && actx.Err() == nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("tile fetch failed, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("wait", wait),
			logging.Err(err),
		)
	}
	return backoff.RetryNotifyWithData(op, policy, notify)
}

func (r *RetryingFetcher) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.AttemptTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	}
	return context.WithCancel(ctx)
}
