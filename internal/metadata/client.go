package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"basegraph.app/docwatch/internal/model"
)

// Source performs a single upstream lookup without retries or caching.
type Source interface {
	Lookup(ctx context.Context, token string) (model.Metadata, error)
}

type Config struct {
	CallTimeout   time.Duration // per upstream call, independent of backoff sleeps
	MaxRetries    int           // retries after the first attempt, transient errors only
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	RatePerSecond float64 // 0 disables rate limiting
}

func (c Config) withDefaults() Config {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	return c
}

// Client fetches document metadata with caching, per-token request
// coalescing and bounded retries.
type Client struct {
	source   Source
	cache    Cache
	clock    clockwork.Clock
	limiter  *rate.Limiter
	cfg      Config
	inflight singleflight.Group
}

func NewClient(source Source, cache Cache, clock clockwork.Clock, cfg Config) *Client {
	cfg = cfg.withDefaults()
	if cache == nil {
		cache = NopCache()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Client{
		source:  source,
		cache:   cache,
		clock:   clock,
		limiter: limiter,
		cfg:     cfg,
	}
}

// Fetch returns current metadata for token. Errors are always *FetchError.
//
// Concurrent calls for the same token share one upstream request, so a poll
// cycle and an interactive check never hit the API twice for one document.
func (c *Client) Fetch(ctx context.Context, token string) (model.Metadata, error) {
	if token == "" {
		return model.Metadata{}, NewInvalidError(token, errors.New("empty token"))
	}

	if md, ok := c.cache.Get(token); ok {
		return md, nil
	}

	// The shared call is detached from this caller's cancellation: other
	// callers may be waiting on it. Each attempt is still bounded by
	// CallTimeout and the retry budget.
	detached := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(token, func() (any, error) {
		if md, ok := c.cache.Get(token); ok {
			return md, nil
		}
		md, err := c.fetchWithRetry(detached, token)
		if err != nil {
			return model.Metadata{}, err
		}
		c.cache.Set(token, md)
		return md, nil
	})

	select {
	case <-ctx.Done():
		return model.Metadata{}, NewTransientError(token, ctx.Err())
	case res := <-ch:
		if res.Shared {
			slog.DebugContext(ctx, "metadata fetch coalesced", "token", token)
		}
		if res.Err != nil {
			return model.Metadata{}, res.Err
		}
		return res.Val.(model.Metadata), nil
	}
}

// Invalidate drops any cached entry for token.
func (c *Client) Invalidate(token string) {
	c.cache.Expire(token)
}

func (c *Client) fetchWithRetry(ctx context.Context, token string) (model.Metadata, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.BaseBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxInterval = c.cfg.MaxBackoff

	attempt := 0
	md, err := backoff.Retry(ctx, func() (model.Metadata, error) {
		attempt++
		md, err := c.lookupOnce(ctx, token)
		if err == nil {
			return md, nil
		}
		fe := classify(token, err)
		if fe.Permanent() {
			return model.Metadata{}, backoff.Permanent(fe)
		}
		return model.Metadata{}, fe
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.DebugContext(ctx, "retrying metadata fetch",
				"token", token,
				"attempt", attempt,
				"next_backoff", next,
				"error", err)
		}),
	)
	if err != nil {
		if fe, ok := asFetchError(err); ok {
			return model.Metadata{}, fe
		}
		// Context cancellation while sleeping between attempts.
		return model.Metadata{}, NewTransientError(token, fmt.Errorf("after %d attempts: %w", attempt, err))
	}
	return md, nil
}

func (c *Client) lookupOnce(ctx context.Context, token string) (model.Metadata, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return model.Metadata{}, NewTransientError(token, fmt.Errorf("waiting for rate limiter: %w", err))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	md, err := c.source.Lookup(callCtx, token)
	if err != nil {
		return model.Metadata{}, err
	}

	md.Token = token
	if md.FetchedAt.IsZero() {
		md.FetchedAt = c.clock.Now()
	}
	return md, nil
}
