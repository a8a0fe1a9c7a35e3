// internal/common/ratelimit/limiter.go

// Package ratelimit implements the scheduler shared by every process that
// calls the generative model: at most MaxConcurrent calls in flight and at
// least MinTime between two call starts, cluster-wide.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	apperrors "match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/common/metrics"
)

const (
	DefaultID            = "gemini-api-limit"
	DefaultMinTime       = 5 * time.Second
	DefaultMaxConcurrent = 1
	DefaultLease         = 2 * time.Minute
	DefaultPollInterval  = 250 * time.Millisecond
)

// Scheduler runs fn once a slot is free. Errors from fn are returned untouched.
type Scheduler interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Schedule is the value-returning form of Scheduler.Do.
func Schedule[T any](ctx context.Context, s Scheduler, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := s.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

type Config struct {
	ID            string
	MinTime       time.Duration
	MaxConcurrent int
	Lease         time.Duration
	PollInterval  time.Duration
}

// acquireScript admits a caller when fewer than ARGV[2] unexpired leases exist
// and the next-allowed start time has passed. Time is the Redis server clock so
// every process agrees on it. Returns {1, 0} on admission, otherwise {0, hint}
// where hint is the milliseconds until the spacing window opens (0 if the
// caller is blocked on concurrency).
var acquireScript = redis.NewScript(`
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now)
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[2]) then
	return {0, 0}
end

local nextAllowed = tonumber(redis.call('GET', KEYS[2]) or '0')
if now < nextAllowed then
	return {0, nextAllowed - now}
end

redis.call('ZADD', KEYS[1], now + tonumber(ARGV[4]), ARGV[1])
redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[4]))
redis.call('SET', KEYS[2], now + tonumber(ARGV[3]), 'PX', tonumber(ARGV[3]) + 1000)
return {1, 0}
`)

// Limiter is the Redis-backed Scheduler. Leases expire after Config.Lease so a
// crashed holder cannot block the others forever.
type Limiter struct {
	rdb       *redis.Client
	cfg       Config
	leasesKey string
	nextKey   string
	poll      *rate.Limiter
	logger    logger.Logger
}

func New(rdb *redis.Client, cfg Config, log logger.Logger) *Limiter {
	if cfg.ID == "" {
		cfg.ID = DefaultID
	}
	if cfg.MinTime < 0 {
		cfg.MinTime = 0
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Lease <= 0 {
		cfg.Lease = DefaultLease
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return &Limiter{
		rdb:       rdb,
		cfg:       cfg,
		leasesKey: fmt.Sprintf("ratelimit:{%s}:leases", cfg.ID),
		nextKey:   fmt.Sprintf("ratelimit:{%s}:next", cfg.ID),
		poll:      rate.NewLimiter(rate.Every(cfg.PollInterval), 1),
		logger:    log.WithFields(map[string]interface{}{"limiter": cfg.ID}),
	}
}

// Do blocks until a slot is granted, runs fn and always releases the lease.
// Cancelling ctx while waiting returns ctx.Err() without running fn.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	token, err := l.acquire(ctx)
	metrics.RateLimitWait.WithLabelValues(l.cfg.ID).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	defer l.release(token)

	return fn(ctx)
}

func (l *Limiter) acquire(ctx context.Context) (string, error) {
	token := uuid.NewString()
	keys := []string{l.leasesKey, l.nextKey}

	for {
		if err := l.poll.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", context.DeadlineExceeded
		}

		res, err := acquireScript.Run(ctx, l.rdb, keys,
			token, l.cfg.MaxConcurrent, l.cfg.MinTime.Milliseconds(), l.cfg.Lease.Milliseconds(),
		).Int64Slice()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", apperrors.NewRateLimitWaitFailedError(err)
		}
		if len(res) == 2 && res[0] == 1 {
			return token, nil
		}

		if len(res) == 2 && res[1] > 0 {
			if err := sleep(ctx, time.Duration(res[1])*time.Millisecond); err != nil {
				return "", err
			}
		}
	}
}

func (l *Limiter) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.rdb.ZRem(ctx, l.leasesKey, token).Err(); err != nil {
		l.logger.Warn("failed to release rate limit lease", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Unlimited runs fn immediately. For tests and local tools.
type Unlimited struct{}

func (Unlimited) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
