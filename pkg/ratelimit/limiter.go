// Package ratelimit gates agent turns with a per-user fixed-window counter
// kept in a pluggable Store.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"ai-todo-agent-be/internal/pkg/apperror"
	"ai-todo-agent-be/internal/pkg/logger"
)

const (
	DefaultLimit  = 60
	DefaultWindow = time.Minute
)

// Store counts hits per key. Increment returns the count after adding one
// and makes sure the key expires no earlier than ttl from now.
type Store interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
	logger logger.ILogger
}

type Option func(*Limiter)

// WithClock replaces time.Now, for window rollover tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func WithLogger(log logger.ILogger) Option {
	return func(l *Limiter) {
		l.logger = log
	}
}

func NewLimiter(store Store, limit int, window time.Duration, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window < time.Second {
		window = DefaultWindow
	}
	l := &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
		logger: logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow counts one request for userId in the current window. Store failures
// fail open and are logged.
func (l *Limiter) Allow(ctx context.Context, userId string) Decision {
	now := l.now()
	windowSecs := int64(l.window / time.Second)
	start := now.Unix() - now.Unix()%windowSecs
	resetAt := time.Unix(start+windowSecs, 0)

	decision := Decision{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit,
		ResetAt:   resetAt,
	}

	count, err := l.store.Increment(ctx, windowKey(userId, start), l.window)
	if err != nil {
		l.logger.Warn("ratelimit", "counter store unavailable, failing open", map[string]interface{}{
			"user_id": userId,
			"error":   err.Error(),
		})
		return decision
	}

	decision.Remaining = l.limit - int(count)
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}
	if count > int64(l.limit) {
		decision.Allowed = false
		decision.RetryAfter = resetAt.Sub(now)
	}
	return decision
}

// AllowUser is the boolean form of Allow.
func (l *Limiter) AllowUser(ctx context.Context, userId string) bool {
	return l.Allow(ctx, userId).Allowed
}

// Check returns an apperror.RateLimited carrying the retry hint when the
// request is over budget.
func (l *Limiter) Check(ctx context.Context, userId string) (Decision, error) {
	decision := l.Allow(ctx, userId)
	if !decision.Allowed {
		return decision, apperror.RateLimited(decision.RetryAfter)
	}
	return decision, nil
}

func windowKey(userId string, windowStart int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", userId, windowStart)
}
