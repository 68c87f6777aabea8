package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned by TurnLock.Acquire when another turn holds the key.
var ErrLocked = errors.New("turn lock is held")

// ReleaseFunc gives a lock back. Releasing a lock that already expired or
// was taken over is a no-op.
type ReleaseFunc func(ctx context.Context) error

// TurnLock serializes turns per conversation across workers.
type TurnLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}

func lockKey(conversationId uuid.UUID) string {
	return "agent:turn:" + conversationId.String()
}

// MemoryTurnLock is a single-instance lock on go-cache.
type MemoryTurnLock struct {
	mu    sync.Mutex
	cache *cache.Cache
}

var _ TurnLock = &MemoryTurnLock{}

func NewMemoryTurnLock() *MemoryTurnLock {
	return &MemoryTurnLock{cache: cache.New(5*time.Minute, time.Minute)}
}

func (l *MemoryTurnLock) Acquire(_ context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	token := uuid.NewString()
	if err := l.cache.Add(key, token, ttl); err != nil {
		return nil, ErrLocked
	}
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if current, found := l.cache.Get(key); found && current == token {
			l.cache.Delete(key)
		}
		return nil
	}, nil
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTurnLock shares the lock across instances with SET NX PX.
type RedisTurnLock struct {
	client redis.Cmdable
}

var _ TurnLock = &RedisTurnLock{}

func NewRedisTurnLock(client redis.Cmdable) *RedisTurnLock {
	return &RedisTurnLock{client: client}
}

func (l *RedisTurnLock) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !acquired {
		return nil, ErrLocked
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis release %s: %w", key, err)
		}
		return nil
	}, nil
}
