package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix       = "lock:"
	defaultLockTTL      = 10 * time.Second
	defaultRetryBackoff = 25 * time.Millisecond
)

// releaseScript deletes the key only when it still holds our token, so an
// expired lease can never release a lock re-acquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisGuard implements Guard on a shared Redis instance using SET NX with a
// TTL. The TTL bounds how long a crashed holder can block others.
type RedisGuard struct {
	client  *redis.Client
	ttl     time.Duration
	backoff time.Duration
}

// RedisGuardOption customises the guard.
type RedisGuardOption func(*RedisGuard)

// WithTTL overrides the lease TTL.
func WithTTL(ttl time.Duration) RedisGuardOption {
	return func(g *RedisGuard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithRetryBackoff overrides the pause between acquisition attempts.
func WithRetryBackoff(backoff time.Duration) RedisGuardOption {
	return func(g *RedisGuard) {
		if backoff > 0 {
			g.backoff = backoff
		}
	}
}

// NewRedisGuard constructs a RedisGuard around an existing client.
func NewRedisGuard(client *redis.Client, opts ...RedisGuardOption) (*RedisGuard, error) {
	if client == nil {
		return nil, fmt.Errorf("lock: redis client is required")
	}
	g := &RedisGuard{client: client, ttl: defaultLockTTL, backoff: defaultRetryBackoff}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// Acquire obtains the per-key lock, retrying with backoff until ctx is done.
func (g *RedisGuard) Acquire(ctx context.Context, key string) (Lease, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	redisKey := lockKeyPrefix + key

	for {
		ok, err := g.client.SetNX(ctx, redisKey, token, g.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			return &redisLease{guard: g, key: redisKey, token: token}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-time.After(g.backoff):
		}
	}
}

type redisLease struct {
	guard *RedisGuard
	key   string
	token string

	once sync.Once
	err  error
}

func (l *redisLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		_, err := releaseScript.Run(ctx, l.guard.client, []string{l.key}, l.token).Result()
		if err != nil && err != redis.Nil {
			l.err = fmt.Errorf("lock: release %s: %w", l.key, err)
		}
	})
	return l.err
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("lock: token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
