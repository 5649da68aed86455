package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Locker hands out one in-flight marker per key. TryAcquire never blocks:
// ok is false when another caller holds the key. release is safe to call
// more than once.
type Locker interface {
	TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	inFlight sync.Map
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{}
}

func (l *MemoryLocker) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	if _, loaded := l.inFlight.LoadOrStore(key, struct{}{}); loaded {
		return nil, false, nil
	}
	var once sync.Once
	return func() {
		once.Do(func() { l.inFlight.Delete(key) })
	}, true, nil
}

func (l *MemoryLocker) Held(key string) bool {
	_, ok := l.inFlight.Load(key)
	return ok
}

const (
	redisLockPrefix     = "fulfillment:inflight:"
	DefaultRedisLockTTL = 2 * time.Minute
	redisReleaseTimeout = 5 * time.Second
)

// Delete only if the key still holds our token, so a lock that expired and
// was taken by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares in-flight markers between instances. The TTL bounds
// how long a crashed holder can block a session.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultRedisLockTTL
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	token, err := uuid.NewV4()
	if err != nil {
		return nil, false, fmt.Errorf("reconcile: failed to generate lock token: %w", err)
	}

	redisKey := redisLockPrefix + key
	ok, err := l.client.SetNX(ctx, redisKey, token.String(), l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("reconcile: failed to acquire lock for %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), redisReleaseTimeout)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token.String()).Err(); err != nil {
				log.Error().Err(err).Str("checkout_session_id", key).Msg("reconcile: failed to release redis lock")
			}
		})
	}, true, nil
}
