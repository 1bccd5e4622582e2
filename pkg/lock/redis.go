// Package lock provides a Redis-backed per-key mutex for deployments that
// run several collabd instances against a store without advisory locks.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/collab/pkg/observability"
)

// ErrTimeout is returned when a lock could not be acquired before the wait
// timeout elapsed
var ErrTimeout = errors.New("lock acquisition timeout")

const (
	defaultTTL         = 10 * time.Second
	defaultWaitTimeout = 5 * time.Second
	retryInterval      = 100 * time.Millisecond
)

// Only the holder's token may extend or release the key
var (
	unlockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	renewScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// RedisLocker hands out exclusive locks on string keys using SET NX with a
// random token. Held locks are renewed at half their TTL until released, so
// a crashed holder frees the key after at most one TTL.
type RedisLocker struct {
	client      *redis.Client
	prefix      string
	ttl         time.Duration
	waitTimeout time.Duration
	logger      *observability.Logger
}

// NewRedisLocker creates a locker. Keys are stored as "<prefix>:<key>".
// Zero durations select the defaults (10s TTL, 5s wait).
func NewRedisLocker(client *redis.Client, prefix string, ttl, waitTimeout time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisLocker{
		client:      client,
		prefix:      prefix,
		ttl:         ttl,
		waitTimeout: waitTimeout,
		logger:      observability.NewNopLogger(),
	}
}

// SetLogger sets the logger used to report failed releases
func (l *RedisLocker) SetLogger(logger *observability.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Name identifies the backend in metrics
func (l *RedisLocker) Name() string {
	return "redis"
}

// Lock blocks until key is acquired, ctx is done or the wait timeout
// elapses. The returned function releases the lock and is safe to call
// more than once.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + key
	token := newToken()
	deadline := time.Now().Add(l.waitTimeout)

	for {
		acquired, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if acquired {
			break
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, key)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(fullKey, token, stop, done)

	released := false
	return func() {
		if released {
			return
		}
		released = true
		close(stop)
		<-done

		// ctx may already be cancelled; release with a fresh bounded context
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := unlockScript.Run(releaseCtx, l.client, []string{fullKey}, token).Err(); err != nil {
			l.logger.WithError(err).WithField("lock_key", fullKey).Warn("Failed to release lock, it will expire after its TTL")
		}
	}, nil
}

func (l *RedisLocker) renew(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			n, err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil || n == 0 {
				// lost the key; nothing left to renew
				return
			}
		case <-stop:
			return
		}
	}
}

// Held reports whether key is currently locked by anyone
func (l *RedisLocker) Held(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, l.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check lock: %w", err)
	}
	return n > 0, nil
}

func newToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
