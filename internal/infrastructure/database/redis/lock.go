package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	apperrors "github.com/caselight/caselight/pkg/errors"
)

var (
	ErrLockNotAcquired = apperrors.New(apperrors.ErrCodeConflict, "failed to acquire lock")
	ErrLockNotHeld     = apperrors.New(apperrors.ErrCodeConflict, "lock not held by this owner")
)

// EvaluationLock serializes case evaluations across worker processes: two
// workers polling the same case must not run the pipeline concurrently.
type EvaluationLock interface {
	TryLock(ctx context.Context) (bool, error)
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
	Extend(ctx context.Context, ttl time.Duration) (bool, error)
	TTL(ctx context.Context) (time.Duration, error)
}

// LockFactory mints per-case evaluation locks.
type LockFactory interface {
	NewLock(name string, opts ...LockOption) EvaluationLock
}

type LockOption func(*lockConfig)

func WithLockTTL(ttl time.Duration) LockOption {
	return func(c *lockConfig) { c.ttl = ttl }
}

func WithRetryDelay(delay time.Duration) LockOption {
	return func(c *lockConfig) { c.retryDelay = delay }
}

func WithRetryCount(count int) LockOption {
	return func(c *lockConfig) { c.retryCount = count }
}

type lockConfig struct {
	ttl        time.Duration
	retryDelay time.Duration
	retryCount int
}

type redisLockFactory struct {
	client *Client
	prefix string
	log    logging.Logger
}

// NewLockFactory builds a LockFactory namespaced under prefix.
func NewLockFactory(client *Client, prefix string, log logging.Logger) LockFactory {
	if prefix == "" {
		prefix = "caselight:"
	}
	return &redisLockFactory{client: client, prefix: prefix, log: log}
}

func (f *redisLockFactory) NewLock(name string, opts ...LockOption) EvaluationLock {
	cfg := lockConfig{
		ttl:        30 * time.Second,
		retryDelay: 100 * time.Millisecond,
		retryCount: 30,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &redisLock{
		client: f.client,
		key:    f.prefix + "lock:" + name,
		value:  uuid.New().String(),
		config: cfg,
		logger: f.log,
	}
}

type redisLock struct {
	client *Client
	key    string
	value  string
	config lockConfig
	logger logging.Logger
}

// unlockScript deletes the key only if this lock still owns it.
var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func (l *redisLock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.config.ttl).Result()
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeCacheError, "failed to acquire lock")
	}
	return ok, nil
}

func (l *redisLock) Lock(ctx context.Context) error {
	for i := 0; i < l.config.retryCount; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.config.retryDelay):
		}
	}
	return ErrLockNotAcquired
}

func (l *redisLock) Unlock(ctx context.Context) error {
	res, err := l.client.RunScript(ctx, unlockScript, []string{l.key}, l.value).Result()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeCacheError, "failed to release lock")
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (l *redisLock) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	res, err := l.client.RunScript(ctx, extendScript, []string{l.key}, l.value, ttl.Milliseconds()).Result()
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeCacheError, "failed to extend lock")
	}
	n, ok := res.(int64)
	return ok && n == 1, nil
}

func (l *redisLock) TTL(ctx context.Context) (time.Duration, error) {
	return l.client.PTTL(ctx, l.key).Result()
}
