// Package redislock serializes account mutations across service replicas
// using the RedLock algorithm over Redis.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/account-ms/internal/port"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("redislock")

// Options configures lock behavior.
type Options struct {
	// Prefix is prepended to every key, e.g. "lock:account:".
	Prefix string
	// Expiry bounds how long a crashed holder can block the key.
	Expiry time.Duration
	// Tries is the number of acquisition attempts before giving up.
	Tries int
	// RetryDelay is the wait between attempts.
	RetryDelay time.Duration
	// Margin is how long before Expiry the holder stops trusting the lock.
	// The context handed to fn is cancelled at that point.
	Margin time.Duration
}

// ErrLockLost is reported by the lease once the key no longer holds this
// holder's value.
var ErrLockLost = errors.New("redislock: lock no longer held")

// DefaultOptions returns defaults tuned for short read-validate-write sections.
func DefaultOptions() Options {
	return Options{
		Prefix:     "lock:account:",
		Expiry:     8 * time.Second,
		Tries:      64,
		RetryDelay: 25 * time.Millisecond,
		Margin:     time.Second,
	}
}

// Locker implements port.Locker on top of redsync.
type Locker struct {
	client redis.UniversalClient
	rs     *redsync.Redsync
	opts   Options
	logger *zap.Logger
}

// New creates a Locker backed by the given go-redis client. A Margin that
// does not fit inside Expiry is cut to a quarter of it.
func New(client redis.UniversalClient, opts Options, logger *zap.Logger) *Locker {
	if opts.Margin <= 0 || opts.Margin >= opts.Expiry {
		opts.Margin = opts.Expiry / 4
	}
	return &Locker{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger,
	}
}

// WithLock runs fn while holding the distributed lock for key.
// The lock is released when fn returns, even if fn fails. The lock is not
// extended: fn's context expires Margin before the key does, and its lease
// (port.CheckLease) confirms in Redis that the key is still ours.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "RedisLock.WithLock")
	defer span.End()

	name := l.opts.Prefix + key
	span.SetAttributes(attribute.String("lock.key", name))

	mutex := l.rs.NewMutex(name,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock acquisition failed")
		l.logger.Error("redislock: failed to acquire lock", zap.String("key", name), zap.Error(err))
		return fmt.Errorf("acquire lock %s: %w", name, err)
	}

	defer func() {
		// Unlock with a fresh context so a cancelled request still releases the key.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			l.logger.Warn("redislock: failed to release lock",
				zap.String("key", name),
				zap.Bool("ok", ok),
				zap.Error(err),
			)
		}
	}()

	leaseCtx, cancelLease := context.WithDeadline(ctx, mutex.Until().Add(-l.opts.Margin))
	defer cancelLease()

	lease := func(ctx context.Context) error {
		if err := leaseCtx.Err(); err != nil {
			return fmt.Errorf("lock %s expired: %w", name, err)
		}
		value, err := l.client.Get(ctx, name).Result()
		if errors.Is(err, redis.Nil) || (err == nil && value != mutex.Value()) {
			return fmt.Errorf("%w: %s", ErrLockLost, name)
		}
		if err != nil {
			return fmt.Errorf("check lock %s: %w", name, err)
		}
		return nil
	}

	return fn(port.WithLease(leaseCtx, lease))
}
