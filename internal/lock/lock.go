// Package lock provides the lease-based distributed lock that serializes work on one account
// across service instances, and the Guard that scopes a protected operation to a held lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tally/internal/model"
)

var (
	ErrEmptyKey     = errors.New("lock key cannot be empty")
	ErrInvalidLease = errors.New("lock lease must be greater than 0")
	ErrInvalidWait  = errors.New("lock wait timeout cannot be negative")
	ErrLockNotHeld  = errors.New("lock was not held or already expired")
)

// Handle is an acquired lock. Release gives the lock back before its lease runs out.
type Handle interface {
	Release(ctx context.Context) error
}

// Locker hands out named locks.
//
// Acquire waits at most wait for the lock and holds it for at most lease; after the lease the
// store reclaims the lock even if Release is never called. Contention past the wait budget is
// reported as model.ErrLockTimeout. Waiters are not served in FIFO order.
type Locker interface {
	Acquire(ctx context.Context, key string, wait, lease time.Duration) (Handle, error)
}

// RedisLocker implements Locker with the RedLock algorithm on a single Redis deployment.
type RedisLocker struct {
	rs         *redsync.Redsync
	retryDelay time.Duration
	logger     *zap.Logger
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker builds a locker on top of rdb. retryDelay is the pause between acquisition
// attempts while another holder owns the lock.
func NewRedisLocker(rdb redis.UniversalClient, retryDelay time.Duration, logger *zap.Logger) *RedisLocker {
	if retryDelay <= 0 {
		retryDelay = 50 * time.Millisecond
	}
	return &RedisLocker{
		rs:         redsync.New(goredis.NewPool(rdb)),
		retryDelay: retryDelay,
		logger:     logger,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, wait, lease time.Duration) (Handle, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrEmptyKey
	}
	if lease <= 0 {
		return nil, ErrInvalidLease
	}
	if wait < 0 {
		return nil, ErrInvalidWait
	}

	mutex := l.rs.NewMutex(key, redsync.WithExpiry(lease))

	safeKey := safeKeyForLogs(key)
	l.logger.Debug("attempting to acquire lock", zap.String("lock_key", safeKey), zap.Duration("wait", wait), zap.Duration("lease", lease))

	// The wait budget is ours: every attempt is a single try, and only contention is retried.
	deadline := time.Now().Add(wait)
	for attempt := 1; ; attempt++ {
		err := mutex.TryLockContext(ctx)
		if err == nil {
			l.logger.Debug("lock acquired", zap.String("lock_key", safeKey), zap.Int("attempts", attempt))
			return &redisHandle{mutex: mutex, key: safeKey}, nil
		}
		if !isContention(err) {
			l.logger.Error("failed to acquire lock", zap.String("lock_key", safeKey), zap.Error(err))
			return nil, fmt.Errorf("acquire lock %s: %w", safeKey, err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.logger.Warn("lock acquisition timed out", zap.String("lock_key", safeKey), zap.Duration("wait", wait), zap.Int("attempts", attempt))
			return nil, fmt.Errorf("lock %s: %w", safeKey, model.ErrLockTimeout)
		}

		timer := time.NewTimer(min(l.retryDelay, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("acquire lock %s: %w", safeKey, ctx.Err())
		case <-timer.C:
		}
	}
}

type redisHandle struct {
	mutex *redsync.Mutex
	key   string
}

func (h *redisHandle) Release(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", h.key, err)
	}
	if !ok {
		return ErrLockNotHeld
	}
	return nil
}

// isContention separates "someone else holds it" from infrastructure failures. Any error
// talking to a Redis node, timeouts included, is a failure of the lock store.
func isContention(err error) bool {
	var redisErr *redsync.RedisError
	if errors.As(err, &redisErr) {
		return false
	}
	var taken *redsync.ErrTaken
	return errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed)
}

func safeKeyForLogs(key string) string {
	const maxKeyLogLength = 128

	safe := strconv.QuoteToASCII(key)
	if len(safe) <= maxKeyLogLength {
		return safe
	}
	return safe[:maxKeyLogLength] + "...(truncated)"
}
