package lock

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"tally/internal/metrics"
	"tally/internal/model"
)

const (
	// KeyPrefix namespaces account locks in the shared store.
	KeyPrefix = "ACLK:"

	releaseTimeout = 3 * time.Second
)

// Options are the timeouts of one guarded run.
type Options struct {
	// Wait bounds how long Run waits for a lock held by someone else.
	Wait time.Duration
	// Lease bounds how long the lock is held. It must exceed the worst-case duration of the
	// protected operation: past the lease the store reclaims the lock while the operation runs.
	Lease time.Duration
}

func DefaultOptions() Options {
	return Options{Wait: time.Second, Lease: 15 * time.Second}
}

// Guard runs operations under a held lock. It is the only code that acquires or releases locks.
type Guard struct {
	locker Locker
	opts   Options
	logger *zap.Logger
}

func NewGuard(locker Locker, opts Options, logger *zap.Logger) *Guard {
	return &Guard{locker: locker, opts: opts, logger: logger}
}

// Run executes fn while holding the lock for key, using the guard's default options.
func (g *Guard) Run(ctx context.Context, key string, fn func(context.Context) error) error {
	return g.RunWith(ctx, key, g.opts, fn)
}

// RunWith executes fn while holding the lock for key.
//
// If the lock cannot be obtained fn is not called and the acquisition error is returned
// (model.ErrLockTimeout on contention). Otherwise the lock is released exactly once after fn
// returns, fails, or panics. A failed release is logged and never replaces fn's outcome.
func (g *Guard) RunWith(ctx context.Context, key string, opts Options, fn func(context.Context) error) error {
	lockKey := KeyPrefix + key

	acquireStart := time.Now()
	handle, err := g.locker.Acquire(ctx, lockKey, opts.Wait, opts.Lease)
	if err != nil {
		if errors.Is(err, model.ErrLockTimeout) {
			metrics.ObserveLockAcquire(metrics.LockTimeout, acquireStart)
			g.logger.Warn("account busy, giving up", zap.String("lock_key", lockKey), zap.Duration("wait", opts.Wait))
		} else {
			metrics.ObserveLockAcquire(metrics.LockError, acquireStart)
			g.logger.Error("lock store failure", zap.String("lock_key", lockKey), zap.Error(err))
		}
		return err
	}
	metrics.ObserveLockAcquire(metrics.LockAcquired, acquireStart)

	start := time.Now()
	defer func() {
		// The request context may already be cancelled; the release must still go out.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()

		held := time.Since(start)
		metrics.LockHeldDuration.Observe(held.Seconds())
		if held > opts.Lease {
			g.logger.Warn("protected operation outran its lease", zap.String("lock_key", lockKey), zap.Duration("held", held), zap.Duration("lease", opts.Lease))
		}
		if rerr := handle.Release(relCtx); rerr != nil {
			g.logger.Error("failed to release lock",
				zap.String("lock_key", lockKey),
				zap.Duration("held", held),
				zap.Duration("lease", opts.Lease),
				zap.Error(rerr),
			)
			return
		}
		g.logger.Debug("lock released", zap.String("lock_key", lockKey), zap.Duration("held", held))
	}()

	return fn(ctx)
}
