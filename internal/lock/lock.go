// Package lock defines the distributed named-lock contract (§1 L4, §5):
// try/wait acquisition, TTL, and explicit release, used to serialize
// auto-merge and summary-comment updates.
package lock

import (
	"context"
	"time"
)

// Handle is returned by a successful acquisition and must be released
// on every exit path (§5).
type Handle interface {
	// Release gives up the lock. Releasing an already-released handle
	// is a no-op.
	Release(ctx context.Context) error
}

// Service is the distributed lock contract consumed by the status
// engine (§4.6 steps 6 and 8).
type Service interface {
	// TryLock attempts a non-blocking acquisition of name for ttl.
	// ok is false (with a nil error) when the lock is already held —
	// the classified "busy" outcome of §4.8, never an error.
	TryLock(ctx context.Context, name string, ttl time.Duration) (h Handle, ok bool, err error)

	// WaitLock blocks (subject to timeout) until name is acquired for
	// ttl. A timeout surfaces as *errs.Error{Kind: KindLockTimeout}
	// (§4.8, §7).
	WaitLock(ctx context.Context, name string, ttl, timeout time.Duration) (Handle, error)
}
