// Package lock provides MySQL advisory locks that serialize queue maintenance per site.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrLockTimeout is returned when another process holds the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Timeout values for lock acquisition, in seconds.
const (
	// TimeoutShort fails fast when another initializer is running.
	TimeoutShort = 1

	// TimeoutLong queues behind a running initializer.
	TimeoutLong = 60
)

// AdvisoryLock is a named MySQL GET_LOCK lock.
//
// GET_LOCK belongs to a session, so the lock pins one pooled connection from
// acquisition until release; releasing on another connection would be a no-op.
type AdvisoryLock struct {
	db       *sql.DB
	conn     *sql.Conn
	lockName string
}

// NewAdvisoryLock creates a lock with the given name. Nothing is acquired yet.
func NewAdvisoryLock(db *sql.DB, lockName string) *AdvisoryLock {
	return &AdvisoryLock{db: db, lockName: lockName}
}

// SiteLockName returns the lock name guarding queue maintenance of a site root page.
func SiteLockName(rootPageID int64) string {
	return fmt.Sprintf("goindexq:site:%d", rootPageID)
}

// NewSiteLock creates the advisory lock of a site root page.
func NewSiteLock(db *sql.DB, rootPageID int64) *AdvisoryLock {
	return NewAdvisoryLock(db, SiteLockName(rootPageID))
}

// AcquireLock waits up to timeoutSeconds for the lock. It returns false when the
// timeout elapsed while another session held it.
//
// GET_LOCK returns 1 on success, 0 on timeout and NULL on error.
func (a *AdvisoryLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.IsHeld() {
		return true, nil
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get connection for lock %q: %w", a.lockName, err)
	}

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.lockName, timeoutSeconds).Scan(&result); err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("failed to execute GET_LOCK: %w", err)
	}
	if !result.Valid {
		_ = conn.Close()
		return false, fmt.Errorf("GET_LOCK returned NULL for lock %q", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.conn = conn
		return true, nil
	case 0:
		_ = conn.Close()
		return false, nil
	default:
		_ = conn.Close()
		return false, fmt.Errorf("unexpected GET_LOCK return value: %d", result.Int64)
	}
}

// ReleaseLock releases the lock and returns its connection to the pool.
// It reports false when the lock was not held.
//
// RELEASE_LOCK returns 1 on success, 0 when another session holds the lock and
// NULL when no such lock exists.
func (a *AdvisoryLock) ReleaseLock(ctx context.Context) (bool, error) {
	if !a.IsHeld() {
		return false, nil
	}
	conn := a.conn
	a.conn = nil
	defer func() { _ = conn.Close() }()

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", a.lockName).Scan(&result); err != nil {
		return false, fmt.Errorf("failed to execute RELEASE_LOCK: %w", err)
	}
	if !result.Valid {
		return false, fmt.Errorf("RELEASE_LOCK returned NULL for lock %q (lock did not exist)", a.lockName)
	}
	return result.Int64 == 1, nil
}

// IsHeld reports whether this instance holds the lock.
func (a *AdvisoryLock) IsHeld() bool {
	return a.conn != nil
}

// LockName returns the name of the lock.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// WithLock runs fn while holding the lock. The lock is released when fn returns
// or panics. ErrLockTimeout is returned when the lock could not be acquired.
func (a *AdvisoryLock) WithLock(ctx context.Context, timeoutSeconds int, fn func() error) error {
	acquired, err := a.AcquireLock(ctx, timeoutSeconds)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}

	defer func() {
		// fn may have been stopped by ctx; release on a fresh context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = a.ReleaseLock(releaseCtx)
	}()

	return fn()
}

// IsSiteLocked reports whether another session currently maintains the site's
// queue. The answer may be stale as soon as it is returned.
func IsSiteLocked(ctx context.Context, db *sql.DB, rootPageID int64) (bool, error) {
	var result sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT IS_FREE_LOCK(?)", SiteLockName(rootPageID)).Scan(&result); err != nil {
		return false, fmt.Errorf("failed to check lock of root page %d: %w", rootPageID, err)
	}
	return result.Valid && result.Int64 == 0, nil
}
