// Package lock provides MySQL advisory locks that keep two pipeline runs, or
// two stages rebuilding the same warehouse table, from overlapping.
package lock

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrLockTimeout means another session held the lock for the whole wait.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// GET_LOCK waits, in seconds.
const (
	TimeoutImmediate = 0
	TimeoutShort     = 1  // duplicate run detection
	TimeoutMedium    = 10 // waiting out another run's table rebuild
)

// maxLockNameLength is MySQL's limit on GET_LOCK names.
const maxLockNameLength = 64

// AdvisoryLock is a named MySQL lock taken with GET_LOCK().
//
// MySQL ties the lock to the session that took it, so the lock pins one pooled
// connection from acquisition until release.
type AdvisoryLock struct {
	db       *sql.DB
	conn     *sql.Conn
	lockName string
}

// NewAdvisoryLock returns an unheld lock.
func NewAdvisoryLock(db *sql.DB, lockName string) *AdvisoryLock {
	return &AdvisoryLock{db: db, lockName: lockName}
}

// AcquireLock waits up to timeoutSeconds for the lock. It reports false when
// the wait ran out, and is a no-op if the lock is already held.
func (a *AdvisoryLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.conn != nil {
		return true, nil
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to reserve connection for lock %q: %w", a.lockName, err)
	}

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.lockName, timeoutSeconds).Scan(&result); err != nil {
		conn.Close()
		return false, fmt.Errorf("failed to execute GET_LOCK: %w", err)
	}

	if !result.Valid {
		conn.Close()
		return false, fmt.Errorf("GET_LOCK returned NULL for lock %q (possible database error)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.conn = conn
		return true, nil
	case 0:
		conn.Close()
		return false, nil
	default:
		conn.Close()
		return false, fmt.Errorf("unexpected GET_LOCK return value: %d", result.Int64)
	}
}

// ReleaseLock frees the lock and hands its connection back to the pool.
// It reports false when the lock was not held by this session.
func (a *AdvisoryLock) ReleaseLock(ctx context.Context) (bool, error) {
	if a.conn == nil {
		return false, nil
	}
	conn := a.conn
	a.conn = nil
	defer conn.Close()

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", a.lockName).Scan(&result); err != nil {
		return false, fmt.Errorf("failed to execute RELEASE_LOCK: %w", err)
	}

	if !result.Valid {
		return false, fmt.Errorf("RELEASE_LOCK returned NULL for lock %q (lock did not exist)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected RELEASE_LOCK return value: %d", result.Int64)
	}
}

// IsHeld reports whether this value holds the lock.
func (a *AdvisoryLock) IsHeld() bool {
	return a.conn != nil
}

func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// TryAcquire does not wait.
func (a *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	return a.AcquireLock(ctx, TimeoutImmediate)
}

// AcquireOrFail acquires the lock with TimeoutShort, returning ErrLockTimeout
// if another instance holds it.
func (a *AdvisoryLock) AcquireOrFail(ctx context.Context) error {
	acquired, err := a.AcquireLock(ctx, TimeoutShort)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}
	return nil
}

// WithLock executes fn while holding the lock. The lock is released when fn
// returns or panics.
func (a *AdvisoryLock) WithLock(ctx context.Context, timeoutSeconds int, fn func() error) (err error) {
	acquired, err := a.AcquireLock(ctx, timeoutSeconds)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}

	defer func() {
		// fn may have ended because ctx was cancelled; release on a fresh context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, releaseErr := a.ReleaseLock(releaseCtx); releaseErr != nil && err == nil {
			err = fmt.Errorf("failed to release lock: %w", releaseErr)
		}
	}()

	return fn()
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.' {
			return r
		}
		return '_'
	}, s)
}

// fitLockName shortens names over MySQL's limit, keeping them unique with a digest suffix.
func fitLockName(name string) string {
	if len(name) <= maxLockNameLength {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	suffix := "~" + hex.EncodeToString(sum[:])[:8]
	return name[:maxLockNameLength-len(suffix)] + suffix
}

// GenerateRunLockName returns the lock name for a pipeline run:
// "crashed:run:{pipeline}".
func GenerateRunLockName(pipeline string) string {
	return fitLockName("crashed:run:" + sanitize(pipeline))
}

// GenerateTableLockName returns the lock name guarding a warehouse table
// rebuild: "crashed:table:{dataset}.{table}".
func GenerateTableLockName(dataset, table string) string {
	return fitLockName(fmt.Sprintf("crashed:table:%s.%s", sanitize(dataset), sanitize(table)))
}

// NewRunLock creates the lock that keeps two runs of the same pipeline apart.
func NewRunLock(db *sql.DB, pipeline string) *AdvisoryLock {
	return NewAdvisoryLock(db, GenerateRunLockName(pipeline))
}

// NewTableLock creates the lock held while a warehouse table is dropped and rebuilt.
func NewTableLock(db *sql.DB, dataset, table string) *AdvisoryLock {
	return NewAdvisoryLock(db, GenerateTableLockName(dataset, table))
}

// IsRunActive reports whether another process holds the run lock of pipeline.
// The check is not atomic; the answer may be stale by the time it returns.
func IsRunActive(ctx context.Context, db *sql.DB, pipeline string) (bool, error) {
	l := NewRunLock(db, pipeline)

	acquired, err := l.TryAcquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check if pipeline %q is running: %w", pipeline, err)
	}
	if acquired {
		// Lock auto-releases when the connection closes if this fails.
		_, _ = l.ReleaseLock(ctx)
		return false, nil
	}
	return true, nil
}
