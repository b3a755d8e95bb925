// Package lock implements the advisory, filesystem-based mutual-exclusion
// protocol described in spec.md §4.3: a random-id lockfile is created, and
// the acquirer only proceeds once it observes exactly one lockfile in the
// directory — its own.
//
// This is deliberately not an flock/LockFileEx-based lock: it has to work
// across independent processes coordinating through nothing but a shared
// directory, per spec.md §9.
package lock

import (
	"errors"
	"fmt"
	"math/rand"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kolpa/bakare/internal/fs"
)

// DefaultTimeout is the default deadline for [Acquire], matching spec.md §5.
const DefaultTimeout = 8192 * time.Millisecond

const lockFileSuffix = ".lock"

// maxBackoffMillis bounds the random retry sleep, per spec.md §4.3 step 3: "sleeps
// a random interval in [0, 64) ms".
const maxBackoffMillis = 64

// ErrTimeout is returned by [Acquire] when the deadline elapses before sole
// ownership of the directory's lockfiles is observed.
var ErrTimeout = errors.New("lock: timeout acquiring lock")

// Lock represents a held lock on a directory. The zero value is not a held
// lock; obtain one via [Acquire].
type Lock struct {
	fsys fs.FS
	log  *zap.Logger
	dir  string
	id   uuid.UUID
	path string
}

// StaleAfter is an optional, off-by-default policy: lockfiles older than
// this duration are treated as abandoned by a crashed process and removed
// before the sole-ownership check runs. See SPEC_FULL.md §6 on the stale-
// lock open question — the default is to never reap, matching the original
// implementation, and require manual recovery.
type StaleAfter time.Duration

// Acquire attempts to gain exclusive ownership of dir within timeout,
// following the protocol in spec.md §4.3. Pass a zero [StaleAfter] (the
// default) to disable stale-lock reaping.
func Acquire(fsys fs.FS, log *zap.Logger, dir string, timeout time.Duration, staleAfter StaleAfter) (*Lock, error) {
	if log == nil {
		log = zap.NewNop()
	}

	err := fsys.MkdirAll(dir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("lock: creating directory %q: %w", dir, err)
	}

	id := uuid.New()
	myPath := lockFilePath(dir, id)

	deadline := time.Now().Add(timeout)

	for {
		if staleAfter > 0 {
			reapStale(fsys, log, dir, time.Duration(staleAfter))
		}

		err := createLockFile(fsys, myPath, id)
		if err != nil {
			return nil, fmt.Errorf("lock: creating lockfile %q: %w", myPath, err)
		}

		sole, err := soleLock(fsys, dir, myPath)
		if err != nil {
			_ = fsys.Remove(myPath)

			return nil, fmt.Errorf("lock: listing %q: %w", dir, err)
		}

		if sole {
			log.Debug("lock acquired", zap.String("dir", dir), zap.String("lock_id", id.String()))

			return &Lock{fsys: fsys, log: log, dir: dir, id: id, path: myPath}, nil
		}

		_ = fsys.Remove(myPath)

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, dir)
		}

		//nolint:gosec // backoff jitter, not security sensitive
		time.Sleep(time.Duration(rand.Intn(maxBackoffMillis)) * time.Millisecond)
	}
}

// Release releases the lock. It is idempotent, and suppresses any failure
// to remove the lockfile — matching spec.md §7's "release on drop" policy,
// where an unlink error during cleanup must never surface to the caller.
func (l *Lock) Release() {
	if l == nil || l.fsys == nil {
		return
	}

	err := l.fsys.Remove(l.path)
	if err != nil {
		l.log.Debug("lock release: remove failed (ignored)",
			zap.String("path", l.path), zap.Error(err))
	}

	l.fsys = nil
}

func lockFilePath(dir string, id uuid.UUID) string {
	return path.Join(dir, id.String()+lockFileSuffix)
}

func createLockFile(fsys fs.FS, p string, id uuid.UUID) error {
	return fsys.WriteFileAtomic(p, []byte(id.String()), 0o640)
}

// soleLock implements spec.md §4.3 step 2: list all *.lock files in dir and
// succeed iff exactly one entry exists and it is myPath.
func soleLock(fsys fs.FS, dir, myPath string) (bool, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return false, err
	}

	myName := path.Base(myPath)
	count := 0
	onlyMine := true

	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), lockFileSuffix) {
			continue
		}

		count++

		if e.Name() != myName {
			onlyMine = false
		}
	}

	return count == 1 && onlyMine, nil
}

// reapStale removes lockfiles whose modification time is older than
// maxAge. Failures are logged and otherwise ignored: a lockfile that can't
// be stat'd or removed just gets retried on a later pass or eventually
// times out the caller, which is the documented manual-recovery fallback.
func reapStale(fsys fs.FS, log *zap.Logger, dir string, maxAge time.Duration) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-maxAge)

	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), lockFileSuffix) {
			continue
		}

		p := path.Join(dir, e.Name())

		info, statErr := fsys.Stat(p)
		if statErr != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			log.Warn("reaping stale lockfile", zap.String("path", p), zap.Time("mod_time", info.ModTime()))

			_ = fsys.Remove(p)
		}
	}
}

// WithLock acquires a lock on dir, runs fn, and always releases the lock
// afterward, regardless of whether fn returns an error.
func WithLock(fsys fs.FS, log *zap.Logger, dir string, timeout time.Duration, fn func() error) error {
	l, err := Acquire(fsys, log, dir, timeout, 0)
	if err != nil {
		return err
	}

	defer l.Release()

	return fn()
}
