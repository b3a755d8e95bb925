package lock_test

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kolpa/bakare/internal/fs"
	"github.com/kolpa/bakare/internal/lock"
)

func Test_Acquire_Succeeds_On_Empty_Directory(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()

	l, err := lock.Acquire(fsys, nil, "/repo/index", time.Second, 0)
	require.NoError(t, err)
	require.NotNil(t, l)

	entries, err := fsys.ReadDir("/repo/index")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, strings.HasSuffix(entries[0].Name(), ".lock"))
}

func Test_Release_Removes_Lockfile(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()

	l, err := lock.Acquire(fsys, nil, "/repo/index", time.Second, 0)
	require.NoError(t, err)

	l.Release()

	entries, err := fsys.ReadDir("/repo/index")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func Test_Release_Is_Idempotent(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()

	l, err := lock.Acquire(fsys, nil, "/repo/index", time.Second, 0)
	require.NoError(t, err)

	l.Release()
	l.Release() // must not panic or error
}

func Test_Release_On_Nil_Lock_Is_Safe(t *testing.T) {
	t.Parallel()

	var l *lock.Lock

	l.Release() // must not panic
}

func Test_Acquire_Times_Out_When_Directory_Never_Empties(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()

	require.NoError(t, fsys.MkdirAll("/repo/index", 0o750))
	require.NoError(t, fsys.WriteFileAtomic("/repo/index/stuck.lock", []byte("someone-else"), 0o640))

	_, err := lock.Acquire(fsys, nil, "/repo/index", 50*time.Millisecond, 0)
	require.ErrorIs(t, err, lock.ErrTimeout)
}

func Test_Acquire_Reaps_Stale_Lockfile_When_Configured(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()

	require.NoError(t, fsys.MkdirAll("/repo/index", 0o750))
	require.NoError(t, fsys.WriteFileAtomic("/repo/index/abandoned.lock", []byte("dead-process"), 0o640))

	// The fake filesystem stamps ModTime at write time, which is "now" for
	// this test, so a one-nanosecond StaleAfter threshold treats it as
	// stale immediately (a zero StaleAfter would disable reaping).
	l, err := lock.Acquire(fsys, nil, "/repo/index", time.Second, lock.StaleAfter(time.Nanosecond))
	require.NoError(t, err)
	require.NotNil(t, l)

	entries, err := fsys.ReadDir("/repo/index")
	require.NoError(t, err)
	require.Len(t, entries, 1) // only the new lock remains
}

func Test_WithLock_Releases_After_Function_Returns(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()

	ran := false

	err := lock.WithLock(fsys, nil, "/repo/index", time.Second, func() error {
		ran = true

		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)

	entries, err := fsys.ReadDir("/repo/index")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func Test_WithLock_Releases_Even_When_Function_Errors(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()
	errBoom := errors.New("boom")

	err := lock.WithLock(fsys, nil, "/repo/index", time.Second, func() error {
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	entries, readErr := fsys.ReadDir("/repo/index")
	require.NoError(t, readErr)
	require.Empty(t, entries)
}

// Test_Concurrent_Acquire_Serializes_Access drives many goroutines
// attempting to acquire the same directory lock and increment a shared
// counter while holding it, verifying the protocol actually excludes
// concurrent holders rather than just happening to work.
func Test_Concurrent_Acquire_Serializes_Access(t *testing.T) {
	t.Parallel()

	fsys := fs.NewFake()

	const workers = 8

	var (
		counter   int64
		maxInside int64
		insideNow int64
		wg        sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			l, err := lock.Acquire(fsys, nil, "/repo/index", 5*time.Second, 0)
			if err != nil {
				return
			}

			n := atomic.AddInt64(&insideNow, 1)
			for {
				old := atomic.LoadInt64(&maxInside)
				if n <= old || atomic.CompareAndSwapInt64(&maxInside, old, n) {
					break
				}
			}

			atomic.AddInt64(&counter, 1)
			atomic.AddInt64(&insideNow, -1)

			l.Release()
		}()
	}

	wg.Wait()

	require.Equal(t, int64(workers), counter)
	require.Equal(t, int64(1), maxInside, "more than one goroutine held the lock concurrently")
}
