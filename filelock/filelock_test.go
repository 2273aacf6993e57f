package filelock

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tempLockPath(t *testing.T) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "lock", "launch")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	return path
}

// Two Registry instances stand in for two independent invocations of
// the adapter (each real OS process owns exactly one Registry).

func TestExclusiveThenNonBlockingFailsAcrossInvocations(t *testing.T) {
	path := tempLockPath(t)

	r1, r2 := NewRegistry(), NewRegistry()
	l1, err := r1.Acquire(context.Background(), path, Exclusive, 0)
	require.NoError(t, err)
	defer l1.Release()

	_, err = r2.Acquire(context.Background(), path, Exclusive, 0)
	require.Error(t, err)
	var locked *Locked
	require.ErrorAs(t, err, &locked)
}

func TestSharedAllowsMultipleReadersAcrossInvocations(t *testing.T) {
	path := tempLockPath(t)

	r1, r2 := NewRegistry(), NewRegistry()
	l1, err := r1.Acquire(context.Background(), path, Shared, 0)
	require.NoError(t, err)
	defer l1.Release()

	l2, err := r2.Acquire(context.Background(), path, Shared, 0)
	require.NoError(t, err)
	defer l2.Release()
}

func TestTimeoutExpires(t *testing.T) {
	path := tempLockPath(t)

	r1, r2 := NewRegistry(), NewRegistry()
	l1, err := r1.Acquire(context.Background(), path, Exclusive, 0)
	require.NoError(t, err)
	defer l1.Release()

	start := time.Now()
	_, err = r2.Acquire(context.Background(), path, Exclusive, 200*time.Millisecond)
	require.Error(t, err)
	var timeout *Timeout
	require.ErrorAs(t, err, &timeout)
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestReleaseUnblocksWaiter(t *testing.T) {
	path := tempLockPath(t)

	r1, r2 := NewRegistry(), NewRegistry()
	l1, err := r1.Acquire(context.Background(), path, Exclusive, 0)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		l2, err := r2.Acquire(context.Background(), path, Exclusive, 2*time.Second)
		if err == nil {
			l2.Release()
		}
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, l1.Release())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired lock after release")
	}
}

func TestRegistryDedupesHandleForSameProcess(t *testing.T) {
	path := tempLockPath(t)

	r := NewRegistry()
	l1, err := r.Acquire(context.Background(), path, Exclusive, 0)
	require.NoError(t, err)
	defer l1.Release()

	// Re-entering the same lock from the same registry (i.e. the same
	// conceptual process/invocation) must not self-deadlock.
	l2, err := r.Acquire(context.Background(), path, Exclusive, 0)
	require.NoError(t, err)
	require.Equal(t, l1.Path(), l2.Path())
}
