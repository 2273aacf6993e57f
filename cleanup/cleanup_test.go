package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/deimos-go/deimos/filelock"
	"github.com/deimos-go/deimos/state"
)

func makeContainer(t *testing.T, root, id string, withExit, withRuntime bool) {
	s := state.OpenByContainerID(root, id)
	if withRuntime {
		s.SetExecutorID("e-" + id)
	}
	require.NoError(t, s.Push())
	if withExit {
		require.NoError(t, s.SetExit(0))
	}
}

func TestDirsFiltersByTimestampAndExitState(t *testing.T) {
	root := t.TempDir()
	makeContainer(t, root, "old-exited", true, false)
	time.Sleep(1100 * time.Millisecond) // second-precision index needs real separation
	cutoff := time.Now()
	time.Sleep(1100 * time.Millisecond)
	makeContainer(t, root, "new-running", false, false)

	c := New(root, false, zerolog.Nop())

	exited, err := c.Dirs(cutoff, Exited)
	require.NoError(t, err)
	require.Len(t, exited, 1)

	notExited, err := c.Dirs(time.Now().Add(time.Hour), NotExited)
	require.NoError(t, err)
	require.Len(t, notExited, 1)

	any, err := c.Dirs(time.Now().Add(time.Hour), Any)
	require.NoError(t, err)
	require.Len(t, any, 2)
}

func TestRemoveDeletesStateAndReverseIndex(t *testing.T) {
	root := t.TempDir()
	s := state.OpenByContainerID(root, "c1")
	s.SetExecutorID("e1")
	s.Push() // no runtime id yet

	// Give it a runtime id via a second Push call to create the reverse index.
	require.NoError(t, os.WriteFile(filepath.Join(root, "mesos", "c1", "cid"), []byte("r1\n"), 0644))
	s2 := state.OpenByContainerID(root, "c1")
	_, err := s2.CID(true)
	require.NoError(t, err)
	require.NoError(t, s2.Push())
	_, err = os.Lstat(filepath.Join(root, "docker", "r1"))
	require.NoError(t, err)

	require.NoError(t, s.SetExit(0))

	c := New(root, false, zerolog.Nop())
	failures, err := c.Remove(context.Background(), time.Now().Add(time.Hour), Exited)
	require.NoError(t, err)
	require.Equal(t, 0, failures)

	_, statErr := os.Stat(filepath.Join(root, "mesos", "c1"))
	require.True(t, os.IsNotExist(statErr))
	_, statErr = os.Lstat(filepath.Join(root, "docker", "r1"))
	require.True(t, os.IsNotExist(statErr))
}

func TestRemoveIsOptimisticWhenLockHeld(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(root, 0755))

	c := New(root, true, zerolog.Nop())
	registry := filelock.NewRegistry()
	lk, err := registry.Acquire(context.Background(), c.lockPath(), filelock.Exclusive, 0)
	require.NoError(t, err)
	defer lk.Release()

	c.registry = filelock.NewRegistry() // independent "process" attempting the same lock file
	failures, err := c.Remove(context.Background(), time.Now(), Any)
	require.NoError(t, err)
	require.Equal(t, 0, failures)
}

func TestRemoveFailsNonOptimisticallyWhenLockHeld(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(root, 0755))

	c := New(root, false, zerolog.Nop())
	registry := filelock.NewRegistry()
	lk, err := registry.Acquire(context.Background(), c.lockPath(), filelock.Exclusive, 0)
	require.NoError(t, err)
	defer lk.Release()

	c.registry = filelock.NewRegistry()
	_, err = c.Remove(context.Background(), time.Now(), Any)
	require.ErrorIs(t, err, ErrAlreadyRunning)
}
