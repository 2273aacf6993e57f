// Package cleanup removes state directories for containers that
// exited before a cutoff time.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/deimos-go/deimos/filelock"
	"github.com/deimos-go/deimos/state"
)

// ExitedFilter selects which containers Dirs returns.
type ExitedFilter int

const (
	Any ExitedFilter = iota
	Exited
	NotExited
)

// Cleanup removes stale container state directories under Root,
// coordinating with other invocations via a single global lock file
// (root/cleanup), matching the original's `Cleanup` struct.
type Cleanup struct {
	Root       string
	Optimistic bool
	Log        zerolog.Logger

	registry *filelock.Registry
}

// New returns a Cleanup using the default lock registry.
func New(root string, optimistic bool, log zerolog.Logger) *Cleanup {
	return &Cleanup{Root: root, Optimistic: optimistic, Log: log, registry: filelock.Default}
}

func (c *Cleanup) lockPath() string { return filepath.Join(c.Root, "cleanup") }

// ErrAlreadyRunning is returned (non-optimistic mode) or silently
// absorbed (optimistic mode, returning zero removed with no error)
// when another cleanup invocation already holds the global lock.
var ErrAlreadyRunning = errors.New("cleanup: lock unavailable, another cleanup is already running")

// Dirs lists start-time index entries older than before, optionally
// filtered by whether their container has exited. Entries are
// returned as absolute paths to the start-time symlinks themselves,
// in ascending timestamp order, matching the original's `dirs`
// generator (which walks `start-time/????-??-??T*.*Z` lexicographically,
// since the layout sorts the same as time).
func (c *Cleanup) Dirs(before time.Time, filter ExitedFilter) ([]string, error) {
	dir := filepath.Join(c.Root, "start-time")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	cutoff := state.FormatTimestamp(before)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []string
	for _, name := range names {
		if name >= cutoff {
			continue
		}
		link := filepath.Join(dir, name)
		if filter != Any {
			target, err := filepath.EvalSymlinks(link)
			if err != nil {
				c.Log.Warn().Str("entry", link).Err(err).Msg("could not resolve start-time entry")
				continue
			}
			_, statErr := os.Stat(filepath.Join(target, "exit"))
			hasExited := statErr == nil
			want := filter == Exited
			if hasExited != want {
				continue
			}
		}
		out = append(out, link)
	}
	return out, nil
}

// Remove deletes every directory Dirs(before, filter) names, along
// with each one's reverse index (docker/<runtime id>) and its own
// start-time link, serialized behind the global cleanup lock. It
// returns the number of entries that failed to remove, matching the
// original's error-count return (surfaced by the CLI as exit code 4
// when non-zero).
func (c *Cleanup) Remove(ctx context.Context, before time.Time, filter ExitedFilter) (failures int, err error) {
	registry := c.registry
	if registry == nil {
		registry = filelock.Default
	}
	if err := os.MkdirAll(c.Root, 0755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", c.Root, err)
	}

	lk, err := registry.Acquire(ctx, c.lockPath(), filelock.Exclusive, 0)
	if err != nil {
		var locked *filelock.Locked
		if errors.As(err, &locked) {
			if c.Optimistic {
				c.Log.Info().Msg("lock unavailable, cleanup already running")
				return 0, nil
			}
			c.Log.Error().Msg("lock unavailable, cleanup already running")
			return 0, ErrAlreadyRunning
		}
		return 0, err
	}
	defer lk.Release()

	dirs, err := c.Dirs(before, filter)
	if err != nil {
		return 0, err
	}

	for _, link := range dirs {
		if rmErr := c.removeOne(link); rmErr != nil {
			c.Log.Error().Str("entry", link).Err(rmErr).Msg("failed to remove container state")
			failures++
		}
	}
	if failures != 0 {
		c.Log.Error().Int("failures", failures).Msg("cleanup had failing directories")
	}
	return failures, nil
}

func (c *Cleanup) removeOne(link string) error {
	target, err := filepath.EvalSymlinks(link)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", link, err)
	}

	s, err := state.FromDirectory(target)
	if err != nil {
		return fmt.Errorf("failed to load state from %s: %w", target, err)
	}

	if cid, cidErr := s.CID(false); cidErr == nil && cid != "" {
		reverse := filepath.Join(c.Root, "docker", cid)
		if rmErr := os.RemoveAll(reverse); rmErr != nil {
			return fmt.Errorf("failed to remove reverse index %s: %w", reverse, rmErr)
		}
	}

	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("failed to remove %s: %w", target, err)
	}
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove start-time entry %s: %w", link, err)
	}
	return nil
}
