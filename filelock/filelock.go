// Package filelock implements the advisory whole-file locking protocol
// used to coordinate concurrent invocations of the adapter against the
// same container state directory.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Mode selects the lock discipline requested by a caller.
type Mode int

const (
	// Exclusive grants sole ownership of the lock.
	Exclusive Mode = iota
	// Shared allows any number of concurrent shared holders.
	Shared
)

// DefaultTimeout is used when a caller does not specify one.
const DefaultTimeout = 60 * time.Second

// retryDelay is how often a blocking acquisition attempt is retried
// against the underlying advisory lock while waiting for a timeout or
// a cancelled context.
const retryDelay = 25 * time.Millisecond

// Err is the base type for errors raised by this package.
type Err struct{ msg string }

func (e *Err) Error() string { return e.msg }

// Locked is returned by TryLock-style calls when the lock is held
// elsewhere and non-blocking semantics were requested.
type Locked struct{ *Err }

// Timeout is returned when a bounded blocking acquisition expires
// before the lock became available.
type Timeout struct{ *Err }

func newErr(format string, args ...interface{}) *Err {
	return &Err{msg: fmt.Sprintf(format, args...)}
}

// Registry is the cache of lock handles keyed by canonical path.
// Two acquisitions of the same lock file from two call sites sharing
// a Registry reuse a single underlying handle, so that a process can
// never deadlock against a lock it already holds. Modeling this as an
// explicit registry rather than module-global state lets a process
// hold locks for a single verb invocation without leaking state
// across tests; the adapter's CLI entrypoint keeps exactly one
// Registry for the lifetime of a verb invocation, via Default.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*flock.Flock
}

// NewRegistry returns an empty lock handle cache. Every real OS process
// running a single verb invocation owns exactly one of these; tests
// construct additional ones to simulate independent invocations
// contending for the same lock file.
func NewRegistry() *Registry {
	return &Registry{locks: map[string]*flock.Flock{}}
}

// Default is the registry used by the package-level Acquire helper.
var Default = NewRegistry()

func (r *Registry) handle(path string) (*flock.Flock, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve lock path %s: %w", path, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.locks[abs]
	if !ok {
		h = flock.New(abs)
		r.locks[abs] = h
	}
	return h, nil
}

// Lock is a held advisory lock on a single path.
type Lock struct {
	path string
	mode Mode
	h    *flock.Flock
}

// Path returns the absolute path this lock guards.
func (l *Lock) Path() string { return l.path }

// Acquire takes the named lock file in the given mode using the
// default, package-wide registry. See Registry.Acquire.
func Acquire(ctx context.Context, path string, mode Mode, timeout time.Duration) (*Lock, error) {
	return Default.Acquire(ctx, path, mode, timeout)
}

// Acquire takes the named lock file in the given mode.
//
// A timeout of zero requests non-blocking semantics: Acquire returns
// immediately with a *Locked error if the lock is unavailable. A
// negative timeout blocks indefinitely (subject to ctx cancellation).
// Any positive timeout blocks up to that duration before returning a
// *Timeout error.
//
// On exclusive acquisition the current timestamp is appended to the
// lock file, for diagnostics (matching the reference implementation).
func (r *Registry) Acquire(ctx context.Context, path string, mode Mode, timeout time.Duration) (*Lock, error) {
	h, err := r.handle(path)
	if err != nil {
		return nil, err
	}

	lock := &Lock{path: h.Path(), mode: mode, h: h}

	if timeout == 0 {
		ok, err := tryOnce(h, mode)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &Locked{newErr("lock %s unavailable (non-blocking)", lock.path)}
		}
		return finish(lock)
	}

	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ok, err := blockUntil(ctx, h, mode)
	if !ok && timeout > 0 && errors.Is(err, context.DeadlineExceeded) {
		return nil, &Timeout{newErr("lock %s not acquired within %s", lock.path, timeout)}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &Timeout{newErr("lock %s not acquired within %s", lock.path, timeout)}
	}
	return finish(lock)
}

func tryOnce(h *flock.Flock, mode Mode) (bool, error) {
	if mode == Exclusive {
		return h.TryLock()
	}
	return h.TryRLock()
}

func blockUntil(ctx context.Context, h *flock.Flock, mode Mode) (bool, error) {
	if mode == Exclusive {
		return h.TryLockContext(ctx, retryDelay)
	}
	return h.TryRLockContext(ctx, retryDelay)
}

func finish(l *Lock) (*Lock, error) {
	if l.mode == Exclusive {
		if err := stampExclusive(l.path); err != nil {
			return l, err
		}
	}
	return l, nil
}

// stampExclusive appends the current timestamp to the lock file for
// diagnostics, matching the original's "append iso() on exclusive
// acquire" behavior. It opens a separate file descriptor; the flock(2)
// advisory lock is held on the inode, not the descriptor, so this
// write does not race the lock itself.
func stampExclusive(path string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to stamp lock file %s: %w", path, err)
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, time.Now().UTC().Format(time.RFC3339))
	return err
}

// Release unconditionally releases the lock and closes its handle.
func (l *Lock) Release() error {
	return l.h.Unlock()
}

// FormatMode renders a mode the way the original logger did, e.g. "EX" or "SH".
func FormatMode(m Mode) string {
	if m == Exclusive {
		return "EX"
	}
	return "SH"
}
