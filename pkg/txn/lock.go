package txn

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/primitives"
)

// writeLockPollInterval is how often Lock retries LOCK_EX|LOCK_NB while
// waiting for a competing process to release the inter-process write lock.
// flock(2) has no native timeout, so a bounded poll is the idiomatic way to
// honor a caller's optional write-lock timeout, grounded on
// kubernetes-kubernetes's pkg/util/flock Acquire helper generalized from a
// blocking LOCK_EX to a pollable, context-cancellable one.
const writeLockPollInterval = 5 * time.Millisecond

// writeLock is the single-writer gate for the whole database. A file-backed
// DB takes a real flock(2) on a sibling ".lock" file so two processes opening
// the same database cannot both write; an in-memory DB has no path to lock
// against and falls back to a process-local gate that still serializes
// concurrent BeginWrite calls within this process.
type writeLock struct {
	fd       int
	fileLock bool
}

func newWriteLock(a *alloc.Allocator) (*writeLock, error) {
	path, ok := a.Path()
	if !ok {
		return &writeLock{fd: -1}, nil
	}
	lockPath := path.String() + ".lock"
	fd, err := unix.Open(lockPath, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0600)
	if err != nil {
		return nil, dberr.Wrap(err, dberr.FileAccess, "txn.newWriteLock")
	}
	return &writeLock{fd: fd, fileLock: true}, nil
}

// Lock blocks until the write lock is acquired or ctx is done, whichever
// comes first, honoring an optional write-lock timeout via context deadline.
func (l *writeLock) Lock(ctx context.Context) error {
	if !l.fileLock {
		return nil
	}
	for {
		err := unix.Flock(l.fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if err != unix.EWOULDBLOCK {
			return dberr.Wrap(err, dberr.FileAccess, "txn.writeLock.Lock")
		}
		select {
		case <-ctx.Done():
			return dberr.New(dberr.LockTimeout, "write-lock acquisition timed out")
		case <-time.After(writeLockPollInterval):
		}
	}
}

// Unlock releases the write lock.
func (l *writeLock) Unlock() error {
	if !l.fileLock {
		return nil
	}
	if err := unix.Flock(l.fd, unix.LOCK_UN); err != nil {
		return dberr.Wrap(err, dberr.FileAccess, "txn.writeLock.Unlock")
	}
	return nil
}

func (l *writeLock) Close() error {
	if !l.fileLock {
		return nil
	}
	return unix.Close(l.fd)
}

// lockPathFor mirrors newWriteLock's naming, exposed for tests that want to
// clean up the sidecar lock file after removing a temp database.
func lockPathFor(path primitives.Filepath) string {
	return path.String() + ".lock"
}
