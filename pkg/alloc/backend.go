package alloc

import (
	"io"
	"os"
	"sync"

	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/primitives"
)

// backend is the byte-level storage underneath the allocator: either an
// os.File opened in read-write mode (attach_file) or a growable in-memory
// buffer (attach_buffer). It mirrors the teacher's page.BaseFile split of
// "thing that owns raw I/O" from "thing that interprets pages", generalized
// here to arbitrary-size slab extents instead of fixed PageSize blocks,
// since node sizes vary.
//
// There is no real mmap: like the teacher, reads/writes go through
// ReadAt/WriteAt (or a slice index for the in-memory backend). The spec's
// "readers map the file and translate refs without locking" becomes "readers
// call ReadAt without holding the writer's lock" - Go's safe story for the
// same guarantee.
type backend interface {
	io.Closer
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Size() int64
	Truncate(size int64) error
	Sync() error
}

type fileBackend struct {
	mu   sync.RWMutex
	file *os.File
}

func openFileBackend(path primitives.Filepath) (*fileBackend, error) {
	f, err := os.OpenFile(path.String(), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, dberr.Wrap(err, dberr.FileAccess, "alloc.openFileBackend")
	}
	return &fileBackend{file: f}, nil
}

func (b *fileBackend) ReadAt(p []byte, off int64) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.file.ReadAt(p, off)
}

func (b *fileBackend) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.WriteAt(p, off)
}

func (b *fileBackend) Size() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	info, err := b.file.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

func (b *fileBackend) Truncate(size int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Truncate(size)
}

func (b *fileBackend) Sync() error {
	return b.file.Sync()
}

func (b *fileBackend) Close() error {
	return b.file.Close()
}

// memoryBackend is the attach_buffer backend: a growable byte slice, used
// by in-memory-only databases and by tests that want a DB without touching
// the filesystem.
type memoryBackend struct {
	mu  sync.RWMutex
	buf []byte
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{}
}

func (b *memoryBackend) ReadAt(p []byte, off int64) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if off < 0 || off > int64(len(b.buf)) {
		return 0, dberr.New(dberr.InvalidRef, "read past end of buffer")
	}
	n := copy(p, b.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *memoryBackend) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(b.buf)) {
		grown := make([]byte, end)
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[off:end], p)
	return len(p), nil
}

func (b *memoryBackend) Size() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.buf))
}

func (b *memoryBackend) Truncate(size int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if size <= int64(len(b.buf)) {
		b.buf = b.buf[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, b.buf)
	b.buf = grown
	return nil
}

func (b *memoryBackend) Sync() error { return nil }

func (b *memoryBackend) Close() error { return nil }
