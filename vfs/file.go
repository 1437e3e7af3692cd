package vfs

import (
	"sync"
	"sync/atomic"

	"weenos/defs"
)

// File mode bits, grounded on the teacher's fd.FD_READ/FD_WRITE
// (biscuit/src/fd/fd.go) but expressed over an explicit open mode rather
// than descriptor permission bits, since S5FS also needs APPEND.
const (
	FileRead = 1 << iota
	FileWrite
	FileAppend
)

// File is an open-file description (spec.md §3): vnode, mode, seek
// position, reference count. Shared between descriptors created by dup
// and across fork, exactly like the teacher's Fd_t/Copyfd pair.
type File struct {
	mu   sync.Mutex
	Vn   *Vnode
	Mode int
	off  int64
	refs int32
}

// NewFile wraps vn as a freshly opened file description with one
// reference.
func NewFile(vn *Vnode, mode int) *File {
	return &File{Vn: vn, Mode: mode, refs: 1}
}

// Dup increments the file's reference count and returns the same File,
// the way dup(2) and fork(2) share one open-file description across
// descriptors (spec.md §3).
func (f *File) Dup() *File {
	atomic.AddInt32(&f.refs, 1)
	return f
}

// Close drops a reference; once it reaches zero the caller is responsible
// for releasing the vnode via Cache.Vput.
func (f *File) Close() (last bool) {
	return atomic.AddInt32(&f.refs, -1) == 0
}

// Read reads up to len(buf) bytes at the current offset and advances it.
func (f *File) Read(buf []byte) (int, defs.Err_t) {
	if f.Mode&FileRead == 0 {
		return 0, -defs.EACCES
	}
	f.mu.Lock()
	off := f.off
	f.mu.Unlock()
	n, err := f.Vn.Read(int(off), buf)
	if err != 0 {
		return 0, err
	}
	f.mu.Lock()
	f.off += int64(n)
	f.mu.Unlock()
	return n, 0
}

// Write writes buf at the current offset (or at EOF, for O_APPEND) and
// advances the offset.
func (f *File) Write(buf []byte) (int, defs.Err_t) {
	if f.Mode&FileWrite == 0 {
		return 0, -defs.EACCES
	}
	f.mu.Lock()
	off := f.off
	if f.Mode&FileAppend != 0 {
		off = int64(f.Vn.Len)
	}
	f.mu.Unlock()
	n, err := f.Vn.Write(int(off), buf)
	if err != 0 {
		return 0, err
	}
	f.mu.Lock()
	f.off = off + int64(n)
	f.mu.Unlock()
	return n, 0
}

// Seek repositions the file offset.
func (f *File) Seek(off int64, whence int) (int64, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch whence {
	case 0:
		f.off = off
	case 1:
		f.off += off
	case 2:
		f.off = int64(f.Vn.Len) + off
	default:
		return 0, -defs.EINVAL
	}
	if f.off < 0 {
		f.off = 0
		return 0, -defs.EINVAL
	}
	return f.off, 0
}
