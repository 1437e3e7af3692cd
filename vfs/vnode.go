package vfs

import (
	"sync"
	"sync/atomic"

	"weenos/defs"
	"weenos/mmobj"
)

// Stat is the result of a vnode stat(2) call (spec.md §4.8, the
// [EXPANSION] stat surface in SPEC_FULL.md).
type Stat struct {
	Dev    uint
	Ino    int
	Mode   defs.FileMode
	Size   int
	Rdev   uint
	Nlink  int
	Blocks int
}

// Ops is the per-vnode operation vector (spec.md §4.8's vnode-operation
// mapping). Directory and regular-file vnodes each implement the whole
// interface; methods that don't apply to a given kind return ENOTDIR or
// EISDIR, matching spec.md's "capability record / variant type" guidance
// (DESIGN.md) rather than dispatching through inheritance.
type Ops interface {
	Lookup(name string) (ino int, err defs.Err_t)
	Create(name string) (ino int, err defs.Err_t)
	Mknod(name string, mode defs.FileMode, devid uint) (ino int, err defs.Err_t)
	Link(target *Vnode, name string) defs.Err_t
	Unlink(name string) defs.Err_t
	Mkdir(name string) (ino int, err defs.Err_t)
	Rmdir(name string) defs.Err_t
	Readdir(offset int) (name string, ino int, next int, err defs.Err_t)
	Read(off int, buf []byte) (int, defs.Err_t)
	Write(off int, buf []byte) (int, defs.Err_t)
	Stat() (Stat, defs.Err_t)
	Mmap() (mmobj.Object, defs.Err_t)
}

// FileSystem is the capability a vnode cache consumes to populate and
// drop vnodes (spec.md §4.7 vget/vput, §9 "unresolved in source" items
// read_vnode/delete_vnode/query_vnode, resolved in SPEC_FULL.md).
type FileSystem interface {
	// ID distinguishes this filesystem instance in the vnode cache key.
	ID() uintptr
	// ReadVnode populates a fresh Vnode for ino from on-disk state.
	ReadVnode(ino int) (*Vnode, defs.Err_t)
	// DeleteVnode reclaims the on-disk inode once the last reference
	// drops and QueryVnode reports zero on-disk links.
	DeleteVnode(v *Vnode) defs.Err_t
	// QueryVnode reports the on-disk link count for v.
	QueryVnode(v *Vnode) int
	// RootIno is the inode number of the filesystem's root directory.
	RootIno() int
}

// Vnode is the in-memory handle for one file-system object, unique per
// (fs, ino) while referenced (spec.md §3).
type Vnode struct {
	mu sync.Mutex

	FS    FileSystem
	Ino   int
	Mode  defs.FileMode
	Len   int
	Devid uint
	Ops   Ops
	Mmobj mmobj.Object

	refs int32
}

// Lock acquires the per-vnode mutex. Every Ops entry point below acquires
// it on entry and releases it on every exit path (spec.md §4.7).
func (v *Vnode) Lock() { v.mu.Lock() }

// Unlock releases the per-vnode mutex.
func (v *Vnode) Unlock() { v.mu.Unlock() }

// Ref bumps the reference count directly, used when a reference is
// duplicated outside the vget/vput path (e.g. proc.DoFork duplicating the
// cwd vnode, spec.md §4.6 step 3).
func (v *Vnode) Ref() { atomic.AddInt32(&v.refs, 1) }

// Refcount reports the current reference count, used by the testable
// invariant in spec.md §8 ("for every live vnode, refcount >= 1").
func (v *Vnode) Refcount() int32 { return atomic.LoadInt32(&v.refs) }

func (v *Vnode) Lookup(name string) (int, defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Ops.Lookup(name)
}

func (v *Vnode) Create(name string) (int, defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Ops.Create(name)
}

func (v *Vnode) Mknod(name string, mode defs.FileMode, devid uint) (int, defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Ops.Mknod(name, mode, devid)
}

func (v *Vnode) Mkdir(name string) (int, defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Ops.Mkdir(name)
}

func (v *Vnode) Rmdir(name string) defs.Err_t {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Ops.Rmdir(name)
}

// Link locks dir and target in ascending-inode-number order (spec.md §5's
// "directory operations that touch two vnodes ... acquire by ascending
// inode number") before creating the new directory entry.
func Link(dir, target *Vnode, name string) defs.Err_t {
	first, second := dir, target
	if target.Ino < dir.Ino {
		first, second = target, dir
	}
	first.mu.Lock()
	if second != first {
		second.mu.Lock()
		defer second.mu.Unlock()
	}
	defer first.mu.Unlock()
	return dir.Ops.Link(target, name)
}

func (v *Vnode) Unlink(name string) defs.Err_t {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Ops.Unlink(name)
}

func (v *Vnode) Readdir(offset int) (string, int, int, defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Ops.Readdir(offset)
}

func (v *Vnode) Read(off int, buf []byte) (int, defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Ops.Read(off, buf)
}

func (v *Vnode) Write(off int, buf []byte) (int, defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	n, err := v.Ops.Write(off, buf)
	if err == 0 && off+n > v.Len {
		v.Len = off + n
	}
	return n, err
}

func (v *Vnode) Stat() (Stat, defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Ops.Stat()
}

func (v *Vnode) Mmap() (mmobj.Object, defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Ops.Mmap()
}
