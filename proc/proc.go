package proc

import (
	"sync"

	"weenos/defs"
	"weenos/mem"
	"weenos/vfs"
	"weenos/vmm"
)

// Pid is a process identifier, unique within the lifetime of the core.
type Pid int64

// Proc is one process: its address-space map, file-descriptor table,
// current-working-directory vnode, thread set and accounting — the
// process-level state spec.md §4.6's fork and §4.7's open/close operate
// over. Grounded on the shape of the teacher's proc.go (not vendored into
// the examples pack in full, but named throughout fd.go/tinfo.go/accnt.go
// as the struct those pieces hang off of).
type Proc struct {
	mu sync.Mutex

	Pid  Pid
	Name string

	Vmmap *vmm.Map
	TLB   mem.TLB_i

	VC  *vfs.Cache
	fds [defs.NFILES]*vfs.File

	Cwd  *vfs.Vnode
	Root *vfs.Vnode

	threads map[Tid]*Thread
	nextTid Tid

	Accnt *Accnt

	parent   *Proc
	children map[Pid]*Proc
}

// New constructs a fresh, empty process rooted at root with cwd starting
// at root as well.
func New(pid Pid, name string, vmmap *vmm.Map, tlb mem.TLB_i, vc *vfs.Cache, root *vfs.Vnode) *Proc {
	root.Ref()
	return &Proc{
		Pid:      pid,
		Name:     name,
		Vmmap:    vmmap,
		TLB:      tlb,
		VC:       vc,
		Cwd:      root,
		Root:     root,
		threads:  make(map[Tid]*Thread),
		Accnt:    &Accnt{},
		children: make(map[Pid]*Proc),
	}
}

// AddThread registers t under the process's thread set.
func (p *Proc) AddThread(t *Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threads[t.Tid] = t
}

// Threads returns a snapshot of the process's live threads.
func (p *Proc) Threads() []*Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Thread, 0, len(p.threads))
	for _, t := range p.threads {
		out = append(out, t)
	}
	return out
}

// Reserve implements vfs.FdAllocator: find and mark busy the lowest free
// descriptor slot (spec.md §4.7 do_open's "reserve/release" discipline).
func (p *Proc) Reserve() (int, defs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, f := range p.fds {
		if f == nil {
			p.fds[i] = reservedMarker
			return i, 0
		}
	}
	return 0, -defs.EMFILE
}

// Release implements vfs.FdAllocator: free a reserved-but-unused slot
// after a failed open.
func (p *Proc) Release(slot int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fds[slot] = nil
}

// Install implements vfs.FdAllocator: bind a resolved File into a
// previously reserved slot.
func (p *Proc) Install(slot int, f *vfs.File) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fds[slot] = f
}

// reservedMarker occupies a slot between Reserve and Install/Release so a
// concurrent Reserve never double-allocates it; it is never handed back to
// a caller as a live *vfs.File.
var reservedMarker = &vfs.File{}

// Fd returns the live file installed at slot, or EBADF.
func (p *Proc) Fd(slot int) (*vfs.File, defs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot < 0 || slot >= len(p.fds) {
		return nil, -defs.EBADF
	}
	f := p.fds[slot]
	if f == nil || f == reservedMarker {
		return nil, -defs.EBADF
	}
	return f, 0
}

// CloseFd drops the caller's reference to the file installed at slot.
func (p *Proc) CloseFd(slot int) defs.Err_t {
	p.mu.Lock()
	f := p.fds[slot]
	if f == nil || f == reservedMarker {
		p.mu.Unlock()
		return -defs.EBADF
	}
	p.fds[slot] = nil
	p.mu.Unlock()
	if last := f.Close(); last {
		p.VC.Vput(f.Vn)
	}
	return 0
}

// dupFdTable duplicates every installed descriptor into a fresh table,
// bumping each File's reference count (spec.md §4.6 step: "duplicate fd
// table via File.Dup()").
func (p *Proc) dupFdTable() [defs.NFILES]*vfs.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out [defs.NFILES]*vfs.File
	for i, f := range p.fds {
		if f == nil || f == reservedMarker {
			continue
		}
		f.Dup()
		out[i] = f
	}
	return out
}
