// Package mem expresses the physical-frame and TLB primitives that
// spec.md §1 places out of scope (page_alloc, kmalloc, pt_map,
// tlb_flush_range) as small interfaces, plus a host-backed implementation
// good enough to drive the VM/VFS/S5FS core under `go test` — the same
// role the teacher's Page_i/Unpin_i interfaces play for Biscuit's VM code
// running over real physical memory.
package mem

import (
	"sync"
	"sync/atomic"

	"weenos/defs"
)

// Pa_t is an opaque physical-frame identifier. The core never interprets
// its bits; it is a capability handed back by Frame_i.Alloc.
type Pa_t uintptr

// Page is one physical page's worth of bytes.
type Page [defs.PGSIZE]byte

// Frame_i abstracts physical-page allocation and reference counting —
// the host-kernel analogue of page_alloc/kmalloc named in spec.md §1.
type Frame_i interface {
	// Alloc returns a zeroed page and its identifier.
	Alloc() (Pa_t, *Page, bool)
	// Free releases a page back to the allocator.
	Free(Pa_t)
	// Refup/Refdown maintain a reference count per frame; Refdown reports
	// whether the frame was freed.
	Refup(Pa_t)
	Refdown(Pa_t) bool
	// Deref returns the backing bytes for a previously allocated frame.
	Deref(Pa_t) *Page
}

// TLB_i abstracts tlb_flush_range, named but not implemented per spec.md
// §1. Real backends would shoot down the range on every CPU that has the
// owning pmap loaded; the host backend is a no-op counter used to assert
// that every PTE-narrowing operation calls it (spec.md §5 TLB coherence).
type TLB_i interface {
	FlushRange(startPage, npages int)
}

// Arena is a host-backed Frame_i: physical "frames" are just entries in a
// Go map guarded by a mutex, refcounted like Physmem_t in mem/mem.go of
// the teacher.
type Arena struct {
	mu    sync.Mutex
	pages map[Pa_t]*Page
	refs  map[Pa_t]int32
	next  Pa_t
}

// NewArena constructs an empty host-backed frame allocator.
func NewArena() *Arena {
	return &Arena{
		pages: make(map[Pa_t]*Page),
		refs:  make(map[Pa_t]int32),
		next:  1,
	}
}

func (a *Arena) Alloc() (Pa_t, *Page, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pa := a.next
	a.next++
	pg := &Page{}
	a.pages[pa] = pg
	a.refs[pa] = 1
	return pa, pg, true
}

func (a *Arena) Free(pa Pa_t) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pages, pa)
	delete(a.refs, pa)
}

func (a *Arena) Refup(pa Pa_t) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.refs[pa]; !ok {
		panic("refup of unknown frame")
	}
	a.refs[pa]++
}

func (a *Arena) Refdown(pa Pa_t) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.refs[pa]
	if !ok {
		panic("refdown of unknown frame")
	}
	c--
	if c < 0 {
		panic("negative refcount")
	}
	a.refs[pa] = c
	if c == 0 {
		delete(a.pages, pa)
		delete(a.refs, pa)
		return true
	}
	return false
}

func (a *Arena) Deref(pa Pa_t) *Page {
	a.mu.Lock()
	defer a.mu.Unlock()
	pg, ok := a.pages[pa]
	if !ok {
		panic("deref of unknown frame")
	}
	return pg
}

// CountingTLB is a TLB_i that records shootdown calls for assertions in
// tests; a real backend would broadcast invalidations to every CPU sharing
// the faulting pmap, as biscuit/src/vm/as.go's Tlbshoot does.
type CountingTLB struct {
	flushes int64
}

func (t *CountingTLB) FlushRange(startPage, npages int) {
	atomic.AddInt64(&t.flushes, 1)
}

// Flushes reports how many FlushRange calls have been observed.
func (t *CountingTLB) Flushes() int64 {
	return atomic.LoadInt64(&t.flushes)
}
