package vmm

import (
	"weenos/defs"
	"weenos/kstat"
	"weenos/mmobj"
	"weenos/pcache"
)

// Fault implements the page-fault algorithm of spec.md §4.4: look up the
// covering area, check protection, fault the page in (writing faults
// materialize a private copy in a MAP_PRIVATE area's topmost shadow via
// the page cache's ordinary miss path), and leave the frame pinned for
// the caller to install into the page table and then Unpin.
func (m *Map) Fault(pageno int, write bool) (*pcache.Frame, defs.Err_t) {
	kstat.Global.PageFaults.Inc()
	m.mu.Lock()
	area, ok := m.lookupLocked(pageno)
	m.mu.Unlock()
	if !ok {
		return nil, -defs.EFAULT
	}
	if write && area.Prot&defs.PROT_WRITE == 0 {
		return nil, -defs.EFAULT
	}

	off := area.Off + (pageno - area.Start)

	if !write {
		// Read fault: walk without creating (spec.md §4.4 step 4).
		f, err := area.Obj.Lookuppage(off)
		if err == 0 && area.Prot&defs.PROT_EXEC != 0 {
			m.traceFault(pageno, f)
		}
		return f, err
	}

	// Write fault into a shared mapping: the shared object is the direct
	// target, no copy-on-write is involved.
	if area.Shared {
		f, err := area.Obj.Lookuppage(off)
		if err != 0 {
			return nil, err
		}
		if derr := m.Cache.Dirty(f); derr != 0 {
			m.Cache.Unpin(f)
			return nil, derr
		}
		return f, 0
	}

	// Write fault into a private mapping: force a Get on the topmost
	// shadow so a private copy materializes there if one doesn't already
	// exist, then mark it dirty.
	kstat.Global.CowFaults.Inc()
	f, err := m.Cache.Get(area.Obj, off)
	if err != 0 {
		return nil, err
	}
	f.Pin()
	if derr := m.Cache.Dirty(f); derr != 0 {
		m.Cache.Unpin(f)
		return nil, derr
	}
	return f, 0
}

// traceFault records a best-effort disassembly of the fetched page's first
// instruction when an executable area is faulted in, for post-mortem
// debugging; a decode failure (e.g. the first bytes aren't a valid x86
// opcode) only drops the trace, never the fault.
func (m *Map) traceFault(pageno int, f *pcache.Frame) {
	trace, err := DisasmTrace(uint32(pageno)*defs.PGSIZE, f.Data[:])
	m.traceMu.Lock()
	defer m.traceMu.Unlock()
	if err != nil {
		m.lastExecTrace = ""
		return
	}
	m.lastExecTrace = trace
}

// DoMmapParams is the validated argument set for the mmap(2) body
// (spec.md §4.5).
type DoMmapParams struct {
	Addr    int // page-aligned byte address, used only with MAP_FIXED
	Length  int // bytes
	Prot    int
	Flags   int
	Backing mmobj.Object // non-nil for a file-backed mapping
	Off     int          // byte offset into Backing, must be page-aligned
}

// DoMmap validates and performs an mmap(2) call (spec.md §4.5): rejects
// nonsensical argument combinations, rounds the length up to whole pages,
// and places the area via vmmap_map.
func (m *Map) DoMmap(p DoMmapParams) (int, defs.Err_t) {
	kstat.Global.MmapCalls.Inc()
	if p.Length <= 0 {
		return 0, -defs.EINVAL
	}
	if p.Off%defs.PGSIZE != 0 {
		return 0, -defs.EINVAL
	}
	anon := p.Flags&defs.MAP_ANON != 0
	shared := p.Flags&defs.MAP_SHARED != 0
	private := p.Flags&defs.MAP_PRIVATE != 0
	if shared == private {
		return 0, -defs.EINVAL
	}
	if !anon && p.Backing == nil {
		return 0, -defs.EINVAL
	}
	if anon && p.Backing != nil {
		return 0, -defs.EINVAL
	}

	npages := (p.Length + defs.PGOFFSET) / defs.PGSIZE
	hint := 0
	if p.Flags&defs.MAP_FIXED != 0 {
		if p.Addr == 0 || p.Addr%defs.PGSIZE != 0 {
			return 0, -defs.EINVAL
		}
		hint = p.Addr / defs.PGSIZE
	}

	area, err := m.Map(MapParams{
		Hint:    hint,
		NPages:  npages,
		Prot:    p.Prot,
		Shared:  shared,
		Anon:    anon,
		Backing: p.Backing,
		Off:     p.Off / defs.PGSIZE,
		Dir:     defs.DirHighToLow,
	})
	if err != 0 {
		return 0, err
	}
	return area.Start * defs.PGSIZE, 0
}

// DoMunmap implements munmap(2) (spec.md §4.5): unmap the exact range and
// shoot down the TLB for it. Unmapping a range with no mappings in it is
// not an error (POSIX munmap is idempotent).
func (m *Map) DoMunmap(addr, length int) defs.Err_t {
	kstat.Global.MunmapCalls.Inc()
	if length <= 0 || addr%defs.PGSIZE != 0 {
		return -defs.EINVAL
	}
	start := addr / defs.PGSIZE
	npages := (length + defs.PGOFFSET) / defs.PGSIZE
	m.Remove(start, npages)
	if m.TLB != nil {
		m.TLB.FlushRange(start, npages)
	}
	return 0
}
