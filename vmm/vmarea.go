// Package vmm implements the per-process address-space map (spec.md §3,
// §4.3), the page-fault algorithm (§4.4), and the mmap/munmap syscall
// bodies (§4.5). It is grounded on biscuit/src/vm/as.go's Vm_t — the
// Lock_pmap/Unlock_pmap discipline, Sys_pgfault, and Tlbshoot are the
// teacher's versions of the same three responsibilities, rebuilt here
// against shadow-chain memory objects instead of raw PTE-COW bits.
package vmm

import (
	"sort"
	"sync"

	"weenos/defs"
	"weenos/mem"
	"weenos/mmobj"
	"weenos/pcache"
)

// Area is one vma: a half-open page range within one address space plus
// its protection, sharing mode, backing object and starting offset
// (spec.md §3).
type Area struct {
	Start, End int // page numbers, half-open [Start, End)
	Prot       int // defs.PROT_* bits
	Shared     bool
	Obj        mmobj.Object
	Off        int // starting offset in pages into Obj
}

func (a *Area) npages() int { return a.End - a.Start }

// Map is the ordered, disjoint collection of areas comprising one
// process's address space (spec.md §3/§4.3).
type Map struct {
	mu    sync.Mutex
	areas []*Area
	Cache *pcache.Cache
	TLB   mem.TLB_i

	traceMu       sync.Mutex
	lastExecTrace string
}

// NewMap constructs an empty address-space map over the given shared page
// cache and TLB-shootdown primitive.
func NewMap(cache *pcache.Cache, tlb mem.TLB_i) *Map {
	return &Map{Cache: cache, TLB: tlb}
}

// LastExecTrace returns the GNU-syntax disassembly of the most recent
// instruction-fetch fault into a PROT_EXEC area, as recorded by Fault, or
// "" if none has occurred yet or the most recent one failed to decode.
func (m *Map) LastExecTrace() string {
	m.traceMu.Lock()
	defer m.traceMu.Unlock()
	return m.lastExecTrace
}

// Lookup returns the area containing pageno, if any.
func (m *Map) Lookup(pageno int) (*Area, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookupLocked(pageno)
}

func (m *Map) lookupLocked(pageno int) (*Area, bool) {
	for _, a := range m.areas {
		if pageno >= a.Start && pageno < a.End {
			return a, true
		}
	}
	return nil, false
}

// findHole locates a run of npages free pages within
// [USER_LOW_PAGE, USER_HIGH_PAGE), searching in the given direction.
func (m *Map) findHole(npages int, dir defs.Direction) (int, bool) {
	lo, hi := defs.USER_LOW_PAGE, defs.USER_HIGH_PAGE
	sorted := append([]*Area(nil), m.areas...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	type gap struct{ start, end int }
	var gaps []gap
	cursor := lo
	for _, a := range sorted {
		if a.Start > cursor {
			gaps = append(gaps, gap{cursor, a.Start})
		}
		if a.End > cursor {
			cursor = a.End
		}
	}
	if cursor < hi {
		gaps = append(gaps, gap{cursor, hi})
	}

	if dir == defs.DirHighToLow {
		for i := len(gaps) - 1; i >= 0; i-- {
			g := gaps[i]
			if g.end-g.start >= npages {
				return g.end - npages, true
			}
		}
		return 0, false
	}
	for _, g := range gaps {
		if g.end-g.start >= npages {
			return g.start, true
		}
	}
	return 0, false
}

// MapParams describes a vmmap_map request (spec.md §4.3).
type MapParams struct {
	Hint    int // page number hint; 0 means "pick a hole"
	NPages  int
	Prot    int
	Shared  bool
	Anon    bool
	Backing mmobj.Object // the vnode's (or other bottom) object; ignored if Anon
	Off     int          // starting offset in pages into Backing
	Dir     defs.Direction
}

// Map implements vmmap_map (spec.md §4.3): places a new area, constructing
// its memory object (fresh anonymous, or the vnode's object ref'd; shadow
// interposed for MAP_PRIVATE) and inserting it while keeping the area list
// sorted and disjoint.
func (m *Map) Map(p MapParams) (*Area, defs.Err_t) {
	if p.NPages <= 0 {
		return nil, -defs.EINVAL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var start int
	if p.Hint != 0 {
		if p.Hint < defs.USER_LOW_PAGE || p.Hint+p.NPages > defs.USER_HIGH_PAGE {
			return nil, -defs.EINVAL
		}
		start = p.Hint
		m.removeLocked(start, p.NPages)
	} else {
		h, ok := m.findHole(p.NPages, p.Dir)
		if !ok {
			return nil, -defs.ENOMEM
		}
		start = h
	}

	var bottom mmobj.Object
	if p.Anon {
		bottom = mmobj.NewAnon(m.Cache)
	} else {
		bottom = p.Backing
	}

	var obj mmobj.Object
	if p.Shared {
		obj = bottom
	} else {
		obj = mmobj.NewShadow(m.Cache, bottom)
	}
	obj.Ref() // this area's one citation of obj (spec.md §4.3 invariant)

	area := &Area{Start: start, End: start + p.NPages, Prot: p.Prot, Shared: p.Shared, Obj: obj, Off: p.Off}
	m.insertLocked(area)
	return area, 0
}

func (m *Map) insertLocked(area *Area) {
	i := sort.Search(len(m.areas), func(i int) bool { return m.areas[i].Start >= area.Start })
	m.areas = append(m.areas, nil)
	copy(m.areas[i+1:], m.areas[i:])
	m.areas[i] = area
}

// Remove implements vmmap_remove (spec.md §4.3): for every overlapping
// area, split/truncate/delete so the exact range becomes unmapped, and
// unref the affected objects. The caller is responsible for the TLB
// flush (DoMunmap does this).
func (m *Map) Remove(start, npages int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(start, npages)
}

func (m *Map) removeLocked(start, npages int) {
	end := start + npages
	kept := make([]*Area, 0, len(m.areas))
	for _, a := range m.areas {
		if a.End <= start || a.Start >= end {
			kept = append(kept, a)
			continue
		}
		if a.Start < start {
			left := &Area{Start: a.Start, End: start, Prot: a.Prot, Shared: a.Shared, Obj: a.Obj, Off: a.Off}
			left.Obj.Ref()
			kept = append(kept, left)
		}
		if a.End > end {
			right := &Area{Start: end, End: a.End, Prot: a.Prot, Shared: a.Shared, Obj: a.Obj, Off: a.Off + (end - a.Start)}
			right.Obj.Ref()
			kept = append(kept, right)
		}
		a.Obj.Unref()
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	m.areas = kept
}

// Clone implements vmmap_clone (spec.md §4.3): a deep copy of the vma
// list, each vma's object ref-count incremented for the new citation.
// Shadow interposition for fork is the caller's job (proc.DoFork), not
// this method's.
func (m *Map) Clone() *Map {
	m.mu.Lock()
	defer m.mu.Unlock()
	dst := &Map{Cache: m.Cache, TLB: m.TLB}
	for _, a := range m.areas {
		a.Obj.Ref()
		na := &Area{Start: a.Start, End: a.End, Prot: a.Prot, Shared: a.Shared, Obj: a.Obj, Off: a.Off}
		dst.areas = append(dst.areas, na)
	}
	return dst
}

// Areas returns a snapshot of the current area list, ordered by Start.
func (m *Map) Areas() []*Area {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Area(nil), m.areas...)
}

// ReplaceObj swaps area.Obj for a new object, adjusting reference counts
// so the "exactly one citation" invariant holds across the swap — used by
// proc.DoFork to interpose a fresh shadow in front of a private area's
// current object.
func (m *Map) ReplaceObj(area *Area, next mmobj.Object) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next.Ref()
	area.Obj.Unref()
	area.Obj = next
}
