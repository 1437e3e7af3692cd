// Package mmobj implements the polymorphic memory-object variants of
// spec.md §3/§4.2: anonymous, shadow (copy-on-write overlay), block-device,
// and vnode-backed objects, all sharing one pcache.Cache instance — the
// "unified page cache" spec.md describes.
//
// No teacher file implements a shadow chain (Biscuit COWs by marking PTEs,
// not by interposing objects); the shape here follows spec.md §4.2's table
// and §9's explicit guidance to model the chain as a linear list of owned
// boxes, while reusing the teacher's capability-interface idiom
// (Blockmem_i/Disk_i in fs/blk.go) for the operation vector.
package mmobj

import (
	"sync"
	"sync/atomic"

	"weenos/defs"
	"weenos/pcache"
)

var nextID uint64

func allocID() uintptr {
	return uintptr(atomic.AddUint64(&nextID, 1))
}

// Object is the common interface every mmobj variant implements: the
// pcache.Object operation vector plus reference counting and the
// lookup-without-creating walk spec.md's fault handler needs for reads.
type Object interface {
	pcache.Object
	Ref()
	Unref() int
	// Lookuppage returns the first resident (or freshly-faulted, at the
	// bottom) frame found walking the chain front-to-bottom, without
	// instantiating a page in any shadow along the way (spec.md §4.4
	// step 4). The returned frame is pinned; the caller must Unpin it.
	Lookuppage(pageno int) (*pcache.Frame, defs.Err_t)
}

// base holds the bookkeeping every variant shares.
type base struct {
	mu    sync.Mutex
	refs  int32
	id    uintptr
	cache *pcache.Cache
}

func newBase(cache *pcache.Cache) base {
	return base{refs: 1, id: allocID(), cache: cache}
}

func (b *base) Key() uintptr { return b.id }

func (b *base) Ref() {
	atomic.AddInt32(&b.refs, 1)
}

func (b *base) Unref() int {
	return int(atomic.AddInt32(&b.refs, -1))
}

// Anon is a zero-filled, unbacked memory object (spec.md §4.2 table). It
// is never shadowed below — it is always a bottom object.
type Anon struct {
	base
}

// NewAnon constructs a fresh anonymous object on the given shared cache.
func NewAnon(cache *pcache.Cache) *Anon {
	return &Anon{base: newBase(cache)}
}

func (a *Anon) Fillpage(pageno int, frame *pcache.Frame) defs.Err_t {
	for i := range frame.Data {
		frame.Data[i] = 0
	}
	return 0
}

func (a *Anon) Cleanpage(pageno int, frame *pcache.Frame) defs.Err_t { return 0 }
func (a *Anon) Dirtypage(pageno int) defs.Err_t                      { return 0 }

func (a *Anon) Lookuppage(pageno int) (*pcache.Frame, defs.Err_t) {
	f, err := a.cache.Get(a, pageno)
	if err != 0 {
		return nil, err
	}
	f.Pin()
	return f, 0
}

// BlockBacking is the device-facing half of a BlockDevObject: pages map
// 1:1 onto fixed-size device blocks.
type BlockBacking interface {
	ReadBlock(block int, dst []byte) defs.Err_t
	WriteBlock(block int, src []byte) defs.Err_t
}

// BlockDevObject's pages are 1:1 with device blocks (spec.md §4.2 table).
type BlockDevObject struct {
	base
	Dev BlockBacking
}

// NewBlockDevObject wraps a block device as a memory object.
func NewBlockDevObject(cache *pcache.Cache, dev BlockBacking) *BlockDevObject {
	return &BlockDevObject{base: newBase(cache), Dev: dev}
}

func (b *BlockDevObject) Fillpage(pageno int, frame *pcache.Frame) defs.Err_t {
	return b.Dev.ReadBlock(pageno, frame.Data[:])
}

func (b *BlockDevObject) Cleanpage(pageno int, frame *pcache.Frame) defs.Err_t {
	return b.Dev.WriteBlock(pageno, frame.Data[:])
}

func (b *BlockDevObject) Dirtypage(pageno int) defs.Err_t { return 0 }

func (b *BlockDevObject) Lookuppage(pageno int) (*pcache.Frame, defs.Err_t) {
	f, err := b.cache.Get(b, pageno)
	if err != 0 {
		return nil, err
	}
	f.Pin()
	return f, 0
}

// VnodeBacking is the file-system-facing half of a VnodeObject: fillpage/
// cleanpage/dirtypage delegate to the owning vnode's operations (spec.md
// §4.2 table, §4.8's s5fs_fillpage/cleanpage/dirtypage).
type VnodeBacking interface {
	Fillpage(pageno int, dst []byte) defs.Err_t
	Cleanpage(pageno int, src []byte) defs.Err_t
	Dirtypage(pageno int) defs.Err_t
}

// VnodeObject backs a regular file's page cache (spec.md §4.2 table).
type VnodeObject struct {
	base
	Vn VnodeBacking
}

// NewVnodeObject wraps a vnode's page operations as a memory object.
func NewVnodeObject(cache *pcache.Cache, vn VnodeBacking) *VnodeObject {
	return &VnodeObject{base: newBase(cache), Vn: vn}
}

func (v *VnodeObject) Fillpage(pageno int, frame *pcache.Frame) defs.Err_t {
	return v.Vn.Fillpage(pageno, frame.Data[:])
}

func (v *VnodeObject) Cleanpage(pageno int, frame *pcache.Frame) defs.Err_t {
	return v.Vn.Cleanpage(pageno, frame.Data[:])
}

func (v *VnodeObject) Dirtypage(pageno int) defs.Err_t {
	return v.Vn.Dirtypage(pageno)
}

func (v *VnodeObject) Lookuppage(pageno int) (*pcache.Frame, defs.Err_t) {
	f, err := v.cache.Get(v, pageno)
	if err != 0 {
		return nil, err
	}
	f.Pin()
	return f, 0
}

// Shadow overlays a shadowed object with locally-modified pages,
// implementing copy-on-write (spec.md §4.2, §9). The chain is a finite,
// acyclic list of owned boxes: each Shadow strongly references the object
// immediately below it; a cycle cannot be built because Shadowed is set
// once at construction and nothing below ever points back up.
type Shadow struct {
	base
	Shadowed Object
}

// NewShadow interposes a fresh shadow in front of shadowed, taking a
// reference on it.
func NewShadow(cache *pcache.Cache, shadowed Object) *Shadow {
	shadowed.Ref()
	return &Shadow{base: newBase(cache), Shadowed: shadowed}
}

// Fillpage implements the copy-on-write materialization described in
// spec.md §4.2: "look up page in self; if absent, copy from shadowed
// chain". The frame passed in is already reserved by the cache for this
// (Shadow, pageno) key; this only has to supply its bytes.
func (s *Shadow) Fillpage(pageno int, frame *pcache.Frame) defs.Err_t {
	src, err := s.Shadowed.Lookuppage(pageno)
	if err != 0 {
		return err
	}
	copy(frame.Data[:], src.Data[:])
	s.cache.Unpin(src)
	return 0
}

// Cleanpage is a no-op for shadows: dirty pages stay resident in the
// shadow rather than being written back anywhere (spec.md §4.2 table).
func (s *Shadow) Cleanpage(pageno int, frame *pcache.Frame) defs.Err_t { return 0 }
func (s *Shadow) Dirtypage(pageno int) defs.Err_t                     { return 0 }

// Lookuppage walks front-to-bottom: if this shadow already has a resident
// (already-faulted) copy of pageno, that copy is authoritative and is
// returned; otherwise the search continues into Shadowed without
// instantiating anything here, per spec.md §4.4 step 4.
func (s *Shadow) Lookuppage(pageno int) (*pcache.Frame, defs.Err_t) {
	if f, ok := s.cache.Lookup(s, pageno); ok {
		f.Pin()
		return f, 0
	}
	return s.Shadowed.Lookuppage(pageno)
}

// Unref drops this shadow's reference; when it reaches zero it releases
// its own reference on Shadowed, so dropping a chain unwinds from the
// front toward the bottom exactly once per link.
func (s *Shadow) Unref() int {
	n := s.base.Unref()
	if n == 0 {
		s.Shadowed.Unref()
	}
	return n
}

// Bottom walks to the non-shadow object terminating the chain, used by
// the testable invariant in spec.md §8 ("bottom exists and is unique").
func Bottom(o Object) Object {
	for {
		s, ok := o.(*Shadow)
		if !ok {
			return o
		}
		o = s.Shadowed
	}
}
