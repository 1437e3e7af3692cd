// Package pcache implements the unified page cache described in spec.md
// §4.1: physical frames keyed by (memory-object, page-number), with
// pin/dirty/busy bookkeeping and a single fill in flight per key.
//
// It is grounded on the teacher's fs/blk.go (Bdev_block_t's mutex-guarded
// busy/evict lifecycle and the Disk_i capability pattern) and on
// hashtable/hashtable.go for the lookup structure, simplified to a single
// mutex-guarded map since the core does not need hashtable.go's lock-free
// bucket design (see DESIGN.md).
package pcache

import (
	"container/list"
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"weenos/defs"
	"weenos/kstat"
	"weenos/mem"
)

// Object is the subset of a memory object's operation vector the page
// cache needs to drive a fill/writeback. mmobj.Object implements this for
// every variant (anonymous, shadow, block-device, vnode).
type Object interface {
	// Fillpage populates frame's data for the given page number.
	Fillpage(pageno int, frame *Frame) defs.Err_t
	// Cleanpage writes a dirty frame back to its backing store, if any.
	Cleanpage(pageno int, frame *Frame) defs.Err_t
	// Dirtypage reserves backing storage for pageno (e.g. allocates a
	// disk block for a sparse region) before a frame there is dirtied.
	Dirtypage(pageno int) defs.Err_t
	// Key uniquely identifies the object for the lifetime of the cache.
	Key() uintptr
}

// Frame is one physical page resident in the page cache, uniquely
// identified by (Obj, Pageno) — spec.md §3.
type Frame struct {
	mu sync.Mutex

	Obj    Object
	Pageno int

	Pa   mem.Pa_t
	Data *mem.Page

	pin   int
	dirty bool
	busy  bool
	ready chan struct{}

	elem *list.Element // position in the cache's unpinned-clean LRU list
}

// Pin increments the frame's pin count, preventing eviction.
func (f *Frame) Pin() {
	f.mu.Lock()
	f.pin++
	f.mu.Unlock()
}

// Unpin decrements the pin count.
func (f *Frame) Unpin() {
	f.mu.Lock()
	if f.pin == 0 {
		panic("unpin of unpinned frame")
	}
	f.pin--
	f.mu.Unlock()
}

func (f *Frame) pinned() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pin > 0
}

func (f *Frame) isDirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

type key struct {
	obj    uintptr
	pageno int
}

// Cache is the process-wide (in this core, frame allocator-wide) page
// cache: a single lookup table plus an LRU of unpinned clean frames for
// eviction, and a bounded pool of concurrent fills.
type Cache struct {
	frames mem.Frame_i

	mu     sync.Mutex
	lookup map[key]*Frame
	lru    *list.List // front = least-recently-unpinned-clean

	capacity int
	fillSem  *semaphore.Weighted

	// Pressure is notified whenever an eviction is attempted and the
	// cache is both full and has nothing unpinned-clean to evict —
	// adapted from the teacher's oommsg package (DESIGN.md).
	Pressure chan int
}

// NewCache constructs a page cache backed by the given frame allocator,
// with room for capacity resident frames before eviction is attempted.
func NewCache(frames mem.Frame_i, capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1 << 20
	}
	return &Cache{
		frames:   frames,
		lookup:   make(map[key]*Frame),
		lru:      list.New(),
		capacity: capacity,
		fillSem:  semaphore.NewWeighted(64),
		Pressure: make(chan int, 1),
	}
}

// Get returns the resident frame for (obj, pageno), filling it via
// obj.Fillpage on a miss. At most one fill is in flight per key;
// concurrent callers on a missing key block on the frame's busy state.
func (c *Cache) Get(obj Object, pageno int) (*Frame, defs.Err_t) {
	k := key{obj.Key(), pageno}

	for {
		c.mu.Lock()
		f, ok := c.lookup[k]
		if ok {
			f.mu.Lock()
			if f.busy {
				waitc := f.ready
				f.mu.Unlock()
				c.mu.Unlock()
				<-waitc
				continue
			}
			if f.elem != nil {
				c.lru.Remove(f.elem)
				f.elem = nil
			}
			f.mu.Unlock()
			c.mu.Unlock()
			kstat.Global.CacheHits.Inc()
			return f, 0
		}

		kstat.Global.CacheMisses.Inc()
		// Miss: reserve the slot as busy before dropping the cache lock,
		// so concurrent Get calls on the same key block on f.ready
		// instead of on the cache-wide mutex.
		f = &Frame{busy: true, ready: make(chan struct{})}
		c.lookup[k] = f
		c.mu.Unlock()

		if err := c.fill(obj, pageno, f); err != 0 {
			c.mu.Lock()
			delete(c.lookup, k)
			c.mu.Unlock()
			close(f.ready)
			return nil, err
		}

		f.mu.Lock()
		f.busy = false
		f.mu.Unlock()
		close(f.ready)
		return f, 0
	}
}

func (c *Cache) fill(obj Object, pageno int, f *Frame) defs.Err_t {
	ctx := context.Background()
	if err := c.fillSem.Acquire(ctx, 1); err != nil {
		return -defs.ENOMEM
	}
	defer c.fillSem.Release(1)

	c.evictIfNeeded()

	pa, pg, ok := c.frames.Alloc()
	if !ok {
		return -defs.ENOMEM
	}
	f.Pa = pa
	f.Data = pg
	f.Obj = obj
	f.Pageno = pageno
	return obj.Fillpage(pageno, f)
}

// evictIfNeeded drops the least-recently-unpinned-clean frame when the
// cache is at capacity. Policy is intentionally simple (spec.md §4.1
// leaves it unspecified beyond "unpinned clean first"); see SPEC_FULL.md.
func (c *Cache) evictIfNeeded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lookup) < c.capacity {
		return
	}
	e := c.lru.Front()
	if e == nil {
		select {
		case c.Pressure <- len(c.lookup):
		default:
		}
		return
	}
	victim := e.Value.(*Frame)
	c.lru.Remove(e)
	victim.elem = nil
	delete(c.lookup, key{victim.Obj.Key(), victim.Pageno})
	c.frames.Free(victim.Pa)
	kstat.Global.CacheEvicts.Inc()
}

// release is called once the last pin on a frame drops; if the frame is
// clean it becomes eligible for eviction (added to the LRU tail).
func (c *Cache) release(f *Frame) {
	if f.pinned() || f.isDirty() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if f.elem == nil {
		f.elem = c.lru.PushBack(f)
	}
}

// Dirty marks a frame dirty and invokes obj.Dirtypage so the backing store
// can reserve space (spec.md §4.1).
func (c *Cache) Dirty(f *Frame) defs.Err_t {
	if err := f.Obj.Dirtypage(f.Pageno); err != 0 {
		return err
	}
	f.mu.Lock()
	f.dirty = true
	f.mu.Unlock()
	return 0
}

// Clean writes a dirty frame back via obj.Cleanpage and clears the dirty
// bit (spec.md §4.1). It is a no-op on a clean frame.
func (c *Cache) Clean(f *Frame) defs.Err_t {
	f.mu.Lock()
	dirty := f.dirty
	f.mu.Unlock()
	if !dirty {
		return 0
	}
	if err := f.Obj.Cleanpage(f.Pageno, f); err != 0 {
		return err
	}
	f.mu.Lock()
	f.dirty = false
	f.mu.Unlock()
	c.release(f)
	return 0
}

// Unpin decrements the frame's pin count and, if it dropped to zero and
// the frame is clean, makes it eligible for eviction.
func (c *Cache) Unpin(f *Frame) {
	f.Unpin()
	c.release(f)
}

// SyncDirty writes back every currently-dirty frame belonging to obj,
// fanning the Cleanpage calls out across goroutines and returning the
// first error encountered — the concurrent counterpart of the teacher's
// synchronous Bdev_block_t.Write. s5fs.FS.Unmount uses SyncAll instead.
func (c *Cache) SyncDirty(obj Object) error {
	c.mu.Lock()
	var dirty []*Frame
	for _, f := range c.lookup {
		if f.Obj.Key() == obj.Key() && f.isDirty() {
			dirty = append(dirty, f)
		}
	}
	c.mu.Unlock()

	g, _ := errgroup.WithContext(context.Background())
	for _, f := range dirty {
		f := f
		g.Go(func() error {
			if err := c.Clean(f); err != 0 {
				return cacheErr{err}
			}
			return nil
		})
	}
	return g.Wait()
}

// SyncAll writes back every dirty frame in the cache, regardless of
// owning object, fanning the Cleanpage calls out the same way SyncDirty
// does — used by s5fs.FS.Unmount to flush an entire filesystem's pages in
// one call.
func (c *Cache) SyncAll() error {
	c.mu.Lock()
	var dirty []*Frame
	for _, f := range c.lookup {
		if f.isDirty() {
			dirty = append(dirty, f)
		}
	}
	c.mu.Unlock()

	g, _ := errgroup.WithContext(context.Background())
	for _, f := range dirty {
		f := f
		g.Go(func() error {
			if err := c.Clean(f); err != 0 {
				return cacheErr{err}
			}
			return nil
		})
	}
	return g.Wait()
}

type cacheErr struct{ e defs.Err_t }

func (c cacheErr) Error() string { return c.e.String() }

// Lookup reports the resident frame for (obj, pageno) without faulting it
// in, used by the testable invariant in spec.md §8
// ("obj.lookup(frame.pageno) = frame").
func (c *Cache) Lookup(obj Object, pageno int) (*Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.lookup[key{obj.Key(), pageno}]
	return f, ok
}

// EvictAll forcibly drops every resident frame belonging to obj, discarding
// dirty data without writing it back. Used when the object's identity is
// about to be retired (s5fs.FS.DeleteVnode freeing an inode that may be
// reallocated to an unrelated file under the same number).
func (c *Cache) EvictAll(obj Object) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, f := range c.lookup {
		if k.obj != obj.Key() {
			continue
		}
		if f.elem != nil {
			c.lru.Remove(f.elem)
		}
		delete(c.lookup, k)
		c.frames.Free(f.Pa)
	}
}

// Evict forcibly drops a specific resident frame, discarding dirty data
// without writing it back. Unreferencing an mmobj (as vmmap_remove does)
// does not call it.
func (c *Cache) Evict(obj Object, pageno int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{obj.Key(), pageno}
	f, ok := c.lookup[k]
	if !ok {
		return
	}
	if f.elem != nil {
		c.lru.Remove(f.elem)
	}
	delete(c.lookup, k)
	c.frames.Free(f.Pa)
}
