package vfs

import "sync"
import "sync/atomic"
import "weenos/defs"

// Cache is the global (fs, ino) -> Vnode table of spec.md §9 ("Vnode
// cache"): a hash table guarded by a short lock, guaranteeing at most one
// live Vnode per key.
type Cache struct {
	mu     sync.Mutex
	vnodes map[vkey]*Vnode
}

type vkey struct {
	fs  uintptr
	ino int
}

// NewCache constructs an empty vnode cache.
func NewCache() *Cache {
	return &Cache{vnodes: make(map[vkey]*Vnode)}
}

// Vget returns the unique in-memory vnode for (fs, ino), creating it via
// fs.ReadVnode on a miss, and increments its reference count (spec.md
// §4.7).
func (c *Cache) Vget(fs FileSystem, ino int) (*Vnode, defs.Err_t) {
	k := vkey{fs.ID(), ino}

	c.mu.Lock()
	if v, ok := c.vnodes[k]; ok {
		v.Ref()
		c.mu.Unlock()
		return v, 0
	}
	c.mu.Unlock()

	v, err := fs.ReadVnode(ino)
	if err != 0 {
		return nil, err
	}
	v.FS = fs
	v.Ino = ino
	v.refs = 1

	c.mu.Lock()
	if existing, ok := c.vnodes[k]; ok {
		// Lost the race to populate this key; the freshly read copy is
		// discarded in favor of the one already cached.
		existing.Ref()
		c.mu.Unlock()
		return existing, 0
	}
	c.vnodes[k] = v
	c.mu.Unlock()
	return v, 0
}

// Vput decrements v's reference count; on drop to zero it removes v from
// the cache and, if fs.QueryVnode reports no on-disk references either,
// calls fs.DeleteVnode outside the cache lock (spec.md §4.7, §9).
func (c *Cache) Vput(v *Vnode) {
	if atomic.AddInt32(&v.refs, -1) > 0 {
		return
	}

	c.mu.Lock()
	delete(c.vnodes, vkey{v.FS.ID(), v.Ino})
	c.mu.Unlock()

	if v.FS.QueryVnode(v) == 0 {
		v.FS.DeleteVnode(v)
	}
}

// Live reports the vnodes currently resident, used by the testable
// invariant in spec.md §8 ("exactly one vnode exists per (fs, ino)").
func (c *Cache) Live() []*Vnode {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Vnode, 0, len(c.vnodes))
	for _, v := range c.vnodes {
		out = append(out, v)
	}
	return out
}
