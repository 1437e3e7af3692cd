package vfs

import "weenos/defs"

// OpenNamev resolves path component-by-component from root or base
// (spec.md §4.7), dispatching through each directory's lookup. On the
// last component, O_CREAT causes a missing entry to be created instead of
// failing with ENOENT. The returned vnode holds one reference, owned by
// the caller.
func OpenNamev(cache *Cache, root, base *Vnode, path string, oflags int) (*Vnode, defs.Err_t) {
	p := Path(path)
	comps := p.Components()

	cur := base
	if p.IsAbsolute() || base == nil {
		cur = root
	}
	cur.Ref()

	if len(comps) == 0 {
		return cur, 0
	}

	for i, name := range comps {
		last := i == len(comps)-1

		if Isdot(name) {
			continue
		}
		if Isdotdot(name) {
			// ".." is just another directory entry from the S5FS side
			// (installed by mkdir); fall through to the normal lookup.
		}

		if cur.Mode != defs.ModeDir {
			cache.Vput(cur)
			return nil, -defs.ENOTDIR
		}

		ino, err := cur.Lookup(name)
		if err == -defs.ENOENT && last && oflags&defs.O_CREAT != 0 {
			ino, err = cur.Create(name)
		}
		if err != 0 {
			cache.Vput(cur)
			return nil, err
		}

		next, err := cache.Vget(cur.FS, ino)
		if err != 0 {
			cache.Vput(cur)
			return nil, err
		}
		cache.Vput(cur)
		cur = next
	}

	return cur, 0
}

// DoOpen implements do_open (spec.md §4.7): allocates a descriptor slot
// via reserve/release, resolves path, and installs a fresh File. The
// fd-table mechanics live in the caller (proc.Proc owns NFILES slots);
// DoOpen is parameterized over that allocator so vfs has no dependency on
// proc.
type FdAllocator interface {
	Reserve() (slot int, err defs.Err_t)
	Release(slot int)
	Install(slot int, f *File)
}

// DoOpen resolves path under oflags and installs the resulting File into
// a descriptor reserved from fds. On any failure after slot reservation,
// the slot is released and any resolved vnode is put back (spec.md §7
// partial-failure policy).
func DoOpen(cache *Cache, root, base *Vnode, fds FdAllocator, path string, oflags int) (int, defs.Err_t) {
	slot, err := fds.Reserve()
	if err != 0 {
		return 0, err
	}

	vn, err := OpenNamev(cache, root, base, path, oflags)
	if err != 0 {
		fds.Release(slot)
		return 0, err
	}

	if vn.Mode == defs.ModeDir && (oflags&defs.O_ACCMODE) != defs.O_RDONLY {
		cache.Vput(vn)
		fds.Release(slot)
		return 0, -defs.EISDIR
	}

	mode := 0
	switch oflags & defs.O_ACCMODE {
	case defs.O_RDONLY:
		mode = FileRead
	case defs.O_WRONLY:
		mode = FileWrite
	case defs.O_RDWR:
		mode = FileRead | FileWrite
	}
	if oflags&defs.O_APPEND != 0 {
		mode |= FileAppend
	}

	fds.Install(slot, NewFile(vn, mode))
	return slot, 0
}
