package s5fs

import (
	"weenos/defs"
	"weenos/mmobj"
	"weenos/vfs"
)

// DirOps implements vfs.Ops for a directory inode (spec.md §4.8). It
// embeds node for the shared read/write/stat plumbing and adds a one-entry
// last-lookup cache (the [EXPANSION] directory-entry cache in
// SPEC_FULL.md), valid for the lifetime of the in-memory DirOps and
// invalidated on every mutating operation. It needs no lock of its own:
// every entry point is reached through vfs.Vnode with the vnode's mutex
// already held, which serializes access to a given DirOps the same way.
type DirOps struct {
	node

	haveLast bool
	lastName string
	lastIno  int
}

func (d *DirOps) invalidateCache() { d.haveLast = false }

// Lookup implements s5_find_dirent's vfs-facing half (spec.md §4.8).
func (d *DirOps) Lookup(name string) (int, defs.Err_t) {
	if d.haveLast && d.lastName == name {
		return d.lastIno, 0
	}
	ino, err := d.findDirent(name)
	if err == 0 {
		d.haveLast, d.lastName, d.lastIno = true, name, ino
	}
	return ino, err
}

// Create implements s5fs file creation: allocate a regular-file inode and
// link it into this directory.
func (d *DirOps) Create(name string) (int, defs.Err_t) {
	name, err := normalizeName(name)
	if err != 0 {
		return 0, err
	}
	if _, err := d.findDirent(name); err == 0 {
		return 0, -defs.EEXIST
	}
	ino, err := d.fs.allocInode(defs.ModeReg, 0)
	if err != 0 {
		return 0, err
	}
	if err := d.linkDirent(ino, name); err != 0 {
		d.fs.freeInode(ino)
		return 0, err
	}
	d.invalidateCache()
	return ino, 0
}

// Mknod creates a device special file.
func (d *DirOps) Mknod(name string, mode defs.FileMode, devid uint) (int, defs.Err_t) {
	if mode != defs.ModeChr && mode != defs.ModeBlk {
		return 0, -defs.EINVAL
	}
	name, err := normalizeName(name)
	if err != 0 {
		return 0, err
	}
	if _, err := d.findDirent(name); err == 0 {
		return 0, -defs.EEXIST
	}
	ino, err := d.fs.allocInode(mode, devid)
	if err != 0 {
		return 0, err
	}
	if err := d.linkDirent(ino, name); err != 0 {
		d.fs.freeInode(ino)
		return 0, err
	}
	d.invalidateCache()
	return ino, 0
}

// Link implements s5_link for hard links: this core does not support
// linking directories (spec.md §4.8 names it for regular files only).
func (d *DirOps) Link(target *vfs.Vnode, name string) defs.Err_t {
	if target.Mode == defs.ModeDir {
		return -defs.EINVAL
	}
	name, err := normalizeName(name)
	if err != 0 {
		return err
	}
	if _, err := d.findDirent(name); err == 0 {
		return -defs.EEXIST
	}
	if err := d.linkDirent(target.Ino, name); err != 0 {
		return err
	}
	d.invalidateCache()
	return 0
}

// Unlink implements s5_remove_dirent for non-directory entries.
func (d *DirOps) Unlink(name string) defs.Err_t {
	name, err := normalizeName(name)
	if err != 0 {
		return err
	}
	ino, err := d.findDirent(name)
	if err != 0 {
		return err
	}
	nd, err := d.fs.readInode(ino)
	if err != 0 {
		return err
	}
	if nd.Type == defs.ModeDir {
		return -defs.EISDIR
	}
	if err := d.removeDirent(name); err != 0 {
		return err
	}
	d.invalidateCache()
	return 0
}

// Mkdir implements s5fs directory creation (spec.md §4.8): allocate the new
// directory's inode, link it
// into the parent (parent unaffected, new dir's count -> 1), write "."
// without touching any link count, then link ".." back to the parent
// (parent's count -> +1).
func (d *DirOps) Mkdir(name string) (int, defs.Err_t) {
	name, err := normalizeName(name)
	if err != 0 {
		return 0, err
	}
	if _, err := d.findDirent(name); err == 0 {
		return 0, -defs.EEXIST
	}

	ino, err := d.fs.allocInode(defs.ModeDir, 0)
	if err != 0 {
		return 0, err
	}
	if err := d.linkDirent(ino, name); err != 0 {
		d.fs.freeInode(ino)
		return 0, err
	}

	childVn := &vfs.Vnode{Ino: ino, Mode: defs.ModeDir, Mmobj: d.fs.mmobjFor(ino)}
	child := node{fs: d.fs, vn: childVn}
	if err := child.appendDirentRaw(".", ino); err != 0 {
		return 0, err
	}
	if err := child.linkDirent(d.vn.Ino, ".."); err != 0 {
		return 0, err
	}

	d.invalidateCache()
	return ino, 0
}

// Rmdir implements s5fs directory removal. Removing ".." from the target
// first drops this directory's own link count (the target's ".." entry
// points back at it); removing the target's entry from this directory then
// drops the target's count to zero, reclaiming it on the next vput.
func (d *DirOps) Rmdir(name string) defs.Err_t {
	if name == "." || name == ".." {
		return -defs.EINVAL
	}
	name, err := normalizeName(name)
	if err != 0 {
		return err
	}
	ino, err := d.findDirent(name)
	if err != 0 {
		return err
	}
	if ino == d.vn.Ino {
		return -defs.EINVAL
	}

	nd, err := d.fs.readInode(ino)
	if err != 0 {
		return err
	}
	if nd.Type != defs.ModeDir {
		return -defs.ENOTDIR
	}

	targetVn := &vfs.Vnode{Ino: ino, Mode: defs.ModeDir, Len: int(nd.Size), Mmobj: d.fs.mmobjFor(ino)}
	target := node{fs: d.fs, vn: targetVn}
	empty, err := target.dirEmpty()
	if err != 0 {
		return err
	}
	if !empty {
		return -defs.ENOTEMPTY
	}

	if err := target.removeDirent(".."); err != 0 {
		return err
	}
	if err := d.removeDirent(name); err != 0 {
		return err
	}
	d.invalidateCache()
	return 0
}

// Readdir walks directory content in DirentSize strides, skipping freed
// slots, returning the next occupied entry at or after offset.
func (d *DirOps) Readdir(offset int) (string, int, int, defs.Err_t) {
	buf := make([]byte, DirentSize)
	off := offset
	for off+DirentSize <= d.vn.Len {
		if _, err := d.readBytes(off, buf); err != 0 {
			return "", 0, 0, err
		}
		de := decodeDirent(buf)
		next := off + DirentSize
		if de.InodeNo != 0 {
			return de.Name, int(de.InodeNo), next, 0
		}
		off = next
	}
	return "", 0, 0, -defs.ENOENT
}

func (d *DirOps) Read(off int, buf []byte) (int, defs.Err_t)  { return 0, -defs.EISDIR }
func (d *DirOps) Write(off int, buf []byte) (int, defs.Err_t) { return 0, -defs.EISDIR }
func (d *DirOps) Mmap() (mmobj.Object, defs.Err_t)            { return nil, -defs.EISDIR }
