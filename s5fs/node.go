package s5fs

import (
	"weenos/defs"
	"weenos/kstat"
	"weenos/vfs"
)

// node is the bookkeeping shared by every vnode-operation variant (dir,
// regular file, device): a back-reference to the owning filesystem and to
// the vfs.Vnode carrying its mmobj. Stat and the read/write/dirent helpers
// are identical across variants — only the structural operations (lookup,
// create, read, write, ...) differ by kind — so they're promoted from
// here into DirOps/FileOps/DevOps by embedding. The page hooks
// (Fillpage/Cleanpage/Dirtypage) live on pageBacking, not here.
type node struct {
	fs *FS
	vn *vfs.Vnode
}

// readBytes gathers data by page-by-page traversal of the vnode's mmobj,
// copying through the shared page cache (spec.md §4.8 s5_read_file),
// clamped to the vnode's current length.
func (n *node) readBytes(off int, buf []byte) (int, defs.Err_t) {
	if off >= n.vn.Len {
		return 0, 0
	}
	if off+len(buf) > n.vn.Len {
		buf = buf[:n.vn.Len-off]
	}
	total := 0
	for total < len(buf) {
		pageno := (off + total) / BlockSize
		pageoff := (off + total) % BlockSize
		frame, err := n.fs.cache.Get(n.vn.Mmobj, pageno)
		if err != 0 {
			return total, err
		}
		frame.Pin()
		nc := copy(buf[total:], frame.Data[pageoff:])
		n.fs.cache.Unpin(frame)
		total += nc
	}
	return total, 0
}

// writeBytes scatters data page-by-page, allocating blocks as needed via
// Dirtypage and dirtying each touched frame (spec.md §4.8 s5_write_file).
func (n *node) writeBytes(off int, buf []byte) (int, defs.Err_t) {
	total := 0
	for total < len(buf) {
		pageno := (off + total) / BlockSize
		pageoff := (off + total) % BlockSize
		frame, err := n.fs.cache.Get(n.vn.Mmobj, pageno)
		if err != 0 {
			return total, err
		}
		frame.Pin()
		nc := copy(frame.Data[pageoff:], buf[total:])
		if derr := n.fs.cache.Dirty(frame); derr != 0 {
			n.fs.cache.Unpin(frame)
			return total, derr
		}
		n.fs.cache.Unpin(frame)
		total += nc
	}
	return total, 0
}

// Stat fills the [EXPANSION] stat surface from SPEC_FULL.md.
func (n *node) Stat() (vfs.Stat, defs.Err_t) {
	nd, err := n.fs.readInode(n.vn.Ino)
	if err != 0 {
		return vfs.Stat{}, err
	}
	blocks := 0
	if nd.Type != defs.ModeChr && nd.Type != defs.ModeBlk {
		for _, d := range nd.Direct {
			if d != 0 {
				blocks++
			}
		}
		if nd.Indirect != 0 {
			blocks++
			ibuf := make([]byte, BlockSize)
			if err := n.fs.dev.ReadBlock(int(nd.Indirect), ibuf); err == 0 {
				for i := 0; i < IndirectEntries; i++ {
					if off := i * 8; off+8 <= len(ibuf) {
						if b := ibuf[off : off+8]; anyNonZero(b) {
							blocks++
						}
					}
				}
			}
		}
	}
	rdev := uint(0)
	if nd.Type == defs.ModeChr || nd.Type == defs.ModeBlk {
		rdev = uint(nd.Indirect)
	}
	return vfs.Stat{
		Dev:    n.fs.devid,
		Ino:    n.vn.Ino,
		Mode:   nd.Type,
		Size:   int(nd.Size),
		Rdev:   rdev,
		Nlink:  int(nd.Linkcnt) + 1, // on-disk count plus 1 for this live vnode (spec.md §4.8)
		Blocks: blocks,
	}, 0
}

// findDirent implements s5_find_dirent (spec.md §4.8): a linear scan of
// the directory's content for a matching name.
func (n *node) findDirent(name string) (int, defs.Err_t) {
	kstat.Global.DirentLookups.Inc()
	buf := make([]byte, DirentSize)
	for off := 0; off+DirentSize <= n.vn.Len; off += DirentSize {
		kstat.Global.DirentScans.Inc()
		if _, err := n.readBytes(off, buf); err != 0 {
			return 0, err
		}
		de := decodeDirent(buf)
		if de.InodeNo != 0 && de.Name == name {
			return int(de.InodeNo), 0
		}
	}
	return 0, -defs.ENOENT
}

// dirEmpty reports whether a directory has any entries besides "." and
// "..", the precondition s5_rmdir checks before unlinking (spec.md §4.8).
func (n *node) dirEmpty() (bool, defs.Err_t) {
	buf := make([]byte, DirentSize)
	for off := 0; off+DirentSize <= n.vn.Len; off += DirentSize {
		if _, err := n.readBytes(off, buf); err != 0 {
			return false, err
		}
		de := decodeDirent(buf)
		if de.InodeNo != 0 && de.Name != "." && de.Name != ".." {
			return false, 0
		}
	}
	return true, 0
}

// growLen extends the file's or directory's on-disk size to newLen, keeping
// the in-memory vnode length and the inode's Size field in step.
func (n *node) growLen(newLen int) defs.Err_t {
	if newLen <= n.vn.Len {
		return 0
	}
	n.vn.Len = newLen
	nd, err := n.fs.readInode(n.vn.Ino)
	if err != 0 {
		return err
	}
	nd.Size = uint64(newLen)
	return n.fs.writeInode(n.vn.Ino, nd)
}

// appendDirentRaw writes (ino, name) into the first free slot, reusing a
// hole left by a prior removal before extending the directory. It does not
// touch ino's link count — used for "." and as the building block for
// linkDirent.
func (n *node) appendDirentRaw(name string, ino int) defs.Err_t {
	buf := make([]byte, DirentSize)
	for off := 0; off+DirentSize <= n.vn.Len; off += DirentSize {
		if _, err := n.readBytes(off, buf); err != 0 {
			return err
		}
		if decodeDirent(buf).InodeNo == 0 {
			encodeDirent(dirent{InodeNo: uint32(ino), Name: name}, buf)
			_, err := n.writeBytes(off, buf)
			return err
		}
	}
	off := n.vn.Len
	encodeDirent(dirent{InodeNo: uint32(ino), Name: name}, buf)
	if _, err := n.writeBytes(off, buf); err != 0 {
		return err
	}
	return n.growLen(off + DirentSize)
}

// linkDirent implements s5_link (spec.md §4.8): add a directory entry and
// bump the target inode's on-disk link count.
func (n *node) linkDirent(targetIno int, name string) defs.Err_t {
	if err := n.appendDirentRaw(name, targetIno); err != 0 {
		return err
	}
	nd, err := n.fs.readInode(targetIno)
	if err != 0 {
		return err
	}
	nd.Linkcnt++
	return n.fs.writeInode(targetIno, nd)
}

// removeDirent implements s5_remove_dirent (spec.md §4.8): free the named
// entry's slot and drop the target inode's on-disk link count.
func (n *node) removeDirent(name string) defs.Err_t {
	buf := make([]byte, DirentSize)
	for off := 0; off+DirentSize <= n.vn.Len; off += DirentSize {
		if _, err := n.readBytes(off, buf); err != 0 {
			return err
		}
		de := decodeDirent(buf)
		if de.InodeNo == 0 || de.Name != name {
			continue
		}
		zero := make([]byte, DirentSize)
		if _, err := n.writeBytes(off, zero); err != 0 {
			return err
		}
		nd, err := n.fs.readInode(int(de.InodeNo))
		if err != 0 {
			return err
		}
		if nd.Linkcnt > 0 {
			nd.Linkcnt--
		}
		return n.fs.writeInode(int(de.InodeNo), nd)
	}
	return -defs.ENOENT
}

func anyNonZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return true
		}
	}
	return false
}
