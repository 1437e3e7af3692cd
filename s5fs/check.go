package s5fs

import (
	"weenos/defs"
	"weenos/vfs"
)

// CheckRefcounts implements s5fs_check_refcounts (spec.md §4.8): walk the
// directory tree reachable from the root, tally how many directory entries
// reference each inode, and compare the tally against the stored on-disk
// link count. It is the testable invariant behind spec.md §8 scenario 6
// ("remount and walk the tree; every link count matches") and is also run,
// fatally, by Unmount.
func (fs *FS) CheckRefcounts() defs.Err_t {
	counts := make(map[int]int)
	visited := make(map[int]bool)
	if err := fs.walkRefs(fs.RootIno(), counts, visited); err != 0 {
		return err
	}
	for ino, want := range counts {
		nd, err := fs.readInode(ino)
		if err != 0 {
			return err
		}
		if int(nd.Linkcnt) != want {
			return -defs.EINVAL
		}
	}
	return 0
}

// walkRefs tallies every non-"." dirent in the subtree rooted at ino into
// counts, descending into subdirectories (but never back through "..", so
// the walk terminates despite the root's self-referential ".." entry).
func (fs *FS) walkRefs(ino int, counts map[int]int, visited map[int]bool) defs.Err_t {
	if visited[ino] {
		return 0
	}
	visited[ino] = true

	nd, err := fs.readInode(ino)
	if err != 0 {
		return err
	}
	if nd.Type != defs.ModeDir {
		return 0
	}

	vn := &vfs.Vnode{Ino: ino, Len: int(nd.Size), Mmobj: fs.mmobjFor(ino)}
	n := node{fs: fs, vn: vn}
	buf := make([]byte, DirentSize)
	for off := 0; off+DirentSize <= vn.Len; off += DirentSize {
		if _, err := n.readBytes(off, buf); err != 0 {
			return err
		}
		de := decodeDirent(buf)
		if de.InodeNo == 0 || de.Name == "." {
			continue
		}
		target := int(de.InodeNo)
		counts[target]++
		if de.Name == ".." {
			continue
		}
		tnd, err := fs.readInode(target)
		if err != 0 {
			return err
		}
		if tnd.Type == defs.ModeDir {
			if err := fs.walkRefs(target, counts, visited); err != 0 {
				return err
			}
		}
	}
	return 0
}
