package s5fs

import "weenos/defs"

// pageBacking is the mmobj.VnodeBacking for one (fs, ino) pair, keyed only
// by inode number. The filesystem caches one per live ino (fs.mmobjFor) so
// that every vfs.Vnode built for the same inode across a vget/vput/vget
// cycle shares the same page-cache identity; otherwise a page dirtied
// under one instance's cache key could be orphaned the moment a later
// ReadVnode call constructed a fresh mmobj for the same inode.
type pageBacking struct {
	fs  *FS
	ino int
}

// Fillpage implements the s5fs_fillpage contract (spec.md §4.8): translate
// the page number to a disk block without allocating, zero-filling a
// sparse hole.
func (p *pageBacking) Fillpage(pageno int, dst []byte) defs.Err_t {
	blk, err := p.fs.seekToBlock(p.ino, pageno*BlockSize, false)
	if err != 0 {
		return err
	}
	if blk == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return 0
	}
	return p.fs.dev.ReadBlock(blk, dst)
}

// Cleanpage implements the s5fs_cleanpage contract: write a dirty page
// back via write_block.
func (p *pageBacking) Cleanpage(pageno int, src []byte) defs.Err_t {
	blk, err := p.fs.seekToBlock(p.ino, pageno*BlockSize, true)
	if err != 0 {
		return err
	}
	return p.fs.dev.WriteBlock(blk, src)
}

// Dirtypage implements the s5fs_dirtypage contract: ensure the region is
// no longer sparse before a frame there is dirtied, allocating a block if
// needed.
func (p *pageBacking) Dirtypage(pageno int) defs.Err_t {
	_, err := p.fs.seekToBlock(p.ino, pageno*BlockSize, true)
	return err
}
