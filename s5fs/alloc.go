package s5fs

import "weenos/defs"
import "weenos/kstat"
import "weenos/util"

// seekToBlock implements s5_seek_to_block (spec.md §4.8): translate a
// byte offset into a disk block number, allocating direct or indirect
// storage on demand when alloc is set. Returns 0 for a sparse hole when
// alloc is false.
func (fs *FS) seekToBlock(ino int, offset int, alloc bool) (int, defs.Err_t) {
	index := offset / BlockSize

	if index < NDirect {
		nd, err := fs.readInode(ino)
		if err != 0 {
			return 0, err
		}
		if nd.Direct[index] != 0 {
			return int(nd.Direct[index]), 0
		}
		if !alloc {
			return 0, 0
		}
		blk, err := fs.allocBlock()
		if err != 0 {
			return 0, err
		}
		nd.Direct[index] = uint64(blk)
		if err := fs.writeInode(ino, nd); err != 0 {
			return 0, err
		}
		return blk, 0
	}

	iidx := index - NDirect
	if iidx >= IndirectEntries {
		return 0, -defs.EINVAL
	}

	nd, err := fs.readInode(ino)
	if err != 0 {
		return 0, err
	}
	if nd.Indirect == 0 {
		if !alloc {
			return 0, 0
		}
		ib, err := fs.allocBlock()
		if err != 0 {
			return 0, err
		}
		zero := make([]byte, BlockSize)
		if err := fs.dev.WriteBlock(ib, zero); err != 0 {
			return 0, err
		}
		nd.Indirect = uint64(ib)
		if err := fs.writeInode(ino, nd); err != 0 {
			return 0, err
		}
	}

	ibuf := make([]byte, BlockSize)
	if err := fs.dev.ReadBlock(int(nd.Indirect), ibuf); err != 0 {
		return 0, err
	}
	off := iidx * 8
	blk := util.ReadFieldLE(ibuf, off, 8)
	if blk != 0 {
		return int(blk), 0
	}
	if !alloc {
		return 0, 0
	}
	nb, err := fs.allocBlock()
	if err != 0 {
		return 0, err
	}
	util.WriteFieldLE(ibuf, off, 8, uint64(nb))
	if err := fs.dev.WriteBlock(int(nd.Indirect), ibuf); err != 0 {
		return 0, err
	}
	return nb, 0
}

// allocBlock pops a block off the superblock's free-block list (spec.md
// §4.8). Each free block's first 8 bytes hold the next free block number,
// 0 terminating the list.
func (fs *FS) allocBlock() (int, defs.Err_t) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sb := fs.readSB()
	head := int(sb.FreeBlock)
	if head == 0 {
		return 0, -defs.ENOSPC
	}
	buf := make([]byte, BlockSize)
	if err := fs.dev.ReadBlock(head, buf); err != 0 {
		return 0, err
	}
	sb.FreeBlock = util.ReadFieldLE(buf, 0, 8)
	fs.writeSB(sb)

	zero := make([]byte, BlockSize)
	if err := fs.dev.WriteBlock(head, zero); err != 0 {
		return 0, err
	}
	kstat.Global.BlockAllocs.Inc()
	return head, 0
}

// freeBlock pushes blk back onto the free-block list.
func (fs *FS) freeBlock(blk int) defs.Err_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sb := fs.readSB()
	buf := make([]byte, BlockSize)
	util.WriteFieldLE(buf, 0, 8, sb.FreeBlock)
	if err := fs.dev.WriteBlock(blk, buf); err != 0 {
		return err
	}
	sb.FreeBlock = uint64(blk)
	fs.writeSB(sb)
	kstat.Global.BlockFrees.Inc()
	return 0
}

// allocInode implements s5_alloc_inode (spec.md §4.8): pop an inode from
// the superblock's free-inode list and initialize it. Free inodes are
// linked through their own Indirect field, the way a free block links
// through its own first 8 bytes.
func (fs *FS) allocInode(typ defs.FileMode, devid uint) (int, defs.Err_t) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sb := fs.readSB()
	ino := int(sb.FreeInode)
	if ino == 0 {
		return 0, -defs.ENOSPC
	}
	cur, err := fs.readInode(ino)
	if err != 0 {
		return 0, err
	}
	sb.FreeInode = cur.Indirect

	nd := inode{Type: typ}
	if typ == defs.ModeChr || typ == defs.ModeBlk {
		nd.Indirect = uint64(devid)
	}
	if err := fs.writeInodeLocked(ino, nd); err != 0 {
		return 0, err
	}
	fs.writeSB(sb)
	kstat.Global.InodeAllocs.Inc()
	return ino, 0
}

// freeInode implements s5_free_inode (spec.md §4.8): free all data blocks
// first, then push the inode back onto the free list.
func (fs *FS) freeInode(ino int) defs.Err_t {
	nd, err := fs.readInode(ino)
	if err != 0 {
		return err
	}
	if nd.Type != defs.ModeChr && nd.Type != defs.ModeBlk {
		for _, d := range nd.Direct {
			if d != 0 {
				if err := fs.freeBlock(int(d)); err != 0 {
					return err
				}
			}
		}
		if nd.Indirect != 0 {
			ibuf := make([]byte, BlockSize)
			if err := fs.dev.ReadBlock(int(nd.Indirect), ibuf); err == 0 {
				for i := 0; i < IndirectEntries; i++ {
					b := util.ReadFieldLE(ibuf, i*8, 8)
					if b != 0 {
						fs.freeBlock(int(b))
					}
				}
			}
			if err := fs.freeBlock(int(nd.Indirect)); err != 0 {
				return err
			}
		}
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	sb := fs.readSB()
	free := inode{Type: defs.ModeFree, Indirect: sb.FreeInode}
	if err := fs.writeInodeLocked(ino, free); err != 0 {
		return err
	}
	sb.FreeInode = uint64(ino)
	fs.writeSB(sb)
	kstat.Global.InodeFrees.Inc()
	return 0
}
