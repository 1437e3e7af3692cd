package s5fs

import (
	"weenos/blockdev"
	"weenos/defs"
	"weenos/pcache"
	"weenos/util"
	"weenos/vfs"
)

// rootIno is the reserved inode number of every S5FS root directory. Inode
// 0 is never allocated, matching the free-inode list's use of 0 as its
// list terminator.
const rootIno = 1

// Format writes a fresh S5FS layout to dev: a superblock, ninodes worth of
// inode blocks chained onto the free-inode list, every remaining block
// chained onto the free-block list, and a root directory inode with "."
// and ".." entries (spec.md §6, grounded on the teacher's mkfs/mkfs.go
// driving an image build rather than formatting an in-place disk). The
// caller owns dev; Format writes back its cached pages and Syncs dev
// before returning.
func Format(dev blockdev.Device, cache *pcache.Cache, ninodes int) defs.Err_t {
	nblocks := dev.NumBlocks()
	inodeBlocks := (ninodes + InodesPerBlock - 1) / InodesPerBlock
	firstData := FirstInodeBlock + inodeBlocks
	if firstData >= nblocks {
		return -defs.ENOSPC
	}

	zero := make([]byte, BlockSize)
	for b := FirstInodeBlock; b < firstData; b++ {
		if err := dev.WriteBlock(b, zero); err != 0 {
			return err
		}
	}

	var freeInodeHead uint64
	for ino := ninodes - 1; ino > rootIno; ino-- {
		buf := make([]byte, BlockSize)
		blk := inodeBlock(ino)
		if err := dev.ReadBlock(blk, buf); err != 0 {
			return err
		}
		off := inodeOffset(ino)
		encodeInode(inode{Type: defs.ModeFree, Indirect: freeInodeHead}, buf[off:off+InodeSize])
		if err := dev.WriteBlock(blk, buf); err != 0 {
			return err
		}
		freeInodeHead = uint64(ino)
	}

	var freeBlockHead uint64
	for b := nblocks - 1; b > firstData; b-- {
		buf := make([]byte, BlockSize)
		util.WriteFieldLE(buf, 0, 8, freeBlockHead)
		if err := dev.WriteBlock(b, buf); err != 0 {
			return err
		}
		freeBlockHead = uint64(b)
	}

	sb := Superblock{
		Magic:       S5_MAGIC,
		Version:     S5_CURRENT_VERSION,
		NInodes:     uint64(ninodes),
		FreeInode:   freeInodeHead,
		FreeBlock:   freeBlockHead,
		RootIno:     rootIno,
		NDataBlocks: uint64(nblocks - firstData),
	}
	sbuf := make([]byte, BlockSize)
	encodeSuperblock(sb, sbuf)
	if err := dev.WriteBlock(SuperBlockNo, sbuf); err != 0 {
		return err
	}

	root := inode{Type: defs.ModeDir}
	root.Direct[0] = uint64(firstData)
	rbuf := make([]byte, BlockSize)
	rblk := inodeBlock(rootIno)
	if err := dev.ReadBlock(rblk, rbuf); err != 0 {
		return err
	}
	roff := inodeOffset(rootIno)
	encodeInode(root, rbuf[roff:roff+InodeSize])
	if err := dev.WriteBlock(rblk, rbuf); err != 0 {
		return err
	}
	if err := dev.WriteBlock(firstData, zero); err != 0 {
		return err
	}

	fs := Mount(dev, 0, cache, vfs.NewCache())
	rootVn := &vfs.Vnode{Ino: rootIno, Mode: defs.ModeDir, Mmobj: fs.mmobjFor(rootIno)}
	rn := node{fs: fs, vn: rootVn}
	if err := rn.appendDirentRaw(".", rootIno); err != 0 {
		return err
	}
	if err := rn.linkDirent(rootIno, ".."); err != 0 {
		return err
	}

	if err := fs.cache.SyncAll(); err != nil {
		return -defs.EINVAL
	}
	return dev.Sync()
}
