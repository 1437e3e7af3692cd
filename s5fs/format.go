// Package s5fs implements the System-V-style on-disk file system of
// spec.md §4.8/§6: superblock, inode cache, direct/indirect blocks,
// directory entries, and free lists, layered under vfs.Vnode through the
// Ops variant types in dir.go/file.go.
//
// Grounded on biscuit/src/fs/super.go's field-accessor style for the
// on-disk superblock (reimplemented against util.ReadFieldLE/WriteFieldLE
// instead of unsafe pointer casts, per DESIGN.md — this format must be
// little-endian regardless of host byte order, which an unsafe cast
// cannot guarantee) and biscuit/src/stat/stat.go's Stat_t field layout.
package s5fs

import (
	"weenos/blockdev"
	"weenos/defs"
	"weenos/util"
)

// On-disk geometry (spec.md §3, §6).
const (
	BlockSize = blockdev.BlockSize

	S5_MAGIC           = 0x53354653 // "S5FS" in hex digits
	S5_CURRENT_VERSION = 1

	S5_NAME_LEN = 28
	DirentSize  = 4 + S5_NAME_LEN // inode_no (uint32) + name
	DirentsPerBlock = BlockSize / DirentSize

	NDirect        = 6
	InodeSize      = 128
	InodesPerBlock = BlockSize / InodeSize
	IndirectEntries = BlockSize / 8

	BootBlock       = 0
	SuperBlockNo    = 1
	FirstInodeBlock = 2
)

// Superblock field byte offsets within block 1.
const (
	sbMagic      = 0
	sbVersion    = 8
	sbNInodes    = 16
	sbFreeInode  = 24
	sbFreeBlock  = 32
	sbRootIno    = 40
	sbNDataBlock = 48
)

// Superblock is a decoded view over the on-disk superblock block.
type Superblock struct {
	Magic        uint64
	Version      uint64
	NInodes      uint64
	FreeInode    uint64 // head of the free-inode list, 0 = none
	FreeBlock    uint64 // head of the free-block list, 0 = none
	RootIno      uint64
	NDataBlocks  uint64
}

func decodeSuperblock(buf []byte) Superblock {
	return Superblock{
		Magic:       util.ReadFieldLE(buf, sbMagic, 8),
		Version:     util.ReadFieldLE(buf, sbVersion, 8),
		NInodes:     util.ReadFieldLE(buf, sbNInodes, 8),
		FreeInode:   util.ReadFieldLE(buf, sbFreeInode, 8),
		FreeBlock:   util.ReadFieldLE(buf, sbFreeBlock, 8),
		RootIno:     util.ReadFieldLE(buf, sbRootIno, 8),
		NDataBlocks: util.ReadFieldLE(buf, sbNDataBlock, 8),
	}
}

func encodeSuperblock(sb Superblock, buf []byte) {
	util.WriteFieldLE(buf, sbMagic, 8, sb.Magic)
	util.WriteFieldLE(buf, sbVersion, 8, sb.Version)
	util.WriteFieldLE(buf, sbNInodes, 8, sb.NInodes)
	util.WriteFieldLE(buf, sbFreeInode, 8, sb.FreeInode)
	util.WriteFieldLE(buf, sbFreeBlock, 8, sb.FreeBlock)
	util.WriteFieldLE(buf, sbRootIno, 8, sb.RootIno)
	util.WriteFieldLE(buf, sbNDataBlock, 8, sb.NDataBlocks)
}

// inode is the decoded fixed-size on-disk inode record (spec.md §3):
// type, size, link count, NDIRECT direct block pointers, one indirect
// pointer — reused as a free-list "next" link while Type == ModeFree, and
// as a devid for chr/blk inodes (spec.md's "in place of the indirect
// pointer").
type inode struct {
	Type     defs.FileMode
	Size     uint64
	Linkcnt  uint64
	Direct   [NDirect]uint64
	Indirect uint64
}

func inodeBlock(ino int) int   { return ino/InodesPerBlock + FirstInodeBlock }
func inodeOffset(ino int) int  { return (ino % InodesPerBlock) * InodeSize }

func decodeInode(buf []byte) inode {
	var nd inode
	nd.Type = defs.FileMode(util.ReadFieldLE(buf, 0, 8))
	nd.Size = util.ReadFieldLE(buf, 8, 8)
	nd.Linkcnt = util.ReadFieldLE(buf, 16, 8)
	for i := 0; i < NDirect; i++ {
		nd.Direct[i] = util.ReadFieldLE(buf, 24+i*8, 8)
	}
	nd.Indirect = util.ReadFieldLE(buf, 24+NDirect*8, 8)
	return nd
}

func encodeInode(nd inode, buf []byte) {
	util.WriteFieldLE(buf, 0, 8, uint64(nd.Type))
	util.WriteFieldLE(buf, 8, 8, nd.Size)
	util.WriteFieldLE(buf, 16, 8, nd.Linkcnt)
	for i := 0; i < NDirect; i++ {
		util.WriteFieldLE(buf, 24+i*8, 8, nd.Direct[i])
	}
	util.WriteFieldLE(buf, 24+NDirect*8, 8, nd.Indirect)
}

// dirent is one fixed-size directory entry (spec.md §3): an entry with
// InodeNo == 0 is free.
type dirent struct {
	InodeNo uint32
	Name    string
}

func decodeDirent(buf []byte) dirent {
	ino := uint32(util.ReadFieldLE(buf, 0, 4))
	raw := buf[4:DirentSize]
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	return dirent{InodeNo: ino, Name: string(raw[:n])}
}

func encodeDirent(d dirent, buf []byte) {
	util.WriteFieldLE(buf, 0, 4, uint64(d.InodeNo))
	name := buf[4:DirentSize]
	for i := range name {
		name[i] = 0
	}
	copy(name, d.Name)
}
