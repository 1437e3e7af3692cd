// Package blockdev implements the abstract block-device capability named
// in spec.md §1/§6: a uniform (major, minor)-addressed read_block/
// write_block interface, plus a host-backed device good enough to run the
// S5FS layer under `go test`.
//
// Grounded on the teacher's biscuit/src/ufs/driver.go (ahci_disk_t, a
// file-backed disk used to exercise the filesystem on the host) and
// biscuit/src/fs/blk.go's Disk_i. Unlike the teacher's per-block
// Read/Write loop over an os.File, the backing image is mmapped with
// golang.org/x/sys/unix so the page cache gets a direct byte slice per
// block — the host analogue of the teacher's direct-mapped physical
// memory (mem.Dmap).
package blockdev

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"weenos/defs"
)

// BlockSize is the fixed on-disk block size (spec.md §6): S5_BLOCK_SIZE.
const BlockSize = defs.PGSIZE

// Device is the capability a memory object or filesystem superblock
// consumes to read/write fixed-size blocks.
type Device interface {
	ReadBlock(block int, dst []byte) defs.Err_t
	WriteBlock(block int, src []byte) defs.Err_t
	NumBlocks() int
	Sync() defs.Err_t
}

// Registry resolves a (major, minor) devid to a concrete Device — the
// [EXPANSION] in SPEC_FULL.md filling in how MKDEVID values get wired to
// an actual backing store at boot.
type Registry struct {
	mu      sync.Mutex
	devices map[uint]Device
}

// NewRegistry constructs an empty device registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[uint]Device)}
}

// Register installs dev under devid, overwriting any previous entry.
func (r *Registry) Register(devid uint, dev Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[devid] = dev
}

// Lookup resolves devid to its registered Device.
func (r *Registry) Lookup(devid uint) (Device, defs.Err_t) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[devid]
	if !ok {
		return nil, -defs.ENXIO
	}
	return d, 0
}

// FileDevice is a block device backed by a host file, mmapped in full so
// every block access is a direct memory copy rather than a syscall.
type FileDevice struct {
	mu     sync.Mutex
	f      *os.File
	data   []byte
	nblock int
}

// OpenFileDevice mmaps the image file at path as a block device. The file
// must already be sized to a whole number of blocks (see MkImage).
func OpenFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := fi.Size()
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, data: data, nblock: int(size) / BlockSize}, nil
}

// MkImage creates a fresh zero-filled image file of nblocks blocks and
// opens it as a FileDevice — the host counterpart of the teacher's
// ufs.MkDisk.
func MkImage(path string, nblocks int) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(nblocks) * int64(BlockSize)); err != nil {
		f.Close()
		return nil, err
	}
	f.Close()
	return OpenFileDevice(path)
}

func (d *FileDevice) ReadBlock(block int, dst []byte) defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if block < 0 || block >= d.nblock {
		return -defs.EINVAL
	}
	off := block * BlockSize
	copy(dst, d.data[off:off+BlockSize])
	return 0
}

func (d *FileDevice) WriteBlock(block int, src []byte) defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if block < 0 || block >= d.nblock {
		return -defs.EINVAL
	}
	off := block * BlockSize
	copy(d.data[off:off+BlockSize], src)
	return 0
}

func (d *FileDevice) NumBlocks() int { return d.nblock }

func (d *FileDevice) Sync() defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := unix.Msync(d.data, unix.MS_SYNC); err != nil {
		return -defs.EINVAL
	}
	return 0
}

// Close unmaps and closes the backing file.
func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	unix.Munmap(d.data)
	return d.f.Close()
}
