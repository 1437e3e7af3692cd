package s5fs

import (
	"weenos/defs"
	"weenos/mmobj"
	"weenos/vfs"
)

// FileOps implements vfs.Ops for a regular-file inode (spec.md §4.8): read
// and write go through the shared node.readBytes/writeBytes page-cache
// path, and Mmap hands back the vnode's VnodeObject directly so
// vmm.DoMmap can interpose it (or a Shadow over it) into an address space.
type FileOps struct {
	node
}

func (f *FileOps) Lookup(name string) (int, defs.Err_t) { return 0, -defs.ENOTDIR }
func (f *FileOps) Create(name string) (int, defs.Err_t) { return 0, -defs.ENOTDIR }
func (f *FileOps) Mknod(name string, mode defs.FileMode, devid uint) (int, defs.Err_t) {
	return 0, -defs.ENOTDIR
}
func (f *FileOps) Link(target *vfs.Vnode, name string) defs.Err_t { return -defs.ENOTDIR }
func (f *FileOps) Unlink(name string) defs.Err_t                 { return -defs.ENOTDIR }
func (f *FileOps) Mkdir(name string) (int, defs.Err_t)           { return 0, -defs.ENOTDIR }
func (f *FileOps) Rmdir(name string) defs.Err_t                  { return -defs.ENOTDIR }
func (f *FileOps) Readdir(offset int) (string, int, int, defs.Err_t) {
	return "", 0, 0, -defs.ENOTDIR
}

func (f *FileOps) Read(off int, buf []byte) (int, defs.Err_t) {
	return f.readBytes(off, buf)
}

func (f *FileOps) Write(off int, buf []byte) (int, defs.Err_t) {
	n, err := f.writeBytes(off, buf)
	if err != 0 {
		return n, err
	}
	if gerr := f.growLen(off + n); gerr != 0 {
		return n, gerr
	}
	return n, 0
}

func (f *FileOps) Mmap() (mmobj.Object, defs.Err_t) {
	return f.vn.Mmobj, 0
}
