package s5fs

import (
	"weenos/defs"
	"weenos/mmobj"
	"weenos/vfs"
)

// DevOps implements vfs.Ops for a character- or block-special inode
// (spec.md §4.8's devid-sharing-the-indirect-slot scheme, format.go). Device
// I/O itself is outside the three subsystems this core models (spec.md
// Non-goals) — the vnode exists so the directory tree can name the device
// and stat it; actual reads/writes are routed by the caller to the
// console/raw-disk/stat/profile device identified by Devid, not through
// this Ops vector.
type DevOps struct {
	node
}

func (d *DevOps) Lookup(name string) (int, defs.Err_t) { return 0, -defs.ENOTDIR }
func (d *DevOps) Create(name string) (int, defs.Err_t) { return 0, -defs.ENOTDIR }
func (d *DevOps) Mknod(name string, mode defs.FileMode, devid uint) (int, defs.Err_t) {
	return 0, -defs.ENOTDIR
}
func (d *DevOps) Link(target *vfs.Vnode, name string) defs.Err_t { return -defs.ENOTDIR }
func (d *DevOps) Unlink(name string) defs.Err_t                 { return -defs.ENOTDIR }
func (d *DevOps) Mkdir(name string) (int, defs.Err_t)           { return 0, -defs.ENOTDIR }
func (d *DevOps) Rmdir(name string) defs.Err_t                  { return -defs.ENOTDIR }
func (d *DevOps) Readdir(offset int) (string, int, int, defs.Err_t) {
	return "", 0, 0, -defs.ENOTDIR
}
func (d *DevOps) Read(off int, buf []byte) (int, defs.Err_t)  { return 0, -defs.ENXIO }
func (d *DevOps) Write(off int, buf []byte) (int, defs.Err_t) { return 0, -defs.ENXIO }
func (d *DevOps) Mmap() (mmobj.Object, defs.Err_t)            { return nil, -defs.ENXIO }
