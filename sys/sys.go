// Package sys implements the syscall bodies spec.md §4.5-§4.7 describe in
// terms of the lower layers: open/close route through vfs, mmap/munmap
// through vmm, fork through proc. Grounded on the teacher's syscall.go
// dispatch style (argument validation at the boundary, delegation to the
// subsystem that owns the behavior) without vendoring its trap-frame
// argument-fetch machinery, which is out of this core's scope.
package sys

import (
	"weenos/defs"
	"weenos/proc"
	"weenos/vfs"
	"weenos/vmm"
)

// Open implements open(2) (spec.md §4.7): resolve path relative to p's
// cwd (or root, for an absolute path) and install the result into p's
// descriptor table.
func Open(vc *vfs.Cache, p *proc.Proc, path string, oflags int) (int, defs.Err_t) {
	return vfs.DoOpen(vc, p.Root, p.Cwd, p, path, oflags)
}

// Close implements close(2): drop the caller's reference to the
// descriptor, releasing the underlying vnode once the last File reference
// is gone.
func Close(p *proc.Proc, fd int) defs.Err_t {
	return p.CloseFd(fd)
}

// Read implements read(2) over an open descriptor.
func Read(p *proc.Proc, fd int, buf []byte) (int, defs.Err_t) {
	f, err := p.Fd(fd)
	if err != 0 {
		return 0, err
	}
	return f.Read(buf)
}

// Write implements write(2) over an open descriptor.
func Write(p *proc.Proc, fd int, buf []byte) (int, defs.Err_t) {
	f, err := p.Fd(fd)
	if err != 0 {
		return 0, err
	}
	return f.Write(buf)
}

// Mmap implements mmap(2) (spec.md §4.5): a fd of -1 with MAP_ANON
// requests an anonymous mapping; otherwise the descriptor's vnode supplies
// the backing object via Vnode.Mmap.
func Mmap(p *proc.Proc, addr, length, prot, flags, fd, off int) (int, defs.Err_t) {
	params := vmm.DoMmapParams{Addr: addr, Length: length, Prot: prot, Flags: flags, Off: off}
	if flags&defs.MAP_ANON == 0 {
		f, err := p.Fd(fd)
		if err != 0 {
			return 0, err
		}
		obj, merr := f.Vn.Mmap()
		if merr != 0 {
			return 0, merr
		}
		params.Backing = obj
	}
	return p.Vmmap.DoMmap(params)
}

// Munmap implements munmap(2) (spec.md §4.5).
func Munmap(p *proc.Proc, addr, length int) defs.Err_t {
	return p.Vmmap.DoMunmap(addr, length)
}

// Fork implements fork(2) (spec.md §4.6), delegating to proc.DoFork.
func Fork(p *proc.Proc, childPid proc.Pid, sched proc.Scheduler) (*proc.Proc, defs.Err_t) {
	return proc.DoFork(p, childPid, sched)
}

// Mkdir implements mkdir(2): resolve the parent directory and create name
// within it.
func Mkdir(vc *vfs.Cache, p *proc.Proc, path string) defs.Err_t {
	dir, name := vfs.Path(path).Split()
	parent, err := vfs.OpenNamev(vc, p.Root, p.Cwd, dir, defs.O_RDONLY)
	if err != 0 {
		return err
	}
	defer vc.Vput(parent)
	_, err = parent.Mkdir(name)
	return err
}

// Rmdir implements rmdir(2).
func Rmdir(vc *vfs.Cache, p *proc.Proc, path string) defs.Err_t {
	dir, name := vfs.Path(path).Split()
	parent, err := vfs.OpenNamev(vc, p.Root, p.Cwd, dir, defs.O_RDONLY)
	if err != 0 {
		return err
	}
	defer vc.Vput(parent)
	return parent.Rmdir(name)
}

// Unlink implements unlink(2).
func Unlink(vc *vfs.Cache, p *proc.Proc, path string) defs.Err_t {
	dir, name := vfs.Path(path).Split()
	parent, err := vfs.OpenNamev(vc, p.Root, p.Cwd, dir, defs.O_RDONLY)
	if err != 0 {
		return err
	}
	defer vc.Vput(parent)
	return parent.Unlink(name)
}

// Stat implements stat(2).
func Stat(vc *vfs.Cache, p *proc.Proc, path string) (vfs.Stat, defs.Err_t) {
	vn, err := vfs.OpenNamev(vc, p.Root, p.Cwd, path, defs.O_RDONLY)
	if err != 0 {
		return vfs.Stat{}, err
	}
	defer vc.Vput(vn)
	return vn.Stat()
}
