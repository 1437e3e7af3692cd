package sys

import (
	"path/filepath"
	"testing"

	"weenos/blockdev"
	"weenos/defs"
	"weenos/mem"
	"weenos/pcache"
	"weenos/proc"
	"weenos/s5fs"
	"weenos/vfs"
	"weenos/vmm"
)

func newTestProc(t *testing.T) (*vfs.Cache, *proc.Proc) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img")
	dev, err := blockdev.MkImage(path, 4096)
	if err != nil {
		t.Fatalf("MkImage: %v", err)
	}
	t.Cleanup(func() { dev.Close() })

	cache := pcache.NewCache(mem.NewArena(), 0)
	if ferr := s5fs.Format(dev, cache, 256); ferr != 0 {
		t.Fatalf("Format: %v", ferr)
	}
	vc := vfs.NewCache()
	fs := s5fs.Mount(dev, 0, cache, vc)
	root, rerr := vc.Vget(fs, fs.RootIno())
	if rerr != 0 {
		t.Fatalf("Vget(root): %v", rerr)
	}

	m := vmm.NewMap(cache, &mem.CountingTLB{})
	p := proc.New(proc.Pid(1), "test", m, &mem.CountingTLB{}, vc, root)
	return vc, p
}

func TestMkdirRmdirUnlinkRoundTrip(t *testing.T) {
	vc, p := newTestProc(t)

	if err := Mkdir(vc, p, "/sub"); err != 0 {
		t.Fatalf("Mkdir: %v", err)
	}
	st, err := Stat(vc, p, "/sub")
	if err != 0 {
		t.Fatalf("Stat: %v", err)
	}
	if st.Mode != defs.ModeDir {
		t.Fatalf("expected a directory, got mode %v", st.Mode)
	}

	fd, err := Open(p.VC, p, "/sub/file", defs.O_CREAT|defs.O_RDWR)
	if err != 0 {
		t.Fatalf("Open: %v", err)
	}
	payload := []byte("payload")
	if n, werr := Write(p, fd, payload); werr != 0 || n != len(payload) {
		t.Fatalf("Write: n=%d err=%v", n, werr)
	}
	if err := Close(p, fd); err != 0 {
		t.Fatalf("Close: %v", err)
	}

	if err := Unlink(vc, p, "/sub/file"); err != 0 {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := Stat(vc, p, "/sub/file"); err != -defs.ENOENT {
		t.Fatalf("expected ENOENT after unlink, got %v", err)
	}

	if err := Rmdir(vc, p, "/sub"); err != 0 {
		t.Fatalf("Rmdir: %v", err)
	}
	if _, err := Stat(vc, p, "/sub"); err != -defs.ENOENT {
		t.Fatalf("expected ENOENT after rmdir, got %v", err)
	}
}

func TestMkdirRelativeToCwd(t *testing.T) {
	vc, p := newTestProc(t)

	if err := Mkdir(vc, p, "nested"); err != 0 {
		t.Fatalf("Mkdir relative to cwd: %v", err)
	}
	if _, err := Stat(vc, p, "/nested"); err != 0 {
		t.Fatalf("Stat: %v", err)
	}
}

func TestMmapAnonRoundTrip(t *testing.T) {
	_, p := newTestProc(t)

	addr, err := Mmap(p, 0, defs.PGSIZE, defs.PROT_READ|defs.PROT_WRITE, defs.MAP_PRIVATE|defs.MAP_ANON, -1, 0)
	if err != 0 {
		t.Fatalf("Mmap: %v", err)
	}
	if err := Munmap(p, addr, defs.PGSIZE); err != 0 {
		t.Fatalf("Munmap: %v", err)
	}
}
