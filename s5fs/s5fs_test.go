package s5fs

import (
	"path/filepath"
	"testing"

	"weenos/blockdev"
	"weenos/defs"
	"weenos/mem"
	"weenos/pcache"
	"weenos/vfs"
)

// mkTestFS formats and mounts a fresh S5FS image large enough for the
// scenarios below, returning the FS, its root vnode and the vfs.Cache
// mediating both.
func mkTestFS(t *testing.T) (*FS, *vfs.Cache, *vfs.Vnode) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img")
	dev, err := blockdev.MkImage(path, 4096)
	if err != nil {
		t.Fatalf("MkImage: %v", err)
	}
	t.Cleanup(func() { dev.Close() })

	cache := pcache.NewCache(mem.NewArena(), 0)
	if ferr := Format(dev, cache, 256); ferr != 0 {
		t.Fatalf("Format: %v", ferr)
	}

	vc := vfs.NewCache()
	fs := Mount(dev, 0, cache, vc)
	root, rerr := vc.Vget(fs, fs.RootIno())
	if rerr != 0 {
		t.Fatalf("Vget(root): %v", rerr)
	}
	return fs, vc, root
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	_, vc, root := mkTestFS(t)

	ino, err := root.Create("hello")
	if err != 0 {
		t.Fatalf("Create: %v", err)
	}
	f, err := vc.Vget(root.FS, ino)
	if err != 0 {
		t.Fatalf("Vget: %v", err)
	}
	defer vc.Vput(f)

	payload := []byte("hello, s5fs")
	n, werr := f.Write(0, payload)
	if werr != 0 || n != len(payload) {
		t.Fatalf("Write: n=%d err=%v", n, werr)
	}

	buf := make([]byte, len(payload))
	n, rerr := f.Read(0, buf)
	if rerr != 0 || n != len(payload) || string(buf) != string(payload) {
		t.Fatalf("Read: n=%d err=%v buf=%q", n, rerr, buf)
	}

	st, serr := f.Stat()
	if serr != 0 {
		t.Fatalf("Stat: %v", serr)
	}
	if st.Size != len(payload) {
		t.Fatalf("Stat.Size = %d, want %d", st.Size, len(payload))
	}
	// one directory entry on disk, plus 1 for the live vnode.
	if st.Nlink != 2 {
		t.Fatalf("Stat.Nlink = %d, want 2", st.Nlink)
	}
}

func TestSparseWriteForcesIndirectBlock(t *testing.T) {
	_, vc, root := mkTestFS(t)

	ino, err := root.Create("sparse")
	if err != 0 {
		t.Fatalf("Create: %v", err)
	}
	f, err := vc.Vget(root.FS, ino)
	if err != 0 {
		t.Fatalf("Vget: %v", err)
	}
	defer vc.Vput(f)

	// NDirect == 6, so an offset of 8 blocks lands past the direct pointers
	// and must allocate the indirect block plus one data block.
	off := 8 * BlockSize
	payload := []byte("past the direct pointers")
	if _, werr := f.Write(off, payload); werr != 0 {
		t.Fatalf("Write: %v", werr)
	}

	st, serr := f.Stat()
	if serr != 0 {
		t.Fatalf("Stat: %v", serr)
	}
	// one indirect block + one data block behind it; no direct blocks used.
	if st.Blocks != 2 {
		t.Fatalf("Stat.Blocks = %d, want 2", st.Blocks)
	}

	buf := make([]byte, len(payload))
	if _, rerr := f.Read(off, buf); rerr != 0 || string(buf) != string(payload) {
		t.Fatalf("Read back: err=%v buf=%q", rerr, buf)
	}

	// a read from the sparse hole before the write must come back zeroed.
	hole := make([]byte, BlockSize)
	if _, rerr := f.Read(0, hole); rerr != 0 {
		t.Fatalf("Read(hole): %v", rerr)
	}
	for i, b := range hole {
		if b != 0 {
			t.Fatalf("hole byte %d = %d, want 0", i, b)
		}
	}
}

func TestMkdirLinkCountLaw(t *testing.T) {
	fs, vc, root := mkTestFS(t)

	aIno, err := root.Mkdir("a")
	if err != 0 {
		t.Fatalf("Mkdir(a): %v", err)
	}
	a, err := vc.Vget(fs, aIno)
	if err != 0 {
		t.Fatalf("Vget(a): %v", err)
	}
	defer vc.Vput(a)

	stRoot, _ := root.Stat()
	if stRoot.Nlink != 3 {
		t.Fatalf("root Nlink after mkdir a = %d, want 3 (self '..' plus a's '..')", stRoot.Nlink)
	}
	stA, _ := a.Stat()
	if stA.Nlink != 2 {
		t.Fatalf("a Nlink = %d, want 2 (self '.' doesn't count, child dirs will add more)", stA.Nlink)
	}

	bIno, err := a.Mkdir("b")
	if err != 0 {
		t.Fatalf("Mkdir(a/b): %v", err)
	}
	b, err := vc.Vget(fs, bIno)
	if err != 0 {
		t.Fatalf("Vget(b): %v", err)
	}
	defer vc.Vput(b)

	stA, _ = a.Stat()
	if stA.Nlink != 3 {
		t.Fatalf("a Nlink after mkdir a/b = %d, want 3", stA.Nlink)
	}
	stB, _ := b.Stat()
	if stB.Nlink != 2 {
		t.Fatalf("b Nlink = %d, want 2", stB.Nlink)
	}

	if err := a.Rmdir("b"); err != 0 {
		t.Fatalf("Rmdir(a/b): %v", err)
	}
	stA, _ = a.Stat()
	if stA.Nlink != 2 {
		t.Fatalf("a Nlink after rmdir a/b = %d, want 2", stA.Nlink)
	}
}

func TestCheckRefcountsAfterTreeBuild(t *testing.T) {
	fs, vc, root := mkTestFS(t)

	aIno, err := root.Mkdir("a")
	if err != 0 {
		t.Fatalf("Mkdir(a): %v", err)
	}
	a, err := vc.Vget(fs, aIno)
	if err != 0 {
		t.Fatalf("Vget(a): %v", err)
	}
	if _, err := a.Mkdir("b"); err != 0 {
		t.Fatalf("Mkdir(a/b): %v", err)
	}
	if _, err := a.Create("f"); err != 0 {
		t.Fatalf("Create(a/f): %v", err)
	}
	vc.Vput(a)

	if err := fs.CheckRefcounts(); err != 0 {
		t.Fatalf("CheckRefcounts: %v", err)
	}
}

func TestUnlinkRemovesDirentButKeepsNeighbors(t *testing.T) {
	_, vc, root := mkTestFS(t)

	if _, err := root.Create("keep"); err != 0 {
		t.Fatalf("Create(keep): %v", err)
	}
	if _, err := root.Create("drop"); err != 0 {
		t.Fatalf("Create(drop): %v", err)
	}
	if err := root.Unlink("drop"); err != 0 {
		t.Fatalf("Unlink(drop): %v", err)
	}
	if _, err := root.Lookup("drop"); err != -defs.ENOENT {
		t.Fatalf("Lookup(drop) after unlink: err=%v, want ENOENT", err)
	}
	if _, err := root.Lookup("keep"); err != 0 {
		t.Fatalf("Lookup(keep): %v", err)
	}
}

func TestRemountPreservesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img")
	dev, err := blockdev.MkImage(path, 4096)
	if err != nil {
		t.Fatalf("MkImage: %v", err)
	}
	defer dev.Close()

	cache := pcache.NewCache(mem.NewArena(), 0)
	if ferr := Format(dev, cache, 256); ferr != 0 {
		t.Fatalf("Format: %v", ferr)
	}

	vc := vfs.NewCache()
	fs := Mount(dev, 0, cache, vc)
	root, rerr := vc.Vget(fs, fs.RootIno())
	if rerr != 0 {
		t.Fatalf("Vget(root): %v", rerr)
	}
	ino, cerr := root.Create("survives")
	if cerr != 0 {
		t.Fatalf("Create: %v", cerr)
	}
	f, ferr2 := vc.Vget(fs, ino)
	if ferr2 != 0 {
		t.Fatalf("Vget: %v", ferr2)
	}
	if _, werr := f.Write(0, []byte("persisted")); werr != 0 {
		t.Fatalf("Write: %v", werr)
	}
	vc.Vput(f)
	vc.Vput(root)
	fs.Unmount()

	cache2 := pcache.NewCache(mem.NewArena(), 0)
	vc2 := vfs.NewCache()
	fs2 := Mount(dev, 0, cache2, vc2)
	if err := fs2.CheckRefcounts(); err != 0 {
		t.Fatalf("CheckRefcounts after remount: %v", err)
	}
	root2, rerr2 := vc2.Vget(fs2, fs2.RootIno())
	if rerr2 != 0 {
		t.Fatalf("Vget(root2): %v", rerr2)
	}
	defer vc2.Vput(root2)
	ino2, lerr := root2.Lookup("survives")
	if lerr != 0 {
		t.Fatalf("Lookup(survives) after remount: %v", lerr)
	}
	f2, verr := vc2.Vget(fs2, ino2)
	if verr != 0 {
		t.Fatalf("Vget(survives): %v", verr)
	}
	defer vc2.Vput(f2)
	buf := make([]byte, len("persisted"))
	if _, rerr := f2.Read(0, buf); rerr != 0 || string(buf) != "persisted" {
		t.Fatalf("Read after remount: err=%v buf=%q", rerr, buf)
	}
}
