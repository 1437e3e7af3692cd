package s5fs

import (
	"path/filepath"
	"testing"

	"golang.org/x/mod/sumdb/dirhash"

	"weenos/blockdev"
	"weenos/mem"
	"weenos/pcache"
	"weenos/vfs"
)

// TestPersistenceHashRoundTrip formats an image, writes a file, and unmounts,
// then checks that the on-disk image hashes identically across a read-only
// remount but differs after a remount that writes — the image's bytes on
// the block device, not just the in-memory view, must be what persists.
func TestPersistenceHashRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img")
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
	ino, cerr := root.Create("hashed")
	if cerr != 0 {
		t.Fatalf("Create: %v", cerr)
	}
	f, ferr2 := vc.Vget(fs, ino)
	if ferr2 != 0 {
		t.Fatalf("Vget: %v", ferr2)
	}
	if _, werr := f.Write(0, []byte("dirhash exercises the real image bytes")); werr != 0 {
		t.Fatalf("Write: %v", werr)
	}
	vc.Vput(f)
	vc.Vput(root)
	fs.Unmount()

	before, err := dirhash.HashDir(dir, "img", dirhash.Hash1)
	if err != nil {
		t.Fatalf("HashDir (before remount): %v", err)
	}

	// Remount read-only: just look the file up, touch nothing, unmount.
	cache2 := pcache.NewCache(mem.NewArena(), 0)
	vc2 := vfs.NewCache()
	fs2 := Mount(dev, 0, cache2, vc2)
	root2, rerr2 := vc2.Vget(fs2, fs2.RootIno())
	if rerr2 != 0 {
		t.Fatalf("Vget(root2): %v", rerr2)
	}
	if _, lerr := root2.Lookup("hashed"); lerr != 0 {
		t.Fatalf("Lookup(hashed): %v", lerr)
	}
	vc2.Vput(root2)
	fs2.Unmount()

	after, err := dirhash.HashDir(dir, "img", dirhash.Hash1)
	if err != nil {
		t.Fatalf("HashDir (after read-only remount): %v", err)
	}
	if before != after {
		t.Fatalf("image hash changed across a read-only remount: before=%s after=%s", before, after)
	}

	// Remount again and write a second file; the hash must move this time.
	cache3 := pcache.NewCache(mem.NewArena(), 0)
	vc3 := vfs.NewCache()
	fs3 := Mount(dev, 0, cache3, vc3)
	root3, rerr3 := vc3.Vget(fs3, fs3.RootIno())
	if rerr3 != 0 {
		t.Fatalf("Vget(root3): %v", rerr3)
	}
	ino3, cerr3 := root3.Create("hashed2")
	if cerr3 != 0 {
		t.Fatalf("Create(hashed2): %v", cerr3)
	}
	f3, verr3 := vc3.Vget(fs3, ino3)
	if verr3 != 0 {
		t.Fatalf("Vget(hashed2): %v", verr3)
	}
	if _, werr := f3.Write(0, []byte("second file")); werr != 0 {
		t.Fatalf("Write(hashed2): %v", werr)
	}
	vc3.Vput(f3)
	vc3.Vput(root3)
	fs3.Unmount()

	mutated, err := dirhash.HashDir(dir, "img", dirhash.Hash1)
	if err != nil {
		t.Fatalf("HashDir (after mutation): %v", err)
	}
	if mutated == after {
		t.Fatal("expected image hash to change after writing a new file")
	}
}
