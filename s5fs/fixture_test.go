package s5fs

import (
	"path"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"weenos/vfs"
)

// treeFixture is a small directory tree expressed compactly as a txtar
// archive — one section per file, nested paths implying intermediate
// directories — loaded into a freshly formatted image by loadFixture.
const treeFixture = `
This fixture exercises a nested tree: one file directly under a
subdirectory and two files under doubly-nested subdirectories.
-- etc/motd --
welcome to weenos
-- etc/init/rc --
#!/bin/rc
exec /bin/sh
-- home/user/notes.txt --
remember to fsck
`

// loadFixture parses a txtar archive and replicates every file it contains
// into the filesystem rooted at root, creating intermediate directories
// mkdir -p style, mirroring cmd/mkfs's addfiles over an in-memory archive
// instead of a host skeleton directory.
func loadFixture(t *testing.T, vc *vfs.Cache, root *vfs.Vnode, archive string) map[string][]byte {
	t.Helper()
	ar := txtar.Parse([]byte(archive))
	want := make(map[string][]byte)
	for _, file := range ar.Files {
		dir, base := path.Split(file.Name)
		dir = strings.TrimSuffix(dir, "/")

		parent := root
		parent.Ref()
		if dir != "" {
			for _, comp := range strings.Split(dir, "/") {
				ino, err := parent.Lookup(comp)
				if err != 0 {
					ino, err = parent.Mkdir(comp)
					if err != 0 {
						t.Fatalf("mkdir %q: %v", comp, err)
					}
				}
				next, verr := vc.Vget(parent.FS, ino)
				vc.Vput(parent)
				if verr != 0 {
					t.Fatalf("vget %q: %v", comp, verr)
				}
				parent = next
			}
		}

		ino, cerr := parent.Create(base)
		if cerr != 0 {
			t.Fatalf("create %q: %v", file.Name, cerr)
		}
		f, verr := vc.Vget(parent.FS, ino)
		if verr != 0 {
			t.Fatalf("vget %q: %v", file.Name, verr)
		}
		if _, werr := f.Write(0, file.Data); werr != 0 {
			t.Fatalf("write %q: %v", file.Name, werr)
		}
		vc.Vput(f)
		vc.Vput(parent)

		want[file.Name] = file.Data
	}
	return want
}

func TestFixtureTreeRoundTrip(t *testing.T) {
	fs, vc, root := mkTestFS(t)
	want := loadFixture(t, vc, root, treeFixture)

	for name, data := range want {
		dir, base := path.Split(name)
		dir = strings.TrimSuffix(dir, "/")

		cur := root
		cur.Ref()
		for _, comp := range strings.Split(dir, "/") {
			if comp == "" {
				continue
			}
			ino, err := cur.Lookup(comp)
			if err != 0 {
				t.Fatalf("lookup %q: %v", comp, err)
			}
			next, verr := vc.Vget(fs, ino)
			vc.Vput(cur)
			if verr != 0 {
				t.Fatalf("vget %q: %v", comp, verr)
			}
			cur = next
		}

		ino, err := cur.Lookup(base)
		if err != 0 {
			t.Fatalf("lookup %q: %v", name, err)
		}
		leaf, verr := vc.Vget(fs, ino)
		if verr != 0 {
			t.Fatalf("vget %q: %v", name, verr)
		}
		buf := make([]byte, len(data))
		if _, rerr := leaf.Read(0, buf); rerr != 0 || string(buf) != string(data) {
			t.Fatalf("read %q: err=%v got=%q want=%q", name, rerr, buf, data)
		}
		vc.Vput(leaf)
		vc.Vput(cur)
	}

	if err := fs.CheckRefcounts(); err != 0 {
		t.Fatalf("CheckRefcounts: %v", err)
	}
}
