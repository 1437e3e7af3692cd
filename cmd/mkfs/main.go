// Command mkfs builds a fresh S5FS disk image from a host skeleton
// directory, the way the teacher's mkfs/mkfs.go builds a bootable Biscuit
// image from a skeleton tree — rebased here onto s5fs/vfs/blockdev instead
// of ufs.Ufs_t, and onto an image sized by flags instead of fixed
// nlogblks/ninodeblks/ndatablks constants.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"weenos/blockdev"
	"weenos/defs"
	"weenos/mem"
	"weenos/pcache"
	"weenos/s5fs"
	"weenos/vfs"
)

func main() {
	var (
		out     = flag.String("o", "fs.img", "output image path")
		nblocks = flag.Int("blocks", 16384, "image size in blocks")
		ninodes = flag.Int("inodes", 4096, "number of inodes")
		skel    = flag.String("skel", "", "host directory tree to copy into the image")
	)
	flag.Parse()

	dev, err := blockdev.MkImage(*out, *nblocks)
	if err != nil {
		fmt.Printf("mkfs: %v\n", err)
		os.Exit(1)
	}
	defer dev.Close()

	cache := pcache.NewCache(mem.NewArena(), 0)
	if ferr := s5fs.Format(dev, cache, *ninodes); ferr != 0 {
		fmt.Printf("mkfs: format: %v\n", ferr)
		os.Exit(1)
	}

	vc := vfs.NewCache()
	fs := s5fs.Mount(dev, 0, cache, vc)
	root, rerr := vc.Vget(fs, fs.RootIno())
	if rerr != 0 {
		fmt.Printf("mkfs: vget root: %v\n", rerr)
		os.Exit(1)
	}

	if *skel != "" {
		addfiles(vc, root, *skel)
	}

	vc.Vput(root)
	fs.Unmount()
}

// addfiles walks skeldir on the host and replicates its contents into the
// image rooted at root.
func addfiles(vc *vfs.Cache, root *vfs.Vnode, skeldir string) {
	err := filepath.WalkDir(skeldir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			fmt.Printf("mkfs: failed to access %q: %v\n", path, err)
			return err
		}
		rel := strings.TrimPrefix(path, skeldir)
		rel = strings.Trim(rel, string(filepath.Separator))
		if rel == "" {
			return nil
		}

		dir, base := filepath.Split(rel)
		parent, perr := ensureDir(vc, root, strings.TrimSuffix(dir, "/"))
		if perr != 0 {
			fmt.Printf("mkfs: failed to resolve parent of %v: %v\n", rel, perr)
			return nil
		}
		defer vc.Vput(parent)

		if d.IsDir() {
			if _, merr := parent.Mkdir(base); merr != 0 {
				fmt.Printf("mkfs: failed to create dir %v: %v\n", rel, merr)
			}
			return nil
		}

		ino, cerr := parent.Create(base)
		if cerr != 0 {
			fmt.Printf("mkfs: failed to create file %v: %v\n", rel, cerr)
			return nil
		}
		f, verr := vc.Vget(parent.FS, ino)
		if verr != 0 {
			fmt.Printf("mkfs: failed to vget %v: %v\n", rel, verr)
			return nil
		}
		defer vc.Vput(f)
		copydata(path, f)
		return nil
	})
	if err != nil {
		fmt.Printf("mkfs: error walking %q: %v\n", skeldir, err)
		os.Exit(1)
	}
}

// ensureDir resolves (creating as needed) every path component of rel
// under root, mkdir -p style, returning a referenced vnode for the final
// directory.
func ensureDir(vc *vfs.Cache, root *vfs.Vnode, rel string) (*vfs.Vnode, defs.Err_t) {
	cur := root
	cur.Ref()
	if rel == "" {
		return cur, 0
	}
	for _, name := range strings.Split(rel, "/") {
		if name == "" {
			continue
		}
		ino, err := cur.Lookup(name)
		if err != 0 {
			ino, err = cur.Mkdir(name)
		}
		if err != 0 {
			vc.Vput(cur)
			return nil, err
		}
		next, verr := vc.Vget(cur.FS, ino)
		vc.Vput(cur)
		if verr != 0 {
			return nil, verr
		}
		cur = next
	}
	return cur, 0
}

// copydata reads the file at src and writes its contents into f block by
// block.
func copydata(src string, f *vfs.Vnode) {
	srcFile, err := os.Open(src)
	if err != nil {
		fmt.Printf("mkfs: %v\n", err)
		return
	}
	defer srcFile.Close()

	buf := make([]byte, s5fs.BlockSize)
	off := 0
	for {
		n, rerr := srcFile.Read(buf)
		if rerr != nil && rerr != io.EOF {
			fmt.Printf("mkfs: read %v: %v\n", src, rerr)
			return
		}
		if n > 0 {
			if _, werr := f.Write(off, buf[:n]); werr != 0 {
				fmt.Printf("mkfs: write %v: %v\n", src, werr)
				return
			}
			off += n
		}
		if rerr == io.EOF {
			return
		}
	}
}
