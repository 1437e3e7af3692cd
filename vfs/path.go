// Package vfs implements the UNIX-style virtual file system layer of
// spec.md §4.7: the vnode/file abstraction, the vnode cache (vget/vput),
// path resolution (open_namev), and do_open.
//
// Path is the path-component helper, kept close to the teacher's
// ustr/ustr.go (Isdot/Isdotdot/IsAbsolute/Extend) but rebuilt as a plain
// Go string splitter since this layer works over host-provided path
// strings rather than kernel-copied byte buffers.
package vfs

import "strings"

// Path is an absolute or relative slash-separated path.
type Path string

// IsAbsolute reports whether p begins with '/'.
func (p Path) IsAbsolute() bool {
	return len(p) > 0 && p[0] == '/'
}

// Components splits p into its non-empty path components.
func (p Path) Components() []string {
	parts := strings.Split(string(p), "/")
	out := make([]string, 0, len(parts))
	for _, c := range parts {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Split separates p into its parent-directory path and final component,
// the way syscalls that name a new or removed entry (mkdir, rmdir, unlink,
// link) need to resolve the parent separately from the leaf name. A
// single-component relative path splits to ("." , component).
func (p Path) Split() (dir string, base string) {
	comps := p.Components()
	if len(comps) == 0 {
		return string(p), ""
	}
	base = comps[len(comps)-1]
	rest := comps[:len(comps)-1]
	switch {
	case p.IsAbsolute():
		dir = "/" + strings.Join(rest, "/")
	case len(rest) == 0:
		dir = "."
	default:
		dir = strings.Join(rest, "/")
	}
	return dir, base
}

// Isdot reports whether a single component equals ".".
func Isdot(c string) bool { return c == "." }

// Isdotdot reports whether a single component equals "..".
func Isdotdot(c string) bool { return c == ".." }
