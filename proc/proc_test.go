package proc

import (
	"testing"

	"weenos/defs"
	"weenos/mem"
	"weenos/mmobj"
	"weenos/pcache"
	"weenos/vfs"
	"weenos/vmm"
)

func newTestProc(t *testing.T, name string) (*Proc, *vmm.Map) {
	t.Helper()
	cache := pcache.NewCache(mem.NewArena(), 0)
	m := vmm.NewMap(cache, &mem.CountingTLB{})
	root := &vfs.Vnode{Ino: 1, Mode: defs.ModeDir}
	return New(Pid(1), name, m, &mem.CountingTLB{}, vfs.NewCache(), root), m
}

func TestReserveInstallFd(t *testing.T) {
	p, _ := newTestProc(t, "init")
	slot, err := p.Reserve()
	if err != 0 {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := p.Fd(slot); err != -defs.EBADF {
		t.Fatalf("expected EBADF for reserved-but-uninstalled slot, got %v", err)
	}
	vn := &vfs.Vnode{Ino: 2, Mode: defs.ModeReg}
	f := vfs.NewFile(vn, vfs.FileRead)
	p.Install(slot, f)
	got, err := p.Fd(slot)
	if err != 0 || got != f {
		t.Fatalf("Fd after install: got %v, %v", got, err)
	}
}

func TestFdExhaustion(t *testing.T) {
	p, _ := newTestProc(t, "init")
	for i := 0; i < defs.NFILES; i++ {
		if _, err := p.Reserve(); err != 0 {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}
	if _, err := p.Reserve(); err != -defs.EMFILE {
		t.Fatalf("expected EMFILE once the table is full, got %v", err)
	}
}

func TestDoForkDuplicatesFdsAndIsolatesAreas(t *testing.T) {
	parent, m := newTestProc(t, "parent")
	parent.AddThread(NewThread(1, 4096))

	anon := mmobj.NewAnon(m.Cache)
	area, err := m.Map(vmm.MapParams{NPages: 1, Prot: defs.PROT_READ | defs.PROT_WRITE, Shared: false, Backing: anon})
	if err != 0 {
		t.Fatalf("map: %v", err)
	}

	vn := &vfs.Vnode{Ino: 5, Mode: defs.ModeReg}
	slot, err := parent.Reserve()
	if err != 0 {
		t.Fatalf("reserve: %v", err)
	}
	parent.Install(slot, vfs.NewFile(vn, vfs.FileRead))

	child, err := DoFork(parent, Pid(2), nil)
	if err != 0 {
		t.Fatalf("fork: %v", err)
	}

	if len(child.Threads()) != 1 {
		t.Fatalf("expected exactly one cloned thread, got %d", len(child.Threads()))
	}

	cf, err := child.Fd(slot)
	if err != 0 {
		t.Fatalf("child fd: %v", err)
	}
	if cf.Vn != vn {
		t.Fatalf("child fd should share the parent's vnode")
	}

	// Closing in both processes should observe the shared refcount: the
	// file survives the first close (still referenced by the other
	// process) and is released on the second.
	if last := cf.Close(); last {
		t.Fatalf("file should still be referenced by the parent")
	}
	pf, _ := parent.Fd(slot)
	if last := pf.Close(); !last {
		t.Fatalf("file should be released once both references are dropped")
	}

	// Writing into the child's copy of the private area must not be
	// visible through the parent's area (shadow interposition isolates
	// each side, spec.md §4.6).
	childArea := child.Vmmap.Areas()[0]
	f, err := child.Vmmap.Fault(childArea.Start, true)
	if err != 0 {
		t.Fatalf("child fault: %v", err)
	}
	f.Data[0] = 0x7A
	child.Vmmap.Cache.Unpin(f)

	pf2, err := m.Fault(area.Start, false)
	if err != 0 {
		t.Fatalf("parent fault: %v", err)
	}
	if pf2.Data[0] == 0x7A {
		t.Fatalf("fork did not isolate the private area between parent and child")
	}
	m.Cache.Unpin(pf2)
}
