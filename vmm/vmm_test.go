package vmm

import (
	"testing"

	"weenos/defs"
	"weenos/mem"
	"weenos/mmobj"
	"weenos/pcache"
)

func newTestMap() *Map {
	cache := pcache.NewCache(mem.NewArena(), 0)
	tlb := &mem.CountingTLB{}
	return NewMap(cache, tlb)
}

func TestMapOrderedDisjoint(t *testing.T) {
	m := newTestMap()
	for i := 0; i < 5; i++ {
		if _, err := m.DoMmap(DoMmapParams{Length: defs.PGSIZE, Prot: defs.PROT_READ, Flags: defs.MAP_PRIVATE | defs.MAP_ANON}); err != 0 {
			t.Fatalf("mmap %d: %v", i, err)
		}
	}
	areas := m.Areas()
	for i := 1; i < len(areas); i++ {
		if areas[i-1].End > areas[i].Start {
			t.Fatalf("areas overlap: %v then %v", areas[i-1], areas[i])
		}
		if areas[i-1].Start >= areas[i].Start {
			t.Fatalf("areas not ascending: %v then %v", areas[i-1], areas[i])
		}
	}
}

func TestMunmapIdempotent(t *testing.T) {
	m := newTestMap()
	addr, err := m.DoMmap(DoMmapParams{Length: defs.PGSIZE * 4, Prot: defs.PROT_READ | defs.PROT_WRITE, Flags: defs.MAP_PRIVATE | defs.MAP_ANON})
	if err != 0 {
		t.Fatalf("mmap: %v", err)
	}
	if err := m.DoMunmap(addr, defs.PGSIZE*4); err != 0 {
		t.Fatalf("first munmap: %v", err)
	}
	if err := m.DoMunmap(addr, defs.PGSIZE*4); err != 0 {
		t.Fatalf("second munmap should be a no-op, got: %v", err)
	}
	if len(m.Areas()) != 0 {
		t.Fatalf("expected no areas left, got %v", m.Areas())
	}
}

func TestCOWIsolation(t *testing.T) {
	cache := pcache.NewCache(mem.NewArena(), 0)
	anon := mmobj.NewAnon(cache)
	m1 := NewMap(cache, &mem.CountingTLB{})
	area1, err := m1.Map(MapParams{NPages: 1, Prot: defs.PROT_READ | defs.PROT_WRITE, Shared: false, Backing: anon})
	if err != 0 {
		t.Fatalf("map 1: %v", err)
	}

	m2 := m1.Clone()
	area2 := m2.Areas()[0]

	// Clone shares the area's object; interpose a fresh shadow on each
	// side the way proc.DoFork does.
	orig := area1.Obj
	m1.ReplaceObj(area1, mmobj.NewShadow(cache, orig))
	m2.ReplaceObj(area2, mmobj.NewShadow(cache, orig))

	// Fault-write into m1's copy; m2's page must remain untouched.
	f1, err := m1.Fault(area1.Start, true)
	if err != 0 {
		t.Fatalf("fault 1: %v", err)
	}
	f1.Data[0] = 0xAB
	cache.Unpin(f1)

	f2, err := m2.Fault(area2.Start, false)
	if err != 0 {
		t.Fatalf("fault 2: %v", err)
	}
	if f2.Data[0] != 0 {
		t.Fatalf("COW isolation violated: saw %x in sibling copy", f2.Data[0])
	}
	cache.Unpin(f2)
}

func TestSharedMappingVisibility(t *testing.T) {
	cache := pcache.NewCache(mem.NewArena(), 0)
	anon := mmobj.NewAnon(cache)
	m1 := NewMap(cache, &mem.CountingTLB{})
	area1, err := m1.Map(MapParams{NPages: 1, Prot: defs.PROT_READ | defs.PROT_WRITE, Shared: true, Backing: anon})
	if err != 0 {
		t.Fatalf("map 1: %v", err)
	}
	m2 := m1.Clone()
	area2 := m2.Areas()[0]

	f1, err := m1.Fault(area1.Start, true)
	if err != 0 {
		t.Fatalf("fault 1: %v", err)
	}
	f1.Data[0] = 0xCD
	cache.Unpin(f1)

	f2, err := m2.Fault(area2.Start, false)
	if err != 0 {
		t.Fatalf("fault 2: %v", err)
	}
	if f2.Data[0] != 0xCD {
		t.Fatalf("shared mapping should observe the write, got %x", f2.Data[0])
	}
	cache.Unpin(f2)
}

func TestMmapErrorWall(t *testing.T) {
	m := newTestMap()
	cases := []DoMmapParams{
		{Length: 0, Flags: defs.MAP_PRIVATE | defs.MAP_ANON},
		{Length: defs.PGSIZE, Flags: defs.MAP_PRIVATE}, // neither anon nor backed
		{Length: defs.PGSIZE, Flags: defs.MAP_PRIVATE | defs.MAP_SHARED | defs.MAP_ANON},
		{Length: defs.PGSIZE, Off: 1, Flags: defs.MAP_PRIVATE | defs.MAP_ANON}, // unaligned offset
	}
	for i, c := range cases {
		if _, err := m.DoMmap(c); err == 0 {
			t.Fatalf("case %d: expected error, got success", i)
		}
	}
}

func TestFaultOnUnmappedAddr(t *testing.T) {
	m := newTestMap()
	if _, err := m.Fault(12345, false); err != -defs.EFAULT {
		t.Fatalf("expected EFAULT, got %v", err)
	}
}

func TestExecFaultRecordsDisasmTrace(t *testing.T) {
	cache := pcache.NewCache(mem.NewArena(), 0)
	anon := mmobj.NewAnon(cache)
	m := NewMap(cache, &mem.CountingTLB{})
	area, err := m.Map(MapParams{NPages: 1, Prot: defs.PROT_READ | defs.PROT_WRITE | defs.PROT_EXEC, Shared: true, Backing: anon})
	if err != 0 {
		t.Fatalf("map: %v", err)
	}

	f, err := m.Fault(area.Start, true)
	if err != 0 {
		t.Fatalf("write fault: %v", err)
	}
	// xor eax, eax; ret — a short, unambiguously decodable x86 sequence.
	copy(f.Data[:], []byte{0x31, 0xC0, 0xC3})
	cache.Unpin(f)

	if m.LastExecTrace() != "" {
		t.Fatal("expected no trace before any instruction-fetch fault")
	}
	f2, err := m.Fault(area.Start, false)
	if err != 0 {
		t.Fatalf("exec fault: %v", err)
	}
	cache.Unpin(f2)
	if trace := m.LastExecTrace(); trace == "" {
		t.Fatal("expected a disassembly trace after faulting an executable page")
	}
}

func TestDisasmTraceDecodesKnownInstruction(t *testing.T) {
	// 0x90 is a single-byte NOP in both 32- and 64-bit mode.
	trace, err := DisasmTrace(0x1000, []byte{0x90})
	if err != nil {
		t.Fatalf("DisasmTrace: %v", err)
	}
	if trace == "" {
		t.Fatal("expected a non-empty disassembly")
	}
}

func TestFaultWriteIntoReadOnlyArea(t *testing.T) {
	m := newTestMap()
	addr, err := m.DoMmap(DoMmapParams{Length: defs.PGSIZE, Prot: defs.PROT_READ, Flags: defs.MAP_PRIVATE | defs.MAP_ANON})
	if err != 0 {
		t.Fatalf("mmap: %v", err)
	}
	if _, err := m.Fault(addr/defs.PGSIZE, true); err != -defs.EFAULT {
		t.Fatalf("expected EFAULT on write to read-only area, got %v", err)
	}
}
