package kstat

import (
	"bytes"
	"testing"
)

func TestCounterIncAndLoad(t *testing.T) {
	var c Counter
	for i := 0; i < 5; i++ {
		c.Inc()
	}
	c.Add(10)
	if got := c.Load(); got != 15 {
		t.Fatalf("got %d, want 15", got)
	}
}

func TestDumpListsEveryField(t *testing.T) {
	var c Counters
	c.CacheHits.Inc()
	c.ForkCalls.Add(3)
	out := Dump(&c)
	for _, want := range []string{"CacheHits: 1", "ForkCalls: 3", "InodeAllocs: 0"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Fatalf("Dump output missing %q: %s", want, out)
		}
	}
}

func TestSnapshotWritesValidProfile(t *testing.T) {
	var c Counters
	c.PageFaults.Add(7)
	p := Snapshot(&c)
	if len(p.Sample) == 0 {
		t.Fatal("expected at least one sample")
	}
	var buf bytes.Buffer
	if err := p.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected non-empty encoded profile")
	}

	found := false
	for i, fn := range p.Function {
		if fn.Name == "PageFaults" {
			found = true
			if p.Sample[i].Value[0] != 7 {
				t.Fatalf("PageFaults sample = %d, want 7", p.Sample[i].Value[0])
			}
		}
	}
	if !found {
		t.Fatal("PageFaults function not present in snapshot")
	}
}
