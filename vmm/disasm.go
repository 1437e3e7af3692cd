package vmm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// DisasmTrace decodes the first instruction in code (the bytes resident at
// a PROT_EXEC fault address) and renders it in GNU syntax, for optional
// debug tracing of instruction-fetch faults. spec.md targets 32-bit x86
// (multiboot-booted), so decoding always runs in 32-bit mode.
//
// Grounded on the teacher's go.mod dependency on golang.org/x/arch (never
// exercised in the pack's own VM code, per DESIGN.md) — wired here into
// the one place in this core where raw instruction bytes are actually in
// hand: a page fault on an executable mapping.
func DisasmTrace(pc uint32, code []byte) (string, error) {
	inst, err := x86asm.Decode(code, 32)
	if err != nil {
		return "", fmt.Errorf("vmm: disasm at %#x: %w", pc, err)
	}
	return x86asm.GNUSyntax(inst, uint64(pc), nil), nil
}
