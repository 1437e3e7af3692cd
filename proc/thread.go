package proc

import "sync"

// Tid is a thread identifier, unique within the lifetime of the core.
type Tid int64

// Thread holds per-thread scheduling state, adapted from the teacher's
// tinfo/tinfo.go Tnote_t: alive/killed flags behind a leaf mutex. The
// kernel stack and saved register context are out of scope (spec.md §1
// places context-switch internals out of bounds) and are represented only
// as opaque placeholders a real scheduler would fill in.
type Thread struct {
	mu sync.Mutex

	Tid     Tid
	Alive   bool
	Killed  bool
	Doomed  bool

	Kstack  []byte      // placeholder for the kernel stack
	Regs    interface{} // placeholder for saved user register state
}

// NewThread constructs a runnable thread with a fresh kernel stack of the
// given size.
func NewThread(tid Tid, kstackSize int) *Thread {
	return &Thread{Tid: tid, Alive: true, Kstack: make([]byte, kstackSize)}
}

// Kill marks the thread doomed; a real scheduler checks this on every
// return to kernel mode before resuming user execution.
func (t *Thread) Kill() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Killed = true
	t.Doomed = true
}

// IsDoomed reports whether the thread has been marked for termination.
func (t *Thread) IsDoomed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Doomed
}

// Clone constructs a child thread carrying a copy of this thread's
// register state and a fresh kernel stack of the same size — the "clone
// thread/kstack/regs" step of spec.md §4.6's fork algorithm. The caller
// supplies the child's tid and fills in the register copy (architecture
// state is out of this core's scope).
func (t *Thread) Clone(childTid Tid, regs interface{}) *Thread {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Thread{
		Tid:    childTid,
		Alive:  true,
		Kstack: make([]byte, len(t.Kstack)),
		Regs:   regs,
	}
}
