package proc

import (
	"weenos/defs"
	"weenos/kstat"
	"weenos/mmobj"
)

// Scheduler is the capability DoFork needs to make a freshly constructed
// process/thread pair runnable, named but left abstract the way spec.md
// §1 places the scheduler itself out of scope — the analogue of the
// teacher's sched_make_runnable.
type Scheduler interface {
	MakeRunnable(p *Proc, t *Thread)
}

// DoFork implements fork(2) (spec.md §4.6): clone the address-space map,
// interpose a fresh copy-on-write shadow over every private area in both
// parent and child, duplicate the file-descriptor table, take a reference
// on the working-directory vnode, flush the TLB over the full user range,
// and clone one thread into the new process before handing it to the
// scheduler.
func DoFork(parent *Proc, childPid Pid, sched Scheduler) (*Proc, defs.Err_t) {
	kstat.Global.ForkCalls.Inc()
	parentAreas := parent.Vmmap.Areas()

	// Step 1: clone the vma list. Clone() already bumps each area's
	// object's reference count for the new citation.
	childMap := parent.Vmmap.Clone()
	childAreas := childMap.Areas()
	if len(childAreas) != len(parentAreas) {
		return nil, -defs.EINVAL
	}

	// Step 2: interpose a fresh shadow per private area, in both address
	// spaces, over the object they shared a moment ago — spec.md §4.6's
	// "shadow-interposition" COW technique (DESIGN.md).
	for i, pa := range parentAreas {
		if pa.Shared {
			continue
		}
		orig := pa.Obj
		childShadow := mmobj.NewShadow(parent.Vmmap.Cache, orig)
		parentShadow := mmobj.NewShadow(parent.Vmmap.Cache, orig)
		parent.Vmmap.ReplaceObj(pa, parentShadow)
		childMap.ReplaceObj(childAreas[i], childShadow)
	}

	// Step 3: duplicate the fd table, bumping each shared File's refcount.
	childFds := parent.dupFdTable()

	// Step 4: the child starts life in the same working directory.
	parent.Cwd.Ref()

	child := &Proc{
		Pid:      childPid,
		Name:     parent.Name,
		Vmmap:    childMap,
		TLB:      parent.TLB,
		VC:       parent.VC,
		fds:      childFds,
		Cwd:      parent.Cwd,
		Root:     parent.Root,
		threads:  make(map[Tid]*Thread),
		Accnt:    parent.Accnt.Fork(),
		children: make(map[Pid]*Proc),
		parent:   parent,
	}

	// Step 5: every PTE covering a private area just went from writable to
	// copy-on-write in both address spaces; shoot down the whole user
	// range in both (spec.md §5 TLB coherence).
	if parent.TLB != nil {
		parent.TLB.FlushRange(defs.USER_LOW_PAGE, defs.USER_HIGH_PAGE-defs.USER_LOW_PAGE)
	}

	// Step 6: clone exactly one thread into the child and hand both off to
	// the scheduler. DoFork is not told which thread is calling, so it
	// clones the first one found in the parent's thread map, whose
	// iteration order is not defined.
	parent.mu.Lock()
	callers := make([]*Thread, 0, len(parent.threads))
	for _, t := range parent.threads {
		callers = append(callers, t)
	}
	parent.mu.Unlock()
	if len(callers) == 0 {
		return nil, -defs.EINVAL
	}
	caller := callers[0]
	childThread := caller.Clone(Tid(childPid), caller.Regs)
	child.AddThread(childThread)

	parent.mu.Lock()
	parent.children[childPid] = child
	parent.mu.Unlock()

	if sched != nil {
		sched.MakeRunnable(child, childThread)
	}
	return child, 0
}
