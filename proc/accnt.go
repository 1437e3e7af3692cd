package proc

import (
	"sync/atomic"
	"time"
)

// Accnt accumulates per-process accounting information, adapted from the
// teacher's accnt/accnt.go (Accnt_t): nanosecond counters updated
// atomically so accounting and scheduling can run concurrently.
type Accnt struct {
	Userns int64
	Sysns  int64
}

// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt) Utadd(delta int64) { atomic.AddInt64(&a.Userns, delta) }

// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt) Systadd(delta int64) { atomic.AddInt64(&a.Sysns, delta) }

// Now returns the current time in nanoseconds, the clock this accounting
// package measures against.
func (a *Accnt) Now() int64 { return time.Now().UnixNano() }

// IoTime removes time spent waiting for I/O from the system-time counter,
// the way the teacher's Io_time backs I/O wait out of accounted CPU time.
func (a *Accnt) IoTime(since int64) { a.Systadd(since - a.Now()) }

// Fork returns a fresh zeroed Accnt for a child process; Biscuit likewise
// starts a forked process's accounting at zero rather than inheriting the
// parent's counters.
func (a *Accnt) Fork() *Accnt { return &Accnt{} }
