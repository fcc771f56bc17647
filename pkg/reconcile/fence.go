package reconcile

import "sync/atomic"

// Fence is the re-entrancy guard for the pipeline: at most one execution is
// ever in flight. A rejected entry is simply dropped, never queued; the
// triggering condition re-fires later if still relevant.
type Fence struct {
	inFlight atomic.Bool
}

// TryEnter attempts to claim the fence. It returns false when an execution
// is already in flight, in which case the caller must abandon the attempt.
func (f *Fence) TryEnter() bool {
	return f.inFlight.CompareAndSwap(false, true)
}

// Leave releases the fence. It must run on a guaranteed-execution path
// (defer) so a failed run can never lock the pipeline out permanently.
func (f *Fence) Leave() {
	f.inFlight.Store(false)
}

// InFlight reports whether an execution currently holds the fence.
func (f *Fence) InFlight() bool {
	return f.inFlight.Load()
}
