package wcn3990

import (
	"sync"
	"time"
)

// retryTimer is a one shot deferred call shared by all pipes. Arming while
// a firing is pending does nothing, so any number of failures before the
// deadline produce a single call.
type retryTimer struct {
	mu        sync.Mutex
	fn        func()
	t         *time.Timer
	pending   bool
	canceling bool
	// gen invalidates firings of timers stopped too late by cancelSync.
	gen     uint64
	running sync.WaitGroup
	firings uint64
}

// arm schedules fn after delay. It reports whether a new firing was scheduled.
func (rt *retryTimer) arm(delay time.Duration) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.pending || rt.canceling || rt.fn == nil {
		return false
	}
	rt.pending = true
	gen := rt.gen
	rt.t = time.AfterFunc(delay, func() { rt.fire(gen) })
	return true
}

func (rt *retryTimer) fire(gen uint64) {
	rt.mu.Lock()
	if !rt.pending || gen != rt.gen {
		rt.mu.Unlock()
		return
	}
	rt.pending = false
	rt.firings++
	rt.running.Add(1)
	fn := rt.fn
	rt.mu.Unlock()
	defer rt.running.Done()
	fn()
}

// cancelSync removes a pending firing and waits for a firing in progress to
// return. Arms issued by that firing are dropped. The timer may be armed
// again once cancelSync returns. Must not be called from fn.
func (rt *retryTimer) cancelSync() {
	rt.mu.Lock()
	rt.canceling = true
	if rt.t != nil {
		rt.t.Stop()
		rt.t = nil
	}
	rt.pending = false
	rt.gen++
	rt.mu.Unlock()

	rt.running.Wait()

	rt.mu.Lock()
	rt.canceling = false
	rt.mu.Unlock()
}

func (rt *retryTimer) isPending() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.pending
}

func (rt *retryTimer) firingCount() uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.firings
}
