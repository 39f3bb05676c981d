package crawler

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// frontier is an unbounded FIFO queue of URLs awaiting fetch. Spec §9
// calls out the frontier as intentionally unbounded: bounding it risks
// deadlocking the parse-completion consumer when it needs to enqueue a
// newly discovered link while the coordinator applies backpressure
// upstream (§5). It is backed by a growable slice rather than a
// fixed-capacity channel, with a single-slot notify channel used to wake
// a polling goroutine — the pack carries no bounded-free queue library to
// ground an alternative on, so this stays on the standard library.
//
// The clock is injected (github.com/benbjohnson/clock) so tests can
// advance a mock clock instead of sleeping through the real 5-second poll
// interval described in spec §5.
type frontier struct {
	mutex  sync.Mutex
	items  []string
	notify chan struct{}
	clock  clock.Clock
}

func newFrontier(c clock.Clock) *frontier {
	if c == nil {
		c = clock.New()
	}
	return &frontier{notify: make(chan struct{}, 1), clock: c}
}

// Put appends a URL to the tail of the frontier and wakes any goroutine
// blocked in Poll.
func (f *frontier) Put(u string) {
	f.mutex.Lock()
	f.items = append(f.items, u)
	f.mutex.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of URLs currently queued.
func (f *frontier) Len() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.items)
}

func (f *frontier) tryPop() (string, bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if len(f.items) == 0 {
		return "", false
	}
	u := f.items[0]
	f.items = f.items[1:]
	return u, true
}

// Poll waits up to timeout for a URL to become available. It returns
// ok=false on timeout, never blocking indefinitely, per the coordinator's
// 5-second poll suspension point (§5).
func (f *frontier) Poll(timeout time.Duration) (string, bool) {
	if u, ok := f.tryPop(); ok {
		return u, true
	}
	timer := f.clock.Timer(timeout)
	defer timer.Stop()
	select {
	case <-f.notify:
		return f.tryPop()
	case <-timer.C:
		return "", false
	}
}
