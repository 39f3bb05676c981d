package crawler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/codepr/crawlkit/messaging"
)

// stage is a bounded worker pool generalizing the teacher's
// semaphore+waitgroup goroutine pattern (crawler/crawler.go's
// crawlPage): up to width goroutines run concurrently, each executing a
// submitted job and delivering its result onto a completion queue in
// completion order rather than submission order. Both the fetch stage
// (width = threadLimit) and the parse stage (width = ceil(threadLimit *
// 0.5)) of spec §4.1/§4.2 are instances of this same type.
type stage[T any] struct {
	sem       chan struct{}
	completed messaging.ChannelQueue[T]
	wg        sync.WaitGroup
	closed    atomic.Bool
	clock     clock.Clock
}

func newStage[T any](width int, c clock.Clock) *stage[T] {
	if width < 1 {
		width = 1
	}
	if c == nil {
		c = clock.New()
	}
	return &stage[T]{
		sem:       make(chan struct{}, width),
		completed: messaging.NewChannelQueue[T](width * 4),
		clock:     c,
	}
}

// submit queues job to run on the next free worker slot, returning
// immediately. It fails only with ErrPoolClosed.
func (s *stage[T]) submit(job func() T) error {
	if s.closed.Load() {
		return ErrPoolClosed
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sem <- struct{}{}
		defer func() { <-s.sem }()
		result := job()
		_ = s.completed.Produce(result)
	}()
	return nil
}

// pollCompleted returns the next completed result in completion order,
// or ok=false on timeout — never an error, per spec §4.1.
func (s *stage[T]) pollCompleted(timeout time.Duration) (T, bool) {
	v, err := s.completed.PollTimeout(timeout)
	if err != nil {
		return v, false
	}
	return v, true
}

// shutdown waits up to grace for in-flight jobs to finish, then marks the
// stage closed so no further submissions are accepted. It returns
// ErrShutdownTimeout if grace elapsed first; the caller's teardown must
// continue regardless, per spec §7's ShutdownTimeout policy.
func (s *stage[T]) shutdown(grace time.Duration) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := s.clock.Timer(grace)
	defer timer.Stop()

	var err error
	select {
	case <-done:
	case <-timer.C:
		err = ErrShutdownTimeout
	}
	s.closed.Store(true)
	return err
}
