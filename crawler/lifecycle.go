package crawler

import (
	"fmt"
	"net/url"
)

// Navigate is the primary entry point of the Control API: it
// initializes the pools, seeds the frontier with the base URL if it is
// still empty (with a "/" appended when the base URL has no path, so the
// root page passes the allowed-suffix check), starts both completion
// consumers, runs the coordinator
// to quiescence, drains, and shuts down. It blocks until the crawl
// completes (or Shutdown is called concurrently from another
// goroutine).
func (c *Crawler) Navigate() error {
	c.mu.Lock()
	if c.state == StateRunning {
		c.mu.Unlock()
		return fmt.Errorf("%w: crawler already running", ErrConfig)
	}
	c.stopFlag = false
	c.discoveryEnabled = true
	c.state = StateRunning
	c.mu.Unlock()

	if err := c.initPools(); err != nil {
		c.mu.Lock()
		c.state = StateConfigured
		c.mu.Unlock()
		return err
	}

	if c.frontier.Len() == 0 {
		baseURL, _ := c.baseURLs()
		seed := baseURL
		if u, err := url.Parse(baseURL); err == nil && u.Path == "" {
			seed = baseURL + "/"
		}
		if c.scheduled.Add(seed) {
			c.frontier.Put(seed)
		}
	}

	c.startConsumers()
	c.runCoordinator()
	c.drainToQuiescence()
	c.stopConsumersAndTeardown()

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
	return nil
}

// startConsumers launches the fetch- and parse-completion consumers
// against a fresh stop channel.
func (c *Crawler) startConsumers() {
	c.mu.Lock()
	c.consumersStop = make(chan struct{})
	stop := c.consumersStop
	c.mu.Unlock()

	c.consumersWG.Add(2)
	go c.runFetchConsumer(stop)
	go c.runParseConsumer(stop)
}

// stopConsumersAndTeardown closes the current consumer stop channel
// (if any) exactly once, joins both consumer goroutines, and tears down
// the worker pools. It is safe to call concurrently from Navigate's own
// completion path and from an explicit Shutdown/HardPause call: the
// channel handoff under the mutex ensures only the first caller
// actually performs the teardown.
func (c *Crawler) stopConsumersAndTeardown() {
	c.mu.Lock()
	stop := c.consumersStop
	c.consumersStop = nil
	c.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	c.consumersWG.Wait()
	c.teardownPools()
}

// drainToQuiescence blocks until both scheduled counters have drained to
// zero (no fetch or parse job in flight), or until the stop flag is set,
// polling every 5 seconds. URLs still queued in the frontier are left in
// place.
func (c *Crawler) drainToQuiescence() {
	for !c.counters.Quiescent() {
		if c.isStopped() {
			return
		}
		c.clock.Sleep(pollTimeout)
	}
}

// Pause sets forcePause: the coordinator stops dispatching new fetches,
// but both completion consumers keep draining in-flight work.
func (c *Crawler) Pause() {
	c.mu.Lock()
	c.forcePause = true
	if c.state == StateRunning {
		c.state = StatePaused
	}
	c.mu.Unlock()
}

// Unpause clears forcePause, resuming dispatch.
func (c *Crawler) Unpause() {
	c.mu.Lock()
	c.forcePause = false
	if c.state == StatePaused {
		c.state = StateRunning
	}
	c.mu.Unlock()
}

// HardPause pauses, drains both completion consumers to quiescence,
// then shuts down the pools. Visited/scheduled/frontier/blocked state
// is retained so HardUnpause can resume where it left off.
func (c *Crawler) HardPause() {
	c.Pause()
	c.drainToQuiescence()
	c.stopConsumersAndTeardown()
	c.mu.Lock()
	c.state = StateDraining
	c.mu.Unlock()
}

// HardUnpause recreates the pools and completion consumers, clears the
// stop flag, and unpauses.
func (c *Crawler) HardUnpause() error {
	c.mu.Lock()
	c.stopFlag = false
	c.mu.Unlock()

	if err := c.initPools(); err != nil {
		return err
	}
	c.startConsumers()
	c.Unpause()

	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()
	return nil
}

// Reset is HardPause followed by HardUnpause; SetThreadLimit triggers
// it automatically when called while the crawler is running.
func (c *Crawler) Reset() error {
	c.HardPause()
	return c.HardUnpause()
}

// Shutdown sets the stop flag, tears down both worker pools (each
// bounded by a 2-minute grace period) and the client pool, and joins
// both consumer goroutines. It is safe to call while Navigate is
// blocked in another goroutine.
func (c *Crawler) Shutdown() error {
	c.mu.Lock()
	c.stopFlag = true
	c.state = StateDraining
	c.mu.Unlock()

	c.stopConsumersAndTeardown()

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
	return nil
}
