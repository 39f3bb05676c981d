package crawler

import (
	"fmt"
	"math"

	"github.com/codepr/crawlkit/crawler/fetcher"
)

// fetchResult is the value flowing out of the fetch stage's completion
// queue: either a parse job bound to the fetched document, or the error
// that prevented one from being produced.
type fetchResult struct {
	url string
	job *fetcher.ParseJob
	err error
}

// parseResult is the value flowing out of the parse stage's completion
// queue: the set of outbound links discovered while processing one
// fetched page, plus any error recovered from a panicking action.
type parseResult struct {
	url   string
	links []string
	err   error
}

// toFetcherActions adapts a slice of crawler.Action to fetcher.Action.
// Both interfaces declare the identical Act method, so each element is
// directly assignable without a named conversion.
func toFetcherActions(actions []Action) []fetcher.Action {
	out := make([]fetcher.Action, len(actions))
	for i, a := range actions {
		out[i] = a
	}
	return out
}

// initPools (re)creates the client pool and the two worker-pool stages
// from the crawler's current settings, replaying any client-pool
// configuration recorded before a pool existed.
func (c *Crawler) initPools() error {
	threadLimit := c.threadLimit()
	parseWidth := int(math.Ceil(float64(threadLimit) * parseWidthRatio))

	pool, err := fetcher.NewClientPool(threadLimit, c.fetchTimeout())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	c.applyPoolConfig(pool)

	c.mu.Lock()
	if c.parser == nil {
		c.parser = fetcher.NewGoqueryParser()
	}
	c.clientPool = pool
	c.fetcherImpl = fetcher.New(c.settings.UserAgent, c.parser, c.logger)
	c.mu.Unlock()

	c.fetchStage = newStage[fetchResult](threadLimit, c.clock)
	c.parseStage = newStage[parseResult](parseWidth, c.clock)
	return nil
}

// teardownPools shuts down both stages and the client pool, logging
// (but not failing on) a stage that missed its shutdown grace period.
func (c *Crawler) teardownPools() {
	if c.fetchStage != nil {
		if err := c.fetchStage.shutdown(shutdownGrace); err != nil {
			c.logger.Printf("fetch stage shutdown: %v", err)
		}
	}
	if c.parseStage != nil {
		if err := c.parseStage.shutdown(shutdownGrace); err != nil {
			c.logger.Printf("parse stage shutdown: %v", err)
		}
	}
	if c.clientPool != nil {
		c.clientPool.Close()
	}
}

// notifyFailure invokes every action with the fetch error, isolating a
// panicking action the same way ParseJob.Run isolates its own actions.
func (c *Crawler) notifyFailure(url string, err error, actions []Action) {
	for _, a := range actions {
		c.runActionSafely(url, err, a)
	}
}

func (c *Crawler) runActionSafely(url string, fetchErr error, a Action) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Printf("action panicked while processing failure for %s: %v", url, r)
		}
	}()
	a.Act(url, nil, fetchErr)
}

// dispatchFetch submits targetURL to the fetch stage. Acquiring and
// releasing a pooled client happens inside the submitted job, so it
// runs on the fetch stage's worker goroutine rather than the
// coordinator's.
func (c *Crawler) dispatchFetch(targetURL string) error {
	baseURL, baseURLSecure := c.baseURLs()
	actions := c.actions()
	return c.fetchStage.submit(func() fetchResult {
		client, err := c.clientPool.Acquire()
		if err != nil {
			wrapped := fmt.Errorf("%w: %v", ErrFetchFailed, err)
			c.notifyFailure(targetURL, wrapped, actions)
			return fetchResult{url: targetURL, err: wrapped}
		}
		defer c.clientPool.Release(client)

		job, _, err := c.fetcherImpl.Fetch(client, targetURL)
		if err != nil {
			wrapped := fmt.Errorf("%w: %v", ErrFetchFailed, err)
			c.notifyFailure(targetURL, wrapped, actions)
			return fetchResult{url: targetURL, err: wrapped}
		}
		job.SetActions(toFetcherActions(actions))
		job.SetBaseURL(baseURL)
		job.SetBaseURLSecure(baseURLSecure)
		return fetchResult{url: targetURL, job: job}
	})
}

// dispatchParse submits a fetched document to the parse stage.
func (c *Crawler) dispatchParse(url string, job *fetcher.ParseJob) error {
	return c.parseStage.submit(func() parseResult {
		links := job.Run()
		return parseResult{url: url, links: links, err: job.Err()}
	})
}

// runFetchConsumer is the fetch-completion consumer: a single-threaded
// loop draining the fetch stage with a 5-second poll timeout. Per
// completion, actuallyVisited is incremented, the parse job (if any) is
// handed to the parse stage, and linksScheduled is decremented only
// after that handoff — or after a failure is recorded — so the
// termination predicate never observes a transient zero while a
// follow-up job is in flight.
func (c *Crawler) runFetchConsumer(stop <-chan struct{}) {
	defer c.consumersWG.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}
		result, ok := c.fetchStage.pollCompleted(pollTimeout)
		if !ok {
			continue
		}
		c.counters.actuallyVisited.Add(1)
		if result.err == nil {
			if err := c.dispatchParse(result.url, result.job); err != nil {
				c.logger.Printf("parse stage: %v", err)
			} else {
				c.counters.pagesScheduled.Add(1)
			}
		}
		c.counters.linksScheduled.Add(-1)
	}
}

// runParseConsumer is the parse-completion consumer: a single-threaded
// loop draining the parse stage with a 5-second poll timeout. Every
// discovered link is scope-checked and frontier-deduplicated before
// being enqueued; discovery disabled via DisableCrawling suppresses new
// enqueues while in-flight work still drains, which is what lets
// shouldContinueCrawling observe quiescence shortly after.
func (c *Crawler) runParseConsumer(stop <-chan struct{}) {
	defer c.consumersWG.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}
		result, ok := c.parseStage.pollCompleted(pollTimeout)
		if !ok {
			continue
		}
		if result.err != nil {
			c.logger.Printf("%v", fmt.Errorf("%w: %v", ErrParseFailed, result.err))
		}
		if c.isDiscoveryEnabled() {
			for _, link := range result.links {
				if c.scope.IsExcluded(link, c.visited) {
					continue
				}
				if !c.scheduled.Add(link) {
					continue
				}
				c.frontier.Put(link)
			}
		}
		c.counters.pagesScheduled.Add(-1)
	}
}

// shouldContinueCrawling implements the producer loop's termination
// check: the crawl stops once the frontier is empty and both scheduled
// counters have drained to zero, or once the short-circuit dispatch
// bound has been exceeded.
func (c *Crawler) shouldContinueCrawling() bool {
	if c.frontier.Len() == 0 && c.counters.Quiescent() {
		return false
	}
	if sc := c.shortCircuitAfter(); sc > 0 && c.counters.visitedCounter.Load() > sc {
		return false
	}
	return true
}

// runCoordinator is the producer loop, run on the caller's goroutine by
// Navigate. Each iteration polls the frontier, promotes and re-checks
// scope on the popped URL, and dispatches it to the fetch stage,
// incrementing linksScheduled only after the dispatch succeeds.
func (c *Crawler) runCoordinator() {
	for {
		if c.isStopped() || !c.shouldContinueCrawling() {
			return
		}
		if c.counters.ShouldReportProgress(reportEveryNVisits) {
			c.logger.Println(c.GetCrawlProgress())
		}
		if c.counters.linksScheduled.Load() > c.maxProcessWaiting() || c.isForcePaused() {
			c.clock.Sleep(pollTimeout)
			continue
		}
		raw, ok := c.frontier.Poll(pollTimeout)
		if !ok {
			continue
		}
		c.scheduled.Remove(raw)

		baseURL, _ := c.baseURLs()
		u := prependBaseURLIfNeeded(raw, baseURL)
		if c.scope.IsExcluded(u, c.visited) {
			continue
		}
		if err := c.dispatchFetch(u); err != nil {
			c.logger.Printf("fetch stage: %v", err)
			continue
		}
		c.counters.linksScheduled.Add(1)
		c.visited.Dispatch(u, cleanURL(u))
		c.counters.visitedCounter.Add(1)
	}
}
