package crawler

import (
	"fmt"
	"math"
	"sync/atomic"
)

// counters holds the four concurrent counters of spec §3:
// linksScheduled and pagesScheduled track in-flight work and converge to
// zero exactly at quiescence; visitedCounter and actuallyVisited track
// total dispatch and fetch-completion counts.
type counters struct {
	linksScheduled  atomic.Int64
	pagesScheduled  atomic.Int64
	visitedCounter  atomic.Int64
	actuallyVisited atomic.Int64
	visitLogged     atomic.Int64
}

// Quiescent reports whether both scheduled counters have drained to zero,
// the second half of the termination predicate in spec §3 invariant 3
// (the first half, frontier emptiness, is checked by the caller).
func (c *counters) Quiescent() bool {
	return c.linksScheduled.Load() == 0 && c.pagesScheduled.Load() == 0
}

// ShouldReportProgress implements the de-duplicated periodic progress
// trigger of spec §4.5 step 2: true at most once per `every` visits,
// tracked via visitLogged so concurrent callers never double-report the
// same bucket.
func (c *counters) ShouldReportProgress(every int64) bool {
	if every <= 0 {
		return false
	}
	bucket := c.visitedCounter.Load() / every
	if bucket == 0 {
		return false
	}
	for {
		last := c.visitLogged.Load()
		if bucket <= last {
			return false
		}
		if c.visitLogged.CompareAndSwap(last, bucket) {
			return true
		}
	}
}

// Progress renders the stable human-readable progress string of spec §6:
//
//	"<actuallyVisited> crawled. <leftToCrawl> left to crawl. <linksScheduled>
//	 scheduled for download. <pagesScheduled> scheduled for processing.
//	 <pct>% complete."
//
// leftToCrawl can go negative near completion (threadLimit is subtracted
// unconditionally); per spec §9 this is a cosmetic reporting artifact and
// must never feed back into scheduling decisions.
func (c *counters) Progress(threadLimit, frontierSize int) string {
	linksScheduled := c.linksScheduled.Load()
	pagesScheduled := c.pagesScheduled.Load()
	visitedCounter := c.visitedCounter.Load()
	actuallyVisited := c.actuallyVisited.Load()

	leftToCrawl := int64(frontierSize) + linksScheduled - int64(threadLimit)

	var pct float64
	if denom := visitedCounter + leftToCrawl; denom > 0 {
		pct = math.Round(float64(visitedCounter)/float64(denom)*10000) / 100
	}

	return fmt.Sprintf(
		"%d crawled. %d left to crawl. %d scheduled for download. %d scheduled for processing. %.2f%% complete.",
		actuallyVisited, leftToCrawl, linksScheduled, pagesScheduled, pct,
	)
}
