package crawler

import "testing"

func TestCountersQuiescent(t *testing.T) {
	c := &counters{}
	if !c.Quiescent() {
		t.Fatal("expected fresh counters to be quiescent")
	}
	c.linksScheduled.Add(1)
	if c.Quiescent() {
		t.Fatal("expected non-quiescent with linksScheduled > 0")
	}
	c.linksScheduled.Add(-1)
	c.pagesScheduled.Add(1)
	if c.Quiescent() {
		t.Fatal("expected non-quiescent with pagesScheduled > 0")
	}
}

func TestCountersShouldReportProgress(t *testing.T) {
	c := &counters{}
	c.visitedCounter.Store(1999)
	if c.ShouldReportProgress(2000) {
		t.Fatal("expected no report below the bucket boundary")
	}
	c.visitedCounter.Store(2000)
	if !c.ShouldReportProgress(2000) {
		t.Fatal("expected a report exactly at the bucket boundary")
	}
	if c.ShouldReportProgress(2000) {
		t.Fatal("expected the same bucket to not report twice")
	}
	c.visitedCounter.Store(4001)
	if !c.ShouldReportProgress(2000) {
		t.Fatal("expected a report on entering the next bucket")
	}
}

func TestCountersProgressFormat(t *testing.T) {
	c := &counters{}
	c.actuallyVisited.Store(5)
	c.linksScheduled.Store(2)
	c.pagesScheduled.Store(1)
	c.visitedCounter.Store(5)

	got := c.Progress(4, 3)
	want := "5 crawled. 1 left to crawl. 2 scheduled for download. 1 scheduled for processing. 83.33% complete."
	if got != want {
		t.Errorf("Progress() = %q, want %q", got, want)
	}
}
