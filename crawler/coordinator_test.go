package crawler

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/benbjohnson/clock"
)

// recordingAction collects every URL it was invoked on, along with
// whether the fetch succeeded, so end-to-end scenarios can assert on
// dispatch counts without reaching into crawler internals.
type recordingAction struct {
	mu    sync.Mutex
	calls []string
	fails int
}

func (a *recordingAction) Act(url string, doc *goquery.Document, fetchErr error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if fetchErr != nil {
		a.fails++
		return
	}
	a.calls = append(a.calls, url)
}

func (a *recordingAction) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

// autoAdvance repeatedly fast-forwards a mock clock so that the
// frontier poll and the backpressure/drain sleeps fire almost
// immediately in wall-clock time, without affecting the real HTTP calls
// made against the httptest server. The stage completion polls run on
// the real clock and are not sped up.
func autoAdvance(t *testing.T, mock *clock.Mock, stop <-chan struct{}) {
	t.Helper()
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				mock.Add(pollTimeout)
			}
		}
	}()
}

func newTestCrawler(t *testing.T, baseURL string, actions []Action, opts ...Option) (*Crawler, *clock.Mock, chan struct{}) {
	t.Helper()
	mock := clock.NewMock()
	allOpts := append([]Option{WithClock(mock), WithThreadLimit(2)}, opts...)
	c, err := New(baseURL, "", actions, allOpts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	stop := make(chan struct{})
	autoAdvance(t, mock, stop)
	return c, mock, stop
}

func TestEndToEndSinglePage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>no links here</body></html>`)
	}))
	defer server.Close()

	action := &recordingAction{}
	c, _, stop := newTestCrawler(t, server.URL, []Action{action})
	defer close(stop)

	if err := c.Navigate(); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}

	if c.counters.visitedCounter.Load() != 1 {
		t.Errorf("expected visitedCounter==1, got %d", c.counters.visitedCounter.Load())
	}
	if c.counters.actuallyVisited.Load() != 1 {
		t.Errorf("expected actuallyVisited==1, got %d", c.counters.actuallyVisited.Load())
	}
	if action.count() != 1 {
		t.Errorf("expected 1 action invocation, got %d", action.count())
	}
}

func TestEndToEndThreePageMutualGraph(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="/a.html">a</a><a href="/b.html">b</a>`)
	})
	mux.HandleFunc("/a.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="/">root</a>`)
	})
	mux.HandleFunc("/b.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `no outbound links`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	action := &recordingAction{}
	c, _, stop := newTestCrawler(t, server.URL, []Action{action})
	defer close(stop)

	if err := c.Navigate(); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}

	if c.counters.visitedCounter.Load() != 3 {
		t.Errorf("expected 3 unique dispatches, got %d", c.counters.visitedCounter.Load())
	}
	if action.count() != 3 {
		t.Errorf("expected 3 action invocations, got %d", action.count())
	}
}

func TestEndToEndBlockedPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="/a.html">a</a><a href="/b.html">b</a>`)
	})
	mux.HandleFunc("/a.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `no outbound links`)
	})
	mux.HandleFunc("/b.html", func(w http.ResponseWriter, r *http.Request) {
		t.Error("/b.html must never be fetched once blocked")
		fmt.Fprint(w, `unreachable`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	action := &recordingAction{}
	c, _, stop := newTestCrawler(t, server.URL, []Action{action})
	defer close(stop)
	c.SetBlocked([]string{"/b"})

	if err := c.Navigate(); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}

	if c.counters.visitedCounter.Load() != 2 {
		t.Errorf("expected 2 dispatches (/ and /a.html), got %d", c.counters.visitedCounter.Load())
	}
}

func TestEndToEndOutOfScopeExternalLink(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("out-of-scope host must never be fetched")
	}))
	defer other.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<a href="%s/x.html">external</a>`, other.URL)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	action := &recordingAction{}
	c, _, stop := newTestCrawler(t, server.URL, []Action{action})
	defer close(stop)

	if err := c.Navigate(); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}

	if c.counters.visitedCounter.Load() != 1 {
		t.Errorf("expected only / fetched, got visitedCounter=%d", c.counters.visitedCounter.Load())
	}
}

func TestEndToEndShortCircuitInfiniteChain(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		var n int
		fmt.Sscanf(r.URL.Path, "/%d.html", &n)
		fmt.Fprintf(w, `<a href="/%d.html">next</a>`, n+1)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	action := &recordingAction{}
	c, _, stop := newTestCrawler(t, server.URL, []Action{action}, WithShortCircuitAfter(2), WithThreadLimit(1))
	defer close(stop)

	if err := c.Navigate(); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}

	visited := c.counters.visitedCounter.Load()
	if visited <= 2 {
		t.Errorf("expected visitedCounter > 2 (short-circuit bound), got %d", visited)
	}
	if visited > 2+int64(c.threadLimit()) {
		t.Errorf("expected termination within one batch of threadLimit beyond the bound, got %d", visited)
	}
}

func TestEndToEndThreadLimitChangeMidCrawl(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="/a.html">a</a><a href="/b.html">b</a>`)
	})
	mux.HandleFunc("/a.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `no links`)
	})
	mux.HandleFunc("/b.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `no links`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	action := &recordingAction{}
	c, _, stop := newTestCrawler(t, server.URL, []Action{action})
	defer close(stop)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = c.SetThreadLimit(4)
	}()

	if err := c.Navigate(); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}

	if c.counters.visitedCounter.Load() != c.counters.actuallyVisited.Load() {
		t.Errorf("expected visitedCounter == actuallyVisited at termination, got %d vs %d",
			c.counters.visitedCounter.Load(), c.counters.actuallyVisited.Load())
	}
	if c.counters.visitedCounter.Load() != 3 {
		t.Errorf("expected 3 unique dispatches surviving the thread limit change, got %d", c.counters.visitedCounter.Load())
	}
}

func TestBoundaryAllBlockedSiteTerminatesWithoutDispatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("a fully blocked site must never be fetched")
	}))
	defer server.Close()

	c, _, stop := newTestCrawler(t, server.URL, nil)
	defer close(stop)
	c.SetBlocked([]string{"/"})

	if err := c.Navigate(); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	if c.counters.visitedCounter.Load() != 0 {
		t.Errorf("expected 0 dispatches, got %d", c.counters.visitedCounter.Load())
	}
}

func TestBoundaryThreadLimitOne(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `no links`)
	}))
	defer server.Close()

	c, _, stop := newTestCrawler(t, server.URL, nil, WithThreadLimit(1))
	defer close(stop)

	if err := c.Navigate(); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	if c.counters.visitedCounter.Load() != 1 {
		t.Errorf("expected 1 dispatch, got %d", c.counters.visitedCounter.Load())
	}
}

func TestNoURLDispatchedTwice(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="/a.html">a</a><a href="/a.html">a again</a>`)
	})
	mux.HandleFunc("/a.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="/">root</a>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	seen := map[string]int{}
	var mu sync.Mutex
	tracker := &trackingAction{seen: seen, mu: &mu}
	c, _, stop := newTestCrawler(t, server.URL, []Action{tracker})
	defer close(stop)

	if err := c.Navigate(); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for u, n := range seen {
		if n > 1 {
			t.Errorf("URL %s fetched %d times, want <= 1", u, n)
		}
	}
}

type trackingAction struct {
	seen map[string]int
	mu   *sync.Mutex
}

func (a *trackingAction) Act(url string, doc *goquery.Document, fetchErr error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen[url]++
}

// panickingAction always panics, exercising the recover path in
// fetcher.ParseJob.runAction and, downstream, the parse-completion
// consumer's ErrParseFailed wrapping.
type panickingAction struct{}

func (panickingAction) Act(url string, doc *goquery.Document, fetchErr error) {
	panic("boom")
}

func TestErrParseFailedWrapping(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("%w: %v", ErrParseFailed, cause)
	if !errors.Is(wrapped, ErrParseFailed) {
		t.Error("expected errors.Is to match ErrParseFailed against the wrapped cause")
	}
}

func TestPanickingActionLogsErrParseFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>no links here</body></html>`)
	}))
	defer server.Close()

	var logBuf bytes.Buffer
	logger := log.New(&logBuf, "", 0)

	c, _, stop := newTestCrawler(t, server.URL, []Action{panickingAction{}}, WithLogger(logger))
	defer close(stop)

	if err := c.Navigate(); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}

	if !strings.Contains(logBuf.String(), ErrParseFailed.Error()) {
		t.Errorf("expected log output to contain %q, got: %s", ErrParseFailed.Error(), logBuf.String())
	}
}
