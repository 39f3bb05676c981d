package fetcher

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher is the fetcher contract of spec §6: a job bound to one URL
// that, when run against a pooled *http.Client, returns a ParseJob
// carrying the fetched document and extracted link candidates, or an
// error. The error does not wrap crawler.ErrFetchFailed itself; the
// crawler's fetch stage wraps it before logging and notifying actions.
type Fetcher interface {
	Fetch(client *http.Client, targetURL string) (*ParseJob, time.Duration, error)
}

// stdHTTPFetcher is a Fetcher backed by the standard library's
// *http.Client, timed the same way the teacher's fetcher timed each
// request.
type stdHTTPFetcher struct {
	userAgent string
	parser    Parser
	logger    *log.Logger
}

// New creates a new Fetcher. The parser is shared across every fetch,
// since link-dedup is crawl-wide (see GoqueryParser.seen).
func New(userAgent string, parser Parser, logger *log.Logger) Fetcher {
	return &stdHTTPFetcher{userAgent: userAgent, parser: parser, logger: logger}
}

// Fetch performs a single GET request through client, parses the body as
// HTML exactly once, and binds a ParseJob to the resulting document. A
// status of 400 or above or any request error is returned as an error;
// the elapsed duration is returned alongside it (zero when the request
// could not be built) so callers can log throughput even on failure.
func (f *stdHTTPFetcher) Fetch(client *http.Client, targetURL string) (*ParseJob, time.Duration, error) {
	req, err := http.NewRequest(http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching %s failed: %w", targetURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	start := time.Now()
	res, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, fmt.Errorf("fetching %s failed after %s: %w", targetURL, elapsed, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		return nil, elapsed, fmt.Errorf("fetching %s failed: %s", targetURL, res.Status)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, elapsed, fmt.Errorf("parsing %s failed: %w", targetURL, err)
	}

	return NewParseJob(targetURL, doc, f.parser, f.logger), elapsed, nil
}
