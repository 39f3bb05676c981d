package crawler

import "github.com/PuerkitoBio/goquery"

// Action is the user-supplied plugin contract of spec §6. It is invoked
// once per fetched page, on both success and failure: on success doc is
// the parsed document and fetchErr is nil; on failure doc is nil and
// fetchErr carries the cause. Implementations must be side-effect
// isolated from the crawler's internal state — they receive a read-only
// view of the page, never a handle into the frontier, visited set or
// counters.
//
// A panicking Action is recovered by the parse stage and logged; the
// parse job still extracts and returns the page's link set afterwards.
type Action interface {
	Act(url string, doc *goquery.Document, fetchErr error)
}
