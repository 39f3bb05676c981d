// Package actions provides sample implementations of the crawler's
// Action plugin contract, exercising the external collaborator seam
// with concrete, side-effect-isolated behavior.
package actions

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"github.com/kljensen/snowball/english"
)

// LinkCountAction tallies how many pages were fetched, and separately
// how many failed, across the lifetime of a crawl. It never mutates
// crawler state; it only observes.
type LinkCountAction struct {
	fetched atomic.Int64
	failed  atomic.Int64
}

// Act records a page success or fetch failure.
func (a *LinkCountAction) Act(url string, doc *goquery.Document, fetchErr error) {
	if fetchErr != nil {
		a.failed.Add(1)
		return
	}
	a.fetched.Add(1)
}

// Fetched returns the number of successfully fetched pages observed so
// far.
func (a *LinkCountAction) Fetched() int64 { return a.fetched.Load() }

// Failed returns the number of fetch failures observed so far.
func (a *LinkCountAction) Failed() int64 { return a.failed.Load() }

// KeywordStemAction builds a frequency table of English word stems
// found in each fetched page's visible text, using the Porter2
// algorithm. It is a sample plugin demonstrating text-processing
// actions distinct from link discovery itself.
type KeywordStemAction struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewKeywordStemAction creates an empty stem frequency tracker.
func NewKeywordStemAction() *KeywordStemAction {
	return &KeywordStemAction{counts: make(map[string]int)}
}

// Act stems every word in the fetched document's body text and updates
// the running frequency table. Fetch failures and documents without a
// body are ignored.
func (a *KeywordStemAction) Act(url string, doc *goquery.Document, fetchErr error) {
	if fetchErr != nil || doc == nil {
		return
	}
	text := doc.Find("body").Text()
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, word := range strings.Fields(text) {
		stem := english.Stem(strings.ToLower(word), true)
		if stem == "" {
			continue
		}
		a.counts[stem]++
	}
}

// Counts returns a snapshot of the current stem frequency table.
func (a *KeywordStemAction) Counts() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.counts))
	for k, v := range a.counts {
		out[k] = v
	}
	return out
}
