// Package fetcher defines and implements the downloading, parsing and
// pooled-client utilities for remote resources; the external collaborator
// seams of spec §6.
package fetcher

import (
	"net/url"
	"path/filepath"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Parser extracts outbound link candidates from an already-parsed HTML
// document. It is a seam distinct from Fetcher so the document is parsed
// exactly once and shared with both link extraction and Action
// invocation (see ParseJob.Run).
type Parser interface {
	ExtractLinks(doc *goquery.Document, baseURL string) []string
}

// GoqueryParser is the default Parser, backed by
// github.com/PuerkitoBio/goquery.
type GoqueryParser struct {
	excludedExts map[string]bool
	seen         *sync.Map
}

// NewGoqueryParser creates a parser with goquery as backend.
func NewGoqueryParser() *GoqueryParser {
	return &GoqueryParser{
		excludedExts: make(map[string]bool),
		seen:         new(sync.Map),
	}
}

// ExcludeExtensions adds extensions to be excluded from extraction
// results (e.g. images referenced via a canonical <link>).
func (p *GoqueryParser) ExcludeExtensions(exts ...string) {
	for _, ext := range exts {
		p.excludedExts[ext] = true
	}
}

// ExtractLinks retrieves every anchor and canonical-link href inside a
// goquery.Document, resolving relative hrefs against baseURL. It returns
// nil if doc is nil. Extraction is deduplicated across the lifetime of
// the parser instance, since a page can legitimately repeat the same
// anchor many times.
func (p *GoqueryParser) ExtractLinks(doc *goquery.Document, baseURL string) []string {
	if doc == nil {
		return nil
	}
	var found []string
	doc.Find("a,link").FilterFunction(func(i int, element *goquery.Selection) bool {
		hrefLink, hrefExists := element.Attr("href")
		linkType, linkExists := element.Attr("rel")
		anchorOk := element.Is("a") && hrefExists && !p.excludedExts[filepath.Ext(hrefLink)]
		linkOk := hrefExists && linkExists && linkType == "canonical" && !p.excludedExts[filepath.Ext(hrefLink)]
		return anchorOk || linkOk
	}).Each(func(i int, element *goquery.Selection) {
		res, _ := element.Attr("href")
		link, ok := resolveRelativeURL(baseURL, res)
		if !ok {
			return
		}
		key := link.String()
		if present, _ := p.seen.LoadOrStore(key, false); !present.(bool) {
			found = append(found, key)
			p.seen.Store(key, true)
		}
	})
	return found
}

// resolveRelativeURL joins a base domain to a relative href, producing an
// absolute URL. It returns false if either URL fails to parse.
func resolveRelativeURL(baseURL string, relative string) (*url.URL, bool) {
	u, err := url.Parse(relative)
	if err != nil {
		return nil, false
	}
	if u.Hostname() != "" {
		return u, true
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, false
	}
	return base.ResolveReference(u), true
}
