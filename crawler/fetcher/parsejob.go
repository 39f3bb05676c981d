package fetcher

import (
	"fmt"
	"log"

	"github.com/PuerkitoBio/goquery"
)

// Action mirrors crawler.Action without importing the crawler package,
// avoiding an import cycle between fetcher and crawler. crawler.Action
// satisfies this interface structurally.
type Action interface {
	Act(url string, doc *goquery.Document, fetchErr error)
}

// ParseJob is the parse job contract of spec §6: setActions, setBaseURL,
// setBaseURLSecure configure it, and Run invokes every action on the
// fetched document and returns the extracted outbound link candidates.
type ParseJob struct {
	url           string
	doc           *goquery.Document
	parser        Parser
	actions       []Action
	baseURL       string
	baseURLSecure string
	logger        *log.Logger
	err           error
}

// NewParseJob binds a ParseJob to a fetched URL and its already-parsed
// document.
func NewParseJob(url string, doc *goquery.Document, parser Parser, logger *log.Logger) *ParseJob {
	return &ParseJob{url: url, doc: doc, parser: parser, logger: logger}
}

// SetActions configures the actions to run against the fetched document.
func (j *ParseJob) SetActions(actions []Action) { j.actions = actions }

// SetBaseURL configures the (non-secure) base URL used to resolve
// relative links found in the document.
func (j *ParseJob) SetBaseURL(baseURL string) { j.baseURL = baseURL }

// SetBaseURLSecure configures the secure base URL variant, if any.
func (j *ParseJob) SetBaseURLSecure(baseURL string) { j.baseURLSecure = baseURL }

// Err returns the first error recovered from a panicking action during
// Run, or nil if every action completed without panicking. The caller
// (crawler.Crawler's parse-completion consumer) wraps this with
// crawler.ErrParseFailed so it can be matched with errors.Is.
func (j *ParseJob) Err() error { return j.err }

// Run invokes every registered action on the fetched document — each
// isolated behind a recover so a panicking action cannot take down the
// parse stage worker — then extracts and returns outbound link
// candidates. An action failure is logged and never prevents link
// extraction, per spec §7 ParseFailed policy.
func (j *ParseJob) Run() []string {
	for _, action := range j.actions {
		j.runAction(action)
	}
	base := j.baseURL
	if base == "" {
		base = j.baseURLSecure
	}
	if j.parser == nil {
		return nil
	}
	return j.parser.ExtractLinks(j.doc, base)
}

func (j *ParseJob) runAction(action Action) {
	defer func() {
		if r := recover(); r != nil {
			if j.err == nil {
				j.err = fmt.Errorf("action %T panicked while processing %s: %v", action, j.url, r)
			}
			if j.logger != nil {
				j.logger.Printf("action panicked while processing %s: %v", j.url, r)
			}
		}
	}()
	action.Act(j.url, j.doc, nil)
}
