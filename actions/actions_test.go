package actions

import (
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestLinkCountAction(t *testing.T) {
	a := &LinkCountAction{}
	a.Act("http://site/", nil, nil)
	a.Act("http://site/a", nil, errors.New("boom"))
	a.Act("http://site/b", nil, nil)

	if a.Fetched() != 2 {
		t.Errorf("expected Fetched()==2, got %d", a.Fetched())
	}
	if a.Failed() != 1 {
		t.Errorf("expected Failed()==1, got %d", a.Failed())
	}
}

func TestKeywordStemAction(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<body>running runs runner</body>`))
	if err != nil {
		t.Fatalf("failed to build test document: %v", err)
	}
	a := NewKeywordStemAction()
	a.Act("http://site/", doc, nil)

	counts := a.Counts()
	if counts["run"] == 0 {
		t.Errorf("expected \"run\" stem to be counted, got %v", counts)
	}
}

func TestKeywordStemActionIgnoresFetchFailure(t *testing.T) {
	a := NewKeywordStemAction()
	a.Act("http://site/", nil, errors.New("boom"))
	if len(a.Counts()) != 0 {
		t.Error("expected no counts recorded on fetch failure")
	}
}
