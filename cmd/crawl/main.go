// Command crawl drives a crawlkit Crawler against a single site from
// the command line, wiring the sample actions package and reporting
// progress on an interval.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/codepr/crawlkit/actions"
	"github.com/codepr/crawlkit/crawler"
	"github.com/codepr/crawlkit/env"
)

func main() {
	baseURL := flag.String("url", env.GetEnv("CRAWLKIT_BASE_URL", ""), "base URL to crawl")
	baseURLSecure := flag.String("secure-url", "", "optional https variant of the base URL")
	blocked := flag.String("blocked", "", "comma-separated substrings that exclude a URL")
	flag.Parse()

	if *baseURL == "" {
		fmt.Fprintln(os.Stderr, "crawl: -url is required")
		os.Exit(2)
	}

	linkCount := &actions.LinkCountAction{}
	stems := actions.NewKeywordStemAction()

	c, err := crawler.NewFromEnv(*baseURL, *baseURLSecure, []crawler.Action{linkCount, stems})
	if err != nil {
		log.Fatalf("crawl: configuration error: %v", err)
	}
	if *blocked != "" {
		c.SetBlocked(splitNonEmpty(*blocked, ","))
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		log.Println("crawl: interrupt received, shutting down")
		if err := c.Shutdown(); err != nil {
			log.Printf("crawl: shutdown error: %v", err)
		}
	}()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				log.Println(c.GetCrawlProgress())
			case <-done:
				return
			}
		}
	}()

	start := time.Now()
	if err := c.Navigate(); err != nil {
		log.Fatalf("crawl: navigate failed: %v", err)
	}
	close(done)

	log.Printf("crawl: finished in %s — %s pages fetched, %s failed",
		humanize.RelTime(start, time.Now(), "", ""),
		humanize.Comma(linkCount.Fetched()), humanize.Comma(linkCount.Failed()))
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || string(s[i]) == sep {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
