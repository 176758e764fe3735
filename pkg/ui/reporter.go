package ui

import "time"

// CrawlSummary is reported once when a crawl ends
type CrawlSummary struct {
	Direction string
	Resolved  int
	Errored   int
	Retried   int
	Remaining int
	Elapsed   time.Duration
	Backup    string
	Err       error
}

// Reporter receives crawl progress. The crawler calls it from its own
// goroutine; implementations must not block for long.
type Reporter interface {
	StartCrawl(direction string, total int)
	UserResolved(id string, neighbours int)
	UserErrored(id string, err error)
	// Waiting reports a back-off before the next attempt.
	Waiting(reason string, d time.Duration)
	CheckpointSaved(name string)
	FinishCrawl(summary CrawlSummary)
}

// NopReporter discards everything
type NopReporter struct{}

func (NopReporter) StartCrawl(string, int)            {}
func (NopReporter) UserResolved(string, int)          {}
func (NopReporter) UserErrored(string, error)         {}
func (NopReporter) Waiting(string, time.Duration)     {}
func (NopReporter) CheckpointSaved(string)            {}
func (NopReporter) FinishCrawl(CrawlSummary)          {}

var _ Reporter = NopReporter{}
