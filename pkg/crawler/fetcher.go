package crawler

import (
	"context"
	"time"

	"followgraph/pkg/logger"
	"followgraph/pkg/retry"
	"followgraph/pkg/social"
)

// Fetcher walks a cursored listing to the end.
type Fetcher struct {
	single   bool
	interval time.Duration
	logger   logger.Logger
}

// NewFetcher creates a fetcher. With single set it sleeps interval between
// page requests, as one credential cannot absorb back-to-back page calls.
func NewFetcher(single bool, interval time.Duration, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fetcher{single: single, interval: interval, logger: log}
}

// FetchAll requests pages starting at the first cursor until the API
// returns a zero cursor or repeats one, and concatenates the IDs. The
// result is never nil on success. Errors are returned as they come.
func (f *Fetcher) FetchAll(ctx context.Context, id social.UserID, pageFn social.PageFunc) ([]social.UserID, error) {
	all := []social.UserID{}
	cursor := social.FirstCursor

	for pages := 0; ; pages++ {
		if pages > 0 && f.single {
			if err := retry.Wait(ctx, f.interval); err != nil {
				return nil, err
			}
		}

		page, err := pageFn(ctx, id, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.IDs...)

		stop := page.Next == 0 || page.Next == page.Prev || page.Next == cursor
		f.logger.DebugWithFields("Fetched page", map[string]interface{}{
			"user":    id,
			"page":    pages + 1,
			"fetched": len(all),
			"stop":    stop,
		})
		if stop {
			return all, nil
		}
		cursor = page.Next
	}
}
