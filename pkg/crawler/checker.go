package crawler

import (
	"context"

	"followgraph/pkg/social"
)

// Checker re-examines a graph's error users.
type Checker struct {
	crawler *Crawler
}

// NewChecker wraps the crawler that owns the graph to check
func NewChecker(c *Crawler) *Checker {
	return &Checker{crawler: c}
}

// PublicStatus looks every user up and reports which ones are public.
// Lookups that fail count as private.
func (ch *Checker) PublicStatus(ctx context.Context, ids []social.UserID) (map[social.UserID]bool, error) {
	out := make(map[social.UserID]bool, len(ids))
	for i, u := range ids {
		public, err := ch.crawler.isPublic(ctx, u)
		if err != nil {
			return out, err
		}
		out[u] = public

		if left := len(ids) - i - 1; left > 0 && left%100 == 0 {
			ch.crawler.logger.InfoWithFields("Checking error users", map[string]interface{}{
				"left": left,
			})
		}
	}
	return out, nil
}

// RefillErrorUsers gives error users that have since turned public another
// chance: they are dropped from both lists and from ErrorUsers, then
// crawled again in the crawler's direction. With no public error user it
// returns an empty result.
func (ch *Checker) RefillErrorUsers(ctx context.Context) (Result, error) {
	g := ch.crawler.graph
	status, err := ch.PublicStatus(ctx, g.ErrorUsers.Sorted())
	if err != nil {
		return Result{}, err
	}

	var refill []social.UserID
	for _, u := range g.ErrorUsers.Sorted() {
		if !status[u] {
			continue
		}
		delete(g.Followers, u)
		delete(g.Friends, u)
		g.ErrorUsers.Remove(u)
		refill = append(refill, u)
	}

	if len(refill) == 0 {
		ch.crawler.logger.Info("All error users are still not public")
		return Result{}, nil
	}
	ch.crawler.logger.InfoWithFields("Refilling error users", map[string]interface{}{
		"public": len(refill),
		"total":  len(status),
	})
	return ch.crawler.Crawl(ctx, refill)
}
