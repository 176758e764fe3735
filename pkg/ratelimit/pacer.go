package ratelimit

import (
	"context"
	"time"

	"followgraph/pkg/social"

	"golang.org/x/time/rate"
)

// Pacer spaces calls of each kind by that kind's cooldown. It stands in for
// the pool's bookkeeping when only one credential is configured.
type Pacer struct {
	limiters [social.NumKinds]*rate.Limiter
}

// NewPacer builds a pacer from per-kind intervals. A zero interval disables
// pacing for that kind.
func NewPacer(intervals social.Cooldowns) *Pacer {
	p := &Pacer{}
	for k, d := range intervals {
		if d <= 0 {
			p.limiters[k] = rate.NewLimiter(rate.Inf, 1)
			continue
		}
		p.limiters[k] = rate.NewLimiter(rate.Every(d), 1)
	}
	return p
}

// Wait blocks until a call of kind may proceed.
func (p *Pacer) Wait(ctx context.Context, kind social.OperationKind) error {
	return p.limiters[kind].Wait(ctx)
}

// Allow reports whether a call of kind may proceed now, consuming the slot
// if so.
func (p *Pacer) Allow(kind social.OperationKind) bool {
	return p.limiters[kind].Allow()
}

// Interval returns the configured spacing for kind.
func (p *Pacer) Interval(kind social.OperationKind) time.Duration {
	l := p.limiters[kind].Limit()
	if l == rate.Inf || l == 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(l))
}
