package ratelimit

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	errs "followgraph/pkg/errors"
	"followgraph/pkg/logger"
	"followgraph/pkg/metrics"
	"followgraph/pkg/social"
)

// ErrNoCredentials is returned when a pool is built without credentials.
var ErrNoCredentials = errs.New(errs.ErrorTypeConfig, 0, "no API credentials configured")

// Slot is one credential together with its per-kind availability flags.
type Slot[T any] struct {
	Index int
	Value T

	available [social.NumKinds]atomic.Bool
}

// Available reports whether the slot may be used for kind.
func (s *Slot[T]) Available(kind social.OperationKind) bool {
	return s.available[kind].Load()
}

// Pool hands out credentials per operation kind. Acquire claims the first
// available slot in registration order and Release schedules its re-enable
// after the kind's cooldown. Only the scheduler flips a flag back to true.
//
// With a single credential the pool does no bookkeeping: Acquire returns the
// slot at once and Release is a no-op. Callers pace themselves with a Pacer.
type Pool[T any] struct {
	slots []*Slot[T]
	sched *Scheduler
	log   logger.Logger
}

// NewPool registers values in order. sched may be shared between pools.
func NewPool[T any](values []T, sched *Scheduler) (*Pool[T], error) {
	if len(values) == 0 {
		return nil, ErrNoCredentials
	}
	if sched == nil && len(values) > 1 {
		return nil, errors.New("ratelimit: scheduler required for multiple credentials")
	}

	p := &Pool[T]{
		slots: make([]*Slot[T], len(values)),
		sched: sched,
		log:   logger.GetLogger().WithField("component", "credential_pool"),
	}
	for i, v := range values {
		s := &Slot[T]{Index: i, Value: v}
		for k := range s.available {
			s.available[k].Store(true)
		}
		p.slots[i] = s
	}
	return p, nil
}

// Size returns the number of credentials.
func (p *Pool[T]) Size() int { return len(p.slots) }

// Single reports whether the pool runs in single-credential mode.
func (p *Pool[T]) Single() bool { return len(p.slots) == 1 }

// Slots returns the registered slots in order.
func (p *Pool[T]) Slots() []*Slot[T] { return p.slots }

// Acquire blocks, polling every pollInterval, until a slot is available for
// kind. It returns only on success or when ctx is done.
func (p *Pool[T]) Acquire(ctx context.Context, kind social.OperationKind, pollInterval time.Duration) (*Slot[T], error) {
	if p.Single() {
		return p.slots[0], nil
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	start := time.Now()
	var ticker *time.Ticker
	for polls := 0; ; polls++ {
		if s := p.tryClaim(kind); s != nil {
			metrics.RecordAcquireWait(kind.String(), time.Since(start))
			return s, nil
		}
		if ticker == nil {
			ticker = time.NewTicker(pollInterval)
			defer ticker.Stop()
		}
		if polls > 0 && polls%20 == 0 {
			p.log.DebugWithFields("waiting for credential", map[string]interface{}{
				"kind":   kind.String(),
				"waited": time.Since(start).Round(time.Second),
			})
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Pool[T]) tryClaim(kind social.OperationKind) *Slot[T] {
	for _, s := range p.slots {
		if s.available[kind].CompareAndSwap(true, false) {
			return s
		}
	}
	return nil
}

// Release marks the slot unavailable for kind and re-enables it after
// cooldown.
func (p *Pool[T]) Release(s *Slot[T], kind social.OperationKind, cooldown time.Duration) {
	if p.Single() || s == nil {
		return
	}
	s.available[kind].Store(false)
	p.sched.After(cooldown, func() {
		s.available[kind].Store(true)
	})
}
