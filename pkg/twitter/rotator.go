package twitter

import (
	"context"
	"fmt"
	"time"

	"followgraph/pkg/logger"
	"followgraph/pkg/ratelimit"
	"followgraph/pkg/social"
)

// RotatorConfig holds the per-kind timings of a Rotator
type RotatorConfig struct {
	// Cooldowns is how long a credential rests after each call of a kind.
	Cooldowns social.Cooldowns
	// PollIntervals is how often Acquire rechecks the pool per kind.
	PollIntervals [social.NumKinds]time.Duration
}

// DefaultRotatorConfig returns the stock cooldowns with 15s polling for
// pages and lookups and 3s for relationships.
func DefaultRotatorConfig() RotatorConfig {
	return RotatorConfig{
		Cooldowns: social.DefaultCooldowns(),
		PollIntervals: [social.NumKinds]time.Duration{
			social.FollowerPage: 15 * time.Second,
			social.FriendPage:   15 * time.Second,
			social.UserLookup:   15 * time.Second,
			social.Relationship: 3 * time.Second,
		},
	}
}

// Rotator spreads calls over several API clients. Each call claims the
// first client whose cooldown for that operation has elapsed and releases
// it afterwards. With a single client, lookups and relationship queries are
// paced instead; page pacing is left to the fetcher.
type Rotator struct {
	pool   *ratelimit.Pool[social.API]
	pacer  *ratelimit.Pacer
	cfg    RotatorConfig
	logger logger.Logger
}

// NewRotator registers apis in order. sched is required when more than one
// API is given and may be shared with other rotators.
func NewRotator(apis []social.API, sched *ratelimit.Scheduler, cfg RotatorConfig, log logger.Logger) (*Rotator, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	pool, err := ratelimit.NewPool(apis, sched)
	if err != nil {
		return nil, err
	}

	var pacing social.Cooldowns
	pacing[social.UserLookup] = cfg.Cooldowns[social.UserLookup]
	pacing[social.Relationship] = cfg.Cooldowns[social.Relationship]

	r := &Rotator{
		pool:   pool,
		pacer:  ratelimit.NewPacer(pacing),
		cfg:    cfg,
		logger: log.WithField("component", "rotator"),
	}
	r.logger.InfoWithFields("credential rotation ready", map[string]interface{}{
		"credentials": pool.Size(),
		"single":      pool.Single(),
	})
	return r, nil
}

// Size returns the number of credentials
func (r *Rotator) Size() int { return r.pool.Size() }

// Single reports whether only one credential is configured
func (r *Rotator) Single() bool { return r.pool.Single() }

func call[R any](ctx context.Context, r *Rotator, kind social.OperationKind, fn func(social.API) (R, error)) (R, error) {
	var zero R

	if r.pool.Single() {
		if err := r.pacer.Wait(ctx, kind); err != nil {
			return zero, err
		}
		return fn(r.pool.Slots()[0].Value)
	}

	slot, err := r.pool.Acquire(ctx, kind, r.cfg.PollIntervals[kind])
	if err != nil {
		return zero, err
	}
	defer r.pool.Release(slot, kind, r.cfg.Cooldowns[kind])

	return fn(slot.Value)
}

// FollowerIDsPage implements social.API
func (r *Rotator) FollowerIDsPage(ctx context.Context, id social.UserID, cursor int64) (social.Page, error) {
	return call(ctx, r, social.FollowerPage, func(api social.API) (social.Page, error) {
		return api.FollowerIDsPage(ctx, id, cursor)
	})
}

// FriendIDsPage implements social.API
func (r *Rotator) FriendIDsPage(ctx context.Context, id social.UserID, cursor int64) (social.Page, error) {
	return call(ctx, r, social.FriendPage, func(api social.API) (social.Page, error) {
		return api.FriendIDsPage(ctx, id, cursor)
	})
}

// User implements social.API
func (r *Rotator) User(ctx context.Context, id social.UserID) (social.Profile, error) {
	return call(ctx, r, social.UserLookup, func(api social.API) (social.Profile, error) {
		return api.User(ctx, id)
	})
}

// Relationship implements social.API
func (r *Rotator) Relationship(ctx context.Context, source, target social.UserID) (social.Friendship, error) {
	return call(ctx, r, social.Relationship, func(api social.API) (social.Friendship, error) {
		return api.Relationship(ctx, source, target)
	})
}

// Verification is the outcome of checking one credential
type Verification struct {
	Name     string
	Statuses []social.RateStatus
	Err      error
}

// VerifyAll checks every credential that supports it, bypassing rotation
func (r *Rotator) VerifyAll(ctx context.Context) []Verification {
	out := make([]Verification, 0, r.pool.Size())
	for _, slot := range r.pool.Slots() {
		v := Verification{Name: nameOf(slot.Index, slot.Value)}
		verifier, ok := slot.Value.(social.Verifier)
		if !ok {
			v.Err = fmt.Errorf("credential %s cannot be verified", v.Name)
		} else {
			v.Statuses, v.Err = verifier.VerifyCredentials(ctx)
		}
		out = append(out, v)
	}
	return out
}

func nameOf(i int, api social.API) string {
	if n, ok := api.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("credential-%d", i)
}

var _ social.API = (*Rotator)(nil)
