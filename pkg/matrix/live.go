package matrix

import (
	"context"
	"errors"
	"time"

	"followgraph/internal/workers"
	errs "followgraph/pkg/errors"
	"followgraph/pkg/logger"
	"followgraph/pkg/retry"
	"followgraph/pkg/social"
)

// errUndetermined makes the safe query retry a (-1, -1) answer between
// public accounts.
var errUndetermined = errors.New("relation undetermined between public accounts")

// LiveOptions configures a LiveSource
type LiveOptions struct {
	// Workers bounds concurrent queries; use the credential count.
	Workers int
	// Safe re-queries pairs that come back (-1, -1) while both accounts
	// are public.
	Safe bool
	// RetryDelay spaces safe re-queries.
	RetryDelay time.Duration
}

// LiveSource asks the API for every pair with one relationship call.
type LiveSource struct {
	api    social.API
	opts   LiveOptions
	logger logger.Logger
}

// NewLiveSource creates a live relation source over api, normally a
// twitter.Rotator so workers share the credential pool.
func NewLiveSource(api social.API, opts LiveOptions, log logger.Logger) *LiveSource {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 15 * time.Second
	}
	return &LiveSource{
		api:    api,
		opts:   opts,
		logger: log.WithField("component", "live_relations"),
	}
}

// Relations implements RelationSource
func (s *LiveSource) Relations(ctx context.Context, pairs []Pair) ([]Relation, error) {
	results, err := workers.Map(ctx, s.opts.Workers, pairs, s.relation, s.logger)
	if err != nil {
		return nil, err
	}

	out := make([]Relation, len(pairs))
	for i, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		out[i] = r.Value
	}
	return out, nil
}

// relation only fails on cancellation; API errors become (-1, -1).
func (s *LiveSource) relation(ctx context.Context, p Pair) (Relation, error) {
	if p.Source == p.Target {
		return Relation{Forward: NotFollows, Backward: NotFollows}, nil
	}
	if !s.opts.Safe {
		return s.query(ctx, p)
	}

	cfg := retry.Forever(s.opts.RetryDelay, nil)
	cfg.RetryIf = func(err error) bool { return errors.Is(err, errUndetermined) }
	cfg.OnRetry = func(attempt int, _ error, delay time.Duration) {
		s.logger.WarnWithFields("Relation of public accounts undetermined, retrying", map[string]interface{}{
			"source":  p.Source,
			"target":  p.Target,
			"attempt": attempt,
			"delay":   delay.String(),
		})
	}
	return retry.DoWithResult(ctx, func(ctx context.Context) (Relation, error) {
		rel, err := s.query(ctx, p)
		if err != nil || rel != Undetermined {
			return rel, err
		}
		public, err := s.bothPublic(ctx, p)
		if err != nil {
			return rel, err
		}
		if public {
			return rel, errUndetermined
		}
		return rel, nil
	}, cfg)
}

func (s *LiveSource) query(ctx context.Context, p Pair) (Relation, error) {
	f, err := s.api.Relationship(ctx, p.Source, p.Target)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Relation{}, ctxErr
		}
		s.logger.DebugWithFields("Relationship query failed", map[string]interface{}{
			"source": p.Source,
			"target": p.Target,
			"type":   string(errs.TypeOf(err)),
		})
		return Undetermined, nil
	}
	return Relation{Forward: boolCell(f.SourceFollowsTarget), Backward: boolCell(f.TargetFollowsSource)}, nil
}

// bothPublic reports whether both accounts can be looked up and are not
// protected.
func (s *LiveSource) bothPublic(ctx context.Context, p Pair) (bool, error) {
	for _, id := range []social.UserID{p.Source, p.Target} {
		profile, err := s.api.User(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			return false, nil
		}
		if profile.Protected {
			return false, nil
		}
	}
	return true, nil
}

func boolCell(b bool) int8 {
	if b {
		return Follows
	}
	return NotFollows
}

var _ RelationSource = (*LiveSource)(nil)
