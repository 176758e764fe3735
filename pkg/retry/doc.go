// Package retry runs operations again after failures, waiting between
// attempts according to a BackoffStrategy.
//
// Transient API failures use the default predicate, which retries only typed
// network, rate limit and server errors:
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		page, err = api.FollowerIDs(ctx, id, cursor)
//		return err
//	}, &retry.Config{
//		MaxAttempts: 5,
//		Backoff: &retry.KindBackoff{
//			ByType:  map[errors.ErrorType]time.Duration{errors.ErrorTypeRateLimit: 62 * time.Second},
//			Default: 15 * time.Second,
//		},
//	})
//
// Forever builds a config that never gives up until the context is
// cancelled. The crawler uses it for users that are known to be public.
package retry
