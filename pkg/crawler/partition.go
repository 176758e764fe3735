package crawler

import (
	"context"
	"fmt"

	"followgraph/pkg/graph"
	"followgraph/pkg/logger"
	"followgraph/pkg/social"
	"followgraph/pkg/userset"

	"golang.org/x/sync/errgroup"
)

// PartitionFunc crawls one share of the targets on its own credentials,
// checkpoint prefix and graph, and returns that graph.
type PartitionFunc func(ctx context.Context, index int, targets []social.UserID) (*graph.Graph, Result, error)

// RunPartitioned deals targets into n shares and crawls them concurrently.
// No graph is shared between shares; they are merged in index order once
// every share has returned. On error the graphs collected so far are still
// merged and returned along with the first error.
func RunPartitioned(ctx context.Context, targets []social.UserID, n int, run PartitionFunc, log logger.Logger) (*graph.Graph, []Result, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	shares, err := userset.Distribute(targets, n)
	if err != nil {
		return nil, nil, err
	}

	graphs := make([]*graph.Graph, n)
	results := make([]Result, n)

	eg, egCtx := errgroup.WithContext(ctx)
	for i, share := range shares {
		eg.Go(func() error {
			log.InfoWithFields("Starting partition", map[string]interface{}{
				"partition": i,
				"targets":   len(share),
			})
			g, res, err := run(egCtx, i, share)
			graphs[i] = g
			results[i] = res
			if err != nil {
				return fmt.Errorf("partition %d: %w", i, err)
			}
			return nil
		})
	}
	err = eg.Wait()

	merged := graph.New()
	for _, g := range graphs {
		merged.Merge(g)
	}
	return merged, results, err
}
