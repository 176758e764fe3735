package matrix

import (
	"context"
	"fmt"
	"strings"

	"followgraph/pkg/graph"
	"followgraph/pkg/logger"
	"followgraph/pkg/social"
)

// CrossMode selects which crawled lists a network × marginal build reads
type CrossMode string

const (
	// NetworkXMarginal: does the network user follow the marginal user
	// (friends lists).
	NetworkXMarginal CrossMode = "NetworkXMarginal"
	// MarginalXNetwork: does the marginal user follow the network user
	// (followers lists).
	MarginalXNetwork CrossMode = "MarginalXNetwork"
)

// ParseCrossMode accepts the mode names and their kebab-case forms
func ParseCrossMode(s string) (CrossMode, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "")) {
	case "networkxmarginal":
		return NetworkXMarginal, nil
	case "marginalxnetwork":
		return MarginalXNetwork, nil
	default:
		return "", fmt.Errorf("unknown cross mode %q (want network-x-marginal or marginal-x-network)", s)
	}
}

// Prefix returns the tile prefix of the mode for base
func (m CrossMode) Prefix(base string) string {
	return string(m) + "_" + base
}

// lists returns the map the mode reads
func (m CrossMode) lists(g *graph.Graph) map[social.UserID][]social.UserID {
	if m == MarginalXNetwork {
		return g.Followers
	}
	return g.Friends
}

// NetworkVertices returns the crawled users of g: every friends key except
// the root.
func NetworkVertices(g *graph.Graph) []social.UserID {
	out := make([]social.UserID, 0, len(g.Friends))
	for u := range g.Friends {
		if u != social.RootID {
			out = append(out, u)
		}
	}
	return SortVertices(out)
}

// BuildCrossFromGraph builds the network × marginal tiles of mode from g.
// Rows are the network users, columns the marginal users.
func BuildCrossFromGraph(ctx context.Context, g *graph.Graph, marginal []social.UserID, mode CrossMode, tiles *TileStore, opts Options, log logger.Logger) (Result, error) {
	if opts.SourceName == "" {
		opts.SourceName = "graph"
	}
	b := NewBuilder(NewGraphSource(mode.lists(g)), tiles, opts, log)
	return b.BuildCross(ctx, NetworkVertices(g), marginal, mode.Prefix(opts.Prefix))
}
