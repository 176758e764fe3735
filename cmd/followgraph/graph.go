package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"followgraph/pkg/checkpoint"
	"followgraph/pkg/graph"
	"followgraph/pkg/social"
	"followgraph/pkg/ui"

	"github.com/spf13/cobra"
)

var (
	pruneOut      string
	eventsFile    string
	edgeDirection string
	edgesOut      string
	infoJSON      bool
	infoName      string
)

// graphCmd groups offline graph maintenance
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect and maintain crawled graphs",
	Long:  `Offline operations on checkpoints. None of these call the API.`,
}

var pruneCmd = &cobra.Command{
	Use:   "prune PREFIX [PREFIX...]",
	Short: "Merge checkpoints into one graph without dangling keys",
	Long: `Merge the checkpoints under each prefix (sliced, or a named snapshot)
and keep only entries of known users. Neighbour lists of error users are
reset to null.`,
	Example: `  followgraph graph prune --out pruned graph_p0 graph_p1 graph_p2`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runPrune,
}

var fillEventsCmd = &cobra.Command{
	Use:   "fill-events",
	Short: "Add follow edges from an event tree",
	Long: `Read a JSON event tree ({"user": {"friends": [...], "followers": [...]}})
and add its edges to the main checkpoint.`,
	RunE: runFillEvents,
}

var exportEdgesCmd = &cobra.Command{
	Use:   "export-edges",
	Short: "Write follow edges as tab separated source/target pairs",
	RunE:  runExportEdges,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Summarise the checkpoint",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.AddCommand(pruneCmd, fillEventsCmd, exportEdgesCmd, infoCmd)

	pruneCmd.Flags().StringVarP(&pruneOut, "out", "o", "pruned", "snapshot name for the result")

	fillEventsCmd.Flags().StringVar(&eventsFile, "events", "", "event tree JSON file")
	_ = fillEventsCmd.MarkFlagRequired("events")

	exportEdgesCmd.Flags().StringVarP(&edgeDirection, "direction", "d", "", "only edges from this list: follower or friend")
	exportEdgesCmd.Flags().StringVarP(&edgesOut, "out", "o", "", "output file (default stdout)")

	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "print as JSON")
	infoCmd.Flags().StringVar(&infoName, "checkpoint", "", "named snapshot instead of the sliced checkpoint")
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	graphs := make([]*graph.Graph, 0, len(args))
	for _, prefix := range args {
		g, err := a.loadPrefix(ctx, prefix)
		if err != nil {
			return err
		}
		ui.PrintInfo(prefix, fmt.Sprintf("%d known, %d crawled", len(g.KnownUsers), g.Crawled()))
		graphs = append(graphs, g)
	}

	pruned := graph.Prune(graphs...)
	if err := a.store.Save(ctx, pruned, checkpoint.SaveOptions{Name: pruneOut}); err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Pruned graph saved as %s (%d known users)", pruneOut, len(pruned.KnownUsers)))
	return nil
}

// loadPrefix loads the sliced checkpoint under prefix, falling back to a
// snapshot of the main store named prefix.
func (a *app) loadPrefix(ctx context.Context, prefix string) (*graph.Graph, error) {
	g := graph.New()
	found, err := checkpoint.NewStore(a.blobs, prefix).Load(ctx, g, "")
	if err != nil {
		return nil, err
	}
	if found {
		return g, nil
	}
	found, err = a.store.Load(ctx, g, prefix)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no checkpoint under %q", prefix)
	}
	return g, nil
}

func runFillEvents(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(eventsFile)
	if err != nil {
		return err
	}
	defer f.Close()
	tree, err := graph.LoadEventTree(f)
	if err != nil {
		return err
	}

	g, err := a.loadGraph(ctx, "")
	if err != nil {
		return err
	}
	before := len(g.Edges())
	g.FillFromEvents(tree)
	if err := a.store.Save(ctx, g, checkpoint.SaveOptions{Slices: a.cfg.Crawl.SliceCount}); err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Added %d edges from %d event users", len(g.Edges())-before, len(tree)))
	return nil
}

func runExportEdges(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	var dirs []social.Direction
	if edgeDirection != "" {
		d, err := social.ParseDirection(edgeDirection)
		if err != nil {
			return err
		}
		dirs = append(dirs, d)
	}

	g, err := a.loadGraph(ctx, "")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if edgesOut != "" {
		f, err := os.Create(edgesOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	w := bufio.NewWriter(out)
	edges := g.Edges(dirs...)
	for _, e := range edges {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", e.From, e.To); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if edgesOut != "" {
		ui.PrintSuccess(fmt.Sprintf("Wrote %d edges to %s", len(edges), edgesOut))
	}
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := setup(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	g, err := a.loadGraph(ctx, infoName)
	if err != nil {
		return err
	}
	info := g.Info()

	if infoJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fields := []ui.Field{
		{Label: "Known users", Value: info.KnownUsers},
		{Label: "Crawled", Value: info.Crawled},
		{Label: "Error users", Value: info.ErrorUsers},
		{Label: "Follower lists", Value: fmt.Sprintf("%d (%d null)", info.Followers, info.NullFollowers)},
		{Label: "Friend lists", Value: fmt.Sprintf("%d (%d null)", info.Friends, info.NullFriends)},
		{Label: "Edges", Value: info.Edges},
	}
	if g.RunID != "" {
		fields = append(fields, ui.Field{Label: "Last run", Value: g.RunID})
	}
	ui.PrintFields(fields...)
	return nil
}
