package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"followgraph/pkg/graph"
	"followgraph/pkg/matrix"
	"followgraph/pkg/ratelimit"
	"followgraph/pkg/social"
	"followgraph/pkg/ui"
	"followgraph/pkg/userset"

	"github.com/spf13/cobra"
)

var (
	matrixSource   string
	verticesFile   string
	safeMode       bool
	batchSize      int
	filePrefix     string
	rowProgress    int
	marginalFile   string
	crossModeFlag  string
	mergeCount     int
	mergeCSV       string
	verticesOut    string
	matrixGraphSrc string
)

// matrixCmd groups adjacency matrix commands
var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Build and merge adjacency matrix tiles",
	Long: `Compute the follow adjacency matrix of a vertex set in square tiles of
batch_size vertices. Cell (u, v) is 1 when u follows v, 0 when not and -1
when the relation could not be determined.

Tiles already on disk are skipped, so an interrupted build resumes where it
stopped.`,
}

var matrixBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Compute the square matrix of a vertex set",
	Example: `  # Friends of the crawled network, from the checkpoint
  followgraph matrix build --source graph

  # Ask the API for every pair, retrying undetermined public pairs
  followgraph matrix build --source live --vertices users.txt --safe`,
	RunE: runMatrixBuild,
}

var matrixCrossCmd = &cobra.Command{
	Use:   "cross",
	Short: "Compute network x marginal tiles from the checkpoint",
	Long: `Rows are the users with a friend list, columns the marginal users.
network-x-marginal reads friend lists (network user follows marginal user),
marginal-x-network reads follower lists (marginal user follows network user).`,
	RunE: runMatrixCross,
}

var matrixMergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Concatenate the tiles of a build into one matrix",
	RunE:  runMatrixMerge,
}

var matrixVerticesCmd = &cobra.Command{
	Use:   "vertices",
	Short: "Print the vertex order of a build",
	RunE:  runMatrixVertices,
}

func init() {
	rootCmd.AddCommand(matrixCmd)
	matrixCmd.AddCommand(matrixBuildCmd, matrixCrossCmd, matrixMergeCmd, matrixVerticesCmd)

	matrixCmd.PersistentFlags().IntVar(&batchSize, "batch-size", 0, "vertices per tile side (default from config)")
	matrixCmd.PersistentFlags().StringVar(&filePrefix, "prefix", "", "tile file prefix (default from config)")

	matrixBuildCmd.Flags().StringVar(&matrixSource, "source", "", "relation source: live or graph")
	matrixBuildCmd.Flags().StringVar(&verticesFile, "vertices", "", "file with vertex IDs (default: users with a friend list)")
	matrixBuildCmd.Flags().BoolVar(&safeMode, "safe", false, "retry undetermined pairs of public accounts")
	matrixBuildCmd.Flags().IntVar(&rowProgress, "row-progress", 0, "first batch row to compute")
	matrixBuildCmd.Flags().StringVar(&matrixGraphSrc, "checkpoint", "", "named snapshot to read instead of the sliced checkpoint")

	matrixCrossCmd.Flags().StringVar(&marginalFile, "marginal", "", "file with marginal user IDs")
	matrixCrossCmd.Flags().StringVar(&crossModeFlag, "mode", string(matrix.NetworkXMarginal), "network-x-marginal or marginal-x-network")
	_ = matrixCrossCmd.MarkFlagRequired("marginal")

	matrixMergeCmd.Flags().IntVar(&mergeCount, "count", 0, "tile count of the build")
	matrixMergeCmd.Flags().StringVar(&mergeCSV, "csv", "", "also write the matrix as CSV with a vertex header")
	_ = matrixMergeCmd.MarkFlagRequired("count")

	matrixVerticesCmd.Flags().IntVar(&mergeCount, "count", 0, "tile count of the build")
	matrixVerticesCmd.Flags().StringVarP(&verticesOut, "out", "o", "", "write IDs to this file (.roar for a bitmap)")
	_ = matrixVerticesCmd.MarkFlagRequired("count")
}

func matrixFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if matrixSource != "" {
		flags["source"] = matrixSource
	}
	if batchSize > 0 {
		flags["batch-size"] = batchSize
	}
	if filePrefix != "" {
		flags["prefix"] = filePrefix
	}
	if rowProgress > 0 {
		flags["row-progress"] = rowProgress
	}
	return flags
}

func (a *app) matrixOptions() matrix.Options {
	opts := matrix.DefaultOptions()
	opts.BatchSize = a.cfg.Matrix.BatchSize
	opts.Prefix = a.cfg.Matrix.FilePrefix
	opts.InitialValue = a.cfg.Matrix.InitialValue
	opts.RowProgress = a.cfg.Matrix.RowProgress
	opts.SourceName = a.cfg.Matrix.RelationSource
	return opts
}

func runMatrixBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, matrixFlags())
	if err != nil {
		return err
	}
	defer a.Close()
	a.serveMetrics(ctx)

	var g *graph.Graph
	var vertices []social.UserID
	if verticesFile != "" {
		if vertices, err = userset.Load(verticesFile); err != nil {
			return err
		}
	}
	if vertices == nil || a.cfg.Matrix.RelationSource == "graph" {
		if g, err = a.loadGraph(ctx, matrixGraphSrc); err != nil {
			return err
		}
		if vertices == nil {
			vertices = matrix.NetworkVertices(g)
		}
	}

	var source matrix.RelationSource
	switch a.cfg.Matrix.RelationSource {
	case "graph":
		source = matrix.NewGraphSource(g.Map(social.Friend))
	case "live":
		creds, err := a.credentials()
		if err != nil {
			return err
		}
		sched := ratelimit.NewScheduler()
		defer sched.Stop()
		api, err := a.rotator(ctx, creds, sched)
		if err != nil {
			return err
		}
		workers := a.cfg.Matrix.Workers
		if workers == 0 {
			workers = api.Size()
		}
		source = matrix.NewLiveSource(api, matrix.LiveOptions{
			Workers:    workers,
			Safe:       safeMode,
			RetryDelay: a.cfg.Crawl.RetryDelay,
		}, a.log)
	default:
		return fmt.Errorf("unknown relation source %q", a.cfg.Matrix.RelationSource)
	}

	b := matrix.NewBuilder(source, matrix.NewTileStore(a.blobs, a.log), a.matrixOptions(), a.log)
	n := len(userset.Dedup(vertices))
	tracker := ui.NewTileTracker(cmd.ErrOrStderr(), b.Plan(n))
	b.OnTile(func(_ matrix.TileKey, mode string) { tracker.Record(mode) })

	ui.PrintFields(
		ui.Field{Label: "Vertices", Value: n},
		ui.Field{Label: "Tiles", Value: fmt.Sprintf("%d per side", matrix.BatchCount(n, a.cfg.Matrix.BatchSize))},
	)

	res, err := b.Build(ctx, vertices)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ui.PrintTileSummary(a.cfg.Matrix.FilePrefix, res.Computed, res.Skipped, res.Count)
	return nil
}

func runMatrixCross(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, matrixFlags())
	if err != nil {
		return err
	}
	defer a.Close()

	mode, err := matrix.ParseCrossMode(crossModeFlag)
	if err != nil {
		return err
	}
	marginal, err := userset.Load(marginalFile)
	if err != nil {
		return err
	}
	g, err := a.loadGraph(ctx, "")
	if err != nil {
		return err
	}

	opts := a.matrixOptions()
	opts.SourceName = "graph"
	res, err := matrix.BuildCrossFromGraph(ctx, g, marginal, mode, matrix.NewTileStore(a.blobs, a.log), opts, a.log)
	if err != nil {
		return err
	}
	ui.PrintTileSummary(mode.Prefix(opts.Prefix), res.Computed, res.Skipped, res.Count)
	return nil
}

func runMatrixMerge(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := setup(ctx, matrixFlags())
	if err != nil {
		return err
	}
	defer a.Close()

	tiles := matrix.NewTileStore(a.blobs, a.log)
	prefix := a.cfg.Matrix.FilePrefix
	full, err := matrix.Assemble(ctx, tiles, prefix, mergeCount)
	if err != nil {
		return err
	}
	if mergeCount > 1 {
		if err := tiles.Write(ctx, full); err != nil {
			return err
		}
		ui.PrintInfo("Merged", full.Key.Name(prefix))
	}
	if mergeCSV != "" {
		if err := writeMatrixCSV(mergeCSV, full); err != nil {
			return err
		}
		ui.PrintInfo("CSV", mergeCSV)
	}
	ui.PrintSuccess(fmt.Sprintf("Matrix is %dx%d", full.Rows(), full.Cols()))
	return nil
}

// writeMatrixCSV writes a header of column vertices, then one row per row
// vertex led by its ID.
func writeMatrixCSV(path string, t *matrix.Tile) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	w := csv.NewWriter(bw)
	header := append([]string{""}, t.ColVertices...)
	if err := w.Write(header); err != nil {
		return err
	}
	record := make([]string, t.Cols()+1)
	for i, u := range t.RowVertices {
		record[0] = u
		for j := 0; j < t.Cols(); j++ {
			record[j+1] = strconv.Itoa(int(t.At(i, j)))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

func runMatrixVertices(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := setup(ctx, matrixFlags())
	if err != nil {
		return err
	}
	defer a.Close()

	l, err := matrix.LoadVertices(ctx, matrix.NewTileStore(a.blobs, a.log), a.cfg.Matrix.FilePrefix, mergeCount)
	if err != nil {
		return err
	}
	if verticesOut != "" {
		if err := userset.Save(verticesOut, l.RowVertices); err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Wrote %d vertices to %s", len(l.RowVertices), verticesOut))
		return nil
	}
	return userset.WriteText(cmd.OutOrStdout(), l.RowVertices)
}
