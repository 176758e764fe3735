package matrix

import (
	"context"
	"fmt"
	"sort"
	"time"

	"followgraph/pkg/logger"
	"followgraph/pkg/metrics"
	"followgraph/pkg/social"
	"followgraph/pkg/userset"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Tile modes passed to the OnTile hook and recorded in metrics
const (
	ModeComputed   = "computed"
	ModeTransposed = "transposed"
	ModeSkipped    = "skipped"
)

// Options configures a Builder
type Options struct {
	BatchSize    int
	Prefix       string
	InitialValue int8
	// RowProgress is the first batch row to compute; rows before it are
	// assumed done.
	RowProgress int
	// SourceName labels tile timings in metrics.
	SourceName string
}

// DefaultOptions returns the builder defaults
func DefaultOptions() Options {
	return Options{
		BatchSize:    10000,
		Prefix:       "adj",
		InitialValue: Unknown,
		SourceName:   "graph",
	}
}

// Result summarises a build
type Result struct {
	Vertices []social.UserID
	Count    int
	Computed int
	Skipped  int
}

// Builder computes tiles from a relation source and persists them.
type Builder struct {
	source RelationSource
	tiles  *TileStore
	opts   Options
	onTile func(key TileKey, mode string)
	tracer trace.Tracer
	logger logger.Logger
}

// NewBuilder creates a builder
func NewBuilder(source RelationSource, tiles *TileStore, opts Options, log logger.Logger) *Builder {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	if opts.SourceName == "" {
		opts.SourceName = "unknown"
	}
	return &Builder{
		source: source,
		tiles:  tiles,
		opts:   opts,
		onTile: func(TileKey, string) {},
		tracer: otel.Tracer("followgraph/matrix"),
		logger: log.WithField("component", "matrix"),
	}
}

// OnTile registers a hook called once per tile handled
func (b *Builder) OnTile(fn func(key TileKey, mode string)) {
	if fn == nil {
		fn = func(TileKey, string) {}
	}
	b.onTile = fn
}

// Plan returns the number of tiles Build handles for n vertices
func (b *Builder) Plan(n int) int {
	count := BatchCount(n, b.opts.BatchSize)
	total := 0
	for i := b.opts.RowProgress; i < count; i++ {
		total += 1 + 2*(count-i-1)
	}
	return total
}

// PlanCross returns the number of tiles BuildCross handles
func (b *Builder) PlanCross(rows, cols int) int {
	return BatchCount(rows, b.opts.BatchSize) * BatchCount(cols, b.opts.BatchSize)
}

// Build computes the square matrix of vertices. Only tiles on or above the
// diagonal are queried; each off-diagonal tile is stored with its
// transpose. Tiles already in the store are skipped, a corrupt one stops
// the build.
func (b *Builder) Build(ctx context.Context, vertices []social.UserID) (Result, error) {
	vertices = SortVertices(userset.Dedup(vertices))
	count := BatchCount(len(vertices), b.opts.BatchSize)
	res := Result{Vertices: vertices, Count: count}

	logger.LogComponentStart("matrix", map[string]interface{}{
		"vertices":     len(vertices),
		"batch_size":   b.opts.BatchSize,
		"batches":      count,
		"prefix":       b.opts.Prefix,
		"row_progress": b.opts.RowProgress,
	})

	for i := b.opts.RowProgress; i < count; i++ {
		for j := i; j < count; j++ {
			key := TileKey{Row: i, Col: j, Count: count}
			n, skipped, err := b.square(ctx, vertices, key)
			if err != nil {
				return res, err
			}
			if skipped {
				res.Skipped += n
			} else {
				res.Computed += n
			}
		}
		b.logger.InfoWithFields("Tile row finished", map[string]interface{}{
			"row":   i,
			"count": count,
		})
	}

	logger.LogComponentStop("matrix", "done")
	return res, nil
}

// square handles tile key and, off the diagonal, its transpose. It returns
// the number of tiles handled.
func (b *Builder) square(ctx context.Context, vertices []social.UserID, key TileKey) (int, bool, error) {
	prefix := b.opts.Prefix
	diagonal := key.Row == key.Col

	done, err := b.exists(ctx, prefix, key, !diagonal)
	if err != nil {
		return 0, false, err
	}
	if done {
		b.skip(prefix, key)
		if !diagonal {
			b.skip(prefix, key.Transpose())
			return 2, true, nil
		}
		return 1, true, nil
	}

	ctx, span := b.tracer.Start(ctx, "matrix.tile", trace.WithAttributes(
		attribute.String("prefix", prefix),
		attribute.Int("row", key.Row),
		attribute.Int("col", key.Col),
		attribute.Int("count", key.Count),
	))
	defer span.End()
	start := time.Now()

	rows := batch(vertices, key.Row, b.opts.BatchSize)
	if diagonal {
		t, err := b.diagonalTile(ctx, key, rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "relations")
			return 0, false, err
		}
		metrics.RecordTileDuration(b.opts.SourceName, time.Since(start))
		if err := b.persist(ctx, t); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "persist")
			return 0, false, err
		}
		return 1, false, nil
	}

	cols := batch(vertices, key.Col, b.opts.BatchSize)
	t, tt, err := b.pairTiles(ctx, key, rows, cols)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "relations")
		return 0, false, err
	}
	metrics.RecordTileDuration(b.opts.SourceName, time.Since(start))
	if err := b.persist(ctx, t, tt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
		return 0, false, err
	}
	return 2, false, nil
}

// diagonalTile queries each unordered pair of rows once
func (b *Builder) diagonalTile(ctx context.Context, key TileKey, rows []social.UserID) (*Tile, error) {
	t := NewTile(key, b.opts.Prefix, rows, nil, b.opts.InitialValue)

	pairs := make([]Pair, 0, len(rows)*(len(rows)+1)/2)
	for i := range rows {
		for j := i; j < len(rows); j++ {
			pairs = append(pairs, Pair{Source: rows[i], Target: rows[j]})
		}
	}
	rels, err := b.relations(ctx, pairs)
	if err != nil {
		return nil, err
	}

	k := 0
	for i := range rows {
		for j := i; j < len(rows); j++ {
			t.Set(i, j, rels[k].Forward)
			t.Set(j, i, rels[k].Backward)
			k++
		}
	}
	return t, nil
}

// pairTiles fills tile key with forward relations and its transpose with
// backward ones
func (b *Builder) pairTiles(ctx context.Context, key TileKey, rows, cols []social.UserID) (*Tile, *Tile, error) {
	t := NewTile(key, b.opts.Prefix, rows, cols, b.opts.InitialValue)
	tt := NewTile(key.Transpose(), b.opts.Prefix, cols, rows, b.opts.InitialValue)

	rels, err := b.relations(ctx, crossPairs(rows, cols))
	if err != nil {
		return nil, nil, err
	}
	for i := range rows {
		for j := range cols {
			r := rels[i*len(cols)+j]
			t.Set(i, j, r.Forward)
			tt.Set(j, i, r.Backward)
		}
	}
	return t, tt, nil
}

// BuildCross computes rows × cols tiles under prefix. Every tile is
// queried; the count field of the keys is the larger batch count.
func (b *Builder) BuildCross(ctx context.Context, rows, cols []social.UserID, prefix string) (Result, error) {
	rows = SortVertices(userset.Dedup(rows))
	cols = SortVertices(userset.Dedup(cols))
	rowBatches := BatchCount(len(rows), b.opts.BatchSize)
	colBatches := BatchCount(len(cols), b.opts.BatchSize)
	count := rowBatches
	if colBatches > count {
		count = colBatches
	}
	res := Result{Vertices: rows, Count: count}

	logger.LogComponentStart("matrix", map[string]interface{}{
		"rows":        len(rows),
		"cols":        len(cols),
		"batch_size":  b.opts.BatchSize,
		"row_batches": rowBatches,
		"col_batches": colBatches,
		"prefix":      prefix,
	})

	for i := 0; i < rowBatches; i++ {
		for j := 0; j < colBatches; j++ {
			key := TileKey{Row: i, Col: j, Count: count}
			done, err := b.exists(ctx, prefix, key, false)
			if err != nil {
				return res, err
			}
			if done {
				b.skip(prefix, key)
				res.Skipped++
				continue
			}

			start := time.Now()
			rb := batch(rows, i, b.opts.BatchSize)
			cb := batch(cols, j, b.opts.BatchSize)
			t := NewTile(key, prefix, rb, cb, b.opts.InitialValue)
			rels, err := b.relations(ctx, crossPairs(rb, cb))
			if err != nil {
				return res, err
			}
			for r := range rb {
				for c := range cb {
					t.Set(r, c, rels[r*len(cb)+c].Forward)
				}
			}
			metrics.RecordTileDuration(b.opts.SourceName, time.Since(start))
			if err := b.persist(ctx, t); err != nil {
				return res, err
			}
			res.Computed++
		}
	}

	logger.LogComponentStop("matrix", "done")
	return res, nil
}

func (b *Builder) relations(ctx context.Context, pairs []Pair) ([]Relation, error) {
	rels, err := b.source.Relations(ctx, pairs)
	if err != nil {
		return nil, err
	}
	if len(rels) != len(pairs) {
		return nil, fmt.Errorf("relation source answered %d of %d pairs", len(rels), len(pairs))
	}
	return rels, nil
}

// exists reports whether key (and its transpose when withTranspose) is
// already stored intact.
func (b *Builder) exists(ctx context.Context, prefix string, key TileKey, withTranspose bool) (bool, error) {
	ok, err := b.tiles.Valid(ctx, prefix, key)
	if err != nil || !ok || !withTranspose {
		return ok, err
	}
	return b.tiles.Valid(ctx, prefix, key.Transpose())
}

func (b *Builder) skip(prefix string, key TileKey) {
	metrics.RecordTile(prefix, ModeSkipped)
	b.onTile(key, ModeSkipped)
	b.logger.DebugWithFields("Tile exists, skipping", map[string]interface{}{
		"tile": key.Name(prefix),
	})
}

// persist writes t and, if given, its transpose concurrently
func (b *Builder) persist(ctx context.Context, t *Tile, transposes ...*Tile) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.tiles.Write(gctx, t) })
	for _, tt := range transposes {
		tt := tt
		g.Go(func() error { return b.tiles.Write(gctx, tt) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	b.written(t, ModeComputed)
	for _, tt := range transposes {
		b.written(tt, ModeTransposed)
	}
	return nil
}

func (b *Builder) written(t *Tile, mode string) {
	metrics.RecordTile(t.Prefix, mode)
	logger.LogTileWritten(t.Prefix, t.Key.Row, t.Key.Col, t.Key.Count, mode == ModeTransposed)
	b.onTile(t.Key, mode)
}

func crossPairs(rows, cols []social.UserID) []Pair {
	pairs := make([]Pair, 0, len(rows)*len(cols))
	for _, u := range rows {
		for _, v := range cols {
			pairs = append(pairs, Pair{Source: u, Target: v})
		}
	}
	return pairs
}

// SortVertices returns vertices in ascending order. Numeric IDs compare by
// value, so "99" sorts before "100", and come before any other IDs.
func SortVertices(vertices []social.UserID) []social.UserID {
	out := append([]social.UserID(nil), vertices...)
	sort.Slice(out, func(i, j int) bool { return lessID(out[i], out[j]) })
	return out
}

func lessID(a, b social.UserID) bool {
	na, nb := numeric(a), numeric(b)
	switch {
	case na && !nb:
		return true
	case !na && nb:
		return false
	case na && len(a) != len(b):
		return len(a) < len(b)
	}
	return a < b
}

func numeric(s string) bool {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
