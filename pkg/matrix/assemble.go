package matrix

import (
	"context"
	"errors"
	"fmt"

	"followgraph/pkg/social"
	"followgraph/pkg/storage"
)

// Layout describes the tiles of one build, read from metadata only
type Layout struct {
	Prefix      string
	Count       int
	RowVertices []social.UserID
	ColVertices []social.UserID
	RowBatches  int
	ColBatches  int
	// rowSizes and colSizes are the per-batch sizes, in order.
	rowSizes []int
	colSizes []int
}

// LoadVertices reads the vertex order of a build from the metadata of its
// first tile column and first tile row. Cross builds may have fewer row or
// column batches than count.
func LoadVertices(ctx context.Context, tiles *TileStore, prefix string, count int) (*Layout, error) {
	l := &Layout{Prefix: prefix, Count: count}

	for i := 0; i < count; i++ {
		t, err := tiles.ReadMeta(ctx, prefix, TileKey{Row: i, Col: 0, Count: count})
		if errors.Is(err, storage.ErrNotFound) && i > 0 {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tile %s: %w", TileKey{Row: i, Col: 0, Count: count}.Name(prefix), err)
		}
		l.RowVertices = append(l.RowVertices, t.RowVertices...)
		l.rowSizes = append(l.rowSizes, t.Rows())
	}

	for j := 0; j < count; j++ {
		t, err := tiles.ReadMeta(ctx, prefix, TileKey{Row: 0, Col: j, Count: count})
		if errors.Is(err, storage.ErrNotFound) && j > 0 {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tile %s: %w", TileKey{Row: 0, Col: j, Count: count}.Name(prefix), err)
		}
		l.ColVertices = append(l.ColVertices, t.ColVertices...)
		l.colSizes = append(l.colSizes, t.Cols())
	}

	l.RowBatches = len(l.rowSizes)
	l.ColBatches = len(l.colSizes)
	return l, nil
}

// Assemble loads every tile of a build and concatenates them into one
// tile keyed (0, 0, 1). A missing or corrupt tile fails the merge.
func Assemble(ctx context.Context, tiles *TileStore, prefix string, count int) (*Tile, error) {
	l, err := LoadVertices(ctx, tiles, prefix, count)
	if err != nil {
		return nil, err
	}

	full := NewTile(TileKey{Row: 0, Col: 0, Count: 1}, prefix, l.RowVertices, l.ColVertices, Unknown)
	rowBase := 0
	for i := 0; i < l.RowBatches; i++ {
		colBase := 0
		for j := 0; j < l.ColBatches; j++ {
			key := TileKey{Row: i, Col: j, Count: count}
			t, err := tiles.Read(ctx, prefix, key)
			if err != nil {
				return nil, fmt.Errorf("tile %s: %w", key.Name(prefix), err)
			}
			if t.Rows() != l.rowSizes[i] || t.Cols() != l.colSizes[j] {
				return nil, fmt.Errorf("tile %s is %dx%d, layout expects %dx%d",
					key.Name(prefix), t.Rows(), t.Cols(), l.rowSizes[i], l.colSizes[j])
			}
			if i == 0 && j == 0 {
				full.InitialValue = t.InitialValue
				full.SameAxes = t.SameAxes && l.RowBatches == l.ColBatches
			}
			for r := 0; r < t.Rows(); r++ {
				copy(full.Cells[(rowBase+r)*full.Cols()+colBase:], t.Cells[r*t.Cols():(r+1)*t.Cols()])
			}
			colBase += t.Cols()
		}
		rowBase += l.rowSizes[i]
	}
	return full, nil
}
