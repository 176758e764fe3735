// Package matrix turns a follow graph into tiled adjacency matrices.
//
// A vertex list is sorted and cut into batches of BatchSize. Tile (i, j)
// holds the relation of every row vertex of batch i to every column vertex
// of batch j: 1 when the row user follows the column user, 0 when it does
// not, -1 when that could not be determined. Cells never written keep the
// tile's initial value, Unknown by default.
package matrix

import (
	"fmt"

	"followgraph/pkg/social"
)

// Unknown marks a cell that was never computed
const Unknown int8 = -42

// Cell values written by the builder
const (
	Follows    int8 = 1
	NotFollows int8 = 0
	Undecided  int8 = -1
)

// TileKey identifies a tile: its batch row, batch column and the batch
// count of the build that produced it.
type TileKey struct {
	Row   int
	Col   int
	Count int
}

// Transpose returns the key of the mirrored tile
func (k TileKey) Transpose() TileKey {
	return TileKey{Row: k.Col, Col: k.Row, Count: k.Count}
}

// Name returns the data blob name for prefix
func (k TileKey) Name(prefix string) string {
	return fmt.Sprintf("%s_%d_%d_%d", prefix, k.Row, k.Col, k.Count)
}

// MetaName returns the metadata blob name for prefix
func (k TileKey) MetaName(prefix string) string {
	return "meta_" + k.Name(prefix)
}

func (k TileKey) String() string {
	return fmt.Sprintf("(%d, %d, %d)", k.Row, k.Col, k.Count)
}

// Tile is one block of an adjacency matrix, stored row-major.
type Tile struct {
	Key          TileKey
	Prefix       string
	RowVertices  []social.UserID
	ColVertices  []social.UserID
	InitialValue int8
	// SameAxes is set when the rows and columns are the same vertex batch.
	SameAxes bool
	Cells    []int8
}

// NewTile allocates a tile filled with initial. A nil cols uses rows for
// both axes.
func NewTile(key TileKey, prefix string, rows, cols []social.UserID, initial int8) *Tile {
	same := cols == nil
	if same {
		cols = rows
	}
	t := &Tile{
		Key:          key,
		Prefix:       prefix,
		RowVertices:  rows,
		ColVertices:  cols,
		InitialValue: initial,
		SameAxes:     same,
		Cells:        make([]int8, len(rows)*len(cols)),
	}
	if initial != 0 {
		for i := range t.Cells {
			t.Cells[i] = initial
		}
	}
	return t
}

// Rows returns the row count
func (t *Tile) Rows() int { return len(t.RowVertices) }

// Cols returns the column count
func (t *Tile) Cols() int { return len(t.ColVertices) }

// At returns cell (i, j)
func (t *Tile) At(i, j int) int8 { return t.Cells[i*len(t.ColVertices)+j] }

// Set writes cell (i, j)
func (t *Tile) Set(i, j int, v int8) { t.Cells[i*len(t.ColVertices)+j] = v }

// Lookup returns the cell of row user u and column user v. ok is false when
// either is not on the tile.
func (t *Tile) Lookup(u, v social.UserID) (val int8, ok bool) {
	i, j := indexOf(t.RowVertices, u), indexOf(t.ColVertices, v)
	if i < 0 || j < 0 {
		return 0, false
	}
	return t.At(i, j), true
}

// Transpose returns a new tile with the axes swapped. Cell values are
// copied as they are; the builder fills transposes with the backward
// relation instead.
func (t *Tile) Transpose() *Tile {
	out := NewTile(t.Key.Transpose(), t.Prefix, t.ColVertices, t.RowVertices, t.InitialValue)
	out.SameAxes = t.SameAxes
	for i := 0; i < t.Rows(); i++ {
		for j := 0; j < t.Cols(); j++ {
			out.Set(j, i, t.At(i, j))
		}
	}
	return out
}

func (t *Tile) String() string {
	return fmt.Sprintf("Tile%s %dx%d", t.Key, t.Rows(), t.Cols())
}

func indexOf(ids []social.UserID, id social.UserID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// BatchCount returns the number of batches of size needed for n vertices
func BatchCount(n, size int) int {
	if n == 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// batch returns batch i of vertices
func batch(vertices []social.UserID, i, size int) []social.UserID {
	lo := i * size
	if lo >= len(vertices) {
		return nil
	}
	hi := lo + size
	if hi > len(vertices) {
		hi = len(vertices)
	}
	return vertices[lo:hi]
}
