package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"followgraph/internal/codec"
	errs "followgraph/pkg/errors"
	"followgraph/pkg/logger"
	"followgraph/pkg/social"
	"followgraph/pkg/storage"
)

// tileMeta is the metadata blob stored next to every tile
type tileMeta struct {
	RowVertices  []social.UserID `json:"row_vertices"`
	ColVertices  []social.UserID `json:"col_vertices"`
	InitialValue int8            `json:"initial_value"`
	TupleKey     [3]int          `json:"tuple_key"`
	FilePrefix   string          `json:"file_prefix"`
	RowSize      int             `json:"row_size"`
	ColSize      int             `json:"col_size"`
	IsRowColSame bool            `json:"is_row_col_same"`
}

// TileStore reads and writes tiles as a zstd cell blob plus a JSON
// metadata blob.
type TileStore struct {
	blobs  storage.BlobStore
	logger logger.Logger
}

// NewTileStore creates a tile store over blobs
func NewTileStore(blobs storage.BlobStore, log logger.Logger) *TileStore {
	if log == nil {
		log = logger.GetLogger()
	}
	return &TileStore{blobs: blobs, logger: log.WithField("component", "tiles")}
}

// Write persists t. The metadata goes last so a tile with metadata always
// has its cells.
func (s *TileStore) Write(ctx context.Context, t *Tile) error {
	if len(t.Cells) != t.Rows()*t.Cols() {
		return fmt.Errorf("tile %s: %d cells for %dx%d", t.Key.Name(t.Prefix), len(t.Cells), t.Rows(), t.Cols())
	}

	raw := make([]byte, len(t.Cells))
	for i, c := range t.Cells {
		raw[i] = byte(c)
	}
	blob, err := codec.Encode(codec.Zstd, raw)
	if err != nil {
		return fmt.Errorf("compress tile %s: %w", t.Key.Name(t.Prefix), err)
	}
	if err := s.blobs.Put(ctx, t.Key.Name(t.Prefix), blob); err != nil {
		return fmt.Errorf("write tile %s: %w", t.Key.Name(t.Prefix), err)
	}

	meta, err := json.Marshal(tileMeta{
		RowVertices:  t.RowVertices,
		ColVertices:  t.ColVertices,
		InitialValue: t.InitialValue,
		TupleKey:     [3]int{t.Key.Row, t.Key.Col, t.Key.Count},
		FilePrefix:   t.Prefix,
		RowSize:      t.Rows(),
		ColSize:      t.Cols(),
		IsRowColSame: t.SameAxes,
	})
	if err != nil {
		return fmt.Errorf("encode tile metadata %s: %w", t.Key.Name(t.Prefix), err)
	}
	if err := s.blobs.Put(ctx, t.Key.MetaName(t.Prefix), meta); err != nil {
		return fmt.Errorf("write tile metadata %s: %w", t.Key.Name(t.Prefix), err)
	}
	return nil
}

// ReadMeta loads a tile's metadata without its cells. A missing blob
// returns storage.ErrNotFound.
func (s *TileStore) ReadMeta(ctx context.Context, prefix string, key TileKey) (*Tile, error) {
	name := key.MetaName(prefix)
	raw, err := s.blobs.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	var m tileMeta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeCorrupt, err, "tile metadata "+name)
	}
	if m.RowSize != len(m.RowVertices) || m.ColSize != len(m.ColVertices) {
		return nil, errs.New(errs.ErrorTypeCorrupt, 0,
			fmt.Sprintf("tile metadata %s: sizes %dx%d do not match %d rows and %d columns",
				name, m.RowSize, m.ColSize, len(m.RowVertices), len(m.ColVertices)))
	}
	return &Tile{
		Key:          TileKey{Row: m.TupleKey[0], Col: m.TupleKey[1], Count: m.TupleKey[2]},
		Prefix:       m.FilePrefix,
		RowVertices:  m.RowVertices,
		ColVertices:  m.ColVertices,
		InitialValue: m.InitialValue,
		SameAxes:     m.IsRowColSame,
	}, nil
}

// Read loads a complete tile. A missing data or metadata blob returns
// storage.ErrNotFound; undecodable cells or a cell count other than
// rows × cols return a corrupt error.
func (s *TileStore) Read(ctx context.Context, prefix string, key TileKey) (*Tile, error) {
	t, err := s.ReadMeta(ctx, prefix, key)
	if err != nil {
		return nil, err
	}

	name := key.Name(prefix)
	blob, err := s.blobs.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Decode(blob)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeCorrupt, err, "tile "+name)
	}
	if len(raw) != t.Rows()*t.Cols() {
		return nil, errs.New(errs.ErrorTypeCorrupt, 0,
			fmt.Sprintf("tile %s: %d cells, want %dx%d", name, len(raw), t.Rows(), t.Cols()))
	}

	t.Cells = make([]int8, len(raw))
	for i, b := range raw {
		t.Cells[i] = int8(b)
	}
	return t, nil
}

// Valid reports whether a readable tile exists under key. Missing tiles
// are not an error; corrupt ones are.
func (s *TileStore) Valid(ctx context.Context, prefix string, key TileKey) (bool, error) {
	exists, err := s.blobs.Exists(ctx, key.Name(prefix))
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	_, err = s.Read(ctx, prefix, key)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.WarnWithFields("Tile without metadata, recomputing", map[string]interface{}{
			"tile": key.Name(prefix),
		})
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
