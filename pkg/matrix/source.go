package matrix

import (
	"context"

	"followgraph/pkg/social"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Pair is an ordered pair of users
type Pair struct {
	Source social.UserID
	Target social.UserID
}

// Relation holds both follow edges of a pair. Forward is source → target,
// Backward is target → source; each is 1, 0 or -1.
type Relation struct {
	Forward  int8
	Backward int8
}

// Undetermined is the relation of a pair nothing is known about
var Undetermined = Relation{Forward: Undecided, Backward: Undecided}

// RelationSource answers follow relations for many pairs at once. The
// result has one entry per pair, in order.
type RelationSource interface {
	Relations(ctx context.Context, pairs []Pair) ([]Relation, error)
}

// GraphSource derives relations from crawled lists: s follows t when t is
// in lists[s]. Users whose list is nil or missing give -1.
type GraphSource struct {
	ids   map[social.UserID]uint64
	lists map[social.UserID]*roaring64.Bitmap
}

// NewGraphSource indexes lists. Pass a friends map for "follows"; passing
// a followers map answers "is followed by" instead.
func NewGraphSource(lists map[social.UserID][]social.UserID) *GraphSource {
	s := &GraphSource{
		ids:   make(map[social.UserID]uint64),
		lists: make(map[social.UserID]*roaring64.Bitmap, len(lists)),
	}
	for u, neighbours := range lists {
		if neighbours == nil {
			continue
		}
		bm := roaring64.New()
		for _, v := range neighbours {
			bm.Add(s.intern(v))
		}
		bm.RunOptimize()
		s.lists[u] = bm
	}
	return s
}

func (s *GraphSource) intern(id social.UserID) uint64 {
	if n, ok := s.ids[id]; ok {
		return n
	}
	n := uint64(len(s.ids))
	s.ids[id] = n
	return n
}

// Follows returns 1 if u's list holds v, 0 if it does not, -1 if u's list
// is unknown. A user never follows itself.
func (s *GraphSource) Follows(u, v social.UserID) int8 {
	if u == v {
		return NotFollows
	}
	bm, ok := s.lists[u]
	if !ok {
		return Undecided
	}
	n, ok := s.ids[v]
	if !ok {
		return NotFollows
	}
	if bm.Contains(n) {
		return Follows
	}
	return NotFollows
}

// Relations implements RelationSource
func (s *GraphSource) Relations(ctx context.Context, pairs []Pair) ([]Relation, error) {
	out := make([]Relation, len(pairs))
	for i, p := range pairs {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = Relation{
			Forward:  s.Follows(p.Source, p.Target),
			Backward: s.Follows(p.Target, p.Source),
		}
	}
	return out, nil
}

var _ RelationSource = (*GraphSource)(nil)
