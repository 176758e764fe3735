// Package graph holds the crawled follow graph.
//
// Each direction maps a user to its neighbour list. A nil list means the
// user was attempted and failed permanently; an empty non-nil list means
// the user resolved with no neighbours. JSON keeps the two apart as null
// and [].
package graph

import (
	"followgraph/pkg/social"
)

// Graph is the adjacency data collected so far.
type Graph struct {
	Followers  map[social.UserID][]social.UserID `json:"followers"`
	Friends    map[social.UserID][]social.UserID `json:"friends"`
	KnownUsers Set                               `json:"known_users"`
	ErrorUsers Set                               `json:"error_users"`
	// RunID identifies the crawl run that last wrote this graph.
	RunID string `json:"run_id,omitempty"`
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		Followers:  make(map[social.UserID][]social.UserID),
		Friends:    make(map[social.UserID][]social.UserID),
		KnownUsers: make(Set),
		ErrorUsers: make(Set),
	}
}

// ensure fills nil containers after decoding a partial document.
func (g *Graph) ensure() {
	if g.Followers == nil {
		g.Followers = make(map[social.UserID][]social.UserID)
	}
	if g.Friends == nil {
		g.Friends = make(map[social.UserID][]social.UserID)
	}
	if g.KnownUsers == nil {
		g.KnownUsers = make(Set)
	}
	if g.ErrorUsers == nil {
		g.ErrorUsers = make(Set)
	}
}

// Map returns the adjacency map for d.
func (g *Graph) Map(d social.Direction) map[social.UserID][]social.UserID {
	if d == social.Friend {
		return g.Friends
	}
	return g.Followers
}

// Neighbours returns u's list for d and whether u is a key at all.
func (g *Graph) Neighbours(d social.Direction, u social.UserID) ([]social.UserID, bool) {
	ids, ok := g.Map(d)[u]
	return ids, ok
}

// Resolved reports whether u has a non-nil list for d.
func (g *Graph) Resolved(d social.Direction, u social.UserID) bool {
	ids, ok := g.Map(d)[u]
	return ok && ids != nil
}

// SetNeighbours records u's resolved list. u and every neighbour become
// known, and u leaves ErrorUsers.
func (g *Graph) SetNeighbours(d social.Direction, u social.UserID, ids []social.UserID) {
	if ids == nil {
		ids = []social.UserID{}
	}
	g.Map(d)[u] = ids
	g.ErrorUsers.Remove(u)
	g.KnownUsers.Add(u)
	g.KnownUsers.AddAll(ids)
}

// MarkError records a permanent failure for u. The direction's map is left
// untouched.
func (g *Graph) MarkError(u social.UserID) {
	g.ErrorUsers.Add(u)
	g.KnownUsers.Add(u)
}

// Pending returns the targets that still need crawling in direction d, in
// the order given, skipping ROOT, users already keyed in the map and error
// users. Every target is added to KnownUsers.
func (g *Graph) Pending(d social.Direction, targets []social.UserID) []social.UserID {
	m := g.Map(d)
	var out []social.UserID
	seen := make(Set, len(targets))
	for _, u := range targets {
		if u == social.RootID || seen.Has(u) {
			continue
		}
		seen.Add(u)
		g.KnownUsers.Add(u)
		if _, done := m[u]; done || g.ErrorUsers.Has(u) {
			continue
		}
		out = append(out, u)
	}
	return out
}

// Crawled returns the larger of the two maps' key counts.
func (g *Graph) Crawled() int {
	return max(len(g.Followers), len(g.Friends))
}

// Merge folds other into g. Map entries from other replace g's, sets are
// unioned. Merging the same graph twice is a no-op the second time.
func (g *Graph) Merge(other *Graph) {
	g.ensure()
	if other == nil {
		return
	}
	for k, v := range other.Followers {
		g.Followers[k] = v
	}
	for k, v := range other.Friends {
		g.Friends[k] = v
	}
	g.KnownUsers.Union(other.KnownUsers)
	g.ErrorUsers.Union(other.ErrorUsers)
	if other.RunID != "" {
		g.RunID = other.RunID
	}
}

// Equal compares two graphs key for key and value for value. List order
// matters and nil differs from empty.
func (g *Graph) Equal(o *Graph) bool {
	if !equalMaps(g.Followers, o.Followers) || !equalMaps(g.Friends, o.Friends) {
		return false
	}
	return equalSets(g.KnownUsers, o.KnownUsers) && equalSets(g.ErrorUsers, o.ErrorUsers)
}

func equalMaps(a, b map[social.UserID][]social.UserID) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || (va == nil) != (vb == nil) || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if va[i] != vb[i] {
				return false
			}
		}
	}
	return true
}

func equalSets(a, b Set) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b.Has(k) {
			return false
		}
	}
	return true
}
