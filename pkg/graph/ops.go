package graph

import (
	"sort"

	"followgraph/pkg/social"
)

// Prune merges graphs into a new one that keeps only neighbours which are
// keys of some map in any input. A nil list stays nil and its owner is
// recorded as an error user. KnownUsers becomes exactly the set of keys.
func Prune(graphs ...*Graph) *Graph {
	keys := make(Set)
	for _, g := range graphs {
		for u := range g.Friends {
			keys.Add(u)
		}
		for u := range g.Followers {
			keys.Add(u)
		}
	}

	out := New()
	for _, g := range graphs {
		pruneInto(out.Friends, g.Friends, keys, out.ErrorUsers)
		pruneInto(out.Followers, g.Followers, keys, out.ErrorUsers)
	}
	out.KnownUsers = keys
	return out
}

func pruneInto(dst, src map[social.UserID][]social.UserID, keep, errs Set) {
	for u, ids := range src {
		if ids == nil {
			dst[u] = nil
			errs.Add(u)
			continue
		}
		kept := make([]social.UserID, 0, len(ids))
		for _, v := range ids {
			if keep.Has(v) {
				kept = append(kept, v)
			}
		}
		dst[u] = kept
	}
}

// EventTree maps a parent user to the users that reshared from it.
type EventTree map[social.UserID][]social.UserID

// FillFromEvents adds the follow edges implied by propagation trees: a
// child follows its parent. The parent joins each child's friends and the
// children join the parent's followers. ROOT parents are skipped, nil lists
// start empty and the resulting lists hold no duplicates.
func (g *Graph) FillFromEvents(tree EventTree) {
	parents := make([]social.UserID, 0, len(tree))
	for p := range tree {
		parents = append(parents, p)
	}
	sort.Strings(parents)

	for _, parent := range parents {
		if parent == social.RootID {
			continue
		}
		children := tree[parent]
		for _, child := range children {
			g.Friends[child] = appendUnique(g.Friends[child], parent)
			g.KnownUsers.Add(child)
		}
		g.Followers[parent] = appendUnique(g.Followers[parent], children...)
		g.KnownUsers.Add(parent)
	}
}

func appendUnique(list []social.UserID, ids ...social.UserID) []social.UserID {
	if list == nil {
		list = []social.UserID{}
	}
	seen := NewSet(list...)
	for _, id := range ids {
		if !seen.Has(id) {
			seen.Add(id)
			list = append(list, id)
		}
	}
	return list
}

// Edge is a directed follow edge: From follows To.
type Edge struct {
	From social.UserID
	To   social.UserID
}

// Edges returns the follow edges recorded for the given directions (both
// when none are given), de-duplicated and sorted.
func (g *Graph) Edges(dirs ...social.Direction) []Edge {
	if len(dirs) == 0 {
		dirs = []social.Direction{social.Friend, social.Follower}
	}
	seen := make(map[Edge]struct{})
	for _, d := range dirs {
		for u, ids := range g.Map(d) {
			for _, v := range ids {
				e := Edge{From: u, To: v}
				if d == social.Follower {
					e = Edge{From: v, To: u}
				}
				seen[e] = struct{}{}
			}
		}
	}

	out := make([]Edge, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Info summarises a graph.
type Info struct {
	KnownUsers    int `json:"known_users"`
	Crawled       int `json:"crawled"`
	ErrorUsers    int `json:"error_users"`
	Followers     int `json:"follower_keys"`
	Friends       int `json:"friend_keys"`
	NullFollowers int `json:"null_followers"`
	NullFriends   int `json:"null_friends"`
	Edges         int `json:"edges"`
}

// Info counts users, keys and edges.
func (g *Graph) Info() Info {
	return Info{
		KnownUsers:    len(g.KnownUsers),
		Crawled:       g.Crawled(),
		ErrorUsers:    len(g.ErrorUsers),
		Followers:     len(g.Followers),
		Friends:       len(g.Friends),
		NullFollowers: countNil(g.Followers),
		NullFriends:   countNil(g.Friends),
		Edges:         len(g.Edges()),
	}
}

func countNil(m map[social.UserID][]social.UserID) int {
	n := 0
	for _, ids := range m {
		if ids == nil {
			n++
		}
	}
	return n
}
