package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"followgraph/pkg/checkpoint"
	errs "followgraph/pkg/errors"
	"followgraph/pkg/graph"
	"followgraph/pkg/logger"
	"followgraph/pkg/social"
	"followgraph/pkg/storage"
	"followgraph/pkg/ui"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAPI answers list pages from per-user functions. It serves the same
// lists for both directions.
type stubAPI struct {
	mu        sync.Mutex
	lists     map[social.UserID]func(call int) ([]social.UserID, error)
	profiles  map[social.UserID]func() (social.Profile, error)
	pageCalls map[social.UserID]int
	lookups   map[social.UserID]int
}

func newStubAPI() *stubAPI {
	return &stubAPI{
		lists:     make(map[social.UserID]func(int) ([]social.UserID, error)),
		profiles:  make(map[social.UserID]func() (social.Profile, error)),
		pageCalls: make(map[social.UserID]int),
		lookups:   make(map[social.UserID]int),
	}
}

func (s *stubAPI) list(id social.UserID, ids ...social.UserID) {
	if ids == nil {
		ids = []social.UserID{}
	}
	s.lists[id] = func(int) ([]social.UserID, error) { return ids, nil }
}

func (s *stubAPI) public(id social.UserID, public bool) {
	s.profiles[id] = func() (social.Profile, error) {
		return social.Profile{ID: id, Protected: !public}, nil
	}
}

func (s *stubAPI) page(_ context.Context, id social.UserID, cursor int64) (social.Page, error) {
	s.mu.Lock()
	s.pageCalls[id]++
	call := s.pageCalls[id]
	fn, ok := s.lists[id]
	s.mu.Unlock()

	if !ok {
		return social.Page{}, errs.New(errs.ErrorTypeNotFound, 404, "no such user")
	}
	ids, err := fn(call)
	if err != nil {
		return social.Page{}, err
	}
	return social.Page{Next: 0, Prev: 0, IDs: ids}, nil
}

func (s *stubAPI) FollowerIDsPage(ctx context.Context, id social.UserID, cursor int64) (social.Page, error) {
	return s.page(ctx, id, cursor)
}

func (s *stubAPI) FriendIDsPage(ctx context.Context, id social.UserID, cursor int64) (social.Page, error) {
	return s.page(ctx, id, cursor)
}

func (s *stubAPI) User(_ context.Context, id social.UserID) (social.Profile, error) {
	s.mu.Lock()
	s.lookups[id]++
	fn, ok := s.profiles[id]
	s.mu.Unlock()
	if !ok {
		return social.Profile{}, errs.New(errs.ErrorTypeNotFound, 404, "no such user")
	}
	return fn()
}

func (s *stubAPI) Relationship(context.Context, social.UserID, social.UserID) (social.Friendship, error) {
	return social.Friendship{}, errors.New("not supported")
}

func (s *stubAPI) calls(id social.UserID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageCalls[id]
}

func testOptions(d social.Direction) Options {
	return Options{
		Direction:  d,
		SavePoint:  10,
		SliceCount: 3,
		SkipBackup: true,
	}
}

// countingReporter records reporter calls
type countingReporter struct {
	ui.NopReporter
	mu          sync.Mutex
	resolved    []string
	errored     []string
	checkpoints int
	summary     ui.CrawlSummary
}

func (r *countingReporter) UserResolved(id string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, id)
}

func (r *countingReporter) UserErrored(id string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errored = append(r.errored, id)
}

func (r *countingReporter) CheckpointSaved(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpoints++
}

func (r *countingReporter) FinishCrawl(s ui.CrawlSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = s
}

func TestFriendScenario(t *testing.T) {
	api := newStubAPI()
	api.list("A", "B")
	api.list("B")
	api.public("C", false)

	c := New(api, nil, nil, testOptions(social.Friend), logger.NewNopLogger())
	res, err := c.Crawl(context.Background(), []social.UserID{"A", "B", "C"})
	require.NoError(t, err)

	g := c.Graph()
	assert.Equal(t, map[social.UserID][]social.UserID{"A": {"B"}, "B": {}}, g.Friends)
	assert.Equal(t, graph.NewSet("C"), g.ErrorUsers)
	for _, u := range []social.UserID{"A", "B", "C"} {
		assert.True(t, g.KnownUsers.Has(u), u)
	}
	assert.Empty(t, g.Followers)
	assert.Equal(t, 2, res.Resolved)
	assert.Equal(t, 1, res.Errored)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, res.RunID, g.RunID)
}

func TestErrorClassification(t *testing.T) {
	api := newStubAPI()

	// not found, although the lookup claims the account is public
	api.public("123", true)

	// not found and the lookup itself fails
	api.profiles["456"] = func() (social.Profile, error) {
		return social.Profile{}, errors.New("lookup exploded")
	}

	// the listing yields no result once, then succeeds; the account is public
	api.lists["789"] = func(call int) ([]social.UserID, error) {
		if call == 1 {
			return nil, errors.New("no result")
		}
		return []social.UserID{"1", "2"}, nil
	}
	api.public("789", true)

	// a rate limit is transient and never triggers the public check
	api.lists["790"] = func(call int) ([]social.UserID, error) {
		if call == 1 {
			return nil, errs.New(errs.ErrorTypeRateLimit, 429, "slow down")
		}
		return []social.UserID{"3"}, nil
	}

	rep := &countingReporter{}
	c := New(api, nil, nil, testOptions(social.Follower), logger.NewNopLogger())
	c.SetReporter(rep)

	res, err := c.Crawl(context.Background(), []social.UserID{"123", "456", "789", "790"})
	require.NoError(t, err)

	g := c.Graph()
	for _, u := range []social.UserID{"123", "456"} {
		assert.True(t, g.ErrorUsers.Has(u), u)
		_, ok := g.Followers[u]
		assert.False(t, ok, "%s must not be keyed", u)
	}

	assert.Equal(t, []social.UserID{"1", "2"}, g.Followers["789"])
	assert.False(t, g.ErrorUsers.Has("789"))
	assert.Equal(t, 1, api.lookups["789"])

	assert.Equal(t, []social.UserID{"3"}, g.Followers["790"])
	assert.Zero(t, api.lookups["790"])

	assert.Equal(t, 2, res.Errored)
	assert.Equal(t, 2, res.Resolved)
	assert.Equal(t, 1, res.Retried)
	assert.ElementsMatch(t, []string{"123", "456"}, rep.errored)
	assert.ElementsMatch(t, []string{"789", "790"}, rep.resolved)
}

func TestProtectedAccountBecomesErrorUser(t *testing.T) {
	api := newStubAPI()
	api.lists["P"] = func(int) ([]social.UserID, error) {
		return nil, errs.New(errs.ErrorTypeProtected, 401, "not authorized")
	}
	api.public("P", false)

	c := New(api, nil, nil, testOptions(social.Friend), logger.NewNopLogger())
	_, err := c.Crawl(context.Background(), []social.UserID{"P"})
	require.NoError(t, err)

	assert.True(t, c.Graph().ErrorUsers.Has("P"))
	assert.Equal(t, 1, api.calls("P"))
	assert.Equal(t, 1, api.lookups["P"])
}

func TestPublicAccountIsRetriedUntilResolved(t *testing.T) {
	api := newStubAPI()
	api.lists["R"] = func(call int) ([]social.UserID, error) {
		if call < 4 {
			return nil, errs.New(errs.ErrorTypeAuth, 401, "flaky")
		}
		return []social.UserID{"S"}, nil
	}
	api.public("R", true)

	log := logger.NewTestLogger()
	c := New(api, nil, nil, testOptions(social.Friend), log)
	_, err := c.Crawl(context.Background(), []social.UserID{"R"})
	require.NoError(t, err)

	assert.Equal(t, []social.UserID{"S"}, c.Graph().Friends["R"])
	assert.Equal(t, 4, api.calls("R"))
	assert.True(t, log.HasMessage("Retrying public account"))
}

func TestPendingSkipsDoneUsersAndRoot(t *testing.T) {
	api := newStubAPI()
	api.list("B", "A")

	g := graph.New()
	g.SetNeighbours(social.Friend, "A", []social.UserID{"B"})
	g.MarkError("C")

	c := New(api, g, nil, testOptions(social.Friend), logger.NewNopLogger())
	res, err := c.Crawl(context.Background(), []social.UserID{social.RootID, "A", "B", "C", "B"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Pending)
	assert.Zero(t, api.calls("A"))
	assert.Zero(t, api.calls("C"))
	assert.Equal(t, 1, api.calls("B"))
	assert.False(t, g.KnownUsers.Has(social.RootID))
}

func TestTransientCapLeavesUserPending(t *testing.T) {
	api := newStubAPI()
	api.lists["T"] = func(int) ([]social.UserID, error) {
		return nil, errs.New(errs.ErrorTypeServerError, 503, "over capacity")
	}

	opts := testOptions(social.Follower)
	opts.TransientMaxAttempts = 3
	c := New(api, nil, nil, opts, logger.NewNopLogger())
	res, err := c.Crawl(context.Background(), []social.UserID{"T"})
	require.NoError(t, err)

	g := c.Graph()
	_, keyed := g.Followers["T"]
	assert.False(t, keyed)
	assert.False(t, g.ErrorUsers.Has("T"))
	assert.Equal(t, 3, api.calls("T"))
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Remaining)
	assert.Zero(t, api.lookups["T"])
}

func TestCrawlCheckpointsAndBacksUp(t *testing.T) {
	api := newStubAPI()
	var targets []social.UserID
	for i := 0; i < 5; i++ {
		u := fmt.Sprintf("%d", i)
		api.list(u, "x")
		targets = append(targets, u)
	}

	blobs := storage.NewMemoryStore()
	store := checkpoint.NewStore(blobs, "friends")
	opts := testOptions(social.Friend)
	opts.SavePoint = 2
	opts.SkipBackup = false

	rep := &countingReporter{}
	c := New(api, nil, store, opts, logger.NewNopLogger())
	c.SetReporter(rep)

	res, err := c.Crawl(context.Background(), targets)
	require.NoError(t, err)

	// after users 2 and 4, then the final save
	assert.Equal(t, 3, rep.checkpoints)
	assert.Equal(t, "backup_friend_c5_e0", res.Backup)
	assert.Equal(t, res.Backup, rep.summary.Backup)

	backedUp, err := blobs.List(context.Background(), res.Backup+"/")
	require.NoError(t, err)
	assert.Len(t, backedUp, opts.SliceCount)

	loaded := graph.New()
	found, err := store.Load(context.Background(), loaded, "")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, loaded.Equal(c.Graph()))
}

func TestNamedCheckpointIsBackedUp(t *testing.T) {
	api := newStubAPI()
	api.list("A", "B")
	api.list("B")

	blobs := storage.NewMemoryStore()
	// slices left by an earlier sliced run must not end up in the backup
	require.NoError(t, blobs.Put(context.Background(), "friends_0", []byte("stale")))
	store := checkpoint.NewStore(blobs, "friends")

	opts := testOptions(social.Friend)
	opts.CheckpointName = "UserNetwork_friends"
	opts.SkipBackup = false
	opts.BackupTag = "p1"

	res, err := New(api, nil, store, opts, logger.NewNopLogger()).
		Crawl(context.Background(), []social.UserID{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, "backup_friend_c2_e0_p1", res.Backup)

	backedUp, err := blobs.List(context.Background(), res.Backup+"/")
	require.NoError(t, err)
	assert.Equal(t, []string{res.Backup + "/UserNetwork_friends"}, backedUp)

	want, err := blobs.Get(context.Background(), "UserNetwork_friends")
	require.NoError(t, err)
	got, err := blobs.Get(context.Background(), backedUp[0])
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCancelSavesCheckpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := newStubAPI()
	api.list("1", "9")
	api.lists["2"] = func(int) ([]social.UserID, error) {
		cancel()
		return nil, ctx.Err()
	}
	api.list("3", "9")

	blobs := storage.NewMemoryStore()
	store := checkpoint.NewStore(blobs, "followers")
	c := New(api, nil, store, testOptions(social.Follower), logger.NewNopLogger())

	res, err := c.Crawl(ctx, []social.UserID{"1", "2", "3"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Resolved)
	assert.Equal(t, 2, res.Remaining)
	assert.Zero(t, api.calls("3"))

	loaded := graph.New()
	found, err := store.Load(context.Background(), loaded, "")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []social.UserID{"9"}, loaded.Followers["1"])
	_, ok := loaded.Followers["2"]
	assert.False(t, ok)
	assert.False(t, loaded.ErrorUsers.Has("2"))
}

func TestRefillErrorUsers(t *testing.T) {
	api := newStubAPI()
	api.public("X", true)
	api.list("X", "Z")
	api.public("Y", false)

	g := graph.New()
	g.MarkError("X")
	g.MarkError("Y")
	g.Followers["X"] = nil

	c := New(api, g, nil, testOptions(social.Friend), logger.NewNopLogger())
	res, err := NewChecker(c).RefillErrorUsers(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Resolved)
	assert.Equal(t, []social.UserID{"Z"}, g.Friends["X"])
	_, ok := g.Followers["X"]
	assert.False(t, ok)
	assert.Equal(t, graph.NewSet("Y"), g.ErrorUsers)
}

func TestRefillWithNoPublicErrorUsers(t *testing.T) {
	api := newStubAPI()
	api.public("Y", false)

	g := graph.New()
	g.MarkError("Y")

	c := New(api, g, nil, testOptions(social.Friend), logger.NewNopLogger())
	res, err := NewChecker(c).RefillErrorUsers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Processed())
	assert.True(t, g.ErrorUsers.Has("Y"))
	assert.Zero(t, api.calls("Y"))
}

func TestRunPartitioned(t *testing.T) {
	api := newStubAPI()
	var targets []social.UserID
	for i := 0; i < 7; i++ {
		u := fmt.Sprintf("u%d", i)
		api.list(u, "hub")
		targets = append(targets, u)
	}

	var mu sync.Mutex
	seen := make(map[int]int)
	merged, results, err := RunPartitioned(context.Background(), targets, 3,
		func(ctx context.Context, i int, share []social.UserID) (*graph.Graph, Result, error) {
			mu.Lock()
			seen[i] = len(share)
			mu.Unlock()
			c := New(api, nil, nil, testOptions(social.Follower), logger.NewNopLogger())
			res, err := c.Crawl(ctx, share)
			return c.Graph(), res, err
		}, logger.NewNopLogger())
	require.NoError(t, err)

	assert.Len(t, results, 3)
	assert.Equal(t, map[int]int{0: 3, 1: 2, 2: 2}, seen)
	assert.Len(t, merged.Followers, 7)
	for _, u := range targets {
		assert.Equal(t, []social.UserID{"hub"}, merged.Followers[u])
	}
}

func TestRunPartitionedReportsFailures(t *testing.T) {
	boom := errors.New("boom")
	merged, _, err := RunPartitioned(context.Background(), []social.UserID{"a", "b"}, 2,
		func(ctx context.Context, i int, share []social.UserID) (*graph.Graph, Result, error) {
			g := graph.New()
			g.SetNeighbours(social.Friend, share[0], nil)
			if i == 1 {
				return g, Result{}, boom
			}
			return g, Result{}, nil
		}, logger.NewNopLogger())

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "partition 1")
	assert.Contains(t, merged.Friends, "a")
}

func TestCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api := newStubAPI()
	api.list("1")
	c := New(api, nil, nil, testOptions(social.Friend), logger.NewNopLogger())

	start := time.Now()
	res, err := c.Crawl(ctx, []social.UserID{"1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Remaining)
	assert.Zero(t, api.calls("1"))
	assert.Less(t, time.Since(start), time.Second)
}
