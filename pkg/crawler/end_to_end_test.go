package crawler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"followgraph/pkg/auth"
	"followgraph/pkg/checkpoint"
	"followgraph/pkg/crawler"
	"followgraph/pkg/graph"
	"followgraph/pkg/logger"
	"followgraph/pkg/matrix"
	"followgraph/pkg/ratelimit"
	"followgraph/pkg/social"
	"followgraph/pkg/storage"
	"followgraph/pkg/twitter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockServer serves friends/ids and users/show from in-memory fixtures.
// Lists in twoPages are split over two cursors; users in rateLimited answer
// 429 that many times first.
type mockServer struct {
	*httptest.Server

	mu          sync.Mutex
	friends     map[social.UserID][]social.UserID
	protected   map[social.UserID]bool
	twoPages    map[social.UserID]bool
	rateLimited map[social.UserID]int
	requests    map[string]int
}

func newMockServer(t *testing.T) *mockServer {
	t.Helper()
	m := &mockServer{
		friends:     make(map[social.UserID][]social.UserID),
		protected:   make(map[social.UserID]bool),
		twoPages:    make(map[social.UserID]bool),
		rateLimited: make(map[social.UserID]int),
		requests:    make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Close)
	return m
}

func (m *mockServer) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := r.URL.Query().Get("user_id")
	m.requests[r.URL.Path]++
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case twitter.FriendIDsEndpoint:
		if m.rateLimited[id] > 0 {
			m.rateLimited[id]--
			writeError(w, http.StatusTooManyRequests, 88, "Rate limit exceeded")
			return
		}
		if m.protected[id] {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"request":"/1.1/friends/ids.json","error":"Not authorized."}`)
			return
		}
		ids, ok := m.friends[id]
		if !ok {
			writeError(w, http.StatusNotFound, 34, "Sorry, that page does not exist.")
			return
		}
		page := map[string]interface{}{"ids": ids, "next_cursor": 0, "previous_cursor": 0}
		if m.twoPages[id] {
			half := len(ids) / 2
			if r.URL.Query().Get("cursor") == "-1" {
				page["ids"], page["next_cursor"] = ids[:half], 2
			} else {
				page["ids"], page["previous_cursor"] = ids[half:], 2
			}
		}
		_ = json.NewEncoder(w).Encode(page)

	case twitter.UserShowEndpoint:
		_, known := m.friends[id]
		if !known && !m.protected[id] {
			writeError(w, http.StatusNotFound, 50, "User not found.")
			return
		}
		fmt.Fprintf(w, `{"id_str":%q,"screen_name":"user%s","protected":%t}`, id, id, m.protected[id])

	default:
		http.NotFound(w, r)
	}
}

func writeError(w http.ResponseWriter, status, code int, message string) {
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"errors":[{"code":%d,"message":%q}]}`, code, message)
}

// newTestRotator points n bearer clients at srv
func newTestRotator(t *testing.T, srv *mockServer, n int) *twitter.Rotator {
	t.Helper()
	log := logger.NewTestLogger()

	apis := make([]social.API, 0, n)
	for i := 0; i < n; i++ {
		c, err := twitter.NewClient(context.Background(), twitter.ClientConfig{
			BaseURL:    srv.URL,
			Timeout:    5 * time.Second,
			Credential: &auth.Credential{Name: fmt.Sprintf("cred%d", i), BearerToken: "tok"},
		}, log)
		require.NoError(t, err)
		apis = append(apis, c)
	}

	sched := ratelimit.NewScheduler()
	t.Cleanup(sched.Stop)

	var cfg twitter.RotatorConfig
	for k := range cfg.Cooldowns {
		cfg.Cooldowns[k] = time.Millisecond
		cfg.PollIntervals[k] = time.Millisecond
	}
	r, err := twitter.NewRotator(apis, sched, cfg, log)
	require.NoError(t, err)
	return r
}

func fastOptions() crawler.Options {
	opts := crawler.DefaultOptions(social.Friend)
	opts.SavePoint = 2
	opts.SliceCount = 3
	opts.RetryDelay = time.Millisecond
	opts.PageInterval = time.Millisecond
	for k := range opts.Cooldowns {
		opts.Cooldowns[k] = time.Millisecond
	}
	opts.SkipBackup = true
	return opts
}

func TestCrawlCheckpointAndMatrixEndToEnd(t *testing.T) {
	srv := newMockServer(t)
	srv.friends["1"] = []social.UserID{"2", "3"}
	srv.friends["2"] = []social.UserID{"1"}
	srv.friends["3"] = []social.UserID{"1", "2", "4", "6"}
	srv.twoPages["3"] = true
	srv.rateLimited["2"] = 1
	srv.protected["4"] = true
	// 5 does not exist

	blobs, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	store := checkpoint.NewStore(blobs, "graph")

	ctx := context.Background()
	c := crawler.New(newTestRotator(t, srv, 2), graph.New(), store, fastOptions(), logger.NewTestLogger())
	res, err := c.Crawl(ctx, []social.UserID{"1", "2", "3", "4", "5"})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Resolved)
	assert.Equal(t, 2, res.Errored)
	assert.Zero(t, res.Remaining)

	g := c.Graph()
	assert.ElementsMatch(t, []social.UserID{"1", "2", "4", "6"}, g.Friends["3"])
	assert.True(t, g.ErrorUsers.Has("4"))
	assert.True(t, g.ErrorUsers.Has("5"))
	assert.True(t, g.KnownUsers.Has("6"))

	srv.mu.Lock()
	// 2 was rate limited once and 3 took two pages
	assert.Equal(t, 1+2+2+1+1, srv.requests[twitter.FriendIDsEndpoint])
	assert.Equal(t, 1, srv.requests[twitter.UserShowEndpoint])
	srv.mu.Unlock()

	// the sliced checkpoint restores the same graph
	reloaded := graph.New()
	found, err := store.Load(ctx, reloaded, "")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, g.Equal(reloaded))

	// a second crawl has nothing left to fetch
	again, err := crawler.New(newTestRotator(t, srv, 1), reloaded, store, fastOptions(), logger.NewTestLogger()).
		Crawl(ctx, []social.UserID{"1", "2", "3", "4", "5"})
	require.NoError(t, err)
	assert.Zero(t, again.Pending)

	// the friend lists tile into the adjacency matrix of the network
	tiles := matrix.NewTileStore(blobs, logger.NewTestLogger())
	opts := matrix.DefaultOptions()
	opts.BatchSize = 2
	b := matrix.NewBuilder(matrix.NewGraphSource(reloaded.Map(social.Friend)), tiles, opts, logger.NewTestLogger())
	built, err := b.Build(ctx, matrix.NetworkVertices(reloaded))
	require.NoError(t, err)
	assert.Equal(t, []social.UserID{"1", "2", "3"}, built.Vertices)

	full, err := matrix.Assemble(ctx, tiles, "adj", built.Count)
	require.NoError(t, err)
	want := [][]int8{
		{0, 1, 1},
		{1, 0, 0},
		{1, 1, 0},
	}
	for i := range want {
		for j := range want[i] {
			assert.Equal(t, want[i][j], full.At(i, j), "cell %d,%d", i, j)
		}
	}
}

func TestPartitionedCrawlMergesGraphs(t *testing.T) {
	srv := newMockServer(t)
	for i := 1; i <= 6; i++ {
		id := fmt.Sprint(i)
		srv.friends[id] = []social.UserID{fmt.Sprint(i%6 + 1)}
	}
	blobs := storage.NewMemoryStore()
	rotators := []*twitter.Rotator{newTestRotator(t, srv, 1), newTestRotator(t, srv, 1), newTestRotator(t, srv, 1)}

	run := func(ctx context.Context, i int, targets []social.UserID) (*graph.Graph, crawler.Result, error) {
		store := checkpoint.NewStore(blobs, fmt.Sprintf("graph_p%d", i))
		c := crawler.New(rotators[i], graph.New(), store, fastOptions(), logger.NewTestLogger())
		res, err := c.Crawl(ctx, targets)
		return c.Graph(), res, err
	}

	merged, results, err := crawler.RunPartitioned(context.Background(),
		[]social.UserID{"1", "2", "3", "4", "5", "6"}, 3, run, logger.NewTestLogger())
	require.NoError(t, err)
	require.Len(t, results, 3)

	resolved := 0
	for _, r := range results {
		resolved += r.Resolved
	}
	assert.Equal(t, 6, resolved)
	for i := 1; i <= 6; i++ {
		assert.Equal(t, []social.UserID{fmt.Sprint(i%6 + 1)}, merged.Friends[fmt.Sprint(i)])
	}

	names, err := blobs.List(context.Background(), "graph_p")
	require.NoError(t, err)
	assert.NotEmpty(t, names)
}
