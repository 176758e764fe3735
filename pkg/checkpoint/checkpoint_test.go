package checkpoint

import (
	"context"
	"fmt"
	"testing"

	errs "followgraph/pkg/errors"
	"followgraph/pkg/graph"
	"followgraph/pkg/social"
	"followgraph/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGraph() *graph.Graph {
	g := graph.New()
	for i := 0; i < 40; i++ {
		u := fmt.Sprintf("%d", 1000+i)
		switch i % 4 {
		case 0:
			g.SetNeighbours(social.Friend, u, []social.UserID{"1", "2", u})
		case 1:
			g.SetNeighbours(social.Follower, u, []social.UserID{})
		case 2:
			g.Friends[u] = nil
			g.KnownUsers.Add(u)
		default:
			g.MarkError(u)
		}
	}
	g.RunID = "run-1"
	return g
}

func TestPartitionCompleteness(t *testing.T) {
	g := sampleGraph()
	for k := 1; k <= 13; k++ {
		merged := graph.New()
		for _, part := range Partition(g, k) {
			merged.Merge(part)
		}
		assert.True(t, g.Equal(merged), "k=%d", k)
	}
}

func TestSaveLoadSliced(t *testing.T) {
	ctx := context.Background()
	blobs := storage.NewMemoryStore()
	s := NewStore(blobs, "SlicedUserNetwork")
	g := sampleGraph()

	require.NoError(t, s.Save(ctx, g, SaveOptions{Slices: 11}))

	names, err := blobs.List(ctx, "SlicedUserNetwork_")
	require.NoError(t, err)
	assert.Len(t, names, 11)

	loaded := graph.New()
	found, err := s.Load(ctx, loaded, "")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, g.Equal(loaded))
	assert.Equal(t, "run-1", loaded.RunID)
}

func TestLoadTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemoryStore(), "net")
	require.NoError(t, s.Save(ctx, sampleGraph(), SaveOptions{Slices: 3}))

	once := graph.New()
	_, err := s.Load(ctx, once, "")
	require.NoError(t, err)

	twice := graph.New()
	_, err = s.Load(ctx, twice, "")
	require.NoError(t, err)
	_, err = s.Load(ctx, twice, "")
	require.NoError(t, err)

	assert.True(t, once.Equal(twice))
}

func TestNamedSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemoryStore(), "net")
	g := sampleGraph()
	require.NoError(t, s.Save(ctx, g, SaveOptions{Name: "UserNetwork_friends"}))

	loaded := graph.New()
	found, err := s.Load(ctx, loaded, "UserNetwork_friends")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, g.Equal(loaded))

	// The named snapshot is not picked up as a slice.
	empty := graph.New()
	found, err = s.Load(ctx, empty, "")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoadMissing(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemoryStore(), "net")
	g := graph.New()

	found, err := s.Load(ctx, g, "")
	require.NoError(t, err)
	assert.False(t, found)

	found, err = s.Load(ctx, g, "nothing_here")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoadCorrupt(t *testing.T) {
	ctx := context.Background()
	blobs := storage.NewMemoryStore()
	s := NewStore(blobs, "net")
	require.NoError(t, s.Save(ctx, sampleGraph(), SaveOptions{Slices: 2}))

	blob, err := blobs.Get(ctx, "net_1")
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xFF
	require.NoError(t, blobs.Put(ctx, "net_1", blob))

	g := graph.New()
	found, err := s.Load(ctx, g, "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeCorrupt))
	assert.False(t, found)
	// net_0 decoded fine but must not be merged on its own
	assert.Empty(t, g.KnownUsers)
	assert.Empty(t, g.Friends)

	require.NoError(t, blobs.Put(ctx, "garbage", []byte("not a checkpoint")))
	_, err = s.Load(ctx, graph.New(), "garbage")
	assert.True(t, errs.Is(err, errs.ErrorTypeCorrupt))
}

func TestSaveRemovesStaleSlices(t *testing.T) {
	ctx := context.Background()
	blobs := storage.NewMemoryStore()
	s := NewStore(blobs, "net")
	g := sampleGraph()

	require.NoError(t, s.Save(ctx, g, SaveOptions{Slices: 5}))
	require.NoError(t, s.Save(ctx, g, SaveOptions{Slices: 2}))

	names, err := blobs.List(ctx, "net_")
	require.NoError(t, err)
	assert.Equal(t, []string{"net_0", "net_1"}, names)

	loaded := graph.New()
	_, err = s.Load(ctx, loaded, "")
	require.NoError(t, err)
	assert.True(t, g.Equal(loaded))
}

func TestBackup(t *testing.T) {
	ctx := context.Background()
	blobs := storage.NewMemoryStore()
	s := NewStore(blobs, "net")
	require.NoError(t, s.Save(ctx, sampleGraph(), SaveOptions{Slices: 2}))

	label := BackupName(social.Friend, 30, 10)
	assert.Equal(t, "backup_friend_c30_e10", label)

	used, err := s.Backup(ctx, label, SaveOptions{Slices: 2})
	require.NoError(t, err)
	assert.Equal(t, label, used)
	names, err := blobs.List(ctx, label+"/")
	require.NoError(t, err)
	assert.Equal(t, []string{label + "/net_0", label + "/net_1"}, names)

	again, err := s.Backup(ctx, label, SaveOptions{Slices: 2})
	require.NoError(t, err)
	assert.NotEqual(t, label, again)
	assert.Contains(t, again, label+"_")
}

func TestBackupCopiesExactlyWhatWasWritten(t *testing.T) {
	ctx := context.Background()
	g := sampleGraph()

	tests := []struct {
		name  string
		opts  SaveOptions
		extra []string
		want  []string
	}{
		{
			name:  "named snapshot",
			opts:  SaveOptions{Name: "UserNetwork_friends"},
			extra: []string{"net_0", "net_1"},
			want:  []string{"UserNetwork_friends"},
		},
		{
			name:  "slices beside partition stores",
			opts:  SaveOptions{Slices: 2},
			extra: []string{"net_p0_0", "net_p1_0", "net_notes"},
			want:  []string{"net_0", "net_1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobs := storage.NewMemoryStore()
			for _, name := range tt.extra {
				require.NoError(t, blobs.Put(ctx, name, []byte("other")))
			}
			s := NewStore(blobs, "net")
			require.NoError(t, s.Save(ctx, g, tt.opts))
			assert.Equal(t, tt.want, s.Written(tt.opts))

			label, err := s.Backup(ctx, "backup_friend_c1_e0", tt.opts)
			require.NoError(t, err)

			names, err := blobs.List(ctx, label+"/")
			require.NoError(t, err)
			var want []string
			for _, n := range tt.want {
				want = append(want, label+"/"+n)
			}
			assert.Equal(t, want, names)
		})
	}
}

func TestSliceIndexesIgnorePartitionPrefixes(t *testing.T) {
	ctx := context.Background()
	blobs := storage.NewMemoryStore()
	require.NoError(t, NewStore(blobs, "net_p0").Save(ctx, sampleGraph(), SaveOptions{Slices: 2}))
	require.NoError(t, blobs.Put(ctx, "net_+1", []byte("x")))

	found, err := NewStore(blobs, "net").Load(ctx, graph.New(), "")
	require.NoError(t, err)
	assert.False(t, found)
}
