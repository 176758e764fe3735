package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"followgraph/internal/codec"
	errs "followgraph/pkg/errors"
	"followgraph/pkg/graph"
	"followgraph/pkg/logger"
	"followgraph/pkg/metrics"
	"followgraph/pkg/social"
	"followgraph/pkg/storage"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/multierr"
)

const formatVersion = 1

// snapshot is the document stored in every checkpoint blob
type snapshot struct {
	Version int          `json:"version"`
	Slice   int          `json:"slice"`
	Slices  int          `json:"slices"`
	SavedAt time.Time    `json:"saved_at"`
	Graph   *graph.Graph `json:"graph"`
}

// SaveOptions selects between a sliced save and a single named snapshot.
type SaveOptions struct {
	// Name writes one unsliced snapshot under this blob name.
	Name string
	// Slices is the partition count for a sliced save.
	Slices int
}

// Store persists graphs as checkpoint blobs named prefix_<i>.
type Store struct {
	blobs  storage.BlobStore
	prefix string
	logger logger.Logger
}

// NewStore creates a checkpoint store over blobs.
func NewStore(blobs storage.BlobStore, prefix string) *Store {
	return &Store{
		blobs:  blobs,
		prefix: prefix,
		logger: logger.GetLogger().WithField("component", "checkpoint"),
	}
}

// Prefix returns the slice name prefix.
func (s *Store) Prefix() string { return s.prefix }

// SliceName returns the blob name of slice i.
func (s *Store) SliceName(i int) string {
	return fmt.Sprintf("%s_%d", s.prefix, i)
}

// SliceOf returns the partition of key among n slices.
func SliceOf(key social.UserID, n int) int {
	return int(xxhash.Sum64String(key) % uint64(n))
}

// Partition splits g into n graphs by key hash. Every map entry and set
// member lands in exactly one partition.
func Partition(g *graph.Graph, n int) []*graph.Graph {
	if n < 1 {
		n = 1
	}
	parts := make([]*graph.Graph, n)
	for i := range parts {
		parts[i] = graph.New()
		parts[i].RunID = g.RunID
	}
	for k, v := range g.Followers {
		parts[SliceOf(k, n)].Followers[k] = v
	}
	for k, v := range g.Friends {
		parts[SliceOf(k, n)].Friends[k] = v
	}
	for k := range g.KnownUsers {
		parts[SliceOf(k, n)].KnownUsers.Add(k)
	}
	for k := range g.ErrorUsers {
		parts[SliceOf(k, n)].ErrorUsers.Add(k)
	}
	return parts
}

// Save writes g. A sliced save writes every partition independently and
// then removes slices left over from an earlier save with more partitions.
func (s *Store) Save(ctx context.Context, g *graph.Graph, opts SaveOptions) (err error) {
	start := time.Now()
	defer func() { metrics.RecordCheckpoint(time.Since(start), err) }()

	if opts.Name != "" {
		if err := s.write(ctx, opts.Name, snapshot{Slice: 0, Slices: 1, Graph: g}); err != nil {
			return err
		}
		s.logSaved(opts.Name, g)
		return nil
	}

	n := opts.Slices
	if n < 1 {
		n = 1
	}
	for i, part := range Partition(g, n) {
		if werr := s.write(ctx, s.SliceName(i), snapshot{Slice: i, Slices: n, Graph: part}); werr != nil {
			err = multierr.Append(err, werr)
		}
	}
	if err != nil {
		return err
	}

	existing, err := s.sliceIndexes(ctx)
	if err != nil {
		return fmt.Errorf("list checkpoint slices: %w", err)
	}
	for _, i := range existing {
		if i >= n {
			err = multierr.Append(err, s.blobs.Delete(ctx, s.SliceName(i)))
		}
	}
	if err != nil {
		return fmt.Errorf("remove stale slices: %w", err)
	}

	s.logSaved(s.prefix+"_*", g)
	return nil
}

func (s *Store) logSaved(name string, g *graph.Graph) {
	s.logger.InfoWithFields("Checkpoint saved", map[string]interface{}{
		"name":    name,
		"known":   len(g.KnownUsers),
		"crawled": g.Crawled(),
		"errors":  len(g.ErrorUsers),
	})
}

func (s *Store) write(ctx context.Context, name string, snap snapshot) error {
	snap.Version = formatVersion
	snap.SavedAt = time.Now().UTC()

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", name, err)
	}
	blob, err := codec.Encode(codec.LZ4, raw)
	if err != nil {
		return fmt.Errorf("compress checkpoint %s: %w", name, err)
	}
	if err := s.blobs.Put(ctx, name, blob); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", name, err)
	}
	return nil
}

// Load merges a checkpoint into g. With a name it loads that snapshot;
// otherwise it loads every slice in index order. found is false when
// nothing exists. A corrupt blob returns a corrupt error and nothing is
// merged.
func (s *Store) Load(ctx context.Context, g *graph.Graph, name string) (found bool, err error) {
	names := []string{name}
	if name == "" {
		idx, err := s.sliceIndexes(ctx)
		if err != nil {
			return false, fmt.Errorf("list checkpoint slices: %w", err)
		}
		names = names[:0]
		for _, i := range idx {
			names = append(names, s.SliceName(i))
		}
	}

	var loaded []*graph.Graph
	for i, n := range names {
		part, err := s.read(ctx, n)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		loaded = append(loaded, part)
		s.logger.DebugWithFields("Checkpoint slice read", map[string]interface{}{
			"name":  n,
			"index": i + 1,
			"total": len(names),
		})
	}

	// g stays untouched unless every blob decoded
	for _, part := range loaded {
		g.Merge(part)
	}
	found = len(loaded) > 0

	if found {
		s.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
			"known":   len(g.KnownUsers),
			"crawled": g.Crawled(),
			"errors":  len(g.ErrorUsers),
		})
	}
	return found, nil
}

func (s *Store) read(ctx context.Context, name string) (*graph.Graph, error) {
	blob, err := s.blobs.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Decode(blob)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeCorrupt, err, "checkpoint "+name)
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeCorrupt, err, "checkpoint "+name)
	}
	if snap.Version != formatVersion || snap.Graph == nil {
		return nil, errs.New(errs.ErrorTypeCorrupt, 0,
			fmt.Sprintf("checkpoint %s: unsupported version %d", name, snap.Version))
	}
	out := graph.New()
	out.Merge(snap.Graph)
	return out, nil
}

// sliceIndexes returns the indexes of existing prefix_<i> blobs, ascending.
func (s *Store) sliceIndexes(ctx context.Context) ([]int, error) {
	names, err := s.blobs.List(ctx, s.prefix+"_")
	if err != nil {
		return nil, err
	}
	var idx []int
	for _, n := range names {
		suffix := strings.TrimPrefix(n, s.prefix+"_")
		if !digits(suffix) {
			continue
		}
		i, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx, nil
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Written returns the blob names a save with opts writes.
func (s *Store) Written(opts SaveOptions) []string {
	if opts.Name != "" {
		return []string{opts.Name}
	}
	n := opts.Slices
	if n < 1 {
		n = 1
	}
	names := make([]string, n)
	for i := range names {
		names[i] = s.SliceName(i)
	}
	return names
}

// BackupName builds the backup directory label for a finished crawl.
func BackupName(d social.Direction, crawled, errored int) string {
	return fmt.Sprintf("backup_%s_c%d_e%d", d, crawled, errored)
}

// Backup copies the blobs written by a save with opts under label/. If
// label is taken a timestamp is appended. It returns the label used.
func (s *Store) Backup(ctx context.Context, label string, opts SaveOptions) (string, error) {
	taken, err := storage.HasDir(ctx, s.blobs, label)
	if err != nil {
		return "", err
	}
	if taken {
		label = fmt.Sprintf("%s_%s", label, time.Now().UTC().Format("20060102T150405"))
	}

	n, err := storage.CopyNames(ctx, s.blobs, s.Written(opts), label)
	if err != nil {
		return label, fmt.Errorf("backup %s: %w", label, err)
	}
	s.logger.InfoWithFields("Checkpoint backed up", map[string]interface{}{
		"label": label,
		"blobs": n,
	})
	return label, nil
}
