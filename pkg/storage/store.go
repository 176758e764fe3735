package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"followgraph/pkg/config"

	"go.uber.org/multierr"
)

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("blob not found")

// BlobStore is a flat namespace of named byte blobs. Names may contain "/"
// to group blobs (backups live under "<label>/").
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Exists(ctx context.Context, name string) (bool, error)
	// List returns the sorted names starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes a blob; deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	Close() error
}

// Open builds the backend selected by cfg.
func Open(ctx context.Context, cfg *config.StorageConfig) (BlobStore, error) {
	switch cfg.Backend {
	case "", "fs":
		return NewFileStore(cfg.Directory)
	case "badger":
		path := cfg.Badger.Path
		if path == "" {
			path = filepath.Join(cfg.Directory, "badger")
		}
		return OpenBadger(BadgerConfig{
			Path:           path,
			SyncWrites:     cfg.Badger.SyncWrites,
			GCInterval:     cfg.Badger.GCInterval,
			GCDiscardRatio: cfg.Badger.GCDiscardRatio,
		})
	case "minio":
		return OpenMinio(ctx, MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			Prefix:    cfg.Minio.Prefix,
			UseSSL:    cfg.Minio.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Copy duplicates every blob whose name starts with prefix under
// dstDir + "/". It returns the number of blobs copied.
func Copy(ctx context.Context, s BlobStore, prefix, dstDir string) (int, error) {
	names, err := s.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list %q: %w", prefix, err)
	}
	top := names[:0]
	for _, name := range names {
		if !strings.Contains(name, "/") {
			top = append(top, name)
		}
	}
	return CopyNames(ctx, s, top, dstDir)
}

// CopyNames copies the named blobs to dstDir + "/" + name. Every name is
// attempted; failures are aggregated.
func CopyNames(ctx context.Context, s BlobStore, names []string, dstDir string) (int, error) {
	var errs error
	copied := 0
	for _, name := range names {
		data, err := s.Get(ctx, name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read %s: %w", name, err))
			continue
		}
		if err := s.Put(ctx, dstDir+"/"+name, data); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("write %s: %w", name, err))
			continue
		}
		copied++
	}
	return copied, errs
}

// HasDir reports whether any blob lives under dir + "/".
func HasDir(ctx context.Context, s BlobStore, dir string) (bool, error) {
	names, err := s.List(ctx, dir+"/")
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}
