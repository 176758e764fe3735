// Package storage provides the blob backends that hold checkpoints and
// adjacency tiles.
//
// Three backends implement BlobStore:
//   - FileStore: one file per blob, written through a synced temp file and
//     an atomic rename.
//   - BadgerStore: an embedded badger database, with value log GC.
//   - MinioStore: objects in an S3-compatible bucket.
//
// Open picks one from the storage section of the configuration. Copy is
// used to snapshot checkpoint blobs into a backup directory.
package storage
