// Package checkpoint persists the crawl graph so an interrupted crawl can
// resume without fetching finished users again.
//
// A sliced save partitions the graph by xxhash of each key into
// prefix_0 ... prefix_<n-1>; each slice is JSON compressed with lz4 and
// framed with a checksum. Loading merges every slice it finds into the
// caller's graph: map entries from later slices win, sets are unioned.
// A missing checkpoint is reported as not found, a corrupt one as an
// error of type corrupt.
package checkpoint
