// Package userset reads, writes and splits lists of user IDs.
//
// Lists are kept as plain text (one ID per line) or as roaring64 bitmap
// files; the format follows the file extension. Bitmaps need numeric IDs
// and come back in ascending order.
package userset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"followgraph/pkg/social"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// BitmapExt marks files holding a serialized roaring64 bitmap.
const BitmapExt = ".roar"

// Split cuts ids into segments contiguous chunks of equal size. The last
// chunk absorbs the remainder as a short extra chunk, so a list that does
// not divide evenly yields segments+1 chunks.
func Split(ids []social.UserID, segments int) ([][]social.UserID, error) {
	if segments <= 0 {
		return nil, fmt.Errorf("segment count must be positive, got %d", segments)
	}
	size := len(ids) / segments
	if size == 0 {
		size = 1
	}
	return Chunk(ids, size)
}

// Chunk cuts ids into consecutive chunks of at most size IDs.
func Chunk(ids []social.UserID, size int) ([][]social.UserID, error) {
	if size <= 0 {
		return nil, fmt.Errorf("segment size must be positive, got %d", size)
	}
	out := make([][]social.UserID, 0, (len(ids)+size-1)/size)
	for i := 0; i < len(ids); i += size {
		end := min(i+size, len(ids))
		out = append(out, ids[i:end:end])
	}
	return out, nil
}

// Distribute deals ids round robin into n groups, keeping every group
// within one ID of the others.
func Distribute(ids []social.UserID, n int) ([][]social.UserID, error) {
	if n <= 0 {
		return nil, fmt.Errorf("group count must be positive, got %d", n)
	}
	out := make([][]social.UserID, n)
	for i, id := range ids {
		out[i%n] = append(out[i%n], id)
	}
	return out, nil
}

// Dedup returns ids without repeats, keeping first occurrences in order.
func Dedup(ids []social.UserID) []social.UserID {
	seen := make(map[social.UserID]struct{}, len(ids))
	out := make([]social.UserID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ReadText reads one ID per line. Blank lines and lines starting with #
// are skipped.
func ReadText(r io.Reader) ([]social.UserID, error) {
	var ids []social.UserID
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read user list: %w", err)
	}
	return ids, nil
}

// WriteText writes one ID per line.
func WriteText(w io.Writer, ids []social.UserID) error {
	bw := bufio.NewWriter(w)
	for _, id := range ids {
		if _, err := bw.WriteString(id + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ToBitmap converts numeric IDs into a roaring64 bitmap.
func ToBitmap(ids []social.UserID) (*roaring64.Bitmap, error) {
	bm := roaring64.New()
	for _, id := range ids {
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("user id %q is not numeric: %w", id, err)
		}
		bm.Add(n)
	}
	return bm, nil
}

// FromBitmap lists the bitmap's IDs in ascending order.
func FromBitmap(bm *roaring64.Bitmap) []social.UserID {
	out := make([]social.UserID, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, strconv.FormatUint(it.Next(), 10))
	}
	return out
}

// ReadBitmap decodes a serialized bitmap.
func ReadBitmap(r io.Reader) ([]social.UserID, error) {
	bm := roaring64.New()
	if _, err := bm.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("read bitmap: %w", err)
	}
	return FromBitmap(bm), nil
}

// WriteBitmap serializes ids as a bitmap.
func WriteBitmap(w io.Writer, ids []social.UserID) error {
	bm, err := ToBitmap(ids)
	if err != nil {
		return err
	}
	bm.RunOptimize()
	_, err = bm.WriteTo(w)
	return err
}

// Load reads a user list, picking the format from the extension.
func Load(path string) ([]social.UserID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if filepath.Ext(path) == BitmapExt {
		return ReadBitmap(bufio.NewReader(f))
	}
	return ReadText(f)
}

// Save writes a user list, picking the format from the extension.
func Save(path string, ids []social.UserID) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if filepath.Ext(path) == BitmapExt {
		err = WriteBitmap(f, ids)
	} else {
		err = WriteText(f, ids)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// SegmentPath names the i-th output of a split: users.txt becomes
// users_0.txt, users_1.txt, ...
func SegmentPath(path string, i int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), i, ext)
}

// Sorted returns a sorted copy of ids.
func Sorted(ids []social.UserID) []social.UserID {
	out := append([]social.UserID(nil), ids...)
	sort.Strings(out)
	return out
}
