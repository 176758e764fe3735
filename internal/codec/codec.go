// Package codec frames compressed blobs with a checksummed header so that
// truncated or garbled data is detected on read.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the block algorithm.
type Compression uint8

const (
	None Compression = 0
	LZ4  Compression = 1
	Zstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// Header layout:
// [magic 4][compression 1][reserved 3][raw size u32][stored size u32][xxhash64 of raw u64]
const headerSize = 24

var magic = [4]byte{'F', 'G', 'B', '1'}

// ErrCorrupt is wrapped by every decode failure.
var ErrCorrupt = errors.New("corrupt blob")

// EncodeAll and DecodeAll are safe for concurrent use, so one encoder and
// one decoder serve every caller.
var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
)

// Encode compresses data with c and prepends the header. Data that does not
// shrink is stored raw.
func Encode(c Compression, data []byte) ([]byte, error) {
	stored, used, err := compress(c, data)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize+len(stored))
	copy(out[0:4], magic[:])
	out[4] = byte(used)
	binary.LittleEndian.PutUint32(out[8:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[12:], uint32(len(stored)))
	binary.LittleEndian.PutUint64(out[16:], xxhash.Sum64(data))
	copy(out[headerSize:], stored)
	return out, nil
}

func compress(c Compression, data []byte) ([]byte, Compression, error) {
	if len(data) == 0 {
		return data, None, nil
	}
	var compressed []byte
	switch c {
	case None:
		return data, None, nil
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, None, fmt.Errorf("lz4 compress: %w", err)
		}
		compressed = buf[:n]
	case Zstd:
		enc, err := zstdEncoder()
		if err != nil {
			return nil, None, fmt.Errorf("zstd encoder: %w", err)
		}
		compressed = enc.EncodeAll(data, nil)
	default:
		return nil, None, fmt.Errorf("unknown compression %d", c)
	}
	if len(compressed) == 0 || len(compressed) >= len(data) {
		return data, None, nil
	}
	return compressed, c, nil
}

// Decode validates the header and checksum and returns the raw payload.
func Decode(blob []byte) ([]byte, error) {
	if len(blob) < headerSize || !bytes.Equal(blob[0:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	c := Compression(blob[4])
	rawSize := binary.LittleEndian.Uint32(blob[8:])
	storedSize := binary.LittleEndian.Uint32(blob[12:])
	sum := binary.LittleEndian.Uint64(blob[16:])
	if uint64(len(blob)-headerSize) != uint64(storedSize) {
		return nil, fmt.Errorf("%w: payload is %d bytes, header says %d", ErrCorrupt, len(blob)-headerSize, storedSize)
	}
	payload := blob[headerSize:]

	var raw []byte
	switch c {
	case None:
		raw = payload
	case LZ4:
		raw = make([]byte, rawSize)
		n, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorrupt, err)
		}
		raw = raw[:n]
	case Zstd:
		dec, err := zstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		out, err := dec.DecodeAll(payload, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
		raw = out
	default:
		return nil, fmt.Errorf("%w: unknown compression %d", ErrCorrupt, c)
	}

	if uint32(len(raw)) != rawSize {
		return nil, fmt.Errorf("%w: decoded %d bytes, header says %d", ErrCorrupt, len(raw), rawSize)
	}
	if xxhash.Sum64(raw) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return raw, nil
}
