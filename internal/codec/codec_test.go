package codec

import (
	"bytes"
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte(`{"followers":{"1":["2","3"]}}`), 200)
	for _, c := range []Compression{None, LZ4, Zstd} {
		t.Run(c.String(), func(t *testing.T) {
			for _, data := range [][]byte{nil, []byte("x"), compressible} {
				blob, err := Encode(c, data)
				require.NoError(t, err)
				got, err := Decode(blob)
				require.NoError(t, err)
				assert.Equal(t, len(data), len(got))
				assert.True(t, bytes.Equal(data, got))
			}
		})
	}
}

func TestCompressibleDataShrinks(t *testing.T) {
	data := bytes.Repeat([]byte{0xD6}, 10000)
	blob, err := Encode(Zstd, data)
	require.NoError(t, err)
	assert.Less(t, len(blob), len(data)/10)
	assert.Equal(t, byte(Zstd), blob[4])
}

func TestDecodeDetectsCorruption(t *testing.T) {
	data := bytes.Repeat([]byte("abcdef"), 500)
	blob, err := Encode(LZ4, data)
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":     {},
		"bad magic": append([]byte("XXXX"), blob[4:]...),
		"truncated": blob[:len(blob)-3],
		"flipped": func() []byte {
			b := append([]byte(nil), blob...)
			b[len(b)-1] ^= 0xFF
			return b
		}(),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(b)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestZstdSharedAcrossGoroutines(t *testing.T) {
	_, err := zstdEncoder()
	require.NoError(t, err)
	_, err = zstdDecoder()
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		data := bytes.Repeat([]byte(fmt.Sprintf("tile-%d;", i)), 300)
		g.Go(func() error {
			blob, err := Encode(Zstd, data)
			if err != nil {
				return err
			}
			got, err := Decode(blob)
			if err != nil {
				return err
			}
			if !bytes.Equal(data, got) {
				return fmt.Errorf("round trip mismatch for %d bytes", len(data))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
