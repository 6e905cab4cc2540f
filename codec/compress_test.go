package codec

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressRoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("segment data block "), 200)

	random := make([]byte, 4096)
	_, err := rand.Read(random)
	require.NoError(t, err)

	tests := []struct {
		name string
		algo Compression
		data []byte
	}{
		{name: "none", algo: CompressionNone, data: compressible},
		{name: "lz4", algo: CompressionLZ4, data: compressible},
		{name: "zstd", algo: CompressionZSTD, data: compressible},
		{name: "lz4 incompressible", algo: CompressionLZ4, data: random},
		{name: "zstd incompressible", algo: CompressionZSTD, data: random},
		{name: "empty", algo: CompressionLZ4, data: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block, err := Compress(tt.data, tt.algo)
			require.NoError(t, err)

			out, err := Decompress(block)
			require.NoError(t, err)

			if len(tt.data) == 0 {
				assert.Empty(t, out)
			} else {
				assert.Equal(t, tt.data, out)
			}
		})
	}
}

func TestCompressShrinks(t *testing.T) {
	data := bytes.Repeat([]byte("segment data block "), 200)

	for _, algo := range []Compression{CompressionLZ4, CompressionZSTD} {
		block, err := Compress(data, algo)
		require.NoError(t, err)
		assert.Equal(t, byte(algo), block[0])
		assert.Less(t, len(block), len(data))
	}
}

func TestCompressIncompressibleStoredRaw(t *testing.T) {
	random := make([]byte, 4096)
	_, err := rand.Read(random)
	require.NoError(t, err)

	block, err := Compress(random, CompressionLZ4)
	require.NoError(t, err)

	// The algo byte falls back to none so readers skip decompression.
	assert.Equal(t, byte(CompressionNone), block[0])
	assert.Len(t, block, blockHeaderSize+len(random))
}

func TestCompressUnknownAlgorithm(t *testing.T) {
	_, err := Compress([]byte("x"), Compression(99))
	require.Error(t, err)
}

func TestDecompressErrors(t *testing.T) {
	block, err := Compress(bytes.Repeat([]byte("ab"), 512), CompressionZSTD)
	require.NoError(t, err)

	t.Run("short header", func(t *testing.T) {
		_, err := Decompress(block[:3])
		require.Error(t, err)
	})

	t.Run("unknown algo", func(t *testing.T) {
		bad := append([]byte(nil), block...)
		bad[0] = 99
		_, err := Decompress(bad)
		require.Error(t, err)
	})

	t.Run("truncated payload", func(t *testing.T) {
		_, err := Decompress(block[:len(block)-2])
		require.Error(t, err)
	})

	t.Run("size mismatch", func(t *testing.T) {
		bad := append([]byte(nil), block...)
		bad[1]++
		_, err := Decompress(bad)
		require.Error(t, err)
	})
}

func TestCodecByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())
	}

	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestCodecRoundTrip(t *testing.T) {
	type payload struct {
		Low     uint64   `json:"low"`
		High    uint64   `json:"high"`
		Parents []uint64 `json:"parents"`
	}

	in := payload{Low: 5, High: 9, Parents: []uint64{4, 2}}

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		data, err := c.Marshal(in)
		require.NoError(t, err)

		var out payload
		require.NoError(t, c.Unmarshal(data, &out))
		assert.Equal(t, in, out)
	}
}
