package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the block compression algorithm.
type Compression uint8

const (
	// CompressionNone stores blocks uncompressed.
	CompressionNone Compression = 0
	// CompressionLZ4 is fast with moderate ratios, good for hot paths.
	CompressionLZ4 Compression = 1
	// CompressionZSTD trades speed for better ratios, good for cold blobs.
	CompressionZSTD Compression = 2
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// Block format: [Algo:1][UncompressedSize:4][Data...], little endian.
// Decompress dispatches on the algo byte, so blocks are
// self-describing and the writer's choice does not constrain readers.
const blockHeaderSize = 5

// Compress wraps data in a compressed block. When the algorithm does
// not pay off (ratio above 0.9, or incompressible input) the block is
// stored uncompressed regardless of the requested algorithm.
func Compress(data []byte, compression Compression) ([]byte, error) {
	if len(data) > math.MaxUint32 {
		return nil, fmt.Errorf("block too large to compress: %d bytes", len(data))
	}

	var (
		compressed []byte
		err        error
	)

	switch compression {
	case CompressionNone:
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZSTD:
		compressed = compressZSTD(data)
	default:
		return nil, fmt.Errorf("unknown compression algorithm: %d", compression)
	}

	if err != nil {
		return nil, err
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		compression = CompressionNone
		compressed = data
	}

	result := make([]byte, 0, blockHeaderSize+len(compressed))
	result = append(result, byte(compression))
	result = binary.LittleEndian.AppendUint32(result, uint32(len(data)))
	result = append(result, compressed...)

	return result, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))

	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Incompressible.
		return nil, nil
	}

	return compressed[:n], nil
}

func compressZSTD(data []byte) []byte {
	enc := getZstdEncoder()
	defer putZstdEncoder(enc)

	return enc.EncodeAll(data, nil)
}

// Decompress unwraps a block produced by Compress.
func Decompress(block []byte) ([]byte, error) {
	if len(block) < blockHeaderSize {
		return nil, errors.New("block too small for header")
	}

	compression := Compression(block[0])
	uncompressedSize := binary.LittleEndian.Uint32(block[1:5])
	payload := block[blockHeaderSize:]

	switch compression {
	case CompressionNone:
		if uint32(len(payload)) != uncompressedSize {
			return nil, errors.New("uncompressed block size mismatch")
		}
		return payload, nil

	case CompressionLZ4:
		result := make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(payload, result)
		if err != nil {
			return nil, err
		}
		if uint32(n) != uncompressedSize {
			return nil, errors.New("decompressed size mismatch")
		}
		return result, nil

	case CompressionZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)

		result, err := dec.DecodeAll(payload, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, err
		}
		if uint32(len(result)) != uncompressedSize {
			return nil, errors.New("decompressed size mismatch")
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unknown compression algorithm: %d", compression)
	}
}
