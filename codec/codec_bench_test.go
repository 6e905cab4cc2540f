package codec

import (
	"bytes"
	"fmt"
	"testing"
)

type benchSegment struct {
	Low     uint64   `json:"low"`
	High    uint64   `json:"high"`
	Parents []uint64 `json:"parents"`
}

type benchPayload struct {
	FlatSegments []benchSegment    `json:"flat_segments"`
	IDNames      map[uint64][]byte `json:"id_names"`
}

func makeBenchPayload(segments int) benchPayload {
	p := benchPayload{
		IDNames: make(map[uint64][]byte, segments),
	}
	for i := 0; i < segments; i++ {
		low := uint64(i * 20)
		p.FlatSegments = append(p.FlatSegments, benchSegment{
			Low:     low,
			High:    low + 19,
			Parents: []uint64{low - 1, low / 2},
		})
		p.IDNames[low] = []byte(fmt.Sprintf("commit-%040d", i))
	}
	return p
}

func benchmarkCodecMarshal(b *testing.B, c Codec, v any) {
	b.Helper()
	b.ReportAllocs()

	warm, err := c.Marshal(v)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(warm)))

	var sink []byte
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out, err := c.Marshal(v)
		if err != nil {
			b.Fatal(err)
		}
		sink = out
	}
	_ = sink
}

func benchmarkCodecUnmarshal[T any](b *testing.B, c Codec, data []byte, dst *T) {
	b.Helper()
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))

	var v T
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.Unmarshal(data, &v); err != nil {
			b.Fatal(err)
		}
	}
	if dst != nil {
		*dst = v
	}
}

func BenchmarkCodec_Marshal_Payload(b *testing.B) {
	payload := makeBenchPayload(500)

	b.Run("stdlib", func(b *testing.B) { benchmarkCodecMarshal(b, JSON{}, payload) })
	b.Run("go-json", func(b *testing.B) { benchmarkCodecMarshal(b, GoJSON{}, payload) })
}

func BenchmarkCodec_Unmarshal_Payload(b *testing.B) {
	jsonData := MustMarshal(JSON{}, makeBenchPayload(500))

	b.Run("stdlib", func(b *testing.B) {
		var sink benchPayload
		benchmarkCodecUnmarshal(b, JSON{}, jsonData, &sink)
		_ = sink
	})
	b.Run("go-json", func(b *testing.B) {
		var sink benchPayload
		benchmarkCodecUnmarshal(b, GoJSON{}, jsonData, &sink)
		_ = sink
	})
}

func BenchmarkCompress(b *testing.B) {
	data := bytes.Repeat(MustMarshal(Default, makeBenchPayload(200)), 4)

	for _, tt := range []struct {
		name string
		algo Compression
	}{
		{name: "lz4", algo: CompressionLZ4},
		{name: "zstd", algo: CompressionZSTD},
	} {
		b.Run(tt.name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			for i := 0; i < b.N; i++ {
				if _, err := Compress(data, tt.algo); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkDecompress(b *testing.B) {
	data := bytes.Repeat(MustMarshal(Default, makeBenchPayload(200)), 4)

	for _, tt := range []struct {
		name string
		algo Compression
	}{
		{name: "lz4", algo: CompressionLZ4},
		{name: "zstd", algo: CompressionZSTD},
	} {
		b.Run(tt.name, func(b *testing.B) {
			block, err := Compress(data, tt.algo)
			if err != nil {
				b.Fatal(err)
			}

			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			for i := 0; i < b.N; i++ {
				if _, err := Decompress(block); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
