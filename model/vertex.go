package model

import (
	"bytes"
	"encoding/hex"
)

// Vertex is the stable external identity of a commit: an opaque byte
// string, usually a content hash.
type Vertex []byte

// VertexFromString builds a Vertex from a human-readable name. Mostly
// useful in tests and examples.
func VertexFromString(s string) Vertex {
	return Vertex(s)
}

// Equal reports whether two vertexes have identical bytes.
func (v Vertex) Equal(other Vertex) bool {
	return bytes.Equal(v, other)
}

// Key returns the vertex bytes as a string, for use as a map key.
func (v Vertex) Key() string {
	return string(v)
}

// String renders printable vertexes as-is and everything else as hex.
func (v Vertex) String() string {
	for _, b := range v {
		if b < 0x20 || b > 0x7e {
			return hex.EncodeToString(v)
		}
	}
	return string(v)
}
