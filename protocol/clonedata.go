package protocol

import (
	"fmt"

	"github.com/hupe1980/segdag/codec"
	"github.com/hupe1980/segdag/model"
)

// CloneData is a complete exchangeable graph: the master flat segments
// plus the id bindings a lazy client needs to anchor remote lookups
// (heads and merge parents). FlatSegments are ordered by Low.
type CloneData struct {
	FlatSegments []model.FlatSegment       `json:"flat_segments"`
	IDMap        map[model.Id]model.Vertex `json:"id_map"`
}

// Validate checks the structural invariants importers rely on:
// segments sorted by Low, non-overlapping, and every parent id either
// inside the payload or below its lowest id.
func (c *CloneData) Validate() error {
	if len(c.FlatSegments) == 0 {
		return nil
	}

	low := c.FlatSegments[0].Low
	var next model.Id

	for i, seg := range c.FlatSegments {
		if seg.High < seg.Low {
			return fmt.Errorf("segment %s is inverted", seg)
		}
		if i > 0 && seg.Low < next {
			return fmt.Errorf("segment %s overlaps or is out of order", seg)
		}
		for _, p := range seg.Parents {
			if p >= seg.Low {
				return fmt.Errorf("segment %s parent %s is not below the segment", seg, p)
			}
			if p >= low && !c.contains(p) {
				return fmt.Errorf("segment %s parent %s falls in a gap of the payload", seg, p)
			}
		}
		next = seg.High + 1
	}

	return nil
}

func (c *CloneData) contains(id model.Id) bool {
	for _, seg := range c.FlatSegments {
		if id >= seg.Low && id <= seg.High {
			return true
		}
	}
	return false
}

// Min returns the lowest id covered by the payload.
func (c *CloneData) Min() (model.Id, bool) {
	if len(c.FlatSegments) == 0 {
		return 0, false
	}
	return c.FlatSegments[0].Low, true
}

// Max returns the highest id covered by the payload.
func (c *CloneData) Max() (model.Id, bool) {
	if len(c.FlatSegments) == 0 {
		return 0, false
	}
	return c.FlatSegments[len(c.FlatSegments)-1].High, true
}

// Clone blob envelope: [CodecNameLen:1][CodecName][compressed block].
// The codec name makes blobs self-describing; the block carries its
// own compression tag.
const cloneCompression = codec.CompressionLZ4

// EncodeCloneData serializes and compresses a payload for transport or
// storage.
func EncodeCloneData(c *CloneData) ([]byte, error) {
	body, err := codec.Default.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode clone data: %w", err)
	}

	block, err := codec.Compress(body, cloneCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to compress clone data: %w", err)
	}

	name := codec.Default.Name()

	blob := make([]byte, 0, 1+len(name)+len(block))
	blob = append(blob, byte(len(name)))
	blob = append(blob, name...)
	blob = append(blob, block...)

	return blob, nil
}

// DecodeCloneData reverses EncodeCloneData.
func DecodeCloneData(blob []byte) (*CloneData, error) {
	if len(blob) < 1 {
		return nil, fmt.Errorf("clone blob too short")
	}

	nameLen := int(blob[0])
	if len(blob) < 1+nameLen {
		return nil, fmt.Errorf("clone blob shorter than codec name")
	}

	c, ok := codec.ByName(string(blob[1 : 1+nameLen]))
	if !ok {
		return nil, fmt.Errorf("unknown clone blob codec: %q", blob[1:1+nameLen])
	}

	body, err := codec.Decompress(blob[1+nameLen:])
	if err != nil {
		return nil, fmt.Errorf("failed to decompress clone data: %w", err)
	}

	var data CloneData
	if err := c.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to decode clone data: %w", err)
	}

	return &data, nil
}
