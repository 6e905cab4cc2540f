package iddag

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/segdag/idset"
	"github.com/hupe1980/segdag/model"
	"github.com/hupe1980/segdag/wal"
)

// Compile time check to ensure FileStore satisfies the Store interface.
var _ Store = (*FileStore)(nil)

// FileStoreOptions contains configuration for a FileStore.
type FileStoreOptions struct {
	// Path is the segment log location. Required.
	Path string

	// Size is the durable log size recorded at the last flush, or
	// wal.SizeUnknown to accept the log as found.
	Size int64

	// Compress enables zstd compression of the segment log.
	Compress bool

	// CompressionLevel sets the zstd compression level.
	CompressionLevel int
}

// DefaultFileStoreOptions contains the default FileStore options.
var DefaultFileStoreOptions = FileStoreOptions{
	Size:             wal.SizeUnknown,
	Compress:         false,
	CompressionLevel: 3,
}

// FileStore is a Store whose master group segments are journaled to an
// append-only log. Reads are served by an in-memory MemStore rebuilt
// from the log on open.
//
// Non-master segments are kept in memory only. They never survive a
// reopen; the layer above reassigns non-master ids on load, so
// journaling them would only produce records that get discarded.
type FileStore struct {
	mem *MemStore
	log *wal.Log
}

// NewFileStore opens or creates the segment log at o.Path and rebuilds
// the in-memory index from it.
func NewFileStore(optFns ...func(o *FileStoreOptions)) (*FileStore, error) {
	opts := DefaultFileStoreOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	log, err := wal.New(func(o *wal.Options) {
		o.Path = opts.Path
		o.Size = opts.Size
		o.Compress = opts.Compress
		o.CompressionLevel = opts.CompressionLevel
	})
	if err != nil {
		return nil, err
	}

	s := &FileStore{
		mem: NewMemStore(),
		log: log,
	}

	if err := s.log.Replay(func(payload []byte) error {
		seg, err := decodeSegmentRecord(payload)
		if err != nil {
			return err
		}
		return s.mem.Insert(seg)
	}); err != nil {
		_ = log.Close()
		return nil, err
	}

	return s, nil
}

// Insert adds a segment, journaling it when it belongs to the master
// group. The append is not durable until Flush returns.
func (s *FileStore) Insert(seg model.Segment) error {
	if err := s.mem.Insert(seg); err != nil {
		return err
	}

	if seg.Low.Group() != model.GroupMaster {
		return nil
	}

	return s.log.Append(encodeSegmentRecord(seg))
}

// NextFreeID returns the lowest id of the group not covered by any
// segment at the given level.
func (s *FileStore) NextFreeID(level int, group model.Group) model.Id {
	return s.mem.NextFreeID(level, group)
}

// MaxLevel returns the highest level holding at least one segment.
func (s *FileStore) MaxLevel() int {
	return s.mem.MaxLevel()
}

// FindSegmentByHead returns the segment at the given level whose high
// id equals head.
func (s *FileStore) FindSegmentByHead(head model.Id, level int) (model.Segment, bool) {
	return s.mem.FindSegmentByHead(head, level)
}

// FindFlatSegmentIncluding returns the flat segment covering id.
func (s *FileStore) FindFlatSegmentIncluding(id model.Id) (model.Segment, bool) {
	return s.mem.FindFlatSegmentIncluding(id)
}

// NextSegments returns the segments at the given level whose low id is
// at least low, restricted to low's group, in ascending order.
func (s *FileStore) NextSegments(low model.Id, level int) []model.Segment {
	return s.mem.NextSegments(low, level)
}

// IterSegmentsDescending visits segments at the given level whose high
// id is at most maxHigh, in descending order.
func (s *FileStore) IterSegmentsDescending(maxHigh model.Id, level int, fn func(seg model.Segment) (bool, error)) error {
	return s.mem.IterSegmentsDescending(maxHigh, level, fn)
}

// IterSegmentsAscending visits segments at the given level whose high
// id is at least minHigh, in ascending order.
func (s *FileStore) IterSegmentsAscending(minHigh model.Id, level int, fn func(seg model.Segment) (bool, error)) error {
	return s.mem.IterSegmentsAscending(minHigh, level, fn)
}

// IterMasterFlatSegmentsWithParentSpan visits (parent, child) pairs
// where parent falls inside span and child is a master group flat
// segment having that direct parent, in ascending parent order.
func (s *FileStore) IterMasterFlatSegmentsWithParentSpan(span idset.Span, fn func(parent model.Id, seg model.Segment) (bool, error)) error {
	return s.mem.IterMasterFlatSegmentsWithParentSpan(span, fn)
}

// IterFlatSegmentsWithParent visits flat segments of any group having
// the given direct parent, in ascending low order.
func (s *FileStore) IterFlatSegmentsWithParent(parent model.Id, fn func(seg model.Segment) (bool, error)) error {
	return s.mem.IterFlatSegmentsWithParent(parent, fn)
}

// AllIDsInGroups returns the set of ids covered by flat segments of the
// given groups.
func (s *FileStore) AllIDsInGroups(groups ...model.Group) idset.Set {
	return s.mem.AllIDsInGroups(groups...)
}

// RemoveNonMasterIDs drops every segment of the non-master group. The
// log is untouched since non-master segments are never journaled.
func (s *FileStore) RemoveNonMasterIDs() error {
	return s.mem.RemoveNonMasterIDs()
}

// CloneReadOnly returns an in-memory snapshot of the store. The
// snapshot serves reads only and is detached from the log.
func (s *FileStore) CloneReadOnly() Store {
	return s.mem.CloneReadOnly()
}

// Flush makes journaled segments durable and returns the log byte size
// for the caller to record.
func (s *FileStore) Flush() (int64, error) {
	return s.log.Flush()
}

// Close closes the underlying log.
func (s *FileStore) Close() error {
	return s.log.Close()
}

// Segment record format, little endian:
//
//	[Op:1][Level:1][Flags:1][Low:8][High:8][ParentCount:4][Parents:N*8]
const (
	opInsertSegment = uint8(1)

	segmentRecordFixedLen = 23
)

func encodeSegmentRecord(seg model.Segment) []byte {
	buf := make([]byte, 0, segmentRecordFixedLen+8*len(seg.Parents))
	buf = append(buf, opInsertSegment, uint8(seg.Level), uint8(seg.Flags))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(seg.Low))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(seg.High))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(seg.Parents)))
	for _, p := range seg.Parents {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(p))
	}
	return buf
}

func decodeSegmentRecord(payload []byte) (model.Segment, error) {
	if len(payload) < segmentRecordFixedLen {
		return model.Segment{}, fmt.Errorf("segment record too short: %d bytes", len(payload))
	}
	if payload[0] != opInsertSegment {
		return model.Segment{}, fmt.Errorf("unknown segment record op: %d", payload[0])
	}

	seg := model.Segment{
		Level: int(payload[1]),
		Flags: model.SegmentFlags(payload[2]),
		Low:   model.Id(binary.LittleEndian.Uint64(payload[3:11])),
		High:  model.Id(binary.LittleEndian.Uint64(payload[11:19])),
	}

	parentCount := int(binary.LittleEndian.Uint32(payload[19:23]))
	if len(payload) != segmentRecordFixedLen+8*parentCount {
		return model.Segment{}, fmt.Errorf("segment record length %d does not match %d parents", len(payload), parentCount)
	}

	if parentCount > 0 {
		seg.Parents = make([]model.Id, parentCount)
		for i := range seg.Parents {
			off := segmentRecordFixedLen + 8*i
			seg.Parents[i] = model.Id(binary.LittleEndian.Uint64(payload[off : off+8]))
		}
	}

	return seg, nil
}
