package idmap

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/segdag/model"
	"github.com/hupe1980/segdag/wal"
)

// Compile time check to ensure FileIdMap satisfies the IdMap interface.
var _ IdMap = (*FileIdMap)(nil)

// FileIdMapOptions contains configuration for a FileIdMap.
type FileIdMapOptions struct {
	// Path is the name log location. Required.
	Path string

	// Size is the durable log size recorded at the last flush, or
	// wal.SizeUnknown to accept the log as found.
	Size int64

	// Compress enables zstd compression of the name log.
	Compress bool

	// CompressionLevel sets the zstd compression level.
	CompressionLevel int
}

// DefaultFileIdMapOptions contains the default FileIdMap options.
var DefaultFileIdMapOptions = FileIdMapOptions{
	Size:             wal.SizeUnknown,
	Compress:         false,
	CompressionLevel: 3,
}

// FileIdMap is an IdMap whose master group bindings are journaled to an
// append-only log. Reads are served by in-memory maps rebuilt from the
// log on open.
//
// Non-master bindings are kept in memory only. They never survive a
// reopen; non-master ids are reassigned by the layer above on load.
type FileIdMap struct {
	mem *MemIdMap
	log *wal.Log
}

// NewFileIdMap opens or creates the name log at o.Path and rebuilds
// the in-memory maps from it.
func NewFileIdMap(optFns ...func(o *FileIdMapOptions)) (*FileIdMap, error) {
	opts := DefaultFileIdMapOptions

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

	m := &FileIdMap{
		mem: NewMemIdMap(),
		log: log,
	}

	if err := m.log.Replay(func(payload []byte) error {
		id, name, err := decodeNameRecord(payload)
		if err != nil {
			return err
		}
		return m.mem.Insert(id, name)
	}); err != nil {
		_ = log.Close()
		return nil, err
	}

	return m, nil
}

// Insert adds the binding (id, name), journaling it when the id belongs
// to the master group. The append is not durable until Flush returns.
func (m *FileIdMap) Insert(id model.Id, name model.Vertex) error {
	existed := m.mem.ContainsVertexName(name)

	if err := m.mem.Insert(id, name); err != nil {
		return err
	}

	if existed || id.Group() != model.GroupMaster {
		return nil
	}

	return m.log.Append(encodeNameRecord(id, name))
}

// VertexID returns the id bound to name.
func (m *FileIdMap) VertexID(name model.Vertex) (model.Id, error) {
	return m.mem.VertexID(name)
}

// VertexName returns the name bound to id.
func (m *FileIdMap) VertexName(id model.Id) (model.Vertex, error) {
	return m.mem.VertexName(id)
}

// ContainsVertexName reports whether name has an id binding.
func (m *FileIdMap) ContainsVertexName(name model.Vertex) bool {
	return m.mem.ContainsVertexName(name)
}

// NextFreeID returns the lowest unassigned id of the group.
func (m *FileIdMap) NextFreeID(group model.Group) model.Id {
	return m.mem.NextFreeID(group)
}

// RemoveNonMaster drops every binding in the non-master group. The log
// is untouched since non-master bindings are never journaled.
func (m *FileIdMap) RemoveNonMaster() error {
	return m.mem.RemoveNonMaster()
}

// CloneReadOnly returns an in-memory snapshot of the map. The snapshot
// serves reads only and is detached from the log.
func (m *FileIdMap) CloneReadOnly() IdMap {
	return m.mem.CloneReadOnly()
}

// Flush makes journaled bindings durable and returns the log byte size
// for the caller to record.
func (m *FileIdMap) Flush() (int64, error) {
	return m.log.Flush()
}

// Close closes the underlying log.
func (m *FileIdMap) Close() error {
	return m.log.Close()
}

// Name record format, little endian:
//
//	[Op:1][Id:8][NameLen:4][Name:N]
const (
	opInsertName = uint8(1)

	nameRecordFixedLen = 13
)

func encodeNameRecord(id model.Id, name model.Vertex) []byte {
	buf := make([]byte, 0, nameRecordFixedLen+len(name))
	buf = append(buf, opInsertName)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(id))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(name)))
	buf = append(buf, name...)
	return buf
}

func decodeNameRecord(payload []byte) (model.Id, model.Vertex, error) {
	if len(payload) < nameRecordFixedLen {
		return 0, nil, fmt.Errorf("name record too short: %d bytes", len(payload))
	}
	if payload[0] != opInsertName {
		return 0, nil, fmt.Errorf("unknown name record op: %d", payload[0])
	}

	id := model.Id(binary.LittleEndian.Uint64(payload[1:9]))

	nameLen := int(binary.LittleEndian.Uint32(payload[9:13]))
	if len(payload) != nameRecordFixedLen+nameLen {
		return 0, nil, fmt.Errorf("name record length %d does not match name of %d bytes", len(payload), nameLen)
	}

	name := make(model.Vertex, nameLen)
	copy(name, payload[nameRecordFixedLen:])

	return id, name, nil
}
