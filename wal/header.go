package wal

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

var (
	logMagic          = [4]byte{'S', 'D', 'L', '0'}
	logHeaderVersion  = uint16(1)
	logHeaderFixedLen = 16
)

type logHeaderInfo struct {
	Compressed       bool
	CompressionLevel int
	HeaderLen        int64
}

func writeLogHeader(w io.Writer, info logHeaderInfo) (int64, error) {
	var flags uint16
	if info.Compressed {
		flags |= 1
	}
	level := uint8(0)
	if info.Compressed {
		level = uint8(info.CompressionLevel)
	}

	buf := make([]byte, 0, logHeaderFixedLen)
	buf = append(buf, logMagic[:]...)
	var fixed [12]byte
	binary.LittleEndian.PutUint16(fixed[0:2], logHeaderVersion)
	binary.LittleEndian.PutUint16(fixed[2:4], flags)
	fixed[4] = level
	// fixed[5:12] reserved
	buf = append(buf, fixed[:]...)

	if _, err := w.Write(buf); err != nil {
		return 0, fmt.Errorf("failed to write log header: %w", err)
	}
	return int64(len(buf)), nil
}

func readLogHeader(f *os.File) (logHeaderInfo, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return logHeaderInfo{}, fmt.Errorf("failed to seek log: %w", err)
	}

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return logHeaderInfo{}, fmt.Errorf("failed to read log header magic: %w", err)
	}
	if magic != logMagic {
		return logHeaderInfo{}, fmt.Errorf("%w: invalid header magic", ErrCorrupt)
	}

	fixed := make([]byte, logHeaderFixedLen-4)
	if _, err := io.ReadFull(f, fixed); err != nil {
		return logHeaderInfo{}, fmt.Errorf("failed to read log header: %w", err)
	}

	version := binary.LittleEndian.Uint16(fixed[0:2])
	if version != logHeaderVersion {
		return logHeaderInfo{}, fmt.Errorf("unsupported log header version: %d", version)
	}
	flags := binary.LittleEndian.Uint16(fixed[2:4])
	compressed := (flags & 1) != 0
	level := int(fixed[4])
	// fixed[5:12] reserved

	return logHeaderInfo{
		Compressed:       compressed,
		CompressionLevel: level,
		HeaderLen:        int64(logHeaderFixedLen),
	}, nil
}
