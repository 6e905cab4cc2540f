package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Record frame format: [PayloadLen:4][CRC32:4][Payload:N]
// PayloadLen and CRC32 (IEEE, over the payload) are little endian.
const frameHeaderLen = 8

// maxPayloadLen bounds a single record so a corrupt length field cannot
// trigger a huge allocation during replay.
const maxPayloadLen = 1 << 30

// writeFrame writes one record frame.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxPayloadLen {
		return fmt.Errorf("record of %d bytes exceeds frame limit", len(payload))
	}

	var head [frameHeaderLen]byte
	binary.LittleEndian.PutUint32(head[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(head[4:8], crc32.ChecksumIEEE(payload))

	if _, err := w.Write(head[:]); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write frame payload: %w", err)
	}

	return nil
}

// readFrame reads the next record frame. It returns io.EOF when the
// reader is positioned exactly at the end of the last complete frame.
func readFrame(r io.Reader) ([]byte, error) {
	var head [frameHeaderLen]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: truncated frame header", ErrCorrupt)
	}

	payloadLen := binary.LittleEndian.Uint32(head[0:4])
	if payloadLen > maxPayloadLen {
		return nil, fmt.Errorf("%w: frame length %d out of range", ErrCorrupt, payloadLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: truncated frame payload", ErrCorrupt)
	}

	if crc := crc32.ChecksumIEEE(payload); crc != binary.LittleEndian.Uint32(head[4:8]) {
		return nil, fmt.Errorf("%w: frame checksum mismatch", ErrCorrupt)
	}

	return payload, nil
}

// flushLocked drains the write buffer down to the file. In compressed
// mode it finalizes the current zstd stream and starts a fresh one, so
// the file always ends on a stream boundary afterwards.
func (l *Log) flushLocked() error {
	if err := l.bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	if l.compressed {
		if err := l.compressor.Close(); err != nil {
			return fmt.Errorf("failed to close compressor stream: %w", err)
		}
		l.compressor.Reset(l.file)
	}
	return nil
}
