// Package wal provides the append-only record log backing the on-disk
// graph stores.
//
// Records are opaque byte payloads framed with a length and CRC-32
// checksum, optionally compressed as concatenated zstd streams.
// Durability is explicit: Append buffers, Flush makes everything
// appended so far durable and returns the resulting byte size. Callers
// record that size elsewhere and pass it back on open, which truncates
// away any torn tail left by a crash between flushes. Flush always
// ends on a frame boundary, and in compressed mode on a zstd stream
// boundary, so a file truncated to a recorded size always replays
// cleanly.
//
// Features:
//   - Opaque record framing with per-record checksums
//   - Optional zstd compression of the record stream
//   - Explicit flush boundaries for crash recovery
package wal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Log is an append-only record log.
type Log struct {
	mu               sync.Mutex
	file             *os.File
	writer           io.Writer     // May be compressed or direct
	bufWriter        *bufio.Writer // Buffered writer for performance
	compressor       *zstd.Encoder
	decompressor     *zstd.Decoder
	filePath         string
	compressed       bool
	compressionLevel int
	dataOffset       int64 // start of record stream (after header)
	size             int64 // durable byte size as of the last flush
	unflushed        bool  // appends buffered since the last flush
}

// FilePath returns the path to the log file.
func (l *Log) FilePath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filePath
}

// New opens or creates the log at o.Path.
func New(optFns ...func(o *Options)) (*Log, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Path == "" {
		return nil, fmt.Errorf("log path is required")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Open or create log file (we manage seek explicitly)
	file, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_RDWR, 0600) //nolint:gosec // G304: Path is configurable
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	st, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	l := &Log{
		file:             file,
		filePath:         opts.Path,
		compressionLevel: opts.CompressionLevel,
	}

	if err := l.initializeFile(st, opts); err != nil {
		_ = file.Close()
		return nil, err
	}

	// Position at the end of the record stream before initializing codecs.
	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		_ = l.file.Close()
		return nil, fmt.Errorf("failed to seek log end: %w", err)
	}

	// Set up compression if enabled
	if l.compressed {
		// Create zstd encoder with specified compression level
		level := zstd.EncoderLevelFromZstd(l.compressionLevel)
		compressor, err := zstd.NewWriter(l.file, zstd.WithEncoderLevel(level))
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to create compressor: %w", err)
		}
		l.compressor = compressor
		l.bufWriter = bufio.NewWriter(compressor)
		l.writer = l.bufWriter

		// Create decompressor for replay
		decompressor, err := zstd.NewReader(nil)
		if err != nil {
			_ = compressor.Close()
			_ = file.Close()
			return nil, fmt.Errorf("failed to create decompressor: %w", err)
		}
		l.decompressor = decompressor
	} else {
		// No compression - use buffered writer directly
		l.bufWriter = bufio.NewWriter(l.file)
		l.writer = l.bufWriter
	}

	return l, nil
}

// initializeFile handles the file opening and initialization logic for the log.
func (l *Log) initializeFile(info os.FileInfo, opts Options) error {
	if info.Size() == 0 {
		if err := l.writeNewHeader(opts); err != nil {
			return err
		}
		l.size = l.dataOffset

		// A recorded size other than a bare header means the file lost
		// records since it was last flushed.
		if opts.Size != SizeUnknown && opts.Size != l.dataOffset {
			return fmt.Errorf("%w: recorded size %d but log is empty", ErrCorrupt, opts.Size)
		}
		return nil
	}

	if err := l.readExistingHeader(); err != nil {
		return err
	}

	return l.recoverToSize(info.Size(), opts.Size)
}

func (l *Log) writeNewHeader(opts Options) error {
	hdrLen, err := writeLogHeader(l.file, logHeaderInfo{
		Compressed:       opts.Compress,
		CompressionLevel: opts.CompressionLevel,
	})
	if err != nil {
		return fmt.Errorf("failed to write log header: %w", err)
	}
	l.dataOffset = hdrLen
	l.compressed = opts.Compress
	return nil
}

func (l *Log) readExistingHeader() error {
	hdrInfo, err := readLogHeader(l.file)
	if err != nil {
		return fmt.Errorf("failed to read log header: %w", err)
	}
	l.dataOffset = hdrInfo.HeaderLen
	l.compressed = hdrInfo.Compressed
	if hdrInfo.Compressed {
		l.compressionLevel = hdrInfo.CompressionLevel
	}
	return nil
}

// recoverToSize reconciles the on-disk size with the size recorded at
// the last flush, dropping any torn tail past the recorded boundary.
func (l *Log) recoverToSize(fileSize, recorded int64) error {
	l.size = fileSize

	if recorded == SizeUnknown {
		return nil
	}

	switch {
	case recorded < l.dataOffset:
		return fmt.Errorf("%w: recorded size %d below header length", ErrCorrupt, recorded)
	case recorded > fileSize:
		return fmt.Errorf("%w: log shorter than recorded size %d", ErrCorrupt, recorded)
	case recorded < fileSize:
		if err := l.file.Truncate(recorded); err != nil {
			return fmt.Errorf("failed to truncate log to recorded size: %w", err)
		}
		l.size = recorded
	}

	return nil
}

// Append queues one record. It is not durable until Flush returns.
func (l *Log) Append(payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return ErrClosed
	}

	if err := writeFrame(l.writer, payload); err != nil {
		return err
	}
	l.unflushed = true

	return nil
}

// Flush makes all appended records durable and returns the byte size of
// the log file. The caller records that size and passes it back on the
// next open to recover to this exact flush boundary.
func (l *Log) Flush() (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return 0, ErrClosed
	}

	if !l.unflushed {
		return l.size, nil
	}

	if err := l.flushLocked(); err != nil {
		return 0, err
	}

	if err := l.file.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync log file: %w", err)
	}

	size, err := l.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to seek log end: %w", err)
	}
	l.size = size
	l.unflushed = false

	return size, nil
}

// Size returns the durable byte size as of the last flush.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Close flushes buffered records and closes the log. It is safe to call
// more than once. Records flushed only by Close are past the last
// recorded boundary, so they do not survive a reopen at that size.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	if err := l.bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}

	if l.compressed {
		if err := l.compressor.Close(); err != nil {
			return fmt.Errorf("failed to close compressor: %w", err)
		}
	}

	if l.decompressor != nil {
		l.decompressor.Close()
	}

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	l.file = nil

	return nil
}
