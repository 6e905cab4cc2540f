package wal

import "errors"

// SizeUnknown makes New accept the log file at whatever size it has on
// disk instead of truncating it to a recorded flush boundary.
const SizeUnknown int64 = -1

var (
	// ErrClosed is returned when operating on a closed log.
	ErrClosed = errors.New("log is closed")

	// ErrCorrupt is returned when the log file does not decode cleanly.
	ErrCorrupt = errors.New("log is corrupt")

	// ErrUnflushed is returned when replaying a log that still has
	// buffered appends. Replay only sees flushed records.
	ErrUnflushed = errors.New("log has unflushed appends")
)

// Options contains configuration for the log.
type Options struct {
	// Path is the log file location. Missing parent directories are
	// created on open. Required.
	Path string

	// Size is the durable byte size recorded at the last flush, as
	// returned by Flush. Anything past it is a torn tail from a crash
	// between flushes and is truncated away on open. SizeUnknown
	// accepts the file as found.
	Size int64

	// Compress enables zstd compression of the record stream
	// (2-3x smaller, slightly slower writes).
	Compress bool

	// CompressionLevel sets the zstd compression level (1-22).
	// Default (3) provides good balance. Higher = better compression but slower.
	CompressionLevel int
}

// DefaultOptions contains the default log options.
var DefaultOptions = Options{
	Size:             SizeUnknown,
	Compress:         false,
	CompressionLevel: 3, // zstd default level
}
