package wal

import (
	"bufio"
	"fmt"
	"io"
)

// Replay calls the provided callback for each flushed record in append
// order. The payload slice is only valid for the duration of the call.
// Buffered appends are not visible; flush before replaying.
func (l *Log) Replay(callback func(payload []byte) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return ErrClosed
	}
	if l.unflushed {
		return ErrUnflushed
	}

	// Seek to the start of the record stream
	if _, err := l.file.Seek(l.dataOffset, 0); err != nil {
		return err
	}

	var reader io.Reader
	if l.compressed {
		// Reset decompressor for the file
		if err := l.decompressor.Reset(l.file); err != nil {
			return fmt.Errorf("failed to reset decompressor: %w", err)
		}
		reader = l.decompressor
	} else {
		reader = bufio.NewReader(l.file)
	}

	count := 0
	for {
		payload, err := readFrame(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			// Corrupted record - the file did not end on the recorded
			// flush boundary.
			return fmt.Errorf("log corrupted at record %d: %w", count, err)
		}

		if err := callback(payload); err != nil {
			return fmt.Errorf("failed to replay record %d: %w", count, err)
		}
		count++
	}

	// Seek back to end for appending
	if _, err := l.file.Seek(0, 2); err != nil {
		return err
	}

	return nil
}

// Len returns the number of flushed records. It rescans the whole log,
// so it is mainly useful in tests.
func (l *Log) Len() (int, error) {
	count := 0
	if err := l.Replay(func([]byte) error {
		count++
		return nil
	}); err != nil {
		return 0, err
	}
	return count, nil
}
