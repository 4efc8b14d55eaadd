package wal

import "time"

// Options configures a Log's durability and segmentation behavior.
type Options struct {
	// Dir is the directory holding wal.current, rotated wal.<lsn_range>
	// segments, and the wal.checkpoint sidecar.
	Dir string

	// ForceSync fsyncs the current segment after every append. When
	// false, only Commit and Checkpoint records are force-synced — other
	// records stay in the write buffer until the next Commit or
	// Checkpoint sync, a segment rotation, Sync, or Close.
	ForceSync bool

	// MaxFileSize triggers segment rotation once exceeded.
	MaxFileSize int64

	// BufferSize sizes the bufio.Writer in front of the segment file.
	BufferSize int
}

// DefaultOptions returns conservative settings suitable for tests and
// single-node development.
func DefaultOptions() Options {
	return Options{
		Dir:         "./data/wal",
		ForceSync:   true,
		MaxFileSize: 64 * 1024 * 1024,
		BufferSize:  64 * 1024,
	}
}

// fsyncGracePeriod is not referenced anywhere: the Log runs no
// background flusher, so with ForceSync false nothing syncs on a timer.
const fsyncGracePeriod = 200 * time.Millisecond
