package wal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Log is the append-only, segmented write-ahead log. A single mutex
// serializes every append, which is also what makes rotation atomic with
// respect to appenders: no record can straddle a segment boundary
// because nothing else can be writing while rotation happens.
type Log struct {
	mu sync.Mutex

	dir    string
	opts   Options
	logger zerolog.Logger

	file            *os.File
	writer          *bufio.Writer
	size            int64
	segmentStartLSN uint64

	nextLSN uint64
	closed  bool

	// poisoned is set once an append fails: an unrecoverable WAL
	// appender poisons the log until process restart, so every
	// subsequent Append fails fast instead of risking a silent gap.
	poisoned error
}

// Open recovers existing segments under dir (creating it if absent) and
// returns a Log ready to append starting at the recovered next LSN, plus
// the classification of every transaction seen in the recovered log.
func Open(dir string, opts Options, logger zerolog.Logger) (*Log, *RecoveryResult, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("wal: create dir: %w", err)
	}

	result, err := recoverSegments(dir)
	if err != nil {
		return nil, nil, err
	}

	l := &Log{
		dir:             dir,
		opts:            opts,
		logger:          logger,
		nextLSN:         result.NextLSN,
		segmentStartLSN: result.NextLSN,
	}

	if err := l.openCurrentForAppend(); err != nil {
		return nil, nil, err
	}

	return l, result, nil
}

func (l *Log) openCurrentForAppend() error {
	path := filepath.Join(l.dir, currentSegmentName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("wal: open current segment: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("wal: stat current segment: %w", err)
	}
	l.file = f
	l.writer = bufio.NewWriterSize(f, l.opts.BufferSize)
	l.size = info.Size()
	return nil
}

// Append writes one record and returns its assigned LSN. Commit and
// Checkpoint records, and any record when opts.ForceSync is set, are
// fsync'd before Append returns, so a committed transaction's records
// are durable before the caller sees the commit.
func (l *Log) Append(entryType EntryType, txnID string, payload []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.poisoned != nil {
		return 0, fmt.Errorf("wal: poisoned by a prior unrecoverable error: %w", l.poisoned)
	}

	lsn := l.nextLSN
	entry := &Entry{
		Header: Header{
			Magic:    Magic,
			Version:  Version,
			Type:     entryType,
			LSN:      lsn,
			TxnIDLen: uint16(len(txnID)),
		},
		TxnID:     txnID,
		OpPayload: payload,
	}
	if len(payload) > 0 {
		if p, err := DecodeOpPayload(payload); err == nil {
			if p.Before != nil {
				entry.Header.Flags |= FlagHasBefore
			}
			if p.After != nil {
				entry.Header.Flags |= FlagHasAfter
			}
		}
	}

	n, err := entry.WriteTo(l.writer)
	if err != nil {
		l.poisoned = err
		l.logger.Error().Err(err).Msg("wal append failed, log poisoned")
		return 0, err
	}
	l.size += n
	l.nextLSN++

	mustSync := l.opts.ForceSync || entryType == EntryCommit || entryType == EntryCheckpoint
	if mustSync {
		if err := l.syncLocked(); err != nil {
			l.poisoned = err
			return 0, err
		}
	}

	if l.size >= l.opts.MaxFileSize {
		if err := l.rotateLocked(); err != nil {
			l.poisoned = err
			return 0, err
		}
	}

	return lsn, nil
}

func (l *Log) syncLocked() error {
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("wal: fsync: %w", err)
	}
	return nil
}

// Sync flushes and fsyncs the current segment unconditionally.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.syncLocked()
}

func (l *Log) rotateLocked() error {
	if err := l.syncLocked(); err != nil {
		return err
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("wal: close rotated segment: %w", err)
	}

	endLSN := l.nextLSN - 1
	rotatedPath := filepath.Join(l.dir, rotatedSegmentName(l.segmentStartLSN, endLSN))
	currentPath := filepath.Join(l.dir, currentSegmentName)
	if err := os.Rename(currentPath, rotatedPath); err != nil {
		return fmt.Errorf("wal: rotate segment: %w", err)
	}

	l.segmentStartLSN = l.nextLSN
	l.logger.Info().Str("segment", rotatedPath).Msg("wal segment rotated")
	return l.openCurrentForAppend()
}

// Close flushes, fsyncs, and closes the current segment.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.syncLocked(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// NextLSN returns the LSN that will be assigned to the next appended
// record.
func (l *Log) NextLSN() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextLSN
}
