package wal

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint is the sidecar record: the LSN recovery can safely resume
// from, the transactions still active at the moment it was taken, and
// when it was written.
type Checkpoint struct {
	LSN        uint64
	ActiveTxns []string
	CreatedAt  time.Time
}

// WriteCheckpoint serializes cp and atomically replaces wal.checkpoint
// (write to a temp file, then rename) so a crash mid-write never leaves
// a half-written sidecar behind, matching the checkpoint manager's
// write-temp-then-rename discipline. It also appends an EntryCheckpoint
// record to the log itself, always fsync'd.
func (l *Log) WriteCheckpoint(activeTxns []string) (*Checkpoint, error) {
	l.mu.Lock()
	lsn := l.nextLSN
	l.mu.Unlock()

	cp := &Checkpoint{
		LSN:        lsn,
		ActiveTxns: activeTxns,
		CreatedAt:  time.Now().UTC(),
	}

	if _, err := l.Append(EntryCheckpoint, "", nil); err != nil {
		return nil, fmt.Errorf("wal: append checkpoint record: %w", err)
	}

	if err := writeCheckpointFile(l.dir, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func writeCheckpointFile(dir string, cp *Checkpoint) error {
	data := encodeCheckpoint(cp)
	path := filepath.Join(dir, checkpointFileName)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("wal: write checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("wal: rename checkpoint file: %w", err)
	}
	return nil
}

// ReadCheckpoint loads the sidecar file, if present.
func ReadCheckpoint(dir string) (*Checkpoint, error) {
	path := filepath.Join(dir, checkpointFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return decodeCheckpoint(data)
}

func encodeCheckpoint(cp *Checkpoint) []byte {
	buf := make([]byte, 8, 64)
	binary.LittleEndian.PutUint64(buf[0:8], cp.LSN)

	createdAt, _ := cp.CreatedAt.MarshalBinary()
	buf = appendChunk(buf, createdAt)

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(cp.ActiveTxns)))
	buf = append(buf, countBuf[:]...)
	for _, txn := range cp.ActiveTxns {
		buf = appendChunk(buf, []byte(txn))
	}
	return buf
}

func appendChunk(buf []byte, chunk []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(chunk)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, chunk...)
}

func decodeCheckpoint(data []byte) (*Checkpoint, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("wal: checkpoint file truncated")
	}
	cp := &Checkpoint{}
	cp.LSN = binary.LittleEndian.Uint64(data[0:8])
	pos := 8

	createdAt, next, err := readChunk(data, pos)
	if err != nil {
		return nil, err
	}
	pos = next
	if err := cp.CreatedAt.UnmarshalBinary(createdAt); err != nil {
		return nil, fmt.Errorf("wal: decode checkpoint timestamp: %w", err)
	}

	if pos+4 > len(data) {
		return nil, fmt.Errorf("wal: checkpoint file truncated (txn count)")
	}
	count := binary.LittleEndian.Uint32(data[pos : pos+4])
	pos += 4

	cp.ActiveTxns = make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		chunk, next, err := readChunk(data, pos)
		if err != nil {
			return nil, err
		}
		pos = next
		cp.ActiveTxns = append(cp.ActiveTxns, string(chunk))
	}
	return cp, nil
}

func readChunk(data []byte, pos int) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, 0, fmt.Errorf("wal: checkpoint file truncated (chunk length)")
	}
	n := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if pos+n > len(data) {
		return nil, 0, fmt.Errorf("wal: checkpoint file truncated (chunk body)")
	}
	return data[pos : pos+n], pos + n, nil
}
