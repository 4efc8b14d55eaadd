package wal

import (
	"io"
	"os"
)

// RecoveryResult classifies every transaction observed across the WAL's
// segments and gives the ordered record stream needed to replay them.
type RecoveryResult struct {
	CommittedTxns  map[string]struct{}
	AbortedTxns    map[string]struct{}
	IncompleteTxns map[string]struct{}
	NextLSN        uint64
	CheckpointLSN  uint64 // 0 if no checkpoint was found
	Records        []*Entry
}

// recoverSegments scans dir's segments in order (oldest rotated segment first,
// then wal.current), stopping at the first invalid or truncated record —
// that point is a crash tail, not an error. Trailing suffix avoids
// colliding with the exported Log.recover name users would expect on a
// type; this is a package-level helper invoked only from Open.
func recoverSegments(dir string) (*RecoveryResult, error) {
	result := &RecoveryResult{
		CommittedTxns:  map[string]struct{}{},
		AbortedTxns:    map[string]struct{}{},
		IncompleteTxns: map[string]struct{}{},
	}
	seenBegins := map[string]struct{}{}

	segments, err := listRotatedSegments(dir)
	if err != nil {
		return nil, err
	}
	segments = append(segments, currentSegmentName)

	var nextLSN uint64
	seenAny := false

scanLoop:
	for _, name := range segments {
		path := segmentPath(dir, name)
		reader, err := NewReader(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		for {
			entry, err := reader.ReadEntry()
			if err == io.EOF {
				break
			}
			if err != nil {
				// Crash tail: the rest of this segment (and thus the
				// whole log, since segments are append-only and ordered)
				// is not durably complete.
				reader.Close()
				break scanLoop
			}

			seenAny = true
			if entry.Header.LSN+1 > nextLSN {
				nextLSN = entry.Header.LSN + 1
			}

			switch entry.Header.Type {
			case EntryBegin:
				seenBegins[entry.TxnID] = struct{}{}
			case EntryCommit:
				result.CommittedTxns[entry.TxnID] = struct{}{}
			case EntryRollback:
				result.AbortedTxns[entry.TxnID] = struct{}{}
			case EntryCheckpoint:
				result.CheckpointLSN = entry.Header.LSN
			}

			result.Records = append(result.Records, entry)
		}
		reader.Close()
	}

	for txn := range seenBegins {
		_, committed := result.CommittedTxns[txn]
		_, aborted := result.AbortedTxns[txn]
		if !committed && !aborted {
			result.IncompleteTxns[txn] = struct{}{}
		}
	}

	if seenAny {
		result.NextLSN = nextLSN
	}
	return result, nil
}
