package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	currentSegmentName = "wal.current"
	checkpointFileName = "wal.checkpoint"
)

// rotatedSegmentName names a closed segment wal.<start_lsn>-<end_lsn>.
func rotatedSegmentName(startLSN, endLSN uint64) string {
	return fmt.Sprintf("wal.%d-%d", startLSN, endLSN)
}

// listRotatedSegments returns the rotated segment file names under dir,
// sorted by their embedded start LSN ascending (oldest first).
func listRotatedSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type segInfo struct {
		name  string
		start uint64
	}
	var segs []segInfo
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "wal.") || name == currentSegmentName || name == checkpointFileName {
			continue
		}
		rangePart := strings.TrimPrefix(name, "wal.")
		parts := strings.SplitN(rangePart, "-", 2)
		if len(parts) != 2 {
			continue
		}
		start, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			continue
		}
		segs = append(segs, segInfo{name: name, start: start})
	}

	sort.Slice(segs, func(i, j int) bool { return segs[i].start < segs[j].start })

	names := make([]string, len(segs))
	for i, s := range segs {
		names[i] = s.name
	}
	return names, nil
}

func segmentPath(dir, name string) string {
	return filepath.Join(dir, name)
}
