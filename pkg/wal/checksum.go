package wal

import "hash/crc32"

// castagnoliTable backs crc32c, the SSE4.2-accelerated variant most
// modern WAL implementations use over the classic IEEE polynomial.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CalculateCRC32 computes the crc32c checksum of data.
func CalculateCRC32(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// ValidateCRC32 reports whether data's checksum matches expected.
func ValidateCRC32(data []byte, expected uint32) bool {
	return CalculateCRC32(data) == expected
}
