package wal

import "sync"

// entryPool recycles Entry structs across reads to keep WAL recovery off
// the allocator's critical path on large logs.
var entryPool = sync.Pool{
	New: func() interface{} {
		return &Entry{OpPayload: make([]byte, 0, 256)}
	},
}

// AcquireEntry takes an Entry from the pool.
func AcquireEntry() *Entry {
	return entryPool.Get().(*Entry)
}

// ReleaseEntry returns an Entry to the pool after zeroing its header and
// truncating (not discarding) its payload buffer.
func ReleaseEntry(e *Entry) {
	e.Header = Header{}
	e.TxnID = ""
	e.OpPayload = e.OpPayload[:0]
	e.CRC32 = 0
	entryPool.Put(e)
}
