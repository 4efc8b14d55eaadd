package wal

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
)

var (
	ErrInvalidMagic       = errors.New("wal: invalid magic number")
	ErrUnsupportedVersion = errors.New("wal: unsupported record version")
	ErrChecksumMismatch   = errors.New("wal: checksum mismatch")
	ErrPayloadTooLarge    = errors.New("wal: payload exceeds sanity limit")
)

// maxPayloadLen guards against runaway allocation when reading a
// corrupted length field.
const maxPayloadLen = 1 << 30 // 1GB

// Reader reads records sequentially from one segment file.
type Reader struct {
	file *os.File
}

// NewReader opens path for sequential record reads.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f}, nil
}

// ReadEntry reads the next record, or io.EOF when the file is exhausted
// cleanly at a record boundary. Any other error — bad magic, bad
// version, truncated read, checksum mismatch — signals a crash tail: the
// caller should treat everything from this point on as not durably
// committed and stop reading this segment.
func (r *Reader) ReadEntry() (*Entry, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r.file, headerBuf); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, io.ErrUnexpectedEOF
	}

	var header Header
	header.decode(headerBuf)

	if header.Magic != Magic {
		return nil, ErrInvalidMagic
	}
	if header.Version != Version {
		return nil, ErrUnsupportedVersion
	}

	txnID := make([]byte, header.TxnIDLen)
	if _, err := io.ReadFull(r.file, txnID); err != nil {
		return nil, io.ErrUnexpectedEOF
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r.file, lenBuf[:]); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	payloadLen := binary.LittleEndian.Uint32(lenBuf[:])
	if payloadLen > maxPayloadLen {
		return nil, ErrPayloadTooLarge
	}

	entry := AcquireEntry()
	entry.Header = header
	entry.TxnID = string(txnID)
	if uint32(cap(entry.OpPayload)) < payloadLen {
		entry.OpPayload = make([]byte, payloadLen)
	} else {
		entry.OpPayload = entry.OpPayload[:payloadLen]
	}
	if payloadLen > 0 {
		if _, err := io.ReadFull(r.file, entry.OpPayload); err != nil {
			ReleaseEntry(entry)
			return nil, io.ErrUnexpectedEOF
		}
	}

	var crcBuf [TrailerSize]byte
	if _, err := io.ReadFull(r.file, crcBuf[:]); err != nil {
		ReleaseEntry(entry)
		return nil, io.ErrUnexpectedEOF
	}
	crc := binary.LittleEndian.Uint32(crcBuf[:])

	expected := checksumBody(headerBuf, txnID, lenBuf[:], entry.OpPayload)
	if expected != crc {
		ReleaseEntry(entry)
		return nil, ErrChecksumMismatch
	}
	entry.CRC32 = crc

	return entry, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
