// Package wal implements the write-ahead log: fixed-header records,
// segment rotation, recovery, and checkpoints.
package wal

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bobboyms/docengine/pkg/document"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// HeaderSize is the fixed portion of a record, before the variable-length
// txn_id and op_payload: magic(4) + version(2) + type(1) + flags(1) +
// lsn(8) + txn_id_len(2) = 18 bytes.
const HeaderSize = 18

// TrailerSize is the trailing crc32c field.
const TrailerSize = 4

const (
	Magic   uint32 = 0xD0C3_9A61
	Version uint16 = 1
)

// EntryType names the WAL operation kind.
type EntryType uint8

const (
	EntryBegin EntryType = iota + 1
	EntryCommit
	EntryRollback
	EntryInsert
	EntryUpdate
	EntryDelete
	EntryCheckpoint
)

func (t EntryType) String() string {
	switch t {
	case EntryBegin:
		return "Begin"
	case EntryCommit:
		return "Commit"
	case EntryRollback:
		return "Rollback"
	case EntryInsert:
		return "Insert"
	case EntryUpdate:
		return "Update"
	case EntryDelete:
		return "Delete"
	case EntryCheckpoint:
		return "Checkpoint"
	default:
		return "Unknown"
	}
}

// Flag bits describe which optional images op_payload carries.
type Flag uint8

const (
	FlagHasBefore Flag = 1 << 0
	FlagHasAfter  Flag = 1 << 1
)

// Header is the 18-byte fixed record header.
type Header struct {
	Magic    uint32
	Version  uint16
	Type     EntryType
	Flags    Flag
	LSN      uint64
	TxnIDLen uint16
}

func (h *Header) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	buf[6] = byte(h.Type)
	buf[7] = byte(h.Flags)
	binary.LittleEndian.PutUint64(buf[8:16], h.LSN)
	binary.LittleEndian.PutUint16(buf[16:18], h.TxnIDLen)
}

func (h *Header) decode(buf []byte) {
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	h.Type = EntryType(buf[6])
	h.Flags = Flag(buf[7])
	h.LSN = binary.LittleEndian.Uint64(buf[8:16])
	h.TxnIDLen = binary.LittleEndian.Uint16(buf[16:18])
}

// Entry is one fully decoded WAL record.
type Entry struct {
	Header     Header
	TxnID      string
	OpPayload  []byte // raw bson-encoded OpPayload, empty for Begin/Commit/Rollback
	CRC32      uint32
}

// OpPayload is the canonical payload of a data-mutating record (Insert,
// Update, Delete). Collection and DocID are always present; Before/After
// carry the document's pre/post image, encoded with pkg/document's
// canonical BSON codec, so recovery and rollback can replay or undo the
// mutation without re-reading the live store.
type OpPayload struct {
	Collection string
	DocID      string
	Before     []byte // canonical document BSON, nil if absent
	After      []byte // canonical document BSON, nil if absent
}

// EncodeOpPayload renders an OpPayload to BSON bytes for embedding in a
// record.
func EncodeOpPayload(p OpPayload) ([]byte, error) {
	doc := bson.D{
		{Key: "collection", Value: p.Collection},
		{Key: "doc_id", Value: p.DocID},
	}
	if p.Before != nil {
		doc = append(doc, bson.E{Key: "before", Value: p.Before})
	}
	if p.After != nil {
		doc = append(doc, bson.E{Key: "after", Value: p.After})
	}
	return bson.Marshal(doc)
}

// DecodeOpPayload is the inverse of EncodeOpPayload.
func DecodeOpPayload(raw []byte) (OpPayload, error) {
	var root bson.D
	if err := bson.Unmarshal(raw, &root); err != nil {
		return OpPayload{}, fmt.Errorf("wal: decode op payload: %w", err)
	}
	var p OpPayload
	for _, e := range root {
		switch e.Key {
		case "collection":
			p.Collection, _ = e.Value.(string)
		case "doc_id":
			p.DocID, _ = e.Value.(string)
		case "before":
			p.Before, _ = e.Value.([]byte)
		case "after":
			p.After, _ = e.Value.([]byte)
		}
	}
	return p, nil
}

// BeforeDocument decodes the before-image, if present.
func (p OpPayload) BeforeDocument() (*document.Document, error) {
	if p.Before == nil {
		return nil, nil
	}
	return document.UnmarshalDocumentBSON(p.Before)
}

// AfterDocument decodes the after-image, if present.
func (p OpPayload) AfterDocument() (*document.Document, error) {
	if p.After == nil {
		return nil, nil
	}
	return document.UnmarshalDocumentBSON(p.After)
}

// WriteTo serializes header + txn_id + op_payload_len + op_payload +
// crc32c to w, in that order, per the record format.
func (e *Entry) WriteTo(w io.Writer) (int64, error) {
	var headerBuf [HeaderSize]byte
	e.Header.encode(headerBuf[:])

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.OpPayload)))

	crc := checksumBody(headerBuf[:], []byte(e.TxnID), lenBuf[:], e.OpPayload)
	e.CRC32 = crc
	var crcBuf [TrailerSize]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc)

	var total int64
	for _, chunk := range [][]byte{headerBuf[:], []byte(e.TxnID), lenBuf[:], e.OpPayload, crcBuf[:]} {
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func checksumBody(parts ...[]byte) uint32 {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	buf := make([]byte, 0, total)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return CalculateCRC32(buf)
}
