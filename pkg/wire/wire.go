// Package wire implements the length-framed binary protocol clients
// speak over a connection: a fixed 16-byte header, a JSON payload, and a
// trailing checksum. Grounded on pkg/wal's record framing (fixed
// header + variable payload + crc32c trailer, little-endian
// binary.LittleEndian field packing) and pkg/heap/heap.go's record
// magic/checksum discipline, adapted from an on-disk record format to
// an on-the-wire one.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/bobboyms/docengine/internal/engineerr"
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// checksum computes the crc32c checksum used to validate a frame,
// mirroring pkg/wal's own record checksum so both the on-disk and
// on-the-wire formats detect corruption the same way, without pkg/wire
// depending on pkg/wal.
func checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// HeaderSize is the fixed 16-byte header: magic(4) + version(2) +
// type(1) + flags(1) + payload_len(4) + reserved(4).
const HeaderSize = 16

// ChecksumSize is the trailing crc32c field appended after the payload.
const ChecksumSize = 4

const (
	Magic   uint32 = 0x444F_4357 // "DOCW"
	Version uint16 = 1
)

// MessageType names one frame kind.
type MessageType uint8

const (
	TypeHandshake MessageType = iota + 1
	TypeAuthentication
	TypeCommand
	TypeResponse
	TypeError
	TypePing
	TypePong
	TypeTransaction
	TypeBulkOperation
	TypeNotification
)

func (t MessageType) String() string {
	switch t {
	case TypeHandshake:
		return "Handshake"
	case TypeAuthentication:
		return "Authentication"
	case TypeCommand:
		return "Command"
	case TypeResponse:
		return "Response"
	case TypeError:
		return "Error"
	case TypePing:
		return "Ping"
	case TypePong:
		return "Pong"
	case TypeTransaction:
		return "Transaction"
	case TypeBulkOperation:
		return "BulkOperation"
	case TypeNotification:
		return "Notification"
	default:
		return "Unknown"
	}
}

// Flag bits carried in the header's single flags byte.
type Flag uint8

const (
	// FlagHandshakeOK marks the server's reply to a client Handshake.
	FlagHandshakeOK Flag = 1 << 0
)

// Header is the fixed 16-byte frame header.
type Header struct {
	Magic      uint32
	Version    uint16
	Type       MessageType
	Flags      Flag
	PayloadLen int32
	Reserved   uint32
}

func (h *Header) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	buf[6] = byte(h.Type)
	buf[7] = byte(h.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.PayloadLen))
	binary.LittleEndian.PutUint32(buf[12:16], h.Reserved)
}

func (h *Header) decode(buf []byte) {
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	h.Type = MessageType(buf[6])
	h.Flags = Flag(buf[7])
	h.PayloadLen = int32(binary.LittleEndian.Uint32(buf[8:12]))
	h.Reserved = binary.LittleEndian.Uint32(buf[12:16])
}

// Message is one fully decoded frame: a header plus its raw JSON
// payload bytes.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage builds a Message by marshaling v as the JSON payload.
func NewMessage(typ MessageType, v any) (*Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal payload: %w", err)
	}
	return &Message{
		Header: Header{
			Magic:      Magic,
			Version:    Version,
			Type:       typ,
			PayloadLen: int32(len(payload)),
		},
		Payload: payload,
	}, nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// WriteTo serializes header + payload + crc32c checksum to w.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	m.Header.PayloadLen = int32(len(m.Payload))
	var headerBuf [HeaderSize]byte
	m.Header.encode(headerBuf[:])

	crc := checksum(append(append([]byte{}, headerBuf[:]...), m.Payload...))
	var crcBuf [ChecksumSize]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc)

	var total int64
	for _, chunk := range [][]byte{headerBuf[:], m.Payload, crcBuf[:]} {
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// MaxPayloadSize is the default cap ReadMessage enforces when the
// caller passes 0 for maxPayload.
const MaxPayloadSize = 16 << 20

// ReadMessage reads one frame from r: a fixed header, its payload, and
// the trailing checksum, validating magic, version, payload_len bounds,
// and the checksum itself. maxPayload of 0 uses MaxPayloadSize.
func ReadMessage(r io.Reader, maxPayload int32) (*Message, error) {
	if maxPayload <= 0 {
		maxPayload = MaxPayloadSize
	}

	var headerBuf [HeaderSize]byte
	if _, err := io.ReadFull(r, headerBuf[:]); err != nil {
		return nil, protocolIOError("read header", err)
	}

	var h Header
	h.decode(headerBuf[:])

	if h.Magic != Magic {
		return nil, &engineerr.ProtocolError{Reason: engineerr.ProtocolMalformedHeader}
	}
	if h.Version != Version {
		return nil, &engineerr.ProtocolError{Reason: engineerr.ProtocolBadVersion}
	}
	if h.PayloadLen < 0 || h.PayloadLen > maxPayload {
		return nil, &engineerr.ProtocolError{Reason: engineerr.ProtocolPayloadTooLarge}
	}

	payload := make([]byte, h.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, protocolIOError("read payload", err)
	}

	var crcBuf [ChecksumSize]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		return nil, protocolIOError("read checksum", err)
	}
	wantCRC := binary.LittleEndian.Uint32(crcBuf[:])
	gotCRC := checksum(append(append([]byte{}, headerBuf[:]...), payload...))
	if gotCRC != wantCRC {
		return nil, &engineerr.ProtocolError{Reason: engineerr.ProtocolBadChecksum}
	}

	return &Message{Header: h, Payload: payload}, nil
}

func protocolIOError(op string, err error) error {
	if err == io.EOF {
		return err
	}
	return &engineerr.IOError{Op: op, Err: err}
}

// HandshakePayload is the body of the opening client Handshake message.
type HandshakePayload struct {
	ClientVersion string `json:"client_version"`
}

// HandshakeOKPayload is the body of the server's reply.
type HandshakeOKPayload struct {
	ServerVersion string `json:"server_version"`
}

// WriteHandshake writes a client Handshake frame.
func WriteHandshake(w io.Writer, clientVersion string) error {
	msg, err := NewMessage(TypeHandshake, HandshakePayload{ClientVersion: clientVersion})
	if err != nil {
		return err
	}
	_, err = msg.WriteTo(w)
	return err
}

// ReadHandshake reads and validates the opening client Handshake frame.
func ReadHandshake(r io.Reader, maxPayload int32) (HandshakePayload, error) {
	msg, err := ReadMessage(r, maxPayload)
	if err != nil {
		return HandshakePayload{}, err
	}
	if msg.Header.Type != TypeHandshake {
		return HandshakePayload{}, &engineerr.ProtocolError{Reason: engineerr.ProtocolMalformedHeader}
	}
	var p HandshakePayload
	if err := msg.Decode(&p); err != nil {
		return HandshakePayload{}, &engineerr.ProtocolError{Reason: engineerr.ProtocolMalformedHeader}
	}
	return p, nil
}

// WriteHandshakeOK writes the server's Handshake reply, with
// FlagHandshakeOK set.
func WriteHandshakeOK(w io.Writer, serverVersion string) error {
	msg, err := NewMessage(TypeHandshake, HandshakeOKPayload{ServerVersion: serverVersion})
	if err != nil {
		return err
	}
	msg.Header.Flags |= FlagHandshakeOK
	_, err = msg.WriteTo(w)
	return err
}
