// Package tds holds the wire-level constants and small encode/decode helpers
// shared by every layer of the driver: packet types and status bits, TDS
// protocol versions, token identifiers, and the SQL-type enumeration. It
// mirrors the teacher repository's pkg/tds package (there written for the
// server side of the protocol); the constant tables are identical because
// the wire format is symmetric, but every piece of logic that assumed a
// server role (parsing LOGIN7, writing COLMETADATA/ROW) has been turned
// around to the client role this driver plays.
package tds

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PacketType identifies the type of TDS packet (spec.md S6).
type PacketType uint8

const (
	PacketSQLBatch      PacketType = 0x01
	PacketRPCRequest    PacketType = 0x03
	PacketReply         PacketType = 0x04
	PacketAttention     PacketType = 0x06
	PacketBulkLoad      PacketType = 0x07
	PacketFedAuthToken  PacketType = 0x08
	PacketTransMgrReq   PacketType = 0x0E
	PacketLogin7        PacketType = 0x10
	PacketSSPIMessage   PacketType = 0x11
	PacketPrelogin      PacketType = 0x12
)

func (p PacketType) String() string {
	switch p {
	case PacketSQLBatch:
		return "SQL_BATCH"
	case PacketRPCRequest:
		return "RPC_REQUEST"
	case PacketReply:
		return "REPLY"
	case PacketAttention:
		return "ATTENTION"
	case PacketBulkLoad:
		return "BULK_LOAD"
	case PacketFedAuthToken:
		return "FEDAUTH_TOKEN"
	case PacketTransMgrReq:
		return "TRANS_MGR_REQ"
	case PacketLogin7:
		return "LOGIN7"
	case PacketSSPIMessage:
		return "SSPI_MESSAGE"
	case PacketPrelogin:
		return "PRELOGIN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(p))
	}
}

// PacketStatus is the status byte of a TDS packet header.
type PacketStatus uint8

const (
	StatusNormal                  PacketStatus = 0x00
	StatusEOM                     PacketStatus = 0x01
	StatusIgnore                  PacketStatus = 0x02
	StatusResetConnection         PacketStatus = 0x08
	StatusResetConnectionSkipTran PacketStatus = 0x10
)

func (s PacketStatus) IsEOM() bool { return s&StatusEOM != 0 }

// HeaderSize is the size in bytes of a TDS packet header.
const HeaderSize = 8

// Negotiated packet-size bounds (spec.md S6).
const (
	MinPacketSize     = 512
	DefaultPacketSize = 8000
	MaxPacketSize     = 32767
	InitialPacketSize = 4096
)

// Header is the fixed 8-byte TDS packet header.
type Header struct {
	Type   PacketType
	Status PacketStatus
	Length uint16 // total length including header, big-endian on the wire
	SPID   uint16 // big-endian on the wire
	Seq    uint8
	Window uint8
}

// ReadHeader reads one 8-byte header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return Header{
		Type:   PacketType(buf[0]),
		Status: PacketStatus(buf[1]),
		Length: binary.BigEndian.Uint16(buf[2:4]),
		SPID:   binary.BigEndian.Uint16(buf[4:6]),
		Seq:    buf[6],
		Window: buf[7],
	}, nil
}

// Write serializes the header to w.
func (h Header) Write(w io.Writer) error {
	var buf [HeaderSize]byte
	buf[0] = byte(h.Type)
	buf[1] = byte(h.Status)
	binary.BigEndian.PutUint16(buf[2:4], h.Length)
	binary.BigEndian.PutUint16(buf[4:6], h.SPID)
	buf[6] = h.Seq
	buf[7] = h.Window
	_, err := w.Write(buf[:])
	return err
}

// PayloadLength returns the payload length implied by Length, or 0 if the
// header claims a length at or below HeaderSize.
func (h Header) PayloadLength() int {
	if h.Length <= HeaderSize {
		return 0
	}
	return int(h.Length) - HeaderSize
}
