// Package packetio turns the Channel's byte stream into typed TDS reads and
// writes: packet framing, a mark/reset-capable response chain, and the
// numeric/time/identifier encodings the wire format requires. It replaces
// the teacher's tds.Conn.ReadPacket/WritePacket pair (which buffers a whole
// message per call) with a reader that can hold a live reference into the
// middle of an in-flight response while a caller decides whether to rewind.
package packetio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tdsgo/tds/internal/tds"
)

// ByteChannel is the minimal surface packetio needs from the Channel layer.
type ByteChannel interface {
	io.Reader
	io.Writer
	SetLastSPID(uint16)
}

// Writer fragments a logical message into packet_size-bounded TDS packets,
// mirroring the teacher's Conn.WritePacket fragmentation loop but driven
// through an explicit start/write*/end sequence instead of one bulk call,
// so callers can stream large parameter payloads without buffering them
// whole.
type Writer struct {
	ch         ByteChannel
	packetSize int
	spid       uint16
	seq        uint8

	pktType tds.PacketType
	buf     []byte
	sent    uint64
}

// NewWriter creates a Writer bound to ch with the given negotiated packet
// size (must be >= packetio... see tds.MinPacketSize) and SPID.
func NewWriter(ch ByteChannel, packetSize int, spid uint16) *Writer {
	return &Writer{ch: ch, packetSize: packetSize, spid: spid, seq: 1}
}

// SetPacketSize updates the negotiated packet size (called after PRELOGIN
// / ENVCHANGE packet-size negotiation completes).
func (w *Writer) SetPacketSize(size int) { w.packetSize = size }

// StartMessage begins a new logical message of the given packet type.
func (w *Writer) StartMessage(pktType tds.PacketType) {
	w.pktType = pktType
	w.buf = w.buf[:0]
}

func (w *Writer) WriteU8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteUnicodeString(s string) error {
	enc, err := tds.EncodeUCS2(s)
	if err != nil {
		return err
	}
	w.buf = append(w.buf, enc...)
	return nil
}

// EndMessage flushes the buffered payload across one or more packets, the
// last one carrying StatusEOM, and resets the sequence counter for the next
// message (spec.md S4.2: Packet Writer "end_message() -> flushes the final
// packet with EOM bit set").
func (w *Writer) EndMessage() error {
	maxPayload := w.packetSize - tds.HeaderSize
	if maxPayload <= 0 {
		return fmt.Errorf("packetio: packet size %d too small for header", w.packetSize)
	}
	remaining := w.buf
	for {
		isLast := len(remaining) <= maxPayload
		var chunk []byte
		if isLast {
			chunk = remaining
		} else {
			chunk = remaining[:maxPayload]
			remaining = remaining[maxPayload:]
		}

		status := tds.StatusNormal
		if isLast {
			status = tds.StatusEOM
		}
		hdr := tds.Header{
			Type:   w.pktType,
			Status: status,
			Length: uint16(tds.HeaderSize + len(chunk)),
			SPID:   w.spid,
			Seq:    w.seq,
			Window: 0,
		}
		if err := hdr.Write(w.ch); err != nil {
			return fmt.Errorf("packetio: writing header: %w", err)
		}
		if len(chunk) > 0 {
			if _, err := w.ch.Write(chunk); err != nil {
				return fmt.Errorf("packetio: writing payload: %w", err)
			}
		}

		w.seq++
		if w.seq == 0 {
			w.seq = 1
		}
		if isLast {
			break
		}
	}
	w.sent++
	w.buf = w.buf[:0]
	w.seq = 1
	return nil
}

// SentMessages returns the count of completed EndMessage calls.
func (w *Writer) SentMessages() uint64 { return w.sent }
