package packetio

import (
	"encoding/binary"
	"io"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/tdsgo/tds/internal/errs"
	"github.com/tdsgo/tds/internal/tds"
)

// slot is one received packet's payload, retained in the arena for as long
// as it is reachable from the current cursor or a live mark.
type slot struct {
	payload []byte
	eom     bool
}

// Mark is an opaque (packet, offset) cursor position. Taking a Mark
// disables eager reclamation of the packet chain until Stream is called
// (spec.md S4.2, "Packet chain" design note).
type Mark struct {
	idx int // absolute slot index
	off int
}

// Reader turns a byte channel into the typed TDS reads the token parser,
// column-encryption engine, and connection director all build on. It owns
// an arena-backed singly-linked packet chain: slots accumulate as packets
// arrive and are pruned from the front once nothing -- neither the read
// cursor nor a live mark -- still points at them. This is the structural
// replacement for the teacher's tds.Conn.ReadPacketWithStatus, which
// buffers an entire logical message before returning; that shape cannot
// support mark/reset over a multi-packet response without buffering
// everything all the time.
type Reader struct {
	ch         ByteChannel
	packetSize int

	slots     []slot
	frontIdx  int // absolute index of slots[0]
	curIdx    int // absolute index of the slot currently being read
	curOff    int
	streaming bool
	msgEnded  bool // true once the EOM-flagged slot of the current message has been fully consumed

	recvCount uint64
}

// NewReader creates a Reader bound to ch with the given negotiated packet
// size.
func NewReader(ch ByteChannel, packetSize int) *Reader {
	return &Reader{ch: ch, packetSize: packetSize, streaming: true}
}

// SetPacketSize updates the negotiated packet size (ENVCHANGE packet-size
// sub-type).
func (r *Reader) SetPacketSize(size int) { r.packetSize = size }

// RecvMessages returns the count of EOM-flagged packets seen so far.
func (r *Reader) RecvMessages() uint64 { return r.recvCount }

func (r *Reader) curSlot() *slot {
	i := r.curIdx - r.frontIdx
	if i < 0 || i >= len(r.slots) {
		return nil
	}
	return &r.slots[i]
}

// fetchNextPacket blocks reading one packet from the channel, validates its
// length, and appends it to the arena.
func (r *Reader) fetchNextPacket() error {
	hdr, err := tds.ReadHeader(r.ch)
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return errs.Wrap(err, errs.KindNetworkIO, "packetio.fetchNextPacket", "reading packet header")
	}
	if int(hdr.Length) < tds.HeaderSize || int(hdr.Length) > r.packetSize {
		return errs.Newf(errs.KindInvalidProtocol, "packetio.fetchNextPacket", "packet length %d out of bounds [%d,%d]", hdr.Length, tds.HeaderSize, r.packetSize)
	}
	r.ch.SetLastSPID(hdr.SPID)

	payloadLen := hdr.PayloadLength()
	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r.ch, payload); err != nil {
			return errs.Wrap(err, errs.KindTruncatedResponse, "packetio.fetchNextPacket", "reading packet payload")
		}
	}
	r.slots = append(r.slots, slot{payload: payload, eom: hdr.Status.IsEOM()})
	if hdr.Status.IsEOM() {
		r.recvCount++
	}
	return nil
}

// ensureByte guarantees at least one unread payload byte is buffered at the
// cursor, advancing across packet boundaries (and reading from the channel)
// as needed. Returns io.EOF once the current logical message's EOM-flagged
// packet has been fully consumed; BeginMessage resets this for the next
// response.
func (r *Reader) ensureByte() error {
	if r.msgEnded {
		return io.EOF
	}
	for {
		s := r.curSlot()
		if s != nil && r.curOff < len(s.payload) {
			return nil
		}
		if s != nil {
			wasEOM := s.eom
			r.advanceSlot()
			if wasEOM {
				r.msgEnded = true
				return io.EOF
			}
			continue
		}
		if err := r.fetchNextPacket(); err != nil {
			return err
		}
	}
}

// BeginMessage clears the end-of-message state so the next PeekTokenType /
// read call resumes pulling packets for a new logical response. Must be
// called once per command before reading its response.
func (r *Reader) BeginMessage() { r.msgEnded = false }

// advanceSlot moves the cursor to the next slot and, when streaming mode is
// active (no live marks), prunes everything behind it.
func (r *Reader) advanceSlot() {
	r.curIdx++
	r.curOff = 0
	if r.streaming {
		r.prune()
	}
}

// prune drops arena slots strictly before the current cursor.
func (r *Reader) prune() {
	drop := r.curIdx - r.frontIdx
	if drop <= 0 {
		return
	}
	if drop > len(r.slots) {
		drop = len(r.slots)
	}
	r.slots = append([]slot(nil), r.slots[drop:]...)
	r.frontIdx += drop
}

// Mark captures the current cursor position and disables reclamation of
// the chain from here forward.
func (r *Reader) Mark() Mark {
	r.streaming = false
	return Mark{idx: r.curIdx, off: r.curOff}
}

// Reset rewinds the cursor to a previously captured Mark. The mark's
// packet must still be retained, which Mark() guarantees by disabling
// streaming until Stream() is called.
func (r *Reader) Reset(m Mark) error {
	if m.idx < r.frontIdx {
		return errs.New(errs.KindInternal, "packetio.Reset", "mark refers to a pruned packet")
	}
	r.curIdx = m.idx
	r.curOff = m.off
	return nil
}

// Stream re-enables eager reclamation and prunes everything behind the
// current cursor, releasing all outstanding marks.
func (r *Reader) Stream() {
	r.streaming = true
	r.prune()
}

// Available returns the number of payload bytes buffered across the whole
// retained chain without blocking on the channel.
func (r *Reader) Available() int {
	n := 0
	for i := r.curIdx - r.frontIdx; i < len(r.slots); i++ {
		if i == r.curIdx-r.frontIdx {
			n += len(r.slots[i].payload) - r.curOff
		} else {
			n += len(r.slots[i].payload)
		}
	}
	return n
}

// AvailableCurrentPacket returns the unread byte count in the slot the
// cursor currently sits in, without blocking.
func (r *Reader) AvailableCurrentPacket() int {
	s := r.curSlot()
	if s == nil {
		return 0
	}
	return len(s.payload) - r.curOff
}

// PeekTokenType ensures one payload byte is buffered and returns it without
// advancing the cursor; returns io.EOF if the response stream has ended.
func (r *Reader) PeekTokenType() (byte, error) {
	if err := r.ensureByte(); err != nil {
		return 0, err
	}
	s := r.curSlot()
	return s.payload[r.curOff], nil
}

func (r *Reader) readByte() (byte, error) {
	if err := r.ensureByte(); err != nil {
		return 0, err
	}
	s := r.curSlot()
	b := s.payload[r.curOff]
	r.curOff++
	return b, nil
}

// ReadBytes reads exactly n bytes, which may span several packets.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		if err := r.ensureByte(); err != nil {
			return nil, err
		}
		s := r.curSlot()
		avail := len(s.payload) - r.curOff
		need := n - len(out)
		take := avail
		if take > need {
			take = need
		}
		out = append(out, s.payload[r.curOff:r.curOff+take]...)
		r.curOff += take
	}
	return out, nil
}

// Skip discards exactly n payload bytes across packet boundaries.
func (r *Reader) Skip(n int) error {
	_, err := r.ReadBytes(n)
	return err
}

func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.readByte()
	return b, err
}

func (r *Reader) ReadI8() (int8, error) {
	b, err := r.readByte()
	return int8(b), err
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadU16BigEndian() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadU32BigEndian() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadUnicodeString reads lengthChars UTF-16LE code units and decodes them.
func (r *Reader) ReadUnicodeString(lengthChars int) (string, error) {
	b, err := r.ReadBytes(lengthChars * 2)
	if err != nil {
		return "", err
	}
	return tds.DecodeUCS2(b)
}

// ReadBVarChar reads a byte-length-prefixed unicode string (the common
// "B_VARCHAR" shape used by LOGINACK, ENVCHANGE, and others).
func (r *Reader) ReadBVarChar() (string, error) {
	n, err := r.ReadU8()
	if err != nil {
		return "", err
	}
	return r.ReadUnicodeString(int(n))
}

// ReadUsVarChar reads a u16-length-prefixed unicode string (the "US_VARCHAR"
// shape used by error/info messages and server/proc names).
func (r *Reader) ReadUsVarChar() (string, error) {
	n, err := r.ReadU16()
	if err != nil {
		return "", err
	}
	return r.ReadUnicodeString(int(n))
}

// Identifier is a parsed 1..4 part SQL object name (object, schema,
// database, server), assigned right-to-left per spec.md S4.2.
type Identifier struct {
	Object   string
	Schema   string
	Database string
	Server   string
}

// ReadSQLIdentifier reads a u8 part count followed by that many
// length-prefixed unicode-16 strings, assigning them right-to-left.
func (r *Reader) ReadSQLIdentifier() (Identifier, error) {
	count, err := r.ReadU8()
	if err != nil {
		return Identifier{}, err
	}
	if count > 4 {
		return Identifier{}, errs.Newf(errs.KindInvalidIdentifier, "packetio.ReadSQLIdentifier", "part count %d exceeds 4", count)
	}
	parts := make([]string, count)
	for i := range parts {
		s, err := r.ReadBVarChar()
		if err != nil {
			return Identifier{}, err
		}
		parts[i] = s
	}
	id := Identifier{}
	slots := []*string{&id.Object, &id.Schema, &id.Database, &id.Server}
	for i := 0; i < len(parts); i++ {
		*slots[i] = parts[len(parts)-1-i]
	}
	return id, nil
}

// ReadGUID reads a 16-byte GUID and returns its canonical mixed-endian
// string form (the wire layout stores the first three fields little-endian).
func (r *Reader) ReadGUID() (string, error) {
	b, err := r.ReadBytes(16)
	if err != nil {
		return "", err
	}
	return formatGUID(b), nil
}

func formatGUID(b []byte) string {
	var out [36]byte
	hex := "0123456789abcdef"
	put := func(pos int, v byte) {
		out[pos] = hex[v>>4]
		out[pos+1] = hex[v&0xF]
	}
	// first 4 bytes little-endian
	put(0, b[3])
	put(2, b[2])
	put(4, b[1])
	put(6, b[0])
	out[8] = '-'
	put(9, b[5])
	put(11, b[4])
	out[13] = '-'
	put(14, b[7])
	put(16, b[6])
	out[18] = '-'
	put(19, b[8])
	put(21, b[9])
	out[23] = '-'
	for i := 0; i < 6; i++ {
		put(24+i*2, b[10+i])
	}
	return string(out[:])
}

// ReadDecimalOrNumeric reads a DECIMAL/NUMERIC value of the given wire
// length and scale: a sign byte (0 = negative) followed by a little-endian
// unsigned magnitude.
func (r *Reader) ReadDecimalOrNumeric(wireLen int, scale uint8) (decimal.Decimal, error) {
	if wireLen == 0 {
		return decimal.Zero, nil
	}
	b, err := r.ReadBytes(wireLen)
	if err != nil {
		return decimal.Decimal{}, err
	}
	sign := b[0]
	mag := reverseBytes(b[1:])
	mantissa := new(big.Int).SetBytes(mag)
	if sign == 0 {
		mantissa.Neg(mantissa)
	}
	return decimal.NewFromBigInt(mantissa, -int32(scale)), nil
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

// ReadMoney reads an 8-byte MONEY value (two big-endian-ordered int32
// halves forming a 64-bit tick count scaled by 10,000).
func (r *Reader) ReadMoney() (decimal.Decimal, error) {
	hi, err := r.ReadU32()
	if err != nil {
		return decimal.Decimal{}, err
	}
	lo, err := r.ReadU32()
	if err != nil {
		return decimal.Decimal{}, err
	}
	ticks := int64(hi)<<32 | int64(lo)
	return decimal.New(ticks, -4), nil
}

// ReadSmallMoney reads a 4-byte SMALLMONEY value scaled by 10,000.
func (r *Reader) ReadSmallMoney() (decimal.Decimal, error) {
	v, err := r.ReadI32()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.New(int64(v), -4), nil
}
