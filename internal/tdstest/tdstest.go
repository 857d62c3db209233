// Package tdstest is a net.Pipe()-based harness that plays the server side
// of the wire protocol against a Conn under test, grounded on the
// listener-side accept/serve pattern the teacher's server-facing test
// suite uses for its own client-connect tests (protocol/tds's
// TestGoMssqldbConnection: start a listener, drive the client against it
// from a background goroutine, assert on both sides). Here the transport
// is an in-process net.Pipe() instead of a real listening socket, since
// this driver only ever plays the client role.
package tdstest

import (
	"io"
	"net"

	"github.com/tdsgo/tds/internal/tds"
)

// Pipe returns a synchronous, in-memory connection pair: give client to
// the code under test and drive server from a FakeServer in a background
// goroutine.
func Pipe() (client, server net.Conn) {
	return net.Pipe()
}

// FakeServer scripts a server's half of the TDS wire protocol directly
// onto a net.Conn, without going through packetio (the reader/writer under
// test IS the thing being exercised).
type FakeServer struct {
	conn       net.Conn
	packetSize int
}

// NewFakeServer wraps conn (the server end of a Pipe()) for scripting.
func NewFakeServer(conn net.Conn) *FakeServer {
	return &FakeServer{conn: conn, packetSize: int(tds.DefaultPacketSize)}
}

// SetPacketSize changes the packet size used to frame subsequent
// WriteMessage calls, mirroring the size the client negotiated in LOGIN7.
func (s *FakeServer) SetPacketSize(n int) { s.packetSize = n }

// Close closes the underlying connection.
func (s *FakeServer) Close() error { return s.conn.Close() }

// WriteMessage frames payload as one or more TDS packets of pktType,
// splitting across s.packetSize-sized packets exactly as a real server
// would for a large response.
func (s *FakeServer) WriteMessage(pktType tds.PacketType, payload []byte) error {
	maxBody := s.packetSize - tds.HeaderSize
	if maxBody <= 0 {
		maxBody = len(payload)
	}
	off := 0
	for {
		end := off + maxBody
		last := false
		if end >= len(payload) {
			end = len(payload)
			last = true
		}
		chunk := payload[off:end]

		status := tds.PacketStatus(0)
		if last {
			status = tds.StatusEOM
		}
		hdr := tds.Header{
			Type:   pktType,
			Status: status,
			Length: uint16(tds.HeaderSize + len(chunk)),
			Seq:    1,
		}
		if err := hdr.Write(s.conn); err != nil {
			return err
		}
		if len(chunk) > 0 {
			if _, err := s.conn.Write(chunk); err != nil {
				return err
			}
		}
		off = end
		if last {
			return nil
		}
	}
}

// ReadMessage reads one full TDS message (possibly spanning several
// packets) sent by the client under test.
func (s *FakeServer) ReadMessage() (tds.PacketType, []byte, error) {
	var data []byte
	var pktType tds.PacketType
	for {
		h, err := tds.ReadHeader(s.conn)
		if err != nil {
			return 0, nil, err
		}
		pktType = h.Type
		if bodyLen := h.PayloadLength(); bodyLen > 0 {
			body := make([]byte, bodyLen)
			if _, err := io.ReadFull(s.conn, body); err != nil {
				return 0, nil, err
			}
			data = append(data, body...)
		}
		if h.Status.IsEOM() {
			break
		}
	}
	return pktType, data, nil
}

// WritePreloginResponse sends a server PRELOGIN response with the given
// negotiated encryption value, framed as packet type Reply (0x04) — the
// wire type real servers use for the PRELOGIN response despite the
// request itself using type Prelogin (0x12).
func (s *FakeServer) WritePreloginResponse(encryption uint8) error {
	resp := &tds.Prelogin{
		Version:    [6]byte{0x0F, 0x00, 0x0C, 0xDB, 0x00, 0x00},
		Encryption: encryption,
	}
	return s.WriteMessage(tds.PacketReply, resp.Encode())
}

// ReadPrelogin reads and parses the client's PRELOGIN request.
func (s *FakeServer) ReadPrelogin() (*tds.Prelogin, error) {
	_, payload, err := s.ReadMessage()
	if err != nil {
		return nil, err
	}
	return tds.ParsePrelogin(payload)
}
