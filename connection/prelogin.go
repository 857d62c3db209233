package connection

import (
	"github.com/tdsgo/tds/internal/channel"
	"github.com/tdsgo/tds/internal/errs"
	"github.com/tdsgo/tds/internal/tds"
)

// preloginResult carries the negotiated outcome of the PRELOGIN exchange
// that dial.go / login.go act on.
type preloginResult struct {
	serverVersion uint32
	encryption    uint8
	fedAuthSet    bool
	fedAuth       uint8
	nonce         []byte
}

// doPrelogin sends the client's PRELOGIN request and parses the server's
// response (spec.md S4.4). requestedEncryption is the client's own
// encrypt= posture, already mapped to the wire's OFF/ON/NOT_SUP/REQ enum.
func doPrelogin(ch *channel.Channel, requestedEncryption uint8, instanceName string, requestFedAuth bool) (*preloginResult, error) {
	req := &tds.Prelogin{
		Version:    [6]byte{0, 0, 0, 0, 0, 0},
		Encryption: requestedEncryption,
		Instance:   instanceName,
		ThreadID:   0,
		MARS:       0,
	}
	if requestFedAuth {
		req.FedAuthSet = true
		req.FedAuth = 0x01
	}

	payload := req.Encode()
	if err := writeSingleMessage(ch, tds.PacketPrelogin, payload); err != nil {
		return nil, err
	}

	resp, err := readSingleMessage(ch, tds.InitialPacketSize)
	if err != nil {
		return nil, err
	}

	parsed, err := tds.ParsePrelogin(resp)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInvalidProtocol, "connection.doPrelogin", "parsing server PRELOGIN response")
	}

	result := &preloginResult{
		encryption: parsed.Encryption,
		fedAuthSet: parsed.FedAuthSet,
		fedAuth:    parsed.FedAuth,
		nonce:      parsed.Nonce,
	}
	if len(parsed.Version) >= 4 {
		result.serverVersion = uint32(parsed.Version[0])<<24 | uint32(parsed.Version[1])<<16 |
			uint32(parsed.Version[2])<<8 | uint32(parsed.Version[3])
	}
	return result, nil
}

// negotiateEncryption applies spec.md S4.4's mismatch rule: the client
// enables TLS whenever either side said ON or REQ; a client that requires
// encryption but gets NOT_SUP from the server fails fatally.
func negotiateEncryption(clientWants, serverSays uint8) (enableTLS bool, err error) {
	if clientWants == tds.EncryptReq && serverSays == tds.EncryptNotSup {
		return false, errs.New(errs.KindEncryptionRequiredButNotSupported, "connection.negotiateEncryption", "client requires encryption but the server does not support it")
	}
	if clientWants == tds.EncryptOn || clientWants == tds.EncryptReq ||
		serverSays == tds.EncryptOn || serverSays == tds.EncryptReq {
		return true, nil
	}
	return false, nil
}

// writeSingleMessage sends data as one or more PRELOGIN-framed packets
// (before packetio is wired up — PRELOGIN is the one exchange that
// happens on the bare Channel, ahead of packet-size negotiation).
func writeSingleMessage(ch *channel.Channel, pktType tds.PacketType, payload []byte) error {
	hdr := tds.Header{
		Type:   pktType,
		Status: tds.StatusEOM,
		Length: uint16(tds.HeaderSize + len(payload)),
		Seq:    1,
	}
	buf := make([]byte, 0, tds.HeaderSize+len(payload))
	headerBuf := make([]byte, tds.HeaderSize)
	writeHeaderTo(headerBuf, hdr)
	buf = append(buf, headerBuf...)
	buf = append(buf, payload...)
	_, err := ch.Write(buf)
	return err
}

func writeHeaderTo(buf []byte, h tds.Header) {
	buf[0] = byte(h.Type)
	buf[1] = byte(h.Status)
	buf[2] = byte(h.Length >> 8)
	buf[3] = byte(h.Length)
	buf[4] = byte(h.SPID >> 8)
	buf[5] = byte(h.SPID)
	buf[6] = h.Seq
	buf[7] = h.Window
}

// readSingleMessage reads one TDS message (possibly spanning several
// packets) directly off the Channel, ahead of the packetio.Reader being
// wired up for the session.
func readSingleMessage(ch *channel.Channel, packetSize int) ([]byte, error) {
	var data []byte
	for {
		headerBuf := make([]byte, tds.HeaderSize)
		if err := readFull(ch, headerBuf); err != nil {
			return nil, errs.Wrap(err, errs.KindTruncatedResponse, "connection.readSingleMessage", "reading packet header")
		}
		hdr := readHeaderFrom(headerBuf)
		if int(hdr.Length) < tds.HeaderSize || int(hdr.Length) > packetSize {
			return nil, errs.Newf(errs.KindInvalidProtocol, "connection.readSingleMessage", "packet length %d out of bounds", hdr.Length)
		}
		payloadLen := int(hdr.Length) - tds.HeaderSize
		if payloadLen > 0 {
			payload := make([]byte, payloadLen)
			if err := readFull(ch, payload); err != nil {
				return nil, errs.Wrap(err, errs.KindTruncatedResponse, "connection.readSingleMessage", "reading packet payload")
			}
			data = append(data, payload...)
		}
		if hdr.Status.IsEOM() {
			break
		}
	}
	return data, nil
}

func readHeaderFrom(buf []byte) tds.Header {
	return tds.Header{
		Type:   tds.PacketType(buf[0]),
		Status: tds.PacketStatus(buf[1]),
		Length: uint16(buf[2])<<8 | uint16(buf[3]),
		SPID:   uint16(buf[4])<<8 | uint16(buf[5]),
		Seq:    buf[6],
		Window: buf[7],
	}
}

func readFull(ch *channel.Channel, buf []byte) error {
	for off := 0; off < len(buf); {
		n, err := ch.Read(buf[off:])
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}
