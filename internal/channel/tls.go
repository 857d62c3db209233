package channel

import (
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/tdsgo/tds/internal/errs"
	"github.com/tdsgo/tds/internal/tds"
)

// preloginProxyConn implements the tunneling proxy described in spec.md
// S4.1: it interposes between the TLS engine and the real socket so that,
// until the handshake completes, every TLS record the engine writes is
// wrapped in a PRELOGIN packet and every byte it reads comes from
// unwrapping one. It auto-detects a server or peer that sends raw TLS
// records (first byte 0x16) instead of TDS-wrapped ones (0x12), mirroring
// the teacher's tlsHandshakeConn but driving tls.Client rather than
// tls.Server since this driver initiates the handshake.
type preloginProxyConn struct {
	raw net.Conn

	readBuf []byte
	readPos int
	rawTLS  bool

	started bool // true once the first handshake byte has been exchanged
}

func newPreloginProxyConn(raw net.Conn) *preloginProxyConn {
	return &preloginProxyConn{raw: raw}
}

func (p *preloginProxyConn) Read(b []byte) (int, error) {
	if p.readPos < len(p.readBuf) {
		n := copy(b, p.readBuf[p.readPos:])
		p.readPos += n
		return n, nil
	}

	peek := make([]byte, 1)
	n, err := p.raw.Read(peek)
	if err != nil {
		if err == io.EOF && !p.started {
			return 0, errs.Wrap(err, errs.KindTLSHandshakeNotStarted, "channel.preloginProxyConn.Read", "connection closed before handshake began")
		}
		if err == io.EOF {
			return 0, errs.Wrap(err, errs.KindTLSHandshakeIntermittent, "channel.preloginProxyConn.Read", "connection closed mid-handshake")
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.ErrNoProgress
	}
	p.started = true

	switch peek[0] {
	case 0x16: // raw TLS handshake record
		p.rawTLS = true
		header := make([]byte, 5)
		header[0] = peek[0]
		if _, err := io.ReadFull(p.raw, header[1:]); err != nil {
			return 0, errs.Wrap(err, errs.KindTLSHandshakeIntermittent, "channel.preloginProxyConn.Read", "truncated TLS record header")
		}
		recordLen := int(header[3])<<8 | int(header[4])
		record := make([]byte, 5+recordLen)
		copy(record, header)
		if _, err := io.ReadFull(p.raw, record[5:]); err != nil {
			return 0, errs.Wrap(err, errs.KindTLSHandshakeIntermittent, "channel.preloginProxyConn.Read", "truncated TLS record body")
		}
		p.readBuf, p.readPos = record, 0

	case byte(tds.PacketPrelogin):
		header := make([]byte, tds.HeaderSize-1)
		if _, err := io.ReadFull(p.raw, header); err != nil {
			return 0, errs.Wrap(err, errs.KindTLSHandshakeIntermittent, "channel.preloginProxyConn.Read", "truncated PRELOGIN header")
		}
		pktLen := int(header[1])<<8 | int(header[2])
		payloadLen := pktLen - tds.HeaderSize
		var payload []byte
		if payloadLen > 0 {
			payload = make([]byte, payloadLen)
			if _, err := io.ReadFull(p.raw, payload); err != nil {
				return 0, errs.Wrap(err, errs.KindTLSHandshakeIntermittent, "channel.preloginProxyConn.Read", "truncated PRELOGIN payload")
			}
		}
		p.readBuf, p.readPos = payload, 0

	default:
		return 0, errs.Newf(errs.KindTLSHandshakeNotStarted, "channel.preloginProxyConn.Read", "unexpected first byte 0x%02X during TLS handshake", peek[0])
	}

	n = copy(b, p.readBuf)
	p.readPos = n
	return n, nil
}

// Write wraps one TLS record in a PRELOGIN packet (or forwards it raw, once
// the peer has revealed it speaks unwrapped TLS). tls.Conn issues one Write
// per flushed record during the handshake, so a whole Write here maps
// naturally onto spec.md's "ignore flush until end_message is called."
func (p *preloginProxyConn) Write(b []byte) (int, error) {
	if p.rawTLS {
		return p.raw.Write(b)
	}
	hdr := tds.Header{
		Type:   tds.PacketPrelogin,
		Status: tds.StatusEOM,
		Length: uint16(tds.HeaderSize + len(b)),
		Seq:    1,
	}
	if err := hdr.Write(p.raw); err != nil {
		return 0, err
	}
	if _, err := p.raw.Write(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (p *preloginProxyConn) Close() error                       { return nil }
func (p *preloginProxyConn) LocalAddr() net.Addr                { return p.raw.LocalAddr() }
func (p *preloginProxyConn) RemoteAddr() net.Addr               { return p.raw.RemoteAddr() }
func (p *preloginProxyConn) SetDeadline(t time.Time) error      { return p.raw.SetDeadline(t) }
func (p *preloginProxyConn) SetReadDeadline(t time.Time) error  { return p.raw.SetReadDeadline(t) }
func (p *preloginProxyConn) SetWriteDeadline(t time.Time) error { return p.raw.SetWriteDeadline(t) }

// EnableSSL performs the TLS-tunneled-in-TDS-PRELOGIN handshake (spec.md
// S4.1) and, on success, rewires the Channel so all subsequent reads/writes
// go directly over the TLS session rather than through the proxy.
func (c *Channel) EnableSSL(config *tls.Config, handshakeTimeout time.Duration) error {
	c.mu.Lock()
	raw := c.raw
	c.mu.Unlock()

	proxy := newPreloginProxyConn(raw)
	if handshakeTimeout > 0 {
		raw.SetDeadline(time.Now().Add(handshakeTimeout))
	}
	tlsConn := tls.Client(proxy, config)
	err := tlsConn.Handshake()
	raw.SetDeadline(time.Time{})
	if err != nil {
		if errs.KindOf(err) != errs.KindInternal {
			return err
		}
		return errs.Wrap(err, errs.KindTLSHandshakeNotStarted, "channel.EnableSSL", "TLS handshake failed")
	}

	c.mu.Lock()
	c.tlsConn = tlsConn
	c.active = tlsConn
	c.mu.Unlock()
	return nil
}

// DisableSSL is the S1 "login-only encryption" path: once login completes,
// the driver stops wrapping traffic in TLS and talks plaintext TDS again.
// Only valid when the negotiated encryption level was OFF or LOGIN_ONLY.
func (c *Channel) DisableSSL() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tlsConn = nil
	c.active = c.raw
}
