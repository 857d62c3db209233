// Package channel implements C1, the Channel: it owns the TCP/TLS byte
// stream for one connection, provides reliable in-order byte read/write
// with a socket timeout, and performs the TLS-in-TDS-PRELOGIN tunneled
// handshake. It is grounded on the teacher's tds/tls.go (there a server
// upgrading an inbound connection with tls.Server); here the same
// packet-wrapping proxy drives tls.Client instead, since the driver
// initiates the handshake.
package channel

import (
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/tdsgo/tds/internal/errs"
	"github.com/tdsgo/tds/internal/logutil"
)

// Channel owns the TCP (and, once upgraded, TLS) connection for one TDS
// session. It is the sole writer/reader of the underlying socket; every
// higher layer borrows it rather than owning a net.Conn directly.
type Channel struct {
	mu      sync.Mutex
	raw     net.Conn
	tlsConn *tls.Conn
	active  net.Conn // raw or tlsConn, whichever is in effect

	readTimeout time.Duration
	lastSPID    uint16
	log         *logutil.Logger
}

// Open wraps an already-connected net.Conn as a Channel.
func Open(conn net.Conn, log *logutil.Logger) *Channel {
	if log == nil {
		log = logutil.Default()
	}
	return &Channel{raw: conn, active: conn, log: log}
}

// SetNetworkTimeoutMs sets the per-read/write socket timeout.
func (c *Channel) SetNetworkTimeoutMs(ms int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readTimeout = time.Duration(ms) * time.Millisecond
}

// SetLastSPID records the most recently observed server process id, used
// for logging/tagging outbound traffic (spec.md S4.2 implementation
// contract).
func (c *Channel) SetLastSPID(spid uint16) {
	c.mu.Lock()
	c.lastSPID = spid
	c.mu.Unlock()
}

func (c *Channel) LastSPID() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSPID
}

func (c *Channel) deadline() time.Time {
	if c.readTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.readTimeout)
}

// Read implements io.Reader over whichever connection (raw or TLS) is
// currently active.
func (c *Channel) Read(p []byte) (int, error) {
	c.mu.Lock()
	conn := c.active
	dl := c.deadline()
	c.mu.Unlock()
	if !dl.IsZero() {
		conn.SetReadDeadline(dl)
	}
	n, err := conn.Read(p)
	if err != nil {
		return n, errs.Wrap(err, errs.KindNetworkIO, "channel.Read", "read failed")
	}
	return n, nil
}

// Write implements io.Writer over whichever connection is currently active.
func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	conn := c.active
	dl := c.deadline()
	c.mu.Unlock()
	if !dl.IsZero() {
		conn.SetWriteDeadline(dl)
	}
	n, err := conn.Write(p)
	if err != nil {
		return n, errs.Wrap(err, errs.KindNetworkIO, "channel.Write", "write failed")
	}
	return n, nil
}

// Close tears down the connection (TLS session first, if any).
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tlsConn != nil {
		_ = c.tlsConn.Close()
	}
	return c.raw.Close()
}

// RemoteAddr/LocalAddr expose the underlying socket addresses.
func (c *Channel) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }
func (c *Channel) LocalAddr() net.Addr  { return c.raw.LocalAddr() }

// IsTLS reports whether EnableSSL has completed successfully.
func (c *Channel) IsTLS() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tlsConn != nil
}
