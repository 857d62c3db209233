//go:build !windows

package connection

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// tuneSocket is a net.Dialer.Control hook: it runs on the raw file
// descriptor before connect(2), ahead of net.Dial's own post-connect
// option calls, so the connection races dialParallel starts already carry
// TCP_NODELAY and SO_KEEPALIVE instead of paying one extra syscall round
// trip per winner after the fact.
func tuneSocket(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
