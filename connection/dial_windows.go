//go:build windows

package connection

import "syscall"

// tuneSocket is a no-op on Windows: winsock's TCP_NODELAY/SO_KEEPALIVE
// setsockopt calls need golang.org/x/sys/windows's own RawConn plumbing,
// which this core doesn't carry a CI target for; net.Dial's defaults are
// used instead.
func tuneSocket(_, _ string, _ syscall.RawConn) error {
	return nil
}
