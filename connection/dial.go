package connection

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/tdsgo/tds/dsn"
	"github.com/tdsgo/tds/internal/errs"
)

// DialOptions configures the socket-finding state machine (spec.md S4.4).
type DialOptions struct {
	Host               string
	Port               uint16
	LoginTimeout       time.Duration
	UseParallel        bool
	UseTNIR            bool
	IsTNIRFirstAttempt bool
	FullTimeout        time.Duration
}

const tnirFirstAttemptTimeout = 500 * time.Millisecond

// Dial implements the socket-finding state machine: resolve, then connect
// per the use_parallel/use_tnir table in spec.md S4.4.
func Dial(ctx context.Context, opts DialOptions) (net.Conn, error) {
	host, instance := dsn.SplitHostInstance(opts.Host)
	_ = instance // SQL Browser instance resolution is out of scope for this core

	v4, v6, err := resolve(ctx, host, opts.LoginTimeout)
	if err != nil {
		return nil, err
	}
	total := len(v4) + len(v6)

	useTNIR := opts.UseTNIR
	timeout := opts.LoginTimeout
	if useTNIR && total > maxResolvedAddresses {
		useTNIR = false
		timeout = opts.FullTimeout
	}

	switch {
	case !opts.UseParallel && useTNIR && opts.IsTNIRFirstAttempt:
		return dialFirst(ctx, append(v4, v6...), opts.Port, tnirFirstAttemptTimeout)

	case !opts.UseParallel && !useTNIR:
		return dialFirst(ctx, append(v4, v6...), opts.Port, timeout)

	case opts.UseParallel:
		return dialParallelFamilies(ctx, v4, v6, opts.Port, opts.LoginTimeout)

	default:
		return dialFirst(ctx, append(v4, v6...), opts.Port, timeout)
	}
}

func dialFirst(ctx context.Context, addrs []net.IP, port uint16, timeout time.Duration) (net.Conn, error) {
	if len(addrs) == 0 {
		return nil, errs.New(errs.KindResolveFailed, "connection.dialFirst", "no addresses to connect to")
	}
	d := net.Dialer{Timeout: timeout, Control: tuneSocket}
	addr := net.JoinHostPort(addrs[0].String(), portString(port))
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyDialError(err)
	}
	return conn, nil
}

// dialParallelFamilies races IPv4 candidates first, then IPv6 on failure,
// per spec.md S4.4's "try IPv4 first; on failure try IPv6" rule.
func dialParallelFamilies(ctx context.Context, v4, v6 []net.IP, port uint16, loginTimeout time.Duration) (net.Conn, error) {
	perFamily := loginTimeout
	if len(v4) > 0 && len(v6) > 0 {
		perFamily = loginTimeout / 2
	}
	if perFamily < 1500*time.Millisecond {
		perFamily = 1500 * time.Millisecond
	}

	if len(v4) > 0 {
		if conn, err := dialParallel(ctx, v4, port, perFamily); err == nil {
			return conn, nil
		}
	}
	if len(v6) > 0 {
		return dialParallel(ctx, v6, port, perFamily)
	}
	return nil, errs.New(errs.KindResolveFailed, "connection.dialParallelFamilies", "no addresses to connect to")
}

// dialParallel implements the "alternative (threaded) discipline" from
// spec.md S4.4: one goroutine per address, first success wins, losers'
// sockets are closed. Go has no portable way to register a raw socket for
// select(2)-style write-readiness, so the threaded discipline — explicitly
// sanctioned as an alternative — is the idiomatic fit here.
func dialParallel(parent context.Context, addrs []net.IP, port uint16, timeout time.Duration) (net.Conn, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	type result struct {
		conn net.Conn
		err  error
	}
	results := make(chan result, len(addrs))

	var wg sync.WaitGroup
	for _, ip := range addrs {
		wg.Add(1)
		go func(ip net.IP) {
			defer wg.Done()
			d := net.Dialer{Timeout: timeout, Control: tuneSocket}
			addr := net.JoinHostPort(ip.String(), portString(port))
			conn, err := d.DialContext(ctx, "tcp", addr)
			select {
			case results <- result{conn, err}:
			case <-ctx.Done():
				if conn != nil {
					conn.Close()
				}
			}
		}(ip)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var winner net.Conn
	var preferredErr, timeoutErr error
	for r := range results {
		if r.err == nil {
			if winner == nil {
				winner = r.conn
				cancel() // stop the rest, drain their late connections below
			} else {
				r.conn.Close()
			}
			continue
		}
		if ne, ok := r.err.(net.Error); ok && ne.Timeout() {
			if timeoutErr == nil {
				timeoutErr = r.err
			}
		} else if preferredErr == nil {
			preferredErr = r.err
		}
	}
	if winner != nil {
		return winner, nil
	}
	if preferredErr != nil {
		return nil, classifyDialError(preferredErr)
	}
	if timeoutErr != nil {
		return nil, classifyDialError(timeoutErr)
	}
	return nil, errs.New(errs.KindConnectTimeout, "connection.dialParallel", "no socket completed within the connect window")
}

func classifyDialError(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return errs.Wrap(err, errs.KindConnectTimeout, "connection.dial", "connect timed out")
	}
	return errs.Wrap(err, errs.KindConnectRefused, "connection.dial", "connect failed")
}

func portString(p uint16) string {
	if p == 0 {
		p = 1433
	}
	return strconv.Itoa(int(p))
}
