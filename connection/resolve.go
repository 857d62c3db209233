package connection

import (
	"context"
	"net"
	"time"

	"github.com/tdsgo/tds/internal/errs"
)

// maxResolvedAddresses is the hard cap on the candidate set a parallel
// connect attempt may race (spec.md S4.4: "Hard cap: 64 addresses.
// Exceeding it is a fatal unsupported-config.").
const maxResolvedAddresses = 64

// resolve looks up host and returns every address it owns, split into
// IPv4 and IPv6 sets for the parallel dialer's per-family racing.
func resolve(ctx context.Context, host string, timeout time.Duration) (v4, v6 []net.IP, err error) {
	resolver := net.DefaultResolver
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ips, err := resolver.LookupIP(rctx, "ip", host)
	if err != nil {
		return nil, nil, errs.Wrap(err, errs.KindResolveFailed, "connection.resolve", "resolving "+host)
	}
	if len(ips) > maxResolvedAddresses {
		return nil, nil, errs.Newf(errs.KindConfigUnsupported, "connection.resolve", "host %q resolved to %d addresses, exceeding the %d-address limit", host, len(ips), maxResolvedAddresses)
	}

	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			v4 = append(v4, ip4)
		} else {
			v6 = append(v6, ip)
		}
	}
	return v4, v6, nil
}
