package channel

import (
	"crypto/x509"
	"strings"

	"github.com/tdsgo/tds/internal/errs"
)

// VerifyHostnameInCertificate implements the S3 hostname-override
// verification rule (spec.md S4.1): extract the first cn= component of the
// certificate subject's RFC-2253 DN (lowercased, quotes stripped); if it
// doesn't match expected, fall back to the certificate's DNS
// subject-alternative-names, compared case-insensitively.
func VerifyHostnameInCertificate(cert *x509.Certificate, expected string) error {
	expected = strings.ToLower(expected)

	cn := strings.ToLower(strings.Trim(cert.Subject.CommonName, `"`))
	if cn != "" && cn == expected {
		return nil
	}
	for _, dns := range cert.DNSNames {
		if strings.EqualFold(dns, expected) {
			return nil
		}
	}
	return errs.Newf(errs.KindTLSCertName, "channel.VerifyHostnameInCertificate", "certificate does not match hostNameInCertificate %q", expected)
}
