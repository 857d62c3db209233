package akenc

import (
	"sync"

	"github.com/tdsgo/tds/internal/errs"
	"github.com/tdsgo/tds/metrics"
)

// EnclaveSession is an opaque attestation-session capability: the result of
// a successful attestation handshake with a secure enclave, required
// before the driver can send enclave-computation-enabled encrypted
// parameters (spec.md S4.5). Its internal shape is attestation-protocol
// specific and out of scope; callers only need to know whether they hold
// one.
type EnclaveSession struct {
	attestationURL string
	protocol       string
	handshake      []byte
}

// Attested reports whether a session successfully completed its handshake.
func (s *EnclaveSession) Attested() bool {
	return s != nil && len(s.handshake) > 0
}

// EnclaveAttestor negotiates attestation sessions against a given
// attestation URL and protocol. Concrete protocols (VBS, SGX, HGS, ...)
// are out of scope; this package only specifies the contract a connection
// uses to gate enclave-required operations.
type EnclaveAttestor interface {
	Attest(attestationURL, protocol string, attestationInfo []byte) (*EnclaveSession, error)
}

// enclaveManager caches the single session a connection needs: the
// attestation handshake runs once, on the first RequireSession call, and
// the session is reused for every enclave-required query afterward.
type enclaveManager struct {
	mu        sync.Mutex
	url       string
	protocol  string
	attestor  EnclaveAttestor
	session   *EnclaveSession
}

// newEnclaveManager returns a manager bound to a fixed attestation
// endpoint and protocol; attestor may be nil if the connection never
// needs enclave computations, in which case RequireSession always fails.
func newEnclaveManager(url, protocol string, attestor EnclaveAttestor) *enclaveManager {
	return &enclaveManager{url: url, protocol: protocol, attestor: attestor}
}

// RequireSession returns the cached attestation session, performing the
// handshake on first call. attestationInfo is the server-supplied
// challenge from the enclave-computation feature-extension ack.
func (m *enclaveManager) RequireSession(attestationInfo []byte) (*EnclaveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return m.session, nil
	}
	if m.attestor == nil {
		metrics.EnclaveAttestationsTotal.WithLabelValues("no_attestor").Inc()
		return nil, errs.New(errs.KindEnclaveAttestationFailed, "akenc.enclaveManager.RequireSession", "no enclave attestor configured for this connection")
	}
	if m.url == "" {
		metrics.EnclaveAttestationsTotal.WithLabelValues("no_url").Inc()
		return nil, errs.New(errs.KindEnclaveAttestationFailed, "akenc.enclaveManager.RequireSession", "no attestation URL negotiated for this connection")
	}

	session, err := m.attestor.Attest(m.url, m.protocol, attestationInfo)
	if err != nil {
		metrics.EnclaveAttestationsTotal.WithLabelValues("failed").Inc()
		return nil, errs.Wrap(err, errs.KindEnclaveAttestationFailed, "akenc.enclaveManager.RequireSession", "enclave attestation handshake failed")
	}
	metrics.EnclaveAttestationsTotal.WithLabelValues("succeeded").Inc()
	session.attestationURL = m.url
	session.protocol = m.protocol
	m.session = session
	return session, nil
}
