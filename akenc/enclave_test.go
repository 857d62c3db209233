package akenc

import (
	"errors"
	"testing"
)

type stubAttestor struct {
	session *EnclaveSession
	err     error
	calls   int
}

func (a *stubAttestor) Attest(attestationURL, protocol string, attestationInfo []byte) (*EnclaveSession, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.session, nil
}

func TestEnclaveManagerRequireSessionCachesAfterFirstHandshake(t *testing.T) {
	attestor := &stubAttestor{session: &EnclaveSession{handshake: []byte("ok")}}
	m := newEnclaveManager("https://attest.example/", "HGS", attestor)

	s1, err := m.RequireSession([]byte("challenge"))
	if err != nil {
		t.Fatalf("RequireSession: %v", err)
	}
	if !s1.Attested() {
		t.Fatal("expected the returned session to be attested")
	}

	s2, err := m.RequireSession([]byte("challenge"))
	if err != nil {
		t.Fatalf("RequireSession: %v", err)
	}
	if s1 != s2 {
		t.Fatal("expected the second call to return the cached session")
	}
	if attestor.calls != 1 {
		t.Fatalf("expected exactly one attestation handshake, got %d", attestor.calls)
	}
}

func TestEnclaveManagerRequireSessionFailsWithoutAttestor(t *testing.T) {
	m := newEnclaveManager("https://attest.example/", "HGS", nil)
	if _, err := m.RequireSession(nil); err == nil {
		t.Fatal("expected an error when no attestor is configured")
	}
}

func TestEnclaveManagerRequireSessionFailsWithoutURL(t *testing.T) {
	m := newEnclaveManager("", "HGS", &stubAttestor{})
	if _, err := m.RequireSession(nil); err == nil {
		t.Fatal("expected an error when no attestation URL was negotiated")
	}
}

func TestEnclaveManagerRequireSessionPropagatesAttestationFailure(t *testing.T) {
	m := newEnclaveManager("https://attest.example/", "HGS", &stubAttestor{err: errors.New("handshake rejected")})
	if _, err := m.RequireSession(nil); err == nil {
		t.Fatal("expected the attestor's failure to propagate")
	}
}
