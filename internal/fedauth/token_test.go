package fedauth

import (
	"encoding/binary"
	"testing"
)

func TestBuildFedAuthTokenWithoutNonce(t *testing.T) {
	token := []byte("bearer-token-bytes")
	buf := BuildFedAuthToken(token, nil)

	totalLen := binary.LittleEndian.Uint32(buf[0:4])
	tokenLen := binary.LittleEndian.Uint32(buf[4:8])
	if totalLen != uint32(len(token)) {
		t.Fatalf("total length = %d, want %d", totalLen, len(token))
	}
	if tokenLen != uint32(len(token)) {
		t.Fatalf("token length = %d, want %d", tokenLen, len(token))
	}
	if string(buf[8:]) != string(token) {
		t.Fatalf("token bytes mismatch: got %q", buf[8:])
	}
}

func TestBuildFedAuthTokenWithNonce(t *testing.T) {
	token := []byte("bearer-token")
	nonce := make([]byte, 32)
	for i := range nonce {
		nonce[i] = byte(i)
	}
	buf := BuildFedAuthToken(token, nonce)

	totalLen := binary.LittleEndian.Uint32(buf[0:4])
	if totalLen != uint32(len(token)+len(nonce)) {
		t.Fatalf("total length = %d, want %d", totalLen, len(token)+len(nonce))
	}
	trailer := buf[8+len(token):]
	if string(trailer) != string(nonce) {
		t.Fatal("nonce was not appended verbatim after the token")
	}
}

func TestCallbackResolverDelegatesToFn(t *testing.T) {
	called := false
	r := &CallbackResolver{Fn: func(stsURL, spn string) ([]byte, error) {
		called = true
		if stsURL != "https://sts.example/" || spn != "MSSQLSvc/db.example:1433" {
			t.Fatalf("unexpected args: stsURL=%q spn=%q", stsURL, spn)
		}
		return []byte("token"), nil
	}}

	tok, err := r.Resolve("https://sts.example/", "MSSQLSvc/db.example:1433")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !called {
		t.Fatal("expected the callback to be invoked")
	}
	if string(tok) != "token" {
		t.Fatalf("unexpected token: %q", tok)
	}
}
