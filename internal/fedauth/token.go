// Package fedauth implements spec.md S4.4's federated-authentication
// flows: the server's FEDAUTHINFO challenge is satisfied by acquiring a
// bearer token from one of three sources (ActiveDirectoryPassword against
// an STS, ActiveDirectoryIntegrated via Kerberos, or a caller-supplied
// callback) and writing it back in a FEDAUTH_TOKEN packet (type 0x08).
package fedauth

import "encoding/binary"

// Resolver acquires a bearer token satisfying a FEDAUTHINFO challenge.
// The three flows in this package (password.go, kerberos.go, callback.go)
// each produce one of these.
type Resolver interface {
	Resolve(stsURL, spn string) ([]byte, error)
}

// BuildFedAuthToken encodes the FEDAUTH_TOKEN packet body: a u32 total
// length (token plus nonce), a u32 token length, the token bytes, and
// (when nonce is non-empty, echoing the PRELOGIN nonce the server sent)
// the nonce bytes appended as given, per spec.md S4.4's
// federated-authentication description.
func BuildFedAuthToken(token []byte, nonce []byte) []byte {
	totalLen := uint32(len(token))
	if len(nonce) > 0 {
		totalLen += uint32(len(nonce))
	}
	buf := make([]byte, 0, 4+4+len(token)+len(nonce))
	buf = appendU32(buf, totalLen)
	buf = appendU32(buf, uint32(len(token)))
	buf = append(buf, token...)
	if len(nonce) > 0 {
		buf = append(buf, nonce...)
	}
	return buf
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}
