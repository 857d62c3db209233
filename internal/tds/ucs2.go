package tds

import (
	"golang.org/x/text/encoding/unicode"
)

// ucs2 is the shared UTF-16LE codec used for every TDS character field:
// identifiers, login fields, error/info messages, ENVCHANGE values. Using
// golang.org/x/text/encoding/unicode instead of a hand-rolled utf16 loop
// (as the teacher's pkg/tds/login.go does) buys correct handling of
// unpaired surrogates, which the teacher's ucs2ToString/stringToUCS2 pair
// silently mangles.
var ucs2 = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
var ucs2Enc = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()

// DecodeUCS2 converts UTF-16LE bytes (as found on the wire) to a Go string.
func DecodeUCS2(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	out, err := ucs2.Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// EncodeUCS2 converts a Go string to UTF-16LE bytes for the wire.
func EncodeUCS2(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return ucs2Enc.Bytes([]byte(s))
}
