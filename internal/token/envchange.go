package token

import (
	"github.com/tdsgo/tds/internal/packetio"
	"github.com/tdsgo/tds/internal/tds"
)

// EnvChange is the decoded content of one ENVCHANGE token. Only the fields
// relevant to its SubType are populated; the rest are zero.
type EnvChange struct {
	SubType uint8

	NewValue string
	OldValue string

	// Populated for EnvBeginTran/EnvCommitTran/EnvRollbackTran/EnvEnlistDTC:
	// an 8-byte transaction descriptor, opaque to the driver except for
	// round-tripping it on the next request.
	TranDescriptor []byte

	// Populated for EnvPacketSize.
	NewPacketSize int

	// Populated for EnvRouting.
	RoutingProtocol uint8
	RoutingPort     uint16
	RoutingServer   string
}

// decodeEnvChange reads one ENVCHANGE token body (the u16 length prefix has
// already been consumed by the caller, which passes it as bodyLen so the
// reader can be bounded if a subtype turns out to be unrecognized).
func decodeEnvChange(r *packetio.Reader, bodyLen int) (EnvChange, error) {
	subType, err := r.ReadU8()
	if err != nil {
		return EnvChange{}, err
	}
	consumed := 1
	ch := EnvChange{SubType: subType}

	switch subType {
	case tds.EnvRouting:
		newLen, err := r.ReadU16()
		if err != nil {
			return ch, err
		}
		consumed += 2
		protocol, err := r.ReadU8()
		if err != nil {
			return ch, err
		}
		port, err := r.ReadU16()
		if err != nil {
			return ch, err
		}
		serverLen, err := r.ReadU16()
		if err != nil {
			return ch, err
		}
		server, err := r.ReadUnicodeString(int(serverLen))
		if err != nil {
			return ch, err
		}
		consumed += int(newLen)
		ch.RoutingProtocol = protocol
		ch.RoutingPort = port
		ch.RoutingServer = server
		// old value: u16 length, typically 0
		oldLen, err := r.ReadU16()
		if err != nil {
			return ch, err
		}
		consumed += 2
		if oldLen > 0 {
			if err := r.Skip(int(oldLen)); err != nil {
				return ch, err
			}
			consumed += int(oldLen)
		}

	case tds.EnvBeginTran, tds.EnvCommitTran, tds.EnvRollbackTran, tds.EnvEnlistDTC, tds.EnvDefectTran:
		newLen, err := r.ReadU8()
		if err != nil {
			return ch, err
		}
		consumed++
		desc, err := r.ReadBytes(int(newLen))
		if err != nil {
			return ch, err
		}
		consumed += int(newLen)
		ch.TranDescriptor = desc
		oldLen, err := r.ReadU8()
		if err != nil {
			return ch, err
		}
		consumed++
		if oldLen > 0 {
			if err := r.Skip(int(oldLen)); err != nil {
				return ch, err
			}
			consumed += int(oldLen)
		}

	case tds.EnvPacketSize:
		newStr, n, err := readByteString(r)
		if err != nil {
			return ch, err
		}
		consumed += n
		oldStr, n, err := readByteString(r)
		if err != nil {
			return ch, err
		}
		consumed += n
		ch.NewValue, ch.OldValue = newStr, oldStr
		size := 0
		for _, c := range newStr {
			size = size*10 + int(c-'0')
		}
		ch.NewPacketSize = size

	default:
		newStr, n, err := readByteString(r)
		if err != nil {
			return ch, err
		}
		consumed += n
		oldStr, n, err := readByteString(r)
		if err != nil {
			return ch, err
		}
		consumed += n
		ch.NewValue, ch.OldValue = newStr, oldStr
	}

	if consumed < bodyLen {
		if err := r.Skip(bodyLen - consumed); err != nil {
			return ch, err
		}
	}
	return ch, nil
}

// readByteString reads a byte-length-prefixed unicode string and returns
// it along with the number of wire bytes consumed (1 + 2*charLen).
func readByteString(r *packetio.Reader) (string, int, error) {
	n, err := r.ReadU8()
	if err != nil {
		return "", 0, err
	}
	s, err := r.ReadUnicodeString(int(n))
	if err != nil {
		return "", 0, err
	}
	return s, 1 + int(n)*2, nil
}
