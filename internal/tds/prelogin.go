package tds

import (
	"encoding/binary"
	"fmt"
)

// TDS protocol version constants (spec.md S6).
const (
	VerTDS70     uint32 = 0x70000000
	VerTDS71     uint32 = 0x71000000
	VerTDS71Rev1 uint32 = 0x71000001
	VerYukon     uint32 = 0x72090002 // TDS 7.2
	VerTDS73A    uint32 = 0x730A0003
	VerKatmai    uint32 = 0x730B0003 // TDS 7.3B
	VerDenali    uint32 = 0x74000004 // TDS 7.4
	VerUnknown   uint32 = 0x00000000
)

func VersionString(ver uint32) string {
	switch ver {
	case VerYukon:
		return "7.2"
	case VerKatmai:
		return "7.3B"
	case VerDenali:
		return "7.4"
	default:
		return fmt.Sprintf("0x%08X", ver)
	}
}

// Prelogin option tokens (spec.md S4.4).
const (
	PreloginVersion    uint8 = 0x00
	PreloginEncryption uint8 = 0x01
	PreloginInstOpt    uint8 = 0x02
	PreloginThreadID   uint8 = 0x03
	PreloginMARS       uint8 = 0x04
	PreloginTraceID    uint8 = 0x05
	PreloginFedAuth    uint8 = 0x06
	PreloginNonceOpt   uint8 = 0x07
	PreloginTerminator uint8 = 0xFF
)

// Encryption negotiation values (spec.md S4.1, S4.4).
const (
	EncryptOff    uint8 = 0x00
	EncryptOn     uint8 = 0x01
	EncryptNotSup uint8 = 0x02
	EncryptReq    uint8 = 0x03
)

// PreloginOption is one {id, offset, length} descriptor in a PRELOGIN
// message.
type PreloginOption struct {
	Token  uint8
	Offset uint16
	Length uint16
}

// Prelogin holds the option values exchanged during pre-login negotiation.
// The same struct represents both the client's request and the server's
// response; Encode writes it and ParsePrelogin reads it back.
type Prelogin struct {
	Version    [6]byte
	Encryption uint8
	Instance   string
	ThreadID   uint32
	MARS       uint8
	FedAuth    uint8
	FedAuthSet bool
	Nonce      []byte
}

// ParsePrelogin decodes a raw PRELOGIN payload (request or response shape
// are identical).
func ParsePrelogin(data []byte) (*Prelogin, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty prelogin payload")
	}
	p := &Prelogin{}
	options := make(map[uint8]PreloginOption)
	offset := 0
	for {
		if offset >= len(data) {
			return nil, fmt.Errorf("prelogin option headers truncated")
		}
		token := data[offset]
		if token == PreloginTerminator {
			break
		}
		if offset+5 > len(data) {
			return nil, fmt.Errorf("prelogin option header truncated")
		}
		options[token] = PreloginOption{
			Token:  token,
			Offset: binary.BigEndian.Uint16(data[offset+1 : offset+3]),
			Length: binary.BigEndian.Uint16(data[offset+3 : offset+5]),
		}
		offset += 5
	}

	for token, opt := range options {
		start := int(opt.Offset)
		end := start + int(opt.Length)
		if end > len(data) || start > end {
			return nil, fmt.Errorf("prelogin option %d out of bounds", token)
		}
		value := data[start:end]
		switch token {
		case PreloginVersion:
			copy(p.Version[:], value)
		case PreloginEncryption:
			if len(value) >= 1 {
				p.Encryption = value[0]
			}
		case PreloginInstOpt:
			p.Instance = nullTerminated(value)
		case PreloginThreadID:
			if len(value) >= 4 {
				p.ThreadID = binary.BigEndian.Uint32(value)
			}
		case PreloginMARS:
			if len(value) >= 1 {
				p.MARS = value[0]
			}
		case PreloginFedAuth:
			if len(value) >= 1 {
				p.FedAuth = value[0]
				p.FedAuthSet = true
			}
		case PreloginNonceOpt:
			p.Nonce = append([]byte(nil), value...)
		}
	}
	return p, nil
}

func nullTerminated(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Encode serializes the Prelogin as a client-originated request: VERSION,
// ENCRYPTION, INSTOPT, THREADID, MARS, and (when FedAuthSet) FEDAUTH.
func (p *Prelogin) Encode() []byte {
	instance := append([]byte(p.Instance), 0)

	type field struct {
		token uint8
		data  []byte
	}
	fields := []field{
		{PreloginVersion, p.Version[:]},
		{PreloginEncryption, []byte{p.Encryption}},
		{PreloginInstOpt, instance},
		{PreloginThreadID, encodeU32BE(p.ThreadID)},
		{PreloginMARS, []byte{p.MARS}},
	}
	if p.FedAuthSet {
		fields = append(fields, field{PreloginFedAuth, []byte{p.FedAuth}})
	}

	headerSize := len(fields)*5 + 1
	offset := uint16(headerSize)
	buf := make([]byte, headerSize)
	pos := 0
	var payload []byte
	for _, f := range fields {
		buf[pos] = f.token
		binary.BigEndian.PutUint16(buf[pos+1:pos+3], offset)
		binary.BigEndian.PutUint16(buf[pos+3:pos+5], uint16(len(f.data)))
		pos += 5
		offset += uint16(len(f.data))
		payload = append(payload, f.data...)
	}
	buf[pos] = PreloginTerminator
	return append(buf, payload...)
}

func encodeU32BE(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
