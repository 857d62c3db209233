package tdstest

import (
	"encoding/binary"

	"github.com/tdsgo/tds/internal/tds"
)

func bVarChar(s string) []byte {
	enc, err := tds.EncodeUCS2(s)
	if err != nil {
		enc = nil
	}
	out := make([]byte, 0, 1+len(enc))
	out = append(out, byte(len(enc)/2))
	return append(out, enc...)
}

func usVarChar(s string) []byte {
	enc, err := tds.EncodeUCS2(s)
	if err != nil {
		enc = nil
	}
	out := make([]byte, 2, 2+len(enc))
	binary.LittleEndian.PutUint16(out, uint16(len(enc)/2))
	return append(out, enc...)
}

// LoginAckToken builds a LOGINACK token body (spec.md S4.4) for a
// successful login: SQL interface (1), the given TDS wire version, program
// name, and a three-part version.
func LoginAckToken(progName string, tdsVersion uint32, major, minor uint8, build uint16) []byte {
	body := make([]byte, 0, 32)
	body = append(body, 1) // SQL interface
	verBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(verBuf, tdsVersion)
	body = append(body, verBuf...)
	body = append(body, bVarChar(progName)...)
	body = append(body, major, minor, byte(build>>8), byte(build))

	out := make([]byte, 0, 3+len(body))
	out = append(out, byte(tds.TokenLoginAck))
	lenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBuf, uint16(len(body)))
	out = append(out, lenBuf...)
	return append(out, body...)
}

// DoneToken builds a DONE token body (spec.md S3) with the given status
// flags and row count.
func DoneToken(status uint16, rowCount uint64) []byte {
	out := make([]byte, 1+2+2+8)
	out[0] = byte(tds.TokenDone)
	binary.LittleEndian.PutUint16(out[1:3], status)
	binary.LittleEndian.PutUint16(out[3:5], 0) // curCmd
	binary.LittleEndian.PutUint64(out[5:13], rowCount)
	return out
}

// ErrorToken builds an ERROR token body (spec.md S4.3) for a server-side
// failure response.
func ErrorToken(number int32, state, severity uint8, msg, serverName, procName string, lineNo int32) []byte {
	body := make([]byte, 0, 64)
	numBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(numBuf, uint32(number))
	body = append(body, numBuf...)
	body = append(body, state, severity)
	body = append(body, usVarChar(msg)...)
	body = append(body, bVarChar(serverName)...)
	body = append(body, bVarChar(procName)...)
	lineBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lineBuf, uint32(lineNo))
	body = append(body, lineBuf...)

	out := make([]byte, 0, 3+len(body))
	out = append(out, byte(tds.TokenError))
	lenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBuf, uint16(len(body)))
	out = append(out, lenBuf...)
	return append(out, body...)
}

// EnvChangeDatabaseToken builds an ENVCHANGE(Database) token body (spec.md
// S4.3) reflecting a USE <db> switch.
func EnvChangeDatabaseToken(newDB, oldDB string) []byte {
	body := make([]byte, 0, 16)
	body = append(body, tds.EnvDatabase)
	body = append(body, bVarChar(newDB)...)
	body = append(body, bVarChar(oldDB)...)

	out := make([]byte, 0, 3+len(body))
	out = append(out, byte(tds.TokenEnvChange))
	lenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBuf, uint16(len(body)))
	out = append(out, lenBuf...)
	return append(out, body...)
}

// LoginSuccess concatenates an ENVCHANGE(Database), LOGINACK, and final
// DONE token stream — the minimal response a fake server needs to send
// for doLogin to complete successfully.
func LoginSuccess(database, progName string) []byte {
	var out []byte
	out = append(out, EnvChangeDatabaseToken(database, "")...)
	out = append(out, LoginAckToken(progName, tds.VerDenali, 15, 0, 4000)...)
	out = append(out, DoneToken(tds.DoneFinal, 0)...)
	return out
}
