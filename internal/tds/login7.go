package tds

import "encoding/binary"

// LOGIN7 option flags (spec.md S4.5). The teacher's pkg/tds/login.go parses
// these on the server side; here the driver is the one setting them, so the
// names carry over but every call site is a writer, not a reader.
const (
	// OptionFlags1
	FlagByteOrder uint8 = 0x01
	FlagChar      uint8 = 0x02
	FlagFloat     uint8 = 0x0C
	FlagDumpLoad  uint8 = 0x10
	FlagUseDB     uint8 = 0x20
	FlagDatabase  uint8 = 0x40
	FlagSetLang   uint8 = 0x80

	// OptionFlags2
	FlagLanguage      uint8 = 0x01
	FlagODBC          uint8 = 0x02
	FlagTransBoundary uint8 = 0x04
	FlagCacheConnect  uint8 = 0x08
	FlagUserType      uint8 = 0x70
	FlagIntSecurity   uint8 = 0x80

	// OptionFlags3
	FlagChangePassword   uint8 = 0x01
	FlagBinaryXML        uint8 = 0x02
	FlagUserInstance     uint8 = 0x04
	FlagUnknownCollation uint8 = 0x08
	FlagExtension        uint8 = 0x10

	// TypeFlags
	FlagSQLType        uint8 = 0x0F
	FlagOLEDB          uint8 = 0x10
	FlagReadOnlyIntent uint8 = 0x20
)

// Login7HeaderSize is the fixed size of the LOGIN7 header preceding the
// variable-length data block.
const Login7HeaderSize = 94

// Login7 holds everything needed to build a client LOGIN7 packet.
type Login7 struct {
	TDSVersion    uint32
	PacketSize    uint32
	ClientProgVer uint32
	ClientPID     uint32
	ConnectionID  uint32

	OptionFlags1 uint8
	OptionFlags2 uint8
	TypeFlags    uint8
	OptionFlags3 uint8

	ClientTimeZone int32
	ClientLCID     uint32
	ClientID       [6]byte

	HostName   string
	UserName   string
	Password   string // plaintext; Encode() obfuscates it per the wire format
	AppName    string
	ServerName string
	CtlIntName string
	Language   string
	Database   string
	AtchDBFile string

	SSPI       []byte
	FeatureExt []byte // pre-encoded feature extension block, terminator included
}

// Encode builds the complete LOGIN7 message body: fixed header followed by
// the variable-length data block in the fixed field order the protocol
// requires (hostname, username, password, appname, servername, extension
// (the FeatureExt block, when set), ctlintname, language, database,
// sspi/changepassword).
func (l *Login7) Encode() []byte {
	type strField struct {
		text     string
		isSSPI   bool
		sspiData []byte
	}

	hostW, _ := EncodeUCS2(l.HostName)
	userW, _ := EncodeUCS2(l.UserName)
	pwdW, _ := EncodeUCS2(l.Password)
	obfuscatePassword(pwdW)
	appW, _ := EncodeUCS2(l.AppName)
	srvW, _ := EncodeUCS2(l.ServerName)
	ctlW, _ := EncodeUCS2(l.CtlIntName)
	langW, _ := EncodeUCS2(l.Language)
	dbW, _ := EncodeUCS2(l.Database)

	var data []byte
	offset := uint16(Login7HeaderSize)

	writeStr := func(w []byte) (off, cnt uint16) {
		off = offset
		cnt = uint16(len(w) / 2)
		data = append(data, w...)
		offset += uint16(len(w))
		return
	}

	hostOff, hostLen := writeStr(hostW)
	userOff, userLen := writeStr(userW)
	pwdOff, pwdLen := writeStr(pwdW)
	appOff, appLen := writeStr(appW)
	srvOff, srvLen := writeStr(srvW)
	// unused/extension block placeholder (empty unless FeatureExt is set)
	var extOff, extLen uint16
	if len(l.FeatureExt) > 0 {
		extOff = offset
		data = append(data, l.FeatureExt...)
		offset += uint16(len(l.FeatureExt))
		extLen = 1 // per spec, ibExtension length field is a byte count marker, not word count
	}
	ctlOff, ctlLen := writeStr(ctlW)
	langOff, langLen := writeStr(langW)
	dbOff, dbLen := writeStr(dbW)

	clientIDOff := l.ClientID

	var sspiOff, sspiLen uint16
	if len(l.SSPI) > 0 {
		sspiOff = offset
		sspiLen = uint16(len(l.SSPI))
		data = append(data, l.SSPI...)
		offset += sspiLen
	}

	atchOff, atchLen := writeStr(nil) // AtchDBFile intentionally left empty in the common path
	_ = atchOff
	_ = atchLen

	totalLen := uint32(offset)

	buf := make([]byte, Login7HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], totalLen)
	binary.LittleEndian.PutUint32(buf[4:8], l.TDSVersion)
	binary.LittleEndian.PutUint32(buf[8:12], l.PacketSize)
	binary.LittleEndian.PutUint32(buf[12:16], l.ClientProgVer)
	binary.LittleEndian.PutUint32(buf[16:20], l.ClientPID)
	binary.LittleEndian.PutUint32(buf[20:24], l.ConnectionID)
	buf[24] = l.OptionFlags1
	buf[25] = l.OptionFlags2
	buf[26] = l.TypeFlags
	buf[27] = l.OptionFlags3
	binary.LittleEndian.PutUint32(buf[28:32], uint32(l.ClientTimeZone))
	binary.LittleEndian.PutUint32(buf[32:36], l.ClientLCID)

	putField := func(pos int, off, cnt uint16) {
		binary.LittleEndian.PutUint16(buf[pos:pos+2], off)
		binary.LittleEndian.PutUint16(buf[pos+2:pos+4], cnt)
	}
	putField(36, hostOff, hostLen)
	putField(40, userOff, userLen)
	putField(44, pwdOff, pwdLen)
	putField(48, appOff, appLen)
	putField(52, srvOff, srvLen)
	putField(56, extOff, extLen)
	putField(60, ctlOff, ctlLen)
	putField(64, langOff, langLen)
	putField(68, dbOff, dbLen)
	copy(buf[72:78], clientIDOff[:])
	putField(78, sspiOff, sspiLen)
	putField(82, atchOff, atchLen)
	putField(86, 0, 0) // change password, unused in the initial-login path
	binary.LittleEndian.PutUint32(buf[90:94], 0)

	return append(buf, data...)
}

// obfuscatePassword applies the TDS password mangling in place: XOR each
// byte with 0xA5, then swap the high and low nibbles.
func obfuscatePassword(b []byte) {
	for i, c := range b {
		c ^= 0xA5
		b[i] = (c << 4) | (c >> 4)
	}
}
