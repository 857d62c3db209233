package token

import (
	"io"

	"github.com/tdsgo/tds/internal/errs"
	"github.com/tdsgo/tds/internal/packetio"
	"github.com/tdsgo/tds/internal/tds"
)

// Parser runs the single-threaded cooperative dispatch loop described in
// spec.md S4.3: peek a token byte, decode that token's body, hand it to the
// Handler, and continue until the handler signals stop or the response
// ends. An ERR token is recorded but parsing continues so any trailing
// DONE tokens are still drained -- "first error wins, drain the message."
type Parser struct {
	r       *packetio.Reader
	h       Handler
	nbcCols []tds.Column // set by SetColumns after a COLMETADATA token

	loginAckSeen bool
	extAckSeen   bool
	columnEncryptionRequested bool
}

// NewParser creates a Parser reading from r and dispatching to h.
func NewParser(r *packetio.Reader, h Handler) *Parser {
	return &Parser{r: r, h: h}
}

// RequireColumnEncryption marks that this statement asked for Always
// Encrypted support, so a missing FEATURE_EXT_ACK after LOGIN_ACK is fatal.
func (p *Parser) RequireColumnEncryption(required bool) {
	p.columnEncryptionRequested = required
}

// SetColumns supplies the active result set's column metadata so ROW/NBCROW
// tokens can be decoded; normally set by the handler's OnColMetadata.
func (p *Parser) SetColumns(cols []tds.Column) { p.nbcCols = cols }

// Run drives the dispatch loop to completion.
func (p *Parser) Run() error {
	for {
		t, err := p.r.PeekTokenType()
		if err == io.EOF {
			if err := p.h.OnEOF(); err != nil {
				return err
			}
			break
		}
		if err != nil {
			return err
		}

		keepGoing, err := p.dispatch(tds.TokenType(t))
		if err != nil {
			return err
		}
		if !keepGoing {
			break
		}
	}
	if p.loginAckSeen && !p.extAckSeen && p.columnEncryptionRequested {
		return errs.New(errs.KindColumnEncryptionNotSupportedByServer, "token.Parser.Run", "server did not acknowledge the column-encryption feature extension")
	}
	return nil
}

func (p *Parser) dispatch(t tds.TokenType) (bool, error) {
	// consume the type byte peeked by PeekTokenType
	if _, err := p.r.ReadU8(); err != nil {
		return false, err
	}

	switch t {
	case tds.TokenError:
		e, err := p.readServerError()
		if err != nil {
			return false, err
		}
		return p.h.OnError(e)

	case tds.TokenInfo:
		e, err := p.readServerError()
		if err != nil {
			return false, err
		}
		return p.h.OnInfo(e)

	case tds.TokenEnvChange:
		bodyLen, err := p.r.ReadU16()
		if err != nil {
			return false, err
		}
		ch, err := decodeEnvChange(p.r, int(bodyLen))
		if err != nil {
			return false, err
		}
		return p.h.OnEnvChange(ch)

	case tds.TokenLoginAck:
		ack, err := p.readLoginAck()
		if err != nil {
			return false, err
		}
		p.loginAckSeen = true
		return p.h.OnLoginAck(ack)

	case tds.TokenFeatureExtAck:
		raw, err := p.readFeatureExtAck()
		if err != nil {
			return false, err
		}
		p.extAckSeen = true
		return true, p.h.OnFeatureExtAck(raw)

	case tds.TokenDone, tds.TokenDoneProc, tds.TokenDoneInProc:
		d, err := p.readDone(t)
		if err != nil {
			return false, err
		}
		return p.h.OnDone(d)

	case tds.TokenColMetadata:
		cols, err := p.readColMetadata()
		if err != nil {
			return false, err
		}
		p.nbcCols = cols
		return p.h.OnColMetadata(cols)

	case tds.TokenRow:
		values, err := p.readRowValues(p.nbcCols)
		if err != nil {
			return false, err
		}
		return p.h.OnRow(p.nbcCols, values)

	case tds.TokenNBCRow:
		values, err := p.readNBCRowValues(p.nbcCols)
		if err != nil {
			return false, err
		}
		return p.h.OnNBCRow(p.nbcCols, values)

	case tds.TokenReturnStatus:
		v, err := p.r.ReadI32()
		if err != nil {
			return false, err
		}
		return p.h.OnReturnStatus(v)

	case tds.TokenReturnValue:
		if err := p.skipReturnValue(); err != nil {
			return false, err
		}
		return p.h.OnReturnValue()

	case tds.TokenOrder, tds.TokenColInfo, tds.TokenTabName:
		n, err := p.r.ReadU16()
		if err != nil {
			return false, err
		}
		if err := p.r.Skip(int(n)); err != nil {
			return false, err
		}
		return p.h.OnIgnoredLengthPrefixed(t)

	case tds.TokenSSPI:
		n, err := p.r.ReadU16()
		if err != nil {
			return false, err
		}
		raw, err := p.r.ReadBytes(int(n))
		if err != nil {
			return false, err
		}
		return p.h.OnSSPI(raw)

	case tds.TokenFedAuthInfo:
		info, err := p.readFedAuthInfo()
		if err != nil {
			return false, err
		}
		return p.h.OnFedAuthInfo(info)

	default:
		return false, errs.Newf(errs.KindInvalidToken, "token.Parser.dispatch", "unexpected token 0x%02X", uint8(t))
	}
}

func (p *Parser) readServerError() (*tds.ServerError, error) {
	if _, err := p.r.ReadU16(); err != nil { // total length, recomputed implicitly by field reads
		return nil, err
	}
	number, err := p.r.ReadI32()
	if err != nil {
		return nil, err
	}
	state, err := p.r.ReadU8()
	if err != nil {
		return nil, err
	}
	severity, err := p.r.ReadU8()
	if err != nil {
		return nil, err
	}
	msg, err := p.r.ReadUsVarChar()
	if err != nil {
		return nil, err
	}
	server, err := p.r.ReadBVarChar()
	if err != nil {
		return nil, err
	}
	proc, err := p.r.ReadBVarChar()
	if err != nil {
		return nil, err
	}
	line, err := p.r.ReadI32()
	if err != nil {
		return nil, err
	}
	return &tds.ServerError{
		Number: number, State: state, Severity: severity,
		Message: msg, ServerName: server, ProcName: proc, LineNo: line,
	}, nil
}

func (p *Parser) readLoginAck() (LoginAck, error) {
	if _, err := p.r.ReadU16(); err != nil {
		return LoginAck{}, err
	}
	iface, err := p.r.ReadU8()
	if err != nil {
		return LoginAck{}, err
	}
	ver, err := p.r.ReadU32BigEndian()
	if err != nil {
		return LoginAck{}, err
	}
	progName, err := p.r.ReadBVarChar()
	if err != nil {
		return LoginAck{}, err
	}
	major, err := p.r.ReadU8()
	if err != nil {
		return LoginAck{}, err
	}
	minor, err := p.r.ReadU8()
	if err != nil {
		return LoginAck{}, err
	}
	buildHi, err := p.r.ReadU8()
	if err != nil {
		return LoginAck{}, err
	}
	buildLo, err := p.r.ReadU8()
	if err != nil {
		return LoginAck{}, err
	}
	return LoginAck{
		Interface: iface, TDSVersion: ver, ProgName: progName,
		ProgVerMaj: major, ProgVerMin: minor,
		ProgVerBld: uint16(buildHi)<<8 | uint16(buildLo),
	}, nil
}

func (p *Parser) readFeatureExtAck() ([]byte, error) {
	var raw []byte
	for {
		featureID, err := p.r.ReadU8()
		if err != nil {
			return nil, err
		}
		raw = append(raw, featureID)
		if featureID == 0xFF {
			break
		}
		dataLen, err := p.r.ReadU32()
		if err != nil {
			return nil, err
		}
		data, err := p.r.ReadBytes(int(dataLen))
		if err != nil {
			return nil, err
		}
		raw = append(raw, data...)
	}
	return raw, nil
}

func (p *Parser) readDone(t tds.TokenType) (Done, error) {
	status, err := p.r.ReadU16()
	if err != nil {
		return Done{}, err
	}
	curCmd, err := p.r.ReadU16()
	if err != nil {
		return Done{}, err
	}
	rowCount, err := p.r.ReadU64()
	if err != nil {
		return Done{}, err
	}
	return Done{Kind: t, Status: status, CurCmd: curCmd, RowCount: rowCount}, nil
}

func (p *Parser) readColMetadata() ([]tds.Column, error) {
	count, err := p.r.ReadU16()
	if err != nil {
		return nil, err
	}
	if count == 0xFFFF {
		return nil, nil
	}
	cols := make([]tds.Column, count)
	for i := range cols {
		if _, err := p.r.ReadU32(); err != nil { // user type
			return nil, err
		}
		flags, err := p.r.ReadU16()
		if err != nil {
			return nil, err
		}
		col, err := readTypeInfo(p.r)
		if err != nil {
			return nil, err
		}
		col.Flags = flags
		if flags&tds.ColFlagEncrypted != 0 {
			cm, err := readCryptoMetadata(p.r)
			if err != nil {
				return nil, err
			}
			col.Crypto = cm
		}
		name, err := p.r.ReadBVarChar()
		if err != nil {
			return nil, err
		}
		col.Name = name
		cols[i] = col
	}
	return cols, nil
}

func (p *Parser) readRowValues(cols []tds.Column) ([]interface{}, error) {
	values := make([]interface{}, len(cols))
	for i, col := range cols {
		v, err := ReadColumnValue(p.r, col)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (p *Parser) readNBCRowValues(cols []tds.Column) ([]interface{}, error) {
	bitmapLen := tds.NullBitmapSize(len(cols))
	bitmap, err := p.r.ReadBytes(bitmapLen)
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, len(cols))
	for i, col := range cols {
		if tds.IsNullInBitmap(bitmap, i) {
			continue
		}
		v, err := ReadColumnValue(p.r, col)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (p *Parser) skipReturnValue() error {
	if _, err := p.r.ReadU16(); err != nil { // param ordinal
		return err
	}
	if _, err := p.r.ReadBVarChar(); err != nil { // param name
		return err
	}
	if _, err := p.r.ReadU8(); err != nil { // status
		return err
	}
	if _, err := p.r.ReadU32(); err != nil { // user type
		return err
	}
	if _, err := p.r.ReadU16(); err != nil { // flags
		return err
	}
	col, err := readTypeInfo(p.r)
	if err != nil {
		return err
	}
	_, err = ReadColumnValue(p.r, col)
	return err
}

func (p *Parser) readFedAuthInfo() (FedAuthInfo, error) {
	totalLen, err := p.r.ReadU32()
	if err != nil {
		return FedAuthInfo{}, err
	}
	remaining := int(totalLen)
	countBytes, err := p.r.ReadU32()
	if err != nil {
		return FedAuthInfo{}, err
	}
	remaining -= 4
	count := int(countBytes)

	type fedOpt struct {
		id            uint8
		length        uint32
		offset        uint32
	}
	opts := make([]fedOpt, count)
	for i := 0; i < count; i++ {
		id, err := p.r.ReadU8()
		if err != nil {
			return FedAuthInfo{}, err
		}
		length, err := p.r.ReadU32()
		if err != nil {
			return FedAuthInfo{}, err
		}
		offset, err := p.r.ReadU32()
		if err != nil {
			return FedAuthInfo{}, err
		}
		opts[i] = fedOpt{id, length, offset}
		remaining -= 9
	}

	data, err := p.r.ReadBytes(remaining)
	if err != nil {
		return FedAuthInfo{}, err
	}

	var info FedAuthInfo
	const (
		fedAuthInfoSTSURL = 0x01
		fedAuthInfoSPN    = 0x02
	)
	headerSize := 4 + count*9
	for _, o := range opts {
		start := int(o.offset) - headerSize
		end := start + int(o.length)
		if start < 0 || end > len(data) || start > end {
			continue
		}
		s, err := tds.DecodeUCS2(data[start:end])
		if err != nil {
			continue
		}
		switch o.id {
		case fedAuthInfoSTSURL:
			info.STSURL = s
		case fedAuthInfoSPN:
			info.SPN = s
		}
	}
	return info, nil
}
