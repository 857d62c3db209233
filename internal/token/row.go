package token

import (
	"github.com/tdsgo/tds/internal/packetio"
	"github.com/tdsgo/tds/internal/tds"
)

// ReadColumnValue reads one row's worth of data for col, returning nil for
// SQL NULL. Values keep their natural Go representation (int64, float64,
// string, []byte, decimal.Decimal, time.Time, civil.Date for the wire's
// timezone-less DATE type) so the higher-level result set can box them
// without a second parse pass.
func ReadColumnValue(r *packetio.Reader, col tds.Column) (interface{}, error) {
	switch col.Type {
	case tds.TypeNull:
		return nil, nil

	case tds.TypeInt1:
		v, err := r.ReadU8()
		return int64(v), err
	case tds.TypeBit:
		v, err := r.ReadU8()
		return v != 0, err
	case tds.TypeInt2:
		v, err := r.ReadI16()
		return int64(v), err
	case tds.TypeInt4:
		v, err := r.ReadI32()
		return int64(v), err
	case tds.TypeInt8:
		return r.ReadI64()
	case tds.TypeFloat4:
		v, err := r.ReadF32()
		return float64(v), err
	case tds.TypeFloat8:
		return r.ReadF64()
	case tds.TypeMoney4:
		return r.ReadSmallMoney()
	case tds.TypeMoney:
		return r.ReadMoney()
	case tds.TypeDateTime:
		return r.ReadDateTime()
	case tds.TypeDateTime4:
		return r.ReadSmallDateTime()

	case tds.TypeIntN, tds.TypeBitN, tds.TypeFloatN, tds.TypeMoneyN,
		tds.TypeDateTimeN, tds.TypeGUID:
		n, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		return readSizedValue(r, col.Type, int(n))

	case tds.TypeDecimalN, tds.TypeNumericN, tds.TypeDecimal, tds.TypeNumeric:
		n, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		return r.ReadDecimalOrNumeric(int(n), col.Scale)

	case tds.TypeDateN:
		n, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		return r.ReadDate()

	case tds.TypeTimeN:
		n, err := r.ReadU8()
		if err != nil || n == 0 {
			return nil, err
		}
		return r.ReadTime(col.Scale)

	case tds.TypeDateTime2N:
		n, err := r.ReadU8()
		if err != nil || n == 0 {
			return nil, err
		}
		return r.ReadDateTime2(col.Scale)

	case tds.TypeDateTimeOffsetN:
		n, err := r.ReadU8()
		if err != nil || n == 0 {
			return nil, err
		}
		return r.ReadDateTimeOffset(col.Scale)

	case tds.TypeChar, tds.TypeVarChar, tds.TypeBigChar:
		n, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		if n == 0xFFFF {
			return nil, nil
		}
		b, err := r.ReadBytes(int(n))
		return string(b), err

	case tds.TypeBigVarChar:
		if col.Length == plpMaxMarker {
			data, isNull, err := r.ReadPLP()
			if err != nil || isNull {
				return nil, err
			}
			return string(data), nil
		}
		n, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		if n == 0xFFFF {
			return nil, nil
		}
		b, err := r.ReadBytes(int(n))
		return string(b), err

	case tds.TypeNChar, tds.TypeNVarChar:
		if col.Length == plpMaxMarker {
			data, isNull, err := r.ReadPLP()
			if err != nil || isNull {
				return nil, err
			}
			return tds.DecodeUCS2(data)
		}
		n, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		if n == 0xFFFF {
			return nil, nil
		}
		return r.ReadUnicodeString(int(n) / 2)

	case tds.TypeBinary, tds.TypeVarBinary, tds.TypeBigBinary:
		n, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		if n == 0xFFFF {
			return nil, nil
		}
		return r.ReadBytes(int(n))

	case tds.TypeBigVarBin:
		if col.Length == plpMaxMarker {
			data, isNull, err := r.ReadPLP()
			if err != nil || isNull {
				return nil, err
			}
			return data, nil
		}
		n, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		if n == 0xFFFF {
			return nil, nil
		}
		return r.ReadBytes(int(n))

	case tds.TypeXML:
		data, isNull, err := r.ReadPLP()
		if err != nil || isNull {
			return nil, err
		}
		return tds.DecodeUCS2(data)

	case tds.TypeText, tds.TypeNText, tds.TypeImage, tds.TypeSSVariant:
		n, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		b, err := r.ReadBytes(int(n))
		if err != nil {
			return nil, err
		}
		if col.Type == tds.TypeNText {
			return tds.DecodeUCS2(b)
		}
		return b, nil

	default:
		return nil, nil
	}
}

func readSizedValue(r *packetio.Reader, t tds.SQLType, n int) (interface{}, error) {
	switch t {
	case tds.TypeIntN:
		b, err := r.ReadBytes(n)
		if err != nil {
			return nil, err
		}
		return decodeLEInt(b), nil
	case tds.TypeBitN:
		b, err := r.ReadU8()
		return b != 0, err
	case tds.TypeFloatN:
		if n == 4 {
			v, err := r.ReadF32()
			return float64(v), err
		}
		return r.ReadF64()
	case tds.TypeMoneyN:
		if n == 4 {
			return r.ReadSmallMoney()
		}
		return r.ReadMoney()
	case tds.TypeDateTimeN:
		if n == 4 {
			return r.ReadSmallDateTime()
		}
		return r.ReadDateTime()
	case tds.TypeGUID:
		b, err := r.ReadBytes(n)
		if err != nil {
			return nil, err
		}
		return formatGUIDBytes(b), nil
	}
	return r.ReadBytes(n)
}

func decodeLEInt(b []byte) int64 {
	var v int64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | int64(b[i])
	}
	// sign-extend based on width
	switch len(b) {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	default:
		return v
	}
}

func formatGUIDBytes(b []byte) string {
	// delegate to the same layout packetio.Reader.ReadGUID uses; duplicated
	// here since the bytes were already consumed as a generic sized value.
	const hex = "0123456789abcdef"
	out := make([]byte, 0, 36)
	put := func(v byte) { out = append(out, hex[v>>4], hex[v&0xF]) }
	putRange := func(idx ...int) {
		for _, i := range idx {
			put(b[i])
		}
	}
	putRange(3, 2, 1, 0)
	out = append(out, '-')
	putRange(5, 4)
	out = append(out, '-')
	putRange(7, 6)
	out = append(out, '-')
	putRange(8, 9)
	out = append(out, '-')
	putRange(10, 11, 12, 13, 14, 15)
	return string(out)
}
