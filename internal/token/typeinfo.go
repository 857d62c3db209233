package token

import (
	"github.com/tdsgo/tds/internal/packetio"
	"github.com/tdsgo/tds/internal/errs"
	"github.com/tdsgo/tds/internal/tds"
)

// plpMaxMarker is the 2-byte length field value (0xFFFF) that flags a
// (N)VARCHAR/VARBINARY column as MAX-length, i.e. PLP-encoded.
const plpMaxMarker = 0xFFFF

// readTypeInfo parses one TYPE_INFO block, as found in COLMETADATA columns
// and RETURNVALUE tokens.
func readTypeInfo(r *packetio.Reader) (tds.Column, error) {
	typeByte, err := r.ReadU8()
	if err != nil {
		return tds.Column{}, err
	}
	col := tds.Column{Type: tds.SQLType(typeByte)}

	switch col.Type {
	// Fixed-length, no further TYPE_INFO bytes.
	case tds.TypeNull, tds.TypeInt1, tds.TypeBit, tds.TypeInt2, tds.TypeInt4,
		tds.TypeInt8, tds.TypeFloat4, tds.TypeFloat8, tds.TypeMoney,
		tds.TypeMoney4, tds.TypeDateTime, tds.TypeDateTime4:
		col.Length = fixedLenOf(col.Type)
		return col, nil

	// 1-byte length prefix, variable-length "N" types.
	case tds.TypeIntN, tds.TypeBitN, tds.TypeFloatN, tds.TypeMoneyN,
		tds.TypeDateTimeN, tds.TypeGUID:
		n, err := r.ReadU8()
		if err != nil {
			return col, err
		}
		col.Length = uint32(n)
		return col, nil

	case tds.TypeDecimalN, tds.TypeNumericN, tds.TypeDecimal, tds.TypeNumeric:
		n, err := r.ReadU8()
		if err != nil {
			return col, err
		}
		col.Length = uint32(n)
		prec, err := r.ReadU8()
		if err != nil {
			return col, err
		}
		scale, err := r.ReadU8()
		if err != nil {
			return col, err
		}
		col.Precision, col.Scale = prec, scale
		return col, nil

	case tds.TypeDateN:
		return col, nil

	case tds.TypeTimeN, tds.TypeDateTime2N, tds.TypeDateTimeOffsetN:
		scale, err := r.ReadU8()
		if err != nil {
			return col, err
		}
		col.Scale = scale
		return col, nil

	case tds.TypeChar, tds.TypeVarChar, tds.TypeBinary, tds.TypeVarBinary,
		tds.TypeBigChar, tds.TypeBigVarChar, tds.TypeBigBinary, tds.TypeBigVarBin:
		n, err := r.ReadU16()
		if err != nil {
			return col, err
		}
		col.Length = uint32(n)
		if isCharType(col.Type) {
			coll, err := r.ReadBytes(5)
			if err != nil {
				return col, err
			}
			col.Collation = coll
		}
		return col, nil

	case tds.TypeNChar, tds.TypeNVarChar:
		n, err := r.ReadU16()
		if err != nil {
			return col, err
		}
		col.Length = uint32(n)
		coll, err := r.ReadBytes(5)
		if err != nil {
			return col, err
		}
		col.Collation = coll
		return col, nil

	case tds.TypeXML:
		// XMLSCHEMA presence flag; 0 means no schema collection bound.
		hasSchema, err := r.ReadU8()
		if err != nil {
			return col, err
		}
		if hasSchema != 0 {
			if _, err := r.ReadBVarChar(); err != nil { // dbname
				return col, err
			}
			if _, err := r.ReadBVarChar(); err != nil { // owning schema
				return col, err
			}
			if _, err := r.ReadUsVarChar(); err != nil { // schema collection name
				return col, err
			}
		}
		return col, nil

	case tds.TypeText, tds.TypeNText, tds.TypeImage:
		_, err := r.ReadU32()
		if err != nil {
			return col, err
		}
		if col.Type != tds.TypeImage {
			if _, err := r.ReadBytes(5); err != nil {
				return col, err
			}
		}
		// TABLENAME parts, skipped: not needed by the driver's row decode path.
		n, err := r.ReadU16()
		if err != nil {
			return col, err
		}
		if _, err := r.ReadBytes(int(n) * 2); err != nil {
			return col, err
		}
		return col, nil

	case tds.TypeSSVariant:
		_, err := r.ReadU32()
		return col, err

	default:
		return col, errs.Newf(errs.KindUnexpectedServerSchema, "token.readTypeInfo", "unsupported TYPE_INFO byte 0x%02X", typeByte)
	}
}

func isCharType(t tds.SQLType) bool {
	switch t {
	case tds.TypeChar, tds.TypeVarChar, tds.TypeBigChar, tds.TypeBigVarChar:
		return true
	}
	return false
}

func fixedLenOf(t tds.SQLType) uint32 {
	switch t {
	case tds.TypeNull:
		return 0
	case tds.TypeInt1, tds.TypeBit:
		return 1
	case tds.TypeInt2:
		return 2
	case tds.TypeInt4, tds.TypeFloat4, tds.TypeMoney4, tds.TypeDateTime4:
		return 4
	case tds.TypeInt8, tds.TypeFloat8, tds.TypeMoney, tds.TypeDateTime:
		return 8
	}
	return 0
}

// isPLPLength reports whether a variable-length column's Length field
// signals the MAX/PLP encoding rather than a fixed byte cap.
func isPLPLength(col tds.Column) bool {
	switch col.Type {
	case tds.TypeBigVarChar, tds.TypeBigVarBin, tds.TypeNVarChar, tds.TypeXML:
		return col.Length == plpMaxMarker
	}
	return false
}

// readCryptoMetadata parses the CryptoMetadata sub-block that follows a
// COLMETADATA column's TYPE_INFO when ColFlagEncrypted is set: a base
// TYPE_INFO, a CEK table ordinal, algorithm id/name, encryption type, and
// normalization version (spec.md S3 "Crypto Metadata").
func readCryptoMetadata(r *packetio.Reader) (*tds.CryptoMetadata, error) {
	base, err := readTypeInfo(r)
	if err != nil {
		return nil, err
	}
	ordinal, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	algID, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	cm := &tds.CryptoMetadata{
		BaseType:        base.Type,
		BaseLength:      base.Length,
		BasePrecision:   base.Precision,
		BaseScale:       base.Scale,
		BaseCollation:   base.Collation,
		CekTableOrdinal: int(ordinal),
		AlgorithmID:     algID,
	}
	if algID == 0 {
		name, err := r.ReadBVarChar()
		if err != nil {
			return nil, err
		}
		cm.AlgorithmName = name
	}
	encType, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	cm.EncryptionType = tds.EncryptionType(encType)
	normVer, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	cm.NormalizationVersion = normVer
	return cm, nil
}
